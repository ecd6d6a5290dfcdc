package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"entrevistas-live-client/internal/audiodev"
	"entrevistas-live-client/internal/config"
	"entrevistas-live-client/internal/observability/logging"
	"entrevistas-live-client/internal/service/capture"
	"entrevistas-live-client/internal/service/live"
)

const pollInterval = 100 * time.Millisecond

func main() {
	cfg := config.Load()

	audioFile := flag.String("audio", cfg.Audio.SourcePath, "Path to the answer WAV file (16-bit PCM)")
	serverURL := flag.String("server", cfg.Backend.WSURL, "Live channel URL")
	wait := flag.Duration("wait", 30*time.Second, "How long to wait for each backend reply")
	play := flag.Bool("playback", cfg.Audio.PlaybackEnabled, "Play synthesized audio on the speaker")
	flag.Parse()

	if *audioFile == "" {
		log.Fatal("An answer WAV file is required (-audio)")
	}

	logging.Init(logging.Config{Level: "warn", Format: "console"})

	answerLen, err := wavDuration(*audioFile)
	if err != nil {
		log.Fatalf("Failed to read answer file: %v", err)
	}

	devices := audiodev.Open(config.AudioConfig{
		SourcePath:      *audioFile,
		ChunkBytes:      cfg.Audio.ChunkBytes,
		PlaybackEnabled: *play,
	})
	defer devices.Close()

	client := live.New(live.Config{
		WSURL:             *serverURL,
		DialTimeout:       cfg.Session.DialTimeout,
		ProcessingTimeout: cfg.Session.ProcessingTimeout,
		Limits:            capture.Limits{MaxBytes: cfg.Audio.MaxBytes, MaxDuration: cfg.Audio.MaxDuration},
	}, live.Deps{
		Microphone: devices.Microphone,
		Sink:       devices.Sink,
	})
	defer client.Close()

	client.OnStatus(func(st live.Status) {
		log.Printf("Session %s active=%v connected=%v", st.SessionID, st.Active, st.Connected)
	})

	ctx := context.Background()
	sessionID, err := client.StartInterview(ctx)
	if err != nil {
		log.Fatalf("Failed to start interview: %v", err)
	}
	log.Printf("Interview started: sessionId=%s", sessionID)

	// greeting
	if !waitFor(client, *wait, func(s live.Snapshot) bool {
		return s.TranscriptLength >= 1 && !s.Processing && !s.Speaking
	}) {
		log.Printf("No greeting within %v", *wait)
	}
	turns := client.Snapshot().TranscriptLength

	if err := client.PressMic(ctx); err != nil {
		log.Fatalf("Failed to open microphone: %v", err)
	}
	log.Printf("Answering for %v...", answerLen.Round(time.Millisecond))
	time.Sleep(answerLen + 200*time.Millisecond)

	if err := client.ReleaseMic(ctx); err != nil {
		log.Fatalf("Failed to send answer: %v", err)
	}

	if !waitFor(client, *wait, func(s live.Snapshot) bool {
		return s.TranscriptLength >= turns+2 && !s.Processing && !s.Speaking
	}) {
		log.Printf("Reply incomplete after %v", *wait)
	}

	fmt.Println()
	for _, e := range client.Transcript() {
		fmt.Printf("[%s] %s: %s\n", e.Timestamp.Format("15:04:05"), e.Role, e.Text)
	}
	for _, n := range client.Notices() {
		fmt.Printf("! %s: %s\n", n.Kind, n.Message)
	}
}

// waitFor polls the session until cond holds or timeout elapses.
func waitFor(c *live.Client, timeout time.Duration, cond func(live.Snapshot) bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		s := c.Snapshot()
		if cond(s) {
			return true
		}
		if !s.Active {
			return false
		}
		time.Sleep(pollInterval)
	}
	return false
}

// wavDuration estimates the playing time of a PCM WAV file.
func wavDuration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	format, err := capture.ReadWAVHeader(f)
	if err != nil {
		return 0, err
	}
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return format.Duration(int(info.Size()) - 44), nil
}
