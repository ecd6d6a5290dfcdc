// Package audiodev picks the microphone and output sink a process records
// and plays with. Native device support is compiled in unless the binary is
// built with the headless tag.
package audiodev

import (
	"time"

	"github.com/rs/zerolog/log"

	"entrevistas-live-client/internal/config"
	"entrevistas-live-client/internal/service/capture"
	"entrevistas-live-client/internal/service/playback"
)

const (
	minPeriod = 10 * time.Millisecond
	maxPeriod = 200 * time.Millisecond
)

// Devices is the selected audio input and output.
type Devices struct {
	Microphone capture.Microphone
	Sink       playback.Sink

	closers []func()
}

// Open selects the devices for cfg. A WAV source path replaces the capture
// device; disabled playback drains replies without sound.
func Open(cfg config.AudioConfig) *Devices {
	d := &Devices{}

	if cfg.SourcePath != "" {
		d.Microphone = capture.NewWAVMicrophone(cfg.SourcePath, cfg.ChunkBytes)
	} else {
		mic, closeFn := inputDevice(capture.DefaultFormat, periodOf(capture.DefaultFormat, cfg.ChunkBytes))
		d.Microphone = mic
		d.add(closeFn)
	}

	if cfg.PlaybackEnabled {
		sink, closeFn := outputDevice()
		d.Sink = sink
		d.add(closeFn)
	} else {
		d.Sink = playback.NewDiscardSink()
	}

	log.Info().
		Str("input", describe(cfg.SourcePath)).
		Bool("playback", cfg.PlaybackEnabled).
		Msg("Audio devices selected")
	return d
}

// Close releases the devices in reverse order of acquisition.
func (d *Devices) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}

func (d *Devices) add(fn func()) {
	if fn != nil {
		d.closers = append(d.closers, fn)
	}
}

// periodOf converts the configured chunk size into a device period.
func periodOf(format capture.Format, chunkBytes int) time.Duration {
	p := format.Duration(chunkBytes)
	if p < minPeriod {
		return minPeriod
	}
	if p > maxPeriod {
		return maxPeriod
	}
	return p
}

func describe(sourcePath string) string {
	if sourcePath != "" {
		return "wav:" + sourcePath
	}
	return "device:default"
}
