// Package playback plays the synthesized replies of the interviewer, one at a time.
package playback

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/wav"
	"github.com/rs/zerolog"

	"entrevistas-live-client/internal/observability/logging"
	"entrevistas-live-client/internal/observability/metrics"
)

var ErrEmptyPayload = errors.New("empty audio payload")

// Sink renders decoded audio. Lock and Unlock guard the streamers it is
// pulling from, so they can be modified while playing.
type Sink interface {
	Play(format beep.Format, s beep.Streamer) error
	Lock()
	Unlock()
}

// Player keeps at most one active stream. A Play while another stream is
// active replaces it.
type Player struct {
	sink    Sink
	metrics *metrics.Metrics
	logger  zerolog.Logger

	mu         sync.Mutex
	current    *track
	nextID     uint64
	speaking   bool
	onSpeaking func(bool)
}

type track struct {
	id      uint64
	ctrl    *beep.Ctrl
	decoder beep.StreamSeekCloser
}

func NewPlayer(sink Sink) *Player {
	return &Player{
		sink:    sink,
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithComponent("playback"),
	}
}

// OnSpeaking registers a callback for speaking changes. It runs without the
// player's lock held.
func (p *Player) OnSpeaking(fn func(bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onSpeaking = fn
}

// IsSpeaking reports whether audio is audibly playing.
func (p *Player) IsSpeaking() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speaking
}

// Play decodes a base64 WAV or MP3 payload and starts playing it.
func (p *Player) Play(payload string) error {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return fmt.Errorf("decode audio payload: %w", err)
	}
	decoder, format, err := decode(raw)
	if err != nil {
		return fmt.Errorf("decode audio payload: %w", err)
	}

	p.mu.Lock()
	p.stopLocked()
	p.nextID++
	id := p.nextID
	t := &track{id: id, ctrl: &beep.Ctrl{Streamer: decoder}, decoder: decoder}
	p.current = t
	p.speaking = true
	notify := p.onSpeaking
	p.mu.Unlock()

	if notify != nil {
		notify(true)
	}

	stream := beep.Seq(t.ctrl, beep.Callback(func() {
		// runs inside the sink's lock
		go p.finished(id)
	}))
	if err := p.sink.Play(format, stream); err != nil {
		p.finished(id)
		p.logger.Error().Err(err).Msg("Failed to start playback")
		return fmt.Errorf("start playback: %w", err)
	}

	p.metrics.RecordPlaybackStarted()
	p.logger.Debug().
		Int("sampleRate", int(format.SampleRate)).
		Int("channels", format.NumChannels).
		Msg("Playback started")
	return nil
}

// Pause silences the current stream without discarding it.
func (p *Player) Pause() {
	p.mu.Lock()
	if p.current == nil || !p.speaking {
		p.mu.Unlock()
		return
	}
	p.sink.Lock()
	p.current.ctrl.Paused = true
	p.sink.Unlock()
	p.speaking = false
	notify := p.onSpeaking
	p.mu.Unlock()

	p.metrics.RecordPlaybackPaused()
	p.logger.Debug().Msg("Playback paused")
	if notify != nil {
		notify(false)
	}
}

// Stop drops the current stream.
func (p *Player) Stop() {
	p.mu.Lock()
	wasSpeaking := p.speaking
	p.stopLocked()
	notify := p.onSpeaking
	p.mu.Unlock()

	if wasSpeaking && notify != nil {
		notify(false)
	}
}

func (p *Player) stopLocked() {
	t := p.current
	p.current = nil
	p.speaking = false
	if t == nil {
		return
	}
	// a nil streamer ends the Ctrl, the sink drops it on its next pull
	p.sink.Lock()
	t.ctrl.Streamer = nil
	p.sink.Unlock()
	_ = t.decoder.Close()
}

func (p *Player) finished(id uint64) {
	p.mu.Lock()
	if p.current == nil || p.current.id != id {
		p.mu.Unlock()
		return
	}
	t := p.current
	p.current = nil
	wasSpeaking := p.speaking
	p.speaking = false
	notify := p.onSpeaking
	p.mu.Unlock()

	_ = t.decoder.Close()
	p.logger.Debug().Msg("Playback finished")
	if wasSpeaking && notify != nil {
		notify(false)
	}
}

func decode(raw []byte) (beep.StreamSeekCloser, beep.Format, error) {
	if len(raw) == 0 {
		return nil, beep.Format{}, ErrEmptyPayload
	}
	if bytes.HasPrefix(raw, []byte("RIFF")) {
		return wav.Decode(bytes.NewReader(raw))
	}
	return mp3.Decode(io.NopCloser(bytes.NewReader(raw)))
}
