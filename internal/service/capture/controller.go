// Package capture implements hold-to-talk recording: it owns the microphone
// for one press, buffers the chunks and sends them as a single audio unit.
package capture

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"entrevistas-live-client/internal/observability/logging"
	"entrevistas-live-client/internal/observability/metrics"
)

var (
	ErrAlreadyRecording = errors.New("already recording")
	ErrNotRecording     = errors.New("not recording")
	ErrCancelled        = errors.New("recording cancelled")
)

// state of the microphone as seen by the controller. Only idle accepts a start.
type state int

const (
	stateIdle state = iota
	stateAcquiring
	stateRecording
	stateReleasing
)

// Limits bounds what a single press may buffer.
// These keep a stuck button from growing the buffer without bound.
type Limits struct {
	MaxBytes    int64         // max raw PCM per unit
	MaxDuration time.Duration // max recording length
}

// DefaultLimits returns sensible default limits.
func DefaultLimits() Limits {
	return Limits{
		MaxBytes:    10 * 1024 * 1024, // 10MB (~5 minutes at 16kHz 16-bit mono)
		MaxDuration: 2 * time.Minute,
	}
}

// Transmitter sends an encoded unit on the live channel.
type Transmitter interface {
	SendAudio(encoded string) error
}

// Pauser stops audible playback when the candidate starts talking.
type Pauser interface {
	Pause()
}

// Unit describes a finished recording.
type Unit struct {
	Bytes     int // raw PCM bytes
	Duration  time.Duration
	Truncated bool
}

// Controller exclusively owns the recording flag and the capture buffer.
type Controller struct {
	mic     Microphone
	tx      Transmitter
	player  Pauser
	limits  Limits
	metrics *metrics.Metrics
	logger  zerolog.Logger

	mu        sync.Mutex
	state     state
	cancelled bool               // Cancel ran while acquiring
	abort     context.CancelFunc // aborts a pending Open
	stream    Stream
	buf       *pressBuffer
	pumpDone  chan struct{}
	started   time.Time
}

// pressBuffer holds the chunks of one press in arrival order.
type pressBuffer struct {
	mu        sync.Mutex
	chunks    [][]byte
	size      int64
	truncated bool
}

func (b *pressBuffer) bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	pcm := make([]byte, 0, b.size)
	for _, chunk := range b.chunks {
		pcm = append(pcm, chunk...)
	}
	return pcm
}

// NewController creates a controller. player may be nil.
func NewController(mic Microphone, tx Transmitter, player Pauser, limits Limits) *Controller {
	return &Controller{
		mic:     mic,
		tx:      tx,
		player:  player,
		limits:  limits,
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithComponent("capture"),
	}
}

// IsRecording reports whether a press is in progress.
func (c *Controller) IsRecording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateRecording
}

// IsAcquiring reports whether the microphone is being opened.
func (c *Controller) IsAcquiring() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateAcquiring
}

// StartRecording pauses playback, acquires the microphone and starts buffering.
// The controller lock is not held while the device opens, so state queries and
// Cancel stay responsive. On failure recording stays false and nothing is held.
func (c *Controller) StartRecording(ctx context.Context) error {
	c.mu.Lock()
	if c.state != stateIdle {
		c.mu.Unlock()
		c.metrics.RecordRecordingRejected("already_recording")
		return ErrAlreadyRecording
	}
	c.state = stateAcquiring
	c.cancelled = false
	openCtx, abort := context.WithCancel(ctx)
	c.abort = abort
	c.mu.Unlock()
	defer abort()

	// barge-in: silence the interviewer before the mic opens
	if c.player != nil {
		c.player.Pause()
	}

	stream, err := c.mic.Open(openCtx)

	c.mu.Lock()
	c.abort = nil
	if c.cancelled {
		c.cancelled = false
		c.state = stateIdle
		c.mu.Unlock()
		if stream != nil {
			_ = stream.Close()
		}
		c.logger.Debug().Msg("Microphone acquisition cancelled")
		return ErrCancelled
	}
	if err != nil {
		c.state = stateIdle
		c.mu.Unlock()
		c.metrics.RecordRecordingRejected("permission")
		var permErr *PermissionError
		if !errors.As(err, &permErr) {
			err = &PermissionError{Device: "microphone", Err: err}
		}
		c.logger.Warn().Err(err).Msg("Microphone unavailable")
		return err
	}

	c.state = stateRecording
	c.stream = stream
	c.buf = &pressBuffer{}
	c.started = time.Now()
	c.pumpDone = make(chan struct{})
	go c.pump(stream, c.buf, c.started, c.pumpDone)
	c.mu.Unlock()

	c.metrics.RecordRecordingStarted()
	c.logger.Debug().Msg("Recording started")
	return nil
}

func (c *Controller) pump(stream Stream, buf *pressBuffer, started time.Time, done chan struct{}) {
	defer close(done)

	for chunk := range stream.Chunks() {
		buf.mu.Lock()
		if buf.truncated {
			buf.mu.Unlock()
			continue
		}

		var limit string
		switch {
		case c.limits.MaxDuration > 0 && time.Since(started) > c.limits.MaxDuration:
			limit = "max_duration"
		case c.limits.MaxBytes > 0 && buf.size+int64(len(chunk)) > c.limits.MaxBytes:
			limit = "max_bytes"
		}
		if limit != "" {
			buf.truncated = true
			buffered := buf.size
			buf.mu.Unlock()
			c.metrics.RecordLimitExceeded(limit)
			c.logger.Warn().
				Str("limit", limit).
				Int64("bufferedBytes", buffered).
				Msg("Capture limit reached, buffering stopped")
			continue
		}

		buf.chunks = append(buf.chunks, chunk)
		buf.size += int64(len(chunk))
		buf.mu.Unlock()
	}
}

// StopRecording releases the microphone and transmits the buffered unit once.
// When the channel is not open the unit is dropped and the transmission error
// returned. Recording is false afterwards on every path.
func (c *Controller) StopRecording(ctx context.Context) (Unit, error) {
	c.mu.Lock()
	if c.state != stateRecording {
		c.mu.Unlock()
		c.metrics.RecordRecordingRejected("not_recording")
		return Unit{}, ErrNotRecording
	}
	c.state = stateReleasing
	stream, buf, done, started := c.stream, c.buf, c.pumpDone, c.started
	c.stream, c.buf = nil, nil
	c.mu.Unlock()

	err := c.release(ctx, stream, done)
	c.setIdle()
	if err != nil {
		return Unit{}, err
	}

	pcm := buf.bytes()
	buf.mu.Lock()
	unit := Unit{Bytes: len(pcm), Duration: time.Since(started), Truncated: buf.truncated}
	buf.mu.Unlock()

	c.metrics.RecordRecordingStopped(unit.Duration.Seconds(), unit.Bytes)

	encoded := base64.StdEncoding.EncodeToString(EncodeWAV(stream.Format(), pcm))
	if err := c.tx.SendAudio(encoded); err != nil {
		c.logger.Warn().Err(err).Int("bytes", unit.Bytes).Msg("Audio unit dropped")
		return unit, err
	}

	c.logger.Info().
		Int("bytes", unit.Bytes).
		Dur("duration", unit.Duration).
		Bool("truncated", unit.Truncated).
		Msg("Audio unit sent")
	return unit, nil
}

// Cancel ends a press without transmitting anything. A pending acquisition
// is aborted and the device it yields, if any, is closed by StartRecording.
func (c *Controller) Cancel() {
	c.mu.Lock()
	switch c.state {
	case stateAcquiring:
		c.cancelled = true
		if c.abort != nil {
			c.abort()
		}
		c.mu.Unlock()
		return
	case stateRecording:
	default:
		c.mu.Unlock()
		return
	}
	c.state = stateReleasing
	stream, done := c.stream, c.pumpDone
	c.stream, c.buf = nil, nil
	c.mu.Unlock()

	_ = c.release(context.Background(), stream, done)
	c.setIdle()
	c.logger.Debug().Msg("Recording cancelled")
}

func (c *Controller) setIdle() {
	c.mu.Lock()
	c.state = stateIdle
	c.mu.Unlock()
}

func (c *Controller) release(ctx context.Context, stream Stream, done chan struct{}) error {
	if err := stream.Close(); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to close microphone")
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("release microphone: %w", ctx.Err())
	}
}
