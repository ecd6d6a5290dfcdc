// Package device captures answers from the system's default input device
// through miniaudio (malgo). It needs cgo; headless builds leave it out.
package device

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog/log"

	"entrevistas-live-client/internal/service/capture"
)

const (
	deviceName    = "default"
	defaultPeriod = 100 * time.Millisecond
	// periods buffered between the audio thread and the controller pump
	queueDepth = 64
)

// MalgoMicrophone opens the default capture device for every recording and
// closes it when the recording ends. The audio context is shared across
// recordings and released by Close.
type MalgoMicrophone struct {
	format capture.Format
	period time.Duration

	mu  sync.Mutex
	ctx *malgo.AllocatedContext
}

// NewMalgoMicrophone creates a microphone recording 16-bit PCM in format's
// rate and channel count, delivering one chunk per period.
func NewMalgoMicrophone(format capture.Format, period time.Duration) *MalgoMicrophone {
	format.BitsPerSample = 16
	if period <= 0 {
		period = defaultPeriod
	}
	return &MalgoMicrophone{format: format, period: period}
}

func (m *MalgoMicrophone) Open(ctx context.Context) (capture.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	actx, err := m.context()
	if err != nil {
		return nil, &capture.PermissionError{Device: deviceName, Err: fmt.Errorf("init audio context: %w", err)}
	}

	s := newDeviceStream(m.format)

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(m.format.Channels)
	cfg.SampleRate = uint32(m.format.SampleRate)
	cfg.PeriodSizeInMilliseconds = uint32(m.period.Milliseconds())

	dev, err := malgo.InitDevice(actx.Context, cfg, malgo.DeviceCallbacks{Data: s.onData})
	if err != nil {
		return nil, &capture.PermissionError{Device: deviceName, Err: fmt.Errorf("init capture device: %w", err)}
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, &capture.PermissionError{Device: deviceName, Err: fmt.Errorf("start capture device: %w", err)}
	}
	s.release = func() {
		if err := dev.Stop(); err != nil {
			log.Warn().Err(err).Msg("Failed to stop capture device")
		}
		dev.Uninit()
	}

	log.Debug().
		Int("sampleRate", m.format.SampleRate).
		Int("channels", m.format.Channels).
		Dur("period", m.period).
		Msg("Capture device started")
	return s, nil
}

// Close releases the audio context. Streams must be closed first.
func (m *MalgoMicrophone) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx == nil {
		return
	}
	if err := m.ctx.Uninit(); err != nil {
		log.Warn().Err(err).Msg("Failed to release audio context")
	}
	m.ctx.Free()
	m.ctx = nil
}

// context initializes the backend once. A failed attempt is retried on the
// next Open so a device plugged in later can still be used.
func (m *MalgoMicrophone) context() (*malgo.AllocatedContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx != nil {
		return m.ctx, nil
	}
	cfg := malgo.ContextConfig{ThreadPriority: malgo.ThreadPriorityRealtime}
	actx, err := malgo.InitContext(nil, cfg, func(message string) {
		log.Debug().Str("backend", "miniaudio").Msg(strings.TrimSpace(message))
	})
	if err != nil {
		return nil, err
	}
	m.ctx = actx
	return actx, nil
}

// deviceStream hands audio-thread buffers to the recording pump. The
// callback never blocks: when the queue is full the period is dropped.
type deviceStream struct {
	format  capture.Format
	chunks  chan []byte
	release func()

	mu      sync.Mutex
	closed  bool
	dropped int
	once    sync.Once
}

func newDeviceStream(format capture.Format) *deviceStream {
	return &deviceStream{format: format, chunks: make(chan []byte, queueDepth)}
}

func (s *deviceStream) Format() capture.Format { return s.format }
func (s *deviceStream) Chunks() <-chan []byte  { return s.chunks }

// onData runs on the audio thread. input is only valid during the call.
func (s *deviceStream) onData(_, input []byte, _ uint32) {
	if len(input) == 0 {
		return
	}
	chunk := make([]byte, len(input))
	copy(chunk, input)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.chunks <- chunk:
	default:
		s.dropped++
	}
}

// Close stops the device before closing Chunks, so no callback can send
// on a closed channel.
func (s *deviceStream) Close() error {
	s.once.Do(func() {
		if s.release != nil {
			s.release()
		}
		s.mu.Lock()
		s.closed = true
		dropped := s.dropped
		close(s.chunks)
		s.mu.Unlock()

		if dropped > 0 {
			log.Warn().Int("periods", dropped).Msg("Capture queue overflowed, audio dropped")
		}
	})
	return nil
}
