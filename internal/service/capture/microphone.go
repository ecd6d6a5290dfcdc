package capture

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Microphone is an audio input device.
type Microphone interface {
	// Open acquires the device. Failures are reported as *PermissionError.
	Open(ctx context.Context) (Stream, error)
}

// Stream is an acquired microphone. Chunks is closed once the stream is
// closed and its goroutine has released the device.
type Stream interface {
	Format() Format
	Chunks() <-chan []byte
	Close() error
}

// PermissionError reports that the microphone could not be acquired.
type PermissionError struct {
	Device string
	Err    error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("microphone %s unavailable: %v", e.Device, e.Err)
}

func (e *PermissionError) Unwrap() error { return e.Err }

// WAVMicrophone plays a PCM WAV file as if it were spoken into a microphone.
// It stands in for a capture device on headless hosts.
type WAVMicrophone struct {
	Path       string
	ChunkBytes int
	// Realtime paces chunks at the audio's own rate.
	Realtime bool
}

// NewWAVMicrophone creates a file microphone that streams in real time.
func NewWAVMicrophone(path string, chunkBytes int) *WAVMicrophone {
	return &WAVMicrophone{Path: path, ChunkBytes: chunkBytes, Realtime: true}
}

func (m *WAVMicrophone) Open(ctx context.Context) (Stream, error) {
	if m.Path == "" {
		return nil, &PermissionError{Device: "wav", Err: os.ErrNotExist}
	}
	f, err := os.Open(m.Path)
	if err != nil {
		return nil, &PermissionError{Device: m.Path, Err: err}
	}

	format, err := ReadWAVHeader(f)
	if err != nil {
		f.Close()
		return nil, &PermissionError{Device: m.Path, Err: err}
	}

	chunk := m.ChunkBytes
	if chunk <= 0 {
		chunk = 3200
	}

	s := &wavStream{
		file:   f,
		format: format,
		chunks: make(chan []byte, 16),
		closed: make(chan struct{}),
	}
	go s.pump(chunk, m.Realtime)

	log.Debug().
		Str("path", m.Path).
		Int("sampleRate", format.SampleRate).
		Int("channels", format.Channels).
		Int("bitsPerSample", format.BitsPerSample).
		Msg("WAV microphone opened")

	return s, nil
}

type wavStream struct {
	file      *os.File
	format    Format
	chunks    chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func (s *wavStream) Format() Format         { return s.format }
func (s *wavStream) Chunks() <-chan []byte { return s.chunks }

func (s *wavStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
	return nil
}

func (s *wavStream) pump(chunkBytes int, realtime bool) {
	defer close(s.chunks)
	defer s.file.Close()

	interval := s.format.Duration(chunkBytes)
	var ticker *time.Ticker
	if realtime && interval > 0 {
		ticker = time.NewTicker(interval)
		defer ticker.Stop()
	}

	for {
		buf := make([]byte, chunkBytes)
		n, err := io.ReadFull(s.file, buf)
		if n > 0 {
			select {
			case s.chunks <- buf[:n]:
			case <-s.closed:
				return
			}
		}
		if err != nil {
			// EOF: the speaker went quiet, the stream stays open until Close
			<-s.closed
			return
		}
		if ticker != nil {
			select {
			case <-ticker.C:
			case <-s.closed:
				return
			}
		}
	}
}
