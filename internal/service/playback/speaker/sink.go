// Package speaker plays synthesized replies on the default output device.
// It needs cgo and the platform audio headers; headless builds leave it out.
package speaker

import (
	"sync"
	"time"

	"github.com/gopxl/beep"
	beepspeaker "github.com/gopxl/beep/speaker"
)

// Sink plays through the default audio device. The device is opened at the
// sample rate of the first stream; later streams are resampled.
type Sink struct {
	BufferDuration time.Duration

	once    sync.Once
	rate    beep.SampleRate
	initErr error
}

func NewSink() *Sink {
	return &Sink{BufferDuration: 100 * time.Millisecond}
}

func (s *Sink) Play(format beep.Format, st beep.Streamer) error {
	s.once.Do(func() {
		s.rate = format.SampleRate
		s.initErr = beepspeaker.Init(format.SampleRate, format.SampleRate.N(s.BufferDuration))
	})
	if s.initErr != nil {
		return s.initErr
	}
	if format.SampleRate != s.rate {
		st = beep.Resample(4, format.SampleRate, s.rate, st)
	}
	beepspeaker.Play(st)
	return nil
}

func (s *Sink) Lock()   { beepspeaker.Lock() }
func (s *Sink) Unlock() { beepspeaker.Unlock() }

// Close drops everything still playing.
func (s *Sink) Close() {
	if s.initErr == nil && s.rate != 0 {
		beepspeaker.Clear()
	}
}
