package audiodev

import (
	"testing"
	"time"

	"entrevistas-live-client/internal/config"
	"entrevistas-live-client/internal/service/capture"
	"entrevistas-live-client/internal/service/playback"
)

func TestOpen_SourcePathOverridesDevice(t *testing.T) {
	d := Open(config.AudioConfig{SourcePath: "/tmp/answer.wav", ChunkBytes: 1600})
	defer d.Close()

	mic, ok := d.Microphone.(*capture.WAVMicrophone)
	if !ok {
		t.Fatalf("expected *capture.WAVMicrophone, got %T", d.Microphone)
	}
	if mic.Path != "/tmp/answer.wav" || mic.ChunkBytes != 1600 {
		t.Errorf("unexpected microphone %+v", mic)
	}
	if len(d.closers) != 0 {
		t.Errorf("expected nothing to release, got %d closers", len(d.closers))
	}
}

func TestOpen_PlaybackDisabledDiscards(t *testing.T) {
	d := Open(config.AudioConfig{SourcePath: "/tmp/answer.wav", PlaybackEnabled: false})
	defer d.Close()

	if _, ok := d.Sink.(*playback.DiscardSink); !ok {
		t.Errorf("expected *playback.DiscardSink, got %T", d.Sink)
	}
}

func TestOpen_DefaultsToCaptureDevice(t *testing.T) {
	d := Open(config.AudioConfig{ChunkBytes: 3200})
	defer d.Close()

	if _, ok := d.Microphone.(*capture.WAVMicrophone); ok {
		t.Error("expected the capture device when no source path is set")
	}
	if d.Microphone == nil {
		t.Error("expected a microphone")
	}
}

func TestDevicesClose_ReverseOrder(t *testing.T) {
	var order []int
	d := &Devices{}
	d.add(func() { order = append(order, 1) })
	d.add(nil)
	d.add(func() { order = append(order, 2) })

	d.Close()
	d.Close()

	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Errorf("expected [2 1], got %v", order)
	}
}

func TestPeriodOf(t *testing.T) {
	tests := []struct {
		name       string
		chunkBytes int
		want       time.Duration
	}{
		{"default chunk", 3200, 100 * time.Millisecond},
		{"small chunk clamps", 10, minPeriod},
		{"large chunk clamps", 64000, maxPeriod},
		{"unset", 0, minPeriod},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := periodOf(capture.DefaultFormat, tt.chunkBytes); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
