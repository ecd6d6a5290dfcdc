package playback

import (
	"sync"
	"time"

	"github.com/gopxl/beep"
)

// DiscardSink consumes streams at their natural pace without producing sound.
// Used on hosts without an audio device.
type DiscardSink struct {
	mu   sync.Mutex
	tick time.Duration
}

func NewDiscardSink() *DiscardSink {
	return &DiscardSink{tick: 50 * time.Millisecond}
}

func (d *DiscardSink) Play(format beep.Format, st beep.Streamer) error {
	go d.drain(format, st)
	return nil
}

func (d *DiscardSink) drain(format beep.Format, st beep.Streamer) {
	buf := make([][2]float64, format.SampleRate.N(d.tick))
	ticker := time.NewTicker(d.tick)
	defer ticker.Stop()

	for {
		d.mu.Lock()
		_, ok := st.Stream(buf)
		d.mu.Unlock()
		if !ok {
			return
		}
		<-ticker.C
	}
}

func (d *DiscardSink) Lock()   { d.mu.Lock() }
func (d *DiscardSink) Unlock() { d.mu.Unlock() }
