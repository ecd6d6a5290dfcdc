package live

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"entrevistas-live-client/internal/models"
)

const (
	eventQueueSize = 256
	publishTimeout = 5 * time.Second
)

// eventQueue publishes in order on its own goroutine so a slow broker never
// stalls the channel's read loop. Events are dropped when the queue is full.
type eventQueue struct {
	pub  Publisher
	ch   chan func(context.Context)
	done chan struct{}
	once sync.Once
	mu   sync.RWMutex
	shut bool
}

func newEventQueue(pub Publisher) *eventQueue {
	q := &eventQueue{pub: pub, done: make(chan struct{})}
	if pub == nil {
		close(q.done)
		return q
	}
	q.ch = make(chan func(context.Context), eventQueueSize)
	go q.run()
	return q
}

func (q *eventQueue) run() {
	defer close(q.done)
	for fn := range q.ch {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		fn(ctx)
		cancel()
	}
}

func (q *eventQueue) enqueue(fn func(context.Context)) {
	if q.pub == nil {
		return
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.shut {
		return
	}
	select {
	case q.ch <- fn:
	default:
		log.Warn().Msg("Event queue full, dropping event")
	}
}

func (q *eventQueue) turn(ev models.TurnEvent) {
	q.enqueue(func(ctx context.Context) {
		if err := q.pub.PublishTurn(ctx, ev.SessionID, ev); err != nil {
			log.Error().Err(err).Str("sessionId", ev.SessionID).Int("sequence", ev.Sequence).Msg("Failed to publish turn")
		}
	})
}

func (q *eventQueue) session(eventType, sessionID, reason string) {
	ev := models.SessionEvent{
		EventType: eventType,
		SessionID: sessionID,
		Reason:    reason,
		Timestamp: time.Now().UnixMilli(),
	}
	q.enqueue(func(ctx context.Context) {
		if err := q.pub.PublishSession(ctx, sessionID, ev); err != nil {
			log.Error().Err(err).Str("sessionId", sessionID).Str("eventType", eventType).Msg("Failed to publish session event")
		}
	})
}

// close drains pending events and stops the worker.
func (q *eventQueue) close() {
	q.once.Do(func() {
		if q.ch != nil {
			q.mu.Lock()
			q.shut = true
			close(q.ch)
			q.mu.Unlock()
		}
	})
	<-q.done
}
