// Package transcript keeps the ordered conversation log of a session.
package transcript

import (
	"iter"
	"sync"
	"time"

	"entrevistas-live-client/internal/models"
	"entrevistas-live-client/internal/observability/metrics"
)

// Entry is one turn of the conversation.
type Entry = models.TranscriptEntry

// Observer is notified after every append with the entry's 1-based position.
type Observer func(seq int, e Entry)

// Assembler is an append-only log; only Clear removes entries.
// Thread-safe for concurrent access.
type Assembler struct {
	mu       sync.RWMutex
	entries  []Entry
	observer Observer
	now      func() time.Time
	metrics  *metrics.Metrics
}

func New() *Assembler {
	return &Assembler{now: time.Now, metrics: metrics.DefaultMetrics}
}

// OnAppend registers the observer. It runs outside the assembler's lock.
func (a *Assembler) OnAppend(fn Observer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observer = fn
}

// AppendAssistantTurn records the interviewer's reply.
func (a *Assembler) AppendAssistantTurn(text string) {
	a.append(models.RoleAssistant, text)
}

// AppendCandidateTurn records the recognized speech of the candidate.
func (a *Assembler) AppendCandidateTurn(text string) {
	a.append(models.RoleCandidate, text)
}

func (a *Assembler) append(role models.Role, text string) {
	a.mu.Lock()
	e := Entry{Role: role, Text: text, Timestamp: a.now()}
	a.entries = append(a.entries, e)
	seq := len(a.entries)
	obs := a.observer
	a.mu.Unlock()

	a.metrics.RecordTurn(string(role))
	if obs != nil {
		obs(seq, e)
	}
}

// Clear removes every entry.
func (a *Assembler) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = nil
}

func (a *Assembler) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.entries)
}

// Snapshot returns a copy of the entries in insertion order.
func (a *Assembler) Snapshot() []Entry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Entry, len(a.entries))
	copy(out, a.entries)
	return out
}

// All yields the entries in insertion order. Each iteration sees the log as
// it was when the iteration began.
func (a *Assembler) All() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for _, e := range a.Snapshot() {
			if !yield(e) {
				return
			}
		}
	}
}
