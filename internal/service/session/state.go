// Package session provides session id generation and the live channel lifecycle.
package session

import (
	"errors"
	"fmt"
	"sync"
)

// State represents the lifecycle state of the live channel.
type State int

const (
	// StateDisconnected - no channel, or the last one was lost.
	StateDisconnected State = iota
	// StateConnecting - dial in progress for the current session.
	StateConnecting
	// StateConnected - channel open, events flow.
	StateConnected
	// StateClosed - shut down by the owner. Terminal.
	StateClosed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true if the state is terminal.
func (s State) IsTerminal() bool {
	return s == StateClosed
}

var (
	ErrLifecycleClosed = errors.New("session lifecycle is closed")
	ErrStaleGeneration = errors.New("channel belongs to a replaced session")
	ErrNotConnecting   = errors.New("channel is not connecting")
)

// Lifecycle tracks the channel state of the current session.
// Thread-safe for concurrent access.
//
// Every Begin starts a new generation. Transitions reported with an older
// generation come from a replaced channel and are rejected, so a late close
// of the previous socket never marks the new session disconnected.
//
//	DISCONNECTED ── Begin ──→ CONNECTING ── Opened ──→ CONNECTED
//	      ↑                        │                        │
//	      └──────── Lost ──────────┴──────── Lost ──────────┘
//
// Close moves any state to CLOSED.
type Lifecycle struct {
	mu         sync.RWMutex
	sessionId  string
	generation uint64
	state      State
}

// NewLifecycle creates a lifecycle in DISCONNECTED state with no session.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: StateDisconnected}
}

func (l *Lifecycle) SessionId() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sessionId
}

func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

func (l *Lifecycle) Generation() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.generation
}

// IsCurrent reports whether gen is the latest generation.
func (l *Lifecycle) IsCurrent(gen uint64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return gen == l.generation && !l.state.IsTerminal()
}

// IsConnected returns true if the channel of the current session is open.
func (l *Lifecycle) IsConnected() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == StateConnected
}

// Begin starts a new generation for sessionId and moves to CONNECTING.
func (l *Lifecycle) Begin(sessionId string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.IsTerminal() {
		return 0, ErrLifecycleClosed
	}
	l.generation++
	l.sessionId = sessionId
	l.state = StateConnecting
	return l.generation, nil
}

// Opened transitions CONNECTING to CONNECTED for the given generation.
func (l *Lifecycle) Opened(gen uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case l.state.IsTerminal():
		return ErrLifecycleClosed
	case gen != l.generation:
		return ErrStaleGeneration
	case l.state != StateConnecting:
		return ErrNotConnecting
	}
	l.state = StateConnected
	return nil
}

// Lost records that the channel of generation gen failed or was closed by the peer.
// Returns true if the current session changed state, false for stale or
// already disconnected channels.
func (l *Lifecycle) Lost(gen uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.IsTerminal() || gen != l.generation || l.state == StateDisconnected {
		return false
	}
	l.state = StateDisconnected
	return true
}

// Close transitions to CLOSED. Idempotent.
func (l *Lifecycle) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = StateClosed
}
