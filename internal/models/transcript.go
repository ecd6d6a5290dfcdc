package models

import "time"

// Role attributes a transcript turn to one side of the conversation.
type Role string

const (
	RoleAssistant Role = "assistant"
	RoleCandidate Role = "candidate"
)

// TranscriptEntry is one turn of the conversation log.
type TranscriptEntry struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// TurnEvent is published for every transcript entry appended during a session.
type TurnEvent struct {
	EventType string `json:"eventType"`
	SessionID string `json:"sessionId"`
	Sequence  int    `json:"sequence"`
	Role      Role   `json:"role"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// SessionEvent is published on session lifecycle changes.
type SessionEvent struct {
	EventType string `json:"eventType"`
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Event types.
const (
	EventTurn           = "interview.transcript.turn"
	EventSessionStarted = "interview.session.started"
	EventSessionClosed  = "interview.session.closed"
	EventSessionError   = "interview.session.error"
)
