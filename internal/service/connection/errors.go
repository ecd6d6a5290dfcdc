package connection

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected = errors.New("live channel is not open")
	ErrClosed       = errors.New("connection manager is closed")
)

// ConnectionError reports a failed dial or an unexpectedly lost channel.
type ConnectionError struct {
	Op  string // dial, read
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("live channel %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TransmissionError reports an audio unit that could not be sent.
type TransmissionError struct {
	Err error
}

func (e *TransmissionError) Error() string {
	return fmt.Sprintf("audio not sent: %v", e.Err)
}

func (e *TransmissionError) Unwrap() error { return e.Err }

// ServerError carries a failure reported by the backend on the channel.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "backend error: " + e.Message
}
