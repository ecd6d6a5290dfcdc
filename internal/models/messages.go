// Package models defines the wire messages and events of the live interview client.
package models

// Message kinds pushed by the backend on the live channel.
const (
	KindRecognitionStart = "stt_start"
	KindReplyStart       = "chat_start"
	KindSynthesisStart   = "tts_start"
	KindRecognizedText   = "stt_result"
	KindReplyText        = "chat_response"
	KindSynthesizedAudio = "tts_result"
	KindError            = "error"
)

// KindAudio is the only message kind the client sends.
const KindAudio = "audio"

// ClientMessage is a client -> server frame on the live channel.
type ClientMessage struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// ServerMessage is a server -> client frame on the live channel.
// Data carries text, base64 audio or an error message depending on Type.
type ServerMessage struct {
	Type      string  `json:"type"`
	Data      string  `json:"data,omitempty"`
	Timestamp float64 `json:"timestamp,omitempty"`
}

// Stage identifies which server-side step a progress-start message announces.
type Stage string

const (
	StageRecognition Stage = "recognition"
	StageReply       Stage = "reply"
	StageSynthesis   Stage = "synthesis"
)

// StageOf maps a progress-start kind to its stage.
func StageOf(kind string) (Stage, bool) {
	switch kind {
	case KindRecognitionStart:
		return StageRecognition, true
	case KindReplyStart:
		return StageReply, true
	case KindSynthesisStart:
		return StageSynthesis, true
	default:
		return "", false
	}
}
