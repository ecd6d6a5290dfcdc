// Package backendtest provides a scripted in-process interview backend that
// speaks the live channel protocol, for tests and local runs without the real
// speech services.
//
// Each audio message received is answered with the next scripted turn:
// progress-start frames followed by recognized text, reply text and
// synthesized audio, in the order the real backend sends them.
package backendtest

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"entrevistas-live-client/internal/models"
)

// Turn scripts the backend's answer to one audio message.
type Turn struct {
	Recognized string // candidate text
	Reply      string // assistant text
	Audio      []byte // synthesized audio, skipped when nil
	Error      string // when set, the turn fails after recognition starts
	Stall      bool   // when set, only the recognition start is sent
	Delay      time.Duration
}

// DefaultTurns provides sample turns for simulation.
var DefaultTurns = []Turn{
	{
		Recognized: "Tengo cinco años de experiencia con Go",
		Reply:      "Perfecto. ¿Qué proyecto te hizo crecer más?",
	},
	{
		Recognized: "Migré un monolito a servicios",
		Reply:      "Interesante. ¿Cómo manejaste la consistencia de datos?",
	},
	{
		Recognized: "Con eventos y sagas",
		Reply:      "Gracias, con esto terminamos la práctica.",
	},
}

// DefaultGreeting is the opening remark sent when a channel opens.
const DefaultGreeting = "Hola, soy tu entrevistadora. Cuéntame sobre ti."

// Server is a fake interview backend listening on an httptest server.
type Server struct {
	// URL is the live channel address, e.g. ws://127.0.0.1:1234/ws.
	URL string
	// HTTPURL is the base address for the HTTP endpoints.
	HTTPURL string

	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	greeting string
	audio    []byte
	turns    []Turn
	turnIdx  int
	sessions []string
	received []models.ClientMessage
	conns    []*peer
	notify   chan struct{}
}

type peer struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (p *peer) send(msg models.ServerMessage) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.WriteJSON(msg)
}

// Option configures a Server.
type Option func(*Server)

// WithGreeting overrides the opening remark. An empty greeting disables it.
func WithGreeting(text string) Option {
	return func(s *Server) { s.greeting = text }
}

// WithTurns replaces the scripted turns. Turns are used in order and cycle.
func WithTurns(turns ...Turn) Option {
	return func(s *Server) { s.turns = turns }
}

// WithAudio sets the synthesized audio attached to the greeting and to turns
// that carry no audio of their own.
func WithAudio(audio []byte) Option {
	return func(s *Server) { s.audio = audio }
}

// New starts a fake backend. Call Close when done.
func New(opts ...Option) *Server {
	s := &Server{
		greeting: DefaultGreeting,
		turns:    DefaultTurns,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		notify:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleLive)
	mux.HandleFunc("/api/preguntas", s.handleCatalog)

	s.srv = httptest.NewServer(mux)
	s.HTTPURL = s.srv.URL
	s.URL = "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws"
	return s
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	p := &peer{conn: conn}

	s.mu.Lock()
	s.sessions = append(s.sessions, sessionID)
	s.conns = append(s.conns, p)
	greeting := s.greeting
	audio := s.audio
	s.mu.Unlock()
	s.signal()

	defer conn.Close()

	if greeting != "" {
		s.sendReply(p, greeting, audio)
	}

	for {
		var msg models.ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		s.mu.Lock()
		s.received = append(s.received, msg)
		audioMsg := msg.Type == models.KindAudio
		var turn Turn
		if audioMsg {
			turn = s.nextTurnLocked()
		}
		s.mu.Unlock()
		s.signal()

		if audioMsg {
			s.answer(p, turn)
		}
	}
}

func (s *Server) nextTurnLocked() Turn {
	if len(s.turns) == 0 {
		return Turn{}
	}
	t := s.turns[s.turnIdx%len(s.turns)]
	s.turnIdx++
	if t.Audio == nil {
		t.Audio = s.audio
	}
	return t
}

func (s *Server) answer(p *peer, t Turn) {
	if t.Delay > 0 {
		time.Sleep(t.Delay)
	}

	_ = p.send(models.ServerMessage{Type: models.KindRecognitionStart, Timestamp: now()})
	if t.Stall {
		return
	}
	if t.Error != "" {
		_ = p.send(models.ServerMessage{Type: models.KindError, Data: t.Error, Timestamp: now()})
		return
	}
	_ = p.send(models.ServerMessage{Type: models.KindRecognizedText, Data: t.Recognized, Timestamp: now()})
	s.sendReply(p, t.Reply, t.Audio)
}

func (s *Server) sendReply(p *peer, text string, audio []byte) {
	_ = p.send(models.ServerMessage{Type: models.KindReplyStart, Timestamp: now()})
	_ = p.send(models.ServerMessage{Type: models.KindReplyText, Data: text, Timestamp: now()})
	if audio == nil {
		return
	}
	_ = p.send(models.ServerMessage{Type: models.KindSynthesisStart, Timestamp: now()})
	_ = p.send(models.ServerMessage{
		Type:      models.KindSynthesizedAudio,
		Data:      base64.StdEncoding.EncodeToString(audio),
		Timestamp: now(),
	})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode([]models.CatalogQuestion{
		{Question: "Cuéntame sobre ti", Category: "general"},
		{Question: "¿Por qué quieres este puesto?", Category: "motivación"},
	})
}

// Push sends an arbitrary frame on the most recent channel.
func (s *Server) Push(msg models.ServerMessage) error {
	p := s.latest()
	if p == nil {
		return websocket.ErrCloseSent
	}
	return p.send(msg)
}

// PushRaw sends raw bytes as a text frame on the most recent channel.
func (s *Server) PushRaw(data []byte) error {
	p := s.latest()
	if p == nil {
		return websocket.ErrCloseSent
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

// CloseChannels closes every open channel with a normal closure frame.
func (s *Server) CloseChannels() {
	for _, p := range s.peers() {
		p.writeMu.Lock()
		_ = p.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		p.writeMu.Unlock()
		_ = p.conn.Close()
	}
}

// DropChannels closes every open channel without a close frame.
func (s *Server) DropChannels() {
	for _, p := range s.peers() {
		_ = p.conn.Close()
	}
}

// Sessions returns the session ids of every channel opened so far.
func (s *Server) Sessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sessions...)
}

// Received returns every client message received so far.
func (s *Server) Received() []models.ClientMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ClientMessage(nil), s.received...)
}

// WaitFor polls cond until it holds or timeout elapses.
func (s *Server) WaitFor(timeout time.Duration, cond func(s *Server) bool) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if cond(s) {
			return true
		}
		select {
		case <-s.notify:
		case <-time.After(10 * time.Millisecond):
		case <-deadline.C:
			return cond(s)
		}
	}
}

// Close shuts the server down.
func (s *Server) Close() {
	s.DropChannels()
	s.srv.Close()
}

func (s *Server) latest() *peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.conns) == 0 {
		return nil
	}
	return s.conns[len(s.conns)-1]
}

func (s *Server) peers() []*peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*peer(nil), s.conns...)
}

func (s *Server) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func now() float64 {
	return float64(time.Now().UnixMilli()) / 1000
}
