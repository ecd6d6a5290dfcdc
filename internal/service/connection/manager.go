// Package connection owns the live channel to the interview backend.
package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"entrevistas-live-client/internal/models"
	"entrevistas-live-client/internal/observability/logging"
	"entrevistas-live-client/internal/observability/metrics"
	"entrevistas-live-client/internal/schema"
	"entrevistas-live-client/internal/service/session"
)

const writeTimeout = 10 * time.Second

// Handler receives the events of the current session's channel.
// Calls are made from a single goroutine per channel, in arrival order.
type Handler interface {
	// OnOpen is called once the channel of sessionID is open.
	OnOpen(sessionID string)

	// OnProgress announces that the backend started a processing step.
	OnProgress(stage models.Stage)

	// OnRecognizedText delivers the transcription of the candidate's audio.
	OnRecognizedText(text string)

	// OnReplyText delivers the interviewer's reply.
	OnReplyText(text string)

	// OnSynthesizedAudio delivers the base64 audio of the reply.
	OnSynthesizedAudio(payload string)

	// OnServerError is called when the backend reports a failure.
	OnServerError(err *ServerError)

	// OnDisconnect is called when the channel of sessionID closes. err is nil
	// for a normal closure and a *ConnectionError otherwise.
	OnDisconnect(sessionID string, err error)
}

// Config holds the live channel settings.
type Config struct {
	URL         string
	DialTimeout time.Duration
	Dialer      *websocket.Dialer
}

// Manager keeps at most one open channel, tagged with the session id.
// Reconnection is explicit; a lost channel is never redialled.
type Manager struct {
	cfg       Config
	handler   Handler
	ids       *session.Generator
	lifecycle *session.Lifecycle
	validator *schema.Validator
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	connectMu sync.Mutex
	mu        sync.Mutex
	current   *channel
}

type channel struct {
	conn      *websocket.Conn
	gen       uint64
	sessionID string
	writeMu   sync.Mutex
	closing   atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// New creates a manager delivering events to handler.
func New(cfg Config, handler Handler) *Manager {
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &Manager{
		cfg:       cfg,
		handler:   handler,
		ids:       session.NewGenerator(),
		lifecycle: session.NewLifecycle(),
		validator: schema.New(),
		metrics:   metrics.DefaultMetrics,
		logger:    logging.WithComponent("connection"),
	}
}

// SessionID returns the id of the current session, empty before the first Connect.
func (m *Manager) SessionID() string {
	return m.lifecycle.SessionId()
}

// State returns the channel state of the current session.
func (m *Manager) State() session.State {
	return m.lifecycle.State()
}

// IsConnected reports whether the channel is open.
func (m *Manager) IsConnected() bool {
	return m.lifecycle.IsConnected()
}

// Connect opens a channel. A new session id is generated when forceNewSession
// is set or no session exists yet. Any previous channel is closed first.
func (m *Manager) Connect(ctx context.Context, forceNewSession bool) (string, error) {
	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	sessionID := m.lifecycle.SessionId()
	if forceNewSession || sessionID == "" {
		sessionID = m.ids.Next()
	}

	gen, err := m.lifecycle.Begin(sessionID)
	if err != nil {
		return "", err
	}
	// the old generation is stale now, its close is not reported
	m.closeCurrent()

	logger := logging.WithSession("connection", sessionID)

	target, err := m.endpoint(sessionID)
	if err != nil {
		m.lifecycle.Lost(gen)
		return "", &ConnectionError{Op: "dial", URL: m.cfg.URL, Err: err}
	}

	dialCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && m.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, m.cfg.DialTimeout)
		defer cancel()
	}

	conn, resp, err := m.cfg.Dialer.DialContext(dialCtx, target, nil)
	if err != nil {
		m.lifecycle.Lost(gen)
		m.metrics.RecordConnectionError()
		if resp != nil {
			err = fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		logger.Error().Err(err).Str("url", m.cfg.URL).Msg("Failed to open live channel")
		return "", &ConnectionError{Op: "dial", URL: m.cfg.URL, Err: err}
	}

	if err := m.lifecycle.Opened(gen); err != nil {
		_ = conn.Close()
		return "", &ConnectionError{Op: "dial", URL: m.cfg.URL, Err: err}
	}

	ch := &channel{
		conn:      conn,
		gen:       gen,
		sessionID: sessionID,
		done:      make(chan struct{}),
	}
	m.mu.Lock()
	m.current = ch
	m.mu.Unlock()

	m.metrics.RecordConnectionState(true)
	logger.Info().Uint64("generation", gen).Msg("Live channel open")

	m.handler.OnOpen(sessionID)
	go m.readLoop(ch)

	return sessionID, nil
}

func (m *Manager) endpoint(sessionID string) (string, error) {
	u, err := url.Parse(m.cfg.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("session_id", sessionID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// SendAudio transmits one base64 encoded audio unit if and only if the
// channel is open.
func (m *Manager) SendAudio(encoded string) error {
	msg := models.ClientMessage{Type: models.KindAudio, Data: encoded}
	if err := m.validator.Validate(msg); err != nil {
		return &TransmissionError{Err: err}
	}

	m.mu.Lock()
	ch := m.current
	m.mu.Unlock()

	if ch == nil || ch.closing.Load() || !m.lifecycle.IsCurrent(ch.gen) || !m.lifecycle.IsConnected() {
		return &TransmissionError{Err: ErrNotConnected}
	}

	ch.writeMu.Lock()
	_ = ch.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err := ch.conn.WriteJSON(msg)
	ch.writeMu.Unlock()
	if err != nil {
		m.logger.Error().Err(err).Str("sessionId", ch.sessionID).Msg("Failed to send audio")
		return &TransmissionError{Err: err}
	}

	m.metrics.RecordAudioSent(len(encoded))
	m.logger.Debug().
		Str("sessionId", ch.sessionID).
		Int("encodedBytes", len(encoded)).
		Msg("Audio unit sent")
	return nil
}

// Close closes the channel with a normal closure. The manager cannot connect again.
func (m *Manager) Close() error {
	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	m.lifecycle.Close()
	m.closeCurrent()
	return nil
}

func (m *Manager) closeCurrent() {
	m.mu.Lock()
	ch := m.current
	m.current = nil
	m.mu.Unlock()

	if ch == nil {
		return
	}
	ch.close()
	m.metrics.RecordConnectionState(false)
}

func (ch *channel) close() {
	ch.closeOnce.Do(func() {
		ch.closing.Store(true)
		ch.writeMu.Lock()
		_ = ch.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(2*time.Second))
		ch.writeMu.Unlock()
		_ = ch.conn.Close()
	})
	<-ch.done
}

func (m *Manager) readLoop(ch *channel) {
	defer close(ch.done)

	logger := logging.WithSession("connection", ch.sessionID)

	for {
		_, data, err := ch.conn.ReadMessage()
		if err != nil {
			m.lost(ch, err, logger)
			return
		}

		if !m.lifecycle.IsCurrent(ch.gen) {
			m.metrics.RecordMessageDropped("stale")
			continue
		}

		var msg models.ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			m.metrics.RecordMessageDropped("malformed")
			logger.Warn().Err(err).Msg("Dropping malformed frame")
			continue
		}
		if err := m.validator.Validate(msg); err != nil {
			m.metrics.RecordMessageDropped("invalid")
			logger.Warn().Err(err).Str("kind", msg.Type).Msg("Dropping unexpected message")
			continue
		}

		m.metrics.RecordMessageReceived(msg.Type)
		m.dispatch(msg)
	}
}

func (m *Manager) dispatch(msg models.ServerMessage) {
	if stage, ok := models.StageOf(msg.Type); ok {
		m.handler.OnProgress(stage)
		return
	}

	switch msg.Type {
	case models.KindRecognizedText:
		m.handler.OnRecognizedText(msg.Data)
	case models.KindReplyText:
		m.handler.OnReplyText(msg.Data)
	case models.KindSynthesizedAudio:
		m.handler.OnSynthesizedAudio(msg.Data)
	case models.KindError:
		m.handler.OnServerError(&ServerError{Message: msg.Data})
	}
}

func (m *Manager) lost(ch *channel, err error, logger zerolog.Logger) {
	// replaced or closed by us: the new session must not see it
	if !m.lifecycle.Lost(ch.gen) {
		logger.Debug().Err(err).Msg("Replaced channel closed")
		return
	}

	m.mu.Lock()
	if m.current == ch {
		m.current = nil
	}
	m.mu.Unlock()
	m.metrics.RecordConnectionState(false)

	if ch.closing.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		logger.Info().Msg("Live channel closed")
		m.handler.OnDisconnect(ch.sessionID, nil)
		return
	}

	m.metrics.RecordConnectionError()
	logger.Warn().Err(err).Msg("Live channel lost")
	m.handler.OnDisconnect(ch.sessionID, &ConnectionError{Op: "read", URL: m.cfg.URL, Err: err})
}
