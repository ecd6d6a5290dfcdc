// Package live orchestrates an interview session: it owns the session flags,
// routes channel events to the transcript and the player, guards the
// microphone while the backend is busy and turns failures into notices.
package live

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"entrevistas-live-client/internal/models"
	"entrevistas-live-client/internal/observability/logging"
	"entrevistas-live-client/internal/observability/metrics"
	"entrevistas-live-client/internal/service/capture"
	"entrevistas-live-client/internal/service/connection"
	"entrevistas-live-client/internal/service/playback"
	"entrevistas-live-client/internal/service/transcript"
)

var (
	ErrNotStarted = errors.New("interview not started")
	ErrBusy       = errors.New("backend is still processing")
	ErrClosed     = errors.New("live client is closed")
)

// DefaultProcessingTimeout bounds how long the processing flag may stay set
// without a completion from the backend.
const DefaultProcessingTimeout = 10 * time.Second

// Publisher receives transcript and session events. Optional.
type Publisher interface {
	PublishTurn(ctx context.Context, key string, event any) error
	PublishSession(ctx context.Context, key string, event any) error
}

// Config holds the session settings.
type Config struct {
	WSURL             string
	DialTimeout       time.Duration
	ProcessingTimeout time.Duration
	Limits            capture.Limits
}

// Deps are the devices and sinks the client drives.
type Deps struct {
	Microphone capture.Microphone
	Sink       playback.Sink
	Publisher  Publisher
}

// Status is reported to listeners on connection changes.
type Status struct {
	SessionID string
	Active    bool
	Connected bool
}

// Snapshot is a point-in-time view of the session.
type Snapshot struct {
	SessionID        string `json:"sessionId"`
	Connection       string `json:"connection"`
	Active           bool   `json:"active"`
	Connected        bool   `json:"connected"`
	Recording        bool   `json:"recording"`
	Processing       bool   `json:"processing"`
	Speaking         bool   `json:"speaking"`
	TranscriptLength int    `json:"transcriptLength"`
}

// Client is the live session orchestrator. All flag mutations happen under mu;
// dialling, microphone acquisition and decoding run without it.
type Client struct {
	cfg        Config
	conn       *connection.Manager
	recorder   *capture.Controller
	player     *playback.Player
	transcript *transcript.Assembler
	events     *eventQueue
	metrics    *metrics.Metrics
	logger     zerolog.Logger

	mu         sync.Mutex
	closed     bool
	active     bool
	connected  bool
	processing bool
	stage      models.Stage
	stageStart time.Time
	timer      *time.Timer
	timerGen   uint64
	notices    ring
	listeners  []func(Status)
}

// New wires a client from its devices.
func New(cfg Config, deps Deps) *Client {
	if cfg.ProcessingTimeout <= 0 {
		cfg.ProcessingTimeout = DefaultProcessingTimeout
	}

	c := &Client{
		cfg:        cfg,
		transcript: transcript.New(),
		player:     playback.NewPlayer(deps.Sink),
		events:     newEventQueue(deps.Publisher),
		metrics:    metrics.DefaultMetrics,
		logger:     logging.WithComponent("live"),
	}
	c.conn = connection.New(connection.Config{
		URL:         cfg.WSURL,
		DialTimeout: cfg.DialTimeout,
	}, c)
	c.recorder = capture.NewController(deps.Microphone, c.conn, c.player, cfg.Limits)
	c.transcript.OnAppend(c.publishTurn)

	return c
}

// OnStatus registers a listener for connection changes.
func (c *Client) OnStatus(fn func(Status)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// StartInterview discards any session state and opens a channel with a new session id.
func (c *Client) StartInterview(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}
	c.mu.Unlock()

	c.recorder.Cancel()
	c.player.Stop()
	c.transcript.Clear()

	c.mu.Lock()
	c.clearProcessingLocked()
	c.active = true
	c.mu.Unlock()

	c.metrics.RecordSessionStarted()

	sessionID, err := c.conn.Connect(ctx, true)
	if err != nil {
		c.mu.Lock()
		c.active = false
		c.connected = false
		c.noticeLocked(err)
		c.mu.Unlock()
		c.notifyStatus()
		c.events.session(models.EventSessionError, "", err.Error())
		return "", fmt.Errorf("start interview: %w", err)
	}

	c.logger.Info().Str("sessionId", sessionID).Msg("Interview started")
	return sessionID, nil
}

// ToggleMic starts recording when idle and stops it when recording.
func (c *Client) ToggleMic(ctx context.Context) error {
	if c.recorder.IsRecording() {
		return c.ReleaseMic(ctx)
	}
	return c.PressMic(ctx)
}

// PressMic starts a hold-to-talk recording.
func (c *Client) PressMic(ctx context.Context) error {
	if err := c.guard("press"); err != nil {
		return err
	}

	if err := c.recorder.StartRecording(ctx); err != nil {
		if !errors.Is(err, capture.ErrAlreadyRecording) && !errors.Is(err, capture.ErrCancelled) {
			c.mu.Lock()
			c.noticeLocked(err)
			c.mu.Unlock()
		}
		return err
	}
	return nil
}

// ReleaseMic ends the recording and sends it as one audio unit.
func (c *Client) ReleaseMic(ctx context.Context) error {
	if err := c.guard("release"); err != nil {
		return err
	}

	unit, err := c.recorder.StopRecording(ctx)
	if err != nil {
		if !errors.Is(err, capture.ErrNotRecording) {
			c.mu.Lock()
			c.noticeLocked(err)
			c.mu.Unlock()
		}
		return err
	}

	c.logger.Debug().
		Int("bytes", unit.Bytes).
		Dur("duration", unit.Duration).
		Msg("Answer sent")
	return nil
}

// guard rejects microphone actions outside an active, idle session.
func (c *Client) guard(action string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		c.metrics.RecordRecordingRejected("not_started")
		return ErrNotStarted
	}
	if c.processing {
		c.metrics.RecordRecordingRejected("busy")
		c.logger.Debug().Str("action", action).Msg("Microphone action ignored while processing")
		return ErrBusy
	}
	return nil
}

// ClearTranscript empties the conversation log.
func (c *Client) ClearTranscript() {
	c.transcript.Clear()
}

// Transcript returns the conversation so far, oldest first.
func (c *Client) Transcript() []transcript.Entry {
	return c.transcript.Snapshot()
}

// Notices returns the most recent notices, oldest first.
func (c *Client) Notices() []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notices.list()
}

// Snapshot returns the current session state.
func (c *Client) Snapshot() Snapshot {
	recording := c.recorder.IsRecording()
	speaking := c.player.IsSpeaking()

	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		SessionID:        c.conn.SessionID(),
		Connection:       c.conn.State().String(),
		Active:           c.active,
		Connected:        c.connected,
		Recording:        recording,
		Processing:       c.processing,
		Speaking:         speaking,
		TranscriptLength: c.transcript.Len(),
	}
}

// Close ends the session and releases the microphone, the player and the channel.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.clearProcessingLocked()
	c.mu.Unlock()

	sessionID := c.conn.SessionID()
	c.recorder.Cancel()
	c.player.Stop()
	err := c.conn.Close()

	c.mu.Lock()
	wasActive := c.active
	c.active = false
	c.connected = false
	c.mu.Unlock()

	if wasActive {
		c.notifyStatus()
		c.events.session(models.EventSessionClosed, sessionID, "client shutdown")
	}
	c.events.close()
	return err
}

// --- connection.Handler implementation ---

func (c *Client) OnOpen(sessionID string) {
	c.mu.Lock()
	c.active = true
	c.connected = true
	c.mu.Unlock()

	c.notifyStatus()
	c.events.session(models.EventSessionStarted, sessionID, "")
}

func (c *Client) OnProgress(stage models.Stage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.processing = true
	c.stage = stage
	c.stageStart = time.Now()
	c.armTimerLocked()
}

func (c *Client) OnRecognizedText(text string) {
	c.transcript.AppendCandidateTurn(text)
	c.completeStep()
}

func (c *Client) OnReplyText(text string) {
	c.transcript.AppendAssistantTurn(text)
	c.completeStep()
}

func (c *Client) OnSynthesizedAudio(payload string) {
	c.completeStep()
	if err := c.player.Play(payload); err != nil {
		c.logger.Warn().Err(err).Msg("Reply audio not played")
	}
}

func (c *Client) OnServerError(err *connection.ServerError) {
	c.player.Stop()

	c.mu.Lock()
	c.clearProcessingLocked()
	c.noticeLocked(err)
	c.mu.Unlock()
}

func (c *Client) OnDisconnect(sessionID string, err error) {
	// a close racing with a newer session belongs to the old one
	if current := c.conn.SessionID(); current != sessionID {
		c.logger.Debug().Str("sessionId", sessionID).Str("current", current).Msg("Ignoring disconnect of replaced session")
		return
	}
	c.recorder.Cancel()

	c.mu.Lock()
	c.active = false
	c.connected = false
	c.clearProcessingLocked()
	if err != nil {
		c.noticeLocked(err)
	}
	c.mu.Unlock()

	c.notifyStatus()
	if err != nil {
		c.events.session(models.EventSessionError, sessionID, err.Error())
		return
	}
	c.events.session(models.EventSessionClosed, sessionID, "closed by backend")
}

// --- processing flag ---

func (c *Client) completeStep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.processing {
		c.metrics.RecordProcessingLatency(string(c.stage), time.Since(c.stageStart).Seconds())
	}
	c.clearProcessingLocked()
}

func (c *Client) clearProcessingLocked() {
	c.processing = false
	c.stage = ""
	c.disarmTimerLocked()
}

func (c *Client) armTimerLocked() {
	c.disarmTimerLocked()
	gen := c.timerGen
	c.timer = time.AfterFunc(c.cfg.ProcessingTimeout, func() {
		c.processingExpired(gen)
	})
}

func (c *Client) disarmTimerLocked() {
	c.timerGen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Client) processingExpired(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// a completion or a newer progress-start got there first
	if gen != c.timerGen || !c.processing {
		return
	}
	stage := c.stage
	c.processing = false
	c.stage = ""
	c.timer = nil

	c.metrics.RecordProcessingTimeout()
	c.addNoticeLocked(NoticeLiveness,
		fmt.Sprintf("no answer from the interviewer after %s, you can try again", c.cfg.ProcessingTimeout))
	c.logger.Warn().Str("stage", string(stage)).Msg("Processing timed out")
}

// --- feedback ---

func (c *Client) noticeLocked(err error) {
	kind, ok := noticeKindOf(err)
	if !ok {
		c.logger.Error().Err(err).Msg("Unclassified error")
		return
	}
	msg := err.Error()
	var srvErr *connection.ServerError
	if errors.As(err, &srvErr) {
		msg = srvErr.Message
	}
	c.addNoticeLocked(kind, msg)
}

func (c *Client) addNoticeLocked(kind NoticeKind, msg string) {
	c.notices.add(Notice{Kind: kind, Message: msg, Time: time.Now()})
	c.metrics.RecordNotice(string(kind))
	c.logger.Warn().Str("kind", string(kind)).Str("message", msg).Msg("Notice")
}

func (c *Client) notifyStatus() {
	c.mu.Lock()
	st := Status{SessionID: c.conn.SessionID(), Active: c.active, Connected: c.connected}
	listeners := append([]func(Status){}, c.listeners...)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(st)
	}
}

func (c *Client) publishTurn(seq int, e transcript.Entry) {
	c.events.turn(models.TurnEvent{
		EventType: models.EventTurn,
		SessionID: c.conn.SessionID(),
		Sequence:  seq,
		Role:      e.Role,
		Text:      e.Text,
		Timestamp: e.Timestamp.UnixMilli(),
	})
}
