package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"entrevistas-live-client/internal/api/rest"
	"entrevistas-live-client/internal/config"
	"entrevistas-live-client/internal/events"
	"entrevistas-live-client/internal/models"
	"entrevistas-live-client/internal/observability/logging"
	"entrevistas-live-client/internal/service/capture"
	"entrevistas-live-client/internal/service/live"
	"entrevistas-live-client/internal/service/playback"
	"entrevistas-live-client/internal/service/transcript"
)

// Interview is the session surface exposed by the control API.
type Interview interface {
	StartInterview(ctx context.Context) (string, error)
	ToggleMic(ctx context.Context) error
	PressMic(ctx context.Context) error
	ReleaseMic(ctx context.Context) error
	ClearTranscript()
	Transcript() []transcript.Entry
	Notices() []live.Notice
	Snapshot() live.Snapshot
}

// Questions is the question generation surface exposed by the control API.
type Questions interface {
	Generate(ctx context.Context, req models.GenerateRequest) (*models.GenerateResponse, error)
	Catalog(ctx context.Context) ([]models.CatalogQuestion, error)
}

// Application holds process-wide state for the live client.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration

	Interview Interview
	Questions Questions

	live      *live.Client
	publisher *events.Publisher
}

// New constructs the application and wires its components from cfg. The
// caller owns mic and sink and releases them after Shutdown.
func New(cfg *config.Configuration, mic capture.Microphone, sink playback.Sink) *Application {
	a := &Application{
		Cfg: cfg,
	}
	a.setupLogger()

	a.publisher = events.New(&events.Config{
		Enabled:       cfg.Kafka.Enabled,
		Brokers:       cfg.Kafka.Brokers,
		TopicTurns:    cfg.Kafka.TopicTurns,
		TopicSessions: cfg.Kafka.TopicSessions,
		Principal:     cfg.Kafka.Principal,
	})

	a.live = live.New(live.Config{
		WSURL:             cfg.Backend.WSURL,
		DialTimeout:       cfg.Session.DialTimeout,
		ProcessingTimeout: cfg.Session.ProcessingTimeout,
		Limits: capture.Limits{
			MaxBytes:    cfg.Audio.MaxBytes,
			MaxDuration: cfg.Audio.MaxDuration,
		},
	}, live.Deps{
		Microphone: mic,
		Sink:       sink,
		Publisher:  a.publisher,
	})
	a.Interview = a.live

	a.Questions = rest.NewClient(rest.Config{
		GeneratorURL: cfg.Backend.GeneratorURL,
		CatalogURL:   cfg.Backend.APIURL,
		Timeout:      cfg.Backend.HTTPTimeout,
	})

	a.Logger.Info().
		Str("wsUrl", cfg.Backend.WSURL).
		Bool("kafkaEnabled", cfg.Kafka.Enabled).
		Bool("playbackEnabled", cfg.Audio.PlaybackEnabled).
		Msg("Live client application created")
	return a
}

// setupLogger configures the process logger from the observability settings.
func (a *Application) setupLogger() {
	logging.Init(logging.Config{
		Level:  a.Cfg.Observability.LogLevel,
		Format: a.Cfg.Observability.LogFormat,
	})

	a.Logger = logging.Logger().With().
		Str("service", a.Cfg.Service.Principal).
		Str("component", "application").
		Logger()
}

// OnStatus forwards session status changes of the live client.
func (a *Application) OnStatus(fn func(live.Status)) {
	if a.live != nil {
		a.live.OnStatus(fn)
	}
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() error {
	a.StartupTime = time.Now().UTC()
	a.Logger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Live client starting")
	return nil
}

// Started reports whether Start has run.
func (a *Application) Started() bool {
	return !a.StartupTime.IsZero()
}

// Shutdown closes the session and flushes pending events.
func (a *Application) Shutdown() {
	a.Logger.Info().Msg("Live client shutting down")

	if a.live != nil {
		if err := a.live.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close live session")
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event publisher")
		}
	}
}
