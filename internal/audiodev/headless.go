//go:build headless

package audiodev

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"entrevistas-live-client/internal/service/capture"
	"entrevistas-live-client/internal/service/playback"
)

var errNoDevice = errors.New("built without audio device support")

// noDevice refuses every recording; set AUDIO_SOURCE_PATH instead.
type noDevice struct{}

func (noDevice) Open(context.Context) (capture.Stream, error) {
	return nil, &capture.PermissionError{Device: "default", Err: errNoDevice}
}

func inputDevice(capture.Format, time.Duration) (capture.Microphone, func()) {
	return noDevice{}, nil
}

func outputDevice() (playback.Sink, func()) {
	log.Warn().Msg("Playback requested but built without audio device support, discarding replies")
	return playback.NewDiscardSink(), nil
}
