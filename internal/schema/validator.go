// Package schema validates messages crossing the process boundary.
package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"entrevistas-live-client/internal/models"
)

var (
	ErrUnknownKind = errors.New("unknown message kind")
	ErrMissingData = errors.New("message data is required")
	ErrEmptyText   = errors.New("job posting text is required")
)

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// Validate checks an event before it is dispatched or sent.
func (v *Validator) Validate(event any) error {
	var err error
	switch e := event.(type) {
	case models.ServerMessage:
		err = v.validateServerMessage(e)
	case *models.ServerMessage:
		err = v.validateServerMessage(*e)
	case models.ClientMessage:
		err = v.validateClientMessage(e)
	case models.GenerateRequest:
		err = v.validateGenerateRequest(e)
	case *models.GenerateRequest:
		err = v.validateGenerateRequest(*e)
	default:
		err = fmt.Errorf("unsupported event %T", event)
	}

	if err != nil {
		log.Debug().Err(err).Msg("Schema validation failed")
	}
	return err
}

func (v *Validator) validateServerMessage(m models.ServerMessage) error {
	if _, ok := models.StageOf(m.Type); ok {
		return nil
	}
	switch m.Type {
	case models.KindSynthesizedAudio:
		// audio without payload cannot be played
		if m.Data == "" {
			return fmt.Errorf("%s: %w", m.Type, ErrMissingData)
		}
		return nil
	case models.KindRecognizedText, models.KindReplyText, models.KindError:
		return nil
	default:
		return fmt.Errorf("%q: %w", m.Type, ErrUnknownKind)
	}
}

func (v *Validator) validateClientMessage(m models.ClientMessage) error {
	if m.Type != models.KindAudio {
		return fmt.Errorf("%q: %w", m.Type, ErrUnknownKind)
	}
	if m.Data == "" {
		return fmt.Errorf("%s: %w", m.Type, ErrMissingData)
	}
	return nil
}

func (v *Validator) validateGenerateRequest(r models.GenerateRequest) error {
	if strings.TrimSpace(r.Text) == "" {
		return ErrEmptyText
	}
	return nil
}
