package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"entrevistas-live-client/internal/api/rest"
	"entrevistas-live-client/internal/app"
	"entrevistas-live-client/internal/models"
	"entrevistas-live-client/internal/schema"
	"entrevistas-live-client/internal/service/capture"
	"entrevistas-live-client/internal/service/connection"
	"entrevistas-live-client/internal/service/live"
)

const maxRequestBody = 1 << 20

type handlers struct {
	interview app.Interview
	questions app.Questions
}

func (h *handlers) start(w http.ResponseWriter, r *http.Request) {
	id, err := h.interview.StartInterview(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"sessionId": id})
}

func (h *handlers) mic(action func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := action(r.Context()); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, h.interview.Snapshot())
	}
}

func (h *handlers) state(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.interview.Snapshot())
}

func (h *handlers) transcript(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.interview.Transcript())
}

func (h *handlers) clearTranscript(w http.ResponseWriter, _ *http.Request) {
	h.interview.ClearTranscript()
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) notices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.interview.Notices())
}

func (h *handlers) catalog(w http.ResponseWriter, r *http.Request) {
	questions, err := h.questions.Catalog(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, questions)
}

func (h *handlers) generate(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorBody{Error: "invalid request body"})
		return
	}

	resp, err := h.questions.Generate(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// statusOf maps a domain error to its HTTP status.
func statusOf(err error) int {
	var (
		apiErr  *rest.APIError
		permErr *capture.PermissionError
		connErr *connection.ConnectionError
		txErr   *connection.TransmissionError
	)
	switch {
	case errors.As(err, &apiErr):
		if apiErr.StatusCode < http.StatusBadRequest {
			return http.StatusBadGateway
		}
		return apiErr.StatusCode
	case errors.Is(err, live.ErrBusy),
		errors.Is(err, live.ErrNotStarted),
		errors.Is(err, capture.ErrAlreadyRecording),
		errors.Is(err, capture.ErrNotRecording),
		errors.Is(err, capture.ErrCancelled):
		return http.StatusConflict
	case errors.As(err, &permErr):
		return http.StatusForbidden
	case errors.As(err, &txErr), errors.As(err, &connErr):
		return http.StatusBadGateway
	case errors.Is(err, schema.ErrEmptyText):
		return http.StatusBadRequest
	case errors.Is(err, live.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)

	var apiErr *rest.APIError
	if errors.As(err, &apiErr) {
		// pass the backend detail through untouched
		writeJSON(w, status, models.ErrorBody{Detail: apiErr.Message})
		return
	}

	evt := log.Warn()
	if status >= http.StatusInternalServerError {
		evt = log.Error()
	}
	evt.Err(err).
		Str("requestId", middleware.GetReqID(r.Context())).
		Str("path", r.URL.Path).
		Int("status", status).
		Msg("Control request failed")

	writeJSON(w, status, models.ErrorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
