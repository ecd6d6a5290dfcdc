package http

import (
	"net/http"

	"entrevistas-live-client/internal/app"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter constructs the control API router for the live client.
func NewRouter(application *app.Application) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if !application.Started() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("starting"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	h := &handlers{interview: application.Interview, questions: application.Questions}

	r.Route("/v1/interview", func(r chi.Router) {
		r.Post("/start", h.start)
		r.Route("/mic", func(r chi.Router) {
			r.Post("/toggle", h.mic(application.Interview.ToggleMic))
			r.Post("/press", h.mic(application.Interview.PressMic))
			r.Post("/release", h.mic(application.Interview.ReleaseMic))
		})
		r.Get("/state", h.state)
		r.Get("/transcript", h.transcript)
		r.Delete("/transcript", h.clearTranscript)
		r.Get("/notices", h.notices)
	})

	r.Route("/v1/questions", func(r chi.Router) {
		r.Get("/", h.catalog)
		r.Post("/generate", h.generate)
	})

	return r
}
