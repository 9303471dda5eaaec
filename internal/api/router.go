package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Router mounts the API; metrics may be nil.
func Router(h *Handler, metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(h.sameOrigin)

	r.Get("/v1/health", h.Health)

	r.Route("/v1/broadcasts", func(r chi.Router) {
		r.Post("/preview", h.PreviewBroadcast)
		r.Post("/", h.StartBroadcast)
		r.Get("/current", h.CurrentBroadcast)
		r.Delete("/current", h.DiscardBroadcast)
		r.Post("/current/pause", h.PauseBroadcast)
		r.Post("/current/resume", h.ResumeBroadcast)
		r.Post("/current/cancel", h.CancelBroadcast)
		r.Get("/current/events", h.Events)
	})

	r.Route("/v1/audit", func(r chi.Router) {
		r.Get("/", h.ListAudit)
		r.Get("/export", h.ExportAudit)
		r.Delete("/", h.ClearAudit)
	})

	r.Get("/v1/channel", h.Channel)

	if metrics != nil {
		r.Handle("/metrics", metrics)
	}

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("whatsapp-broadcast"))
	})

	return r
}
