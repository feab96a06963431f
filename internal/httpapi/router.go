package httpapi

import (
	stdhttp "net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter exposes the worker's ops surface: liveness, queue stats, and the
// user-triggered prompt expansion the dashboard calls at intake time.
func NewRouter(h *Handler) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, middleware.Logger)

	r.Get("/v1/healthz", h.Health)
	r.Get("/v1/stats", h.Stats)
	r.Post("/v1/prompts/expand", h.ExpandPrompts)

	return r
}
