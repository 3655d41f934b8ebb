// Package health exposes the liveness/readiness routes every deployment
// tier (load balancer, orchestrator) polls. Readiness reflects both the
// database and the scheduler's own view of itself; either going red flips
// readiness so traffic drains off this instance (spec §6, §7 Fatal).
package health

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ReadyCheck reports whether this instance should keep receiving traffic.
// A non-nil error is logged and turns GET /health/ready into a 503.
type ReadyCheck func(ctx context.Context) error

type Handler struct {
	ready ReadyCheck
	log   *slog.Logger
}

func New(ready ReadyCheck, log *slog.Logger) *Handler {
	return &Handler{ready: ready, log: log.With("component", "health")}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/live", h.Live)
	r.Get("/ready", h.Ready)
	return r
}

func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.ready == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	if err := h.ready(r.Context()); err != nil {
		h.log.WarnContext(r.Context(), "readiness check failed", "error", err)
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}
