// Package admin implements component C10: the X-Admin-Key-gated surface
// used for staging smoke tests and migration control (spec §4.10). None of
// this is part of the core invariants the rest of the system enforces; it
// exists purely as an operator convenience.
package admin

import (
	"crypto/subtle"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/antonmal/protectogram/internal/incident"
	"github.com/antonmal/protectogram/internal/store/postgres/migrate"
)

type Config struct {
	AdminKey string
}

type Handler struct {
	inc incident.Service
	db  *sql.DB
	cfg Config
	log *slog.Logger
}

func New(incSvc incident.Service, db *sql.DB, cfg Config, log *slog.Logger) *Handler {
	return &Handler{inc: incSvc, db: db, cfg: cfg, log: log.With("component", "admin")}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(h.requireAdminKey)
	r.Post("/panic/trigger", h.TriggerPanic)
	r.Post("/migrate/up", h.MigrateUp)
	r.Post("/migrate/down", h.MigrateDown)
	r.Get("/migrate/status", h.MigrateStatus)
	return r
}

func (h *Handler) requireAdminKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("X-Admin-Key")
		if h.cfg.AdminKey == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.cfg.AdminKey)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type triggerPanicRequest struct {
	TravelerID uuid.UUID `json:"traveler_id"`
}

type triggerPanicResponse struct {
	IncidentID uuid.UUID `json:"incident_id"`
}

// TriggerPanic opens an incident as if seeded by the chat path, for staging
// smoke tests only (spec §4.10).
func (h *Handler) TriggerPanic(w http.ResponseWriter, r *http.Request) {
	var req triggerPanicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TravelerID == uuid.Nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	inc, err := h.inc.Open(r.Context(), req.TravelerID)
	if err != nil {
		h.log.ErrorContext(r.Context(), "admin: trigger panic failed", "traveler_id", req.TravelerID, "error", err)
		http.Error(w, "could not open incident", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, triggerPanicResponse{IncidentID: inc.ID})
}

func (h *Handler) MigrateUp(w http.ResponseWriter, r *http.Request) {
	if err := migrate.Up(r.Context(), h.db); err != nil {
		h.log.ErrorContext(r.Context(), "admin: migrate up failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) MigrateDown(w http.ResponseWriter, r *http.Request) {
	if err := migrate.Down(r.Context(), h.db); err != nil {
		h.log.ErrorContext(r.Context(), "admin: migrate down failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) MigrateStatus(w http.ResponseWriter, r *http.Request) {
	statuses, err := migrate.Status(r.Context(), h.db)
	if err != nil {
		h.log.ErrorContext(r.Context(), "admin: migrate status failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
