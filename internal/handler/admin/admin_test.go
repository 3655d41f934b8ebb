package admin

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/antonmal/protectogram/internal/adapter/pubsub"
	"github.com/antonmal/protectogram/internal/incident"
	"github.com/antonmal/protectogram/internal/storetest"
)

func newHandler(t *testing.T, adminKey string) *Handler {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := storetest.New()
	bus := pubsub.NewEventDispatcher(pubsub.NewGoChannel(log))
	incSvc := incident.New(st, bus, log)
	return New(incSvc, nil, Config{AdminKey: adminKey}, log)
}

func TestRouter_RejectsMissingAdminKey(t *testing.T) {
	h := newHandler(t, "secret")
	req := httptest.NewRequest(http.MethodPost, "/panic/trigger", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()
	h.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_RejectsWrongAdminKey(t *testing.T) {
	h := newHandler(t, "secret")
	req := httptest.NewRequest(http.MethodPost, "/panic/trigger", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("X-Admin-Key", "wrong")
	w := httptest.NewRecorder()
	h.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTriggerPanic_OpensIncidentForValidTraveler(t *testing.T) {
	h := newHandler(t, "secret")
	travelerID := uuid.New()
	body, err := json.Marshal(triggerPanicRequest{TravelerID: travelerID})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/panic/trigger", bytes.NewReader(body))
	req.Header.Set("X-Admin-Key", "secret")
	w := httptest.NewRecorder()
	h.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp triggerPanicResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotEqual(t, uuid.Nil, resp.IncidentID)
}

func TestTriggerPanic_RejectsMissingTravelerID(t *testing.T) {
	h := newHandler(t, "secret")
	req := httptest.NewRequest(http.MethodPost, "/panic/trigger", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("X-Admin-Key", "secret")
	w := httptest.NewRecorder()
	h.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
