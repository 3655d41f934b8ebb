package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/antonmal/protectogram/internal/adapter/chat"
	"github.com/antonmal/protectogram/internal/adapter/pubsub"
	"github.com/antonmal/protectogram/internal/adapter/voice"
	"github.com/antonmal/protectogram/internal/cascade"
	"github.com/antonmal/protectogram/internal/domain/model"
	"github.com/antonmal/protectogram/internal/inbox"
	"github.com/antonmal/protectogram/internal/incident"
	"github.com/antonmal/protectogram/internal/outbox"
	"github.com/antonmal/protectogram/internal/storetest"
)

type stubChat struct{ answered int }

func (s *stubChat) Send(ctx context.Context, req chat.SendMessageRequest) (chat.SendResult, error) {
	return chat.SendResult{ProviderMessageID: "id"}, nil
}
func (s *stubChat) AnswerCallback(ctx context.Context, callbackID, text string) error {
	s.answered++
	return nil
}

type stubVoice struct{}

func (stubVoice) PlaceCall(ctx context.Context, req voice.PlaceCallRequest) (voice.PlaceCallResult, error) {
	return voice.PlaceCallResult{ProviderCallID: uuid.NewString()}, nil
}
func (stubVoice) Hangup(ctx context.Context, providerCallID string) error { return nil }

func newHandler(t *testing.T) (*Handler, *storetest.Fake, *stubChat) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := storetest.New()
	bus := pubsub.NewEventDispatcher(pubsub.NewGoChannel(log))
	incSvc := incident.New(st, bus, log)
	ib := inbox.New(st, log)
	ob := outbox.New(st, log, outbox.DefaultConfig())
	sc := &stubChat{}

	cascadeEng := cascade.New(st, ob, incSvc, bus, sc, stubVoice{}, cascade.DefaultConfig(), log)

	h := New(st, ib, incSvc, cascadeEng, sc, Config{ChatWebhookSecret: "shh", VoiceHMACSecret: "voice-secret"}, log)
	return h, st, sc
}

func TestChat_RejectsMissingSecret(t *testing.T) {
	h, _, _ := newHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	h.Chat(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestChat_DuplicateUpdateIsAcknowledgedWithoutReprocessing(t *testing.T) {
	h, st, sc := newHandler(t)
	travelerID := uuid.New()
	inc, err := h.inc.Open(context.Background(), travelerID)
	require.NoError(t, err)

	require.NoError(t, st.UpsertUser(context.Background(), &model.User{ID: uuid.New(), ChatProviderID: "111"}))

	body := fmt.Sprintf(`{"update_id":42,"callback_query":{"id":"cbid","from":{"id":111},"data":"v1|ack|%s"}}`, inc.ID)

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
		req.Header.Set("X-Webhook-Secret", "shh")
		w := httptest.NewRecorder()
		h.Chat(w, req)
		return w.Code
	}

	require.Equal(t, http.StatusOK, send())
	require.Equal(t, 1, sc.answered)

	require.Equal(t, http.StatusOK, send())
	require.Equal(t, 1, sc.answered, "duplicate update_id must not be reprocessed")

	updated, err := st.GetIncident(context.Background(), inc.ID)
	require.NoError(t, err)
	require.Equal(t, model.IncidentAcknowledged, updated.Status)
}

func TestVoice_RejectsBadSignature(t *testing.T) {
	h, _, _ := newHandler(t)
	form := url.Values{"CallSid": {"CA1"}, "CallStatus": {"completed"}}
	req := httptest.NewRequest(http.MethodPost, "/voice", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Signature", "deadbeef")
	w := httptest.NewRecorder()
	h.Voice(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestVoice_AcceptsValidSignatureAndDispatchesCallResult(t *testing.T) {
	h, st, _ := newHandler(t)

	travelerID := uuid.New()
	inc, err := h.inc.Open(context.Background(), travelerID)
	require.NoError(t, err)

	watcherID := uuid.New()
	require.NoError(t, st.CreateAlert(context.Background(), &model.Alert{
		ID: uuid.New(), IncidentID: inc.ID, AudienceUserID: watcherID, Channel: model.ChannelVoice, Status: model.AlertSent,
	}))
	alert, err := st.GetAlert(context.Background(), inc.ID, watcherID, model.ChannelVoice)
	require.NoError(t, err)
	require.NoError(t, st.CreateCallAttempt(context.Background(), &model.CallAttempt{
		ID: uuid.New(), AlertID: alert.ID, ProviderCallID: "CA1", AttemptNumber: 1, Result: model.CallPending,
	}))

	form := url.Values{"CallSid": {"CA1"}, "CallStatus": {"completed"}, "Digits": {"1"}}
	body := form.Encode()
	sig := sign(t, "voice-secret", body)

	req := httptest.NewRequest(http.MethodPost, "/voice", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Signature", sig)
	w := httptest.NewRecorder()
	h.Voice(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	updated, err := st.GetIncident(context.Background(), inc.ID)
	require.NoError(t, err)
	require.Equal(t, model.IncidentAcknowledged, updated.Status)
}

func sign(t *testing.T, secret, body string) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}
