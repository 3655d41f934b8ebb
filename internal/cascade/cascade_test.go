package cascade_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/antonmal/protectogram/internal/adapter/chat"
	"github.com/antonmal/protectogram/internal/adapter/pubsub"
	"github.com/antonmal/protectogram/internal/adapter/voice"
	"github.com/antonmal/protectogram/internal/cascade"
	"github.com/antonmal/protectogram/internal/domain/model"
	"github.com/antonmal/protectogram/internal/incident"
	"github.com/antonmal/protectogram/internal/outbox"
	"github.com/antonmal/protectogram/internal/storetest"
)

type fakeChat struct {
	sent     []chat.SendMessageRequest
	answered []string
}

func (f *fakeChat) Send(ctx context.Context, req chat.SendMessageRequest) (chat.SendResult, error) {
	f.sent = append(f.sent, req)
	return chat.SendResult{ProviderMessageID: uuid.NewString()}, nil
}

func (f *fakeChat) AnswerCallback(ctx context.Context, callbackID, text string) error {
	f.answered = append(f.answered, callbackID)
	return nil
}

type fakeVoice struct {
	placed    []voice.PlaceCallRequest
	hungUp    []string
	callIDSeq int
}

func (f *fakeVoice) PlaceCall(ctx context.Context, req voice.PlaceCallRequest) (voice.PlaceCallResult, error) {
	f.placed = append(f.placed, req)
	f.callIDSeq++
	return voice.PlaceCallResult{ProviderCallID: uuid.NewString()}, nil
}

func (f *fakeVoice) Hangup(ctx context.Context, providerCallID string) error {
	f.hungUp = append(f.hungUp, providerCallID)
	return nil
}

type harness struct {
	st     *storetest.Fake
	engine *cascade.Engine
	chat   *fakeChat
	voice  *fakeVoice
	inc    incident.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := storetest.New()
	bus := pubsub.NewEventDispatcher(pubsub.NewGoChannel(log))
	incSvc := incident.New(st, bus, log)
	ob := outbox.New(st, log, outbox.DefaultConfig())
	fc := &fakeChat{}
	fv := &fakeVoice{}

	cfg := cascade.DefaultConfig()
	eng := cascade.New(st, ob, incSvc, bus, fc, fv, cfg, log)

	return &harness{st: st, engine: eng, chat: fc, voice: fv, inc: incSvc}
}

func seedGuardian(t *testing.T, st *storetest.Fake, travelerID uuid.UUID, chatEnabled, callEnabled bool) (watcherID uuid.UUID) {
	t.Helper()
	watcherID = uuid.New()
	require.NoError(t, st.UpsertUser(context.Background(), &model.User{ID: watcherID, ChatProviderID: "watcher-chat-id", PhoneE164: "+15550001111", DisplayName: "Watcher"}))
	st.GuardianLinks[uuid.New()] = &model.GuardianLink{
		ID:                 uuid.New(),
		TravelerID:         travelerID,
		WatcherID:          watcherID,
		PriorityRank:       1,
		RingTimeoutSeconds: 25,
		MaxRetries:         2,
		RetryBackoffSeconds: 60,
		ChatEnabled:        chatEnabled,
		CallEnabled:        callEnabled,
		Status:             model.GuardianLinkActive,
		CreatedAt:          time.Now(),
	}
	return watcherID
}

func TestSeedCascade_SendsInitialChatAlertAndSchedulesCall(t *testing.T) {
	h := newHarness(t)
	travelerID := uuid.New()
	watcherID := seedGuardian(t, h.st, travelerID, true, true)
	incidentID := uuid.New()

	require.NoError(t, h.engine.SeedCascade(context.Background(), incidentID, travelerID))

	require.Len(t, h.chat.sent, 1)
	require.Equal(t, "watcher-chat-id", h.chat.sent[0].ChatProviderID)

	alert, err := h.st.GetAlert(context.Background(), incidentID, watcherID, model.ChannelChat)
	require.NoError(t, err)
	require.NotNil(t, alert)

	var foundCallAction, foundReminder bool
	for _, a := range h.st.ScheduledActions {
		if a.IncidentID != incidentID {
			continue
		}
		switch a.ActionType {
		case model.ActionPlaceCallAttempt:
			foundCallAction = true
		case model.ActionSendReminder:
			foundReminder = true
		}
	}
	require.True(t, foundCallAction)
	require.True(t, foundReminder)
}

func TestPlaceCallAttemptHandler_NoOpWhenIncidentNotOpen(t *testing.T) {
	h := newHarness(t)
	travelerID := uuid.New()
	watcherID := seedGuardian(t, h.st, travelerID, false, true)

	incidentID := uuid.New()
	require.NoError(t, h.st.CreateIncident(context.Background(), &model.Incident{ID: incidentID, TravelerID: travelerID, Status: model.IncidentAcknowledged}))

	action := model.ScheduledAction{
		IncidentID: incidentID,
		ActionType: model.ActionPlaceCallAttempt,
		Payload:    mustJSON(t, map[string]any{"GuardianLinkID": uuid.New(), "WatcherID": watcherID, "AttemptNumber": 1}),
	}
	require.NoError(t, h.engine.PlaceCallAttemptHandler(context.Background(), action))
	require.Empty(t, h.voice.placed)
}

func TestHandleCallResult_AnsweredHumanWithDTMF1Acknowledges(t *testing.T) {
	h := newHarness(t)
	travelerID := uuid.New()
	watcherID := seedGuardian(t, h.st, travelerID, false, true)
	incidentID := uuid.New()
	require.NoError(t, h.st.CreateIncident(context.Background(), &model.Incident{ID: incidentID, TravelerID: travelerID, Status: model.IncidentOpen}))

	alertID := uuid.New()
	require.NoError(t, h.st.CreateAlert(context.Background(), &model.Alert{ID: alertID, IncidentID: incidentID, AudienceUserID: watcherID, Channel: model.ChannelVoice, Status: model.AlertSent}))

	attemptID := uuid.New()
	require.NoError(t, h.st.CreateCallAttempt(context.Background(), &model.CallAttempt{
		ID: attemptID, AlertID: alertID, ProviderCallID: "call-123", AttemptNumber: 1, Result: model.CallPending,
	}))

	require.NoError(t, h.engine.HandleCallResult(context.Background(), "call-123", model.CallAnsweredHuman, "1"))

	inc, err := h.st.GetIncident(context.Background(), incidentID)
	require.NoError(t, err)
	require.Equal(t, model.IncidentAcknowledged, inc.Status)
	require.NotNil(t, inc.AcknowledgedByID)
	require.Equal(t, watcherID, *inc.AcknowledgedByID)
}

func TestHandleCallResult_NoAnswerHaltsWhenRetriesExhausted(t *testing.T) {
	h := newHarness(t)
	travelerID := uuid.New()
	watcherID := seedGuardian(t, h.st, travelerID, false, true)
	incidentID := uuid.New()
	require.NoError(t, h.st.CreateIncident(context.Background(), &model.Incident{ID: incidentID, TravelerID: travelerID, Status: model.IncidentOpen}))

	alertID := uuid.New()
	require.NoError(t, h.st.CreateAlert(context.Background(), &model.Alert{ID: alertID, IncidentID: incidentID, AudienceUserID: watcherID, Channel: model.ChannelVoice, Status: model.AlertSent}))

	attemptID := uuid.New()
	require.NoError(t, h.st.CreateCallAttempt(context.Background(), &model.CallAttempt{
		ID: attemptID, AlertID: alertID, ProviderCallID: "call-retry", AttemptNumber: 3, Result: model.CallPending,
	}))

	require.NoError(t, h.engine.HandleCallResult(context.Background(), "call-retry", model.CallNoAnswer, ""))

	alert, err := h.st.GetAlert(context.Background(), incidentID, watcherID, model.ChannelVoice)
	require.NoError(t, err)
	require.Equal(t, model.AlertHalted, alert.Status)
}

func TestHandleCallResult_NonTerminalStatusIsNoOp(t *testing.T) {
	h := newHarness(t)
	travelerID := uuid.New()
	watcherID := seedGuardian(t, h.st, travelerID, false, true)
	incidentID := uuid.New()
	require.NoError(t, h.st.CreateIncident(context.Background(), &model.Incident{ID: incidentID, TravelerID: travelerID, Status: model.IncidentOpen}))

	alertID := uuid.New()
	require.NoError(t, h.st.CreateAlert(context.Background(), &model.Alert{ID: alertID, IncidentID: incidentID, AudienceUserID: watcherID, Channel: model.ChannelVoice, Status: model.AlertSent}))

	attemptID := uuid.New()
	require.NoError(t, h.st.CreateCallAttempt(context.Background(), &model.CallAttempt{
		ID: attemptID, AlertID: alertID, ProviderCallID: "call-ringing", AttemptNumber: 1, Result: model.CallPending,
	}))

	require.NoError(t, h.engine.HandleCallResult(context.Background(), "call-ringing", model.CallRinging, ""))

	attempt := h.st.CallAttempts[attemptID]
	require.Equal(t, model.CallPending, attempt.Result)
	require.Nil(t, attempt.EndedAt)

	alert, err := h.st.GetAlert(context.Background(), incidentID, watcherID, model.ChannelVoice)
	require.NoError(t, err)
	require.Equal(t, model.AlertSent, alert.Status)

	var scheduledRetries int
	for _, a := range h.st.ScheduledActions {
		if a.IncidentID == incidentID && a.ActionType == model.ActionPlaceCallAttempt {
			scheduledRetries++
		}
	}
	require.Zero(t, scheduledRetries)
}

func TestHandleCallResult_TotalRingCapHaltsBeforeNextAttempt(t *testing.T) {
	h := newHarness(t)
	h.engine = cascade.New(h.st, outbox.New(h.st, slog.New(slog.NewTextHandler(io.Discard, nil)), outbox.DefaultConfig()), h.inc, pubsub.NewEventDispatcher(pubsub.NewGoChannel(slog.New(slog.NewTextHandler(io.Discard, nil)))), h.chat, h.voice, func() cascade.Config {
		cfg := cascade.DefaultConfig()
		cfg.MaxTotalRingPerGuardian = 30 * time.Second
		return cfg
	}(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	travelerID := uuid.New()
	watcherID := seedGuardian(t, h.st, travelerID, false, true)
	incidentID := uuid.New()
	require.NoError(t, h.st.CreateIncident(context.Background(), &model.Incident{ID: incidentID, TravelerID: travelerID, Status: model.IncidentOpen}))

	alertID := uuid.New()
	require.NoError(t, h.st.CreateAlert(context.Background(), &model.Alert{ID: alertID, IncidentID: incidentID, AudienceUserID: watcherID, Channel: model.ChannelVoice, Status: model.AlertSent}))

	priorStart := time.Now().Add(-time.Minute)
	priorEnd := priorStart.Add(25 * time.Second)
	require.NoError(t, h.st.CreateCallAttempt(context.Background(), &model.CallAttempt{
		ID: uuid.New(), AlertID: alertID, ProviderCallID: "call-prior", AttemptNumber: 1, Result: model.CallNoAnswer,
		StartedAt: priorStart, EndedAt: &priorEnd,
	}))

	attemptID := uuid.New()
	require.NoError(t, h.st.CreateCallAttempt(context.Background(), &model.CallAttempt{
		ID: attemptID, AlertID: alertID, ProviderCallID: "call-current", AttemptNumber: 1, Result: model.CallPending,
		StartedAt: time.Now().Add(-10 * time.Second),
	}))

	require.NoError(t, h.engine.HandleCallResult(context.Background(), "call-current", model.CallNoAnswer, ""))

	alert, err := h.st.GetAlert(context.Background(), incidentID, watcherID, model.ChannelVoice)
	require.NoError(t, err)
	require.Equal(t, model.AlertHalted, alert.Status)
}

func TestPlaceCallAttemptHandler_RejectsNonWhitelistedNumber(t *testing.T) {
	h := newHarness(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := cascade.DefaultConfig()
	cfg.FeatureAllowOnlyWhitelist = true
	cfg.AllowedE164Numbers = []string{"+15559999999"}
	h.engine = cascade.New(h.st, outbox.New(h.st, log, outbox.DefaultConfig()), h.inc, pubsub.NewEventDispatcher(pubsub.NewGoChannel(log)), h.chat, h.voice, cfg, log)

	travelerID := uuid.New()
	watcherID := seedGuardian(t, h.st, travelerID, false, true)
	incidentID := uuid.New()
	require.NoError(t, h.st.CreateIncident(context.Background(), &model.Incident{ID: incidentID, TravelerID: travelerID, Status: model.IncidentOpen}))

	action := model.ScheduledAction{
		IncidentID: incidentID,
		ActionType: model.ActionPlaceCallAttempt,
		Payload:    mustJSON(t, map[string]any{"GuardianLinkID": uuid.New(), "WatcherID": watcherID, "AttemptNumber": 1}),
	}
	require.NoError(t, h.engine.PlaceCallAttemptHandler(context.Background(), action))
	require.Empty(t, h.voice.placed)

	alert, err := h.st.GetAlert(context.Background(), incidentID, watcherID, model.ChannelVoice)
	require.NoError(t, err)
	require.Equal(t, model.AlertHalted, alert.Status)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
