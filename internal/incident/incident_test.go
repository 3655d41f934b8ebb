package incident_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/antonmal/protectogram/internal/adapter/pubsub"
	"github.com/antonmal/protectogram/internal/domain/model"
	"github.com/antonmal/protectogram/internal/incident"
	"github.com/antonmal/protectogram/internal/storetest"
)

func newService(t *testing.T) (incident.Service, *storetest.Fake) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := storetest.New()
	bus := pubsub.NewEventDispatcher(pubsub.NewGoChannel(log))
	return incident.New(st, bus, log), st
}

func TestOpen_CreatesIncidentAndAuditEvent(t *testing.T) {
	svc, st := newService(t)
	travelerID := uuid.New()

	inc, err := svc.Open(context.Background(), travelerID)
	require.NoError(t, err)
	require.Equal(t, model.IncidentOpen, inc.Status)
	require.Equal(t, travelerID, inc.TravelerID)

	require.Len(t, st.IncidentEvents, 1)
	require.Equal(t, model.IncidentEventOpened, st.IncidentEvents[0].Kind)
}

func TestAcknowledge_TransitionsOpenToAcknowledged(t *testing.T) {
	svc, st := newService(t)
	inc, err := svc.Open(context.Background(), uuid.New())
	require.NoError(t, err)

	byUser := uuid.New()
	acked, err := svc.Acknowledge(context.Background(), inc.ID, byUser, model.AckViaChatButton)
	require.NoError(t, err)
	require.Equal(t, model.IncidentAcknowledged, acked.Status)
	require.NotNil(t, acked.AcknowledgedByID)
	require.Equal(t, byUser, *acked.AcknowledgedByID)

	stored := st.Incidents[inc.ID]
	require.Equal(t, model.IncidentAcknowledged, stored.Status)
}

// A second Acknowledge call on an already-terminal incident is a no-op that
// returns the original decision rather than erroring or re-transitioning
// (spec invariant L1).
func TestAcknowledge_IsIdempotentOnceTerminal(t *testing.T) {
	svc, _ := newService(t)
	inc, err := svc.Open(context.Background(), uuid.New())
	require.NoError(t, err)

	firstUser := uuid.New()
	first, err := svc.Acknowledge(context.Background(), inc.ID, firstUser, model.AckViaChatButton)
	require.NoError(t, err)

	secondUser := uuid.New()
	second, err := svc.Acknowledge(context.Background(), inc.ID, secondUser, model.AckViaDTMF)
	require.NoError(t, err)

	require.Equal(t, first.AcknowledgedByID, second.AcknowledgedByID)
	require.Equal(t, firstUser, *second.AcknowledgedByID)
}

func TestCancel_IsANoOpOnceAcknowledged(t *testing.T) {
	svc, _ := newService(t)
	inc, err := svc.Open(context.Background(), uuid.New())
	require.NoError(t, err)

	_, err = svc.Acknowledge(context.Background(), inc.ID, uuid.New(), model.AckViaChatButton)
	require.NoError(t, err)

	after, err := svc.Cancel(context.Background(), inc.ID, uuid.New())
	require.NoError(t, err)
	require.Equal(t, model.IncidentAcknowledged, after.Status)
}

func TestAcknowledge_CancelsPendingScheduledActions(t *testing.T) {
	svc, st := newService(t)
	inc, err := svc.Open(context.Background(), uuid.New())
	require.NoError(t, err)

	require.NoError(t, st.CreateScheduledAction(context.Background(), &model.ScheduledAction{
		ID:         uuid.New(),
		IncidentID: inc.ID,
		ActionType: model.ActionPlaceCallAttempt,
	}))

	_, err = svc.Acknowledge(context.Background(), inc.ID, uuid.New(), model.AckViaChatButton)
	require.NoError(t, err)

	for _, a := range st.ScheduledActions {
		if a.IncidentID == inc.ID {
			require.Equal(t, model.ScheduledActionCanceled, a.State)
		}
	}
}

func TestAcknowledge_UnknownIncidentFails(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Acknowledge(context.Background(), uuid.New(), uuid.New(), model.AckViaChatButton)
	require.Error(t, err)
}
