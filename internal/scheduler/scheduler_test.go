package scheduler_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/antonmal/protectogram/internal/domain/model"
	"github.com/antonmal/protectogram/internal/scheduler"
	"github.com/antonmal/protectogram/internal/storetest"
)

func newRunner(t *testing.T, registry scheduler.Registry, cfg scheduler.Config) (*scheduler.Runner, *storetest.Fake) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := storetest.New()
	return scheduler.New(st, registry, cfg, log, nil), st
}

func TestRunner_ClaimsAndExecutesDueAction(t *testing.T) {
	var handled int32
	registry := scheduler.Registry{
		"noop": func(ctx context.Context, action model.ScheduledAction) error {
			atomic.AddInt32(&handled, 1)
			return nil
		},
	}
	cfg := scheduler.DefaultConfig()
	cfg.PollInterval = 20 * time.Millisecond
	runner, st := newRunner(t, registry, cfg)

	actionID := uuid.New()
	st.ScheduledActions[actionID] = &model.ScheduledAction{
		ID: actionID, ActionType: "noop", RunAt: time.Now().Add(-time.Second), State: model.ScheduledActionScheduled,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = runner.Run(ctx)

	require.Eventually(t, func() bool { return atomic.LoadInt32(&handled) == 1 }, time.Second, 10*time.Millisecond)
	require.Equal(t, model.ScheduledActionDone, st.ScheduledActions[actionID].State)
}

func TestRunner_RetriesOnHandlerErrorThenGivesUp(t *testing.T) {
	registry := scheduler.Registry{
		"always-fails": func(ctx context.Context, action model.ScheduledAction) error {
			return errors.New("boom")
		},
	}
	cfg := scheduler.DefaultConfig()
	cfg.PollInterval = 10 * time.Millisecond
	cfg.MaxRetries = 1
	cfg.BaseBackoff = time.Millisecond
	runner, st := newRunner(t, registry, cfg)

	actionID := uuid.New()
	st.ScheduledActions[actionID] = &model.ScheduledAction{
		ID: actionID, ActionType: "always-fails", RunAt: time.Now().Add(-time.Second), State: model.ScheduledActionScheduled,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_ = runner.Run(ctx)

	require.Eventually(t, func() bool {
		return st.ScheduledActions[actionID].State == model.ScheduledActionFailed
	}, time.Second, 10*time.Millisecond)
}

func TestRunner_UnknownActionTypeIsMarkedFailed(t *testing.T) {
	cfg := scheduler.DefaultConfig()
	cfg.PollInterval = 10 * time.Millisecond
	runner, st := newRunner(t, scheduler.Registry{}, cfg)

	actionID := uuid.New()
	st.ScheduledActions[actionID] = &model.ScheduledAction{
		ID: actionID, ActionType: "no-handler", RunAt: time.Now().Add(-time.Second), State: model.ScheduledActionScheduled,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = runner.Run(ctx)

	require.Eventually(t, func() bool {
		return st.ScheduledActions[actionID].State == model.ScheduledActionFailed
	}, time.Second, 10*time.Millisecond)
}

func TestRunner_RecoversStuckRunningActionsOnStart(t *testing.T) {
	registry := scheduler.Registry{}
	cfg := scheduler.DefaultConfig()
	cfg.PollInterval = time.Hour // don't let the poll loop interfere
	runner, st := newRunner(t, registry, cfg)

	staleClaim := time.Now().Add(-cfg.ProcessingTimeout - time.Minute)
	stuckID := uuid.New()
	st.ScheduledActions[stuckID] = &model.ScheduledAction{
		ID: stuckID, ActionType: "whatever", State: model.ScheduledActionRunning, ClaimedAt: &staleClaim,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = runner.Run(ctx)

	require.Equal(t, model.ScheduledActionScheduled, st.ScheduledActions[stuckID].State)
}

func TestRunner_Healthy_NilLastPollIsHealthy(t *testing.T) {
	cfg := scheduler.DefaultConfig()
	runner, _ := newRunner(t, scheduler.Registry{}, cfg)
	require.NoError(t, runner.Healthy())
}
