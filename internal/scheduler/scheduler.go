// Package scheduler implements component C4: the durable, at-least-once
// action runner. Grounded on the flowcatalyst-flowcatalyst outbox-processor
// reference file's ticker-driven poll/recover shape, adapted from its
// status-column polling to the row-locking model spec §4.4 calls for
// (SELECT ... FOR UPDATE SKIP LOCKED via store.Writer.ClaimDueScheduledActions),
// with a bounded worker pool built on golang.org/x/sync/errgroup + a
// semaphore instead of the reference's per-group channel processors, since
// scheduled actions here have no FIFO-per-group requirement.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/antonmal/protectogram/internal/domain/model"
	"github.com/antonmal/protectogram/internal/metrics"
	"github.com/antonmal/protectogram/internal/store"
)

// Handler processes one scheduled action's payload. Handlers must be
// idempotent by contract (spec §4.4): the incident state guards duplicate
// work, not the handler itself.
type Handler func(ctx context.Context, action model.ScheduledAction) error

// Registry is the startup-established string→handler map.
type Registry map[string]Handler

type Config struct {
	PollInterval      time.Duration
	RecoveryInterval  time.Duration
	ClaimBatchSize    int
	WorkerConcurrency int64
	MaxRetries        int
	BaseBackoff       time.Duration
	MaxBackoff        time.Duration
	// ProcessingTimeout bounds how long a row may sit in state=running
	// before the recovery sweep resets it to scheduled (crash recovery,
	// spec §8 P6).
	ProcessingTimeout time.Duration

	// Redis leader-election knobs. Runner does not read them: election is
	// on when New receives a non-nil elector, and with a nil elector the
	// runner assumes sole ownership (documented Open Question decision).
	LeaderLockName      string
	LeaderLeaseDuration time.Duration
	LeaderRefresh       time.Duration
}

func DefaultConfig() Config {
	return Config{
		PollInterval:      time.Second,
		RecoveryInterval:  30 * time.Second,
		ClaimBatchSize:    50,
		WorkerConcurrency: 8,
		MaxRetries:        5,
		BaseBackoff:       time.Second,
		MaxBackoff:        time.Minute,
		ProcessingTimeout: 2 * time.Minute,
		LeaderLockName:    "protectogram:scheduler:leader",
		LeaderLeaseDuration: 30 * time.Second,
		LeaderRefresh:       10 * time.Second,
	}
}

// Runner is the long-lived polling loop (spec §5: "scheduler tier runs a
// single long-lived loop that polls and dispatches due actions").
type Runner struct {
	st       store.Store
	registry Registry
	cfg      Config
	log      *slog.Logger

	sem *semaphore.Weighted

	elector   *RedisLeaderElector
	isPrimary func() bool

	lastPollUnixNano atomic.Int64
}

// New builds a Runner. elector may be nil, in which case the runner always
// considers itself primary (single-deployment assumption).
func New(st store.Store, registry Registry, cfg Config, log *slog.Logger, elector *RedisLeaderElector) *Runner {
	if cfg.ClaimBatchSize <= 0 {
		cfg.ClaimBatchSize = 50
	}
	if cfg.WorkerConcurrency <= 0 {
		cfg.WorkerConcurrency = 8
	}

	r := &Runner{
		st:       st,
		registry: registry,
		cfg:      cfg,
		log:      log.With("component", "scheduler"),
		sem:      semaphore.NewWeighted(cfg.WorkerConcurrency),
		elector:  elector,
	}

	if elector == nil {
		r.isPrimary = func() bool { return true }
	} else {
		primary := false
		elector.OnBecomeLeader(func() { primary = true })
		elector.OnLoseLeadership(func() { primary = false })
		r.isPrimary = func() bool { return primary }
	}

	return r
}

// Run blocks until ctx is canceled, running the poll loop, the recovery
// sweep, and (if configured) the leader-election refresh loop concurrently.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if r.elector != nil {
		g.Go(func() error {
			r.elector.Run(ctx, r.log)
			return nil
		})
	}

	// Reset any rows stranded in 'running' from a prior crash before the
	// first poll, mirroring the reference's doCrashRecovery-before-Start
	// ordering.
	r.recoverStuck(ctx)

	g.Go(func() error {
		r.pollLoop(ctx)
		return nil
	})
	g.Go(func() error {
		r.recoveryLoop(ctx)
		return nil
	})

	return g.Wait()
}

func (r *Runner) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !r.isPrimary() {
				continue
			}
			r.poll(ctx)
		}
	}
}

func (r *Runner) recoveryLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.RecoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !r.isPrimary() {
				continue
			}
			r.recoverStuck(ctx)
		}
	}
}

func (r *Runner) recoverStuck(ctx context.Context) {
	var n int
	err := r.st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		n, err = tx.RecoverStuckScheduledActions(ctx, r.cfg.ProcessingTimeout)
		return err
	})
	if err != nil {
		r.log.ErrorContext(ctx, "recover stuck scheduled actions failed", "error", err)
		return
	}
	if n > 0 {
		metrics.SchedulerActionsRecovered.Add(float64(n))
		r.log.WarnContext(ctx, "recovered stuck scheduled actions", "count", n)
	}
}

// Healthy reports whether the poll loop has made progress recently, for
// GET /health/ready (spec §6: readiness reflects the scheduler too). A
// non-primary replica is always healthy since it is not expected to poll.
func (r *Runner) Healthy() error {
	if !r.isPrimary() {
		return nil
	}
	last := r.lastPollUnixNano.Load()
	if last == 0 {
		return nil
	}
	if age := time.Since(time.Unix(0, last)); age > 5*r.cfg.PollInterval {
		return fmt.Errorf("scheduler: no poll in %s", age)
	}
	return nil
}

func (r *Runner) poll(ctx context.Context) {
	r.lastPollUnixNano.Store(time.Now().UnixNano())

	var claimed []model.ScheduledAction
	err := r.st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		claimed, err = tx.ClaimDueScheduledActions(ctx, r.cfg.ClaimBatchSize)
		return err
	})
	if err != nil {
		r.log.ErrorContext(ctx, "claim due scheduled actions failed", "error", err)
		return
	}
	if len(claimed) == 0 {
		return
	}
	metrics.SchedulerActionsClaimed.Add(float64(len(claimed)))

	for _, action := range claimed {
		action := action
		if err := r.sem.Acquire(ctx, 1); err != nil {
			return
		}
		go func() {
			defer r.sem.Release(1)
			r.execute(ctx, action)
		}()
	}
}

func (r *Runner) execute(ctx context.Context, action model.ScheduledAction) {
	handler, ok := r.registry[action.ActionType]
	if !ok {
		r.log.ErrorContext(ctx, "no handler registered for action type", "action_type", action.ActionType, "action_id", action.ID)
		r.fail(ctx, action)
		return
	}

	if err := handler(ctx, action); err != nil {
		r.log.WarnContext(ctx, "scheduled action handler failed", "action_id", action.ID, "action_type", action.ActionType, "error", err)
		r.retryOrFail(ctx, action)
		return
	}

	if err := r.st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.MarkScheduledActionDone(ctx, action.ID)
	}); err != nil {
		r.log.ErrorContext(ctx, "failed to mark scheduled action done", "action_id", action.ID, "error", err)
	}
}

func (r *Runner) retryOrFail(ctx context.Context, action model.ScheduledAction) {
	attempts := action.Attempts + 1
	if attempts > r.cfg.MaxRetries {
		r.fail(ctx, action)
		return
	}

	backoff := r.backoffFor(attempts)
	runAt := time.Now().Add(backoff)
	if err := r.st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.RescheduleAction(ctx, action.ID, runAt, attempts)
	}); err != nil {
		r.log.ErrorContext(ctx, "failed to reschedule action", "action_id", action.ID, "error", err)
	}
}

func (r *Runner) fail(ctx context.Context, action model.ScheduledAction) {
	if err := r.st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.MarkScheduledActionFailed(ctx, action.ID, action.Attempts+1)
	}); err != nil {
		r.log.ErrorContext(ctx, "failed to mark action failed", "action_id", action.ID, "error", err)
	}
}

func (r *Runner) backoffFor(attempts int) time.Duration {
	d := time.Duration(float64(r.cfg.BaseBackoff) * math.Pow(2, float64(attempts-1)))
	if d > r.cfg.MaxBackoff {
		d = r.cfg.MaxBackoff
	}
	return d
}
