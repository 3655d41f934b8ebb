// Package store defines the typed repository contracts for every core
// entity (spec §3, component C1) plus the advisory incident lock and the
// transactional boundary every multi-row domain handler runs inside. The
// concrete implementation lives in internal/store/postgres; callers (inbox,
// outbox, incident, cascade, scheduler) depend only on these interfaces so
// unit tests can substitute an in-memory fake.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/antonmal/protectogram/internal/domain/model"
)

// Store is the root gateway: a single handle that opens transactions and
// exposes per-entity repositories bound to that transaction (or to the pool,
// for read-only callers outside a transaction).
type Store interface {
	// WithTx runs fn inside one transaction. A handler owns exactly one
	// transaction (spec §7 propagation policy); errors returned by fn roll
	// the transaction back.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Reader exposes read-only repository access outside a transaction, for
	// handlers that only need to look things up (e.g. admin status pages).
	Reader
}

// Tx is the set of repositories available inside one transaction, plus the
// advisory incident lock.
type Tx interface {
	Reader
	Writer

	// LockIncident acquires the per-incident advisory lock for the lifetime
	// of this transaction (spec §4.1). It retries briefly (bounded ~2s) on
	// contention before returning errs.ErrContention.
	LockIncident(ctx context.Context, incidentID uuid.UUID) error
}

type Reader interface {
	GetUser(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetUserByChatProviderID(ctx context.Context, chatProviderID string) (*model.User, error)
	ActiveGuardianLinks(ctx context.Context, travelerID uuid.UUID) ([]model.GuardianLink, error)
	GetIncident(ctx context.Context, id uuid.UUID) (*model.Incident, error)
	GetAlert(ctx context.Context, incidentID, audienceID uuid.UUID, channel model.AlertChannel) (*model.Alert, error)
	GetAlertByID(ctx context.Context, id uuid.UUID) (*model.Alert, error)
	AlertsForIncident(ctx context.Context, incidentID uuid.UUID) ([]model.Alert, error)
	PendingCallAttempt(ctx context.Context, alertID uuid.UUID) (*model.CallAttempt, error)
	CallAttemptsForAlert(ctx context.Context, alertID uuid.UUID) ([]model.CallAttempt, error)
	GetCallAttemptByProviderCallID(ctx context.Context, providerCallID string) (*model.CallAttempt, error)
	GetOutboxByKey(ctx context.Context, idempotencyKey string) (*model.OutboxMessage, error)
	ScheduledActionsForIncident(ctx context.Context, incidentID uuid.UUID, state model.ScheduledActionState) ([]model.ScheduledAction, error)
}

type Writer interface {
	UpsertUser(ctx context.Context, u *model.User) error
	CreateIncident(ctx context.Context, incident *model.Incident) error
	UpdateIncidentStatus(ctx context.Context, incident *model.Incident) error
	AppendIncidentEvent(ctx context.Context, ev *model.IncidentEvent) error

	CreateAlert(ctx context.Context, alert *model.Alert) error
	UpdateAlert(ctx context.Context, alert *model.Alert) error

	CreateCallAttempt(ctx context.Context, attempt *model.CallAttempt) error
	UpdateCallAttempt(ctx context.Context, attempt *model.CallAttempt) error

	// RecordInboxEvent inserts (provider, providerEventID) and reports
	// whether this call was the one that created the row (spec §4.2).
	RecordInboxEvent(ctx context.Context, ev *model.InboxEvent) (fresh bool, err error)
	MarkInboxProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) error
	SweepUnprocessedInbox(ctx context.Context, olderThan time.Duration) ([]model.InboxEvent, error)

	// InsertOutboxPending inserts a pending row, or returns the existing row
	// (fresh=false) on idempotency-key conflict (spec §4.3 step 1).
	InsertOutboxPending(ctx context.Context, msg *model.OutboxMessage) (fresh bool, existing *model.OutboxMessage, err error)
	MarkOutboxSent(ctx context.Context, idempotencyKey, providerMessageID string) error
	MarkOutboxFailed(ctx context.Context, idempotencyKey, lastError string) error

	CreateScheduledAction(ctx context.Context, action *model.ScheduledAction) error
	CancelScheduledActionsForIncident(ctx context.Context, incidentID uuid.UUID) (int, error)

	ClaimDueScheduledActions(ctx context.Context, limit int) ([]model.ScheduledAction, error)
	MarkScheduledActionDone(ctx context.Context, id uuid.UUID) error
	MarkScheduledActionFailed(ctx context.Context, id uuid.UUID, attempts int) error
	RescheduleAction(ctx context.Context, id uuid.UUID, runAt time.Time, attempts int) error
	RecoverStuckScheduledActions(ctx context.Context, olderThan time.Duration) (int, error)
}
