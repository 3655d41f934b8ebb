package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/antonmal/protectogram/internal/domain/model"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, letting repo
// methods run either inside a transaction or directly against the pool for
// read-only lookups.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// repo implements store.Reader and store.Writer against a querier. It is
// embedded by both the pool-level Store (read-only) and the per-transaction
// Tx (read-write).
type repo struct {
	q querier
}

func (r repo) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var u model.User
	err := r.q.QueryRow(ctx, `
		SELECT id, chat_provider_id, phone_e164, display_name
		FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.ChatProviderID, &u.PhoneE164, &u.DisplayName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: get user: %w", err)
	}
	return &u, nil
}

func (r repo) GetUserByChatProviderID(ctx context.Context, chatProviderID string) (*model.User, error) {
	var u model.User
	err := r.q.QueryRow(ctx, `
		SELECT id, chat_provider_id, phone_e164, display_name
		FROM users WHERE chat_provider_id = $1`, chatProviderID).
		Scan(&u.ID, &u.ChatProviderID, &u.PhoneE164, &u.DisplayName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: get user by chat provider id: %w", err)
	}
	return &u, nil
}

func (r repo) UpsertUser(ctx context.Context, u *model.User) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO users (id, chat_provider_id, phone_e164, display_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			chat_provider_id = EXCLUDED.chat_provider_id,
			phone_e164 = EXCLUDED.phone_e164,
			display_name = EXCLUDED.display_name`,
		u.ID, u.ChatProviderID, u.PhoneE164, u.DisplayName)
	if err != nil {
		return fmt.Errorf("postgres: upsert user: %w", err)
	}
	return nil
}

// ActiveGuardianLinks returns active links sorted by (priority rank asc,
// link-created-at asc), the total order required by spec invariant 5.
func (r repo) ActiveGuardianLinks(ctx context.Context, travelerID uuid.UUID) ([]model.GuardianLink, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, traveler_id, watcher_id, priority_rank, ring_timeout_seconds,
		       max_retries, retry_backoff_seconds, chat_enabled, call_enabled,
		       status, created_at
		FROM guardian_links
		WHERE traveler_id = $1 AND status = 'active'
		ORDER BY priority_rank ASC, created_at ASC`, travelerID)
	if err != nil {
		return nil, fmt.Errorf("postgres: active guardian links: %w", err)
	}
	defer rows.Close()

	var out []model.GuardianLink
	for rows.Next() {
		var g model.GuardianLink
		if err := rows.Scan(&g.ID, &g.TravelerID, &g.WatcherID, &g.PriorityRank,
			&g.RingTimeoutSeconds, &g.MaxRetries, &g.RetryBackoffSeconds,
			&g.ChatEnabled, &g.CallEnabled, &g.Status, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan guardian link: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r repo) GetIncident(ctx context.Context, id uuid.UUID) (*model.Incident, error) {
	var i model.Incident
	err := r.q.QueryRow(ctx, `
		SELECT id, traveler_id, status, created_at, acknowledged_at,
		       acknowledged_by_user_id, acknowledged_via, canceled_at, canceled_by_user_id
		FROM incidents WHERE id = $1`, id).
		Scan(&i.ID, &i.TravelerID, &i.Status, &i.CreatedAt, &i.AcknowledgedAt,
			&i.AcknowledgedByID, &i.AcknowledgedVia, &i.CanceledAt, &i.CanceledByID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: get incident: %w", err)
	}
	return &i, nil
}

func (r repo) CreateIncident(ctx context.Context, incident *model.Incident) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO incidents (id, traveler_id, status, created_at)
		VALUES ($1, $2, $3, $4)`,
		incident.ID, incident.TravelerID, incident.Status, incident.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: create incident: %w", err)
	}
	return nil
}

// UpdateIncidentStatus persists a transition and is only ever called once
// per incident per terminal status, under the advisory lock (the monotonic
// terminal-status invariant is enforced by the caller checking Status=open
// before calling this, not by a database CHECK).
func (r repo) UpdateIncidentStatus(ctx context.Context, incident *model.Incident) error {
	_, err := r.q.Exec(ctx, `
		UPDATE incidents SET
			status = $2,
			acknowledged_at = $3,
			acknowledged_by_user_id = $4,
			acknowledged_via = $5,
			canceled_at = $6,
			canceled_by_user_id = $7
		WHERE id = $1`,
		incident.ID, incident.Status, incident.AcknowledgedAt, incident.AcknowledgedByID,
		incident.AcknowledgedVia, incident.CanceledAt, incident.CanceledByID)
	if err != nil {
		return fmt.Errorf("postgres: update incident status: %w", err)
	}
	return nil
}

func (r repo) AppendIncidentEvent(ctx context.Context, ev *model.IncidentEvent) error {
	detail, err := json.Marshal(ev.Detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal incident event detail: %w", err)
	}
	_, err = r.q.Exec(ctx, `
		INSERT INTO incident_events (id, incident_id, kind, actor_user_id, occurred_at, detail)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.ID, ev.IncidentID, ev.Kind, ev.ActorUserID, ev.OccurredAt, detail)
	if err != nil {
		return fmt.Errorf("postgres: append incident event: %w", err)
	}
	return nil
}

func (r repo) GetAlert(ctx context.Context, incidentID, audienceID uuid.UUID, channel model.AlertChannel) (*model.Alert, error) {
	var a model.Alert
	err := r.q.QueryRow(ctx, `
		SELECT id, incident_id, audience_user_id, channel, status, attempts, last_error
		FROM alerts WHERE incident_id = $1 AND audience_user_id = $2 AND channel = $3`,
		incidentID, audienceID, channel).
		Scan(&a.ID, &a.IncidentID, &a.AudienceUserID, &a.Channel, &a.Status, &a.Attempts, &a.LastError)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: get alert: %w", err)
	}
	return &a, nil
}

func (r repo) GetAlertByID(ctx context.Context, id uuid.UUID) (*model.Alert, error) {
	var a model.Alert
	err := r.q.QueryRow(ctx, `
		SELECT id, incident_id, audience_user_id, channel, status, attempts, last_error
		FROM alerts WHERE id = $1`, id).
		Scan(&a.ID, &a.IncidentID, &a.AudienceUserID, &a.Channel, &a.Status, &a.Attempts, &a.LastError)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: get alert by id: %w", err)
	}
	return &a, nil
}

func (r repo) AlertsForIncident(ctx context.Context, incidentID uuid.UUID) ([]model.Alert, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, incident_id, audience_user_id, channel, status, attempts, last_error
		FROM alerts WHERE incident_id = $1`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("postgres: alerts for incident: %w", err)
	}
	defer rows.Close()

	var out []model.Alert
	for rows.Next() {
		var a model.Alert
		if err := rows.Scan(&a.ID, &a.IncidentID, &a.AudienceUserID, &a.Channel, &a.Status, &a.Attempts, &a.LastError); err != nil {
			return nil, fmt.Errorf("postgres: scan alert: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CreateAlert enforces the one-alert-per-(incident,audience,channel)
// invariant via ON CONFLICT DO NOTHING, leaving the pre-existing row
// untouched if the cascade engine races itself (e.g. reminder re-seed);
// alert.ID is not updated to the existing row's id.
func (r repo) CreateAlert(ctx context.Context, alert *model.Alert) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO alerts (id, incident_id, audience_user_id, channel, status, attempts, last_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (incident_id, audience_user_id, channel) DO NOTHING`,
		alert.ID, alert.IncidentID, alert.AudienceUserID, alert.Channel, alert.Status, alert.Attempts, alert.LastError)
	if err != nil {
		return fmt.Errorf("postgres: create alert: %w", err)
	}
	return nil
}

func (r repo) UpdateAlert(ctx context.Context, alert *model.Alert) error {
	_, err := r.q.Exec(ctx, `
		UPDATE alerts SET status = $2, attempts = $3, last_error = $4 WHERE id = $1`,
		alert.ID, alert.Status, alert.Attempts, alert.LastError)
	if err != nil {
		return fmt.Errorf("postgres: update alert: %w", err)
	}
	return nil
}

// PendingCallAttempt returns the alert's attempt with result=pending, if
// any. Invariant 2 itself is enforced by the idx_call_attempts_one_pending
// unique index, not by callers checking this first.
func (r repo) PendingCallAttempt(ctx context.Context, alertID uuid.UUID) (*model.CallAttempt, error) {
	var c model.CallAttempt
	err := r.q.QueryRow(ctx, `
		SELECT id, alert_id, provider_call_id, attempt_number, result, dtmf_received,
		       started_at, ended_at, error_code
		FROM call_attempts WHERE alert_id = $1 AND result = 'pending'`, alertID).
		Scan(&c.ID, &c.AlertID, &c.ProviderCallID, &c.AttemptNumber, &c.Result, &c.DTMFReceived,
			&c.StartedAt, &c.EndedAt, &c.ErrorCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: pending call attempt: %w", err)
	}
	return &c, nil
}

func (r repo) CallAttemptsForAlert(ctx context.Context, alertID uuid.UUID) ([]model.CallAttempt, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, alert_id, provider_call_id, attempt_number, result, dtmf_received,
		       started_at, ended_at, error_code
		FROM call_attempts WHERE alert_id = $1 ORDER BY attempt_number ASC`, alertID)
	if err != nil {
		return nil, fmt.Errorf("postgres: call attempts for alert: %w", err)
	}
	defer rows.Close()

	var out []model.CallAttempt
	for rows.Next() {
		var c model.CallAttempt
		if err := rows.Scan(&c.ID, &c.AlertID, &c.ProviderCallID, &c.AttemptNumber, &c.Result, &c.DTMFReceived,
			&c.StartedAt, &c.EndedAt, &c.ErrorCode); err != nil {
			return nil, fmt.Errorf("postgres: scan call attempt: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r repo) GetCallAttemptByProviderCallID(ctx context.Context, providerCallID string) (*model.CallAttempt, error) {
	var c model.CallAttempt
	err := r.q.QueryRow(ctx, `
		SELECT id, alert_id, provider_call_id, attempt_number, result, dtmf_received,
		       started_at, ended_at, error_code
		FROM call_attempts WHERE provider_call_id = $1`, providerCallID).
		Scan(&c.ID, &c.AlertID, &c.ProviderCallID, &c.AttemptNumber, &c.Result, &c.DTMFReceived,
			&c.StartedAt, &c.EndedAt, &c.ErrorCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: get call attempt by provider call id: %w", err)
	}
	return &c, nil
}

func (r repo) CreateCallAttempt(ctx context.Context, attempt *model.CallAttempt) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO call_attempts (id, alert_id, provider_call_id, attempt_number, result,
		                           dtmf_received, started_at, ended_at, error_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		attempt.ID, attempt.AlertID, attempt.ProviderCallID, attempt.AttemptNumber, attempt.Result,
		attempt.DTMFReceived, attempt.StartedAt, attempt.EndedAt, attempt.ErrorCode)
	if err != nil {
		return fmt.Errorf("postgres: create call attempt: %w", err)
	}
	return nil
}

func (r repo) UpdateCallAttempt(ctx context.Context, attempt *model.CallAttempt) error {
	_, err := r.q.Exec(ctx, `
		UPDATE call_attempts SET
			provider_call_id = $2, result = $3, dtmf_received = $4, ended_at = $5, error_code = $6
		WHERE id = $1`,
		attempt.ID, attempt.ProviderCallID, attempt.Result, attempt.DTMFReceived, attempt.EndedAt, attempt.ErrorCode)
	if err != nil {
		return fmt.Errorf("postgres: update call attempt: %w", err)
	}
	return nil
}

// RecordInboxEvent inserts the dedupe row; a unique_violation on
// (provider, provider_event_id) is mapped to fresh=false rather than an
// error, per spec §4.2.
func (r repo) RecordInboxEvent(ctx context.Context, ev *model.InboxEvent) (bool, error) {
	_, err := r.q.Exec(ctx, `
		INSERT INTO inbox_events (id, provider, provider_event_id, received_at, raw_payload)
		VALUES ($1, $2, $3, $4, $5)`,
		ev.ID, ev.Provider, ev.ProviderEventID, ev.ReceivedAt, ev.RawPayload)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("postgres: record inbox event: %w", err)
	}
	return true, nil
}

func (r repo) MarkInboxProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) error {
	_, err := r.q.Exec(ctx, `UPDATE inbox_events SET processed_at = $2 WHERE id = $1`, id, processedAt)
	if err != nil {
		return fmt.Errorf("postgres: mark inbox processed: %w", err)
	}
	return nil
}

func (r repo) SweepUnprocessedInbox(ctx context.Context, olderThan time.Duration) ([]model.InboxEvent, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, provider, provider_event_id, received_at, raw_payload, processed_at
		FROM inbox_events
		WHERE processed_at IS NULL AND received_at < $1`, time.Now().Add(-olderThan))
	if err != nil {
		return nil, fmt.Errorf("postgres: sweep unprocessed inbox: %w", err)
	}
	defer rows.Close()

	var out []model.InboxEvent
	for rows.Next() {
		var e model.InboxEvent
		if err := rows.Scan(&e.ID, &e.Provider, &e.ProviderEventID, &e.ReceivedAt, &e.RawPayload, &e.ProcessedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan inbox event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r repo) GetOutboxByKey(ctx context.Context, idempotencyKey string) (*model.OutboxMessage, error) {
	var m model.OutboxMessage
	err := r.q.QueryRow(ctx, `
		SELECT id, idempotency_key, channel, payload, status, provider_message_id,
		       last_error, created_at, updated_at
		FROM outbox_messages WHERE idempotency_key = $1`, idempotencyKey).
		Scan(&m.ID, &m.IdempotencyKey, &m.Channel, &m.Payload, &m.Status, &m.ProviderMessageID,
			&m.LastError, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: get outbox by key: %w", err)
	}
	return &m, nil
}

// InsertOutboxPending implements spec §4.3 step 1: insert-or-read-existing
// on the idempotency key, in a single round trip.
func (r repo) InsertOutboxPending(ctx context.Context, msg *model.OutboxMessage) (bool, *model.OutboxMessage, error) {
	_, err := r.q.Exec(ctx, `
		INSERT INTO outbox_messages (id, idempotency_key, channel, payload, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'pending', $5, $5)`,
		msg.ID, msg.IdempotencyKey, msg.Channel, msg.Payload, msg.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			existing, getErr := r.GetOutboxByKey(ctx, msg.IdempotencyKey)
			if getErr != nil {
				return false, nil, getErr
			}
			return false, existing, nil
		}
		return false, nil, fmt.Errorf("postgres: insert outbox pending: %w", err)
	}
	return true, nil, nil
}

func (r repo) MarkOutboxSent(ctx context.Context, idempotencyKey, providerMessageID string) error {
	_, err := r.q.Exec(ctx, `
		UPDATE outbox_messages SET status = 'sent', provider_message_id = $2, updated_at = now()
		WHERE idempotency_key = $1`, idempotencyKey, providerMessageID)
	if err != nil {
		return fmt.Errorf("postgres: mark outbox sent: %w", err)
	}
	return nil
}

func (r repo) MarkOutboxFailed(ctx context.Context, idempotencyKey, lastError string) error {
	_, err := r.q.Exec(ctx, `
		UPDATE outbox_messages SET status = 'failed', last_error = $2, updated_at = now()
		WHERE idempotency_key = $1`, idempotencyKey, lastError)
	if err != nil {
		return fmt.Errorf("postgres: mark outbox failed: %w", err)
	}
	return nil
}

func (r repo) ScheduledActionsForIncident(ctx context.Context, incidentID uuid.UUID, state model.ScheduledActionState) ([]model.ScheduledAction, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, incident_id, action_type, run_at, state, payload, attempts, claimed_at
		FROM scheduled_actions WHERE incident_id = $1 AND state = $2`, incidentID, state)
	if err != nil {
		return nil, fmt.Errorf("postgres: scheduled actions for incident: %w", err)
	}
	defer rows.Close()

	var out []model.ScheduledAction
	for rows.Next() {
		var a model.ScheduledAction
		if err := rows.Scan(&a.ID, &a.IncidentID, &a.ActionType, &a.RunAt, &a.State, &a.Payload, &a.Attempts, &a.ClaimedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan scheduled action: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r repo) CreateScheduledAction(ctx context.Context, action *model.ScheduledAction) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO scheduled_actions (id, incident_id, action_type, run_at, state, payload, attempts)
		VALUES ($1, $2, $3, $4, 'scheduled', $5, 0)`,
		action.ID, action.IncidentID, action.ActionType, action.RunAt, action.Payload)
	if err != nil {
		return fmt.Errorf("postgres: create scheduled action: %w", err)
	}
	return nil
}

// CancelScheduledActionsForIncident implements the immediate-cancellation
// suspension semantics of spec §4.4/§5: flips every scheduled row to
// canceled in the same transaction as the incident's terminal transition.
func (r repo) CancelScheduledActionsForIncident(ctx context.Context, incidentID uuid.UUID) (int, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE scheduled_actions SET state = 'canceled'
		WHERE incident_id = $1 AND state = 'scheduled'`, incidentID)
	if err != nil {
		return 0, fmt.Errorf("postgres: cancel scheduled actions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ClaimDueScheduledActions is the scheduler's poll query (spec §4.4): claim
// due rows with SELECT ... FOR UPDATE SKIP LOCKED so concurrent runners
// never double-fire one action, then flip them to running in the same
// statement via a CTE.
func (r repo) ClaimDueScheduledActions(ctx context.Context, limit int) ([]model.ScheduledAction, error) {
	rows, err := r.q.Query(ctx, `
		WITH due AS (
			SELECT id FROM scheduled_actions
			WHERE state = 'scheduled' AND run_at <= now()
			ORDER BY run_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE scheduled_actions sa SET state = 'running', claimed_at = now()
		FROM due WHERE sa.id = due.id
		RETURNING sa.id, sa.incident_id, sa.action_type, sa.run_at, sa.state, sa.payload, sa.attempts, sa.claimed_at`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: claim due scheduled actions: %w", err)
	}
	defer rows.Close()

	var out []model.ScheduledAction
	for rows.Next() {
		var a model.ScheduledAction
		if err := rows.Scan(&a.ID, &a.IncidentID, &a.ActionType, &a.RunAt, &a.State, &a.Payload, &a.Attempts, &a.ClaimedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan claimed action: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r repo) MarkScheduledActionDone(ctx context.Context, id uuid.UUID) error {
	_, err := r.q.Exec(ctx, `UPDATE scheduled_actions SET state = 'done' WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: mark scheduled action done: %w", err)
	}
	return nil
}

func (r repo) MarkScheduledActionFailed(ctx context.Context, id uuid.UUID, attempts int) error {
	_, err := r.q.Exec(ctx, `UPDATE scheduled_actions SET state = 'failed', attempts = $2 WHERE id = $1`, id, attempts)
	if err != nil {
		return fmt.Errorf("postgres: mark scheduled action failed: %w", err)
	}
	return nil
}

func (r repo) RescheduleAction(ctx context.Context, id uuid.UUID, runAt time.Time, attempts int) error {
	_, err := r.q.Exec(ctx, `
		UPDATE scheduled_actions SET state = 'scheduled', run_at = $2, attempts = $3, claimed_at = NULL WHERE id = $1`,
		id, runAt, attempts)
	if err != nil {
		return fmt.Errorf("postgres: reschedule action: %w", err)
	}
	return nil
}

// RecoverStuckScheduledActions resets rows left in 'running' by a crashed
// runner back to 'scheduled' (spec §8 P6 restart property). Filtering on
// claimed_at rather than run_at matters for backlogged rows: a row whose
// run_at was already older than the processing timeout at claim time must
// not look stuck the instant it's picked up.
func (r repo) RecoverStuckScheduledActions(ctx context.Context, olderThan time.Duration) (int, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE scheduled_actions SET state = 'scheduled', claimed_at = NULL
		WHERE state = 'running' AND claimed_at < $1`, time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("postgres: recover stuck scheduled actions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
