package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/antonmal/protectogram/internal/domain/errs"
	"github.com/antonmal/protectogram/internal/metrics"
	"github.com/antonmal/protectogram/internal/store"
)

// Tx is the per-transaction store.Tx implementation: a repo bound to the
// pgx.Tx plus the advisory incident lock.
type Tx struct {
	repo
	tx pgx.Tx
}

const (
	lockRetryInterval = 100 * time.Millisecond
	lockRetryBudget   = 2 * time.Second
)

// LockIncident acquires the per-incident advisory lock (spec §4.1) by
// hashing the incident id into a 32-bit key for pg_try_advisory_xact_lock.
// The lock is automatically released at transaction end, so callers never
// unlock explicitly. Contention retries on a short, bounded schedule before
// surfacing errs.ErrContention, matching the "non-blocking with a short
// retry window (e.g., up to 2s)" requirement.
func (t *Tx) LockIncident(ctx context.Context, incidentID uuid.UUID) error {
	deadline := time.Now().Add(lockRetryBudget)
	for {
		var acquired bool
		err := t.tx.QueryRow(ctx, `SELECT pg_try_advisory_xact_lock(hashtext($1::text))`, incidentID.String()).
			Scan(&acquired)
		if err != nil {
			return err
		}
		if acquired {
			return nil
		}
		if time.Now().After(deadline) {
			metrics.AdvisoryLockContention.Inc()
			return errs.ErrContention
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}

var _ store.Tx = (*Tx)(nil)
