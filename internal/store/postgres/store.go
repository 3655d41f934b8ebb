package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/antonmal/protectogram/internal/store"
)

// PGStore is the pgxpool-backed implementation of store.Store. Reads outside
// a transaction run straight against the pool; every write path goes through
// WithTx so the advisory lock and multi-row invariants (spec §4.1, §7) hold.
type PGStore struct {
	repo
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{repo: repo{q: pool}, pool: pool}
}

func (s *PGStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	pgTx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}

	if err := fn(ctx, &Tx{repo: repo{q: pgTx}, tx: pgTx}); err != nil {
		if rbErr := pgTx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("postgres: tx failed (%v), rollback also failed: %w", err, rbErr)
		}
		return err
	}

	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit tx: %w", err)
	}
	return nil
}

func (s *PGStore) Close() {
	s.pool.Close()
}

// Ping reports whether the pool can reach the database, for GET /health/ready.
func (s *PGStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

var _ store.Store = (*PGStore)(nil)
