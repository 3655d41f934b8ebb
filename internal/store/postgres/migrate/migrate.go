// Package migrate wraps pressly/goose/v3 over the embedded migration SQL
// files, giving the "migrate" CLI subcommand and the admin migration-status
// endpoint (component C10) a shared implementation.
package migrate

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/antonmal/protectogram/internal/store/postgres/migrations"
)

// Up applies all pending migrations using db for connection management,
// matching goose's stdlib *sql.DB-based API.
func Up(ctx context.Context, db *sql.DB) error {
	p, err := newDBProvider(db)
	if err != nil {
		return err
	}
	_, err = p.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrate: up: %w", err)
	}
	return nil
}

// Status reports the applied/pending state of every embedded migration.
func Status(ctx context.Context, db *sql.DB) ([]*goose.MigrationStatus, error) {
	p, err := newDBProvider(db)
	if err != nil {
		return nil, err
	}
	statuses, err := p.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("migrate: status: %w", err)
	}
	return statuses, nil
}

// Down rolls back exactly one migration, for operator-driven recovery.
func Down(ctx context.Context, db *sql.DB) error {
	p, err := newDBProvider(db)
	if err != nil {
		return err
	}
	if _, err := p.Down(ctx); err != nil {
		return fmt.Errorf("migrate: down: %w", err)
	}
	return nil
}

func newDBProvider(db *sql.DB) (*goose.Provider, error) {
	p, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		return nil, fmt.Errorf("migrate: new provider: %w", err)
	}
	return p, nil
}
