package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/urfave/cli/v2"

	"github.com/antonmal/protectogram/config"
	"github.com/antonmal/protectogram/internal/store/postgres/migrate"
)

const (
	ServiceName      = "protectogram"
	ServiceNamespace = "protectogram"
)

var (
	version        = "0.0.0"
	commit         = "hash"
	commitDate     = time.Now().String()
	branch         = "branch"
	buildTimestamp = ""
)

func Run() error {
	app := &cli.App{
		Name:  ServiceName,
		Usage: "Panic-incident orchestrator: seeds guardian contact cascades and tracks acknowledgment.",
		Commands: []*cli.Command{
			serverCmd(),
			migrateCmd(),
		},
	}

	return app.Run(os.Args)
}

func serverCmd() *cli.Command {
	return &cli.Command{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "Run the webhook/admin/scheduler server",
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			app := NewApp(cfg)

			if err := app.Start(c.Context); err != nil {
				return err
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			slog.Info("shutting down")
			return app.Stop(context.Background())
		},
	}
}

// migrateCmd gives operators a local CLI path to the same goose-backed
// migration control the admin HTTP surface exposes, per SPEC_FULL.md §4.10
// (exit codes: 0 success, 1 user error, 2 infrastructure error — spec §6).
func migrateCmd() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply, roll back, or inspect database migrations",
		Subcommands: []*cli.Command{
			{
				Name: "up",
				Action: func(c *cli.Context) error {
					return withMigrationDB(c, func(ctx context.Context, db *sql.DB) error {
						return migrate.Up(ctx, db)
					})
				},
			},
			{
				Name: "down",
				Action: func(c *cli.Context) error {
					return withMigrationDB(c, func(ctx context.Context, db *sql.DB) error {
						return migrate.Down(ctx, db)
					})
				},
			},
			{
				Name: "status",
				Action: func(c *cli.Context) error {
					return withMigrationDB(c, func(ctx context.Context, db *sql.DB) error {
						statuses, err := migrate.Status(ctx, db)
						if err != nil {
							return err
						}
						for _, s := range statuses {
							fmt.Printf("%s\t%s\n", s.Source.Path, s.State)
						}
						return nil
					})
				},
			},
		},
	}
}

func withMigrationDB(c *cli.Context, fn func(ctx context.Context, db *sql.DB) error) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return cli.Exit(err, 1)
	}
	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return cli.Exit(err, 2)
	}
	defer db.Close()

	if err := fn(c.Context, db); err != nil {
		return cli.Exit(err, 2)
	}
	return nil
}
