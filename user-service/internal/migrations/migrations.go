// Package migrations applies the embedded PostgreSQL schema with goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed sql/*.sql
var embedded embed.FS

const dir = "sql"

// Runner wraps goose against one database.
type Runner struct {
	db  *sql.DB
	log *slog.Logger
}

// New prepares goose for the postgres dialect and the embedded migrations.
func New(db *sql.DB, log *slog.Logger) (*Runner, error) {
	goose.SetBaseFS(embedded)
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("configure goose: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Runner{db: db, log: log}, nil
}

// Up applies pending migrations.
func (r *Runner) Up(ctx context.Context) error {
	r.log.Info("applying migrations")
	if err := goose.UpContext(ctx, r.db, dir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	r.log.Info("migrations applied")
	return nil
}

// Down rolls back the latest migration, or down to target when target > 0.
func (r *Runner) Down(ctx context.Context, target int64) error {
	if target > 0 {
		r.log.Info("rolling back migrations", "target", target)
		if err := goose.DownToContext(ctx, r.db, dir, target); err != nil {
			return fmt.Errorf("rollback to version %d: %w", target, err)
		}
		return nil
	}
	r.log.Info("rolling back latest migration")
	if err := goose.DownContext(ctx, r.db, dir); err != nil {
		return fmt.Errorf("rollback latest migration: %w", err)
	}
	return nil
}

// Status prints applied and pending migrations.
func (r *Runner) Status(ctx context.Context) error {
	if err := goose.StatusContext(ctx, r.db, dir); err != nil {
		return fmt.Errorf("migration status: %w", err)
	}
	return nil
}
