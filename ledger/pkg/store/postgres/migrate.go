package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver with database/sql
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrateUp applies all pending migrations.
func MigrateUp(ctx context.Context, log *slog.Logger, connStr string) error {
	return withGoose(connStr, func(db *sql.DB) error {
		log.Info("postgres: running migrations (up)")
		if err := goose.UpContext(ctx, db, "migrations"); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("postgres: migrations completed")
		return nil
	})
}

// MigrateDown rolls back the most recent migration.
func MigrateDown(ctx context.Context, log *slog.Logger, connStr string) error {
	return withGoose(connStr, func(db *sql.DB) error {
		log.Info("postgres: rolling back migration (down)")
		if err := goose.DownContext(ctx, db, "migrations"); err != nil {
			return fmt.Errorf("failed to rollback migration: %w", err)
		}
		log.Info("postgres: migration rollback completed")
		return nil
	})
}

// MigrateStatus prints the state of every migration.
func MigrateStatus(ctx context.Context, log *slog.Logger, connStr string) error {
	return withGoose(connStr, func(db *sql.DB) error {
		log.Info("postgres: migration status")
		if err := goose.StatusContext(ctx, db, "migrations"); err != nil {
			return fmt.Errorf("failed to get migration status: %w", err)
		}
		return nil
	})
}

func withGoose(connStr string, fn func(db *sql.DB) error) error {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return fn(db)
}
