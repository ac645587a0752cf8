package admin

import (
	"context"
	"log/slog"

	"github.com/malbeclabs/racevault/ledger/pkg/store/postgres"
)

// PgMigrateConfig holds configuration for PostgreSQL migrations
type PgMigrateConfig struct {
	Host     string
	Port     string
	Database string
	Username string
	Password string
	SSLMode  string
}

func (cfg PgMigrateConfig) connString() (string, error) {
	pg := postgres.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Database: cfg.Database,
		Username: cfg.Username,
		Password: cfg.Password,
		SSLMode:  cfg.SSLMode,
	}
	if err := pg.Validate(); err != nil {
		return "", err
	}
	return pg.ConnString(), nil
}

// PgMigrateUp runs all pending ledger migrations.
func PgMigrateUp(ctx context.Context, log *slog.Logger, cfg PgMigrateConfig) error {
	connStr, err := cfg.connString()
	if err != nil {
		return err
	}
	return postgres.MigrateUp(ctx, log, connStr)
}

// PgMigrateDown rolls back the last ledger migration.
func PgMigrateDown(ctx context.Context, log *slog.Logger, cfg PgMigrateConfig) error {
	connStr, err := cfg.connString()
	if err != nil {
		return err
	}
	return postgres.MigrateDown(ctx, log, connStr)
}

func PgMigrateStatus(ctx context.Context, log *slog.Logger, cfg PgMigrateConfig) error {
	connStr, err := cfg.connString()
	if err != nil {
		return err
	}
	return postgres.MigrateStatus(ctx, log, connStr)
}
