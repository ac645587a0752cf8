package admin

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/malbeclabs/racevault/ledger/pkg/clickhouse"
)

type ResetEventsConfig struct {
	Client   clickhouse.Client
	Database string
	DryRun   bool
	// SkipConfirm drops without reading a confirmation from In.
	SkipConfirm bool
	In          io.Reader
	Out         io.Writer
}

// ResetEvents drops the ledger event tables and the goose version table from
// the analytics database, so the next migrate recreates them empty.
func ResetEvents(ctx context.Context, cfg ResetEventsConfig) (int, error) {
	if cfg.Client == nil {
		return 0, errors.New("client is required")
	}
	if cfg.Database == "" {
		cfg.Database = clickhouse.DefaultDatabase
	}
	out := cfg.Out
	if out == nil {
		out = io.Discard
	}

	conn, err := cfg.Client.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	rows, err := conn.Query(ctx, `
		SELECT name
		FROM system.tables
		WHERE database = ?
		  AND (name LIKE 'fact_racevault_%' OR name = 'goose_db_version')
		ORDER BY name
	`, cfg.Database)
	if err != nil {
		return 0, fmt.Errorf("failed to query tables: %w", err)
	}
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to read tables: %w", err)
	}

	if len(tables) == 0 {
		fmt.Fprintln(out, "No ledger tables found")
		return 0, nil
	}

	fmt.Fprintf(out, "WARNING: This will DROP %d table(s) from database '%s':\n\n", len(tables), cfg.Database)
	for _, table := range tables {
		fmt.Fprintf(out, "  - %s\n", table)
	}

	if cfg.DryRun {
		fmt.Fprintln(out, "\n[DRY RUN] Would drop the above tables")
		return 0, nil
	}

	if !cfg.SkipConfirm {
		if cfg.In == nil {
			return 0, errors.New("confirmation input is required")
		}
		fmt.Fprintf(out, "\nThis is a DESTRUCTIVE operation that cannot be undone!\n")
		fmt.Fprintf(out, "Type 'yes' to confirm: ")

		response, err := bufio.NewReader(cfg.In).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, fmt.Errorf("failed to read confirmation: %w", err)
		}
		if strings.TrimSpace(strings.ToLower(response)) != "yes" {
			fmt.Fprintf(out, "\nConfirmation failed. Operation cancelled.\n")
			return 0, nil
		}
		fmt.Fprintln(out)
	}

	for _, table := range tables {
		if err := conn.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s.%s", cfg.Database, table)); err != nil {
			return 0, fmt.Errorf("failed to drop table %s: %w", table, err)
		}
		fmt.Fprintf(out, "  Dropped %s\n", table)
	}
	fmt.Fprintf(out, "\nSuccessfully dropped %d table(s)\n", len(tables))
	return len(tables), nil
}
