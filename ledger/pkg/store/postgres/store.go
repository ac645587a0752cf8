// Package postgres is the durable vault store. Each ledger operation runs in
// one PostgreSQL transaction; rows read by a write transaction are locked with
// SELECT ... FOR UPDATE, so operations touching the same records serialize
// while disjoint ones proceed in parallel.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/malbeclabs/racevault/ledger/pkg/events"
	"github.com/malbeclabs/racevault/ledger/pkg/vault"
)

var (
	_ vault.Store   = (*Store)(nil)
	_ events.Outbox = (*Store)(nil)
	_ vault.Tx      = (*tx)(nil)
)

const uniqueViolation = "23505"

type StoreConfig struct {
	Logger *slog.Logger
	Pool   *pgxpool.Pool
}

func (cfg *StoreConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Pool == nil {
		return errors.New("pool is required")
	}
	return nil
}

type Store struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewStore(cfg StoreConfig) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Store{log: cfg.Logger, pool: cfg.Pool}, nil
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx vault.Tx) error) error {
	return s.inTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, false, fn)
}

func (s *Store) ReadTx(ctx context.Context, fn func(ctx context.Context, tx vault.Tx) error) error {
	return s.inTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, true, fn)
}

func (s *Store) inTx(ctx context.Context, opts pgx.TxOptions, readOnly bool, fn func(ctx context.Context, tx vault.Tx) error) error {
	pgTx, err := s.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// No-op after a successful commit.
		if err := pgTx.Rollback(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.log.Warn("postgres: failed to rollback transaction", "error", err)
		}
	}()

	if err := fn(ctx, &tx{tx: pgTx, readOnly: readOnly}); err != nil {
		return err
	}
	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// PendingEvents returns up to limit unpublished events ordered by sequence.
// Sequence values are taken at insert, not commit, so a slow transaction can
// surface a lower sequence after higher ones were already returned.
func (s *Store) PendingEvents(ctx context.Context, limit int) ([]events.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT sequence, id, type, vault, mint, payload::text, created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY sequence
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending events: %w", err)
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var (
			ev      events.Event
			typ     string
			payload string
		)
		if err := rows.Scan(&ev.Sequence, &ev.ID, &typ, key(&ev.Vault), key(&ev.Mint), &payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Type = events.Type(typ)
		ev.Payload = []byte(payload)
		ev.CreatedAt = ev.CreatedAt.UTC()
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pending events: %w", err)
	}
	return out, nil
}

func (s *Store) MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE outbox_events SET published_at = $2
		WHERE id = ANY($1) AND published_at IS NULL`, ids, at)
	if err != nil {
		return fmt.Errorf("failed to mark events published: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
