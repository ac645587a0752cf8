package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/malbeclabs/racevault/ledger/pkg/events"
)

const EventsTable = "fact_racevault_events"

type EventSinkConfig struct {
	Logger *slog.Logger
	Client Client
	Clock  clockwork.Clock
}

func (cfg *EventSinkConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Client == nil {
		return errors.New("client is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// EventSink appends ledger events to the events fact table. The table is a
// ReplacingMergeTree keyed by event id, so redelivered batches collapse on merge.
type EventSink struct {
	log *slog.Logger
	cfg EventSinkConfig
}

func NewEventSink(cfg EventSinkConfig) (*EventSink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &EventSink{log: cfg.Logger, cfg: cfg}, nil
}

func (s *EventSink) Name() string { return "clickhouse" }

func (s *EventSink) Publish(ctx context.Context, batch []events.Event) error {
	if len(batch) == 0 {
		return nil
	}
	conn, err := s.cfg.Client.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	b, err := conn.PrepareBatch(ctx, "INSERT INTO "+EventsTable)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	defer b.Close()

	ingestedAt := s.cfg.Clock.Now().UTC()
	for i, ev := range batch {
		err := b.Append(
			ev.ID,
			ev.Sequence,
			string(ev.Type),
			ev.Vault.String(),
			ev.Mint.String(),
			string(ev.Payload),
			ev.CreatedAt.UTC(),
			ingestedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to append row %d: %w", i, err)
		}
	}
	if err := b.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	s.log.Debug("clickhouse: wrote events", "table", EventsTable, "count", len(batch))
	return nil
}

func (s *EventSink) Close() error {
	return s.cfg.Client.Close()
}
