package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Sink delivers a batch of events somewhere outside the ledger. Delivery is
// at-least-once, so sinks must tolerate duplicates keyed by Event.ID.
type Sink interface {
	Name() string
	Publish(ctx context.Context, batch []Event) error
	Close() error
}

// LogSink writes every event to a structured logger.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Publish(ctx context.Context, batch []Event) error {
	for _, ev := range batch {
		s.log.InfoContext(ctx, "event: published",
			"id", ev.ID.String(),
			"sequence", ev.Sequence,
			"type", string(ev.Type),
			"vault", ev.Vault.String(),
			"payload", string(ev.Payload),
		)
	}
	return nil
}

func (s *LogSink) Close() error { return nil }

// MultiSink publishes to every sink in order and fails if any of them fails.
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Name() string { return "multi" }

func (m *MultiSink) Publish(ctx context.Context, batch []Event) error {
	for _, s := range m.sinks {
		if err := s.Publish(ctx, batch); err != nil {
			return fmt.Errorf("sink %s: %w", s.Name(), err)
		}
	}
	return nil
}

func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("sink %s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
