package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/malbeclabs/racevault/ledger/pkg/metrics"
	"github.com/malbeclabs/racevault/utils/pkg/retry"
)

// Outbox is the store side of the relay: events committed together with the
// ledger state they describe, waiting to be published.
type Outbox interface {
	PendingEvents(ctx context.Context, limit int) ([]Event, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

type RelayConfig struct {
	Logger    *slog.Logger
	Clock     clockwork.Clock
	Outbox    Outbox
	Sink      Sink
	Interval  time.Duration
	BatchSize int
	Retry     retry.Config
}

func (cfg *RelayConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Outbox == nil {
		return errors.New("outbox is required")
	}
	if cfg.Sink == nil {
		return errors.New("sink is required")
	}
	if cfg.Interval <= 0 {
		return errors.New("interval must be greater than 0")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	if cfg.Retry.Clock == nil {
		cfg.Retry.Clock = cfg.Clock
	}
	return nil
}

// Relay polls the outbox and publishes pending events at least once, oldest
// sequence first. Ordering across concurrent writers is best-effort; consumers
// order by Event.Sequence and dedupe by Event.ID.
type Relay struct {
	log     *slog.Logger
	cfg     RelayConfig
	flushMu sync.Mutex
}

func NewRelay(cfg RelayConfig) (*Relay, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Relay{log: cfg.Logger, cfg: cfg}, nil
}

// Run flushes the outbox on every tick until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	r.log.Info("relay: starting", "interval", r.cfg.Interval, "sink", r.cfg.Sink.Name())

	r.safeFlush(ctx)

	ticker := r.cfg.Clock.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.log.Info("relay: stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			r.safeFlush(ctx)
		}
	}
}

func (r *Relay) safeFlush(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("relay: flush panicked", "panic", rec)
			metrics.OutboxPublishFailuresTotal.Inc()
		}
	}()

	if _, err := r.Flush(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		r.log.Error("relay: flush failed", "error", err)
	}
}

// Flush publishes batches until the outbox is empty and returns how many
// events were published.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	published := 0
	for {
		batch, err := r.cfg.Outbox.PendingEvents(ctx, r.cfg.BatchSize)
		if err != nil {
			return published, fmt.Errorf("failed to load pending events: %w", err)
		}
		if len(batch) == 0 {
			return published, nil
		}

		err = retry.Do(ctx, r.cfg.Retry, func(ctx context.Context) error {
			return r.cfg.Sink.Publish(ctx, batch)
		})
		if err != nil {
			metrics.OutboxPublishFailuresTotal.Inc()
			return published, fmt.Errorf("failed to publish %d events: %w", len(batch), err)
		}

		ids := make([]uuid.UUID, len(batch))
		for i, ev := range batch {
			ids[i] = ev.ID
			metrics.OutboxPublishedTotal.WithLabelValues(string(ev.Type)).Inc()
		}
		now := r.cfg.Clock.Now()
		if err := r.cfg.Outbox.MarkPublished(ctx, ids, now); err != nil {
			return published, fmt.Errorf("failed to mark events published: %w", err)
		}
		metrics.OutboxLagSeconds.Set(now.Sub(batch[0].CreatedAt).Seconds())

		published += len(batch)
		r.log.Debug("relay: published batch", "count", len(batch), "last_sequence", batch[len(batch)-1].Sequence)

		if len(batch) < r.cfg.BatchSize {
			return published, nil
		}
	}
}
