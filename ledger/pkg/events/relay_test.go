package events_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/racevault/ledger/pkg/events"
	"github.com/malbeclabs/racevault/utils/pkg/retry"
	vaulttesting "github.com/malbeclabs/racevault/utils/pkg/testing"
)

type memOutbox struct {
	mu        sync.Mutex
	events    []events.Event
	published map[uuid.UUID]time.Time
}

func newMemOutbox(n int) *memOutbox {
	o := &memOutbox{published: make(map[uuid.UUID]time.Time)}
	for i := 0; i < n; i++ {
		ev, _ := events.New(events.TypeConfigUpdate, [32]byte{1}, [32]byte{2}, events.ConfigUpdate{Paused: i%2 == 0}, time.Unix(int64(i), 0))
		ev.Sequence = int64(i + 1)
		o.events = append(o.events, *ev)
	}
	return o
}

func (o *memOutbox) PendingEvents(_ context.Context, limit int) ([]events.Event, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []events.Event
	for _, ev := range o.events {
		if _, ok := o.published[ev.ID]; ok {
			continue
		}
		out = append(out, ev)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (o *memOutbox) MarkPublished(_ context.Context, ids []uuid.UUID, at time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, id := range ids {
		o.published[id] = at
	}
	return nil
}

type mockSink struct {
	mu         sync.Mutex
	publishFn  func(batch []events.Event) error
	seen       []int64
	closeCalls int
}

func (s *mockSink) Name() string { return "mock" }

func (s *mockSink) Publish(_ context.Context, batch []events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.publishFn != nil {
		if err := s.publishFn(batch); err != nil {
			return err
		}
	}
	for _, ev := range batch {
		s.seen = append(s.seen, ev.Sequence)
	}
	return nil
}

func (s *mockSink) Close() error {
	s.closeCalls++
	return nil
}

func TestRaceVault_Events_Relay_Config(t *testing.T) {
	t.Parallel()

	_, err := events.NewRelay(events.RelayConfig{})
	require.EqualError(t, err, "logger is required")

	_, err = events.NewRelay(events.RelayConfig{Logger: vaulttesting.NewLogger(), Outbox: newMemOutbox(0), Sink: &mockSink{}})
	require.EqualError(t, err, "interval must be greater than 0")
}

func TestRaceVault_Events_Relay_Flush(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("publishes everything in order across batches", func(t *testing.T) {
		t.Parallel()
		outbox := newMemOutbox(25)
		sink := &mockSink{}
		relay, err := events.NewRelay(events.RelayConfig{
			Logger:    vaulttesting.NewLogger(),
			Clock:     clockwork.NewFakeClockAt(time.Unix(100, 0)),
			Outbox:    outbox,
			Sink:      sink,
			Interval:  time.Second,
			BatchSize: 10,
		})
		require.NoError(t, err)

		n, err := relay.Flush(ctx)
		require.NoError(t, err)
		require.Equal(t, 25, n)
		require.True(t, sort.SliceIsSorted(sink.seen, func(i, j int) bool { return sink.seen[i] < sink.seen[j] }))
		require.Len(t, sink.seen, 25)

		n, err = relay.Flush(ctx)
		require.NoError(t, err)
		require.Zero(t, n)
	})

	t.Run("retries transient sink failures", func(t *testing.T) {
		t.Parallel()
		outbox := newMemOutbox(3)
		failures := 1
		sink := &mockSink{publishFn: func([]events.Event) error {
			if failures > 0 {
				failures--
				return errors.New("connection reset by peer")
			}
			return nil
		}}
		relay, err := events.NewRelay(events.RelayConfig{
			Logger:   vaulttesting.NewLogger(),
			Outbox:   outbox,
			Sink:     sink,
			Interval: time.Second,
			Retry:    retry.Config{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
		})
		require.NoError(t, err)

		n, err := relay.Flush(ctx)
		require.NoError(t, err)
		require.Equal(t, 3, n)
	})

	t.Run("leaves events pending when the sink keeps failing", func(t *testing.T) {
		t.Parallel()
		outbox := newMemOutbox(2)
		sink := &mockSink{publishFn: func([]events.Event) error { return errors.New("schema mismatch") }}
		relay, err := events.NewRelay(events.RelayConfig{
			Logger:   vaulttesting.NewLogger(),
			Outbox:   outbox,
			Sink:     sink,
			Interval: time.Second,
		})
		require.NoError(t, err)

		_, err = relay.Flush(ctx)
		require.Error(t, err)

		pending, err := outbox.PendingEvents(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 2)
	})
}

func TestRaceVault_Events_Relay_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	outbox := newMemOutbox(1)
	sink := &mockSink{}
	relay, err := events.NewRelay(events.RelayConfig{
		Logger:   vaulttesting.NewLogger(),
		Clock:    clockwork.NewFakeClock(),
		Outbox:   outbox,
		Sink:     sink,
		Interval: time.Minute,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.seen) == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestRaceVault_Events_MultiSink(t *testing.T) {
	t.Parallel()

	a, b := &mockSink{}, &mockSink{publishFn: func([]events.Event) error { return errors.New("down") }}
	multi := events.NewMultiSink(a, b, events.NewLogSink(vaulttesting.NewLogger()))

	err := multi.Publish(context.Background(), newMemOutbox(1).events)
	require.ErrorContains(t, err, "sink mock: down")
	require.Len(t, a.seen, 1)

	require.NoError(t, multi.Close())
	require.Equal(t, 1, a.closeCalls)
	require.Equal(t, 1, b.closeCalls)
}

func TestRaceVault_Events_DecodePayload(t *testing.T) {
	t.Parallel()

	ev, err := events.New(events.TypePayoutsClaimed, [32]byte{9}, [32]byte{8}, events.PayoutsClaimed{TotalAmount: 500, PayoutCount: 2}, time.Unix(10, 0))
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, ev.ID)

	var got events.PayoutsClaimed
	require.NoError(t, ev.Decode(&got))
	require.Equal(t, uint64(500), got.TotalAmount)
	require.Equal(t, uint32(2), got.PayoutCount)
}
