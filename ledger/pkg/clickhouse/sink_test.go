package clickhouse_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/racevault/ledger/pkg/clickhouse"
	clickhousetesting "github.com/malbeclabs/racevault/ledger/pkg/clickhouse/testing"
	"github.com/malbeclabs/racevault/ledger/pkg/events"
	vaulttesting "github.com/malbeclabs/racevault/utils/pkg/testing"
)

func TestRaceVault_ClickHouse_EventSink(t *testing.T) {
	t.Parallel()

	t.Run("config requires logger and client", func(t *testing.T) {
		t.Parallel()

		_, err := clickhouse.NewEventSink(clickhouse.EventSinkConfig{})
		require.EqualError(t, err, "logger is required")

		_, err = clickhouse.NewEventSink(clickhouse.EventSinkConfig{Logger: vaulttesting.NewLogger()})
		require.EqualError(t, err, "client is required")
	})

	t.Run("writes events and collapses redelivery", func(t *testing.T) {
		t.Parallel()

		client, _ := clickhousetesting.NewTestClient(t, sharedDB)
		clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
		sink, err := clickhouse.NewEventSink(clickhouse.EventSinkConfig{
			Logger: vaulttesting.NewLogger(),
			Client: client,
			Clock:  clock,
		})
		require.NoError(t, err)

		vault := vaulttesting.NewPubkey(t)
		mint := vaulttesting.NewPubkey(t)
		recipient := vaulttesting.NewPubkey(t)

		var batch []events.Event
		for i := range 3 {
			ev, err := events.New(events.TypePayoutRegistered, vault, mint, events.PayoutRegistered{
				EventID:   "race-1",
				Recipient: recipient,
				Amount:    uint64(1000 * (i + 1)),
			}, clock.Now())
			require.NoError(t, err)
			ev.Sequence = int64(i + 1)
			batch = append(batch, *ev)
		}

		ctx := clickhouse.ContextWithSyncInsert(t.Context())
		require.NoError(t, sink.Publish(ctx, batch))
		clock.Advance(time.Second)
		require.NoError(t, sink.Publish(ctx, batch[:1]))

		conn, err := client.Conn(t.Context())
		require.NoError(t, err)

		rows, err := conn.Query(t.Context(),
			"SELECT sequence, event_type, payload FROM "+clickhouse.EventsTable+" FINAL WHERE vault = ? ORDER BY sequence",
			vault.String())
		require.NoError(t, err)
		defer rows.Close()

		var sequences []int64
		for rows.Next() {
			var (
				seq     int64
				typ     string
				payload string
			)
			require.NoError(t, rows.Scan(&seq, &typ, &payload))
			require.Equal(t, string(events.TypePayoutRegistered), typ)

			var decoded events.PayoutRegistered
			require.NoError(t, json.Unmarshal([]byte(payload), &decoded))
			require.Equal(t, uint64(1000*seq), decoded.Amount)
			sequences = append(sequences, seq)
		}
		require.NoError(t, rows.Err())
		require.Equal(t, []int64{1, 2, 3}, sequences)
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		t.Parallel()

		sink, err := clickhouse.NewEventSink(clickhouse.EventSinkConfig{
			Logger: vaulttesting.NewLogger(),
			Client: &nilClient{},
		})
		require.NoError(t, err)
		require.NoError(t, sink.Publish(t.Context(), nil))
	})
}

type nilClient struct{}

func (c *nilClient) Conn(context.Context) (clickhouse.Connection, error) {
	return nil, errors.New("no connection")
}

func (c *nilClient) Close() error { return nil }
