// Package memory is an in-process vault store. Write transactions are
// serialized by a single mutex and stage their writes until fn succeeds.
package memory

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/malbeclabs/racevault/ledger/pkg/custody"
	"github.com/malbeclabs/racevault/ledger/pkg/events"
	"github.com/malbeclabs/racevault/ledger/pkg/vault"
)

var errReadOnly = errors.New("memory: write in read-only transaction")

var (
	_ vault.Store   = (*Store)(nil)
	_ events.Outbox = (*Store)(nil)
	_ vault.Tx      = (*tx)(nil)
)

type bonusRow struct {
	record vault.ReferralBonusRecord
	seq    uint64
}

type outboxRow struct {
	event       events.Event
	publishedAt time.Time
}

type state struct {
	configs         map[solana.PublicKey]vault.Config
	receipts        map[solana.PublicKey]vault.PayoutReceipt
	bonuses         map[solana.PublicKey]bonusRow
	payoutRegs      map[solana.PublicKey]vault.PayoutRegistry
	referrerRegs    map[solana.PublicKey]vault.ReferrerRegistry
	globalPayouts   map[solana.PublicKey]vault.GlobalPayoutRegistry
	globalReferrals map[solana.PublicKey]vault.GlobalReferralRegistry
	accounts        map[solana.PublicKey]custody.TokenAccount
	outbox          []outboxRow
	bonusSeq        uint64
}

type Store struct {
	mu sync.RWMutex
	st state
}

func New() *Store {
	return &Store{st: state{
		configs:         make(map[solana.PublicKey]vault.Config),
		receipts:        make(map[solana.PublicKey]vault.PayoutReceipt),
		bonuses:         make(map[solana.PublicKey]bonusRow),
		payoutRegs:      make(map[solana.PublicKey]vault.PayoutRegistry),
		referrerRegs:    make(map[solana.PublicKey]vault.ReferrerRegistry),
		globalPayouts:   make(map[solana.PublicKey]vault.GlobalPayoutRegistry),
		globalReferrals: make(map[solana.PublicKey]vault.GlobalReferralRegistry),
		accounts:        make(map[solana.PublicKey]custody.TokenAccount),
	}}
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx vault.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := newTx(&s.st, false)
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *Store) ReadTx(ctx context.Context, fn func(ctx context.Context, tx vault.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(ctx, newTx(&s.st, true))
}

// PendingEvents returns up to limit unpublished events in sequence order.
func (s *Store) PendingEvents(ctx context.Context, limit int) ([]events.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []events.Event
	for _, row := range s.st.outbox {
		if !row.publishedAt.IsZero() {
			continue
		}
		out = append(out, row.event)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.st.outbox {
		if slices.Contains(ids, s.st.outbox[i].event.ID) {
			s.st.outbox[i].publishedAt = at
		}
	}
	return nil
}

// Events returns every event ever appended, published or not.
func (s *Store) Events() []events.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]events.Event, len(s.st.outbox))
	for i, row := range s.st.outbox {
		out[i] = row.event
	}
	return out
}

func (s *Store) Ping(ctx context.Context) error { return nil }

// overlay stages writes to one table on top of the committed rows.
type overlay[T any] struct {
	base    map[solana.PublicKey]T
	writes  map[solana.PublicKey]T
	deletes map[solana.PublicKey]struct{}
}

func newOverlay[T any](base map[solana.PublicKey]T) *overlay[T] {
	return &overlay[T]{
		base:    base,
		writes:  make(map[solana.PublicKey]T),
		deletes: make(map[solana.PublicKey]struct{}),
	}
}

func (o *overlay[T]) get(k solana.PublicKey) (T, bool) {
	if _, ok := o.deletes[k]; ok {
		var zero T
		return zero, false
	}
	if v, ok := o.writes[k]; ok {
		return v, true
	}
	v, ok := o.base[k]
	return v, ok
}

func (o *overlay[T]) put(k solana.PublicKey, v T) {
	delete(o.deletes, k)
	o.writes[k] = v
}

func (o *overlay[T]) del(k solana.PublicKey) {
	delete(o.writes, k)
	o.deletes[k] = struct{}{}
}

// each visits every visible row.
func (o *overlay[T]) each(fn func(k solana.PublicKey, v T)) {
	for k, v := range o.writes {
		fn(k, v)
	}
	for k, v := range o.base {
		if _, ok := o.writes[k]; ok {
			continue
		}
		if _, ok := o.deletes[k]; ok {
			continue
		}
		fn(k, v)
	}
}

func (o *overlay[T]) commit() {
	for k := range o.deletes {
		delete(o.base, k)
	}
	for k, v := range o.writes {
		o.base[k] = v
	}
}
