package vault

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/racevault/ledger/pkg/custody"
	"github.com/malbeclabs/racevault/ledger/pkg/events"
)

// Store runs ledger operations as isolated units of work.
type Store interface {
	// RunInTx runs fn in a read-write transaction. Every record fn reads is
	// locked until commit; fn returning an error rolls back every write.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// ReadTx runs fn against a consistent read-only snapshot.
	ReadTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of record operations available inside a transaction. Getters
// return ErrNotFound for missing records; Insert methods return
// ErrAlreadyExists when the key is taken.
type Tx interface {
	custody.Accounts

	Config(ctx context.Context, addr solana.PublicKey) (*Config, error)
	InsertConfig(ctx context.Context, cfg *Config) error
	UpdateConfig(ctx context.Context, cfg *Config) error
	DeleteConfig(ctx context.Context, addr solana.PublicKey) error

	PayoutReceipt(ctx context.Context, addr solana.PublicKey) (*PayoutReceipt, error)
	InsertPayoutReceipt(ctx context.Context, receipt *PayoutReceipt) error

	ReferralBonus(ctx context.Context, addr solana.PublicKey) (*ReferralBonusRecord, error)
	InsertReferralBonus(ctx context.Context, record *ReferralBonusRecord) error
	// ReferralBonusesByReferrer lists a referrer's records in creation order.
	ReferralBonusesByReferrer(ctx context.Context, config, referrer solana.PublicKey, unclaimedOnly bool) ([]*ReferralBonusRecord, error)
	MarkReferralBonusesClaimed(ctx context.Context, addrs []solana.PublicKey, claimedAt int64) error

	PayoutRegistry(ctx context.Context, addr solana.PublicKey) (*PayoutRegistry, error)
	PutPayoutRegistry(ctx context.Context, reg *PayoutRegistry) error

	ReferrerRegistry(ctx context.Context, addr solana.PublicKey) (*ReferrerRegistry, error)
	PutReferrerRegistry(ctx context.Context, reg *ReferrerRegistry) error

	GlobalPayoutRegistry(ctx context.Context, addr solana.PublicKey) (*GlobalPayoutRegistry, error)
	PutGlobalPayoutRegistry(ctx context.Context, reg *GlobalPayoutRegistry) error

	GlobalReferralRegistry(ctx context.Context, addr solana.PublicKey) (*GlobalReferralRegistry, error)
	PutGlobalReferralRegistry(ctx context.Context, reg *GlobalReferralRegistry) error

	// AppendEvent writes ev to the outbox in the same transaction.
	AppendEvent(ctx context.Context, ev *events.Event) error
}
