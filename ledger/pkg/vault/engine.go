package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"

	"github.com/malbeclabs/racevault/ledger/pkg/custody"
	"github.com/malbeclabs/racevault/ledger/pkg/events"
	"github.com/malbeclabs/racevault/ledger/pkg/metrics"
)

// BalanceReader reads a token account balance from the chain.
type BalanceReader interface {
	TokenBalance(ctx context.Context, account solana.PublicKey) (uint64, error)
}

type EngineConfig struct {
	Logger    *slog.Logger
	Clock     clockwork.Clock
	Store     Store
	ProgramID solana.PublicKey
	// ChainBalances is optional; when set, Reconcile also reports the on-chain balance.
	ChainBalances BalanceReader
}

func (cfg *EngineConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.ProgramID.IsZero() {
		cfg.ProgramID = DefaultProgramID
	}
	return nil
}

// Engine executes ledger operations against a Store. Every mutating method is
// a single transaction: either all of its effects commit, including the
// custody transfer and the outbox event, or none do.
type Engine struct {
	log  *slog.Logger
	cfg  EngineConfig
	keys Keys
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		log:  cfg.Logger,
		cfg:  cfg,
		keys: NewKeys(cfg.ProgramID),
	}, nil
}

func (e *Engine) Keys() Keys {
	return e.keys
}

func (e *Engine) run(ctx context.Context, op Operation, fn func(ctx context.Context, tx Tx) error) error {
	start := time.Now()
	err := e.cfg.Store.RunInTx(ctx, fn)
	metrics.ObserveOperation(string(op), Code(err), start)
	if err != nil {
		level := slog.LevelDebug
		if KindOf(err) == KindInternal {
			level = slog.LevelError
		}
		e.log.Log(ctx, level, "vault: operation failed", "operation", string(op), "code", Code(err), "error", err)
	}
	return err
}

func (e *Engine) view(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return e.cfg.Store.ReadTx(ctx, fn)
}

func (e *Engine) loadConfig(ctx context.Context, tx Tx, mint solana.PublicKey) (*Config, error) {
	addr, err := e.keys.Config(mint)
	if err != nil {
		return nil, err
	}
	cfg, err := tx.Config(ctx, addr)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrVaultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func (e *Engine) signerCapability(cfg *Config) (custody.SignerCapability, error) {
	capability, err := custody.NewSignerCapability(e.keys.ProgramID(), VaultSignerSeeds(cfg.Address), cfg.VaultSignerBump, cfg.VaultSigner)
	if err != nil {
		return custody.SignerCapability{}, fmt.Errorf("%w: %v", ErrInvariant, err)
	}
	return capability, nil
}

func emit(ctx context.Context, tx Tx, cfg *Config, typ events.Type, payload any, at time.Time) error {
	ev, err := events.New(typ, cfg.Address, cfg.Mint, payload, at)
	if err != nil {
		return err
	}
	if err := tx.AppendEvent(ctx, ev); err != nil {
		return fmt.Errorf("failed to append %s event: %w", typ, err)
	}
	return nil
}

// custodyErr maps transfer primitive failures onto ledger errors.
func custodyErr(err error) error {
	switch {
	case errors.Is(err, custody.ErrInsufficientFunds):
		return ErrInsufficientLiquidity
	case errors.Is(err, custody.ErrBalanceOverflow):
		return ErrOverflow
	case errors.Is(err, custody.ErrZeroAmount):
		return ErrZeroAmount
	case errors.Is(err, custody.ErrSameAccount):
		return fmt.Errorf("%w: beneficiary token account is the vault custody account", ErrInvalidIdentity)
	default:
		return err
	}
}
