package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/racevault/ledger/pkg/vault"
)

type BootstrapConfig struct {
	Logger    *slog.Logger
	Store     vault.Store
	ProgramID solana.PublicKey
	// KeypairPath is a solana-keygen JSON file holding the vault authority.
	KeypairPath string
	Mint        solana.PublicKey
	// InitialDeposit is credited to custody after initialization when non-zero.
	InitialDeposit uint64
}

func (cfg *BootstrapConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.KeypairPath == "" {
		return errors.New("keypair path is required")
	}
	if cfg.Mint.IsZero() {
		return errors.New("mint is required")
	}
	return nil
}

// Bootstrap initializes the vault for a mint with the keypair as authority.
// An already initialized vault is left as is and returned.
func Bootstrap(ctx context.Context, cfg BootstrapConfig) (*vault.Config, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	key, err := solana.PrivateKeyFromSolanaKeygenFile(cfg.KeypairPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read keypair: %w", err)
	}
	authority := key.PublicKey()

	engine, err := vault.NewEngine(vault.EngineConfig{
		Logger:    cfg.Logger,
		Store:     cfg.Store,
		ProgramID: cfg.ProgramID,
	})
	if err != nil {
		return nil, err
	}

	vaultCfg, err := engine.Initialize(ctx, vault.InitializeParams{Authority: authority, Mint: cfg.Mint})
	switch {
	case errors.Is(err, vault.ErrAlreadyInitialized):
		cfg.Logger.Info("vault already initialized", "mint", cfg.Mint)
		vaultCfg, err = engine.GetConfig(ctx, cfg.Mint)
		if err != nil {
			return nil, err
		}
		if !vaultCfg.Authority.Equals(authority) {
			return nil, fmt.Errorf("vault for mint %s is owned by %s, not %s", cfg.Mint, vaultCfg.Authority, authority)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to initialize vault: %w", err)
	default:
		cfg.Logger.Info("vault initialized", "mint", cfg.Mint, "config", vaultCfg.Address, "authority", authority)
	}

	if cfg.InitialDeposit > 0 {
		acct, err := engine.Deposit(ctx, vault.DepositParams{Mint: cfg.Mint, Depositor: authority, Amount: cfg.InitialDeposit})
		if err != nil {
			return nil, fmt.Errorf("failed to deposit: %w", err)
		}
		cfg.Logger.Info("initial deposit credited", "amount", cfg.InitialDeposit, "balance", acct.Amount)
	}
	return vaultCfg, nil
}
