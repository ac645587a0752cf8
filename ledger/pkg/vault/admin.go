package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/racevault/ledger/pkg/custody"
	"github.com/malbeclabs/racevault/ledger/pkg/events"
	"github.com/malbeclabs/racevault/ledger/pkg/metrics"
)

type InitializeParams struct {
	Authority solana.PublicKey
	Mint      solana.PublicKey
}

// Initialize creates the vault for a mint: its config, both global registries
// and the custody token account owned by the vault signer. Registries and the
// custody account left behind by a closed vault are reused as they are.
func (e *Engine) Initialize(ctx context.Context, p InitializeParams) (*Config, error) {
	if p.Authority.IsZero() || p.Mint.IsZero() {
		return nil, ErrInvalidIdentity
	}

	var cfg *Config
	err := e.run(ctx, OpInitialize, func(ctx context.Context, tx Tx) error {
		configAddr, err := e.keys.Config(p.Mint)
		if err != nil {
			return err
		}
		signer, bump, err := e.keys.VaultSigner(configAddr)
		if err != nil {
			return err
		}
		vaultToken, err := custody.AssociatedAddress(signer, p.Mint)
		if err != nil {
			return err
		}

		now := e.cfg.Clock.Now()
		ts := now.Unix()
		cfg = &Config{
			Address:         configAddr,
			Authority:       p.Authority,
			Mint:            p.Mint,
			VaultSigner:     signer,
			VaultSignerBump: bump,
			VaultToken:      vaultToken,
			CreatedAt:       ts,
			UpdatedAt:       ts,
		}
		if err := tx.InsertConfig(ctx, cfg); err != nil {
			if errors.Is(err, ErrAlreadyExists) {
				return ErrAlreadyInitialized
			}
			return fmt.Errorf("failed to insert config: %w", err)
		}

		payoutAddr, err := e.keys.GlobalPayoutRegistry(configAddr)
		if err != nil {
			return err
		}
		_, err = tx.GlobalPayoutRegistry(ctx, payoutAddr)
		switch {
		case errors.Is(err, ErrNotFound):
			global := &GlobalPayoutRegistry{Address: payoutAddr, Config: configAddr, LastUpdated: ts}
			if err := tx.PutGlobalPayoutRegistry(ctx, global); err != nil {
				return fmt.Errorf("failed to create global payout registry: %w", err)
			}
		case err != nil:
			return fmt.Errorf("failed to load global payout registry: %w", err)
		}

		referralAddr, err := e.keys.GlobalReferralRegistry(configAddr)
		if err != nil {
			return err
		}
		_, err = tx.GlobalReferralRegistry(ctx, referralAddr)
		switch {
		case errors.Is(err, ErrNotFound):
			global := &GlobalReferralRegistry{Address: referralAddr, Config: configAddr, LastUpdated: ts}
			if err := tx.PutGlobalReferralRegistry(ctx, global); err != nil {
				return fmt.Errorf("failed to create global referral registry: %w", err)
			}
		case err != nil:
			return fmt.Errorf("failed to load global referral registry: %w", err)
		}

		if _, err := custody.OpenAccount(ctx, tx, signer, p.Mint); err != nil {
			return fmt.Errorf("failed to open vault token account: %w", err)
		}

		return emit(ctx, tx, cfg, events.TypeVaultInitialized, events.VaultInitialized{
			Authority:   p.Authority,
			VaultSigner: signer,
			VaultToken:  vaultToken,
			Timestamp:   ts,
		}, now)
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("vault: initialized",
		"mint", cfg.Mint.String(),
		"config", cfg.Address.String(),
		"authority", cfg.Authority.String(),
		"vault_token", cfg.VaultToken.String(),
	)
	return cfg, nil
}

type DepositParams struct {
	Mint      solana.PublicKey
	Depositor solana.PublicKey
	Amount    uint64
}

// Deposit credits the vault custody account with funds that entered from
// outside the ledger. It touches no registry.
func (e *Engine) Deposit(ctx context.Context, p DepositParams) (*custody.TokenAccount, error) {
	var acct *custody.TokenAccount
	err := e.run(ctx, OpDeposit, func(ctx context.Context, tx Tx) error {
		cfg, err := e.loadConfig(ctx, tx, p.Mint)
		if err != nil {
			return err
		}
		if err := Authorize(cfg, p.Depositor, OpDeposit); err != nil {
			return err
		}
		if p.Amount == 0 {
			return ErrZeroAmount
		}
		if p.Depositor.IsZero() {
			return ErrInvalidIdentity
		}

		acct, err = custody.Credit(ctx, tx, cfg.VaultToken, p.Amount)
		if errors.Is(err, custody.ErrAccountNotFound) {
			return fmt.Errorf("%w: vault token account %s is missing", ErrInvariant, cfg.VaultToken)
		}
		if err != nil {
			return custodyErr(err)
		}

		now := e.cfg.Clock.Now()
		return emit(ctx, tx, cfg, events.TypeDeposit, events.Deposit{
			Depositor:  p.Depositor,
			VaultToken: cfg.VaultToken,
			Amount:     p.Amount,
			Balance:    acct.Amount,
			Timestamp:  now.Unix(),
		}, now)
	})
	if err != nil {
		return nil, err
	}

	metrics.DepositedAmountTotal.Add(float64(p.Amount))
	e.log.Info("vault: deposit", "depositor", p.Depositor.String(), "amount", p.Amount, "balance", acct.Amount)
	return acct, nil
}

// Reconcile reports the custody balance next to the outstanding pending
// totals. When a chain reader is configured the on-chain balance of the same
// account is read first, outside the transaction.
func (e *Engine) Reconcile(ctx context.Context, mint, caller solana.PublicKey) (*ReconcileResult, error) {
	configAddr, err := e.keys.Config(mint)
	if err != nil {
		return nil, err
	}
	signer, _, err := e.keys.VaultSigner(configAddr)
	if err != nil {
		return nil, err
	}
	vaultToken, err := custody.AssociatedAddress(signer, mint)
	if err != nil {
		return nil, err
	}

	var onChain *uint64
	if e.cfg.ChainBalances != nil {
		balance, err := e.cfg.ChainBalances.TokenBalance(ctx, vaultToken)
		if err != nil {
			e.log.Warn("vault: failed to read on-chain balance", "vault_token", vaultToken.String(), "error", err)
		} else {
			onChain = &balance
		}
	}

	var result *ReconcileResult
	err = e.run(ctx, OpReconcile, func(ctx context.Context, tx Tx) error {
		cfg, err := e.loadConfig(ctx, tx, mint)
		if err != nil {
			return err
		}
		if err := Authorize(cfg, caller, OpReconcile); err != nil {
			return err
		}

		outstanding, err := e.outstanding(ctx, tx, cfg.Address)
		if err != nil {
			return err
		}
		acct, err := tx.TokenAccount(ctx, cfg.VaultToken)
		if err != nil {
			return fmt.Errorf("%w: failed to load vault token account: %v", ErrInvariant, err)
		}

		now := e.cfg.Clock.Now()
		result = &ReconcileResult{
			VaultToken:     cfg.VaultToken,
			Balance:        acct.Amount,
			OnChainBalance: onChain,
			Outstanding:    outstanding,
			Timestamp:      now.Unix(),
		}
		return emit(ctx, tx, cfg, events.TypeReconcile, events.Reconcile{
			VaultToken:     result.VaultToken,
			Balance:        result.Balance,
			OnChainBalance: result.OnChainBalance,
			Outstanding:    result.Outstanding,
			Timestamp:      result.Timestamp,
		}, now)
	})
	if err != nil {
		return nil, err
	}

	if result.Balance < result.Outstanding {
		e.log.Warn("vault: custody balance below outstanding obligations",
			"vault_token", result.VaultToken.String(),
			"balance", result.Balance,
			"outstanding", result.Outstanding,
		)
	}
	return result, nil
}

// outstanding sums pending payouts and pending bonuses of a vault.
func (e *Engine) outstanding(ctx context.Context, tx Tx, config solana.PublicKey) (uint64, error) {
	payoutAddr, err := e.keys.GlobalPayoutRegistry(config)
	if err != nil {
		return 0, err
	}
	referralAddr, err := e.keys.GlobalReferralRegistry(config)
	if err != nil {
		return 0, err
	}

	var total uint64
	payouts, err := tx.GlobalPayoutRegistry(ctx, payoutAddr)
	switch {
	case err == nil:
		total = payouts.TotalPending
	case !errors.Is(err, ErrNotFound):
		return 0, fmt.Errorf("failed to load global payout registry: %w", err)
	}
	referrals, err := tx.GlobalReferralRegistry(ctx, referralAddr)
	switch {
	case err == nil:
		if total, err = addU64(total, referrals.TotalPending); err != nil {
			return 0, err
		}
	case !errors.Is(err, ErrNotFound):
		return 0, fmt.Errorf("failed to load global referral registry: %w", err)
	}
	return total, nil
}

// TransferAuthority hands the vault to a new authority.
func (e *Engine) TransferAuthority(ctx context.Context, mint, caller, newAuthority solana.PublicKey) (*Config, error) {
	var cfg *Config
	err := e.run(ctx, OpTransferAuthority, func(ctx context.Context, tx Tx) error {
		var err error
		cfg, err = e.loadConfig(ctx, tx, mint)
		if err != nil {
			return err
		}
		if err := Authorize(cfg, caller, OpTransferAuthority); err != nil {
			return err
		}
		if newAuthority.IsZero() {
			return ErrInvalidIdentity
		}

		old := cfg.Authority
		now := e.cfg.Clock.Now()
		cfg.Authority = newAuthority
		cfg.UpdatedAt = now.Unix()
		if err := tx.UpdateConfig(ctx, cfg); err != nil {
			return fmt.Errorf("failed to update config: %w", err)
		}
		return emit(ctx, tx, cfg, events.TypeAuthorityTransfer, events.AuthorityTransfer{
			OldAuthority: old,
			NewAuthority: newAuthority,
			Timestamp:    cfg.UpdatedAt,
		}, now)
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("vault: authority transferred", "mint", mint.String(), "new_authority", newAuthority.String())
	return cfg, nil
}

// UpdateConfig sets the pause flag when paused is non-nil. A nil paused
// leaves the config unchanged but still records the update.
func (e *Engine) UpdateConfig(ctx context.Context, mint, caller solana.PublicKey, paused *bool) (*Config, error) {
	var cfg *Config
	err := e.run(ctx, OpUpdateConfig, func(ctx context.Context, tx Tx) error {
		var err error
		cfg, err = e.loadConfig(ctx, tx, mint)
		if err != nil {
			return err
		}
		if err := Authorize(cfg, caller, OpUpdateConfig); err != nil {
			return err
		}

		now := e.cfg.Clock.Now()
		if paused != nil {
			cfg.Paused = *paused
			cfg.UpdatedAt = now.Unix()
			if err := tx.UpdateConfig(ctx, cfg); err != nil {
				return fmt.Errorf("failed to update config: %w", err)
			}
		}
		return emit(ctx, tx, cfg, events.TypeConfigUpdate, events.ConfigUpdate{
			Paused:    cfg.Paused,
			Timestamp: now.Unix(),
		}, now)
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("vault: config updated", "mint", mint.String(), "paused", cfg.Paused)
	return cfg, nil
}

// Close removes the vault config. Registries, records and custody funds stay
// in place and remain readable; claims need the vault to be initialized again.
func (e *Engine) Close(ctx context.Context, mint, caller solana.PublicKey) error {
	err := e.run(ctx, OpClose, func(ctx context.Context, tx Tx) error {
		cfg, err := e.loadConfig(ctx, tx, mint)
		if err != nil {
			return err
		}
		if err := Authorize(cfg, caller, OpClose); err != nil {
			return err
		}
		if err := tx.DeleteConfig(ctx, cfg.Address); err != nil {
			return fmt.Errorf("failed to delete config: %w", err)
		}
		now := e.cfg.Clock.Now()
		return emit(ctx, tx, cfg, events.TypeConfigClose, events.ConfigClose{
			Authority: cfg.Authority,
			Timestamp: now.Unix(),
		}, now)
	})
	if err != nil {
		return err
	}

	e.log.Info("vault: closed", "mint", mint.String())
	return nil
}
