package vault

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/racevault/ledger/pkg/custody"
)

// Read accessors resolve addresses from logical keys without requiring the
// vault config, so registries of a closed vault stay readable. They run in a
// read-only snapshot and never take locks that block writers.

func (e *Engine) GetConfig(ctx context.Context, mint solana.PublicKey) (*Config, error) {
	var cfg *Config
	err := e.view(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		cfg, err = e.loadConfig(ctx, tx, mint)
		return err
	})
	return cfg, err
}

// GetPendingPayouts returns the payout registry of recipient, or ErrNotFound
// when nothing was ever registered for them.
func (e *Engine) GetPendingPayouts(ctx context.Context, mint, recipient solana.PublicKey) (*PayoutRegistry, error) {
	configAddr, err := e.keys.Config(mint)
	if err != nil {
		return nil, err
	}
	addr, err := e.keys.PayoutRegistry(configAddr, recipient)
	if err != nil {
		return nil, err
	}
	var reg *PayoutRegistry
	err = e.view(ctx, func(ctx context.Context, tx Tx) error {
		reg, err = tx.PayoutRegistry(ctx, addr)
		return err
	})
	return reg, err
}

// GetPendingBonuses returns the referrer registry of referrer, or ErrNotFound.
func (e *Engine) GetPendingBonuses(ctx context.Context, mint, referrer solana.PublicKey) (*ReferrerRegistry, error) {
	configAddr, err := e.keys.Config(mint)
	if err != nil {
		return nil, err
	}
	addr, err := e.keys.ReferrerRegistry(configAddr, referrer)
	if err != nil {
		return nil, err
	}
	var reg *ReferrerRegistry
	err = e.view(ctx, func(ctx context.Context, tx Tx) error {
		reg, err = tx.ReferrerRegistry(ctx, addr)
		return err
	})
	return reg, err
}

// BonusHistory is a referrer registry together with every record it aggregates.
type BonusHistory struct {
	Registry *ReferrerRegistry      `json:"registry"`
	Records  []*ReferralBonusRecord `json:"records"`
}

// GetAllBonuses returns the referrer's registry and all of their referral
// records, claimed or not, in registration order. Both come from one snapshot.
func (e *Engine) GetAllBonuses(ctx context.Context, mint, referrer solana.PublicKey) (*BonusHistory, error) {
	configAddr, err := e.keys.Config(mint)
	if err != nil {
		return nil, err
	}
	addr, err := e.keys.ReferrerRegistry(configAddr, referrer)
	if err != nil {
		return nil, err
	}
	history := &BonusHistory{}
	err = e.view(ctx, func(ctx context.Context, tx Tx) error {
		history.Registry, err = tx.ReferrerRegistry(ctx, addr)
		if err != nil {
			return err
		}
		history.Records, err = tx.ReferralBonusesByReferrer(ctx, configAddr, referrer, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return history, nil
}

func (e *Engine) GetGlobalPayoutStats(ctx context.Context, mint solana.PublicKey) (*GlobalPayoutRegistry, error) {
	configAddr, err := e.keys.Config(mint)
	if err != nil {
		return nil, err
	}
	addr, err := e.keys.GlobalPayoutRegistry(configAddr)
	if err != nil {
		return nil, err
	}
	var reg *GlobalPayoutRegistry
	err = e.view(ctx, func(ctx context.Context, tx Tx) error {
		reg, err = tx.GlobalPayoutRegistry(ctx, addr)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return nil, ErrVaultNotFound
	}
	return reg, err
}

func (e *Engine) GetGlobalReferralStats(ctx context.Context, mint solana.PublicKey) (*GlobalReferralRegistry, error) {
	configAddr, err := e.keys.Config(mint)
	if err != nil {
		return nil, err
	}
	addr, err := e.keys.GlobalReferralRegistry(configAddr)
	if err != nil {
		return nil, err
	}
	var reg *GlobalReferralRegistry
	err = e.view(ctx, func(ctx context.Context, tx Tx) error {
		reg, err = tx.GlobalReferralRegistry(ctx, addr)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return nil, ErrVaultNotFound
	}
	return reg, err
}

func (e *Engine) GetPayoutReceipt(ctx context.Context, mint solana.PublicKey, hash Hash, recipient solana.PublicKey) (*PayoutReceipt, error) {
	configAddr, err := e.keys.Config(mint)
	if err != nil {
		return nil, err
	}
	addr, err := e.keys.PayoutReceipt(configAddr, hash, recipient)
	if err != nil {
		return nil, err
	}
	var receipt *PayoutReceipt
	err = e.view(ctx, func(ctx context.Context, tx Tx) error {
		receipt, err = tx.PayoutReceipt(ctx, addr)
		return err
	})
	return receipt, err
}

func (e *Engine) GetReferralBonus(ctx context.Context, mint solana.PublicKey, eventID string, referrer, referee solana.PublicKey) (*ReferralBonusRecord, error) {
	configAddr, err := e.keys.Config(mint)
	if err != nil {
		return nil, err
	}
	addr, err := e.keys.ReferralBonus(configAddr, eventID, referrer, referee)
	if err != nil {
		return nil, err
	}
	var record *ReferralBonusRecord
	err = e.view(ctx, func(ctx context.Context, tx Tx) error {
		record, err = tx.ReferralBonus(ctx, addr)
		return err
	})
	return record, err
}

// GetVaultBalance returns the custody token account of the vault.
func (e *Engine) GetVaultBalance(ctx context.Context, mint solana.PublicKey) (*custody.TokenAccount, error) {
	configAddr, err := e.keys.Config(mint)
	if err != nil {
		return nil, err
	}
	signer, _, err := e.keys.VaultSigner(configAddr)
	if err != nil {
		return nil, err
	}
	addr, err := custody.AssociatedAddress(signer, mint)
	if err != nil {
		return nil, err
	}
	var acct *custody.TokenAccount
	err = e.view(ctx, func(ctx context.Context, tx Tx) error {
		acct, err = tx.TokenAccount(ctx, addr)
		return err
	})
	if errors.Is(err, custody.ErrAccountNotFound) {
		return nil, ErrVaultNotFound
	}
	return acct, err
}

// GetTokenAccount returns the associated token account of owner for mint.
func (e *Engine) GetTokenAccount(ctx context.Context, mint, owner solana.PublicKey) (*custody.TokenAccount, error) {
	addr, err := custody.AssociatedAddress(owner, mint)
	if err != nil {
		return nil, err
	}
	var acct *custody.TokenAccount
	err = e.view(ctx, func(ctx context.Context, tx Tx) error {
		acct, err = tx.TokenAccount(ctx, addr)
		return err
	})
	if errors.Is(err, custody.ErrAccountNotFound) {
		return nil, ErrNotFound
	}
	return acct, err
}
