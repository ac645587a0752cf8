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

type ClaimPayoutsParams struct {
	Mint solana.PublicKey
	// Caller triggered the claim. Any key may; it need not be Recipient.
	Caller solana.PublicKey
	// Recipient is the account whose registry is claimed and who receives funds.
	Recipient solana.PublicKey
	// DesignatedRecipient is the recipient the caller intends to pay; it must
	// equal Recipient.
	DesignatedRecipient solana.PublicKey
}

// ClaimPendingPayouts moves the recipient's whole pending balance to claimed
// and transfers it out of custody. Anyone may trigger it; funds only ever go
// to the recipient's own token account.
func (e *Engine) ClaimPendingPayouts(ctx context.Context, p ClaimPayoutsParams) (*ClaimResult, error) {
	var result *ClaimResult
	err := e.run(ctx, OpClaimPayouts, func(ctx context.Context, tx Tx) error {
		cfg, err := e.loadConfig(ctx, tx, p.Mint)
		if err != nil {
			return err
		}
		if err := Authorize(cfg, p.Caller, OpClaimPayouts); err != nil {
			return err
		}
		if !p.DesignatedRecipient.Equals(p.Recipient) {
			return ErrRecipientMismatch
		}

		globalAddr, err := e.keys.GlobalPayoutRegistry(cfg.Address)
		if err != nil {
			return err
		}
		global, err := tx.GlobalPayoutRegistry(ctx, globalAddr)
		if err != nil {
			return fmt.Errorf("failed to load global payout registry: %w", err)
		}

		registryAddr, err := e.keys.PayoutRegistry(cfg.Address, p.Recipient)
		if err != nil {
			return err
		}
		registry, err := tx.PayoutRegistry(ctx, registryAddr)
		if errors.Is(err, ErrNotFound) {
			return ErrNoPendingBalance
		}
		if err != nil {
			return fmt.Errorf("failed to load payout registry: %w", err)
		}
		if !registry.Recipient.Equals(p.Recipient) {
			return ErrRecipientMismatch
		}
		if registry.TotalPending == 0 {
			return ErrNoPendingBalance
		}
		if err := e.checkLiquidity(ctx, tx, cfg, registry.TotalPending); err != nil {
			return err
		}

		amount := registry.TotalPending
		count := registry.PayoutCount
		now := e.cfg.Clock.Now()
		ts := now.Unix()

		registry.TotalPending = 0
		if registry.TotalClaimed, err = addU64(registry.TotalClaimed, amount); err != nil {
			return err
		}
		registry.LastUpdated = ts

		if global.TotalPending, err = subU64(global.TotalPending, amount); err != nil {
			return err
		}
		if global.TotalClaimed, err = addU64(global.TotalClaimed, amount); err != nil {
			return err
		}
		global.LastUpdated = ts

		if err := tx.PutPayoutRegistry(ctx, registry); err != nil {
			return fmt.Errorf("failed to save payout registry: %w", err)
		}
		if err := tx.PutGlobalPayoutRegistry(ctx, global); err != nil {
			return fmt.Errorf("failed to save global payout registry: %w", err)
		}

		dest, err := e.payOut(ctx, tx, cfg, p.Recipient, amount)
		if err != nil {
			return err
		}

		result = &ClaimResult{Beneficiary: p.Recipient, TokenAccount: dest, Amount: amount, Count: count, Timestamp: ts}
		return emit(ctx, tx, cfg, events.TypePayoutsClaimed, events.PayoutsClaimed{
			Recipient:   p.Recipient,
			TotalAmount: amount,
			PayoutCount: count,
			Timestamp:   ts,
		}, now)
	})
	if err != nil {
		return nil, err
	}

	metrics.ClaimedAmountTotal.WithLabelValues("payout").Add(float64(result.Amount))
	e.log.Info("vault: payouts claimed", "recipient", result.Beneficiary.String(), "amount", result.Amount, "payout_count", result.Count)
	return result, nil
}

type ClaimBonusesParams struct {
	Mint     solana.PublicKey
	Caller   solana.PublicKey
	Referrer solana.PublicKey
}

// ClaimPendingBonuses moves the referrer's pending bonuses to claimed, marks
// every unclaimed record as claimed and transfers the total out of custody.
func (e *Engine) ClaimPendingBonuses(ctx context.Context, p ClaimBonusesParams) (*ClaimResult, error) {
	var result *ClaimResult
	err := e.run(ctx, OpClaimBonuses, func(ctx context.Context, tx Tx) error {
		cfg, err := e.loadConfig(ctx, tx, p.Mint)
		if err != nil {
			return err
		}
		if err := Authorize(cfg, p.Caller, OpClaimBonuses); err != nil {
			return err
		}

		globalAddr, err := e.keys.GlobalReferralRegistry(cfg.Address)
		if err != nil {
			return err
		}
		global, err := tx.GlobalReferralRegistry(ctx, globalAddr)
		if err != nil {
			return fmt.Errorf("failed to load global referral registry: %w", err)
		}

		registryAddr, err := e.keys.ReferrerRegistry(cfg.Address, p.Referrer)
		if err != nil {
			return err
		}
		registry, err := tx.ReferrerRegistry(ctx, registryAddr)
		if errors.Is(err, ErrNotFound) {
			return ErrNoPendingBalance
		}
		if err != nil {
			return fmt.Errorf("failed to load referrer registry: %w", err)
		}
		if !registry.Referrer.Equals(p.Referrer) {
			return ErrRecipientMismatch
		}
		if registry.TotalPending == 0 {
			return ErrNoPendingBalance
		}
		if err := e.checkLiquidity(ctx, tx, cfg, registry.TotalPending); err != nil {
			return err
		}

		amount := registry.TotalPending
		count := registry.BonusCount
		now := e.cfg.Clock.Now()
		ts := now.Unix()

		unclaimed, err := tx.ReferralBonusesByReferrer(ctx, cfg.Address, p.Referrer, true)
		if err != nil {
			return fmt.Errorf("failed to load unclaimed referral bonuses: %w", err)
		}
		var sum uint64
		addrs := make([]solana.PublicKey, len(unclaimed))
		for i, rec := range unclaimed {
			if sum, err = addU64(sum, rec.Amount); err != nil {
				return err
			}
			addrs[i] = rec.Address
		}
		if sum != amount {
			return fmt.Errorf("%w: unclaimed referral records sum to %d, registry pending is %d", ErrInvariant, sum, amount)
		}
		if err := tx.MarkReferralBonusesClaimed(ctx, addrs, ts); err != nil {
			return fmt.Errorf("failed to mark referral bonuses claimed: %w", err)
		}

		registry.TotalPending = 0
		if registry.TotalClaimed, err = addU64(registry.TotalClaimed, amount); err != nil {
			return err
		}
		registry.LastUpdated = ts

		if global.TotalPending, err = subU64(global.TotalPending, amount); err != nil {
			return err
		}
		if global.TotalClaimed, err = addU64(global.TotalClaimed, amount); err != nil {
			return err
		}
		global.LastUpdated = ts

		if err := tx.PutReferrerRegistry(ctx, registry); err != nil {
			return fmt.Errorf("failed to save referrer registry: %w", err)
		}
		if err := tx.PutGlobalReferralRegistry(ctx, global); err != nil {
			return fmt.Errorf("failed to save global referral registry: %w", err)
		}

		dest, err := e.payOut(ctx, tx, cfg, p.Referrer, amount)
		if err != nil {
			return err
		}

		result = &ClaimResult{Beneficiary: p.Referrer, TokenAccount: dest, Amount: amount, Count: count, Timestamp: ts}
		return emit(ctx, tx, cfg, events.TypePendingBonusesClaimed, events.PendingBonusesClaimed{
			Referrer:   p.Referrer,
			Amount:     amount,
			BonusCount: count,
			Timestamp:  ts,
		}, now)
	})
	if err != nil {
		return nil, err
	}

	metrics.ClaimedAmountTotal.WithLabelValues("referral").Add(float64(result.Amount))
	e.log.Info("vault: bonuses claimed", "referrer", result.Beneficiary.String(), "amount", result.Amount, "bonus_count", result.Count)
	return result, nil
}

func (e *Engine) checkLiquidity(ctx context.Context, tx Tx, cfg *Config, amount uint64) error {
	loaded, err := tx.TokenAccountsForUpdate(ctx, cfg.VaultToken)
	if err != nil {
		return fmt.Errorf("failed to load vault token account: %w", err)
	}
	vaultToken := loaded[0]
	if vaultToken == nil {
		return fmt.Errorf("%w: vault token account %s is missing", ErrInvariant, cfg.VaultToken)
	}
	if vaultToken.Amount < amount {
		return ErrInsufficientLiquidity
	}
	return nil
}

// payOut transfers amount from custody to the beneficiary's associated token
// account, creating it when needed, under the vault signer capability.
func (e *Engine) payOut(ctx context.Context, tx Tx, cfg *Config, beneficiary solana.PublicKey, amount uint64) (solana.PublicKey, error) {
	capability, err := e.signerCapability(cfg)
	if err != nil {
		return solana.PublicKey{}, err
	}
	dest, err := custody.OpenAccount(ctx, tx, beneficiary, cfg.Mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to open beneficiary token account: %w", err)
	}
	err = custody.Transfer(ctx, tx, custody.TransferRequest{
		Source:      cfg.VaultToken,
		Destination: dest.Address,
		Amount:      amount,
		Authority:   capability,
	})
	if err != nil {
		return solana.PublicKey{}, custodyErr(err)
	}
	return dest.Address, nil
}
