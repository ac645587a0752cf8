package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/racevault/ledger/pkg/events"
	"github.com/malbeclabs/racevault/ledger/pkg/metrics"
)

type RegisterPayoutParams struct {
	Mint        solana.PublicKey
	Caller      solana.PublicKey
	EventID     string
	EventIDHash Hash
	Recipient   solana.PublicKey
	Points      uint64
	Amount      uint64
}

// RegisterPayout records a pending payout for (event, recipient). A second
// registration for the same pair fails with ErrDuplicateReceipt and changes
// nothing.
func (e *Engine) RegisterPayout(ctx context.Context, p RegisterPayoutParams) (*PayoutReceipt, error) {
	var receipt *PayoutReceipt
	err := e.run(ctx, OpRegisterPayout, func(ctx context.Context, tx Tx) error {
		cfg, err := e.loadConfig(ctx, tx, p.Mint)
		if err != nil {
			return err
		}
		if err := Authorize(cfg, p.Caller, OpRegisterPayout); err != nil {
			return err
		}
		if p.Amount == 0 {
			return ErrZeroAmount
		}
		if HashEventID(p.EventID) != p.EventIDHash {
			return ErrHashMismatch
		}
		// The vault signer's token account is the custody account itself.
		if p.Recipient.IsZero() || p.Recipient.Equals(cfg.VaultSigner) {
			return ErrInvalidIdentity
		}

		globalAddr, err := e.keys.GlobalPayoutRegistry(cfg.Address)
		if err != nil {
			return err
		}
		global, err := tx.GlobalPayoutRegistry(ctx, globalAddr)
		if err != nil {
			return fmt.Errorf("failed to load global payout registry: %w", err)
		}

		receiptAddr, err := e.keys.PayoutReceipt(cfg.Address, p.EventIDHash, p.Recipient)
		if err != nil {
			return err
		}
		registryAddr, err := e.keys.PayoutRegistry(cfg.Address, p.Recipient)
		if err != nil {
			return err
		}

		now := e.cfg.Clock.Now()
		ts := now.Unix()

		receipt = &PayoutReceipt{
			Address:     receiptAddr,
			Config:      cfg.Address,
			EventIDHash: p.EventIDHash,
			Recipient:   p.Recipient,
			Points:      p.Points,
			Amount:      p.Amount,
			Timestamp:   ts,
		}
		if err := tx.InsertPayoutReceipt(ctx, receipt); err != nil {
			if errors.Is(err, ErrAlreadyExists) {
				return ErrDuplicateReceipt
			}
			return fmt.Errorf("failed to insert payout receipt: %w", err)
		}

		registry, err := tx.PayoutRegistry(ctx, registryAddr)
		isNew := errors.Is(err, ErrNotFound)
		switch {
		case isNew:
			registry = &PayoutRegistry{Address: registryAddr, Config: cfg.Address, Recipient: p.Recipient}
		case err != nil:
			return fmt.Errorf("failed to load payout registry: %w", err)
		}

		if registry.TotalPending, err = addU64(registry.TotalPending, p.Amount); err != nil {
			return err
		}
		if registry.PayoutCount, err = incU32(registry.PayoutCount); err != nil {
			return err
		}
		registry.LastUpdated = ts

		if global.TotalPending, err = addU64(global.TotalPending, p.Amount); err != nil {
			return err
		}
		if global.TotalPayoutCount, err = incU32(global.TotalPayoutCount); err != nil {
			return err
		}
		if isNew {
			if global.TotalRecipientCount, err = incU32(global.TotalRecipientCount); err != nil {
				return err
			}
		}
		global.LastUpdated = ts

		if err := tx.PutPayoutRegistry(ctx, registry); err != nil {
			return fmt.Errorf("failed to save payout registry: %w", err)
		}
		if err := tx.PutGlobalPayoutRegistry(ctx, global); err != nil {
			return fmt.Errorf("failed to save global payout registry: %w", err)
		}

		return emit(ctx, tx, cfg, events.TypePayoutRegistered, events.PayoutRegistered{
			EventID:     p.EventID,
			EventIDHash: p.EventIDHash.String(),
			Recipient:   p.Recipient,
			Points:      p.Points,
			Amount:      p.Amount,
			Timestamp:   ts,
		}, now)
	})
	if err != nil {
		return nil, err
	}

	metrics.RegisteredAmountTotal.WithLabelValues("payout").Add(float64(receipt.Amount))
	e.log.Info("vault: payout registered",
		"recipient", receipt.Recipient.String(),
		"event_id", p.EventID,
		"amount", receipt.Amount,
		"points", receipt.Points,
	)
	return receipt, nil
}

type RegisterReferralBonusParams struct {
	Mint     solana.PublicKey
	Caller   solana.PublicKey
	EventID  string
	Referrer solana.PublicKey
	Referee  solana.PublicKey
	Amount   uint64
}

// RegisterReferralBonus records a pending bonus for (event, referrer, referee).
func (e *Engine) RegisterReferralBonus(ctx context.Context, p RegisterReferralBonusParams) (*ReferralBonusRecord, error) {
	var record *ReferralBonusRecord
	err := e.run(ctx, OpRegisterReferralBonus, func(ctx context.Context, tx Tx) error {
		cfg, err := e.loadConfig(ctx, tx, p.Mint)
		if err != nil {
			return err
		}
		if err := Authorize(cfg, p.Caller, OpRegisterReferralBonus); err != nil {
			return err
		}
		if p.Amount == 0 {
			return ErrZeroAmount
		}
		if len(p.EventID) > MaxEventIDLen {
			return ErrIdentifierTooLong
		}
		if p.Referrer.Equals(p.Referee) {
			return ErrSelfReferral
		}
		if p.Referrer.IsZero() || p.Referee.IsZero() || p.Referrer.Equals(cfg.VaultSigner) {
			return ErrInvalidIdentity
		}

		globalAddr, err := e.keys.GlobalReferralRegistry(cfg.Address)
		if err != nil {
			return err
		}
		global, err := tx.GlobalReferralRegistry(ctx, globalAddr)
		if err != nil {
			return fmt.Errorf("failed to load global referral registry: %w", err)
		}

		recordAddr, err := e.keys.ReferralBonus(cfg.Address, p.EventID, p.Referrer, p.Referee)
		if err != nil {
			return err
		}
		registryAddr, err := e.keys.ReferrerRegistry(cfg.Address, p.Referrer)
		if err != nil {
			return err
		}

		now := e.cfg.Clock.Now()
		ts := now.Unix()

		record = &ReferralBonusRecord{
			Address:   recordAddr,
			Config:    cfg.Address,
			EventID:   p.EventID,
			Referrer:  p.Referrer,
			Referee:   p.Referee,
			Amount:    p.Amount,
			Timestamp: ts,
		}
		if err := tx.InsertReferralBonus(ctx, record); err != nil {
			if errors.Is(err, ErrAlreadyExists) {
				return ErrDuplicateRecord
			}
			return fmt.Errorf("failed to insert referral bonus: %w", err)
		}

		registry, err := tx.ReferrerRegistry(ctx, registryAddr)
		isNew := errors.Is(err, ErrNotFound)
		switch {
		case isNew:
			registry = &ReferrerRegistry{Address: registryAddr, Config: cfg.Address, Referrer: p.Referrer}
		case err != nil:
			return fmt.Errorf("failed to load referrer registry: %w", err)
		}

		if registry.TotalPending, err = addU64(registry.TotalPending, p.Amount); err != nil {
			return err
		}
		if registry.BonusCount, err = incU32(registry.BonusCount); err != nil {
			return err
		}
		registry.LastUpdated = ts

		if global.TotalPending, err = addU64(global.TotalPending, p.Amount); err != nil {
			return err
		}
		if global.TotalBonusCount, err = incU32(global.TotalBonusCount); err != nil {
			return err
		}
		if isNew {
			if global.TotalReferrerCount, err = incU32(global.TotalReferrerCount); err != nil {
				return err
			}
		}
		global.LastUpdated = ts

		if err := tx.PutReferrerRegistry(ctx, registry); err != nil {
			return fmt.Errorf("failed to save referrer registry: %w", err)
		}
		if err := tx.PutGlobalReferralRegistry(ctx, global); err != nil {
			return fmt.Errorf("failed to save global referral registry: %w", err)
		}

		return emit(ctx, tx, cfg, events.TypeReferralBonusRegistered, events.ReferralBonusRegistered{
			EventID:   p.EventID,
			Referrer:  p.Referrer,
			Referee:   p.Referee,
			Amount:    p.Amount,
			Timestamp: ts,
		}, now)
	})
	if err != nil {
		return nil, err
	}

	metrics.RegisteredAmountTotal.WithLabelValues("referral").Add(float64(record.Amount))
	e.log.Info("vault: referral bonus registered",
		"referrer", record.Referrer.String(),
		"referee", record.Referee.String(),
		"event_id", record.EventID,
		"amount", record.Amount,
	)
	return record, nil
}
