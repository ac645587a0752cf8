package vault

import (
	"github.com/gagliardetto/solana-go"
)

// Operation names a ledger operation. Values double as metric labels.
type Operation string

const (
	OpInitialize            Operation = "initialize"
	OpDeposit               Operation = "deposit"
	OpReconcile             Operation = "reconcile"
	OpRegisterPayout        Operation = "register_payout"
	OpRegisterReferralBonus Operation = "register_referral_bonus"
	OpClaimPayouts          Operation = "claim_pending_payouts"
	OpClaimBonuses          Operation = "claim_pending_bonuses"
	OpTransferAuthority     Operation = "transfer_authority"
	OpUpdateConfig          Operation = "update_config"
	OpClose                 Operation = "close"
)

type policy struct {
	authority bool
	active    bool
}

var policies = map[Operation]policy{
	OpDeposit:               {},
	OpReconcile:             {authority: true},
	OpRegisterPayout:        {authority: true, active: true},
	OpRegisterReferralBonus: {authority: true, active: true},
	OpClaimPayouts:          {active: true},
	OpClaimBonuses:          {active: true},
	OpTransferAuthority:     {authority: true},
	OpUpdateConfig:          {authority: true},
	OpClose:                 {authority: true},
}

// Authorize checks caller against the policy of op. Authority is checked
// before the pause flag.
func Authorize(cfg *Config, caller solana.PublicKey, op Operation) error {
	p := policies[op]
	if p.authority && !caller.Equals(cfg.Authority) {
		return ErrUnauthorized
	}
	if p.active && cfg.Paused {
		return ErrPaused
	}
	return nil
}
