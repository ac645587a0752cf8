// Package events defines the notifications the ledger emits and the relay that
// delivers them from the transactional outbox to external sinks.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
)

type Type string

const (
	TypeVaultInitialized        Type = "vault_initialized"
	TypeDeposit                 Type = "deposit"
	TypeReconcile               Type = "reconcile"
	TypePayoutRegistered        Type = "payout_registered"
	TypePayoutsClaimed          Type = "payouts_claimed"
	TypeReferralBonusRegistered Type = "referral_bonus_registered"
	TypePendingBonusesClaimed   Type = "pending_bonuses_claimed"
	TypeAuthorityTransfer       Type = "authority_transfer"
	TypeConfigUpdate            Type = "config_update"
	TypeConfigClose             Type = "config_close"
)

// Event is the envelope persisted to the outbox and handed to sinks.
type Event struct {
	ID       uuid.UUID        `json:"id"`
	Sequence int64            `json:"sequence"`
	Type     Type             `json:"type"`
	Vault    solana.PublicKey `json:"vault"`
	Mint     solana.PublicKey `json:"mint"`
	// Payload is one of the typed payloads below, encoded as JSON.
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// New wraps payload into an envelope with a fresh id.
func New(typ Type, vault, mint solana.PublicKey, payload any, at time.Time) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", typ, err)
	}
	return &Event{
		ID:        uuid.New(),
		Type:      typ,
		Vault:     vault,
		Mint:      mint,
		Payload:   raw,
		CreatedAt: at.UTC(),
	}, nil
}

// Decode unmarshals the payload into dst.
func (e *Event) Decode(dst any) error {
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return nil
}

type VaultInitialized struct {
	Authority   solana.PublicKey `json:"authority"`
	VaultSigner solana.PublicKey `json:"vault_signer"`
	VaultToken  solana.PublicKey `json:"vault_token"`
	Timestamp   int64            `json:"timestamp"`
}

type Deposit struct {
	Depositor  solana.PublicKey `json:"depositor"`
	VaultToken solana.PublicKey `json:"vault_token"`
	Amount     uint64           `json:"amount"`
	Balance    uint64           `json:"balance"`
	Timestamp  int64            `json:"timestamp"`
}

type Reconcile struct {
	VaultToken     solana.PublicKey `json:"vault_token"`
	Balance        uint64           `json:"balance"`
	OnChainBalance *uint64          `json:"on_chain_balance,omitempty"`
	Outstanding    uint64           `json:"outstanding"`
	Timestamp      int64            `json:"timestamp"`
}

type PayoutRegistered struct {
	EventID     string           `json:"event_id"`
	EventIDHash string           `json:"event_id_hash"`
	Recipient   solana.PublicKey `json:"recipient"`
	Points      uint64           `json:"points"`
	Amount      uint64           `json:"amount"`
	Timestamp   int64            `json:"timestamp"`
}

type PayoutsClaimed struct {
	Recipient   solana.PublicKey `json:"recipient"`
	TotalAmount uint64           `json:"total_amount"`
	PayoutCount uint32           `json:"payout_count"`
	Timestamp   int64            `json:"timestamp"`
}

type ReferralBonusRegistered struct {
	EventID   string           `json:"event_id"`
	Referrer  solana.PublicKey `json:"referrer"`
	Referee   solana.PublicKey `json:"referee"`
	Amount    uint64           `json:"amount"`
	Timestamp int64            `json:"timestamp"`
}

type PendingBonusesClaimed struct {
	Referrer   solana.PublicKey `json:"referrer"`
	Amount     uint64           `json:"amount"`
	BonusCount uint32           `json:"bonus_count"`
	Timestamp  int64            `json:"timestamp"`
}

type AuthorityTransfer struct {
	OldAuthority solana.PublicKey `json:"old_authority"`
	NewAuthority solana.PublicKey `json:"new_authority"`
	Timestamp    int64            `json:"timestamp"`
}

type ConfigUpdate struct {
	Paused    bool  `json:"paused"`
	Timestamp int64 `json:"timestamp"`
}

type ConfigClose struct {
	Authority solana.PublicKey `json:"authority"`
	Timestamp int64            `json:"timestamp"`
}
