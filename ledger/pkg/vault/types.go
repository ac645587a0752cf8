package vault

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// MaxEventIDLen is the longest event identifier usable as a key seed.
const MaxEventIDLen = solana.MaxSeedLength

// Hash is the sha256 digest of an event identifier.
type Hash [32]byte

// HashEventID returns sha256(eventID).
func HashEventID(eventID string) Hash {
	return sha256.Sum256([]byte(eventID))
}

func (h Hash) String() string {
	return base58.Encode(h[:])
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash accepts a base58 or 64-character hex encoding of a 32-byte hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	if len(s) == 64 {
		if b, err := hex.DecodeString(s); err == nil {
			copy(h[:], b)
			return h, nil
		}
	}
	b, err := base58.Decode(s)
	if err != nil {
		return h, fmt.Errorf("failed to decode hash: %w", err)
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("invalid hash length: expected %d, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Config is the per-mint vault configuration.
type Config struct {
	Address         solana.PublicKey `json:"address"`
	Authority       solana.PublicKey `json:"authority"`
	Mint            solana.PublicKey `json:"mint"`
	VaultSigner     solana.PublicKey `json:"vault_signer"`
	VaultSignerBump uint8            `json:"vault_signer_bump"`
	VaultToken      solana.PublicKey `json:"vault_token"`
	Paused          bool             `json:"paused"`
	CreatedAt       int64            `json:"created_at"`
	UpdatedAt       int64            `json:"updated_at"`
}

// PayoutReceipt records a single registered payout. It is never mutated.
type PayoutReceipt struct {
	Address     solana.PublicKey `json:"address"`
	Config      solana.PublicKey `json:"config"`
	EventIDHash Hash             `json:"event_id_hash"`
	Recipient   solana.PublicKey `json:"recipient"`
	Points      uint64           `json:"points"`
	Amount      uint64           `json:"amount"`
	Timestamp   int64            `json:"timestamp"`
}

// ReferralBonusRecord records a single referral bonus. Only Claimed and
// ClaimedAt change after creation, and only through a bonus claim.
type ReferralBonusRecord struct {
	Address   solana.PublicKey `json:"address"`
	Config    solana.PublicKey `json:"config"`
	EventID   string           `json:"event_id"`
	Referrer  solana.PublicKey `json:"referrer"`
	Referee   solana.PublicKey `json:"referee"`
	Amount    uint64           `json:"amount"`
	Claimed   bool             `json:"claimed"`
	Timestamp int64            `json:"timestamp"`
	ClaimedAt int64            `json:"claimed_at,omitempty"`
}

// PayoutRegistry aggregates payouts owed to one recipient.
type PayoutRegistry struct {
	Address      solana.PublicKey `json:"address"`
	Config       solana.PublicKey `json:"config"`
	Recipient    solana.PublicKey `json:"recipient"`
	TotalPending uint64           `json:"total_pending"`
	TotalClaimed uint64           `json:"total_claimed"`
	PayoutCount  uint32           `json:"payout_count"`
	LastUpdated  int64            `json:"last_updated"`
}

// ReferrerRegistry aggregates bonuses owed to one referrer.
type ReferrerRegistry struct {
	Address      solana.PublicKey `json:"address"`
	Config       solana.PublicKey `json:"config"`
	Referrer     solana.PublicKey `json:"referrer"`
	TotalPending uint64           `json:"total_pending"`
	TotalClaimed uint64           `json:"total_claimed"`
	BonusCount   uint32           `json:"bonus_count"`
	LastUpdated  int64            `json:"last_updated"`
}

// GlobalPayoutRegistry mirrors the sum of all payout registries of a vault.
type GlobalPayoutRegistry struct {
	Address             solana.PublicKey `json:"address"`
	Config              solana.PublicKey `json:"config"`
	TotalPending        uint64           `json:"total_pending"`
	TotalClaimed        uint64           `json:"total_claimed"`
	TotalPayoutCount    uint32           `json:"total_payout_count"`
	TotalRecipientCount uint32           `json:"total_recipient_count"`
	LastUpdated         int64            `json:"last_updated"`
}

// GlobalReferralRegistry mirrors the sum of all referrer registries of a vault.
type GlobalReferralRegistry struct {
	Address            solana.PublicKey `json:"address"`
	Config             solana.PublicKey `json:"config"`
	TotalPending       uint64           `json:"total_pending"`
	TotalClaimed       uint64           `json:"total_claimed"`
	TotalBonusCount    uint32           `json:"total_bonus_count"`
	TotalReferrerCount uint32           `json:"total_referrer_count"`
	LastUpdated        int64            `json:"last_updated"`
}

// ClaimResult describes a completed claim.
type ClaimResult struct {
	Beneficiary  solana.PublicKey `json:"beneficiary"`
	TokenAccount solana.PublicKey `json:"token_account"`
	Amount       uint64           `json:"amount"`
	Count        uint32           `json:"count"`
	Timestamp    int64            `json:"timestamp"`
}

// ReconcileResult reports the custody balance at reconciliation time.
type ReconcileResult struct {
	VaultToken     solana.PublicKey `json:"vault_token"`
	Balance        uint64           `json:"balance"`
	OnChainBalance *uint64          `json:"on_chain_balance,omitempty"`
	Outstanding    uint64           `json:"outstanding"`
	Timestamp      int64            `json:"timestamp"`
}
