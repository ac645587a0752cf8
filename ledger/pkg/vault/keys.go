package vault

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// DefaultProgramID is the program every vault address is derived under unless
// overridden. Keeping it aligned with the deployed program makes ledger
// addresses identical to on-chain addresses.
var DefaultProgramID = solana.MustPublicKeyFromBase58("5ggd1t1UMGWHyiTGKmSgftmWAqtJnt8RmBh447s3DN8")

const (
	seedConfig                 = "config"
	seedVaultSigner            = "vault_signer"
	seedGlobalPayoutRegistry   = "global_payout_registry"
	seedGlobalReferralRegistry = "global_referral_registry"
	seedReceipt                = "receipt"
	seedPayoutRegistry         = "payout_registry"
	seedReferralBonus          = "referral_bonus"
	seedReferrerRegistry       = "referrer_registry"
)

// Keys derives record addresses from logical identities.
type Keys struct {
	programID solana.PublicKey
}

func NewKeys(programID solana.PublicKey) Keys {
	if programID.IsZero() {
		programID = DefaultProgramID
	}
	return Keys{programID: programID}
}

func (k Keys) ProgramID() solana.PublicKey {
	return k.programID
}

func (k Keys) find(seeds ...[]byte) (solana.PublicKey, uint8, error) {
	addr, bump, err := solana.FindProgramAddress(seeds, k.programID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("failed to derive address: %w", err)
	}
	return addr, bump, nil
}

func (k Keys) Config(mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := k.find([]byte(seedConfig), mint[:])
	return addr, err
}

// VaultSigner returns the delegated signer of a vault and its bump.
func (k Keys) VaultSigner(config solana.PublicKey) (solana.PublicKey, uint8, error) {
	return k.find([]byte(seedVaultSigner), config[:])
}

// VaultSignerSeeds are the seeds, without bump, that the vault signer is derived from.
func VaultSignerSeeds(config solana.PublicKey) [][]byte {
	return [][]byte{[]byte(seedVaultSigner), config[:]}
}

func (k Keys) GlobalPayoutRegistry(config solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := k.find([]byte(seedGlobalPayoutRegistry), config[:])
	return addr, err
}

func (k Keys) GlobalReferralRegistry(config solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := k.find([]byte(seedGlobalReferralRegistry), config[:])
	return addr, err
}

func (k Keys) PayoutReceipt(config solana.PublicKey, hash Hash, recipient solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := k.find([]byte(seedReceipt), config[:], hash[:], recipient[:])
	return addr, err
}

func (k Keys) PayoutRegistry(config, recipient solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := k.find([]byte(seedPayoutRegistry), config[:], recipient[:])
	return addr, err
}

func (k Keys) ReferralBonus(config solana.PublicKey, eventID string, referrer, referee solana.PublicKey) (solana.PublicKey, error) {
	if len(eventID) > MaxEventIDLen {
		return solana.PublicKey{}, ErrIdentifierTooLong
	}
	addr, _, err := k.find([]byte(seedReferralBonus), config[:], []byte(eventID), referrer[:], referee[:])
	return addr, err
}

func (k Keys) ReferrerRegistry(config, referrer solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := k.find([]byte(seedReferrerRegistry), config[:], referrer[:])
	return addr, err
}
