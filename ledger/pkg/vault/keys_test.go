package vault_test

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/racevault/ledger/pkg/vault"
	vaulttesting "github.com/malbeclabs/racevault/utils/pkg/testing"
)

func TestRaceVault_Vault_Keys(t *testing.T) {
	t.Parallel()

	keys := vault.NewKeys(solana.PublicKey{})
	require.Equal(t, vault.DefaultProgramID, keys.ProgramID())

	mint := vaulttesting.NewPubkey(t)
	config, err := keys.Config(mint)
	require.NoError(t, err)

	t.Run("deterministic", func(t *testing.T) {
		t.Parallel()
		again, err := keys.Config(mint)
		require.NoError(t, err)
		require.Equal(t, config, again)

		other, err := vault.NewKeys(vaulttesting.NewPubkey(t)).Config(mint)
		require.NoError(t, err)
		require.NotEqual(t, config, other)
	})

	t.Run("signer matches its seeds", func(t *testing.T) {
		t.Parallel()
		signer, bump, err := keys.VaultSigner(config)
		require.NoError(t, err)
		seeds := append(vault.VaultSignerSeeds(config), []byte{bump})
		derived, err := solana.CreateProgramAddress(seeds, vault.DefaultProgramID)
		require.NoError(t, err)
		require.Equal(t, signer, derived)
	})

	t.Run("distinct record kinds", func(t *testing.T) {
		t.Parallel()
		who := vaulttesting.NewPubkey(t)
		payouts, err := keys.PayoutRegistry(config, who)
		require.NoError(t, err)
		referrals, err := keys.ReferrerRegistry(config, who)
		require.NoError(t, err)
		globalPayouts, err := keys.GlobalPayoutRegistry(config)
		require.NoError(t, err)
		globalReferrals, err := keys.GlobalReferralRegistry(config)
		require.NoError(t, err)
		require.Len(t, map[solana.PublicKey]bool{payouts: true, referrals: true, globalPayouts: true, globalReferrals: true}, 4)
	})

	t.Run("receipt per event and recipient", func(t *testing.T) {
		t.Parallel()
		alice := vaulttesting.NewPubkey(t)
		bob := vaulttesting.NewPubkey(t)
		a1, err := keys.PayoutReceipt(config, vault.HashEventID("race-1"), alice)
		require.NoError(t, err)
		a2, err := keys.PayoutReceipt(config, vault.HashEventID("race-2"), alice)
		require.NoError(t, err)
		b1, err := keys.PayoutReceipt(config, vault.HashEventID("race-1"), bob)
		require.NoError(t, err)
		require.NotEqual(t, a1, a2)
		require.NotEqual(t, a1, b1)
	})

	t.Run("referral bonus event id limit", func(t *testing.T) {
		t.Parallel()
		referrer := vaulttesting.NewPubkey(t)
		referee := vaulttesting.NewPubkey(t)
		_, err := keys.ReferralBonus(config, strings.Repeat("x", vault.MaxEventIDLen), referrer, referee)
		require.NoError(t, err)
		_, err = keys.ReferralBonus(config, strings.Repeat("x", vault.MaxEventIDLen+1), referrer, referee)
		require.ErrorIs(t, err, vault.ErrIdentifierTooLong)

		forward, err := keys.ReferralBonus(config, "race-1", referrer, referee)
		require.NoError(t, err)
		reverse, err := keys.ReferralBonus(config, "race-1", referee, referrer)
		require.NoError(t, err)
		require.NotEqual(t, forward, reverse)
	})
}

func TestRaceVault_Vault_Hash(t *testing.T) {
	t.Parallel()

	h := vault.HashEventID("race-1")
	require.False(t, h.IsZero())
	require.True(t, vault.Hash{}.IsZero())

	t.Run("base58 round trip", func(t *testing.T) {
		t.Parallel()
		parsed, err := vault.ParseHash(h.String())
		require.NoError(t, err)
		require.Equal(t, h, parsed)
	})

	t.Run("hex", func(t *testing.T) {
		t.Parallel()
		parsed, err := vault.ParseHash(hex.EncodeToString(h[:]))
		require.NoError(t, err)
		require.Equal(t, h, parsed)
	})

	t.Run("invalid", func(t *testing.T) {
		t.Parallel()
		_, err := vault.ParseHash("0OIl")
		require.Error(t, err)
		_, err = vault.ParseHash("3yZe7d")
		require.ErrorContains(t, err, "invalid hash length")
	})

	t.Run("text marshaling", func(t *testing.T) {
		t.Parallel()
		text, err := h.MarshalText()
		require.NoError(t, err)
		var out vault.Hash
		require.NoError(t, out.UnmarshalText(text))
		require.Equal(t, h, out)
	})
}
