package admin

import (
	"fmt"
	"io"

	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/racevault/ledger/pkg/custody"
	"github.com/malbeclabs/racevault/ledger/pkg/vault"
)

// VaultAddresses are the derived accounts of one vault.
type VaultAddresses struct {
	Config                 solana.PublicKey
	VaultSigner            solana.PublicKey
	VaultSignerBump        uint8
	VaultToken             solana.PublicKey
	GlobalPayoutRegistry   solana.PublicKey
	GlobalReferralRegistry solana.PublicKey

	// Set when a participant is given.
	PayoutRegistry   solana.PublicKey
	ReferrerRegistry solana.PublicKey
	TokenAccount     solana.PublicKey
}

// DeriveAddresses computes the vault accounts for mint, plus the registries and
// token account of participant when it is not the zero key.
func DeriveAddresses(programID, mint, participant solana.PublicKey) (*VaultAddresses, error) {
	keys := vault.NewKeys(programID)
	var (
		out VaultAddresses
		err error
	)
	if out.Config, err = keys.Config(mint); err != nil {
		return nil, fmt.Errorf("failed to derive config: %w", err)
	}
	if out.VaultSigner, out.VaultSignerBump, err = keys.VaultSigner(out.Config); err != nil {
		return nil, fmt.Errorf("failed to derive vault signer: %w", err)
	}
	if out.VaultToken, err = custody.AssociatedAddress(out.VaultSigner, mint); err != nil {
		return nil, fmt.Errorf("failed to derive vault token account: %w", err)
	}
	if out.GlobalPayoutRegistry, err = keys.GlobalPayoutRegistry(out.Config); err != nil {
		return nil, err
	}
	if out.GlobalReferralRegistry, err = keys.GlobalReferralRegistry(out.Config); err != nil {
		return nil, err
	}
	if participant.IsZero() {
		return &out, nil
	}
	if out.PayoutRegistry, err = keys.PayoutRegistry(out.Config, participant); err != nil {
		return nil, err
	}
	if out.ReferrerRegistry, err = keys.ReferrerRegistry(out.Config, participant); err != nil {
		return nil, err
	}
	if out.TokenAccount, err = custody.AssociatedAddress(participant, mint); err != nil {
		return nil, err
	}
	return &out, nil
}

func PrintAddresses(w io.Writer, a *VaultAddresses) {
	fmt.Fprintf(w, "config:                   %s\n", a.Config)
	fmt.Fprintf(w, "vault signer:             %s (bump %d)\n", a.VaultSigner, a.VaultSignerBump)
	fmt.Fprintf(w, "vault token account:      %s\n", a.VaultToken)
	fmt.Fprintf(w, "global payout registry:   %s\n", a.GlobalPayoutRegistry)
	fmt.Fprintf(w, "global referral registry: %s\n", a.GlobalReferralRegistry)
	if !a.PayoutRegistry.IsZero() {
		fmt.Fprintf(w, "payout registry:          %s\n", a.PayoutRegistry)
		fmt.Fprintf(w, "referrer registry:        %s\n", a.ReferrerRegistry)
		fmt.Fprintf(w, "token account:            %s\n", a.TokenAccount)
	}
}
