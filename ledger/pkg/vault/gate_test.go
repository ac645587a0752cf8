package vault_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/racevault/ledger/pkg/vault"
	vaulttesting "github.com/malbeclabs/racevault/utils/pkg/testing"
)

func TestRaceVault_Vault_Authorize(t *testing.T) {
	t.Parallel()

	authority := vaulttesting.NewPubkey(t)
	stranger := vaulttesting.NewPubkey(t)

	tests := []struct {
		op       vault.Operation
		caller   bool
		paused   bool
		expected error
	}{
		{op: vault.OpRegisterPayout, caller: true},
		{op: vault.OpRegisterPayout, expected: vault.ErrUnauthorized},
		{op: vault.OpRegisterPayout, caller: true, paused: true, expected: vault.ErrPaused},
		{op: vault.OpRegisterPayout, paused: true, expected: vault.ErrUnauthorized},
		{op: vault.OpRegisterReferralBonus, caller: true, paused: true, expected: vault.ErrPaused},
		{op: vault.OpClaimPayouts},
		{op: vault.OpClaimPayouts, paused: true, expected: vault.ErrPaused},
		{op: vault.OpClaimBonuses, paused: true, expected: vault.ErrPaused},
		{op: vault.OpDeposit, paused: true},
		{op: vault.OpReconcile, caller: true, paused: true},
		{op: vault.OpReconcile, expected: vault.ErrUnauthorized},
		{op: vault.OpUpdateConfig, caller: true, paused: true},
		{op: vault.OpTransferAuthority, paused: true, expected: vault.ErrUnauthorized},
		{op: vault.OpClose, caller: true, paused: true},
	}
	for _, tt := range tests {
		cfg := &vault.Config{Authority: authority, Paused: tt.paused}
		caller := stranger
		if tt.caller {
			caller = authority
		}
		err := vault.Authorize(cfg, caller, tt.op)
		if tt.expected == nil {
			require.NoError(t, err, "op=%s caller=%v paused=%v", tt.op, tt.caller, tt.paused)
		} else {
			require.ErrorIs(t, err, tt.expected, "op=%s caller=%v paused=%v", tt.op, tt.caller, tt.paused)
		}
	}
}
