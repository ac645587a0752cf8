package vault_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/racevault/ledger/pkg/vault"
)

func TestRaceVault_Vault_ErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		kind vault.Kind
		code string
	}{
		{nil, vault.KindInternal, "ok"},
		{vault.ErrZeroAmount, vault.KindValidation, "zero_amount"},
		{vault.ErrSelfReferral, vault.KindValidation, "self_referral"},
		{fmt.Errorf("wrapped: %w", vault.ErrHashMismatch), vault.KindValidation, "hash_mismatch"},
		{vault.ErrDuplicateReceipt, vault.KindState, "duplicate_receipt"},
		{vault.ErrInsufficientLiquidity, vault.KindState, "insufficient_liquidity"},
		{vault.ErrVaultNotFound, vault.KindState, "vault_not_found"},
		{vault.ErrPaused, vault.KindAuthorization, "paused"},
		{vault.ErrUnauthorized, vault.KindAuthorization, "unauthorized"},
		{vault.ErrOverflow, vault.KindArithmetic, "overflow"},
		{fmt.Errorf("%w: broken", vault.ErrInvariant), vault.KindInternal, "invariant_violation"},
		{fmt.Errorf("%w: %w", vault.ErrInvariant, vault.ErrNotFound), vault.KindState, "not_found"},
		{fmt.Errorf("%w: %w", vault.ErrOverflow, vault.ErrUnauthorized), vault.KindAuthorization, "unauthorized"},
		{errors.Join(vault.ErrPaused, vault.ErrZeroAmount), vault.KindValidation, "zero_amount"},
		{errors.New("connection refused"), vault.KindInternal, "internal"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.code, vault.Code(tt.err))
		if tt.err != nil {
			// Errors wrapping several sentinels classify the same way every time.
			for range 10 {
				require.Equal(t, tt.kind, vault.KindOf(tt.err), tt.code)
			}
		}
	}
}
