package vault

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/racevault/ledger/pkg/custody"
)

func TestRaceVault_Vault_CustodyErr(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   error
		want error
		kind Kind
	}{
		{custody.ErrInsufficientFunds, ErrInsufficientLiquidity, KindState},
		{custody.ErrBalanceOverflow, ErrOverflow, KindArithmetic},
		{custody.ErrZeroAmount, ErrZeroAmount, KindValidation},
		{fmt.Errorf("transfer: %w", custody.ErrSameAccount), ErrInvalidIdentity, KindValidation},
	}
	for _, tt := range tests {
		got := custodyErr(tt.in)
		require.ErrorIs(t, got, tt.want)
		require.Equal(t, tt.kind, KindOf(got))
	}
}
