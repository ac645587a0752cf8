package dberror_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/racevault/ledger/pkg/store/dberror"
)

func TestRaceVault_DBError_Classify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		want      dberror.ErrorType
		transient bool
	}{
		{"nil", nil, dberror.ErrorTypeUnknown, false},
		{"plain error", errors.New("vault: record not found"), dberror.ErrorTypeUnknown, false},
		{"connection exception", &pgconn.PgError{Code: "08006"}, dberror.ErrorTypeConnectivity, true},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, dberror.ErrorTypeConnectivity, true},
		{"query canceled", &pgconn.PgError{Code: "57014"}, dberror.ErrorTypeTimeout, true},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, dberror.ErrorTypeConflict, true},
		{"deadlock", fmt.Errorf("failed to commit transaction: %w", &pgconn.PgError{Code: "40P01"}), dberror.ErrorTypeConflict, true},
		{"bad password", &pgconn.PgError{Code: "28P01"}, dberror.ErrorTypeAuth, false},
		{"unique violation", &pgconn.PgError{Code: "23505"}, dberror.ErrorTypeUnknown, false},
		{"deadline", fmt.Errorf("failed to begin transaction: %w", context.DeadlineExceeded), dberror.ErrorTypeTimeout, true},
		{"canceled", context.Canceled, dberror.ErrorTypeUnknown, false},
		{"refused", errors.New("failed to connect: dial tcp 127.0.0.1:5432: connect: connection refused"), dberror.ErrorTypeConnectivity, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, dberror.Classify(tt.err))
			require.Equal(t, tt.transient, dberror.IsTransient(tt.err))
		})
	}
}

func TestRaceVault_DBError_UserMessage(t *testing.T) {
	t.Parallel()
	require.Contains(t, dberror.UserMessage(&pgconn.PgError{Code: "08001"}), "unavailable")
	require.Equal(t, "internal error", dberror.UserMessage(errors.New("boom")))
}
