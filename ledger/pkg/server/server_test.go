package server_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/malbeclabs/racevault/ledger/pkg/custody"
	"github.com/malbeclabs/racevault/ledger/pkg/server"
	"github.com/malbeclabs/racevault/ledger/pkg/vault"
	vaulttesting "github.com/malbeclabs/racevault/utils/pkg/testing"
)

func TestRaceVault_Server_Config(t *testing.T) {
	t.Parallel()

	t.Run("requires ledger and store", func(t *testing.T) {
		t.Parallel()
		_, err := server.New(server.Config{Logger: vaulttesting.NewLogger()})
		require.ErrorContains(t, err, "ledger is required")

		_, err = server.New(server.Config{Logger: vaulttesting.NewLogger(), Ledger: &faultyLedger{}})
		require.ErrorContains(t, err, "store is required")
	})
}

func TestRaceVault_Server_Probes(t *testing.T) {
	t.Parallel()

	t.Run("healthz and version", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)

		rec := f.do(t, http.MethodGet, "/healthz", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = f.do(t, http.MethodGet, "/version", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		build := decodeBody[server.BuildInfo](t, rec)
		require.Equal(t, "1.2.3", build.Version)
		require.Equal(t, "abc123", build.Commit)
	})

	t.Run("readyz reflects the store", func(t *testing.T) {
		t.Parallel()
		var down bool
		f := newAPIFixture(t, withStore(&mockPinger{PingFunc: func(ctx context.Context) error {
			if down {
				return errors.New("connection refused")
			}
			return nil
		}}))

		rec := f.do(t, http.MethodGet, "/readyz", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		down = true
		rec = f.do(t, http.MethodGet, "/readyz", nil, nil)
		requireError(t, rec, http.StatusServiceUnavailable, "not_ready")
	})
}

func TestRaceVault_Server_Authentication(t *testing.T) {
	t.Parallel()

	t.Run("missing headers", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		rec := f.do(t, http.MethodPost, f.vaultPath(""), nil, nil)
		requireError(t, rec, http.StatusUnauthorized, "unauthenticated")
	})

	t.Run("signature from another key", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		req := httptest.NewRequest(http.MethodPost, f.vaultPath(""), nil)
		require.NoError(t, server.SignRequest(req, vaulttesting.NewKeypair(t), f.clock.Now()))
		req.Header.Set(server.HeaderPubkey, f.authority.PublicKey().String())

		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		requireError(t, rec, http.StatusUnauthorized, "unauthenticated")
	})

	t.Run("body altered after signing", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		f.initialize(t)

		req := httptest.NewRequest(http.MethodPost, f.vaultPath("/deposits"), bytes.NewReader([]byte(`{"amount":1}`)))
		require.NoError(t, server.SignRequest(req, f.authority, f.clock.Now()))
		req.Body = io.NopCloser(bytes.NewReader([]byte(`{"amount":1000000}`)))

		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		requireError(t, rec, http.StatusUnauthorized, "unauthenticated")
	})

	t.Run("stale and future timestamps", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		for _, at := range []time.Time{f.clock.Now().Add(-6 * time.Minute), f.clock.Now().Add(6 * time.Minute)} {
			req := httptest.NewRequest(http.MethodPost, f.vaultPath(""), nil)
			require.NoError(t, server.SignRequest(req, f.authority, at))
			rec := httptest.NewRecorder()
			f.handler.ServeHTTP(rec, req)
			requireError(t, rec, http.StatusUnauthorized, "unauthenticated")
		}
	})

	t.Run("timestamp within window", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		req := httptest.NewRequest(http.MethodPost, f.vaultPath(""), nil)
		require.NoError(t, server.SignRequest(req, f.authority, f.clock.Now().Add(-4*time.Minute)))
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	})

	t.Run("reads are public", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		f.initialize(t)
		rec := f.do(t, http.MethodGet, f.vaultPath(""), nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRaceVault_Server_Flow(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)
	recipientKey := vaulttesting.NewKeypair(t)
	recipient := recipientKey.PublicKey()
	referrerKey := vaulttesting.NewKeypair(t)
	referrer := referrerKey.PublicKey()

	rec := f.do(t, http.MethodPost, f.vaultPath(""), nil, f.authority)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	cfg := decodeBody[vault.Config](t, rec)
	require.Equal(t, f.authority.PublicKey(), cfg.Authority)
	require.Equal(t, f.mint, cfg.Mint)

	f.deposit(t, 1_000)

	rec = f.do(t, http.MethodPost, f.vaultPath("/payouts"), payoutBody("race-1", recipient, 300), f.authority)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	receipt := decodeBody[vault.PayoutReceipt](t, rec)
	require.Equal(t, vault.HashEventID("race-1"), receipt.EventIDHash)
	require.Equal(t, uint64(300), receipt.Amount)
	require.Equal(t, uint64(30), receipt.Points)

	rec = f.do(t, http.MethodGet, f.vaultPath("/payouts/"+recipient.String()), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, uint64(300), decodeBody[vault.PayoutRegistry](t, rec).TotalPending)

	rec = f.do(t, http.MethodGet, f.vaultPath("/receipts/"+receipt.EventIDHash.String()+"/"+recipient.String()), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, receipt.Address, decodeBody[vault.PayoutReceipt](t, rec).Address)

	rec = f.do(t, http.MethodPost, f.vaultPath("/payouts/"+recipient.String()+"/claim"), nil, recipientKey)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	claim := decodeBody[vault.ClaimResult](t, rec)
	require.Equal(t, uint64(300), claim.Amount)
	require.Equal(t, recipient, claim.Beneficiary)

	rec = f.do(t, http.MethodGet, f.vaultPath("/token-accounts/"+recipient.String()), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, uint64(300), decodeBody[custody.TokenAccount](t, rec).Amount)

	rec = f.do(t, http.MethodPost, f.vaultPath("/referral-bonuses"), map[string]any{
		"event_id": "race-1",
		"referrer": referrer.String(),
		"referee":  recipient.String(),
		"amount":   50,
	}, f.authority)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, f.vaultPath("/bonuses/"+referrer.String()), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, uint64(50), decodeBody[vault.ReferrerRegistry](t, rec).TotalPending)

	rec = f.do(t, http.MethodPost, f.vaultPath("/bonuses/"+referrer.String()+"/claim"), nil, referrerKey)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, uint64(50), decodeBody[vault.ClaimResult](t, rec).Amount)

	rec = f.do(t, http.MethodGet, f.vaultPath("/referral-bonuses/race-1/"+referrer.String()+"/"+recipient.String()), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, decodeBody[vault.ReferralBonusRecord](t, rec).Claimed)

	rec = f.do(t, http.MethodGet, f.vaultPath("/bonuses/"+referrer.String()+"/history"), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decodeBody[vault.BonusHistory](t, rec)
	require.Len(t, history.Records, 1)
	require.Equal(t, uint64(50), history.Registry.TotalClaimed)

	rec = f.do(t, http.MethodGet, f.vaultPath("/stats/payouts"), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	payouts := decodeBody[vault.GlobalPayoutRegistry](t, rec)
	require.Equal(t, uint64(300), payouts.TotalClaimed)
	require.Equal(t, uint32(1), payouts.TotalRecipientCount)

	rec = f.do(t, http.MethodGet, f.vaultPath("/stats/referrals"), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, uint64(50), decodeBody[vault.GlobalReferralRegistry](t, rec).TotalClaimed)

	rec = f.do(t, http.MethodGet, f.vaultPath("/balance"), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, uint64(650), decodeBody[custody.TokenAccount](t, rec).Amount)

	rec = f.do(t, http.MethodPost, f.vaultPath("/reconcile"), nil, f.authority)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	recon := decodeBody[vault.ReconcileResult](t, rec)
	require.Equal(t, uint64(650), recon.Balance)
	require.Zero(t, recon.Outstanding)

	newAuthority := vaulttesting.NewKeypair(t)
	rec = f.do(t, http.MethodPost, f.vaultPath("/authority"), map[string]any{"new_authority": newAuthority.PublicKey().String()}, f.authority)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, newAuthority.PublicKey(), decodeBody[vault.Config](t, rec).Authority)

	rec = f.do(t, http.MethodDelete, f.vaultPath(""), nil, f.authority)
	requireError(t, rec, http.StatusForbidden, "unauthorized")

	rec = f.do(t, http.MethodDelete, f.vaultPath(""), nil, newAuthority)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, f.vaultPath(""), nil, nil)
	requireError(t, rec, http.StatusNotFound, "vault_not_found")
}

func TestRaceVault_Server_ErrorStatus(t *testing.T) {
	t.Parallel()

	t.Run("validation errors are 400", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		f.initialize(t)
		recipient := vaulttesting.NewPubkey(t)

		body := payoutBody("race-1", recipient, 100)
		body["event_id_hash"] = vault.HashEventID("race-2").String()
		rec := f.do(t, http.MethodPost, f.vaultPath("/payouts"), body, f.authority)
		requireError(t, rec, http.StatusBadRequest, "hash_mismatch")

		rec = f.do(t, http.MethodPost, f.vaultPath("/payouts"), payoutBody("race-1", recipient, 0), f.authority)
		requireError(t, rec, http.StatusBadRequest, "zero_amount")

		rec = f.do(t, http.MethodPost, f.vaultPath("/referral-bonuses"), map[string]any{
			"event_id": "race-1",
			"referrer": recipient.String(),
			"referee":  recipient.String(),
			"amount":   10,
		}, f.authority)
		requireError(t, rec, http.StatusBadRequest, "self_referral")
	})

	t.Run("malformed input is 400", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		f.initialize(t)

		body := payoutBody("race-1", vaulttesting.NewPubkey(t), 100)
		body["bogus"] = true
		rec := f.do(t, http.MethodPost, f.vaultPath("/payouts"), body, f.authority)
		requireError(t, rec, http.StatusBadRequest, "bad_request")

		rec = f.do(t, http.MethodPost, f.vaultPath("/deposits"), nil, f.authority)
		requireError(t, rec, http.StatusBadRequest, "bad_request")

		rec = f.do(t, http.MethodGet, "/v1/vaults/not-a-key", nil, nil)
		requireError(t, rec, http.StatusBadRequest, "bad_request")

		rec = f.do(t, http.MethodGet, f.vaultPath("/receipts/zz/"+vaulttesting.NewPubkey(t).String()), nil, nil)
		requireError(t, rec, http.StatusBadRequest, "bad_request")
	})

	t.Run("non-authority is 403", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		f.initialize(t)
		rec := f.do(t, http.MethodPost, f.vaultPath("/payouts"), payoutBody("race-1", vaulttesting.NewPubkey(t), 100), vaulttesting.NewKeypair(t))
		requireError(t, rec, http.StatusForbidden, "unauthorized")
	})

	t.Run("paused is 423", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		f.initialize(t)
		recipientKey := vaulttesting.NewKeypair(t)
		f.deposit(t, 100)
		rec := f.do(t, http.MethodPost, f.vaultPath("/payouts"), payoutBody("race-1", recipientKey.PublicKey(), 100), f.authority)
		require.Equal(t, http.StatusCreated, rec.Code)

		rec = f.do(t, http.MethodPatch, f.vaultPath("/config"), map[string]any{"paused": true}, f.authority)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.True(t, decodeBody[vault.Config](t, rec).Paused)

		rec = f.do(t, http.MethodPost, f.vaultPath("/payouts/"+recipientKey.PublicKey().String()+"/claim"), nil, recipientKey)
		requireError(t, rec, http.StatusLocked, "paused")

		rec = f.do(t, http.MethodPatch, f.vaultPath("/config"), map[string]any{"paused": false}, f.authority)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = f.do(t, http.MethodPost, f.vaultPath("/payouts/"+recipientKey.PublicKey().String()+"/claim"), nil, recipientKey)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})

	t.Run("missing records are 404", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		rec := f.do(t, http.MethodGet, f.vaultPath(""), nil, nil)
		requireError(t, rec, http.StatusNotFound, "vault_not_found")

		f.initialize(t)
		rec = f.do(t, http.MethodGet, f.vaultPath("/payouts/"+vaulttesting.NewPubkey(t).String()), nil, nil)
		requireError(t, rec, http.StatusNotFound, "not_found")
	})

	t.Run("state conflicts are 409", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		f.initialize(t)

		rec := f.do(t, http.MethodPost, f.vaultPath(""), nil, f.authority)
		requireError(t, rec, http.StatusConflict, "already_initialized")

		recipientKey := vaulttesting.NewKeypair(t)
		body := payoutBody("race-1", recipientKey.PublicKey(), 100)
		rec = f.do(t, http.MethodPost, f.vaultPath("/payouts"), body, f.authority)
		require.Equal(t, http.StatusCreated, rec.Code)
		rec = f.do(t, http.MethodPost, f.vaultPath("/payouts"), body, f.authority)
		requireError(t, rec, http.StatusConflict, "duplicate_receipt")

		rec = f.do(t, http.MethodPost, f.vaultPath("/payouts/"+recipientKey.PublicKey().String()+"/claim"), nil, recipientKey)
		requireError(t, rec, http.StatusConflict, "insufficient_liquidity")

		rec = f.do(t, http.MethodPost, f.vaultPath("/bonuses/"+recipientKey.PublicKey().String()+"/claim"), nil, recipientKey)
		requireError(t, rec, http.StatusConflict, "no_pending_balance")
	})

	t.Run("designated recipient must match the path", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		f.initialize(t)
		f.deposit(t, 100)
		recipient := vaulttesting.NewPubkey(t)
		rec := f.do(t, http.MethodPost, f.vaultPath("/payouts"), payoutBody("race-1", recipient, 100), f.authority)
		require.Equal(t, http.StatusCreated, rec.Code)

		claimPath := f.vaultPath("/payouts/" + recipient.String() + "/claim")
		rec = f.do(t, http.MethodPost, claimPath, map[string]any{"designated_recipient": vaulttesting.NewPubkey(t).String()}, f.authority)
		requireError(t, rec, http.StatusBadRequest, "recipient_mismatch")

		rec = f.do(t, http.MethodPost, claimPath, map[string]any{"designated_recipient": recipient.String()}, f.authority)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})

	t.Run("vault signer cannot be registered", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		f.initialize(t)
		rec := f.do(t, http.MethodGet, f.vaultPath(""), nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		signer := decodeBody[vault.Config](t, rec).VaultSigner

		rec = f.do(t, http.MethodPost, f.vaultPath("/payouts"), payoutBody("race-1", signer, 100), f.authority)
		requireError(t, rec, http.StatusBadRequest, "invalid_identity")

		rec = f.do(t, http.MethodPost, f.vaultPath("/referral-bonuses"), map[string]any{
			"event_id": "race-1",
			"referrer": signer.String(),
			"referee":  vaulttesting.NewPubkey(t).String(),
			"amount":   25,
		}, f.authority)
		requireError(t, rec, http.StatusBadRequest, "invalid_identity")
	})
}

func TestRaceVault_Server_PermissionlessClaims(t *testing.T) {
	t.Parallel()

	t.Run("relayer claims payouts for a recipient", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		f.initialize(t)
		f.deposit(t, 1_000)
		recipient := vaulttesting.NewPubkey(t)
		relayer := vaulttesting.NewKeypair(t)
		rec := f.do(t, http.MethodPost, f.vaultPath("/payouts"), payoutBody("race-1", recipient, 300), f.authority)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		rec = f.do(t, http.MethodPost, f.vaultPath("/payouts/"+recipient.String()+"/claim"), map[string]any{"designated_recipient": recipient.String()}, relayer)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		claim := decodeBody[vault.ClaimResult](t, rec)
		require.Equal(t, recipient, claim.Beneficiary)
		require.Equal(t, uint64(300), claim.Amount)

		rec = f.do(t, http.MethodGet, f.vaultPath("/token-accounts/"+recipient.String()), nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, uint64(300), decodeBody[custody.TokenAccount](t, rec).Amount)

		rec = f.do(t, http.MethodGet, f.vaultPath("/token-accounts/"+relayer.PublicKey().String()), nil, nil)
		requireError(t, rec, http.StatusNotFound, "not_found")
	})

	t.Run("relayer claims bonuses for a referrer", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		f.initialize(t)
		f.deposit(t, 1_000)
		referrer := vaulttesting.NewPubkey(t)
		relayer := vaulttesting.NewKeypair(t)
		rec := f.do(t, http.MethodPost, f.vaultPath("/referral-bonuses"), map[string]any{
			"event_id": "race-1",
			"referrer": referrer.String(),
			"referee":  vaulttesting.NewPubkey(t).String(),
			"amount":   40,
		}, f.authority)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		rec = f.do(t, http.MethodPost, f.vaultPath("/bonuses/"+referrer.String()+"/claim"), nil, relayer)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.Equal(t, referrer, decodeBody[vault.ClaimResult](t, rec).Beneficiary)

		rec = f.do(t, http.MethodGet, f.vaultPath("/token-accounts/"+referrer.String()), nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, uint64(40), decodeBody[custody.TokenAccount](t, rec).Amount)
	})

	t.Run("claims still require a signature", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		f.initialize(t)
		rec := f.do(t, http.MethodPost, f.vaultPath("/payouts/"+vaulttesting.NewPubkey(t).String()+"/claim"), nil, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejects a malformed beneficiary", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		f.initialize(t)
		rec := f.do(t, http.MethodPost, f.vaultPath("/bonuses/not-a-key/claim"), nil, vaulttesting.NewKeypair(t))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

// faultyLedger serves GetConfig through a func field; other methods are unused.
type faultyLedger struct {
	server.Ledger
	GetConfigFunc func(ctx context.Context, mint solana.PublicKey) (*vault.Config, error)
}

func (l *faultyLedger) GetConfig(ctx context.Context, mint solana.PublicKey) (*vault.Config, error) {
	return l.GetConfigFunc(ctx, mint)
}

func TestRaceVault_Server_InternalErrors(t *testing.T) {
	t.Parallel()

	t.Run("internal errors are masked", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t, withLedger(&faultyLedger{GetConfigFunc: func(ctx context.Context, mint solana.PublicKey) (*vault.Config, error) {
			return nil, errors.New("unexpected row count")
		}}))
		rec := f.do(t, http.MethodGet, f.vaultPath(""), nil, nil)
		requireError(t, rec, http.StatusInternalServerError, "internal")
		require.Equal(t, "internal error", decodeBody[errorBody](t, rec).Message)
	})

	t.Run("panics are recovered", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t, withLedger(&faultyLedger{GetConfigFunc: func(ctx context.Context, mint solana.PublicKey) (*vault.Config, error) {
			panic("boom")
		}}))
		rec := f.do(t, http.MethodGet, f.vaultPath(""), nil, nil)
		requireError(t, rec, http.StatusInternalServerError, "internal")
	})
}

func TestRaceVault_Server_RateLimit(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t, withRateLimit(rate.Every(time.Minute), 1))

	f.initialize(t)
	rec := f.do(t, http.MethodPost, f.vaultPath("/deposits"), map[string]any{"amount": 10}, f.authority)
	requireError(t, rec, http.StatusTooManyRequests, "rate_limit_exceeded")
	require.Equal(t, "60", rec.Header().Get("Retry-After"))
	require.Equal(t, 60, decodeBody[errorBody](t, rec).RetryAfter)

	// Reads are not limited.
	rec = f.do(t, http.MethodGet, f.vaultPath(""), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	f.clock.Advance(time.Minute)
	rec = f.do(t, http.MethodPost, f.vaultPath("/deposits"), map[string]any{"amount": 10}, f.authority)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRaceVault_Server_StoreUnavailable(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t, withLedger(&faultyLedger{GetConfigFunc: func(ctx context.Context, mint solana.PublicKey) (*vault.Config, error) {
		return nil, fmt.Errorf("failed to begin transaction: %w", &pgconn.PgError{Code: "57P01"})
	}}))
	rec := f.do(t, http.MethodGet, f.vaultPath(""), nil, nil)
	requireError(t, rec, http.StatusServiceUnavailable, "store_unavailable")
	require.Equal(t, "1", rec.Header().Get("Retry-After"))
}
