package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/malbeclabs/racevault/ledger/pkg/server"
	"github.com/malbeclabs/racevault/ledger/pkg/store/memory"
	"github.com/malbeclabs/racevault/ledger/pkg/vault"
	vaulttesting "github.com/malbeclabs/racevault/utils/pkg/testing"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type mockPinger struct {
	PingFunc func(ctx context.Context) error
}

func (m *mockPinger) Ping(ctx context.Context) error {
	return m.PingFunc(ctx)
}

type apiFixture struct {
	handler   http.Handler
	clock     *clockwork.FakeClock
	authority solana.PrivateKey
	mint      solana.PublicKey
}

type serverOption func(*server.Config)

func withLedger(l server.Ledger) serverOption {
	return func(cfg *server.Config) { cfg.Ledger = l }
}

func withStore(p server.Pinger) serverOption {
	return func(cfg *server.Config) { cfg.Store = p }
}

func withRateLimit(r rate.Limit, burst int) serverOption {
	return func(cfg *server.Config) {
		cfg.RateLimit = r
		cfg.RateBurst = burst
	}
}

func newAPIFixture(t *testing.T, opts ...serverOption) *apiFixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testNow)
	store := memory.New()
	engine, err := vault.NewEngine(vault.EngineConfig{
		Logger: vaulttesting.NewLogger(),
		Clock:  clock,
		Store:  store,
	})
	require.NoError(t, err)

	cfg := server.Config{
		Logger:    vaulttesting.NewLogger(),
		Clock:     clock,
		Ledger:    engine,
		Store:     store,
		Build:     server.BuildInfo{Version: "1.2.3", Commit: "abc123", Date: "2026-03-01"},
		RateLimit: rate.Inf,
		RateBurst: 1000,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	srv, err := server.New(cfg)
	require.NoError(t, err)

	return &apiFixture{
		handler:   srv.Handler(),
		clock:     clock,
		authority: vaulttesting.NewKeypair(t),
		mint:      vaulttesting.NewPubkey(t),
	}
}

func (f *apiFixture) vaultPath(suffix string) string {
	return "/v1/vaults/" + f.mint.String() + suffix
}

// do sends a request, signed by key when it is non-nil, and returns the recorder.
func (f *apiFixture) do(t *testing.T, method, path string, body any, key solana.PrivateKey) *httptest.ResponseRecorder {
	t.Helper()
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if key != nil {
		require.NoError(t, server.SignRequest(req, key, f.clock.Now()))
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) initialize(t *testing.T) {
	t.Helper()
	rec := f.do(t, http.MethodPost, f.vaultPath(""), nil, f.authority)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (f *apiFixture) deposit(t *testing.T, amount uint64) {
	t.Helper()
	rec := f.do(t, http.MethodPost, f.vaultPath("/deposits"), map[string]any{"amount": amount}, f.authority)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func payoutBody(eventID string, recipient solana.PublicKey, amount uint64) map[string]any {
	return map[string]any{
		"event_id":      eventID,
		"event_id_hash": vault.HashEventID(eventID).String(),
		"recipient":     recipient.String(),
		"points":        amount / 10,
		"amount":        amount,
	}
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type errorBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"`
}

func requireError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	require.Equal(t, code, decodeBody[errorBody](t, rec).Error)
}
