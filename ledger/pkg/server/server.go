// Package server exposes the ledger over HTTP. Mutating routes require a
// signed request; the signer becomes the caller identity of the operation.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/malbeclabs/racevault/ledger/pkg/custody"
	"github.com/malbeclabs/racevault/ledger/pkg/metrics"
	"github.com/malbeclabs/racevault/ledger/pkg/vault"
)

// Ledger is the set of engine operations served over HTTP.
type Ledger interface {
	Initialize(ctx context.Context, p vault.InitializeParams) (*vault.Config, error)
	Deposit(ctx context.Context, p vault.DepositParams) (*custody.TokenAccount, error)
	Reconcile(ctx context.Context, mint, caller solana.PublicKey) (*vault.ReconcileResult, error)
	TransferAuthority(ctx context.Context, mint, caller, newAuthority solana.PublicKey) (*vault.Config, error)
	UpdateConfig(ctx context.Context, mint, caller solana.PublicKey, paused *bool) (*vault.Config, error)
	Close(ctx context.Context, mint, caller solana.PublicKey) error

	RegisterPayout(ctx context.Context, p vault.RegisterPayoutParams) (*vault.PayoutReceipt, error)
	RegisterReferralBonus(ctx context.Context, p vault.RegisterReferralBonusParams) (*vault.ReferralBonusRecord, error)
	ClaimPendingPayouts(ctx context.Context, p vault.ClaimPayoutsParams) (*vault.ClaimResult, error)
	ClaimPendingBonuses(ctx context.Context, p vault.ClaimBonusesParams) (*vault.ClaimResult, error)

	GetConfig(ctx context.Context, mint solana.PublicKey) (*vault.Config, error)
	GetPendingPayouts(ctx context.Context, mint, recipient solana.PublicKey) (*vault.PayoutRegistry, error)
	GetPendingBonuses(ctx context.Context, mint, referrer solana.PublicKey) (*vault.ReferrerRegistry, error)
	GetAllBonuses(ctx context.Context, mint, referrer solana.PublicKey) (*vault.BonusHistory, error)
	GetGlobalPayoutStats(ctx context.Context, mint solana.PublicKey) (*vault.GlobalPayoutRegistry, error)
	GetGlobalReferralStats(ctx context.Context, mint solana.PublicKey) (*vault.GlobalReferralRegistry, error)
	GetPayoutReceipt(ctx context.Context, mint solana.PublicKey, hash vault.Hash, recipient solana.PublicKey) (*vault.PayoutReceipt, error)
	GetReferralBonus(ctx context.Context, mint solana.PublicKey, eventID string, referrer, referee solana.PublicKey) (*vault.ReferralBonusRecord, error)
	GetVaultBalance(ctx context.Context, mint solana.PublicKey) (*custody.TokenAccount, error)
	GetTokenAccount(ctx context.Context, mint, owner solana.PublicKey) (*custody.TokenAccount, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type BuildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

type Config struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
	Ledger Ledger
	Store  Pinger
	Build  BuildInfo

	// ReplayWindow bounds how far a signed timestamp may drift from now.
	ReplayWindow time.Duration
	// RateLimit and RateBurst apply per client IP to mutating routes.
	RateLimit      rate.Limit
	RateBurst      int
	AllowedOrigins []string
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Ledger == nil {
		return errors.New("ledger is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.ReplayWindow <= 0 {
		cfg.ReplayWindow = 5 * time.Minute
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = rate.Every(time.Minute / 120)
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 20
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	return nil
}

type Server struct {
	log     *slog.Logger
	cfg     Config
	limiter *RateLimiter
	router  chi.Router
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{
		log:     cfg.Logger,
		cfg:     cfg,
		limiter: NewRateLimiter(cfg.Clock, cfg.RateLimit, cfg.RateBurst),
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", HeaderPubkey, HeaderTimestamp, HeaderSignature},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Get("/version", s.handleVersion)

	r.Route("/v1/vaults/{mint}", func(r chi.Router) {
		r.Get("/", s.handleGetConfig)
		r.Get("/balance", s.handleGetVaultBalance)
		r.Get("/stats/payouts", s.handleGetGlobalPayoutStats)
		r.Get("/stats/referrals", s.handleGetGlobalReferralStats)
		r.Get("/payouts/{recipient}", s.handleGetPendingPayouts)
		r.Get("/receipts/{hash}/{recipient}", s.handleGetPayoutReceipt)
		r.Get("/bonuses/{referrer}", s.handleGetPendingBonuses)
		r.Get("/bonuses/{referrer}/history", s.handleGetAllBonuses)
		r.Get("/referral-bonuses/{eventID}/{referrer}/{referee}", s.handleGetReferralBonus)
		r.Get("/token-accounts/{owner}", s.handleGetTokenAccount)

		r.Group(func(r chi.Router) {
			r.Use(s.limiter.Middleware)
			r.Use(s.authenticate)

			r.Post("/", s.handleInitialize)
			r.Delete("/", s.handleClose)
			r.Patch("/config", s.handleUpdateConfig)
			r.Post("/authority", s.handleTransferAuthority)
			r.Post("/deposits", s.handleDeposit)
			r.Post("/reconcile", s.handleReconcile)
			r.Post("/payouts", s.handleRegisterPayout)
			r.Post("/payouts/{recipient}/claim", s.handleClaimPayouts)
			r.Post("/referral-bonuses", s.handleRegisterReferralBonus)
			r.Post("/bonuses/{referrer}/claim", s.handleClaimBonuses)
		})
	})
	return r
}

// recoverer turns panics into 500 responses and reports them to sentry.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub := sentry.CurrentHub().Clone()
		hub.Scope().SetRequest(r)
		ctx := sentry.SetHubOnContext(r.Context(), hub)
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				hub.RecoverWithContext(ctx, rec)
				s.log.Error("server: panic", "method", r.Method, "path", r.URL.Path, "panic", fmt.Sprint(rec))
				writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal", Message: "internal error"})
			}
		}()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	limiterCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.limiter.Run(limiterCtx)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server: listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	s.log.Info("server: shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}
