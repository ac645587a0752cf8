// Package chain reads vault custody balances from a Solana RPC endpoint.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"

	"github.com/malbeclabs/racevault/utils/pkg/retry"
)

// DefaultRPCURL is used when no endpoint is configured.
const DefaultRPCURL = "https://api.mainnet-beta.solana.com"

// SolanaRPC is the subset of the RPC client the reader needs.
type SolanaRPC interface {
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment solanarpc.CommitmentType) (*solanarpc.GetTokenAccountBalanceResult, error)
}

type BalanceReaderConfig struct {
	Logger     *slog.Logger
	RPC        SolanaRPC
	Commitment solanarpc.CommitmentType
	Retry      retry.Config
}

func (cfg *BalanceReaderConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.RPC == nil {
		return errors.New("rpc client is required")
	}
	if cfg.Commitment == "" {
		cfg.Commitment = solanarpc.CommitmentFinalized
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return nil
}

// BalanceReader reads SPL token balances.
type BalanceReader struct {
	log *slog.Logger
	cfg BalanceReaderConfig
}

func NewBalanceReader(cfg BalanceReaderConfig) (*BalanceReader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &BalanceReader{log: cfg.Logger, cfg: cfg}, nil
}

// NewRPCClient returns an RPC client for url, falling back to DefaultRPCURL.
func NewRPCClient(url string) *solanarpc.Client {
	if url == "" {
		url = DefaultRPCURL
	}
	return solanarpc.New(url)
}

// TokenBalance returns the raw base-unit balance of a token account.
func (r *BalanceReader) TokenBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	var balance uint64
	err := retry.Do(ctx, r.cfg.Retry, func(ctx context.Context) error {
		res, err := r.cfg.RPC.GetTokenAccountBalance(ctx, account, r.cfg.Commitment)
		if err != nil {
			return err
		}
		if res == nil || res.Value == nil {
			return fmt.Errorf("empty token balance response for %s", account)
		}
		balance, err = strconv.ParseUint(res.Value.Amount, 10, 64)
		if err != nil {
			return fmt.Errorf("failed to parse token amount %q: %w", res.Value.Amount, err)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get token account balance: %w", err)
	}
	r.log.Debug("chain: token balance", "account", account.String(), "balance", balance)
	return balance, nil
}
