// Package custody keeps the token accounts a vault pays out of and the
// transfer primitive that moves balances between them.
package custody

import (
	"context"
	"errors"
	"fmt"
	"math/bits"

	"github.com/gagliardetto/solana-go"
)

var (
	ErrAccountNotFound   = errors.New("custody: token account not found")
	ErrInsufficientFunds = errors.New("custody: insufficient funds")
	ErrOwnerMismatch     = errors.New("custody: authority does not own source account")
	ErrMintMismatch      = errors.New("custody: accounts hold different mints")
	ErrInvalidCapability = errors.New("custody: signer capability does not match derivation")
	ErrZeroAmount        = errors.New("custody: amount must be greater than zero")
	ErrSameAccount       = errors.New("custody: source and destination are the same account")
	ErrBalanceOverflow   = errors.New("custody: balance overflow")
)

// TokenAccount is the ledger-side balance of one (owner, mint) pair.
type TokenAccount struct {
	Address solana.PublicKey `json:"address"`
	Mint    solana.PublicKey `json:"mint"`
	Owner   solana.PublicKey `json:"owner"`
	Amount  uint64           `json:"amount"`
}

// Accounts is the transactional view of token accounts that custody operates on.
type Accounts interface {
	// TokenAccountsForUpdate loads the given accounts, locking them for the
	// rest of the transaction. Missing accounts come back as nil entries, in
	// argument order.
	TokenAccountsForUpdate(ctx context.Context, addrs ...solana.PublicKey) ([]*TokenAccount, error)
	// TokenAccount returns ErrAccountNotFound when the account does not exist.
	TokenAccount(ctx context.Context, addr solana.PublicKey) (*TokenAccount, error)
	PutTokenAccount(ctx context.Context, acct *TokenAccount) error
}

// Authority is something allowed to move funds out of the accounts it owns.
type Authority interface {
	Address() solana.PublicKey
}

// Wallet is an authority backed by an authenticated caller.
type Wallet solana.PublicKey

func (w Wallet) Address() solana.PublicKey { return solana.PublicKey(w) }

// SignerCapability is the delegated signing right of a program-derived
// address. It can only be built from the seeds the address derives from.
type SignerCapability struct {
	address solana.PublicKey
}

// NewSignerCapability proves that seeds plus bump derive a valid program
// address under programID and that it equals expected.
func NewSignerCapability(programID solana.PublicKey, seeds [][]byte, bump uint8, expected solana.PublicKey) (SignerCapability, error) {
	withBump := make([][]byte, 0, len(seeds)+1)
	withBump = append(withBump, seeds...)
	withBump = append(withBump, []byte{bump})
	addr, err := solana.CreateProgramAddress(withBump, programID)
	if err != nil {
		return SignerCapability{}, fmt.Errorf("%w: %v", ErrInvalidCapability, err)
	}
	if !addr.Equals(expected) {
		return SignerCapability{}, ErrInvalidCapability
	}
	return SignerCapability{address: addr}, nil
}

func (c SignerCapability) Address() solana.PublicKey { return c.address }

// AssociatedAddress returns the canonical token account of owner for mint.
func AssociatedAddress(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive associated token address: %w", err)
	}
	return addr, nil
}

// OpenAccount returns the associated token account of owner, creating an empty
// one when it does not exist yet.
func OpenAccount(ctx context.Context, accts Accounts, owner, mint solana.PublicKey) (*TokenAccount, error) {
	addr, err := AssociatedAddress(owner, mint)
	if err != nil {
		return nil, err
	}
	loaded, err := accts.TokenAccountsForUpdate(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to load token account: %w", err)
	}
	if acct := loaded[0]; acct != nil {
		if !acct.Mint.Equals(mint) {
			return nil, ErrMintMismatch
		}
		return acct, nil
	}
	acct := &TokenAccount{Address: addr, Mint: mint, Owner: owner}
	if err := accts.PutTokenAccount(ctx, acct); err != nil {
		return nil, fmt.Errorf("failed to create token account: %w", err)
	}
	return acct, nil
}

// Credit records an inflow from outside the ledger into addr.
func Credit(ctx context.Context, accts Accounts, addr solana.PublicKey, amount uint64) (*TokenAccount, error) {
	if amount == 0 {
		return nil, ErrZeroAmount
	}
	loaded, err := accts.TokenAccountsForUpdate(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to load token account: %w", err)
	}
	acct := loaded[0]
	if acct == nil {
		return nil, ErrAccountNotFound
	}
	sum, carry := bits.Add64(acct.Amount, amount, 0)
	if carry != 0 {
		return nil, ErrBalanceOverflow
	}
	acct.Amount = sum
	if err := accts.PutTokenAccount(ctx, acct); err != nil {
		return nil, fmt.Errorf("failed to update token account: %w", err)
	}
	return acct, nil
}

// TransferRequest moves Amount from Source to Destination under Authority.
type TransferRequest struct {
	Source      solana.PublicKey
	Destination solana.PublicKey
	Amount      uint64
	Authority   Authority
}

// Transfer moves exactly req.Amount or fails without changing either account.
func Transfer(ctx context.Context, accts Accounts, req TransferRequest) error {
	if req.Amount == 0 {
		return ErrZeroAmount
	}
	if req.Source.Equals(req.Destination) {
		return ErrSameAccount
	}
	if req.Authority == nil {
		return ErrOwnerMismatch
	}

	loaded, err := accts.TokenAccountsForUpdate(ctx, req.Source, req.Destination)
	if err != nil {
		return fmt.Errorf("failed to load token accounts: %w", err)
	}
	src, dst := loaded[0], loaded[1]
	if src == nil || dst == nil {
		return ErrAccountNotFound
	}
	if !src.Owner.Equals(req.Authority.Address()) {
		return ErrOwnerMismatch
	}
	if !src.Mint.Equals(dst.Mint) {
		return ErrMintMismatch
	}
	if src.Amount < req.Amount {
		return ErrInsufficientFunds
	}
	credited, carry := bits.Add64(dst.Amount, req.Amount, 0)
	if carry != 0 {
		return ErrBalanceOverflow
	}

	src.Amount -= req.Amount
	dst.Amount = credited
	if err := accts.PutTokenAccount(ctx, src); err != nil {
		return fmt.Errorf("failed to debit source: %w", err)
	}
	if err := accts.PutTokenAccount(ctx, dst); err != nil {
		return fmt.Errorf("failed to credit destination: %w", err)
	}
	return nil
}
