package vault

import (
	"errors"
)

// Validation errors.
var (
	ErrZeroAmount        = errors.New("vault: amount must be greater than zero")
	ErrHashMismatch      = errors.New("vault: event id hash does not match event id")
	ErrIdentifierTooLong = errors.New("vault: event id exceeds 32 bytes")
	ErrSelfReferral      = errors.New("vault: self-referrals are not allowed")
	ErrRecipientMismatch = errors.New("vault: recipient does not match designated recipient")
	ErrInvalidIdentity   = errors.New("vault: identity must not be the zero key")
)

// State errors.
var (
	ErrDuplicateReceipt      = errors.New("vault: payout already registered for event and recipient")
	ErrDuplicateRecord       = errors.New("vault: referral bonus already registered for event, referrer and referee")
	ErrNoPendingBalance      = errors.New("vault: no pending balance to claim")
	ErrInsufficientLiquidity = errors.New("vault: insufficient vault balance")
	ErrVaultNotFound         = errors.New("vault: vault is not initialized for mint")
	ErrAlreadyInitialized    = errors.New("vault: vault already initialized for mint")
	ErrInvariant             = errors.New("vault: ledger invariant violated")
)

// Authorization errors.
var (
	ErrPaused       = errors.New("vault: program is paused")
	ErrUnauthorized = errors.New("vault: caller is not the vault authority")
)

// ErrOverflow is returned when checked arithmetic would wrap.
var ErrOverflow = errors.New("vault: arithmetic overflow")

// Store errors. Implementations return these (possibly wrapped) and the engine
// translates them into the domain errors above.
var (
	ErrNotFound      = errors.New("vault: record not found")
	ErrAlreadyExists = errors.New("vault: record already exists")
)

// Kind classifies an error for callers that map failures onto transport codes.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindState         Kind = "state"
	KindAuthorization Kind = "authorization"
	KindArithmetic    Kind = "arithmetic"
	KindInternal      Kind = "internal"
)

// kinds is ordered like the Code switch so an error wrapping several
// sentinels gets a kind that agrees with its code.
var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrZeroAmount, KindValidation},
	{ErrHashMismatch, KindValidation},
	{ErrIdentifierTooLong, KindValidation},
	{ErrSelfReferral, KindValidation},
	{ErrRecipientMismatch, KindValidation},
	{ErrInvalidIdentity, KindValidation},
	{ErrDuplicateReceipt, KindState},
	{ErrDuplicateRecord, KindState},
	{ErrNoPendingBalance, KindState},
	{ErrInsufficientLiquidity, KindState},
	{ErrVaultNotFound, KindState},
	{ErrAlreadyInitialized, KindState},
	{ErrNotFound, KindState},
	{ErrAlreadyExists, KindState},
	{ErrPaused, KindAuthorization},
	{ErrUnauthorized, KindAuthorization},
	{ErrOverflow, KindArithmetic},
}

// KindOf returns the classification of err, or KindInternal for anything the
// ledger does not recognise (storage failures, invariant violations).
func KindOf(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// Code returns a stable snake_case identifier for err, used in API responses
// and metric labels.
func Code(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrZeroAmount):
		return "zero_amount"
	case errors.Is(err, ErrHashMismatch):
		return "hash_mismatch"
	case errors.Is(err, ErrIdentifierTooLong):
		return "identifier_too_long"
	case errors.Is(err, ErrSelfReferral):
		return "self_referral"
	case errors.Is(err, ErrRecipientMismatch):
		return "recipient_mismatch"
	case errors.Is(err, ErrInvalidIdentity):
		return "invalid_identity"
	case errors.Is(err, ErrDuplicateReceipt):
		return "duplicate_receipt"
	case errors.Is(err, ErrDuplicateRecord):
		return "duplicate_record"
	case errors.Is(err, ErrNoPendingBalance):
		return "no_pending_balance"
	case errors.Is(err, ErrInsufficientLiquidity):
		return "insufficient_liquidity"
	case errors.Is(err, ErrVaultNotFound):
		return "vault_not_found"
	case errors.Is(err, ErrAlreadyInitialized):
		return "already_initialized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrPaused):
		return "paused"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrOverflow):
		return "overflow"
	case errors.Is(err, ErrInvariant):
		return "invariant_violation"
	default:
		return "internal"
	}
}
