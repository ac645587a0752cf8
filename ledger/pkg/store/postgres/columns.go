package postgres

import (
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/malbeclabs/racevault/ledger/pkg/vault"
)

// keyColumn scans a base58 TEXT column into a public key.
type keyColumn struct {
	dst *solana.PublicKey
}

func key(dst *solana.PublicKey) *keyColumn {
	return &keyColumn{dst: dst}
}

func (k *keyColumn) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("cannot scan %T into public key", src)
	}
	pk, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return fmt.Errorf("invalid public key %q: %w", s, err)
	}
	*k.dst = pk
	return nil
}

// hashColumn scans a base58 TEXT column into an event hash.
type hashColumn struct {
	dst *vault.Hash
}

func (h *hashColumn) Scan(src any) error {
	s, ok := src.(string)
	if !ok {
		return fmt.Errorf("cannot scan %T into hash", src)
	}
	parsed, err := vault.ParseHash(s)
	if err != nil {
		return err
	}
	*h.dst = parsed
	return nil
}

// u64Column scans a NUMERIC(20, 0) column into a uint64.
type u64Column struct {
	dst *uint64
}

func u64(dst *uint64) *u64Column {
	return &u64Column{dst: dst}
}

func (c *u64Column) ScanNumeric(n pgtype.Numeric) error {
	v, err := numericToU64(n)
	if err != nil {
		return err
	}
	*c.dst = v
	return nil
}

func numericToU64(n pgtype.Numeric) (uint64, error) {
	if !n.Valid || n.NaN || n.InfinityModifier != pgtype.Finite {
		return 0, fmt.Errorf("numeric is not a finite value")
	}
	v := new(big.Int).Set(n.Int)
	switch {
	case n.Exp > 0:
		v.Mul(v, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n.Exp)), nil))
	case n.Exp < 0:
		var rem big.Int
		v.QuoRem(v, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(-n.Exp)), nil), &rem)
		if rem.Sign() != 0 {
			return 0, fmt.Errorf("numeric %s has a fractional part", n.Int)
		}
	}
	if v.Sign() < 0 || !v.IsUint64() {
		return 0, fmt.Errorf("numeric %s does not fit in uint64", v)
	}
	return v.Uint64(), nil
}

func numeric(v uint64) pgtype.Numeric {
	return pgtype.Numeric{Int: new(big.Int).SetUint64(v), Valid: true}
}
