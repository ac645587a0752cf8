package vaulttesting

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

// NewKeypair returns a fresh ed25519 keypair.
func NewKeypair(t testing.TB) solana.PrivateKey {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return key
}

// NewPubkey returns the public half of a fresh keypair.
func NewPubkey(t testing.TB) solana.PublicKey {
	t.Helper()
	return NewKeypair(t).PublicKey()
}
