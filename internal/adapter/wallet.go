package adapter

import (
	"context"
	"errors"

	"github.com/position-dashboard/internal/types"
)

// ErrSigningUnsupported is returned by wallets that only expose a public key
var ErrSigningUnsupported = errors.New("wallet does not support signing")

// Wallet is the capability set protocol clients may ask of a wallet
type Wallet interface {
	PublicKey() types.PublicKey
	SignTransaction(ctx context.Context, tx []byte) ([]byte, error)
	SignAllTransactions(ctx context.Context, txs [][]byte) ([][]byte, error)
}

// ReadOnlyWallet satisfies Wallet with a public key and nothing else.
// The dashboard never signs, so this is the only wallet it constructs.
type ReadOnlyWallet struct {
	key types.PublicKey
}

// NewReadOnlyWallet wraps key
func NewReadOnlyWallet(key types.PublicKey) *ReadOnlyWallet {
	return &ReadOnlyWallet{key: key}
}

// PublicKey returns the wrapped key
func (w *ReadOnlyWallet) PublicKey() types.PublicKey {
	return w.key
}

// SignTransaction always fails
func (w *ReadOnlyWallet) SignTransaction(ctx context.Context, tx []byte) ([]byte, error) {
	return nil, ErrSigningUnsupported
}

// SignAllTransactions always fails
func (w *ReadOnlyWallet) SignAllTransactions(ctx context.Context, txs [][]byte) ([][]byte, error) {
	return nil, ErrSigningUnsupported
}
