// Package types provides common type definitions for the position dashboard.
package types

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// PublicKeyLength is the decoded size of a Solana public key
const PublicKeyLength = 32

// PublicKey is a base58-encoded wallet or account address
type PublicKey string

// ParsePublicKey validates a base58 public key and returns it typed
func ParsePublicKey(s string) (PublicKey, error) {
	if s == "" {
		return "", fmt.Errorf("public key is empty")
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return "", fmt.Errorf("public key %q is not valid base58: %w", s, err)
	}
	if len(raw) != PublicKeyLength {
		return "", fmt.Errorf("public key %q decodes to %d bytes, want %d", s, len(raw), PublicKeyLength)
	}
	return PublicKey(s), nil
}

// MustPublicKey is ParsePublicKey for compile-time constants; it panics on bad input
func MustPublicKey(s string) PublicKey {
	pk, err := ParsePublicKey(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// String returns the base58 form
func (p PublicKey) String() string {
	return string(p)
}

// IsZero reports whether the key is unset
func (p PublicKey) IsZero() bool {
	return p == ""
}

// Short returns an abbreviated form used in log lines
func (p PublicKey) Short() string {
	s := string(p)
	if len(s) <= 10 {
		return s
	}
	return s[:4] + ".." + s[len(s)-4:]
}

// AssetID identifies an asset on the public price API (e.g. "bitcoin")
type AssetID string

const (
	// AssetBitcoin is the price API id for BTC
	AssetBitcoin AssetID = "bitcoin"
	// AssetJitoSOL is the price API id for JitoSOL
	AssetJitoSOL AssetID = "jito-staked-sol"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
