package adapter

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	apperrors "github.com/position-dashboard/internal/errors"
	"github.com/position-dashboard/internal/logging"
)

const solanaSource = "solana-rpc"

// SlotSource returns the current slot of the chain
type SlotSource interface {
	GetSlot(ctx context.Context) (uint64, error)
}

// SolanaRPC is a read-only Solana JSON-RPC client with primary/secondary failover.
// Only getSlot and getHealth are issued; account data is read by the protocol clients.
type SolanaRPC struct {
	provider   *RPCProvider
	commitment string

	mu      sync.Mutex
	clients map[string]*rpc.Client
}

// NewSolanaRPC creates a client for the given endpoints. Connections are dialed lazily.
func NewSolanaRPC(primaryURL, secondaryURL, commitment string) (*SolanaRPC, error) {
	provider, err := NewRPCProvider(primaryURL, secondaryURL)
	if err != nil {
		return nil, err
	}
	if commitment == "" {
		commitment = "confirmed"
	}

	return &SolanaRPC{
		provider:   provider,
		commitment: commitment,
		clients:    make(map[string]*rpc.Client),
	}, nil
}

// GetSlot returns the current slot at the configured commitment
func (s *SolanaRPC) GetSlot(ctx context.Context) (uint64, error) {
	var slot uint64
	if err := s.call(ctx, &slot, "getSlot", map[string]string{"commitment": s.commitment}); err != nil {
		return 0, err
	}
	return slot, nil
}

// GetHealth returns nil when the node reports "ok"
func (s *SolanaRPC) GetHealth(ctx context.Context) error {
	var status string
	if err := s.call(ctx, &status, "getHealth"); err != nil {
		return err
	}
	if status != "ok" {
		return apperrors.NewNetworkError(solanaSource, fmt.Errorf("node reports %q", status))
	}
	return nil
}

// Provider exposes endpoint health
func (s *SolanaRPC) Provider() *RPCProvider {
	return s.provider
}

// Close closes every dialed connection
func (s *SolanaRPC) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for url, client := range s.clients {
		client.Close()
		delete(s.clients, url)
	}
}

// call issues one request against the current endpoint and, on failure,
// exactly one more against the other endpoint when a secondary is configured.
func (s *SolanaRPC) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	logger := logging.FromContext(ctx)

	attempts := 1
	if s.provider.HasSecondary() {
		attempts = 2
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		url := s.provider.CurrentURL()
		client, err := s.client(ctx, url)
		if err != nil {
			lastErr = err
			s.provider.RecordFailure(err)
		} else {
			start := time.Now()
			err = client.CallContext(ctx, result, method, args...)
			if err == nil {
				s.provider.RecordSuccess(time.Since(start))
				return nil
			}
			lastErr = err
			s.provider.RecordFailure(err)

			if isDecodeError(err) {
				return apperrors.NewParseError(solanaSource, err)
			}
		}

		if ctx.Err() != nil {
			break
		}

		logger.WithFields(map[string]interface{}{
			"method":   method,
			"endpoint": url,
			"attempt":  attempt,
		}).WithError(lastErr).Warn("Solana RPC call failed")

		if attempt < attempts {
			if err := s.provider.Failover(); err != nil {
				break
			}
		}
	}

	return apperrors.NewNetworkError(solanaSource, lastErr)
}

func (s *SolanaRPC) client(ctx context.Context, url string) (*rpc.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if client, ok := s.clients[url]; ok {
		return client, nil
	}
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	s.clients[url] = client
	return client, nil
}

// isDecodeError reports whether the node answered but the result did not fit
func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return stderrors.As(err, &syntaxErr) || stderrors.As(err, &typeErr)
}
