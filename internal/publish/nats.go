// Package publish announces committed display states on NATS.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/position-dashboard/internal/logging"
	"github.com/position-dashboard/internal/state"
	"github.com/position-dashboard/internal/types"
)

var _ state.Sink = (*NATSPublisher)(nil)

// DefaultSubjectPrefix is used when no prefix is configured
const DefaultSubjectPrefix = "dashboard.state"

// conn is the part of *nats.Conn the publisher uses
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher publishes every committed state of a connected wallet on
// {prefix}.{wallet}. Disconnected states carry no wallet and are skipped.
type NATSPublisher struct {
	nc     conn
	prefix string
}

// Connect dials url and returns a publisher for prefix
func Connect(url, prefix string) (*NATSPublisher, error) {
	logger := logging.GetGlobalLogger().WithField("component", "nats")

	nc, err := nats.Connect(url,
		nats.Name("position-dashboard"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.WithError(err).Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.WithField("url", c.ConnectedUrl()).Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return newPublisher(nc, prefix), nil
}

func newPublisher(nc conn, prefix string) *NATSPublisher {
	prefix = strings.TrimSuffix(prefix, ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{nc: nc, prefix: prefix}
}

// Subject returns the subject states of wallet are published on
func (p *NATSPublisher) Subject(wallet types.PublicKey) string {
	return p.prefix + "." + string(wallet)
}

// Name identifies the sink in logs and metrics
func (p *NATSPublisher) Name() string {
	return "nats"
}

// Publish sends st as JSON
func (p *NATSPublisher) Publish(ctx context.Context, st *types.DisplayState) error {
	if st.Wallet.IsZero() {
		return nil
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode state for %s: %w", st.SessionID, err)
	}
	if err := p.nc.Publish(p.Subject(st.Wallet), data); err != nil {
		return fmt.Errorf("failed to publish state for %s: %w", st.Wallet.Short(), err)
	}
	return nil
}

// Close flushes pending messages and closes the connection
func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}
