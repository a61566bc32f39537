package service

import (
	"context"
	"fmt"

	"github.com/position-dashboard/internal/adapter"
	"github.com/position-dashboard/internal/config"
	"github.com/position-dashboard/internal/logging"
	"github.com/position-dashboard/internal/metrics"
	"github.com/position-dashboard/internal/pricefeed"
	"github.com/position-dashboard/internal/types"
)

// Backends bundles the upstream clients a DashboardService reads from
type Backends struct {
	Solana  *adapter.SolanaRPC
	Prices  *pricefeed.Client
	Fixture *adapter.Fixture

	Lending adapter.LendingClient
	Perp    adapter.PerpClient
	Slots   adapter.SlotSource
}

// OpenBackends builds the upstream clients described by cfg. Protocol
// clients are served from the positions fixture; without one there is
// nothing to read positions from and an error is returned.
func OpenBackends(cfg *config.Config, m *metrics.Metrics) (*Backends, error) {
	solana, err := adapter.NewSolanaRPC(cfg.Solana.RPCPrimary, cfg.Solana.RPCSecondary, cfg.Solana.Commitment)
	if err != nil {
		return nil, fmt.Errorf("failed to create Solana RPC client: %w", err)
	}

	if cfg.Fixtures.PositionsPath == "" {
		solana.Close()
		return nil, fmt.Errorf("no protocol clients configured: set POSITIONS_FIXTURE_PATH")
	}
	fixture, err := adapter.LoadFixture(cfg.Fixtures.PositionsPath)
	if err != nil {
		solana.Close()
		return nil, err
	}

	perpMarket := cfg.Markets.Perp
	b := &Backends{
		Solana:  solana,
		Prices:  pricefeed.NewClient(cfg.PriceFeed, pricefeed.WithMetrics(m)),
		Fixture: fixture,
		Lending: fixture.LendingClient(),
		Perp:    fixture.PerpClient(perpMarket.BaseScale, perpMarket.QuoteScale, perpMarket.PriceScale),
		Slots:   solana,
	}
	if cfg.Fixtures.UseFixtureSlot {
		b.Slots = fixture
	}

	logging.WithFields(map[string]interface{}{
		"fixture":     cfg.Fixtures.PositionsPath,
		"fixtureSlot": cfg.Fixtures.UseFixtureSlot,
		"rpc":         solana.Provider().CurrentURL(),
	}).Info("Backends initialized")
	return b, nil
}

// DashboardService builds the service over these backends
func (b *Backends) DashboardService(cfg *config.Config, m *metrics.Metrics) *DashboardService {
	return NewDashboardService(DashboardServiceConfig{
		Lending:         b.Lending,
		Perp:            b.Perp,
		Slots:           b.Slots,
		Prices:          b.Prices,
		Markets:         cfg.Markets,
		BTCAsset:        types.AssetID(cfg.PriceFeed.BTCAssetID),
		CollateralAsset: types.AssetID(cfg.PriceFeed.CollateralAssetID),
		Metrics:         m,
	})
}

// SolanaHealth probes the Solana RPC node
func (b *Backends) SolanaHealth(ctx context.Context) error {
	return b.Solana.GetHealth(ctx)
}

// Close releases the RPC connections
func (b *Backends) Close() {
	b.Solana.Close()
}
