package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/position-dashboard/internal/adapter"
	"github.com/position-dashboard/internal/config"
	apperrors "github.com/position-dashboard/internal/errors"
	"github.com/position-dashboard/internal/logging"
	"github.com/position-dashboard/internal/metrics"
	"github.com/position-dashboard/internal/pricefeed"
	"github.com/position-dashboard/internal/types"
	"github.com/shopspring/decimal"
)

// Snapshot is the outcome of one fetch cycle for one wallet. Each part
// carries its own error so a failing side never hides a healthy one.
type Snapshot struct {
	Wallet types.PublicKey

	BTCPrice        *decimal.Decimal
	CollateralPrice *decimal.Decimal
	PriceErr        error

	Lending    *types.LendingView
	LendingErr error

	Perp    *types.PerpView
	PerpErr error

	Duration time.Duration
}

// DashboardService reads protocol state and prices for a wallet and derives
// the display sections.
type DashboardService struct {
	lending adapter.LendingClient
	perp    adapter.PerpClient
	slots   adapter.SlotSource
	prices  pricefeed.Fetcher
	deriver *Deriver
	markets config.MarketsConfig

	btcAsset        types.AssetID
	collateralAsset types.AssetID

	metrics *metrics.Metrics
}

// DashboardServiceConfig wires the collaborators of a DashboardService
type DashboardServiceConfig struct {
	Lending         adapter.LendingClient
	Perp            adapter.PerpClient
	Slots           adapter.SlotSource
	Prices          pricefeed.Fetcher
	Markets         config.MarketsConfig
	BTCAsset        types.AssetID
	CollateralAsset types.AssetID
	Metrics         *metrics.Metrics
}

// NewDashboardService creates a new dashboard service
func NewDashboardService(cfg DashboardServiceConfig) *DashboardService {
	btc := cfg.BTCAsset
	if btc == "" {
		btc = types.AssetBitcoin
	}
	collateral := cfg.CollateralAsset
	if collateral == "" {
		collateral = types.AssetJitoSOL
	}

	return &DashboardService{
		lending:         cfg.Lending,
		perp:            cfg.Perp,
		slots:           cfg.Slots,
		prices:          cfg.Prices,
		deriver:         NewDeriver(cfg.Markets),
		markets:         cfg.Markets,
		btcAsset:        btc,
		collateralAsset: collateral,
		metrics:         cfg.Metrics,
	}
}

// Fetch runs one fetch cycle: prices, the lending side and the perp side are
// read concurrently, then derived. It never returns an error; failures are
// recorded per part of the Snapshot.
func (s *DashboardService) Fetch(ctx context.Context, wallet types.PublicKey) *Snapshot {
	start := time.Now()
	snap := &Snapshot{Wallet: wallet}

	var (
		wg      sync.WaitGroup
		perpRaw *types.PerpPosition
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		s.fetchPrices(ctx, snap)
	}()
	go func() {
		defer wg.Done()
		snap.Lending, snap.LendingErr = s.FetchLending(ctx, wallet)
	}()
	go func() {
		defer wg.Done()
		perpRaw, snap.PerpErr = s.FetchPerpPosition(ctx, wallet)
	}()
	wg.Wait()

	if snap.PerpErr == nil {
		snap.Perp, snap.PerpErr = s.deriver.DerivePerp(*perpRaw, snap.CollateralPrice)
	}

	snap.Duration = time.Since(start)
	return snap
}

func (s *DashboardService) fetchPrices(ctx context.Context, snap *Snapshot) {
	prices, err := s.prices.FetchSpotPricesUSD(ctx, s.btcAsset, s.collateralAsset)
	snap.PriceErr = err
	// a partial response still carries the prices that did parse
	if p, ok := prices[s.btcAsset]; ok {
		snap.BTCPrice = &p
	}
	if p, ok := prices[s.collateralAsset]; ok {
		snap.CollateralPrice = &p
	}
}

// FetchLending loads the wallet's obligations in the tracked market and
// derives the first one holding the tracked pair.
func (s *DashboardService) FetchLending(ctx context.Context, wallet types.PublicKey) (view *types.LendingView, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveFetch(metrics.SourceLending, err, time.Since(start)) }()

	market, err := s.lending.LoadMarket(ctx, s.markets.Lending.Market)
	if err != nil {
		return nil, upstreamError("lending market", err)
	}

	loans, err := market.GetAllUserObligations(ctx, wallet)
	if err != nil {
		return nil, upstreamError("lending obligations", err)
	}
	if len(loans) == 0 {
		return nil, apperrors.NewNoPositionError(SideLending, "no obligations in market")
	}

	slotStart := time.Now()
	slot, err := s.slots.GetSlot(ctx)
	s.metrics.ObserveFetch(metrics.SourceSlot, err, time.Since(slotStart))
	if err != nil {
		return nil, upstreamError("solana slot", err)
	}

	var lastErr error
	for _, loan := range loans {
		view, err := s.deriver.DeriveLoan(loan, market, slot)
		if err == nil {
			return view, nil
		}
		lastErr = err
		if !apperrors.IsNoPosition(err) {
			break
		}
	}
	return nil, lastErr
}

// FetchPerpPosition reads the wallet's perp account and assembles the raw
// position of the tracked market with the client's entry price and PnL.
func (s *DashboardService) FetchPerpPosition(ctx context.Context, wallet types.PublicKey) (pos *types.PerpPosition, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveFetch(metrics.SourcePerp, err, time.Since(start)) }()

	cfg := s.markets.Perp

	user, err := s.perp.LoadUser(ctx, adapter.NewReadOnlyWallet(wallet))
	if err != nil {
		return nil, upstreamError("perp user", err)
	}
	if !user.Exists() {
		return nil, apperrors.NewNoPositionError(SidePerp, "user account does not exist")
	}

	account, ok := user.GetPerpPosition(cfg.MarketIndex)
	if !ok || !account.IsOpen() {
		return nil, apperrors.NewNoPositionError(SidePerp, fmt.Sprintf("no %s-PERP position", cfg.BaseSymbol))
	}

	oracle, err := s.perp.GetOracleDataForPerpMarket(ctx, cfg.MarketIndex)
	if err != nil {
		return nil, upstreamError("perp oracle", err)
	}

	pnl, err := s.perp.CalculatePositionPNL(ctx, account, oracle)
	if err != nil {
		return nil, upstreamError("perp pnl", err)
	}

	// a missing collateral spot position is shown as a zero deposit
	spot, _ := user.GetSpotPosition(cfg.CollateralMarketIndex)

	return &types.PerpPosition{
		MarketIndex:           cfg.MarketIndex,
		BaseAssetAmount:       account.BaseAssetAmount,
		QuoteEntryAmount:      account.QuoteEntryAmount,
		EntryPrice:            s.perp.CalculateEntryPrice(account),
		OraclePrice:           oracle.Price,
		UnrealizedPnl:         pnl,
		CollateralMarketIndex: cfg.CollateralMarketIndex,
		CumulativeDeposits:    spot.CumulativeDeposits,
	}, nil
}

// upstreamError keeps categorized errors and treats anything else as a
// network failure of source.
func upstreamError(source string, err error) error {
	var categorized *apperrors.CategorizedError
	if errors.As(err, &categorized) {
		return err
	}
	return apperrors.NewNetworkError(source, err)
}

// Log writes a one-line summary of a snapshot
func (snap *Snapshot) Log(logger *logging.Logger) {
	fields := map[string]interface{}{
		"wallet":     snap.Wallet.Short(),
		"durationMs": snap.Duration.Milliseconds(),
		"lending":    metrics.Result(snap.LendingErr),
		"perp":       metrics.Result(snap.PerpErr),
		"price":      metrics.Result(snap.PriceErr),
	}
	logger.WithFields(fields).Debug("Fetch cycle complete")
}
