package adapter

import (
	"context"

	"github.com/position-dashboard/internal/types"
	"github.com/shopspring/decimal"
)

// LendingClient loads lending markets. The concrete SDK binding is supplied
// by the embedding process; FixtureLendingClient backs demo mode and tests.
type LendingClient interface {
	LoadMarket(ctx context.Context, market types.PublicKey) (Market, error)
}

// Market is one lending market with its reserves
type Market interface {
	Address() types.PublicKey
	GetAllUserObligations(ctx context.Context, owner types.PublicKey) ([]types.LoanSnapshot, error)
	GetReserveByMint(mint types.PublicKey) (Reserve, bool)
}

// Reserve is one asset pool of a lending market
type Reserve interface {
	Address() types.PublicKey
	Mint() types.PublicKey
	Symbol() string
	// TotalBorrowAPY evaluates the reserve's rate model at slot, as a fraction
	TotalBorrowAPY(slot uint64) decimal.Decimal
	// MintFactor is 10^decimals of the reserve's token
	MintFactor() int64
}

// PerpPositionAccount is the raw perp position as stored on chain.
// Base amounts are at base precision, quote amounts at quote precision.
type PerpPositionAccount struct {
	MarketIndex      uint16 `yaml:"marketIndex"`
	BaseAssetAmount  int64  `yaml:"baseAssetAmount"`
	QuoteAssetAmount int64  `yaml:"quoteAssetAmount"`
	QuoteEntryAmount int64  `yaml:"quoteEntryAmount"`
}

// IsOpen reports whether the position holds any base asset
func (p PerpPositionAccount) IsOpen() bool {
	return p.BaseAssetAmount != 0
}

// SpotPositionAccount is the raw spot balance backing perp collateral
type SpotPositionAccount struct {
	MarketIndex        uint16 `yaml:"marketIndex"`
	CumulativeDeposits int64  `yaml:"cumulativeDeposits"`
}

// OraclePriceData is an oracle reading at price precision
type OraclePriceData struct {
	Price int64  `yaml:"price"`
	Slot  uint64 `yaml:"slot"`
}

// PerpClient reads perpetuals protocol state for a wallet
type PerpClient interface {
	LoadUser(ctx context.Context, wallet Wallet) (PerpUser, error)
	GetOracleDataForPerpMarket(ctx context.Context, marketIndex uint16) (OraclePriceData, error)
	CalculateEntryPrice(position PerpPositionAccount) int64
	CalculatePositionPNL(ctx context.Context, position PerpPositionAccount, oracle OraclePriceData) (int64, error)
}

// PerpUser is the perpetuals account of one wallet
type PerpUser interface {
	Exists() bool
	GetPerpPosition(marketIndex uint16) (PerpPositionAccount, bool)
	GetSpotPosition(marketIndex uint16) (SpotPositionAccount, bool)
}
