package config

import (
	"fmt"
	"math"
	"math/big"
	"os"

	"github.com/position-dashboard/internal/types"
	"gopkg.in/yaml.v3"
)

// Lending protocol addresses on mainnet
const (
	// KaminoMainMarket is the Kamino main lending market
	KaminoMainMarket = "7u3HeHxYDLhnCoErrtycNokbQYbWGzLs6JSDqGAv5PfF"
	// KaminoBTCReserve is the wrapped-BTC reserve tracked as collateral
	KaminoBTCReserve = "HYnVhjsvU1vBKTPsXs1dWe6cJeuU8E4gjoYpmwe81KzN"
	// KaminoUSDCReserve is the USDC reserve tracked as debt
	KaminoUSDCReserve = "D6q6wuQSrifJKZYpR1M8R4YawnLDtDsMmWM1NbBmgJ59"
)

// Perpetuals protocol market indexes
const (
	// DriftSOLPerpMarketIndex is SOL-PERP
	DriftSOLPerpMarketIndex uint16 = 0
	// DriftJitoSOLSpotMarketIndex is the JitoSOL spot market used as collateral
	DriftJitoSOLSpotMarketIndex uint16 = 6
)

// Fixed-point scales of the perpetuals protocol
const (
	DriftBasePrecision  int64 = 1_000_000_000
	DriftQuotePrecision int64 = 1_000_000
	DriftPricePrecision int64 = 1_000_000
	DriftSpotPrecision  int64 = 1_000_000_000
)

// LendingMarketConfig names the lending market and the tracked reserve pair
type LendingMarketConfig struct {
	Market            types.PublicKey `yaml:"market"`
	CollateralReserve types.PublicKey `yaml:"collateralReserve"`
	BorrowReserve     types.PublicKey `yaml:"borrowReserve"`
	CollateralSymbol  string          `yaml:"collateralSymbol"`
	BorrowSymbol      string          `yaml:"borrowSymbol"`
}

// PerpMarketConfig names the tracked perp market, its collateral spot market and scales
type PerpMarketConfig struct {
	MarketIndex           uint16 `yaml:"marketIndex"`
	CollateralMarketIndex uint16 `yaml:"collateralMarketIndex"`
	BaseSymbol            string `yaml:"baseSymbol"`
	CollateralSymbol      string `yaml:"collateralSymbol"`
	BaseScale             int64  `yaml:"baseScale"`
	QuoteScale            int64  `yaml:"quoteScale"`
	PriceScale            int64  `yaml:"priceScale"`
	CollateralScale       int64  `yaml:"collateralScale"`
}

// MarketsConfig holds the two hard-coded positions the dashboard tracks
type MarketsConfig struct {
	Lending LendingMarketConfig `yaml:"lending"`
	Perp    PerpMarketConfig    `yaml:"perp"`
}

// DefaultMarkets returns the mainnet constants
func DefaultMarkets() *MarketsConfig {
	return &MarketsConfig{
		Lending: LendingMarketConfig{
			Market:            types.PublicKey(KaminoMainMarket),
			CollateralReserve: types.PublicKey(KaminoBTCReserve),
			BorrowReserve:     types.PublicKey(KaminoUSDCReserve),
			CollateralSymbol:  "BTC",
			BorrowSymbol:      "USDC",
		},
		Perp: PerpMarketConfig{
			MarketIndex:           DriftSOLPerpMarketIndex,
			CollateralMarketIndex: DriftJitoSOLSpotMarketIndex,
			BaseSymbol:            "SOL",
			CollateralSymbol:      "JITOSOL",
			BaseScale:             DriftBasePrecision,
			QuoteScale:            DriftQuotePrecision,
			PriceScale:            DriftPricePrecision,
			CollateralScale:       DriftSpotPrecision,
		},
	}
}

// LoadMarkets returns the defaults, overlaid with the YAML file at path when set.
// Fields missing from the file keep their default value.
func LoadMarkets(path string) (*MarketsConfig, error) {
	markets := DefaultMarkets()
	if path == "" {
		return markets, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read markets config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, markets); err != nil {
		return nil, fmt.Errorf("failed to parse markets config %s: %w", path, err)
	}
	return markets, nil
}

// Validate checks that addresses decode and scales are usable divisors
func (m *MarketsConfig) Validate() error {
	for name, key := range map[string]types.PublicKey{
		"lending.market":            m.Lending.Market,
		"lending.collateralReserve": m.Lending.CollateralReserve,
		"lending.borrowReserve":     m.Lending.BorrowReserve,
	} {
		if _, err := types.ParsePublicKey(key.String()); err != nil {
			return fmt.Errorf("markets config %s: %w", name, err)
		}
	}

	for name, scale := range map[string]int64{
		"perp.baseScale":       m.Perp.BaseScale,
		"perp.quoteScale":      m.Perp.QuoteScale,
		"perp.priceScale":      m.Perp.PriceScale,
		"perp.collateralScale": m.Perp.CollateralScale,
	} {
		if scale <= 0 {
			return fmt.Errorf("markets config %s must be positive, got %d", name, scale)
		}
	}

	// position notional divides base*price by baseScale*priceScale
	notional := new(big.Int).Mul(big.NewInt(m.Perp.BaseScale), big.NewInt(m.Perp.PriceScale))
	if notional.Cmp(big.NewInt(math.MaxInt64)) > 0 {
		return fmt.Errorf("markets config perp.baseScale*perp.priceScale overflows int64: %d*%d",
			m.Perp.BaseScale, m.Perp.PriceScale)
	}
	return nil
}
