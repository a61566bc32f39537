package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/position-dashboard/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("REFRESH_INTERVAL", "45s")
	t.Setenv("SOLANA_RPC_SECONDARY", "https://backup.example")
	t.Setenv("POSITIONS_FIXTURE_SLOT", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://localhost:5173, https://dash.example ,")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 45*time.Second, cfg.Refresh.Interval)
	assert.Equal(t, "https://backup.example", cfg.Solana.RPCSecondary)
	assert.Equal(t, []string{"http://localhost:5173", "https://dash.example"}, cfg.Server.AllowedOrigins)
	assert.False(t, cfg.Redis.Enabled())
	assert.True(t, cfg.Fixtures.UseFixtureSlot)
	assert.Equal(t, types.PublicKey(KaminoBTCReserve), cfg.Markets.Lending.CollateralReserve)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Refresh.Interval)
	assert.Equal(t, 20*time.Second, cfg.Refresh.FetchTimeout)
	assert.Equal(t, 30*time.Minute, cfg.Refresh.IdleTimeout)
	assert.Equal(t, "bitcoin", cfg.PriceFeed.BTCAssetID)
	assert.Equal(t, "jito-staked-sol", cfg.PriceFeed.CollateralAssetID)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
}

func TestValidate_RefreshInterval(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		wantErr  bool
	}{
		{"too short", time.Second, true},
		{"lower bound", 5 * time.Second, false},
		{"observed default", 30 * time.Second, false},
		{"too long", 10 * time.Minute, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("REFRESH_INTERVAL", tt.interval.String())
			_, err := LoadConfig()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadMarkets_YAMLOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "markets.yaml")
	content := `
perp:
  marketIndex: 1
  baseSymbol: BTC
lending:
  collateralSymbol: cbBTC
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	markets, err := LoadMarkets(path)
	require.NoError(t, err)

	assert.Equal(t, uint16(1), markets.Perp.MarketIndex)
	assert.Equal(t, "BTC", markets.Perp.BaseSymbol)
	assert.Equal(t, "cbBTC", markets.Lending.CollateralSymbol)
	// untouched fields keep the constants
	assert.Equal(t, DriftQuotePrecision, markets.Perp.QuoteScale)
	assert.Equal(t, types.PublicKey(KaminoMainMarket), markets.Lending.Market)
	assert.NoError(t, markets.Validate())
}

func TestMarketsValidate(t *testing.T) {
	m := DefaultMarkets()
	require.NoError(t, m.Validate())

	m.Perp.QuoteScale = 0
	assert.Error(t, m.Validate())

	m = DefaultMarkets()
	m.Lending.BorrowReserve = "not-base58-0OIl"
	assert.Error(t, m.Validate())
}

func TestMarketsValidate_NotionalScaleOverflow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "markets.yaml")
	content := `
perp:
  baseScale: 1000000000000
  priceScale: 1000000000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	markets, err := LoadMarkets(path)
	require.NoError(t, err)
	err = markets.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overflows int64")

	// 1e9 * 1e9 still fits
	markets.Perp.BaseScale = 1_000_000_000
	assert.NoError(t, markets.Validate())
}

func TestLoadMarkets_MissingFile(t *testing.T) {
	_, err := LoadMarkets(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_INT", "12")
	t.Setenv("TEST_BAD_INT", "twelve")
	t.Setenv("TEST_FLOAT", "0.25")
	t.Setenv("TEST_DURATION", "90s")

	assert.Equal(t, 12, getEnvAsInt("TEST_INT", 1))
	assert.Equal(t, 1, getEnvAsInt("TEST_BAD_INT", 1))
	assert.Equal(t, 0.25, getEnvAsFloat("TEST_FLOAT", 1))
	assert.Equal(t, 90*time.Second, getEnvAsDuration("TEST_DURATION", time.Second))
	assert.Equal(t, "fallback", getEnv("TEST_UNSET_KEY", "fallback"))
	assert.Equal(t, []string{"a"}, getEnvAsList("TEST_UNSET_LIST", []string{"a"}))
}
