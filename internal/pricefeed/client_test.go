package pricefeed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/position-dashboard/internal/circuitbreaker"
	"github.com/position-dashboard/internal/config"
	apperrors "github.com/position-dashboard/internal/errors"
	"github.com/position-dashboard/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) (*Client, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg := config.PriceFeedConfig{
		BaseURL:           srv.URL + "/api/v3/",
		Timeout:           2 * time.Second,
		RequestsPerSecond: 1000,
	}
	return NewClient(cfg, opts...), &calls
}

func TestFetchSpotPricesUSD(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/simple/price", r.URL.Path)
		assert.Equal(t, "bitcoin,jito-staked-sol", r.URL.Query().Get("ids"))
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":60123.45},"jito-staked-sol":{"usd":171.2}}`))
	})

	prices, err := client.FetchSpotPricesUSD(context.Background(), types.AssetBitcoin, types.AssetJitoSOL)
	require.NoError(t, err)
	assert.True(t, prices[types.AssetBitcoin].Equal(decimal.RequireFromString("60123.45")))
	assert.True(t, prices[types.AssetJitoSOL].Equal(decimal.RequireFromString("171.2")))
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestFetchSpotPriceUSD_Single(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":"60000"}}`))
	})

	price, err := client.FetchSpotPriceUSD(context.Background(), types.AssetBitcoin)
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(60000)))
}

func TestFetchSpotPricesUSD_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"server error", http.StatusInternalServerError, `{"error":"boom"}`, apperrors.ErrNetworkFailure},
		{"rate limited upstream", http.StatusTooManyRequests, ``, apperrors.ErrNetworkFailure},
		{"malformed json", http.StatusOK, `{"bitcoin":`, apperrors.ErrParseFailure},
		{"missing asset", http.StatusOK, `{"ethereum":{"usd":3000}}`, apperrors.ErrParseFailure},
		{"missing usd", http.StatusOK, `{"bitcoin":{"eur":55000}}`, apperrors.ErrParseFailure},
		{"zero price", http.StatusOK, `{"bitcoin":{"usd":0}}`, apperrors.ErrParseFailure},
		{"string garbage", http.StatusOK, `{"bitcoin":{"usd":"lots"}}`, apperrors.ErrParseFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			prices, err := client.FetchSpotPricesUSD(context.Background(), types.AssetBitcoin)
			require.Error(t, err)
			assert.Nil(t, prices)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestFetchSpotPricesUSD_PartialResponse(t *testing.T) {
	breaker := circuitbreaker.NewCircuitBreaker(&circuitbreaker.Config{
		Name:             "price-feed-partial",
		MaxFailures:      1,
		FailureThreshold: 0.5,
		Timeout:          time.Hour,
		HalfOpenMaxCalls: 1,
	})
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":60000}}`))
	}, WithCircuitBreaker(breaker))

	prices, err := client.FetchSpotPricesUSD(context.Background(), types.AssetBitcoin, types.AssetJitoSOL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrParseFailure), "got %v", err)
	assert.Contains(t, err.Error(), "jito-staked-sol")
	assert.NotContains(t, err.Error(), "bitcoin")

	require.Len(t, prices, 1)
	assert.True(t, prices[types.AssetBitcoin].Equal(decimal.NewFromInt(60000)))
	_, ok := prices[types.AssetJitoSOL]
	assert.False(t, ok)

	// the upstream answered, so the breaker stays closed
	assert.Equal(t, circuitbreaker.StateClosed, breaker.GetState())
}

func TestFetchSpotPricesUSD_NonPositiveCountsAsMissing(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":0},"jito-staked-sol":{"usd":171}}`))
	})

	prices, err := client.FetchSpotPricesUSD(context.Background(), types.AssetBitcoin, types.AssetJitoSOL)
	assert.True(t, errors.Is(err, apperrors.ErrParseFailure))
	require.Len(t, prices, 1)
	assert.True(t, prices[types.AssetJitoSOL].Equal(decimal.NewFromInt(171)))
}

func TestFetchSpotPriceUSD_MissingAsset(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ethereum":{"usd":3000}}`))
	})

	_, err := client.FetchSpotPriceUSD(context.Background(), types.AssetBitcoin)
	assert.True(t, errors.Is(err, apperrors.ErrParseFailure))
}

func TestFetchSpotPricesUSD_NoRetry(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.FetchSpotPricesUSD(context.Background(), types.AssetBitcoin)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestFetchSpotPricesUSD_CircuitOpensAndFailsFast(t *testing.T) {
	breaker := circuitbreaker.NewCircuitBreaker(&circuitbreaker.Config{
		Name:             "price-feed-test",
		MaxFailures:      2,
		FailureThreshold: 0.5,
		Timeout:          time.Hour,
		HalfOpenMaxCalls: 1,
	})
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, WithCircuitBreaker(breaker))

	for i := 0; i < 2; i++ {
		_, _ = client.FetchSpotPricesUSD(context.Background(), types.AssetBitcoin)
	}
	require.Equal(t, circuitbreaker.StateOpen, breaker.GetState())

	_, err := client.FetchSpotPricesUSD(context.Background(), types.AssetBitcoin)
	assert.True(t, errors.Is(err, apperrors.ErrNetworkFailure))
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestFetchSpotPricesUSD_CancelledContext(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":1}}`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.FetchSpotPricesUSD(ctx, types.AssetBitcoin)
	assert.True(t, errors.Is(err, apperrors.ErrNetworkFailure))
}

func TestFetchSpotPricesUSD_NoAssets(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	prices, err := client.FetchSpotPricesUSD(context.Background())
	require.NoError(t, err)
	assert.Empty(t, prices)
	assert.Equal(t, int32(0), atomic.LoadInt32(calls))
}
