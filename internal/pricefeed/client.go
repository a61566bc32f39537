// Package pricefeed fetches spot USD prices from a CoinGecko-compatible
// simple-price endpoint. Failures are returned as NetworkFailure or
// ParseFailure and are never retried here.
package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/position-dashboard/internal/circuitbreaker"
	"github.com/position-dashboard/internal/config"
	apperrors "github.com/position-dashboard/internal/errors"
	"github.com/position-dashboard/internal/logging"
	"github.com/position-dashboard/internal/metrics"
	"github.com/position-dashboard/internal/types"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	source = "price-feed"

	// cap on the response body; the simple-price payload is tiny
	maxBodyBytes = 64 << 10
)

// Fetcher is the price lookup used by the refresh loop. On a partial
// response it returns the prices it has together with the error.
type Fetcher interface {
	FetchSpotPricesUSD(ctx context.Context, assets ...types.AssetID) (map[types.AssetID]decimal.Decimal, error)
}

// Client is a throttled, circuit-broken simple-price client
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *circuitbreaker.CircuitBreaker
	metrics    *metrics.Metrics
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMetrics records fetch outcomes
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithCircuitBreaker replaces the default breaker
func WithCircuitBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

// NewClient creates a client from config
func NewClient(cfg config.PriceFeedConfig, opts ...Option) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), 2),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		bcfg := circuitbreaker.DefaultConfig(source)
		m := c.metrics
		bcfg.OnStateChange = func(name string, from, to circuitbreaker.State) {
			m.SetCircuitOpen(name, to != circuitbreaker.StateClosed)
		}
		c.breaker = circuitbreaker.NewCircuitBreaker(bcfg)
	}
	return c
}

// Breaker exposes the circuit breaker for health reporting
func (c *Client) Breaker() *circuitbreaker.CircuitBreaker {
	return c.breaker
}

// FetchSpotPriceUSD returns the USD price of one asset
func (c *Client) FetchSpotPriceUSD(ctx context.Context, asset types.AssetID) (decimal.Decimal, error) {
	prices, err := c.FetchSpotPricesUSD(ctx, asset)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return prices[asset], nil
}

// FetchSpotPricesUSD returns USD prices for all assets in a single request.
// An asset missing from an otherwise valid response does not discard the
// others: the prices that parsed are returned together with a ParseFailure
// naming the missing assets. A failed request returns no prices.
func (c *Client) FetchSpotPricesUSD(ctx context.Context, assets ...types.AssetID) (map[types.AssetID]decimal.Decimal, error) {
	if len(assets) == 0 {
		return map[types.AssetID]decimal.Decimal{}, nil
	}

	start := time.Now()
	var (
		prices  map[types.AssetID]decimal.Decimal
		missing []types.AssetID
	)
	err := c.breaker.Execute(ctx, func() error {
		var err error
		prices, missing, err = c.fetch(ctx, assets)
		return err
	})
	if err == circuitbreaker.ErrCircuitOpen || err == circuitbreaker.ErrTooManyRequests {
		err = apperrors.NewNetworkError(source, err)
	}
	if err == nil && len(missing) > 0 {
		err = apperrors.NewParseError(source, fmt.Errorf("no usd price for %s", joinAssets(missing)))
	}
	c.metrics.ObserveFetch(metrics.SourcePrice, err, time.Since(start))

	if err != nil {
		failed := missing
		if len(prices) == 0 {
			failed = assets
			prices = nil
		}
		for _, a := range failed {
			c.metrics.RecordPriceFailure(string(a), err)
		}
		logging.FromContext(ctx).WithField("assets", joinAssets(failed)).WithError(err).Warn("Price fetch failed")
		return prices, err
	}
	return prices, nil
}

func (c *Client) fetch(ctx context.Context, assets []types.AssetID) (map[types.AssetID]decimal.Decimal, []types.AssetID, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, apperrors.NewNetworkError(source, fmt.Errorf("rate limiter: %w", err))
	}

	q := url.Values{}
	q.Set("ids", joinAssets(assets))
	q.Set("vs_currencies", "usd")
	endpoint := c.baseURL + "/simple/price?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, nil, apperrors.NewInternalError("failed to build price request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, apperrors.NewNetworkError(source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, nil, apperrors.NewNetworkError(source, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, nil, apperrors.NewNetworkError(source, err)
	}
	return parsePrices(body, assets)
}

type quote struct {
	USD *decimal.Decimal `json:"usd"`
}

// parsePrices decodes {"<id>": {"usd": <number>}}. Assets without a positive
// usd price are reported as missing; a body that is not that shape is an error.
func parsePrices(body []byte, assets []types.AssetID) (map[types.AssetID]decimal.Decimal, []types.AssetID, error) {
	var payload map[string]quote
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, nil, apperrors.NewParseError(source, err)
	}

	prices := make(map[types.AssetID]decimal.Decimal, len(assets))
	var missing []types.AssetID
	for _, a := range assets {
		q, ok := payload[string(a)]
		if !ok || q.USD == nil || !q.USD.IsPositive() {
			missing = append(missing, a)
			continue
		}
		prices[a] = *q.USD
	}
	if len(prices) == 0 {
		return nil, nil, apperrors.NewParseError(source, fmt.Errorf("no usd price for %s", joinAssets(missing)))
	}
	return prices, missing, nil
}

func joinAssets(assets []types.AssetID) string {
	ids := make([]string, len(assets))
	for i, a := range assets {
		ids[i] = string(a)
	}
	return strings.Join(ids, ",")
}
