// Package alpaca resolves equity prices from the Alpaca market data API and
// searches the Alpaca asset list.
package alpaca

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"github.com/alanyoungcy/barrierbot/internal/domain"
)

// Config holds Alpaca credentials. BaseURL is the market data endpoint and
// TradingURL the trading API that serves the asset list.
type Config struct {
	APIKey        string
	APISecret     string
	BaseURL       string
	TradingURL    string
	Timeout       time.Duration
	AssetCacheTTL time.Duration
}

// latestTrader is the slice of *marketdata.Client this package needs.
type latestTrader interface {
	GetLatestTrade(symbol string, req marketdata.GetLatestTradeRequest) (*marketdata.Trade, error)
}

// Client implements domain.PriceSource for stocks using the latest trade and
// domain.SymbolSearcher over the active US equity list.
type Client struct {
	md     latestTrader
	assets assetLister

	assetTTL  time.Duration
	mu        sync.Mutex
	cached    []alpaca.Asset
	fetchedAt time.Time
	now       func() time.Time
}

// NewClient creates an Alpaca-backed stock price source.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	assetTTL := cfg.AssetCacheTTL
	if assetTTL <= 0 {
		assetTTL = time.Hour
	}
	httpClient := &http.Client{Timeout: timeout}
	return &Client{
		md: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:     cfg.APIKey,
			APISecret:  cfg.APISecret,
			BaseURL:    cfg.BaseURL,
			HTTPClient: httpClient,
		}),
		assets: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:     cfg.APIKey,
			APISecret:  cfg.APISecret,
			BaseURL:    cfg.TradingURL,
			HTTPClient: httpClient,
		}),
		assetTTL: assetTTL,
		now:      time.Now,
	}
}

// Name identifies the source in logs and cached quotes.
func (c *Client) Name() string { return "alpaca" }

// LatestPrice returns the last trade price for symbol. The marketdata client
// is not context-aware, so the call runs in a goroutine and ctx bounds the
// wait.
func (c *Client) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" {
		return 0, fmt.Errorf("alpaca: latest price: %w: empty symbol", domain.ErrInvalidInput)
	}

	type result struct {
		trade *marketdata.Trade
		err   error
	}
	done := make(chan result, 1)
	go func() {
		t, err := c.md.GetLatestTrade(sym, marketdata.GetLatestTradeRequest{})
		done <- result{trade: t, err: err}
	}()

	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("alpaca: latest price %s: %w", sym, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return 0, fmt.Errorf("alpaca: latest price %s: %w: %w", sym, domain.ErrSourceUnavailable, r.err)
		}
		if r.trade == nil || r.trade.Price <= 0 {
			return 0, fmt.Errorf("alpaca: latest price %s: %w", sym, domain.ErrNoPrice)
		}
		return r.trade.Price, nil
	}
}

var _ domain.PriceSource = (*Client)(nil)
