// Package binance resolves crypto spot prices from the public Binance ticker
// endpoint.
package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/barrierbot/internal/domain"
)

// DefaultBaseURL is the public spot API root.
const DefaultBaseURL = "https://api.binance.com"

// Config holds client tuning.
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
}

// Client implements domain.PriceSource for crypto pairs. Requests are paced
// by a token bucket and guarded by a circuit breaker that opens after three
// consecutive failures.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
}

// NewClient creates a Binance ticker client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	log := logger.With(slog.String("component", "binance"))

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "binance",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			IsSuccessful: func(err error) bool {
				// A bad symbol is the caller's fault, not the venue's.
				return err == nil || errors.Is(err, domain.ErrNoPrice)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("circuit breaker state change",
					slog.String("breaker", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()),
				)
			},
		}),
	}
}

// Name identifies the source in logs and cached quotes.
func (c *Client) Name() string { return "binance" }

// PairSymbol maps "BTC/USDT", "btc-usdt" or "BTCUSDT" to the exchange form
// "BTCUSDT".
func PairSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	return strings.NewReplacer("/", "", "-", "", "_", "", " ", "").Replace(s)
}

// LatestPrice returns the last traded price of the pair.
func (c *Client) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	pair := PairSymbol(symbol)
	if pair == "" {
		return 0, fmt.Errorf("binance: latest price: %w: empty symbol", domain.ErrInvalidInput)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("binance: latest price %s: %w", pair, err)
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetchTicker(ctx, pair)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return 0, fmt.Errorf("binance: latest price %s: %w: %w", pair, domain.ErrSourceUnavailable, err)
		}
		return 0, fmt.Errorf("binance: latest price %s: %w", pair, err)
	}
	return out.(float64), nil
}

func (c *Client) fetchTicker(ctx context.Context, pair string) (float64, error) {
	u := c.baseURL + "/api/v3/ticker/price?" + url.Values{"symbol": {pair}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return 0, fmt.Errorf("read body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		// Binance answers 400 with code -1121 for unknown symbols.
		return 0, fmt.Errorf("%w: %s", domain.ErrNoPrice, strings.TrimSpace(string(body)))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusTeapot:
		return 0, fmt.Errorf("%w: status %d", domain.ErrRateLimited, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return 0, fmt.Errorf("%w: status %d: %s", domain.ErrSourceUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var ticker struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(body, &ticker); err != nil {
		return 0, fmt.Errorf("decode ticker: %w", err)
	}
	price, err := strconv.ParseFloat(ticker.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", ticker.Price, err)
	}
	if price <= 0 {
		return 0, fmt.Errorf("%w: non-positive price %s", domain.ErrNoPrice, ticker.Price)
	}
	return price, nil
}

var _ domain.PriceSource = (*Client)(nil)
