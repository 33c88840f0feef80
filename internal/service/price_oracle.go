package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/barrierbot/internal/domain"
	"github.com/alanyoungcy/barrierbot/internal/metrics"
)

// OracleConfig tunes the PriceOracle.
type OracleConfig struct {
	// Timeout bounds one upstream fetch.
	Timeout time.Duration
	// CacheTTL is how long a fetched quote is served from cache. Zero
	// disables caching.
	CacheTTL time.Duration
}

// PriceOracle routes price requests to the source registered for the market
// kind and keeps fetched quotes in a short-lived cache.
type PriceOracle struct {
	sources map[domain.MarketKind]domain.PriceSource
	cache   domain.QuoteCache
	cfg     OracleConfig
	logger  *slog.Logger
	now     func() time.Time
}

// NewPriceOracle creates a PriceOracle. cache may be nil.
func NewPriceOracle(
	cfg OracleConfig,
	sources map[domain.MarketKind]domain.PriceSource,
	cache domain.QuoteCache,
	logger *slog.Logger,
) *PriceOracle {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &PriceOracle{
		sources: sources,
		cache:   cache,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "price_oracle")),
		now:     time.Now,
	}
}

// GetPrice implements domain.PriceOracle.
func (o *PriceOracle) GetPrice(ctx context.Context, symbol string, kind domain.MarketKind) (float64, error) {
	q, err := o.Quote(ctx, symbol, kind)
	if err != nil {
		return 0, err
	}
	return q.Price, nil
}

// Quote returns the current quote for symbol, served from cache when fresh.
func (o *PriceOracle) Quote(ctx context.Context, symbol string, kind domain.MarketKind) (domain.Quote, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	src, ok := o.sources[kind]
	if !ok || src == nil {
		return domain.Quote{}, fmt.Errorf("price_oracle: %s %q: %w", sym, kind, domain.ErrUnsupportedMarket)
	}

	if o.cache != nil && o.cfg.CacheTTL > 0 {
		q, err := o.cache.GetQuote(ctx, sym, kind)
		switch {
		case err == nil:
			metrics.OracleCache.WithLabelValues("hit").Inc()
			return q, nil
		case errors.Is(err, domain.ErrNotFound):
			metrics.OracleCache.WithLabelValues("miss").Inc()
		default:
			o.logger.WarnContext(ctx, "quote cache read failed",
				slog.String("symbol", sym),
				slog.String("error", err.Error()),
			)
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()
	price, err := src.LatestPrice(fetchCtx, sym)
	if err != nil {
		metrics.PriceFetchFailures.WithLabelValues(string(kind)).Inc()
		return domain.Quote{}, fmt.Errorf("price_oracle: %s via %s: %w", sym, src.Name(), err)
	}

	q := domain.Quote{
		Symbol:     sym,
		MarketKind: kind,
		Price:      price,
		Source:     src.Name(),
		FetchedAt:  o.now().UTC(),
	}
	if o.cache != nil && o.cfg.CacheTTL > 0 {
		if err := o.cache.SetQuote(ctx, q, o.cfg.CacheTTL); err != nil {
			o.logger.WarnContext(ctx, "quote cache write failed",
				slog.String("symbol", sym),
				slog.String("error", err.Error()),
			)
		}
	}
	return q, nil
}

var _ domain.PriceOracle = (*PriceOracle)(nil)
