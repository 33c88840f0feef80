package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/barrierbot/internal/domain"
)

type stubSource struct {
	name  string
	price float64
	err   error
	delay time.Duration
	calls int
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) LatestPrice(ctx context.Context, _ string) (float64, error) {
	s.calls++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return s.price, s.err
}

type memQuotes struct {
	mu sync.Mutex
	m  map[string]domain.Quote
}

func (c *memQuotes) SetQuote(_ context.Context, q domain.Quote, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.m == nil {
		c.m = map[string]domain.Quote{}
	}
	c.m[string(q.MarketKind)+":"+q.Symbol] = q
	return nil
}

func (c *memQuotes) GetQuote(_ context.Context, symbol string, kind domain.MarketKind) (domain.Quote, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.m[string(kind)+":"+symbol]
	if !ok {
		return domain.Quote{}, domain.ErrNotFound
	}
	return q, nil
}

func TestPriceOracle_RoutesByKind(t *testing.T) {
	stock := &stubSource{name: "alpaca", price: 187.5}
	crypto := &stubSource{name: "binance", price: 64000}
	o := NewPriceOracle(OracleConfig{}, map[domain.MarketKind]domain.PriceSource{
		domain.MarketStock:  stock,
		domain.MarketCrypto: crypto,
	}, nil, discardLogger())

	p, err := o.GetPrice(context.Background(), "aapl", domain.MarketStock)
	require.NoError(t, err)
	assert.Equal(t, 187.5, p)

	q, err := o.Quote(context.Background(), "BTC/USDT", domain.MarketCrypto)
	require.NoError(t, err)
	assert.Equal(t, 64000.0, q.Price)
	assert.Equal(t, "binance", q.Source)
	assert.Equal(t, "BTC/USDT", q.Symbol)
}

func TestPriceOracle_UnsupportedKind(t *testing.T) {
	o := NewPriceOracle(OracleConfig{}, map[domain.MarketKind]domain.PriceSource{}, nil, discardLogger())
	_, err := o.GetPrice(context.Background(), "AAPL", domain.MarketStock)
	assert.ErrorIs(t, err, domain.ErrUnsupportedMarket)
}

func TestPriceOracle_Timeout(t *testing.T) {
	slow := &stubSource{name: "alpaca", price: 1, delay: time.Second}
	o := NewPriceOracle(OracleConfig{Timeout: 20 * time.Millisecond},
		map[domain.MarketKind]domain.PriceSource{domain.MarketStock: slow}, nil, discardLogger())

	_, err := o.GetPrice(context.Background(), "AAPL", domain.MarketStock)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPriceOracle_CachesQuotes(t *testing.T) {
	src := &stubSource{name: "alpaca", price: 10}
	cache := &memQuotes{}
	o := NewPriceOracle(OracleConfig{CacheTTL: 15 * time.Second},
		map[domain.MarketKind]domain.PriceSource{domain.MarketStock: src}, cache, discardLogger())

	for i := 0; i < 3; i++ {
		p, err := o.GetPrice(context.Background(), "AAPL", domain.MarketStock)
		require.NoError(t, err)
		assert.Equal(t, 10.0, p)
	}
	assert.Equal(t, 1, src.calls)
}

func TestPriceOracle_SourceErrorNotCached(t *testing.T) {
	src := &stubSource{name: "alpaca", err: errors.New("502")}
	cache := &memQuotes{}
	o := NewPriceOracle(OracleConfig{CacheTTL: 15 * time.Second},
		map[domain.MarketKind]domain.PriceSource{domain.MarketStock: src}, cache, discardLogger())

	_, err := o.GetPrice(context.Background(), "AAPL", domain.MarketStock)
	require.Error(t, err)
	_, err = o.GetPrice(context.Background(), "AAPL", domain.MarketStock)
	require.Error(t, err)
	assert.Equal(t, 2, src.calls)
}
