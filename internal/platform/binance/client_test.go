package binance

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/barrierbot/internal/domain"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(Config{BaseURL: srv.URL, RatePerSecond: 1000, Burst: 100}, logger)
}

func TestPairSymbol(t *testing.T) {
	assert.Equal(t, "BTCUSDT", PairSymbol("BTC/USDT"))
	assert.Equal(t, "ETHUSDT", PairSymbol(" eth-usdt "))
	assert.Equal(t, "SOLUSDT", PairSymbol("SOLUSDT"))
}

func TestLatestPrice(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/price", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		_, _ = io.WriteString(w, `{"symbol":"BTCUSDT","price":"64123.45000000"}`)
	})

	p, err := c.LatestPrice(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.InDelta(t, 64123.45, p, 1e-9)
}

func TestLatestPrice_UnknownSymbol(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"code":-1121,"msg":"Invalid symbol."}`)
	})

	_, err := c.LatestPrice(context.Background(), "NOPE/USDT")
	assert.ErrorIs(t, err, domain.ErrNoPrice)
}

func TestLatestPrice_BreakerOpensAfterFailures(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	for i := 0; i < 3; i++ {
		_, err := c.LatestPrice(context.Background(), "BTCUSDT")
		assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
	}
	_, err := c.LatestPrice(context.Background(), "BTCUSDT")
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
	assert.Equal(t, int32(3), hits.Load())
}

func TestLatestPrice_BadSymbolDoesNotTrip(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})

	for i := 0; i < 5; i++ {
		_, err := c.LatestPrice(context.Background(), "XXXUSDT")
		assert.ErrorIs(t, err, domain.ErrNoPrice)
	}
	assert.Equal(t, int32(5), hits.Load())
}
