package alpaca

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/barrierbot/internal/domain"
)

type fakeAssets struct {
	list  []alpaca.Asset
	err   error
	calls int
	req   alpaca.GetAssetsRequest
}

func (f *fakeAssets) GetAssets(req alpaca.GetAssetsRequest) ([]alpaca.Asset, error) {
	f.calls++
	f.req = req
	return f.list, f.err
}

func equities() []alpaca.Asset {
	return []alpaca.Asset{
		{Symbol: "APLE", Name: "Apple Hospitality REIT, Inc.", Exchange: "NYSE", Class: alpaca.USEquity},
		{Symbol: "AAPL", Name: "Apple Inc. Common Stock", Exchange: "NASDAQ", Class: alpaca.USEquity},
		{Symbol: "AAPLX", Name: "Some Fund", Exchange: "ARCA", Class: alpaca.USEquity},
		{Symbol: "MSFT", Name: "Microsoft Corporation", Exchange: "NASDAQ", Class: alpaca.USEquity},
	}
}

func TestSearchSymbols_Ranking(t *testing.T) {
	f := &fakeAssets{list: equities()}
	c := &Client{assets: f, assetTTL: time.Hour}

	got, err := c.SearchSymbols(context.Background(), " aapl ", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "AAPL", got[0].Symbol)
	assert.Equal(t, "AAPLX", got[1].Symbol)
	assert.Equal(t, "NASDAQ", got[0].Exchange)
	assert.Equal(t, "us_equity", got[0].Class)
	assert.Equal(t, "active", f.req.Status)
	assert.Equal(t, "us_equity", f.req.AssetClass)

	got, err = c.SearchSymbols(context.Background(), "apple", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "APLE", got[0].Symbol)
}

func TestSearchSymbols_CachesAssetList(t *testing.T) {
	now := time.Date(2026, 4, 15, 9, 0, 0, 0, time.UTC)
	f := &fakeAssets{list: equities()}
	c := &Client{assets: f, assetTTL: time.Hour, now: func() time.Time { return now }}

	_, err := c.SearchSymbols(context.Background(), "msft", 5)
	require.NoError(t, err)
	_, err = c.SearchSymbols(context.Background(), "apple", 5)
	require.NoError(t, err)
	assert.Equal(t, 1, f.calls)

	now = now.Add(2 * time.Hour)
	_, err = c.SearchSymbols(context.Background(), "apple", 5)
	require.NoError(t, err)
	assert.Equal(t, 2, f.calls)
}

func TestSearchSymbols_Errors(t *testing.T) {
	c := &Client{assets: &fakeAssets{err: errors.New("401 unauthorized")}, assetTTL: time.Hour}
	_, err := c.SearchSymbols(context.Background(), "apple", 5)
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)

	_, err = c.SearchSymbols(context.Background(), "  ", 5)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
