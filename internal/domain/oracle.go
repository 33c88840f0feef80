package domain

import "context"

// PriceOracle resolves the current price of an instrument.
type PriceOracle interface {
	GetPrice(ctx context.Context, symbol string, kind MarketKind) (float64, error)
}

// PriceSource is one upstream market data provider.
type PriceSource interface {
	LatestPrice(ctx context.Context, symbol string) (float64, error)
	Name() string
}

// Asset is one listed instrument returned by a symbol search.
type Asset struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Exchange string `json:"exchange"`
	Class    string `json:"class"`
}

// SymbolSearcher looks instruments up by ticker or company name.
type SymbolSearcher interface {
	SearchSymbols(ctx context.Context, query string, limit int) ([]Asset, error)
}
