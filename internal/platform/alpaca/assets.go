package alpaca

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"

	"github.com/alanyoungcy/barrierbot/internal/domain"
)

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 20
)

// assetLister is the slice of *alpaca.Client this package needs.
type assetLister interface {
	GetAssets(req alpaca.GetAssetsRequest) ([]alpaca.Asset, error)
}

// SearchSymbols matches query against ticker and company name of active US
// equities. Exact tickers rank first, then ticker prefixes, then any other
// match. The asset list is fetched once per cache TTL.
func (c *Client) SearchSymbols(ctx context.Context, query string, limit int) ([]domain.Asset, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, fmt.Errorf("alpaca: search: %w: empty query", domain.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	list, err := c.assetList(ctx)
	if err != nil {
		return nil, err
	}

	type hit struct {
		rank  int
		asset alpaca.Asset
	}
	var hits []hit
	for _, a := range list {
		sym := strings.ToLower(a.Symbol)
		switch {
		case sym == q:
			hits = append(hits, hit{0, a})
		case strings.HasPrefix(sym, q):
			hits = append(hits, hit{1, a})
		case strings.Contains(sym, q) || strings.Contains(strings.ToLower(a.Name), q):
			hits = append(hits, hit{2, a})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].rank < hits[j].rank })
	if len(hits) > limit {
		hits = hits[:limit]
	}

	out := make([]domain.Asset, 0, len(hits))
	for _, h := range hits {
		out = append(out, domain.Asset{
			Symbol:   h.asset.Symbol,
			Name:     h.asset.Name,
			Exchange: h.asset.Exchange,
			Class:    string(h.asset.Class),
		})
	}
	return out, nil
}

func (c *Client) assetList(ctx context.Context) ([]alpaca.Asset, error) {
	c.mu.Lock()
	if c.cached != nil && c.clock().Sub(c.fetchedAt) < c.assetTTL {
		list := c.cached
		c.mu.Unlock()
		return list, nil
	}
	c.mu.Unlock()

	type result struct {
		assets []alpaca.Asset
		err    error
	}
	done := make(chan result, 1)
	go func() {
		a, err := c.assets.GetAssets(alpaca.GetAssetsRequest{
			Status:     "active",
			AssetClass: "us_equity",
		})
		done <- result{assets: a, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("alpaca: list assets: %w", ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("alpaca: list assets: %w: %w", domain.ErrSourceUnavailable, r.err)
		}
		c.mu.Lock()
		c.cached, c.fetchedAt = r.assets, c.clock()
		c.mu.Unlock()
		return r.assets, nil
	}
}

func (c *Client) clock() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}

var _ domain.SymbolSearcher = (*Client)(nil)
