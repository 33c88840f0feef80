package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/barrierbot/internal/domain"
)

// QuoteCache implements domain.QuoteCache using Redis hashes. Each quote is
// stored at "quote:{kind}:{SYMBOL}" with fields price, source and ts (Unix
// nanoseconds) and expires after the TTL given to SetQuote.
type QuoteCache struct {
	rdb *redis.Client
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying()}
}

func quoteKey(symbol string, kind domain.MarketKind) string {
	return "quote:" + string(kind) + ":" + strings.ToUpper(symbol)
}

// SetQuote stores q and sets its expiry.
func (qc *QuoteCache) SetQuote(ctx context.Context, q domain.Quote, ttl time.Duration) error {
	key := quoteKey(q.Symbol, q.MarketKind)
	pipe := qc.rdb.TxPipeline()
	pipe.HSet(ctx, key,
		"price", strconv.FormatFloat(q.Price, 'f', -1, 64),
		"source", q.Source,
		"ts", strconv.FormatInt(q.FetchedAt.UnixNano(), 10),
	)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", key, err)
	}
	return nil
}

// GetQuote returns the cached quote or domain.ErrNotFound.
func (qc *QuoteCache) GetQuote(ctx context.Context, symbol string, kind domain.MarketKind) (domain.Quote, error) {
	key := quoteKey(symbol, kind)
	vals, err := qc.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: get quote %s: %w", key, err)
	}
	priceStr, ok := vals["price"]
	if !ok {
		return domain.Quote{}, domain.ErrNotFound
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse quote price %s: %w", key, err)
	}

	q := domain.Quote{
		Symbol:     strings.ToUpper(symbol),
		MarketKind: kind,
		Price:      price,
		Source:     vals["source"],
	}
	if tsStr, ok := vals["ts"]; ok {
		if ns, err := strconv.ParseInt(tsStr, 10, 64); err == nil {
			q.FetchedAt = time.Unix(0, ns).UTC()
		}
	}
	return q, nil
}

var _ domain.QuoteCache = (*QuoteCache)(nil)
