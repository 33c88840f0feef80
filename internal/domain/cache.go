package domain

import (
	"context"
	"time"
)

// Quote is a cached price observation.
type Quote struct {
	Symbol     string     `json:"symbol"`
	MarketKind MarketKind `json:"market_kind"`
	Price      float64    `json:"price"`
	Source     string     `json:"source"`
	FetchedAt  time.Time  `json:"fetched_at"`
}

// QuoteCache keeps recent quotes for a short TTL.
type QuoteCache interface {
	SetQuote(ctx context.Context, q Quote, ttl time.Duration) error
	GetQuote(ctx context.Context, symbol string, kind MarketKind) (Quote, error)
}

// FormStore keeps in-progress chat creation forms keyed by owner chat.
type FormStore interface {
	Save(ctx context.Context, ownerChat string, data []byte, ttl time.Duration) error
	Load(ctx context.Context, ownerChat string) ([]byte, error)
	Delete(ctx context.Context, ownerChat string) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// EventBus fans position events out to live subscribers.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
