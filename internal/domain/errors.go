package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrStaleStatus       = errors.New("position no longer in expected state")
	ErrUnsupportedMarket = errors.New("unsupported market kind")
	ErrNoPrice           = errors.New("no price available")
	ErrSourceUnavailable = errors.New("price source unavailable")
	ErrRateLimited       = errors.New("rate limited")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrLockHeld          = errors.New("lock already held")
)
