package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// PositionStore persists positions. Status-changing updates are
// compare-and-swap: they apply only while the stored row still matches the
// expected state and return ErrStaleStatus otherwise. UpdateMonthsAndStatus
// also stamps the rollover date and refuses a second rollover on the same
// calendar date.
type PositionStore interface {
	Insert(ctx context.Context, pos Position) error
	GetByID(ctx context.Context, id string) (Position, error)
	AllActive(ctx context.Context) ([]Position, error)
	ListByOwner(ctx context.Context, ownerChat string, opts ListOpts) ([]Position, error)
	UpdateStatus(ctx context.Context, id string, from, to PositionStatus) error
	UpdateMonthsAndStatus(ctx context.Context, id string, fromMonths, months int, status PositionStatus, on time.Time) error
}

// EventStore keeps the append-only history of position events.
type EventStore interface {
	Append(ctx context.Context, evt PositionEvent) error
	ListByPosition(ctx context.Context, positionID string, opts ListOpts) ([]PositionEvent, error)
	ListBetween(ctx context.Context, from, to time.Time) ([]PositionEvent, error)
}
