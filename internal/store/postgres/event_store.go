package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/barrierbot/internal/domain"
)

const eventColumns = `id, position_id, kind, from_status, to_status, price, threshold, months_elapsed, amount, message, created_at`

// EventStore implements domain.EventStore using PostgreSQL.
type EventStore struct {
	db DBTX
}

// NewEventStore creates a new EventStore.
func NewEventStore(db DBTX) *EventStore {
	return &EventStore{db: db}
}

// Append records one position event.
func (s *EventStore) Append(ctx context.Context, evt domain.PositionEvent) error {
	const query = `
		INSERT INTO position_events (position_id, kind, from_status, to_status, price, threshold, months_elapsed, amount, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := s.db.Exec(ctx, query,
		evt.PositionID, string(evt.Kind), string(evt.FromStatus), string(evt.ToStatus),
		evt.Price, evt.Threshold, evt.MonthsElapsed, evt.Amount, evt.Message,
	)
	if err != nil {
		return fmt.Errorf("postgres: append %s event for %s: %w", evt.Kind, evt.PositionID, err)
	}
	return nil
}

// ListByPosition returns the history of one position, newest first.
func (s *EventStore) ListByPosition(ctx context.Context, positionID string, opts domain.ListOpts) ([]domain.PositionEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM position_events WHERE position_id = $1`
	args := []any{positionID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	events, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events of %s: %w", positionID, err)
	}
	return events, nil
}

// ListBetween returns all events created in [from, to), oldest first.
func (s *EventStore) ListBetween(ctx context.Context, from, to time.Time) ([]domain.PositionEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM position_events
		WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at, id`
	events, err := s.query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events between %s and %s: %w",
			from.Format(time.RFC3339), to.Format(time.RFC3339), err)
	}
	return events, nil
}

func (s *EventStore) query(ctx context.Context, query string, args ...any) ([]domain.PositionEvent, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.PositionEvent
	for rows.Next() {
		var e domain.PositionEvent
		var kind, from, to string
		if err := rows.Scan(
			&e.ID, &e.PositionID, &kind, &from, &to, &e.Price, &e.Threshold,
			&e.MonthsElapsed, &e.Amount, &e.Message, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Kind = domain.EventKind(kind)
		e.FromStatus = domain.PositionStatus(from)
		e.ToStatus = domain.PositionStatus(to)
		events = append(events, e)
	}
	return events, rows.Err()
}

var _ domain.EventStore = (*EventStore)(nil)
