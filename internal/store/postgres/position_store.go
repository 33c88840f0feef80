package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/barrierbot/internal/domain"
)

const positionColumns = `id, owner_chat, broadcast_chat, symbol, market_kind, entrance_date, entrance_price,
	knock_out_pct, knock_in_pct, decay_pct_per_month, period_months, payout_kind, coupon_rate_pct,
	fund, months_elapsed, status, created_at, updated_at`

const selectPositionColumns = positionColumns + `, last_rollover_date`

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	db DBTX
}

// NewPositionStore creates a new PositionStore.
func NewPositionStore(db DBTX) *PositionStore {
	return &PositionStore{db: db}
}

// Insert stores a new position.
func (s *PositionStore) Insert(ctx context.Context, pos domain.Position) error {
	const query = `
		INSERT INTO positions (` + positionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`
	_, err := s.db.Exec(ctx, query,
		pos.ID, pos.OwnerChat, pos.BroadcastChat, pos.Symbol, string(pos.MarketKind), pos.EntranceDate,
		pos.EntrancePrice, pos.KnockOutPct, pos.KnockInPct, pos.DecayPctPerMonth, pos.PeriodMonths,
		string(pos.PayoutKind), pos.CouponRatePct, pos.Fund, pos.MonthsElapsed, string(pos.Status),
		pos.CreatedAt, pos.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert position %s: %w", pos.ID, err)
	}
	return nil
}

// GetByID returns one position.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	query := `SELECT ` + selectPositionColumns + ` FROM positions WHERE id = $1`
	pos, err := scanPosition(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return pos, nil
}

// AllActive returns every position whose status is active.
func (s *PositionStore) AllActive(ctx context.Context) ([]domain.Position, error) {
	query := `SELECT ` + selectPositionColumns + ` FROM positions WHERE status = 'active' ORDER BY created_at`
	list, err := s.queryPositions(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active positions: %w", err)
	}
	return list, nil
}

// ListByOwner returns the positions of one owner, newest first.
func (s *PositionStore) ListByOwner(ctx context.Context, ownerChat string, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + selectPositionColumns + ` FROM positions WHERE owner_chat = $1 ORDER BY created_at DESC`
	args := []any{ownerChat}
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", len(args)+1)
		args = append(args, opts.Offset)
	}
	list, err := s.queryPositions(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions of %s: %w", ownerChat, err)
	}
	return list, nil
}

// UpdateStatus moves a position from one status to another. It fails with
// domain.ErrStaleStatus when the stored status is no longer from.
func (s *PositionStore) UpdateStatus(ctx context.Context, id string, from, to domain.PositionStatus) error {
	const query = `
		UPDATE positions SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2`
	tag, err := s.db.Exec(ctx, query, id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("postgres: update position %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.missOrStale(ctx, id)
	}
	return nil
}

// UpdateMonthsAndStatus records a rollover dated on. It applies only while
// the position is active, still at fromMonths and not yet rolled over on or
// after that calendar date.
func (s *PositionStore) UpdateMonthsAndStatus(ctx context.Context, id string, fromMonths, months int, status domain.PositionStatus, on time.Time) error {
	const query = `
		UPDATE positions SET months_elapsed = $3, status = $4, last_rollover_date = $5, updated_at = NOW()
		WHERE id = $1 AND status = 'active' AND months_elapsed = $2
		  AND (last_rollover_date IS NULL OR last_rollover_date < $5)`
	tag, err := s.db.Exec(ctx, query, id, fromMonths, months, string(status), civilDate(on))
	if err != nil {
		return fmt.Errorf("postgres: update position %s months: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.missOrStale(ctx, id)
	}
	return nil
}

// civilDate strips on to its calendar date at UTC midnight so the DATE
// column keeps the day of the caller's timezone.
func civilDate(on time.Time) time.Time {
	y, m, d := on.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// missOrStale tells a missing row apart from a lost compare-and-swap.
func (s *PositionStore) missOrStale(ctx context.Context, id string) error {
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM positions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: check position %s: %w", id, err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return fmt.Errorf("postgres: position %s: %w", id, domain.ErrStaleStatus)
}

func (s *PositionStore) queryPositions(ctx context.Context, query string, args ...any) ([]domain.Position, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []domain.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, pos)
	}
	return list, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (domain.Position, error) {
	var pos domain.Position
	var marketKind, payout, status string
	err := row.Scan(
		&pos.ID, &pos.OwnerChat, &pos.BroadcastChat, &pos.Symbol, &marketKind, &pos.EntranceDate,
		&pos.EntrancePrice, &pos.KnockOutPct, &pos.KnockInPct, &pos.DecayPctPerMonth, &pos.PeriodMonths,
		&payout, &pos.CouponRatePct, &pos.Fund, &pos.MonthsElapsed, &status,
		&pos.CreatedAt, &pos.UpdatedAt, &pos.LastRolloverDate,
	)
	if err != nil {
		return domain.Position{}, err
	}
	pos.MarketKind = domain.MarketKind(marketKind)
	pos.PayoutKind = domain.PayoutKind(payout)
	pos.Status = domain.PositionStatus(status)
	return pos, nil
}

var _ domain.PositionStore = (*PositionStore)(nil)
