package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/barrierbot/internal/barrier"
	"github.com/alanyoungcy/barrierbot/internal/domain"
	"github.com/alanyoungcy/barrierbot/internal/metrics"
)

// Rollover is the daily pass that advances the month counter of positions
// on their monthly anniversary, crediting coupons and maturing notes.
type Rollover struct {
	jobRunner
	loc *time.Location
	now func() time.Time
}

// NewRollover creates the rollover pass. loc is the timezone that decides
// what "today" is.
func NewRollover(deps JobDeps, loc *time.Location, logger *slog.Logger) *Rollover {
	if loc == nil {
		loc = time.UTC
	}
	return &Rollover{
		jobRunner: jobRunner{
			JobDeps: deps,
			name:    JobRollover,
			logger:  logger.With(slog.String("component", "rollover")),
		},
		loc: loc,
		now: time.Now,
	}
}

// Name returns the job name.
func (r *Rollover) Name() string { return r.name }

// Run executes the pass for today in the configured timezone.
func (r *Rollover) Run(ctx context.Context) (Report, error) {
	return r.RunOn(ctx, r.now().In(r.loc))
}

// RunOn executes the pass as if today were the calendar date of day.
func (r *Rollover) RunOn(ctx context.Context, day time.Time) (report Report, err error) {
	report = Report{Job: r.name, StartedAt: time.Now()}
	defer func() { r.finish(ctx, &report, err) }()

	unlock, skip := r.lock(ctx)
	if skip {
		report.SkippedLock = true
		return report, nil
	}
	defer unlock()

	active, err := r.Positions.AllActive(ctx)
	if err != nil {
		return report, fmt.Errorf("rollover: load active: %w", err)
	}

	for _, p := range active {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("rollover: %w", err)
		}
		if !barrier.RolloverDue(p, day) || sameDate(p.EntranceDate, day) {
			continue
		}
		report.Evaluated++
		changed, err := r.rollOne(ctx, p, day)
		switch {
		case errors.Is(err, domain.ErrStaleStatus):
			report.Stale++
		case err != nil:
			report.Failed++
		case changed:
			report.Changed++
		}
	}
	return report, nil
}

func (r *Rollover) rollOne(ctx context.Context, p domain.Position, day time.Time) (bool, error) {
	log := r.logger.With(
		slog.String("position_id", p.ID),
		slog.String("symbol", p.Symbol),
	)

	if p.LastRolloverDate != nil && sameDate(*p.LastRolloverDate, day) {
		log.DebugContext(ctx, "already rolled over today")
		return false, nil
	}

	cp, ok := barrier.Rollover(p)
	if !ok {
		return false, nil
	}

	if err := r.Positions.UpdateMonthsAndStatus(ctx, p.ID, cp.FromMonths, cp.Months, cp.To, day); err != nil {
		if errors.Is(err, domain.ErrStaleStatus) {
			metrics.StaleUpdates.WithLabelValues(r.name).Inc()
			log.InfoContext(ctx, "position changed concurrently, skipping")
			return false, err
		}
		log.ErrorContext(ctx, "persist rollover failed", slog.String("error", err.Error()))
		return false, err
	}
	metrics.Checkpoints.WithLabelValues(string(p.PayoutKind)).Inc()
	if cp.Matured() {
		metrics.Transitions.WithLabelValues(string(cp.To)).Inc()
	}
	log.InfoContext(ctx, "rolled over",
		slog.Int("months_elapsed", cp.Months),
		slog.Int("period_months", cp.PeriodMonths),
		slog.String("status", string(cp.To)),
	)

	evt := domain.PositionEvent{
		PositionID:    p.ID,
		Kind:          cp.Kind,
		FromStatus:    cp.From,
		ToStatus:      cp.To,
		MonthsElapsed: cp.Months,
		Message:       r.Formatter.Checkpoint(p, cp),
	}
	if cp.Kind == domain.EventCoupon {
		amount, _ := cp.CouponAmount.Float64()
		evt.Amount = floatPtr(amount)
	}
	r.announce(ctx, p, evt, fmt.Sprintf("%s month %d/%d", p.Symbol, cp.Months, cp.PeriodMonths))
	return true, nil
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
