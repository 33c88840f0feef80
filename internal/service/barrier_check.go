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

// BarrierCheck is the daily pass that prices every active position and
// terminates those whose price crossed a barrier.
type BarrierCheck struct {
	jobRunner
	oracle domain.PriceOracle
}

// NewBarrierCheck creates the barrier pass.
func NewBarrierCheck(deps JobDeps, oracle domain.PriceOracle, logger *slog.Logger) *BarrierCheck {
	return &BarrierCheck{
		jobRunner: jobRunner{
			JobDeps: deps,
			name:    JobBarrierCheck,
			logger:  logger.With(slog.String("component", "barrier_check")),
		},
		oracle: oracle,
	}
}

// Name returns the job name.
func (b *BarrierCheck) Name() string { return b.name }

// Run executes one pass. Per-record failures are counted in the report and
// never stop the pass; only a failure to load the active set or a cancelled
// context is returned.
func (b *BarrierCheck) Run(ctx context.Context) (report Report, err error) {
	report = Report{Job: b.name, StartedAt: time.Now()}
	defer func() { b.finish(ctx, &report, err) }()

	unlock, skip := b.lock(ctx)
	if skip {
		report.SkippedLock = true
		return report, nil
	}
	defer unlock()

	active, err := b.Positions.AllActive(ctx)
	if err != nil {
		return report, fmt.Errorf("barrier_check: load active: %w", err)
	}

	for _, p := range active {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("barrier_check: %w", err)
		}
		report.Evaluated++
		changed, err := b.checkOne(ctx, p)
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

func (b *BarrierCheck) checkOne(ctx context.Context, p domain.Position) (bool, error) {
	log := b.logger.With(
		slog.String("position_id", p.ID),
		slog.String("symbol", p.Symbol),
	)

	price, err := b.oracle.GetPrice(ctx, p.Symbol, p.MarketKind)
	if err != nil {
		log.WarnContext(ctx, "price fetch failed, skipping",
			slog.String("market", string(p.MarketKind)),
			slog.String("error", err.Error()),
		)
		return false, err
	}

	t, ok := barrier.EvaluatePrice(p, price)
	if !ok {
		log.DebugContext(ctx, "within barriers", slog.Float64("price", price))
		return false, nil
	}

	if err := b.Positions.UpdateStatus(ctx, p.ID, t.From, t.To); err != nil {
		if errors.Is(err, domain.ErrStaleStatus) {
			metrics.StaleUpdates.WithLabelValues(b.name).Inc()
			log.InfoContext(ctx, "position changed concurrently, skipping")
			return false, err
		}
		log.ErrorContext(ctx, "persist transition failed",
			slog.String("to", string(t.To)),
			slog.String("error", err.Error()),
		)
		return false, err
	}
	metrics.Transitions.WithLabelValues(string(t.To)).Inc()
	log.InfoContext(ctx, "barrier crossed",
		slog.String("to", string(t.To)),
		slog.Float64("price", price),
		slog.Float64("level", t.Level),
	)

	b.announce(ctx, p, domain.PositionEvent{
		PositionID:    p.ID,
		Kind:          t.Kind,
		FromStatus:    t.From,
		ToStatus:      t.To,
		Price:         floatPtr(price),
		Threshold:     floatPtr(t.Level),
		MonthsElapsed: p.MonthsElapsed,
		Message:       b.Formatter.Transition(p, t),
	}, fmt.Sprintf("%s %s", p.Symbol, t.To))
	return true, nil
}
