package barrier

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/barrierbot/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Transition is a price-driven status change.
type Transition struct {
	Kind  domain.EventKind
	From  domain.PositionStatus
	To    domain.PositionStatus
	Price float64
	// Level is the barrier that was crossed.
	Level  float64
	Levels Levels
}

// EvaluatePrice applies the price rules to p. Knock-out takes precedence over
// knock-in when both levels are crossed at once. It returns false when p is
// terminal or the price sits strictly between the barriers.
func EvaluatePrice(p domain.Position, price float64) (Transition, bool) {
	if p.Status.IsTerminal() {
		return Transition{}, false
	}
	lv := ForPosition(p)
	switch {
	case price >= lv.KnockOutPrice:
		return Transition{
			Kind:   domain.EventKnockOut,
			From:   p.Status,
			To:     domain.StatusKnockedOut,
			Price:  price,
			Level:  lv.KnockOutPrice,
			Levels: lv,
		}, true
	case price <= lv.KnockInPrice:
		return Transition{
			Kind:   domain.EventKnockIn,
			From:   p.Status,
			To:     domain.StatusKnockedIn,
			Price:  price,
			Level:  lv.KnockInPrice,
			Levels: lv,
		}, true
	}
	return Transition{}, false
}

// Checkpoint is the result of one monthly rollover.
type Checkpoint struct {
	Kind         domain.EventKind
	FromMonths   int
	Months       int
	PeriodMonths int
	From         domain.PositionStatus
	To           domain.PositionStatus
	// CouponAmount is zero for bullet notes.
	CouponAmount decimal.Decimal
}

// Matured reports whether this rollover ended the note.
func (c Checkpoint) Matured() bool {
	return c.To == domain.StatusMatured
}

// Rollover advances the month counter of an active position and reports the
// checkpoint to announce. A coupon note credits fund × coupon rate for the
// month even on the month it matures.
func Rollover(p domain.Position) (Checkpoint, bool) {
	if p.Status.IsTerminal() {
		return Checkpoint{}, false
	}
	months := p.MonthsElapsed + 1
	to := p.Status
	if months >= p.PeriodMonths {
		to = domain.StatusMatured
	}
	cp := Checkpoint{
		Kind:         domain.EventCheckpoint,
		FromMonths:   p.MonthsElapsed,
		Months:       months,
		PeriodMonths: p.PeriodMonths,
		From:         p.Status,
		To:           to,
	}
	if p.PayoutKind == domain.PayoutCoupon {
		cp.Kind = domain.EventCoupon
		cp.CouponAmount = CouponAmount(p.Fund, p.CouponRatePct)
	}
	return cp, true
}

// CouponAmount is fund × ratePct / 100.
func CouponAmount(fund, ratePct float64) decimal.Decimal {
	return decimal.NewFromFloat(fund).Mul(decimal.NewFromFloat(ratePct)).Div(hundred)
}

// RolloverDue reports whether today is a monthly anniversary of the entrance
// date. Only the day of month is compared, so entrance days 29 to 31 skip the
// months that do not have them.
func RolloverDue(p domain.Position, today time.Time) bool {
	return today.Day() == p.EntranceDate.Day()
}
