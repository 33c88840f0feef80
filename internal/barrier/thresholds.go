// Package barrier computes knock-out and knock-in levels for barrier notes and
// decides the lifecycle transitions driven by price and by monthly rollover.
// Everything here is pure: no I/O, no clocks, no shared state.
package barrier

import "github.com/alanyoungcy/barrierbot/internal/domain"

// Levels are the barrier prices of a position after a given number of months.
type Levels struct {
	MonthsElapsed       int     `json:"months_elapsed"`
	AdjustedKnockOutPct float64 `json:"adjusted_knock_out_pct"`
	KnockOutPrice       float64 `json:"knock_out_price"`
	KnockInPrice        float64 `json:"knock_in_price"`
}

// Thresholds returns the levels of p as if monthsElapsed months had passed.
// The knock-out offset decays linearly and is not clamped, so after enough
// months it can fall below the knock-in offset.
func Thresholds(p domain.Position, monthsElapsed int) Levels {
	adjusted := p.KnockOutPct - p.DecayPctPerMonth*float64(monthsElapsed)
	return Levels{
		MonthsElapsed:       monthsElapsed,
		AdjustedKnockOutPct: adjusted,
		KnockOutPrice:       p.EntrancePrice * (1 + adjusted/100),
		KnockInPrice:        p.EntrancePrice * (1 + p.KnockInPct/100),
	}
}

// ForPosition returns the levels at the position's current month count.
func ForPosition(p domain.Position) Levels {
	return Thresholds(p, p.MonthsElapsed)
}

// ChangePct is the move of price relative to the entrance price, in percent.
func ChangePct(p domain.Position, price float64) float64 {
	if p.EntrancePrice == 0 {
		return 0
	}
	return (price - p.EntrancePrice) / p.EntrancePrice * 100
}
