package barrier

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/barrierbot/internal/domain"
)

// Formatter renders chat messages for positions. Currency is the label put in
// front of money amounts, e.g. "RM".
type Formatter struct {
	Currency string
}

// Transition renders a knock-out or knock-in alert.
func (f Formatter) Transition(p domain.Position, t Transition) string {
	switch t.Kind {
	case domain.EventKnockOut:
		return fmt.Sprintf("🚀 %s KO hit! %s ≥ %s", p.Symbol, price4(t.Price), price4(t.Level))
	case domain.EventKnockIn:
		return fmt.Sprintf("⚠️ %s KI hit! %s ≤ %s", p.Symbol, price4(t.Price), price4(t.Level))
	}
	return fmt.Sprintf("%s: %s → %s", p.Symbol, t.From, t.To)
}

// Checkpoint renders the monthly coupon or bullet message.
func (f Formatter) Checkpoint(p domain.Position, c Checkpoint) string {
	progress := fmt.Sprintf("(%d/%d)", c.Months, c.PeriodMonths)
	var msg string
	if c.Kind == domain.EventCoupon {
		msg = fmt.Sprintf("💰 %s: Monthly coupon %s credited %s", p.Symbol, f.money(c.CouponAmount), progress)
	} else {
		msg = fmt.Sprintf("🎯 %s: Bullet payout checkpoint %s", p.Symbol, progress)
	}
	if c.Matured() {
		msg += "\n🏁 Matured"
	}
	return msg
}

// Saved renders the confirmation sent after a position is created.
func (f Formatter) Saved(p domain.Position) string {
	var b strings.Builder
	b.WriteString("✅ Saved\n")
	fmt.Fprintf(&b, "Symbol: %s (%s)\n", p.Symbol, p.MarketKind)
	fmt.Fprintf(&b, "Entry: %s on %s\n", price4(p.EntrancePrice), p.EntranceDate.Format("2006-01-02"))
	fmt.Fprintf(&b, "KO %s%% | KI %s%% | Decay %s%%/mo\n", pct(p.KnockOutPct), pct(p.KnockInPct), pct(p.DecayPctPerMonth))
	fmt.Fprintf(&b, "Period %dm | Payout %s | Fund %s", p.PeriodMonths, p.PayoutKind, f.money(decimal.NewFromFloat(p.Fund)))
	if p.PayoutKind == domain.PayoutCoupon {
		fmt.Fprintf(&b, " | Coupon %s%%/mo", pct(p.CouponRatePct))
	}
	return b.String()
}

// Status renders one position for the status listing. A nil price means the
// quote could not be fetched.
func (f Formatter) Status(p domain.Position, price *float64) string {
	lv := ForPosition(p)
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", p.Symbol, p.MarketKind)
	if price != nil {
		fmt.Fprintf(&b, "Now %s (%+.2f%%)", price4(*price), ChangePct(p, *price))
	} else {
		b.WriteString("Now n/a")
	}
	fmt.Fprintf(&b, " | KO %s | KI %s\n", price4(lv.KnockOutPrice), price4(lv.KnockInPrice))
	fmt.Fprintf(&b, "%d/%d months | %s | %s\n", p.MonthsElapsed, p.PeriodMonths, p.PayoutKind, p.Status)
	fmt.Fprintf(&b, "Fund %s", f.money(decimal.NewFromFloat(p.Fund)))
	if p.PayoutKind == domain.PayoutCoupon {
		fmt.Fprintf(&b, " | Coupon %s%%/mo", pct(p.CouponRatePct))
	}
	return b.String()
}

func (f Formatter) money(d decimal.Decimal) string {
	if f.Currency == "" {
		return d.StringFixed(2)
	}
	return f.Currency + " " + d.StringFixed(2)
}

func price4(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func pct(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
