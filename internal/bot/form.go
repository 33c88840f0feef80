// Package bot implements the chat front end: a command router and the
// step-by-step creation form that turns chat replies into one
// domain.CreatePositionRequest.
package bot

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/alanyoungcy/barrierbot/internal/domain"
)

// Step is one state of the creation form.
type Step string

const (
	StepSymbol Step = "symbol"
	StepMarket Step = "market"
	StepKO     Step = "knock_out"
	StepKI     Step = "knock_in"
	StepPeriod Step = "period"
	StepFund   Step = "fund"
	StepPayout Step = "payout"
	StepCoupon Step = "coupon"
	StepDecay  Step = "decay"
	StepDone   Step = "done"
)

// Form is a creation form in progress. It is serialised between messages.
type Form struct {
	Step    Step                         `json:"step"`
	Request domain.CreatePositionRequest `json:"request"`
}

// NewForm starts a form for the given chat.
func NewForm(ownerChat string) *Form {
	return &Form{
		Step:    StepSymbol,
		Request: domain.CreatePositionRequest{OwnerChat: ownerChat},
	}
}

// Done reports whether every field has been collected.
func (f *Form) Done() bool { return f.Step == StepDone }

// Prompt is the question asked for the current step.
func (f *Form) Prompt(currency string) string {
	switch f.Step {
	case StepSymbol:
		return "Enter symbol (e.g. AAPL or BTC/USDT):"
	case StepMarket:
		return "Market type? (stock / crypto)"
	case StepKO:
		return "Knock-Out % (e.g. 5 for +5%)"
	case StepKI:
		return "Knock-In % (negative number, e.g. -10)"
	case StepPeriod:
		return "Investment period in months (e.g. 6)"
	case StepFund:
		if currency == "" {
			return "Fund invested (e.g. 50000)"
		}
		return fmt.Sprintf("Fund invested in %s (e.g. 50000)", currency)
	case StepPayout:
		return "Payout type? (bullet / coupon)"
	case StepCoupon:
		return "Coupon % per month (e.g. 1 for 1%)"
	case StepDecay:
		return "KO decay % per month (0 for none)"
	}
	return ""
}

// Advance consumes the reply to the current step. Invalid input leaves the
// form on the same step and returns an error wrapping domain.ErrInvalidInput.
func (f *Form) Advance(input string) error {
	in := strings.TrimSpace(input)
	r := &f.Request

	switch f.Step {
	case StepSymbol:
		sym := strings.ToUpper(in)
		if sym == "" || strings.ContainsAny(sym, " \t\n") {
			return invalid("symbol must be a single word like AAPL or BTC/USDT")
		}
		r.Symbol = sym
		f.Step = StepMarket

	case StepMarket:
		k, err := domain.ParseMarketKind(in)
		if err != nil {
			return invalid("market must be stock or crypto")
		}
		r.MarketKind = k
		f.Step = StepKO

	case StepKO:
		v, err := parseNumber(in)
		if err != nil {
			return err
		}
		r.KnockOutPct = v
		f.Step = StepKI

	case StepKI:
		v, err := parseNumber(in)
		if err != nil {
			return err
		}
		r.KnockInPct = v
		f.Step = StepPeriod

	case StepPeriod:
		n, err := strconv.Atoi(in)
		if err != nil || n <= 0 {
			return invalid("period must be a whole number of months greater than 0")
		}
		r.PeriodMonths = n
		f.Step = StepFund

	case StepFund:
		v, err := parseNumber(in)
		if err != nil {
			return err
		}
		if v <= 0 {
			return invalid("fund must be greater than 0")
		}
		r.Fund = v
		f.Step = StepPayout

	case StepPayout:
		k, err := domain.ParsePayoutKind(in)
		if err != nil {
			return invalid("payout must be bullet or coupon")
		}
		r.PayoutKind = k
		if k == domain.PayoutCoupon {
			f.Step = StepCoupon
		} else {
			r.CouponRatePct = 0
			f.Step = StepDecay
		}

	case StepCoupon:
		v, err := parseNumber(in)
		if err != nil {
			return err
		}
		if v < 0 {
			return invalid("coupon rate cannot be negative")
		}
		r.CouponRatePct = v
		f.Step = StepDecay

	case StepDecay:
		v, err := parseNumber(in)
		if err != nil {
			return err
		}
		if v < 0 {
			return invalid("decay cannot be negative")
		}
		r.DecayPctPerMonth = v
		f.Step = StepDone

	default:
		return fmt.Errorf("bot: form already complete")
	}
	return nil
}

func parseNumber(s string) (float64, error) {
	clean := strings.TrimSuffix(strings.ReplaceAll(s, ",", ""), "%")
	v, err := strconv.ParseFloat(strings.TrimSpace(clean), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, invalid(fmt.Sprintf("%q is not a number", s))
	}
	return v, nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidInput, msg)
}
