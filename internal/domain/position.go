package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// PositionStatus is the lifecycle state of a tracked note. Active is the only
// non-terminal state.
type PositionStatus string

const (
	StatusActive     PositionStatus = "active"
	StatusKnockedOut PositionStatus = "knocked_out"
	StatusKnockedIn  PositionStatus = "knocked_in"
	StatusMatured    PositionStatus = "matured"
)

// IsTerminal reports whether no further transition may leave s.
func (s PositionStatus) IsTerminal() bool {
	return s != StatusActive
}

// Valid reports whether s is one of the known statuses.
func (s PositionStatus) Valid() bool {
	switch s {
	case StatusActive, StatusKnockedOut, StatusKnockedIn, StatusMatured:
		return true
	}
	return false
}

// MarketKind selects which price source resolves a symbol.
type MarketKind string

const (
	MarketStock  MarketKind = "stock"
	MarketCrypto MarketKind = "crypto"
)

// ParseMarketKind normalises user input into a MarketKind.
func ParseMarketKind(s string) (MarketKind, error) {
	switch k := MarketKind(strings.ToLower(strings.TrimSpace(s))); k {
	case MarketStock, MarketCrypto:
		return k, nil
	}
	return "", fmt.Errorf("%w: market kind %q (want stock or crypto)", ErrInvalidInput, s)
}

// PayoutKind describes how the note pays out.
type PayoutKind string

const (
	PayoutBullet PayoutKind = "bullet"
	PayoutCoupon PayoutKind = "coupon"
)

// ParsePayoutKind normalises user input into a PayoutKind.
func ParsePayoutKind(s string) (PayoutKind, error) {
	switch k := PayoutKind(strings.ToLower(strings.TrimSpace(s))); k {
	case PayoutBullet, PayoutCoupon:
		return k, nil
	}
	return "", fmt.Errorf("%w: payout kind %q (want bullet or coupon)", ErrInvalidInput, s)
}

// Position is one tracked barrier note.
type Position struct {
	ID               string         `json:"id"`
	OwnerChat        string         `json:"owner_chat"`
	BroadcastChat    *string        `json:"broadcast_chat,omitempty"`
	Symbol           string         `json:"symbol"`
	MarketKind       MarketKind     `json:"market_kind"`
	EntranceDate     time.Time      `json:"entrance_date"`
	EntrancePrice    float64        `json:"entrance_price"`
	KnockOutPct      float64        `json:"knock_out_pct"`
	KnockInPct       float64        `json:"knock_in_pct"`
	DecayPctPerMonth float64        `json:"decay_pct_per_month"`
	PeriodMonths     int            `json:"period_months"`
	PayoutKind       PayoutKind     `json:"payout_kind"`
	CouponRatePct    float64        `json:"coupon_rate_pct"`
	Fund             float64        `json:"fund"`
	MonthsElapsed    int            `json:"months_elapsed"`
	LastRolloverDate *time.Time     `json:"last_rollover_date,omitempty"`
	Status           PositionStatus `json:"status"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Destinations returns the owner chat followed by the broadcast chat when one
// is configured and differs from the owner.
func (p Position) Destinations() []string {
	dests := []string{p.OwnerChat}
	if p.BroadcastChat != nil {
		if b := strings.TrimSpace(*p.BroadcastChat); b != "" && b != p.OwnerChat {
			dests = append(dests, b)
		}
	}
	return dests
}

// CreatePositionRequest carries the validated inputs of the creation flow.
// The entrance price and date are captured by the service, not the caller.
type CreatePositionRequest struct {
	OwnerChat        string     `json:"owner_chat"`
	Symbol           string     `json:"symbol"`
	MarketKind       MarketKind `json:"market_kind"`
	KnockOutPct      float64    `json:"knock_out_pct"`
	KnockInPct       float64    `json:"knock_in_pct"`
	PeriodMonths     int        `json:"period_months"`
	Fund             float64    `json:"fund"`
	PayoutKind       PayoutKind `json:"payout_kind"`
	CouponRatePct    float64    `json:"coupon_rate_pct"`
	DecayPctPerMonth float64    `json:"decay_pct_per_month"`
}

// Validate checks every field of the request and returns all problems joined.
// Barrier signs are not enforced: a positive knock-in or negative knock-out is
// accepted as entered.
func (r CreatePositionRequest) Validate() error {
	var errs []error
	if strings.TrimSpace(r.OwnerChat) == "" {
		errs = append(errs, errors.New("owner_chat is required"))
	}
	if strings.TrimSpace(r.Symbol) == "" {
		errs = append(errs, errors.New("symbol is required"))
	}
	if r.MarketKind != MarketStock && r.MarketKind != MarketCrypto {
		errs = append(errs, fmt.Errorf("market_kind %q must be stock or crypto", r.MarketKind))
	}
	if r.PayoutKind != PayoutBullet && r.PayoutKind != PayoutCoupon {
		errs = append(errs, fmt.Errorf("payout_kind %q must be bullet or coupon", r.PayoutKind))
	}
	if r.PeriodMonths <= 0 {
		errs = append(errs, errors.New("period_months must be > 0"))
	}
	if !finite(r.Fund) || r.Fund <= 0 {
		errs = append(errs, errors.New("fund must be > 0"))
	}
	if !finite(r.DecayPctPerMonth) || r.DecayPctPerMonth < 0 {
		errs = append(errs, errors.New("decay_pct_per_month must be >= 0"))
	}
	if !finite(r.KnockOutPct) || !finite(r.KnockInPct) {
		errs = append(errs, errors.New("knock_out_pct and knock_in_pct must be finite"))
	}
	if r.PayoutKind == PayoutCoupon && (!finite(r.CouponRatePct) || r.CouponRatePct < 0) {
		errs = append(errs, errors.New("coupon_rate_pct must be >= 0"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidInput, errors.Join(errs...))
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
