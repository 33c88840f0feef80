package domain

import "time"

// EventKind names what happened to a position.
type EventKind string

const (
	EventCreated    EventKind = "created"
	EventKnockOut   EventKind = "knock_out"
	EventKnockIn    EventKind = "knock_in"
	EventCoupon     EventKind = "coupon"
	EventCheckpoint EventKind = "checkpoint"
)

// PositionEvent is one persisted entry of a position's history: every
// transition and every monthly checkpoint produces one.
type PositionEvent struct {
	ID            int64          `json:"id"`
	PositionID    string         `json:"position_id"`
	Kind          EventKind      `json:"kind"`
	FromStatus    PositionStatus `json:"from_status"`
	ToStatus      PositionStatus `json:"to_status"`
	Price         *float64       `json:"price,omitempty"`
	Threshold     *float64       `json:"threshold,omitempty"`
	MonthsElapsed int            `json:"months_elapsed"`
	Amount        *float64       `json:"amount,omitempty"`
	Message       string         `json:"message"`
	CreatedAt     time.Time      `json:"created_at"`
}

// ChannelPositions is the event bus channel carrying PositionUpdate payloads.
const ChannelPositions = "positions"

// PositionUpdate is the live-feed payload for one persisted event.
type PositionUpdate struct {
	Event     PositionEvent  `json:"event"`
	Symbol    string         `json:"symbol"`
	OwnerChat string         `json:"owner_chat"`
	Status    PositionStatus `json:"status"`
}
