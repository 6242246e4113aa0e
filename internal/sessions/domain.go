package sessions

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/parkwise/parkwise/internal/shared"
)

// Status represents the lifecycle stage of a parking session.
type Status string

const (
	StatusInParking  Status = "IN_PARKING"
	StatusExited     Status = "EXITED"
	StatusLostTicket Status = "LOST_TICKET"
	StatusCancelled  Status = "CANCELLED"
)

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	switch s {
	case StatusInParking, StatusExited, StatusLostTicket, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s.IsValid() && s != StatusInParking
}

// DiscountReason explains why the final fee differs from the calculated fee.
type DiscountReason string

const (
	ReasonNone           DiscountReason = ""
	ReasonSubscription   DiscountReason = "SUBSCRIPTION"
	ReasonPromo          DiscountReason = "PROMO"
	ReasonManualOverride DiscountReason = "MANUAL_OVERRIDE"
	ReasonStaffFree      DiscountReason = "STAFF_FREE"
)

// IsValid checks if the reason is a known value. The empty reason is valid.
func (r DiscountReason) IsValid() bool {
	switch r {
	case ReasonNone, ReasonSubscription, ReasonPromo, ReasonManualOverride, ReasonStaffFree:
		return true
	}
	return false
}

// Event drives a session out of IN_PARKING.
type Event string

const (
	EventExit       Event = "EXIT"
	EventLostTicket Event = "LOST_TICKET"
	EventCancel     Event = "CANCEL"
)

var transitions = map[Event]Status{
	EventExit:       StatusExited,
	EventLostTicket: StatusLostTicket,
	EventCancel:     StatusCancelled,
}

var (
	ErrSessionNotFound     = fmt.Errorf("%w: parking session", shared.ErrNotFound)
	ErrActiveSessionExists = fmt.Errorf("%w: card already has a vehicle in parking", shared.ErrConflict)
	ErrInvalidTransition   = fmt.Errorf("%w: session is no longer in parking", shared.ErrInvalidState)
	ErrUnknownEvent        = fmt.Errorf("%w: unknown session event", shared.ErrValidation)
	ErrCardUnusable        = fmt.Errorf("%w: card is inactive or expired", shared.ErrInvalidState)
	ErrOperatorInactive    = fmt.Errorf("%w: operator is not active", shared.ErrInvalidState)
	ErrCardRequired        = fmt.Errorf("%w: card id or uid required", shared.ErrValidation)
	ErrNegativeManualFee   = fmt.Errorf("%w: manual fee must not be negative", shared.ErrValidation)
	ErrManualFeeScale      = fmt.Errorf("%w: manual fee carries at most two decimals", shared.ErrValidation)
	ErrUnknownReason       = fmt.Errorf("%w: unknown discount reason", shared.ErrValidation)
	ErrReservedReason      = fmt.Errorf("%w: subscription discount is applied automatically", shared.ErrValidation)
	ErrReasonNeedsFee      = fmt.Errorf("%w: discount reason requires a manual fee", shared.ErrValidation)
)

// Session is one parking visit of a card-carrying vehicle.
type Session struct {
	ID              uuid.UUID           `json:"id"`
	CardID          int64               `json:"card_id"`
	VehicleID       int64               `json:"vehicle_id"`
	VehicleTypeID   int64               `json:"vehicle_type_id"`
	EntryTime       time.Time           `json:"entry_time"`
	EntryOperatorID int64               `json:"entry_operator_id"`
	ExitTime        *time.Time          `json:"exit_time,omitempty"`
	ExitOperatorID  *int64              `json:"exit_operator_id,omitempty"`
	Status          Status              `json:"status"`
	CalculatedFee   decimal.NullDecimal `json:"calculated_fee"`
	FinalFee        decimal.NullDecimal `json:"final_fee"`
	DiscountReason  DiscountReason      `json:"discount_reason,omitempty"`
}

// Transition returns the status the session moves to on e. Sessions leave
// IN_PARKING exactly once; every other move is ErrInvalidTransition.
func Transition(s Session, e Event) (Status, error) {
	next, ok := transitions[e]
	if !ok {
		return "", ErrUnknownEvent
	}
	if s.Status != StatusInParking {
		return "", fmt.Errorf("%w: %s from %s", ErrInvalidTransition, e, s.Status)
	}
	return next, nil
}

// EntryInput carries a gate entry.
type EntryInput struct {
	CardID  int64
	CardUID string
	// VehicleTypeID defaults to the vehicle's registered type when zero.
	VehicleTypeID int64
	VehicleID     int64
	OperatorID    int64
}

// CloseInput carries an exit or lost-ticket report.
type CloseInput struct {
	SessionID      uuid.UUID
	OperatorID     int64
	ManualFee      *decimal.Decimal
	DiscountReason DiscountReason
}

// Validate checks the operator supplied charging fields.
func (in CloseInput) Validate() error {
	if in.ManualFee != nil && in.ManualFee.IsNegative() {
		return ErrNegativeManualFee
	}
	if in.ManualFee != nil && !shared.FitsMoneyScale(*in.ManualFee) {
		return ErrManualFeeScale
	}
	if !in.DiscountReason.IsValid() {
		return ErrUnknownReason
	}
	if in.DiscountReason == ReasonSubscription {
		return ErrReservedReason
	}
	if in.ManualFee == nil && in.DiscountReason != ReasonNone && in.DiscountReason != ReasonStaffFree {
		return ErrReasonNeedsFee
	}
	return nil
}

// Charge is the priced outcome of closing a session.
type Charge struct {
	SessionID      uuid.UUID       `json:"session_id"`
	At             time.Time       `json:"at"`
	DurationHours  int64           `json:"duration_hours"`
	CalculatedFee  decimal.Decimal `json:"calculated_fee"`
	FinalFee       decimal.Decimal `json:"final_fee"`
	DiscountReason DiscountReason  `json:"discount_reason,omitempty"`
	RuleID         *uuid.UUID      `json:"rule_id,omitempty"`
	RuleMissing    bool            `json:"rule_missing"`
	SubscriptionID *uuid.UUID      `json:"subscription_id,omitempty"`
}
