package subscriptions

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/parkwise/parkwise/internal/shared"
)

var (
	// ErrSubscriptionNotFound indicates the subscription does not exist.
	ErrSubscriptionNotFound = fmt.Errorf("%w: subscription", shared.ErrNotFound)
	// ErrAlreadySuspended is returned when suspending a suspended subscription.
	ErrAlreadySuspended = fmt.Errorf("%w: subscription already suspended", shared.ErrInvalidState)
	// ErrNotSuspended is returned when resuming an active subscription.
	ErrNotSuspended = fmt.Errorf("%w: subscription is not suspended", shared.ErrInvalidState)
	// ErrCardUnusable is returned when purchasing for an inactive or expired card.
	ErrCardUnusable = fmt.Errorf("%w: card is inactive or expired", shared.ErrInvalidState)
	// ErrInvalidDuration is returned for catalog entries without a positive duration.
	ErrInvalidDuration = fmt.Errorf("%w: subscription type duration must be positive", shared.ErrValidation)
)

// Subscription entitles a card to free parking during [StartDate, EndDate].
type Subscription struct {
	ID                 uuid.UUID       `json:"id"`
	CardID             int64           `json:"card_id"`
	VehicleID          int64           `json:"vehicle_id"`
	VehicleTypeID      int64           `json:"vehicle_type_id"`
	SubscriptionTypeID int64           `json:"subscription_type_id"`
	PricePaid          decimal.Decimal `json:"price_paid"`
	StartDate          time.Time       `json:"start_date"`
	EndDate            time.Time       `json:"end_date"`
	Suspended          bool            `json:"suspended"`
	CreatedAt          time.Time       `json:"created_at"`
}

// Covers reports whether the subscription is in force at t. Both window
// bounds are inclusive.
func (s Subscription) Covers(t time.Time) bool {
	return !s.Suspended && !t.Before(s.StartDate) && !t.After(s.EndDate)
}

// PurchaseInput carries a subscription sale.
type PurchaseInput struct {
	CardID             int64
	VehicleID          int64
	SubscriptionTypeID int64
	// StartDate defaults to now when zero.
	StartDate  time.Time
	OperatorID int64
}
