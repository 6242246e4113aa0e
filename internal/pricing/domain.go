// Package pricing stores versioned price records and resolves the record in
// force at a point in time.
package pricing

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/parkwise/parkwise/internal/shared"
)

// Lineage names a family of price records sharing the same key shape.
type Lineage string

const (
	// LineageCardPrice is keyed by card category.
	LineageCardPrice Lineage = "CARD_PRICE"
	// LineageSingleEntry is keyed by card category and vehicle type.
	LineageSingleEntry Lineage = "SINGLE_ENTRY"
	// LineageSubscription is keyed by subscription pricing rule.
	LineageSubscription Lineage = "SUBSCRIPTION"
)

// IsValid reports whether l is a known lineage.
func (l Lineage) IsValid() bool {
	switch l {
	case LineageCardPrice, LineageSingleEntry, LineageSubscription:
		return true
	default:
		return false
	}
}

// Domain errors.
var (
	ErrInvalidKey         = fmt.Errorf("%w: pricing: invalid dimension key", shared.ErrValidation)
	ErrNegativePrice      = fmt.Errorf("%w: pricing: prices must not be negative", shared.ErrValidation)
	ErrPriceScale         = fmt.Errorf("%w: pricing: prices carry at most two decimals", shared.ErrValidation)
	ErrChangedByRequired  = fmt.Errorf("%w: pricing: changed-by operator required", shared.ErrValidation)
	ErrDuplicateEffective = fmt.Errorf("%w: pricing: a record with this effective time already exists for the key", shared.ErrConflict)
	ErrRecordReferenced   = fmt.Errorf("%w: pricing: record is superseded by a later record", shared.ErrConflict)
	ErrRecordNotFound     = fmt.Errorf("%w: pricing: record not found", shared.ErrNotFound)
	ErrRuleNotFound       = fmt.Errorf("%w: pricing: no record effective at the requested time", shared.ErrNotFound)
	ErrCacheInvalidation  = errors.New("pricing: record cache invalidation failed")
)

// DimensionKey identifies one lineage of price records. Secondary is only
// meaningful for single-entry pricing (vehicle type).
type DimensionKey struct {
	Lineage   Lineage `json:"lineage"`
	Primary   int64   `json:"primary"`
	Secondary int64   `json:"secondary,omitempty"`
}

// CardPriceKey builds the key for card prices of a category.
func CardPriceKey(categoryID int64) DimensionKey {
	return DimensionKey{Lineage: LineageCardPrice, Primary: categoryID}
}

// SingleEntryKey builds the key for per-visit pricing.
func SingleEntryKey(categoryID, vehicleTypeID int64) DimensionKey {
	return DimensionKey{Lineage: LineageSingleEntry, Primary: categoryID, Secondary: vehicleTypeID}
}

// SubscriptionKey builds the key for a subscription pricing rule.
func SubscriptionKey(ruleID int64) DimensionKey {
	return DimensionKey{Lineage: LineageSubscription, Primary: ruleID}
}

// Validate checks the key shape against its lineage.
func (k DimensionKey) Validate() error {
	if !k.Lineage.IsValid() || k.Primary <= 0 {
		return ErrInvalidKey
	}
	if k.Lineage == LineageSingleEntry {
		if k.Secondary <= 0 {
			return ErrInvalidKey
		}
	} else if k.Secondary != 0 {
		return ErrInvalidKey
	}
	return nil
}

// String renders the key for logs and cache keys.
func (k DimensionKey) String() string {
	return string(k.Lineage) + ":" + strconv.FormatInt(k.Primary, 10) + ":" + strconv.FormatInt(k.Secondary, 10)
}

// Record is one immutable price version. Previous is derived on read and is
// never persisted.
type Record struct {
	ID                  uuid.UUID       `json:"id"`
	Key                 DimensionKey    `json:"key"`
	Price               decimal.Decimal `json:"price"`
	DayPrice            decimal.Decimal `json:"day_price"`
	FirstHourPrice      decimal.Decimal `json:"first_hour_price"`
	AdditionalHourPrice decimal.Decimal `json:"additional_hour_price"`
	EffectiveFrom       time.Time       `json:"effective_from"`
	ChangedBy           int64           `json:"changed_by"`
	Reason              string          `json:"reason,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	Previous            *uuid.UUID      `json:"previous,omitempty"`
}

// NewRecordInput carries an operator's price change.
type NewRecordInput struct {
	Key                 DimensionKey
	Price               decimal.Decimal
	DayPrice            decimal.Decimal
	FirstHourPrice      decimal.Decimal
	AdditionalHourPrice decimal.Decimal
	EffectiveFrom       time.Time
	ChangedBy           int64
	Reason              string
}

// Validate checks the input before insertion.
func (in NewRecordInput) Validate() error {
	if err := in.Key.Validate(); err != nil {
		return err
	}
	if in.ChangedBy <= 0 {
		return ErrChangedByRequired
	}
	for _, p := range []decimal.Decimal{in.Price, in.DayPrice, in.FirstHourPrice, in.AdditionalHourPrice} {
		if p.IsNegative() {
			return ErrNegativePrice
		}
		if !shared.FitsMoneyScale(p) {
			return ErrPriceScale
		}
	}
	return nil
}
