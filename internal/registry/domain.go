// Package registry exposes read-only lookups over the plain CRUD entities
// (cards, vehicles, employees, catalogs, invoices) the parking core depends on.
package registry

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/parkwise/parkwise/internal/shared"
)

// Lookup errors.
var (
	ErrCardNotFound             = fmt.Errorf("%w: card", shared.ErrNotFound)
	ErrVehicleNotFound          = fmt.Errorf("%w: vehicle", shared.ErrNotFound)
	ErrVehicleTypeNotFound      = fmt.Errorf("%w: vehicle type", shared.ErrNotFound)
	ErrEmployeeNotFound         = fmt.Errorf("%w: employee", shared.ErrNotFound)
	ErrSubscriptionTypeNotFound = fmt.Errorf("%w: subscription type", shared.ErrNotFound)
	ErrInvoiceCardNotFound      = fmt.Errorf("%w: card is not on any invoice", shared.ErrNotFound)
)

// Card is an access card resolved from its UID.
type Card struct {
	ID         int64      `json:"id"`
	UID        string     `json:"uid"`
	CategoryID int64      `json:"category_id"`
	Active     bool       `json:"active"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// Usable reports whether the card is active and not past its expiry at t.
func (c Card) Usable(t time.Time) bool {
	if !c.Active {
		return false
	}
	return c.ExpiresAt == nil || !t.After(*c.ExpiresAt)
}

// Vehicle is a registered vehicle.
type Vehicle struct {
	ID            int64  `json:"id"`
	Plate         string `json:"plate"`
	VehicleTypeID int64  `json:"vehicle_type_id"`
}

// VehicleType is a vehicle class (car, motorbike, ...).
type VehicleType struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Employee is an operator at a gate or desk.
type Employee struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// SubscriptionType is a catalog entry describing a subscription product.
type SubscriptionType struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	DurationDays  int    `json:"duration_days"`
	PricingRuleID int64  `json:"pricing_rule_id"`
}

// InvoiceCard is the invoice line a card was sold on.
type InvoiceCard struct {
	InvoiceID int64           `json:"invoice_id"`
	CardID    int64           `json:"card_id"`
	Price     decimal.Decimal `json:"price"`
}
