package fees

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/parkwise/parkwise/internal/pricing"
	"github.com/parkwise/parkwise/internal/shared"
)

// ReferenceTime selects which end of the stay the pricing rule is resolved at.
type ReferenceTime int

const (
	// ResolveAtExit resolves the rule in force when the vehicle leaves.
	ResolveAtExit ReferenceTime = iota
	// ResolveAtEntry resolves the rule in force when the vehicle arrived.
	ResolveAtEntry
)

// MissingRule selects the behaviour when no single-entry rule exists.
type MissingRule int

const (
	// ChargeNothing quotes a zero fee and flags the quote.
	ChargeNothing MissingRule = iota
	// RejectMissing fails the quote with ErrNoPricingRule.
	RejectMissing
)

// ErrNoPricingRule is returned under RejectMissing when no rule resolves.
var ErrNoPricingRule = fmt.Errorf("%w: fees: no single-entry pricing rule for card category and vehicle type", shared.ErrNotFound)

// RuleResolver resolves the pricing record in force at a time.
type RuleResolver interface {
	Resolve(ctx context.Context, key pricing.DimensionKey, at time.Time) (*pricing.Record, error)
}

// Observer receives fail-open notifications.
type Observer interface {
	FeeRuleMissing(key pricing.DimensionKey)
}

// Options configures a Calculator.
type Options struct {
	ReferenceTime ReferenceTime
	MissingRule   MissingRule
	Observer      Observer
	Logger        *slog.Logger
}

// Quote is the outcome of pricing one stay.
type Quote struct {
	Amount        decimal.Decimal `json:"amount"`
	DurationHours int64           `json:"duration_hours"`
	RuleID        *uuid.UUID      `json:"rule_id,omitempty"`
	RuleMissing   bool            `json:"rule_missing"`
	ResolvedAt    time.Time       `json:"resolved_at"`
}

// Calculator resolves single-entry rules and computes fees.
type Calculator struct {
	rules RuleResolver
	opts  Options
}

// NewCalculator builds a Calculator.
func NewCalculator(rules RuleResolver, opts Options) *Calculator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Calculator{rules: rules, opts: opts}
}

// Quote prices a stay for the given card category and vehicle type.
func (c *Calculator) Quote(ctx context.Context, categoryID, vehicleTypeID int64, entry, exit time.Time) (Quote, error) {
	at := exit
	if c.opts.ReferenceTime == ResolveAtEntry {
		at = entry
	}
	q := Quote{DurationHours: DurationHours(entry, exit), ResolvedAt: at, Amount: decimal.Zero}
	key := pricing.SingleEntryKey(categoryID, vehicleTypeID)
	rule, err := c.rules.Resolve(ctx, key, at)
	if errors.Is(err, pricing.ErrRuleNotFound) {
		if c.opts.Observer != nil {
			c.opts.Observer.FeeRuleMissing(key)
		}
		if c.opts.MissingRule == RejectMissing {
			return q, ErrNoPricingRule
		}
		c.opts.Logger.Warn("no single-entry rule, charging nothing",
			slog.String("key", key.String()), slog.Time("at", at))
		q.RuleMissing = true
		return q, nil
	}
	if err != nil {
		return q, err
	}
	id := rule.ID
	q.RuleID = &id
	q.Amount = ComputeFee(entry, exit, *rule)
	return q, nil
}
