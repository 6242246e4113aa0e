// Package fees computes parking fees from a single-entry pricing record.
package fees

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/parkwise/parkwise/internal/pricing"
)

const hoursPerDay = 24

// DurationHours rounds the stay up to whole hours. A non-positive stay is 0.
func DurationHours(entry, exit time.Time) int64 {
	d := exit.Sub(entry)
	if d <= 0 {
		return 0
	}
	hours := int64(d / time.Hour)
	if d%time.Hour != 0 {
		hours++
	}
	return hours
}

// ComputeFee applies tiered hourly pricing with the day price as a cap for
// stays of a day or more. The result is never negative.
func ComputeFee(entry, exit time.Time, rule pricing.Record) decimal.Decimal {
	hours := DurationHours(entry, exit)
	if hours <= 0 {
		return decimal.Zero
	}
	fee := rule.FirstHourPrice
	if hours > 1 {
		fee = fee.Add(rule.AdditionalHourPrice.Mul(decimal.NewFromInt(hours - 1)))
	}
	if hours >= hoursPerDay {
		days := (hours + hoursPerDay - 1) / hoursPerDay
		capped := rule.DayPrice.Mul(decimal.NewFromInt(days))
		fee = decimal.Min(fee, capped)
	}
	if fee.IsNegative() {
		return decimal.Zero
	}
	return fee
}
