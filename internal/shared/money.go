package shared

import "github.com/shopspring/decimal"

// MoneyScale is the number of fractional digits stored for amounts.
const MoneyScale = 2

// FitsMoneyScale reports whether d can be stored without rounding.
func FitsMoneyScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MoneyScale))
}
