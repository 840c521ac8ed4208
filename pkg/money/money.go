// Package money holds the decimal helpers shared by cart, order and gateway code.
package money

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// ToMinorUnits converts an amount to integer cents as round(amount * 100).
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromMinorUnits is the inverse of ToMinorUnits.
func FromMinorUnits(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// Sum adds line totals, returning zero for an empty set.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// Format renders an amount with exactly two decimals, the way amounts are
// returned over the API.
func Format(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}
