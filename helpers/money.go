package helpers

import "github.com/shopspring/decimal"

// Round2 rounds a price or percentage to two decimals, matching the
// DECIMAL(15,2) columns the cycles are stored in.
func Round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

// PercentChange returns (to-from)/from*100 rounded to two decimals. A zero
// base yields 0.
func PercentChange(from, to float64) float64 {
	base := decimal.NewFromFloat(from)
	if base.IsZero() {
		return 0
	}
	f, _ := decimal.NewFromFloat(to).Sub(base).Div(base).Mul(decimal.NewFromInt(100)).Round(2).Float64()
	return f
}

// Discount returns v*(1-rate) rounded to two decimals.
func Discount(v, rate float64) float64 {
	f, _ := decimal.NewFromFloat(v).Mul(decimal.NewFromInt(1).Sub(decimal.NewFromFloat(rate))).Round(2).Float64()
	return f
}

// Diff returns to-from rounded to two decimals.
func Diff(from, to float64) float64 {
	f, _ := decimal.NewFromFloat(to).Sub(decimal.NewFromFloat(from)).Round(2).Float64()
	return f
}
