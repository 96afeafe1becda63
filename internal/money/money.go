package money

import "github.com/shopspring/decimal"

// Amount represents a monetary value stored in minor units.
type Amount = int64

var (
	half    = decimal.New(5, -1)
	hundred = decimal.NewFromInt(100)
)

// RoundHalfUp rounds a decimal value to the nearest minor unit, with halves
// rounded up. This is the single rounding policy used across the engine.
func RoundHalfUp(d decimal.Decimal) Amount {
	return d.Add(half).Floor().IntPart()
}

// Percent computes amount × rate/100 rounded half-up, where rate is a
// percentage such as 8.25.
func Percent(amount Amount, rate decimal.Decimal) Amount {
	return RoundHalfUp(decimal.NewFromInt(amount).Mul(rate).Div(hundred))
}

// Decimal converts minor units into an exact decimal for intermediate
// arithmetic.
func Decimal(amount Amount) decimal.Decimal {
	return decimal.NewFromInt(amount)
}

// AsFraction converts a percentage rate into its fractional multiplier
// (8.16 → 0.0816).
func AsFraction(rate decimal.Decimal) decimal.Decimal {
	return rate.Div(hundred)
}
