// Package types provides common monetary types and rounding helpers.
package types

import (
	"github.com/shopspring/decimal"
)

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors.
type Money = decimal.Decimal

// NewMoneyFromString creates a Money value from a string.
// This is the preferred method for monetary values.
func NewMoneyFromString(s string) (Money, error) {
	return decimal.NewFromString(s)
}

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Zero returns zero Money value.
func Zero() Money {
	return decimal.Zero
}

// RoundUSD rounds a USD amount to whole cents (half away from zero).
func RoundUSD(m Money) Money {
	return m.Round(2)
}

// RoundKHR rounds a KHR amount to whole riel. The riel has no minor unit,
// so persisted and emitted KHR figures are always integral.
func RoundKHR(m Money) Money {
	return m.Round(0)
}

// CeilKHRToGranularity rounds a KHR amount up to the next multiple of the
// given granularity (e.g. 100 riel) and returns the rounded amount together
// with the applied delta. Amounts already on a boundary are unchanged.
func CeilKHRToGranularity(m Money, granularity int64) (Money, Money) {
	if granularity <= 0 {
		return m, decimal.Zero
	}
	g := decimal.NewFromInt(granularity)
	rounded := m.Div(g).Ceil().Mul(g)
	return rounded, rounded.Sub(m)
}
