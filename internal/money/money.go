// Package money converts between major-unit decimal amounts used on the wire
// and the int64 minor units the ledger stores.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// MinorDigits is the number of minor-unit digits of the home currency.
const MinorDigits = 2

var (
	ErrNotPositive = errors.New("amount must be positive")
	ErrTooPrecise  = errors.New("amount has more than two decimal places")
	ErrOutOfRange  = errors.New("amount out of range")

	minorPerMajor = decimal.New(1, MinorDigits)
	maxMinor      = decimal.NewFromInt(1 << 53)
)

// ToMinor converts a positive major-unit amount, e.g. 150.25, into minor units (15025).
func ToMinor(amount decimal.Decimal) (int64, error) {
	if !amount.IsPositive() {
		return 0, ErrNotPositive
	}
	minor := amount.Mul(minorPerMajor)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, ErrTooPrecise
	}
	if minor.GreaterThan(maxMinor) {
		return 0, ErrOutOfRange
	}
	return minor.IntPart(), nil
}

// Parse reads a major-unit string such as "150.25" into minor units.
func Parse(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return ToMinor(d)
}

// FromMinor converts minor units back into a major-unit decimal.
func FromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -MinorDigits)
}

// Format renders minor units as a fixed two-decimal string.
func Format(minor int64) string {
	return FromMinor(minor).StringFixed(MinorDigits)
}
