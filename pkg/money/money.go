package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var centsFactor = decimal.NewFromInt(100)

// ToMinorUnits parses a decimal amount string ("100.00") into integer minor
// units. Values with more than two fractional digits are rejected rather
// than rounded.
func ToMinorUnits(value string) (int64, error) {
	dec, err := decimal.NewFromString(value)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	if dec.Exponent() < -2 {
		return 0, fmt.Errorf("amount %q has more than two decimal places", value)
	}
	cents := dec.Mul(centsFactor)
	if !cents.IsInteger() {
		return 0, fmt.Errorf("amount %q does not resolve to whole minor units", value)
	}
	return cents.IntPart(), nil
}

// FromMinorUnits renders integer minor units as a two-decimal string.
func FromMinorUnits(cents int64) string {
	return decimal.NewFromInt(cents).Div(centsFactor).StringFixed(2)
}
