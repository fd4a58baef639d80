// Package money converts between integer minor units and user-facing amounts.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ParseCents reads a dollar amount such as "12.34", "-5" or "1,250.00".
// More than two decimal places is rejected rather than rounded.
func ParseCents(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	s = strings.TrimPrefix(s, "$")
	if s == "" {
		return 0, fmt.Errorf("amount is required")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	cents := d.Mul(hundred)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, fmt.Errorf("amount %q has more than two decimal places", s)
	}
	return cents.IntPart(), nil
}

// FromValue parses a remote "value" string (always two decimal places).
func FromValue(s string) (int64, error) {
	return ParseCents(s)
}

// FormatCents renders cents with a currency symbol, e.g. -$12.30.
func FormatCents(cents int64, symbol string) string {
	d := decimal.New(cents, -2)
	if d.IsNegative() {
		return "-" + symbol + d.Abs().StringFixed(2)
	}
	return symbol + d.StringFixed(2)
}
