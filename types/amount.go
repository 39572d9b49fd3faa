// Package types provides value types shared by the vesting packages.
package types

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is a token quantity in the token's smallest unit.
//
// Amounts are always integral. 18-decimal tokens overflow int64 quickly
// (24000 tokens is 2.4e22 units), so the value is held as an
// arbitrary-precision decimal and every division rounds toward zero.
//
// The zero value is a valid zero amount.
type Amount struct {
	d decimal.Decimal
}

// Zero returns a zero Amount.
func Zero() Amount { return Amount{} }

// NewAmount creates an Amount of the given number of smallest units.
func NewAmount(units int64) Amount { return Amount{d: decimal.NewFromInt(units)} }

// Units creates an Amount of whole tokens for a token with the given
// number of decimals. Units(24000, 18) is 24000 * 10^18.
func Units(whole int64, decimals int32) Amount {
	return Amount{d: decimal.New(whole, decimals)}
}

// ParseAmount parses a base-10 integer string such as
// "24000000000000000000000". Fractional values are rejected.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("amount: parse %q: empty string", s)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("amount: parse %q: %w", s, err)
	}
	if !d.IsInteger() {
		return Amount{}, fmt.Errorf("amount: parse %q: not an integer", s)
	}

	return Amount{d: d}, nil
}

// MustParseAmount is like ParseAmount but panics on error.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// ParseUnits parses a human token quantity such as "1.5" and scales it by
// 10^decimals. Digits beyond the token precision are truncated.
func ParseUnits(s string, decimals int32) (Amount, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Amount{}, fmt.Errorf("amount: parse units %q: %w", s, err)
	}

	return Amount{d: d.Shift(decimals).Truncate(0)}, nil
}

// Arithmetic

// Add returns a + b.
func (a Amount) Add(b Amount) Amount { return Amount{d: a.d.Add(b.d)} }

// Sub returns a - b. The result may be negative.
func (a Amount) Sub(b Amount) Amount { return Amount{d: a.d.Sub(b.d)} }

// MulDiv returns floor(a * num / den) for non-negative operands.
// The multiplication happens first, so no precision is lost before the
// single rounding step. It panics if den is zero.
func (a Amount) MulDiv(num, den int64) Amount {
	if den == 0 {
		panic("amount: division by zero")
	}

	q, _ := a.d.Mul(decimal.NewFromInt(num)).QuoRem(decimal.NewFromInt(den), 0)
	return Amount{d: q}
}

// Percent returns floor(a * pct / 100).
func (a Amount) Percent(pct uint8) Amount { return a.MulDiv(int64(pct), 100) }

// Comparison

// Cmp returns -1, 0 or +1 as a is less than, equal to or greater than b.
func (a Amount) Cmp(b Amount) int { return a.d.Cmp(b.d) }

// Equal reports whether a == b.
func (a Amount) Equal(b Amount) bool { return a.d.Equal(b.d) }

// LessThan reports whether a < b.
func (a Amount) LessThan(b Amount) bool { return a.d.LessThan(b.d) }

// GreaterThan reports whether a > b.
func (a Amount) GreaterThan(b Amount) bool { return a.d.GreaterThan(b.d) }

// IsZero reports whether a == 0.
func (a Amount) IsZero() bool { return a.d.IsZero() }

// IsPositive reports whether a > 0.
func (a Amount) IsPositive() bool { return a.d.IsPositive() }

// IsNegative reports whether a < 0.
func (a Amount) IsNegative() bool { return a.d.IsNegative() }

// Min returns the smaller of a and b.
func (a Amount) Min(b Amount) Amount {
	if a.d.LessThan(b.d) {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func (a Amount) Max(b Amount) Amount {
	if a.d.GreaterThan(b.d) {
		return a
	}
	return b
}

// Formatting

// String returns the integer value in smallest units.
func (a Amount) String() string { return a.d.String() }

// Format renders a in whole tokens, e.g. Units(5500, 18).Format(18) is "5500".
func (a Amount) Format(decimals int32) string { return a.d.Shift(-decimals).String() }

// Tokens returns a in whole tokens as a float64. It is lossy and only
// meant for metrics and logs.
func (a Amount) Tokens(decimals int32) float64 { return a.d.Shift(-decimals).InexactFloat64() }

// Decimal returns the underlying decimal value.
func (a Amount) Decimal() decimal.Decimal { return a.d }

// MarshalJSON encodes a as a JSON string so large values survive
// JavaScript number precision.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.d.String())
}

// UnmarshalJSON accepts either a JSON string or a JSON number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" || s == "" {
		*a = Amount{}
		return nil
	}

	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (a Amount) MarshalText() ([]byte, error) { return []byte(a.d.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Amount) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*a = Amount{}
		return nil
	}

	parsed, err := ParseAmount(string(data))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Sum adds up values. The sum of nothing is zero.
func Sum(values ...Amount) Amount {
	total := Zero()
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
