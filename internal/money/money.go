package money

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// MinorUnitsPerMajor is the number of kobo in one naira.
const MinorUnitsPerMajor = 100

// ErrInvalidAmount is returned for amounts that are not a positive whole number of minor units.
var ErrInvalidAmount = errors.New("invalid amount")

var (
	minorScale = decimal.NewFromInt(MinorUnitsPerMajor)
	maxMinor   = decimal.NewFromInt(math.MaxInt64)

	// plainDecimal admits only unsigned positional notation; exponents are
	// rejected before they reach decimal, which would expand them.
	plainDecimal = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)
)

const (
	maxInputLen = 32

	// int64 holds at most 19 digits
	maxIntegralDigits = 19
	maxFractionDigits = 30
)

// Amount is a monetary value expressed in integral minor units (kobo).
type Amount int64

// Validate reports ErrInvalidAmount unless the amount is strictly positive.
func (a Amount) Validate() error {
	if a <= 0 {
		return fmt.Errorf("%w: must be positive, got %d", ErrInvalidAmount, int64(a))
	}
	return nil
}

// Add returns a+b, refusing to wrap around on overflow.
func (a Amount) Add(b Amount) (Amount, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, fmt.Errorf("%w: overflow adding %d to %d", ErrInvalidAmount, int64(b), int64(a))
	}
	return a + b, nil
}

// Sub returns a-b, refusing to wrap around on overflow.
func (a Amount) Sub(b Amount) (Amount, error) {
	if b == math.MinInt64 {
		return 0, fmt.Errorf("%w: overflow subtracting %d", ErrInvalidAmount, int64(b))
	}
	return a.Add(-b)
}

// Covers reports whether a is large enough to pay b.
func (a Amount) Covers(b Amount) bool {
	return a >= b
}

// Int64 returns the raw minor-unit value.
func (a Amount) Int64() int64 {
	return int64(a)
}

// Major converts the amount to major units for display.
func (a Amount) Major() decimal.Decimal {
	return decimal.NewFromInt(int64(a)).Div(minorScale)
}

// String renders the amount in major units with two decimal places.
func (a Amount) String() string {
	return a.Major().StringFixed(2)
}

// FromMajor converts a major-unit value into minor units. Values that are not a
// positive whole number of minor units are rejected.
func FromMajor(major decimal.Decimal) (Amount, error) {
	if !major.IsPositive() {
		return 0, fmt.Errorf("%w: must be positive", ErrInvalidAmount)
	}
	// bound the magnitude from the exponent and coefficient alone, before
	// any arithmetic rescales the value
	digits := len(new(big.Int).Abs(major.Coefficient()).String())
	exp := int(major.Exponent())
	if exp < -maxFractionDigits {
		return 0, fmt.Errorf("%w: too many decimal places", ErrInvalidAmount)
	}
	if digits+exp > maxIntegralDigits {
		return 0, fmt.Errorf("%w: too large", ErrInvalidAmount)
	}

	minor := major.Mul(minorScale)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("%w: more than two decimal places", ErrInvalidAmount)
	}
	if minor.GreaterThan(maxMinor) {
		return 0, fmt.Errorf("%w: too large", ErrInvalidAmount)
	}
	return Amount(minor.IntPart()), nil
}

// ParseMajor parses a plain decimal string such as "150.25" into minor units.
// Signs, exponents and hex forms are rejected.
func ParseMajor(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty value", ErrInvalidAmount)
	}
	if len(s) > maxInputLen || !plainDecimal.MatchString(s) {
		return 0, fmt.Errorf("%w: not a plain decimal number", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: not a number", ErrInvalidAmount)
	}
	return FromMajor(d)
}
