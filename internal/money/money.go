// Package money converts between user-facing decimals and the fixed-point
// integers every other package computes with: paise for money and
// milli-units for quantities. Nothing downstream divides by anything but a
// power of ten until a value is formatted for display.
package money

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// ErrOutOfRange reports a value the fixed-point representation cannot hold.
var ErrOutOfRange = errors.New("value out of range")

const (
	minorPerMajor = 2 // paise per rupee, as a power of ten
	milliPerUnit  = 3 // milli-units per unit, as a power of ten

	// MilliPerUnit is one whole unit of quantity.
	MilliPerUnit int64 = 1000

	// MaxMinor bounds a single amount: ₹1,000 crore.
	MaxMinor int64 = 1_000_000_000_000
	// MaxMilli bounds a single quantity: one million units.
	MaxMilli int64 = 1_000_000_000
)

// ToMinor converts rupees to paise, rounding half away from zero. Amounts
// beyond ±MaxMinor paise fail with ErrOutOfRange.
func ToMinor(rupees decimal.Decimal) (int64, error) {
	return bounded(rupees.Shift(minorPerMajor), MaxMinor)
}

// ToMinorFloat is ToMinor for float inputs. Non-finite values become 0.
func ToMinorFloat(rupees float64) (int64, error) {
	if math.IsNaN(rupees) || math.IsInf(rupees, 0) {
		return 0, nil
	}
	return ToMinor(decimal.NewFromFloat(rupees))
}

// FromMinor converts paise back to rupees.
func FromMinor(paise int64) decimal.Decimal {
	return decimal.New(paise, -minorPerMajor)
}

// ToMilli converts a fractional quantity to milli-units, rounding half away
// from zero. Quantities beyond ±MaxMilli fail with ErrOutOfRange.
func ToMilli(qty decimal.Decimal) (int64, error) {
	return bounded(qty.Shift(milliPerUnit), MaxMilli)
}

// ToMilliFloat is ToMilli for float inputs. Non-finite values become 0.
func ToMilliFloat(qty float64) (int64, error) {
	if math.IsNaN(qty) || math.IsInf(qty, 0) {
		return 0, nil
	}
	return ToMilli(decimal.NewFromFloat(qty))
}

func bounded(shifted decimal.Decimal, limit int64) (int64, error) {
	rounded := shifted.Round(0)
	if rounded.Abs().GreaterThan(decimal.NewFromInt(limit)) {
		return 0, fmt.Errorf("%w: %s exceeds %d", ErrOutOfRange, rounded.String(), limit)
	}
	return rounded.IntPart(), nil
}

// FromMilli converts milli-units back to a fractional quantity.
func FromMilli(milli int64) decimal.Decimal {
	return decimal.New(milli, -milliPerUnit)
}

// LineTotal is round(price * quantity / 1000) where price is in paise and
// quantity in milli-units.
func LineTotal(pricePaise int64, qtyMilli int64) (int64, error) {
	total := decimal.NewFromInt(pricePaise).
		Mul(decimal.NewFromInt(qtyMilli)).
		Shift(-milliPerUnit).
		Round(0)
	if !total.BigInt().IsInt64() {
		return 0, fmt.Errorf("%w: line total %s", ErrOutOfRange, total.String())
	}
	return total.IntPart(), nil
}

// Add sums two fixed-point values, failing instead of wrapping.
func Add(a int64, b int64) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, fmt.Errorf("%w: %d + %d", ErrOutOfRange, a, b)
	}
	return a + b, nil
}

// FormatMinor renders paise for humans, e.g. "₹12.50".
func FormatMinor(paise int64) string {
	return "₹" + FromMinor(paise).StringFixed(minorPerMajor)
}

// FormatMilli renders a quantity without trailing zeros, e.g. "1.5".
func FormatMilli(milli int64) string {
	return FromMilli(milli).String()
}
