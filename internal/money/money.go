// Package money provides immutable fixed-point value types for monetary
// amounts and energy quantities. All rounding happens at construction;
// arithmetic on constructed values is exact.
package money

import (
	"fmt"
	"math"

	"github.com/gridline-energy/gridline/internal/shared"
)

// DKK is the settlement currency for the Danish price areas.
const DKK = "DKK"

// KWh is the quantity unit for metered energy.
const KWh = "kWh"

// Money is an amount in hundredths of a currency unit.
type Money struct {
	cents    int64
	currency string
}

// FromFloat rounds v half-away-from-zero to 2 decimals.
func FromFloat(v float64, currency string) Money {
	return Money{cents: roundInt64(v * 100), currency: currency}
}

// FromCents constructs Money from an exact hundredths count.
func FromCents(cents int64, currency string) Money {
	return Money{cents: cents, currency: currency}
}

// Zero returns the zero amount in the given currency.
func Zero(currency string) Money {
	return Money{currency: currency}
}

// Currency returns the ISO currency code.
func (m Money) Currency() string { return m.currency }

// Cents returns the amount in hundredths.
func (m Money) Cents() int64 { return m.cents }

// Float returns the amount as a float64, exact to 2 decimals.
func (m Money) Float() float64 { return float64(m.cents) / 100 }

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool { return m.cents == 0 }

// Neg returns the negated amount.
func (m Money) Neg() Money { return Money{cents: -m.cents, currency: m.currency} }

// Add returns m+other, rejecting currency mismatches.
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("%w: currency mismatch %s vs %s", shared.ErrValidation, m.currency, other.currency)
	}
	return Money{cents: m.cents + other.cents, currency: m.currency}, nil
}

// Sub returns m-other, rejecting currency mismatches.
func (m Money) Sub(other Money) (Money, error) {
	return m.Add(other.Neg())
}

// String renders the amount with 2 decimals and the currency code.
func (m Money) String() string {
	return fmt.Sprintf("%.2f %s", m.Float(), m.currency)
}

// Quantity is an energy quantity in thousandths of a unit.
type Quantity struct {
	milli int64
	unit  string
}

// QuantityFromFloat rounds v half-away-from-zero to 3 decimals.
func QuantityFromFloat(v float64, unit string) Quantity {
	return Quantity{milli: roundInt64(v * 1000), unit: unit}
}

// QuantityFromMilli constructs a Quantity from an exact thousandths count.
func QuantityFromMilli(milli int64, unit string) Quantity {
	return Quantity{milli: milli, unit: unit}
}

// Unit returns the quantity unit.
func (q Quantity) Unit() string { return q.unit }

// Milli returns the quantity in thousandths.
func (q Quantity) Milli() int64 { return q.milli }

// Float returns the quantity as a float64, exact to 3 decimals.
func (q Quantity) Float() float64 { return float64(q.milli) / 1000 }

// Add returns q+other, rejecting unit mismatches.
func (q Quantity) Add(other Quantity) (Quantity, error) {
	if q.unit != other.unit {
		return Quantity{}, fmt.Errorf("%w: unit mismatch %s vs %s", shared.ErrValidation, q.unit, other.unit)
	}
	return Quantity{milli: q.milli + other.milli, unit: q.unit}, nil
}

// String renders the quantity with 3 decimals and the unit.
func (q Quantity) String() string {
	return fmt.Sprintf("%.3f %s", q.Float(), q.unit)
}

func roundInt64(v float64) int64 {
	return int64(math.Round(v))
}
