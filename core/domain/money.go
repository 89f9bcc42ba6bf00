package domain

import (
	"fmt"
	"math"
)

// Money is a fixed-point decimal amount: Minor units at the given Scale.
// Scale 2 with Minor 100050 represents 1000.50. Monetary amounts are never
// floats (spec §6) so that repeated debit/credit arithmetic never drifts.
type Money struct {
	Minor    int64
	Scale    int
	Currency string
}

// Float64 renders the amount as a float for display only; never use this
// for arithmetic that feeds back into the ledger.
func (m Money) Float64() float64 {
	return float64(m.Minor) / math.Pow10(m.Scale)
}

func (m Money) String() string {
	return fmt.Sprintf("%.*f %s", m.Scale, m.Float64(), m.Currency)
}

// Add returns m+other. Panics on scale/currency mismatch — callers must
// normalize before combining amounts from different sources.
func (m Money) Add(other Money) Money {
	m.mustMatch(other)
	return Money{Minor: m.Minor + other.Minor, Scale: m.Scale, Currency: m.Currency}
}

// Sub returns m-other.
func (m Money) Sub(other Money) Money {
	m.mustMatch(other)
	return Money{Minor: m.Minor - other.Minor, Scale: m.Scale, Currency: m.Currency}
}

// GreaterOrEqual reports whether m >= other.
func (m Money) GreaterOrEqual(other Money) bool {
	m.mustMatch(other)
	return m.Minor >= other.Minor
}

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool { return m.Minor == 0 }

func (m Money) mustMatch(other Money) {
	if m.Scale != other.Scale || m.Currency != other.Currency {
		panic(fmt.Sprintf("money mismatch: %s vs %s", m, other))
	}
}
