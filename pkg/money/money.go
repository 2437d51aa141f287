// Package money converts between major currency units stored in the ledger
// and the minor units payment gateways expect.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ToMinor returns amount in minor units (kobo, cents). Amounts with more than
// two decimal places are rejected rather than rounded.
func ToMinor(amount decimal.Decimal) (int64, error) {
	minor := amount.Mul(hundred)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has sub-minor precision", amount.String())
	}
	return minor.IntPart(), nil
}

// FromMinor converts minor units back to a two-decimal major amount.
func FromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// Valid reports whether amount is positive with at most two decimal places.
func Valid(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.Equal(amount.Round(2))
}
