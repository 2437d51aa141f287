package enums

import (
	"fmt"
	"strings"
)

// Currency is an ISO 4217 code Paystack settles in.
type Currency string

const (
	CurrencyNGN Currency = "NGN"
	CurrencyGHS Currency = "GHS"
	CurrencyZAR Currency = "ZAR"
	CurrencyKES Currency = "KES"
	CurrencyUSD Currency = "USD"
)

func (c Currency) String() string { return string(c) }

func (c Currency) IsValid() bool {
	switch c {
	case CurrencyNGN, CurrencyGHS, CurrencyZAR, CurrencyKES, CurrencyUSD:
		return true
	}
	return false
}

// ParseCurrency accepts any casing and surrounding whitespace.
func ParseCurrency(value string) (Currency, error) {
	if c := Currency(strings.ToUpper(strings.TrimSpace(value))); c.IsValid() {
		return c, nil
	}
	return "", fmt.Errorf("unsupported currency %q", value)
}
