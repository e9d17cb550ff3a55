package enums

import (
	"fmt"
	"strings"
)

// Currency is a lowercase ISO 4217 code in the form the payment gateway
// expects. Every supported currency has two minor-unit digits.
type Currency string

const (
	CurrencyUSD Currency = "usd"
	CurrencyCAD Currency = "cad"
	CurrencyEUR Currency = "eur"
	CurrencyGBP Currency = "gbp"

	// DefaultCurrency is assumed when a request omits the currency.
	DefaultCurrency = CurrencyUSD
)

var supportedCurrencies = map[Currency]struct{}{
	CurrencyUSD: {},
	CurrencyCAD: {},
	CurrencyEUR: {},
	CurrencyGBP: {},
}

func (c Currency) String() string { return string(c) }

func (c Currency) IsValid() bool {
	_, ok := supportedCurrencies[c]
	return ok
}

// ParseCurrency accepts any casing and surrounding space. Empty input yields
// DefaultCurrency.
func ParseCurrency(value string) (Currency, error) {
	c := Currency(strings.ToLower(strings.TrimSpace(value)))
	if c == "" {
		return DefaultCurrency, nil
	}
	if !c.IsValid() {
		return "", fmt.Errorf("unsupported currency %q", value)
	}
	return c, nil
}

// UnmarshalText lets config and JSON decoding reject unknown codes.
func (c *Currency) UnmarshalText(text []byte) error {
	parsed, err := ParseCurrency(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
