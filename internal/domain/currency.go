package domain

import (
	"errors"
	"strings"
)

var ErrUnsupportedCurrency = errors.New("unsupported currency")

// Currency is one of the closed set of codes a cart can be priced in.
type Currency string

const (
	CurrencyEG Currency = "EG"
	CurrencyUS Currency = "US"
)

// ParseCurrency accepts "EG" or "US" in any letter case.
func ParseCurrency(code string) (Currency, error) {
	switch Currency(strings.ToUpper(strings.TrimSpace(code))) {
	case CurrencyEG:
		return CurrencyEG, nil
	case CurrencyUS:
		return CurrencyUS, nil
	}
	return "", ErrUnsupportedCurrency
}

func (c Currency) Valid() bool {
	return c == CurrencyEG || c == CurrencyUS
}

func (c Currency) String() string {
	return string(c)
}
