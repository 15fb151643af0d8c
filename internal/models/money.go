package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrCurrencyMismatch is returned when two Money values with different
// currencies are compared. Cross-currency comparison is always an error,
// never a silent coercion.
var ErrCurrencyMismatch = errors.New("cannot compare money across currencies")

// Money is a non-negative amount in a single currency.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// NewMoney validates and builds a Money value.
func NewMoney(amount decimal.Decimal, currency string) (Money, error) {
	if amount.IsNegative() {
		return Money{}, fmt.Errorf("money amount must not be negative: %s", amount)
	}
	if len(currency) != 3 {
		return Money{}, fmt.Errorf("currency must be a 3-letter code: %q", currency)
	}
	return Money{Amount: amount, Currency: currency}, nil
}

// Cmp compares m against other. It returns -1, 0 or 1 like decimal.Cmp,
// or ErrCurrencyMismatch when the currencies differ.
func (m Money) Cmp(other Money) (int, error) {
	if m.Currency != other.Currency {
		return 0, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return m.Amount.Cmp(other.Amount), nil
}

// LessThan reports whether m < other in the same currency.
func (m Money) LessThan(other Money) (bool, error) {
	c, err := m.Cmp(other)
	if err != nil {
		return false, err
	}
	return c < 0, nil
}

// LessThanOrEqual reports whether m <= other in the same currency.
func (m Money) LessThanOrEqual(other Money) (bool, error) {
	c, err := m.Cmp(other)
	if err != nil {
		return false, err
	}
	return c <= 0, nil
}

// String renders the amount with its currency symbol where one is common.
func (m Money) String() string {
	switch m.Currency {
	case "JPY":
		return "￥" + m.Amount.String()
	case "USD":
		return "$" + m.Amount.StringFixed(2)
	case "EUR":
		return "€" + m.Amount.StringFixed(2)
	case "GBP":
		return "£" + m.Amount.StringFixed(2)
	default:
		return m.Amount.String() + " " + m.Currency
	}
}
