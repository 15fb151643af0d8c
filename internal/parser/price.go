package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/takuyadev/amazon-price-watcher/internal/models"
)

// ErrUnparsablePrice is returned when raw price text matches none of the
// supported surface forms. The parser never guesses an amount.
var ErrUnparsablePrice = errors.New("unparsable price text")

var symbolCurrencies = map[string]string{
	"￥": "JPY",
	"¥":  "JPY",
	"$":  "USD",
	"€":  "EUR",
	"£":  "GBP",
}

var suffixCurrencies = map[string]string{
	"円":   "JPY",
	"JPY": "JPY",
	"USD": "USD",
	"EUR": "EUR",
	"GBP": "GBP",
}

// amountPattern matches a grouped decimal amount like 1,234 or 12,345.67.
var amountPattern = regexp.MustCompile(`^[0-9][0-9,]*(?:\.[0-9]+)?$`)

// ParsePrice normalizes one localized price string into a Money value.
//
// Supported surface forms, all with comma grouping and dot decimals:
//
//	￥1,234        symbol prefix
//	1,234円        unit-word suffix
//	1,234 円       unit-word suffix with separating space
//	1234JPY        currency-code suffix
//
// Unrecognized text yields ErrUnparsablePrice rather than a wrong number.
func ParsePrice(raw string) (models.Money, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return models.Money{}, fmt.Errorf("%w: empty text", ErrUnparsablePrice)
	}

	amount := text
	currency := ""

	for sym, code := range symbolCurrencies {
		if strings.HasPrefix(text, sym) {
			amount = strings.TrimSpace(strings.TrimPrefix(text, sym))
			currency = code
			break
		}
	}
	if currency == "" {
		for suffix, code := range suffixCurrencies {
			if strings.HasSuffix(text, suffix) {
				amount = strings.TrimSpace(strings.TrimSuffix(text, suffix))
				currency = code
				break
			}
		}
	}
	if currency == "" {
		return models.Money{}, fmt.Errorf("%w: no currency marker in %q", ErrUnparsablePrice, raw)
	}

	if !amountPattern.MatchString(amount) {
		return models.Money{}, fmt.Errorf("%w: %q", ErrUnparsablePrice, raw)
	}

	d, err := decimal.NewFromString(strings.ReplaceAll(amount, ",", ""))
	if err != nil {
		return models.Money{}, fmt.Errorf("%w: %q: %v", ErrUnparsablePrice, raw, err)
	}

	money, err := models.NewMoney(d, currency)
	if err != nil {
		return models.Money{}, fmt.Errorf("%w: %q: %v", ErrUnparsablePrice, raw, err)
	}
	return money, nil
}
