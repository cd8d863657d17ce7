package utils

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrWrongCount    = errors.New("wrong number of values")
)

var hundred = decimal.NewFromInt(100)

var printer = message.NewPrinter(language.Russian)

// FloorCents cuts d down to two decimals (floor, not rounding).
func FloorCents(d decimal.Decimal) decimal.Decimal {
	return d.Shift(2).Floor().Shift(-2)
}

// PercentOf returns floor(amount * percent / 100 * 100) / 100.
func PercentOf(amount, percent decimal.Decimal) decimal.Decimal {
	return FloorCents(amount.Mul(percent).Div(hundred))
}

func normalizeNumber(text string) string {
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, " ", "")
	text = strings.ReplaceAll(text, "\u00a0", "")
	return text
}

// ParseAmount parses a user-entered positive money amount. Both "10.5" and
// "10,5" are accepted; more than two decimals is an error.
func ParseAmount(text string) (decimal.Decimal, error) {
	text = strings.ReplaceAll(normalizeNumber(text), ",", ".")
	if text == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if !d.IsPositive() || !d.Equal(FloorCents(d)) {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ParseNumbers parses exactly n comma-separated numbers. A single value may
// use a comma as the decimal separator.
func ParseNumbers(text string, n int) ([]decimal.Decimal, error) {
	text = normalizeNumber(text)
	var parts []string
	if n == 1 {
		parts = []string{strings.ReplaceAll(text, ",", ".")}
	} else {
		parts = strings.Split(text, ",")
	}
	if len(parts) != n {
		return nil, ErrWrongCount
	}

	values := make([]decimal.Decimal, 0, n)
	for _, p := range parts {
		d, err := decimal.NewFromString(p)
		if err != nil {
			return nil, ErrInvalidAmount
		}
		values = append(values, d)
	}
	return values, nil
}

// FormatAmount renders an amount with Russian grouping, e.g. "15 000,00".
func FormatAmount(d decimal.Decimal) string {
	return printer.Sprint(number.Decimal(d.InexactFloat64(), number.Scale(2)))
}
