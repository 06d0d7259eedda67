// Package core provides money parsing and formatting utilities.
//
// Amounts are decimal.Decimal values with two fractional digits. Parsing
// accepts user input with either decimal separator; formatting is locale
// aware and driven by the ISO 4217 code of the company.
package core

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// maxIntegerDigits matches the NUMERIC(15,2) amount columns.
const maxIntegerDigits = 13

// amountLimit is the smallest amount with too many integer digits.
var amountLimit = decimal.New(1, maxIntegerDigits)

var printer = message.NewPrinter(language.English)

// ParseAmount converts a user supplied decimal string to an amount with
// proper rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and performs
// half-up rounding on the third decimal place. Signs are rejected: amounts are
// magnitudes and the transaction type carries the direction. Zero is allowed.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount("12,34")  -> 12.34, nil
//	ParseAmount("12.345") -> 12.35, nil
//	ParseAmount("-1")     -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return decimal.Zero, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" && fracPart == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	if intPart == "" {
		intPart = "0"
	}
	if !allDigits(intPart) || !allDigits(fracPart) {
		return decimal.Zero, ErrInvalidAmount
	}
	if len(strings.TrimLeft(intPart, "0")) > maxIntegerDigits {
		return decimal.Zero, fmt.Errorf("%w: too large", ErrInvalidAmount)
	}
	if fracPart == "" {
		fracPart = "0"
	}
	d, err := decimal.NewFromString(intPart + "." + fracPart)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	// Round is half away from zero, which is half-up for magnitudes.
	d = d.Round(2)
	// Rounding can carry into a new integer digit (9.995 -> 10.00).
	if d.GreaterThanOrEqual(amountLimit) {
		return decimal.Zero, fmt.Errorf("%w: too large", ErrInvalidAmount)
	}
	return d, nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// ValidateCurrency reports whether code is a known ISO 4217 currency.
func ValidateCurrency(code string) error {
	if _, err := currency.ParseISO(code); err != nil {
		return fmt.Errorf("unknown currency %q: %w", code, err)
	}
	return nil
}

// FormatCurrency renders value in the given currency using English
// conventions: "$1,234.50", "-$50.00", "€9.00". Currencies without a
// symbol keep their code, as in "CHF 12.00".
func FormatCurrency(value decimal.Decimal, code string) (string, error) {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return "", fmt.Errorf("unknown currency %q: %w", code, err)
	}
	// Round half-up in decimal before the printer sees a float.
	scale, _ := currency.Standard.Rounding(unit)
	rounded := value.Round(int32(scale))
	f, _ := rounded.Abs().Float64()
	out := printer.Sprint(currency.Symbol(unit.Amount(f)))
	if sym, num, ok := strings.Cut(out, " "); ok && !hasLetter(sym) {
		out = sym + num
	}
	if rounded.IsNegative() {
		out = "-" + out
	}
	return out, nil
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
