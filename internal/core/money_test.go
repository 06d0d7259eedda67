package core

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"1.0", "1", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{"0.01", "0.01", true},
		{"1.005", "1.01", true}, // half-up rounding
		{"12.344", "12.34", true},
		{" 2.50 ", "2.5", true},
		{".5", "0.5", true},
		{"0", "0", true},
		{"-1", "", false},
		{"+1", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"1,2.3", "", false},
		{".", "", false},
		{"", "", false},
		{"12345678901234", "", false},
		{"9999999999999.99", "9999999999999.99", true},
		{"9999999999999.995", "", false}, // rounds up to 14 integer digits
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(decimal.RequireFromString(tc.out)) {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if !errors.Is(err, ErrInvalidAmount) {
				t.Fatalf("%q expected ErrInvalidAmount, got %v", tc.in, err)
			}
		}
	}
}

func TestFormatCurrency(t *testing.T) {
	cases := []struct {
		value    string
		currency string
		want     string
	}{
		{"1234.5", "USD", "$1,234.50"},
		{"0", "USD", "$0.00"},
		{"-50", "USD", "-$50.00"},
		{"9", "EUR", "€9.00"},
		{"9", "eur", "€9.00"},
		{"1234567.891", "USD", "$1,234,567.89"},
		{"-0.001", "USD", "$0.00"},
		{"1.005", "USD", "$1.01"},
		{"2.675", "USD", "$2.68"},
		{"-1.005", "USD", "-$1.01"},
	}
	for _, tc := range cases {
		got, err := FormatCurrency(decimal.RequireFromString(tc.value), tc.currency)
		if err != nil {
			t.Fatalf("%s %s: unexpected error %v", tc.value, tc.currency, err)
		}
		if got != tc.want {
			t.Fatalf("%s %s: expected %q, got %q", tc.value, tc.currency, tc.want, got)
		}
	}
}

func TestFormatCurrencyUnknownCode(t *testing.T) {
	if _, err := FormatCurrency(decimal.NewFromInt(1), "NOPE"); err == nil {
		t.Fatalf("expected error for unknown currency")
	}
	if err := ValidateCurrency("USD"); err != nil {
		t.Fatalf("USD should be valid: %v", err)
	}
}
