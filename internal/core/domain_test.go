package core

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, NewDate(2024, 2, 29), d)
	assert.Equal(t, "2024-02-29", d.String())

	for _, in := range []string{"", "2024-13-01", "01/02/2024", "2023-02-29", "2024-01-01T00:00:00Z"} {
		_, err := ParseDate(in)
		assert.Truef(t, errors.Is(err, ErrInvalidDate), "input %q", in)
	}
}

func TestDateJSON(t *testing.T) {
	b, err := json.Marshal(NewDate(2024, 1, 5))
	require.NoError(t, err)
	assert.Equal(t, `"2024-01-05"`, string(b))

	var d Date
	require.NoError(t, json.Unmarshal([]byte(`"2024-03-10"`), &d))
	assert.Equal(t, NewDate(2024, 3, 10), d)

	require.NoError(t, json.Unmarshal([]byte(`null`), &d))
	assert.True(t, d.IsZero())

	assert.Error(t, json.Unmarshal([]byte(`"10/03/2024"`), &d))
}

func TestDateScan(t *testing.T) {
	var d Date
	require.NoError(t, d.Scan("2024-01-02"))
	assert.Equal(t, NewDate(2024, 1, 2), d)

	require.NoError(t, d.Scan([]byte("2024-01-03T00:00:00Z")))
	assert.Equal(t, NewDate(2024, 1, 3), d)

	require.NoError(t, d.Scan(time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, NewDate(2024, 1, 4), d)

	assert.Error(t, d.Scan(42))

	v, err := NewDate(2024, 1, 2).Value()
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02", v)
}

func TestSignedAmount(t *testing.T) {
	amt := decimal.RequireFromString("12.50")
	assert.True(t, Transaction{Type: Income, Amount: amt}.SignedAmount().Equal(amt))
	assert.True(t, Transaction{Type: Expense, Amount: amt}.SignedAmount().Equal(amt.Neg()))
	assert.True(t, Transaction{Type: "transfer", Amount: amt}.SignedAmount().IsZero())
}

func TestEnumValidity(t *testing.T) {
	assert.True(t, Income.IsValid())
	assert.False(t, TransactionType("refund").IsValid())
	assert.True(t, StatusCancelled.IsValid())
	assert.False(t, TransactionStatus("void").IsValid())
	assert.True(t, EntityEmployee.IsValid())
	assert.False(t, EntityType("partner").IsValid())
}
