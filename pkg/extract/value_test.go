package extract

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValue(t *testing.T) {
	cases := []struct {
		in       string
		want     string
		currency string
	}{
		{"(1,234)", "-1234", ""},
		{"1,234.50", "1234.5", ""},
		{"1.234,50 €", "1234.5", "EUR"},
		{"$2.5bn", "2500000000", "USD"},
		{"1234-", "-1234", ""},
		{"12,5", "12.5", ""},
		{"1 234 567", "1234567", ""},
		{"1.234.567", "1234567", ""},
		{"USD 1,000", "1000", "USD"},
		{"(USD 1,234)", "-1234", "USD"},
		{"1.5k", "1500", ""},
		{"2.0E+3", "2000", ""},
		{"Rp 1.000.000", "1000000", "IDR"},
		{"0", "0", ""},
	}
	for _, tc := range cases {
		got, cur, err := ParseValue(tc.in)
		require.NoError(t, err, "input %q", tc.in)
		assert.True(t, got.Equal(decimal.RequireFromString(tc.want)), "input %q: got %s want %s", tc.in, got, tc.want)
		assert.Equal(t, tc.currency, cur, "input %q", tc.in)
	}
}

func TestParseValueMissing(t *testing.T) {
	for _, in := range []string{"", "  ", "N/A", "n/a", "-", "—", "null"} {
		_, _, err := ParseValue(in)
		assert.ErrorIs(t, err, ErrNoValue, "input %q", in)
	}
	for _, in := range []string{"abc", "12%", "1,2,3.4.5", "12 apples"} {
		_, _, err := ParseValue(in)
		assert.ErrorIs(t, err, ErrInvalidNumber, "input %q", in)
	}
}

func TestParseYear(t *testing.T) {
	for in, want := range map[string]int{"2023": 2023, "FY2023": 2023, "FY 2023": 2023, "2023A": 2023, "2024E": 2024, "2023.0": 2023, "Year 2021": 2021} {
		got, ok := parseYear(in, 1990, 2100)
		assert.True(t, ok, "input %q", in)
		assert.Equal(t, want, got)
	}
	for _, in := range []string{"1985", "2023-2024", "12023", "Q1 2023", "revenue"} {
		_, ok := parseYear(in, 1990, 2100)
		assert.False(t, ok, "input %q", in)
	}
}
