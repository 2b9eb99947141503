package extract

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrNoValue marks an empty or explicitly missing cell ("N/A", "-").
	ErrNoValue = errors.New("no value")
	// ErrInvalidNumber marks a cell that carries text which is not a number.
	ErrInvalidNumber = errors.New("not a number")
)

var (
	nullTokens = map[string]bool{
		"": true, "-": true, "--": true, "—": true, "–": true, "n/a": true, "na": true, "n.a.": true,
		"nil": true, "null": true, "none": true, "nm": true, "n.m.": true, "#n/a": true, "#value!": true, "#div/0!": true,
	}
	groupingRE = regexp.MustCompile(`^\d{1,3}(,\d{3})+$`)
	dotGroupRE = regexp.MustCompile(`^\d{1,3}(\.\d{3}){2,}$`)
	plainRE    = regexp.MustCompile(`^\d+(\.\d+)?$`)
	expRE      = regexp.MustCompile(`^\d+(\.\d+)?[eE][+-]?\d+$`)

	suffixes = []struct {
		text string
		mult decimal.Decimal
	}{
		{"thousand", decimal.NewFromInt(1_000)},
		{"million", decimal.NewFromInt(1_000_000)},
		{"billion", decimal.NewFromInt(1_000_000_000)},
		{"bn", decimal.NewFromInt(1_000_000_000)},
		{"mn", decimal.NewFromInt(1_000_000)},
		{"mm", decimal.NewFromInt(1_000_000)},
		{"k", decimal.NewFromInt(1_000)},
		{"m", decimal.NewFromInt(1_000_000)},
		{"b", decimal.NewFromInt(1_000_000_000)},
	}
)

// ParseValue normalizes a monetary cell into an exact decimal and the currency
// written in the cell, if any.
//
//	"(1,234)"    -> -1234
//	"1,234.50"   -> 1234.5
//	"1.234,50 €" -> 1234.5 EUR
//	"$2.5bn"     -> 2500000000 USD
//	"N/A"        -> ErrNoValue
func ParseValue(raw string) (decimal.Decimal, string, error) {
	s := strings.TrimSpace(strings.ReplaceAll(raw, "\u00a0", " "))
	if nullTokens[strings.ToLower(s)] {
		return decimal.Zero, "", ErrNoValue
	}

	neg := false
	currency := ""
	// signs and currency markers may nest in either order: "$(1,234)", "(USD 1,234)"
	for i := 0; i < 3; i++ {
		if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
			neg = !neg
			s = strings.TrimSpace(s[1 : len(s)-1])
		}
		if strings.HasSuffix(s, "-") && len(s) > 1 {
			neg = !neg
			s = strings.TrimSpace(s[:len(s)-1])
		}
		if r := []rune(s); len(r) > 1 && (r[0] == '-' || r[0] == '−') {
			neg = !neg
			s = strings.TrimSpace(string(r[1:]))
		}
		s = strings.TrimSpace(strings.TrimPrefix(s, "+"))
		if code, rest, ok := stripCurrency(s); ok {
			currency = code
			s = rest
		}
	}

	lower := strings.ToLower(s)
	mult := decimal.NewFromInt(1)
	for _, sfx := range suffixes {
		if strings.HasSuffix(lower, sfx.text) && len(lower) > len(sfx.text) {
			head := strings.TrimSpace(lower[:len(lower)-len(sfx.text)])
			if head != "" && isDigit(head[len(head)-1]) {
				mult = sfx.mult
				s = head
				break
			}
		}
	}

	num, err := normalizeSeparators(s)
	if err != nil {
		return decimal.Zero, currency, fmt.Errorf("%w: %q", ErrInvalidNumber, raw)
	}
	d, err := decimal.NewFromString(num)
	if err != nil {
		return decimal.Zero, currency, fmt.Errorf("%w: %q", ErrInvalidNumber, raw)
	}
	d = d.Mul(mult)
	if neg {
		d = d.Neg()
	}
	return d, currency, nil
}

// normalizeSeparators removes grouping characters and turns the decimal
// separator into a dot. When both "." and "," appear the last one is the
// decimal separator. A lone comma is a thousands separator only when it forms
// regular groups of three ("1,234,567"), otherwise it is a decimal comma.
func normalizeSeparators(s string) (string, error) {
	s = strings.NewReplacer(" ", "", "'", "", "’", "", "\u00a0", "", "\u202f", "", "_", "").Replace(s)
	if s == "" {
		return "", ErrInvalidNumber
	}
	if expRE.MatchString(s) {
		// raw spreadsheet values may come in scientific notation
		return s, nil
	}
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if groupingRE.MatchString(s) {
			s = strings.ReplaceAll(s, ",", "")
		} else if strings.Count(s, ",") == 1 {
			s = strings.Replace(s, ",", ".", 1)
		}
	case lastDot >= 0:
		if dotGroupRE.MatchString(s) {
			s = strings.ReplaceAll(s, ".", "")
		}
	}
	if !plainRE.MatchString(s) {
		return "", ErrInvalidNumber
	}
	return s, nil
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
