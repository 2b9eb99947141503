package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var currencyCodes = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "JPY": true, "CNY": true, "INR": true, "IDR": true,
	"SGD": true, "AUD": true, "CAD": true, "CHF": true, "HKD": true, "KRW": true, "MYR": true,
	"THB": true, "PHP": true, "VND": true, "BRL": true, "MXN": true, "ZAR": true, "SEK": true,
	"NOK": true, "DKK": true, "NZD": true, "AED": true, "SAR": true, "TWD": true, "PLN": true,
}

// longest symbols first so "US$" wins over "$"
var currencySymbols = []struct{ symbol, code string }{
	{"US$", "USD"}, {"S$", "SGD"}, {"A$", "AUD"}, {"C$", "CAD"}, {"HK$", "HKD"}, {"Rp", "IDR"}, {"RM", "MYR"},
	{"$", "USD"}, {"€", "EUR"}, {"£", "GBP"}, {"¥", "JPY"}, {"₹", "INR"}, {"₩", "KRW"}, {"₫", "VND"},
}

var codeWordRE = regexp.MustCompile(`\b[A-Z]{3}\b`)

// IsCurrencyCode reports whether code is a known ISO 4217 code.
func IsCurrencyCode(code string) bool {
	return currencyCodes[strings.ToUpper(strings.TrimSpace(code))]
}

// stripCurrency removes a leading or trailing currency symbol or code.
func stripCurrency(s string) (code, rest string, ok bool) {
	for _, cs := range currencySymbols {
		if strings.HasPrefix(s, cs.symbol) {
			return cs.code, strings.TrimSpace(s[len(cs.symbol):]), true
		}
		if strings.HasSuffix(s, cs.symbol) {
			return cs.code, strings.TrimSpace(s[:len(s)-len(cs.symbol)]), true
		}
	}
	if len(s) > 3 {
		if c := strings.ToUpper(s[:3]); currencyCodes[c] && !isLetter(s[3]) {
			return c, strings.TrimSpace(s[3:]), true
		}
		if c := strings.ToUpper(s[len(s)-3:]); currencyCodes[c] && !isLetter(s[len(s)-4]) {
			return c, strings.TrimSpace(s[:len(s)-3]), true
		}
	}
	return "", s, false
}

// currencyInText finds a currency named in a note such as "Amounts in EUR" or
// "(in $ thousands)".
func currencyInText(s string) string {
	for _, m := range codeWordRE.FindAllString(s, -1) {
		if currencyCodes[m] {
			return m
		}
	}
	for _, cs := range currencySymbols {
		if utf8.RuneCountInString(cs.symbol) > 1 && cs.symbol != "US$" && cs.symbol != "HK$" {
			// two-letter symbols like "RM" are too ambiguous inside prose
			continue
		}
		if strings.Contains(s, cs.symbol) {
			return cs.code
		}
	}
	return ""
}

func isLetter(b byte) bool { return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') }
