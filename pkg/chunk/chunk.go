// Package chunk renders stored facts into short natural-language retrieval
// chunks. Build is a pure function of the facts it is given.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"finchat/models"
	"finchat/pkg/metric"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Metadata keys stored alongside every chunk.
const (
	KeyCompanyID = "company_id"
	KeyYear      = "year"
	KeyMetric    = "metric"
	KeySource    = "source"
)

type Chunk struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`

	CompanyID uint          `json:"-"`
	Year      int           `json:"-"`
	Metric    metric.Metric `json:"-"`
}

var printer = message.NewPrinter(language.English)

// Summary is the metric marker of the per-year summary chunk. It sorts after
// every known metric.
const Summary metric.Metric = "summary"

// Build returns one chunk per fact ordered by year, then by the fixed metric
// order, and closes every (company, year) with a summary chunk listing all of
// that year's figures. Unknown metrics are skipped.
func Build(facts []models.FinancialFact) []Chunk {
	sorted := make([]models.FinancialFact, 0, len(facts))
	for _, f := range facts {
		if metric.Valid(f.Metric) {
			sorted = append(sorted, f)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.CompanyID != b.CompanyID {
			return a.CompanyID < b.CompanyID
		}
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return metric.Order(a.Metric) < metric.Order(b.Metric)
	})

	out := make([]Chunk, 0, len(sorted)+len(sorted)/4+1)
	start := 0
	for i, f := range sorted {
		source := ""
		if f.UploadBatchID != nil {
			source = "upload_" + strconv.FormatUint(uint64(*f.UploadBatchID), 10)
		}
		out = append(out, Chunk{
			ID:        ID(f.CompanyID, f.Year, f.Metric),
			Text:      Text(f.Year, f.Metric, f.Value, f.Currency),
			Metadata:  metadata(f.CompanyID, f.Year, f.Metric, source),
			CompanyID: f.CompanyID,
			Year:      f.Year,
			Metric:    f.Metric,
		})
		if i+1 == len(sorted) || sorted[i+1].CompanyID != f.CompanyID || sorted[i+1].Year != f.Year {
			out = append(out, summary(sorted[start:i+1]))
			start = i + 1
		}
	}
	return out
}

// summary renders the facts of one company and year into a single chunk.
func summary(group []models.FinancialFact) Chunk {
	first := group[0]
	parts := make([]string, 0, len(group))
	for _, f := range group {
		parts = append(parts, phrase(f.Metric, f.Value, f.Currency))
	}
	return Chunk{
		ID:        ID(first.CompanyID, first.Year, Summary),
		Text:      fmt.Sprintf("Financial summary for fiscal year %d: %s.", first.Year, strings.Join(parts, "; ")),
		Metadata:  metadata(first.CompanyID, first.Year, Summary, ""),
		CompanyID: first.CompanyID,
		Year:      first.Year,
		Metric:    Summary,
	}
}

func metadata(companyID uint, year int, m metric.Metric, source string) map[string]string {
	return map[string]string{
		KeyCompanyID: strconv.FormatUint(uint64(companyID), 10),
		KeyYear:      strconv.Itoa(year),
		KeyMetric:    string(m),
		KeySource:    source,
	}
}

// ID is deterministic so a re-upload replaces the same vector entry.
func ID(companyID uint, year int, m metric.Metric) string {
	return fmt.Sprintf("company_%d_year_%d_metric_%s", companyID, year, m)
}

// Text renders "In fiscal year 2023, Revenue was 1,234,000 USD."
func Text(year int, m metric.Metric, v decimal.Decimal, currency string) string {
	return fmt.Sprintf("In fiscal year %d, %s.", year, phrase(m, v, currency))
}

func phrase(m metric.Metric, v decimal.Decimal, currency string) string {
	s := metric.Label(m) + " was " + FormatValue(v)
	if currency != "" {
		s += " " + currency
	}
	return s
}

// FormatValue groups the integer part with commas and keeps up to two decimals.
func FormatValue(v decimal.Decimal) string {
	v = v.Round(2)
	intPart := v.Truncate(0)
	frac := v.Sub(intPart).Abs()
	s := printer.Sprintf("%d", intPart.IntPart())
	if v.IsNegative() && intPart.IsZero() {
		s = "-" + s
	}
	if !frac.IsZero() {
		// "0.5" -> ".5"
		s += frac.StringFixed(2)[1:]
		for s[len(s)-1] == '0' {
			s = s[:len(s)-1]
		}
	}
	return s
}

// Fingerprint summarizes a chunk set. Equal fact state gives an equal fingerprint.
func Fingerprint(chunks []Chunk) string {
	h := sha256.New()
	for _, c := range chunks {
		h.Write([]byte(c.ID))
		h.Write([]byte{0})
		h.Write([]byte(c.Text))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
