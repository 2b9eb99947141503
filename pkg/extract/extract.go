// Package extract finds multi-year financial line items in a parsed sheet and
// normalizes their values. It is pure: no storage, no logging.
package extract

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"finchat/pkg/metric"
	"finchat/pkg/sheet"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// ErrNoYearColumnsFound means no header row with recognizable years was found.
var ErrNoYearColumnsFound = errors.New("no year columns found")

// Layout names the table shape the values were read from.
type Layout string

const (
	// LayoutLong has one fact per row: year, line item, value.
	LayoutLong Layout = "long"
	// LayoutByYear has one row per year and one column per line item.
	LayoutByYear Layout = "by_year"
	// LayoutWide has one row per line item and one column per year.
	LayoutWide Layout = "wide"
)

type Options struct {
	// CompanyName filters rows of documents that carry a company column.
	CompanyName string
	// DefaultCurrency is the company's currency, used when the document names none.
	DefaultCurrency string
	MinYear         int
	MaxYear         int
	// HeaderScanRows bounds how far down the header row is searched for.
	HeaderScanRows int
}

func (o Options) withDefaults() Options {
	if o.MinYear == 0 {
		o.MinYear = 1990
	}
	if o.MaxYear == 0 {
		o.MaxYear = 2100
	}
	if o.HeaderScanRows <= 0 {
		o.HeaderScanRows = 10
	}
	o.DefaultCurrency = strings.ToUpper(strings.TrimSpace(o.DefaultCurrency))
	return o
}

// Observation is one (year, metric) cell. Value is invalid (null) when the cell
// was empty or could not be parsed.
type Observation struct {
	Value    decimal.NullDecimal
	Currency string
	Row      int
}

// Fact is a non-null observation ready to be stored.
type Fact struct {
	Year     int
	Metric   metric.Metric
	Value    decimal.Decimal
	Currency string
}

type Result struct {
	Layout   Layout
	Years    []int
	Values   map[int]map[metric.Metric]Observation
	Warnings []string
	// Scale is the multiplier applied to every value (1 unless a note such as
	// "in thousands" was found).
	Scale     decimal.Decimal
	ScaleNote string
}

// Facts returns the non-null observations ordered by year, then by the fixed
// metric order.
func (r *Result) Facts() []Fact {
	var out []Fact
	for _, y := range r.Years {
		for _, m := range metric.All() {
			obs, ok := r.Values[y][m]
			if !ok || !obs.Value.Valid {
				continue
			}
			out = append(out, Fact{Year: y, Metric: m, Value: obs.Value.Decimal, Currency: obs.Currency})
		}
	}
	return out
}

// ProcessedYears maps each detected year to the metrics stored for it. A year
// whose cells all failed to parse maps to an empty list.
func (r *Result) ProcessedYears() map[int][]metric.Metric {
	out := make(map[int][]metric.Metric, len(r.Years))
	for _, y := range r.Years {
		out[y] = []metric.Metric{}
	}
	for _, f := range r.Facts() {
		out[f.Year] = append(out[f.Year], f.Metric)
	}
	return out
}

type column struct {
	col    int
	year   int
	metric metric.Metric
}

type header struct {
	row         int
	yearCol     int
	metricCol   int
	valueCol    int
	currencyCol int
	companyCol  int
	labelCol    int
	years       []column
	metrics     []column
	warnings    []string
}

type extractor struct {
	g           *sheet.Grid
	opts        Options
	res         *Result
	docCurrency string
	foreign     map[string]bool
}

// Extract reads the grid in the first layout that fits: long, by-year rows,
// then wide.
func Extract(g *sheet.Grid, opts Options) (*Result, error) {
	if g == nil || len(g.Rows) == 0 {
		return nil, ErrNoYearColumnsFound
	}
	x := &extractor{
		g:       g,
		opts:    opts.withDefaults(),
		foreign: map[string]bool{},
		res: &Result{
			Values: map[int]map[metric.Metric]Observation{},
			Scale:  decimal.NewFromInt(1),
		},
	}
	scan := x.opts.HeaderScanRows
	if scan > len(g.Rows) {
		scan = len(g.Rows)
	}

	var (
		h   *header
		run func(*header)
	)
	if h = x.findLongHeader(scan); h != nil {
		x.res.Layout, run = LayoutLong, x.extractLong
	} else if h = x.findByYearHeader(scan); h != nil {
		x.res.Layout, run = LayoutByYear, x.extractByYear
	} else if h = x.findWideHeader(scan); h != nil {
		x.res.Layout, run = LayoutWide, x.extractWide
	} else {
		return nil, ErrNoYearColumnsFound
	}
	x.scanNotes(h.row)
	x.res.Warnings = append(x.res.Warnings, h.warnings...)
	run(h)
	x.finish()
	return x.res, nil
}

func (x *extractor) warnf(format string, args ...any) {
	x.res.Warnings = append(x.res.Warnings, fmt.Sprintf(format, args...))
}

// observe parses one value cell and records it unless (year, m) already has one.
func (x *extractor) observe(year int, m metric.Metric, r, c int, rowCurrency string) {
	if _, dup := x.res.Values[year][m]; dup {
		x.warnf("%s: duplicate %s for %d ignored", cellRef(c, r), metric.Label(m), year)
		return
	}
	raw := x.g.Cell(r, c)
	obs := Observation{Row: r + 1}
	v, cur, err := ParseValue(raw)
	switch {
	case errors.Is(err, ErrNoValue):
		if raw == "" {
			x.warnf("%s: %s %d is empty", cellRef(c, r), metric.Label(m), year)
		} else {
			x.warnf("%s: %s %d has no value (%q)", cellRef(c, r), metric.Label(m), year, raw)
		}
	case err != nil:
		x.warnf("%s: %s %d could not be parsed (%q)", cellRef(c, r), metric.Label(m), year, raw)
	default:
		obs.Value = decimal.NewNullDecimal(v.Mul(x.res.Scale))
		obs.Currency = firstNonEmpty(cur, rowCurrency, x.docCurrency, x.opts.DefaultCurrency)
		if x.opts.DefaultCurrency != "" && obs.Currency != x.opts.DefaultCurrency {
			x.foreign[obs.Currency] = true
		}
	}
	if x.res.Values[year] == nil {
		x.res.Values[year] = map[metric.Metric]Observation{}
	}
	x.res.Values[year][m] = obs
}

func (x *extractor) finish() {
	years := make([]int, 0, len(x.res.Values))
	for y := range x.res.Values {
		years = append(years, y)
	}
	sort.Ints(years)
	x.res.Years = years

	codes := make([]string, 0, len(x.foreign))
	for c := range x.foreign {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	for _, c := range codes {
		x.warnf("values in %s differ from company currency %s and are stored without conversion", c, x.opts.DefaultCurrency)
	}
}

func (x *extractor) companyMatches(cell string) bool {
	if x.opts.CompanyName == "" || strings.TrimSpace(cell) == "" {
		return true
	}
	return metric.Normalize(cell) == metric.Normalize(x.opts.CompanyName)
}

func (x *extractor) rowCurrency(h *header, r int) string {
	if h.currencyCol < 0 {
		return ""
	}
	if c := strings.ToUpper(x.g.Cell(r, h.currencyCol)); IsCurrencyCode(c) {
		return c
	}
	return ""
}

func cellRef(c, r int) string {
	name, err := excelize.CoordinatesToCellName(c+1, r+1)
	if err != nil {
		return fmt.Sprintf("R%dC%d", r+1, c+1)
	}
	return name
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return strings.ToUpper(v)
		}
	}
	return ""
}

func isBlank(row []string) bool {
	for _, c := range row {
		if c != "" {
			return false
		}
	}
	return true
}
