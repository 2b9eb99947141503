package extract

import (
	"errors"
	"fmt"
	"regexp"

	"finchat/pkg/metric"

	"github.com/shopspring/decimal"
)

func headerSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

var (
	yearHeaders     = headerSet("year", "fiscal year", "fy", "period", "financial year")
	metricHeaders   = headerSet("metric", "line item", "item", "account", "category", "description", "particulars")
	valueHeaders    = headerSet("value", "amount", "balance")
	currencyHeaders = headerSet("currency", "ccy", "currency code")
	companyHeaders  = headerSet("company", "company name", "entity", "entity name")
)

var scaleNotes = []struct {
	re   *regexp.Regexp
	mult decimal.Decimal
}{
	{regexp.MustCompile(`(?i)(\bin\s+billions\b|\bbillions\s+of\b|\(\s*(in\s+)?(bn|billions?)\s*\)|\bin\s+bn\b)`), decimal.NewFromInt(1_000_000_000)},
	{regexp.MustCompile(`(?i)(\bin\s+millions\b|\bmillions\s+of\b|\(\s*(in\s+)?(mn|mm|millions?)\s*\)|\bin\s+(mn|mm)\b)`), decimal.NewFromInt(1_000_000)},
	{regexp.MustCompile(`(?i)(\bin\s+thousands\b|\bthousands\s+of\b|\(\s*000s?\s*\)|[$€£']\s?000s?\b|\b000s\b)`), decimal.NewFromInt(1_000)},
}

func isScaleNote(cell string) bool {
	for _, sn := range scaleNotes {
		if sn.re.MatchString(cell) {
			return true
		}
	}
	return false
}

// scanNotes looks for a scale note and a document currency in the rows above
// and including the header.
func (x *extractor) scanNotes(headerRow int) {
	for r := 0; r <= headerRow && r < len(x.g.Rows); r++ {
		for _, cell := range x.g.Rows[r] {
			if cell == "" {
				continue
			}
			if _, ok := parseYear(cell, x.opts.MinYear, x.opts.MaxYear); ok {
				continue
			}
			if x.res.ScaleNote == "" {
				for _, sn := range scaleNotes {
					if sn.re.MatchString(cell) {
						x.res.Scale = sn.mult
						x.res.ScaleNote = cell
						x.warnf("values multiplied by %s (note %q)", sn.mult.String(), cell)
						break
					}
				}
			}
			if x.docCurrency == "" && hasLetter(cell) {
				x.docCurrency = currencyInText(cell)
			}
		}
	}
}

// classify locates the named header columns of row r.
func (x *extractor) classify(r int) *header {
	h := &header{row: r, yearCol: -1, metricCol: -1, valueCol: -1, currencyCol: -1, companyCol: -1, labelCol: -1}
	for c, cell := range x.g.Rows[r] {
		n := metric.Normalize(cell)
		switch {
		case n == "":
		case yearHeaders[n] && h.yearCol < 0:
			h.yearCol = c
		case metricHeaders[n] && h.metricCol < 0:
			h.metricCol = c
		case valueHeaders[n] && h.valueCol < 0:
			h.valueCol = c
		case currencyHeaders[n] && h.currencyCol < 0:
			h.currencyCol = c
		case companyHeaders[n] && h.companyCol < 0:
			h.companyCol = c
		}
	}
	return h
}

func (x *extractor) findLongHeader(scan int) *header {
	for r := 0; r < scan; r++ {
		h := x.classify(r)
		if h.yearCol >= 0 && h.metricCol >= 0 && h.valueCol >= 0 {
			return h
		}
	}
	return nil
}

func (x *extractor) findByYearHeader(scan int) *header {
	for r := 0; r < scan; r++ {
		h := x.classify(r)
		if h.yearCol < 0 {
			continue
		}
		var (
			cols  []column
			cands []candidate
		)
		for c, cell := range x.g.Rows[r] {
			if cell == "" || c == h.yearCol || c == h.currencyCol || c == h.companyCol {
				continue
			}
			m, q := metric.MatchQuality(cell)
			if q == metric.NoMatch {
				h.warnings = append(h.warnings, fmt.Sprintf("%s: column %q is not a recognized line item, ignored", cellRef(c, r), cell))
				continue
			}
			cols = append(cols, column{col: c, metric: m})
			cands = append(cands, candidate{slot: slot{metric: m}, quality: q})
		}
		for i, owner := range claim(cands) {
			if owner != i {
				h.warnings = append(h.warnings, fmt.Sprintf("%s: column %q duplicates %s in %s, ignored",
					cellRef(cols[i].col, r), x.g.Cell(r, cols[i].col), metric.Label(cols[i].metric), cellRef(cols[owner].col, r)))
				continue
			}
			h.metrics = append(h.metrics, cols[i])
		}
		if len(h.metrics) > 0 {
			return h
		}
	}
	return nil
}

func (x *extractor) findWideHeader(scan int) *header {
	for r := 0; r < scan; r++ {
		h := &header{row: r, yearCol: -1, metricCol: -1, valueCol: -1, currencyCol: -1, companyCol: -1, labelCol: -1}
		numeric := false
		seen := map[int]int{}
		isYear := map[int]bool{}
		for c, cell := range x.g.Rows[r] {
			if cell == "" {
				continue
			}
			if y, ok := parseYear(cell, x.opts.MinYear, x.opts.MaxYear); ok {
				isYear[c] = true
				if prev, dup := seen[y]; dup {
					h.warnings = append(h.warnings, fmt.Sprintf("%s: duplicate year %d (first in %s), column ignored", cellRef(c, r), y, cellRef(prev, r)))
					continue
				}
				seen[y] = c
				h.years = append(h.years, column{col: c, year: y})
				continue
			}
			if isScaleNote(cell) {
				continue
			}
			if _, _, err := ParseValue(cell); err == nil {
				numeric = true
				break
			}
		}
		if numeric || len(h.years) == 0 {
			continue
		}
		h.labelCol = x.labelColumn(r, isYear)
		if h.labelCol < 0 {
			continue
		}
		return h
	}
	return nil
}

// labelColumn is the left-most non-year column with text below the header.
func (x *extractor) labelColumn(headerRow int, isYear map[int]bool) int {
	fallback := -1
	for c := 0; c < x.g.Width; c++ {
		if isYear[c] {
			continue
		}
		if fallback < 0 {
			fallback = c
		}
		for r := headerRow + 1; r < len(x.g.Rows); r++ {
			cell := x.g.Cell(r, c)
			if cell == "" {
				continue
			}
			if _, _, err := ParseValue(cell); errors.Is(err, ErrInvalidNumber) && hasLetter(cell) {
				return c
			}
		}
	}
	return fallback
}

func (x *extractor) extractWide(h *header) {
	type labelRow struct {
		row    int
		label  string
		metric metric.Metric
	}
	var (
		rows  []labelRow
		cands []candidate
	)
	for r := h.row + 1; r < len(x.g.Rows); r++ {
		label := x.g.Cell(r, h.labelCol)
		hasValues := false
		for _, yc := range h.years {
			if x.g.Cell(r, yc.col) != "" {
				hasValues = true
				break
			}
		}
		if label == "" {
			if hasValues {
				x.warnf("row %d: values without a line item label, skipped", r+1)
			}
			continue
		}
		if !hasValues {
			// section heading
			continue
		}
		m, q := metric.MatchQuality(label)
		if q == metric.NoMatch {
			x.warnf("row %d: unrecognized line item %q, skipped", r+1, label)
			continue
		}
		rows = append(rows, labelRow{row: r, label: label, metric: m})
		cands = append(cands, candidate{slot: slot{metric: m}, quality: q})
	}
	for i, owner := range claim(cands) {
		lr := rows[i]
		if owner != i {
			x.warnf("row %d: %q duplicates %s from row %d, ignored", lr.row+1, lr.label, metric.Label(lr.metric), rows[owner].row+1)
			continue
		}
		for _, yc := range h.years {
			x.observe(yc.year, lr.metric, lr.row, yc.col, "")
		}
	}
}

func (x *extractor) extractByYear(h *header) {
	seen := map[int]int{}
	for r := h.row + 1; r < len(x.g.Rows); r++ {
		if isBlank(x.g.Rows[r]) {
			continue
		}
		cell := x.g.Cell(r, h.yearCol)
		y, ok := parseYear(cell, x.opts.MinYear, x.opts.MaxYear)
		if !ok {
			x.warnf("row %d: %q is not a year, skipped", r+1, cell)
			continue
		}
		if h.companyCol >= 0 && !x.companyMatches(x.g.Cell(r, h.companyCol)) {
			x.warnf("row %d: belongs to company %q, skipped", r+1, x.g.Cell(r, h.companyCol))
			continue
		}
		if prev, dup := seen[y]; dup {
			x.warnf("row %d: duplicate year %d (first in row %d), ignored", r+1, y, prev)
			continue
		}
		seen[y] = r + 1
		cur := x.rowCurrency(h, r)
		for _, mc := range h.metrics {
			x.observe(y, mc.metric, r, mc.col, cur)
		}
	}
}

func (x *extractor) extractLong(h *header) {
	type factRow struct {
		row  int
		year int
		m    metric.Metric
	}
	var (
		rows  []factRow
		cands []candidate
	)
	for r := h.row + 1; r < len(x.g.Rows); r++ {
		if isBlank(x.g.Rows[r]) {
			continue
		}
		cell := x.g.Cell(r, h.yearCol)
		y, ok := parseYear(cell, x.opts.MinYear, x.opts.MaxYear)
		if !ok {
			x.warnf("row %d: %q is not a year, skipped", r+1, cell)
			continue
		}
		label := x.g.Cell(r, h.metricCol)
		m, q := metric.MatchQuality(label)
		if q == metric.NoMatch {
			x.warnf("row %d: unrecognized line item %q, skipped", r+1, label)
			continue
		}
		if h.companyCol >= 0 && !x.companyMatches(x.g.Cell(r, h.companyCol)) {
			x.warnf("row %d: belongs to company %q, skipped", r+1, x.g.Cell(r, h.companyCol))
			continue
		}
		rows = append(rows, factRow{row: r, year: y, m: m})
		cands = append(cands, candidate{slot: slot{year: y, metric: m}, quality: q})
	}
	for i, owner := range claim(cands) {
		fr := rows[i]
		if owner != i {
			x.warnf("%s: duplicate %s for %d ignored (row %d kept)", cellRef(h.valueCol, fr.row), metric.Label(fr.m), fr.year, rows[owner].row+1)
			continue
		}
		x.observe(fr.year, fr.m, fr.row, h.valueCol, x.rowCurrency(h, fr.row))
	}
}

// slot is what competing rows claim: a metric, per year in the long layout.
type slot struct {
	year   int
	metric metric.Metric
}

type candidate struct {
	slot    slot
	quality metric.Quality
}

// claim returns, for every candidate, the index of the candidate owning its
// slot: the best match quality wins, the earliest among equals.
func claim(cands []candidate) []int {
	owner := map[slot]int{}
	for i, c := range cands {
		if j, ok := owner[c.slot]; !ok || c.quality > cands[j].quality {
			owner[c.slot] = i
		}
	}
	out := make([]int, len(cands))
	for i, c := range cands {
		out[i] = owner[c.slot]
	}
	return out
}

func hasLetter(s string) bool {
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r > 0x7f {
			return true
		}
	}
	return false
}
