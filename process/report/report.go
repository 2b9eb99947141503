// Package report prints or exports a company's stored facts.
package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"finchat/models"
	"finchat/pkg/chunk"
	"finchat/pkg/factstore"
	"finchat/pkg/metric"

	"github.com/gocarina/gocsv"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

const (
	FormatTable = "table"
	FormatCSV   = "csv"
	FormatXLSX  = "xlsx"
)

var ErrUnknownFormat = errors.New("unknown report format")

// Report is one company's facts, loaded once.
type Report struct {
	Company models.Company
	Facts   []models.FinancialFact
	Series  *factstore.Series
}

// Load resolves ref (an id or an exact company name) and loads its facts.
func Load(ctx context.Context, db *gorm.DB, ref string) (*Report, error) {
	var company models.Company
	q := db.WithContext(ctx)
	if id, err := strconv.ParseUint(ref, 10, 64); err == nil {
		q = q.Where("id = ?", id)
	} else {
		q = q.Where("name = ?", strings.TrimSpace(ref))
	}
	if err := q.First(&company).Error; err != nil {
		return nil, fmt.Errorf("company %q: %w", ref, err)
	}
	store := factstore.New(db, nil)
	facts, err := store.Facts(ctx, company.ID)
	if err != nil {
		return nil, err
	}
	years, err := store.Years(ctx, company.ID)
	if err != nil {
		return nil, err
	}
	return &Report{Company: company, Facts: facts, Series: factstore.Pivot(company.ID, facts, years...)}, nil
}

// Write renders the report in format.
func (r *Report) Write(w io.Writer, format string) error {
	switch format {
	case FormatTable, "":
		return r.WriteTable(w)
	case FormatCSV:
		return r.WriteCSV(w)
	case FormatXLSX:
		return r.WriteXLSX(w)
	}
	return fmt.Errorf("%w: %s", ErrUnknownFormat, format)
}

// WriteTable prints metrics as rows and years as columns.
func (r *Report) WriteTable(w io.Writer) error {
	fmt.Fprintf(w, "Report for company=%s (id=%d, currency=%s): facts=%d years=%d\n",
		r.Company.Name, r.Company.ID, r.Company.Currency, len(r.Facts), len(r.Series.Years))
	if len(r.Series.Years) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	header := []string{"Metric"}
	for _, y := range r.Series.Years {
		header = append(header, strconv.Itoa(y))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t")+"\t")
	for _, line := range r.Series.Metrics {
		if !hasValue(line) {
			continue
		}
		cells := []string{line.Label}
		for _, v := range line.Values {
			if v.Valid {
				cells = append(cells, chunk.FormatValue(v.Decimal))
			} else {
				cells = append(cells, "-")
			}
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t")+"\t")
	}
	return tw.Flush()
}

type csvRow struct {
	Company  string `csv:"company"`
	Year     int    `csv:"year"`
	Metric   string `csv:"metric"`
	Value    string `csv:"value"`
	Currency string `csv:"currency"`
}

// WriteCSV writes one fact per row.
func (r *Report) WriteCSV(w io.Writer) error {
	rows := make([]*csvRow, 0, len(r.Facts))
	for _, f := range r.Facts {
		rows = append(rows, &csvRow{
			Company:  r.Company.Name,
			Year:     f.Year,
			Metric:   metric.Label(f.Metric),
			Value:    f.Value.String(),
			Currency: f.Currency,
		})
	}
	return gocsv.Marshal(rows, w)
}

// WriteXLSX writes a wide sheet: one row per metric, one column per year.
func (r *Report) WriteXLSX(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	if err := f.SetCellValue(sheet, "A1", "Line item"); err != nil {
		return err
	}
	for i, y := range r.Series.Years {
		cell, err := excelize.CoordinatesToCellName(i+2, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, y); err != nil {
			return err
		}
	}
	row := 2
	for _, line := range r.Series.Metrics {
		if !hasValue(line) {
			continue
		}
		if err := f.SetCellValue(sheet, "A"+strconv.Itoa(row), line.Label); err != nil {
			return err
		}
		for i, v := range line.Values {
			if !v.Valid {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(i+2, row)
			if err != nil {
				return err
			}
			fv, _ := v.Decimal.Float64()
			if err := f.SetCellValue(sheet, cell, fv); err != nil {
				return err
			}
		}
		row++
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func hasValue(line factstore.SeriesLine) bool {
	for _, v := range line.Values {
		if v.Valid {
			return true
		}
	}
	return false
}
