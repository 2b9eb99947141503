// Package sheet turns uploaded CSV and XLSX files into a rectangular grid of
// cell strings. It knows nothing about financial meaning.
package sheet

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrEmptyDocument     = errors.New("document has no data rows")
)

// Grid is the parsed document. Rows keep their original order and are padded to
// Width, so Rows[r][c] is always addressable for c < Width.
type Grid struct {
	Sheet string
	Rows  [][]string
	Width int
}

// Cell returns the trimmed cell at (r, c) or "" when out of range.
func (g *Grid) Cell(r, c int) string {
	if r < 0 || r >= len(g.Rows) || c < 0 || c >= len(g.Rows[r]) {
		return ""
	}
	return g.Rows[r][c]
}

type format int

const (
	formatUnknown format = iota
	formatCSV
	formatXLSX
)

var (
	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// Parse decodes data according to the file extension, falling back to the
// declared content type when the extension says nothing.
func Parse(name, contentType string, data []byte) (*Grid, error) {
	var (
		rows  [][]string
		sheet string
		err   error
	)
	switch detect(name, contentType, data) {
	case formatCSV:
		rows, err = readCSV(data)
	case formatXLSX:
		rows, sheet, err = readXLSX(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(name))
	}
	if err != nil {
		return nil, err
	}
	g := newGrid(rows)
	g.Sheet = sheet
	if err := g.checkData(); err != nil {
		return nil, err
	}
	return g, nil
}

func detect(name, contentType string, data []byte) format {
	if bytes.HasPrefix(data, oleMagic) {
		// legacy .xls (BIFF inside an OLE container)
		return formatUnknown
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt", ".tsv":
		if looksBinary(data) {
			return formatUnknown
		}
		return formatCSV
	case ".xlsx", ".xlsm":
		if !bytes.HasPrefix(data, zipMagic) {
			return formatUnknown
		}
		return formatXLSX
	case "":
	default:
		return formatUnknown
	}
	ct := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	switch ct {
	case "text/csv", "text/plain", "application/csv", "text/tab-separated-values":
		if looksBinary(data) {
			return formatUnknown
		}
		return formatCSV
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		if bytes.HasPrefix(data, zipMagic) {
			return formatXLSX
		}
	}
	return formatUnknown
}

func looksBinary(data []byte) bool {
	sample := data
	if len(sample) > 4096 {
		sample = sample[:4096]
		// do not judge a rune cut in half at the boundary
		for i := 0; i < utf8.UTFMax && !utf8.Valid(sample); i++ {
			sample = sample[:len(sample)-1]
		}
	}
	return bytes.IndexByte(sample, 0) >= 0 || !utf8.Valid(sample)
}

func newGrid(rows [][]string) *Grid {
	// drop trailing empty rows
	end := len(rows)
	for end > 0 && isBlankRow(rows[end-1]) {
		end--
	}
	rows = rows[:end]

	width := 0
	for _, r := range rows {
		w := len(r)
		for w > 0 && strings.TrimSpace(r[w-1]) == "" {
			w--
		}
		if w > width {
			width = w
		}
	}
	out := make([][]string, len(rows))
	for i, r := range rows {
		row := make([]string, width)
		for c := 0; c < width && c < len(r); c++ {
			row[c] = strings.TrimSpace(r[c])
		}
		out[i] = row
	}
	return &Grid{Rows: out, Width: width}
}

// checkData requires at least one row after the first non-empty one.
func (g *Grid) checkData() error {
	for i, r := range g.Rows {
		if !isBlankRow(r) {
			if i+1 < len(g.Rows) {
				return nil
			}
			break
		}
	}
	return ErrEmptyDocument
}

func isBlankRow(r []string) bool {
	for _, c := range r {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
