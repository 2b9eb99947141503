package sheet

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/gocarina/gocsv"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	r := gocsv.LazyCSVReader(bytes.NewReader(data))
	if cr, ok := r.(*csv.Reader); ok {
		cr.Comma = sniffDelimiter(data)
		cr.FieldsPerRecord = -1
	}
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: csv: %v", ErrUnsupportedFormat, err)
	}
	return rows, nil
}

// sniffDelimiter picks the separator that occurs most often outside quotes in
// the first lines. Ties go to the comma.
func sniffDelimiter(data []byte) rune {
	candidates := []rune{',', ';', '\t'}
	counts := map[rune]int{}
	lines, inQuotes := 0, false
	for _, b := range data {
		if lines >= 10 {
			break
		}
		switch b {
		case '"':
			inQuotes = !inQuotes
		case '\n':
			if !inQuotes {
				lines++
			}
		default:
			if !inQuotes {
				counts[rune(b)]++
			}
		}
	}
	best := ','
	for _, c := range candidates {
		if counts[c] > counts[best] {
			best = c
		}
	}
	return best
}
