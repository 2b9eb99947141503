package sheet

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// readXLSX reads the active sheet, or the first sheet with any content when the
// active one is empty.
func readXLSX(data []byte) ([][]string, string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: xlsx: %v", ErrUnsupportedFormat, err)
	}
	defer f.Close()

	var names []string
	if active := f.GetSheetName(f.GetActiveSheetIndex()); active != "" {
		names = append(names, active)
	}
	names = append(names, f.GetSheetList()...)

	for _, name := range names {
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, "", fmt.Errorf("%w: xlsx sheet %q: %v", ErrUnsupportedFormat, name, err)
		}
		for _, r := range rows {
			if !isBlankRow(r) {
				return rows, name, nil
			}
		}
	}
	return nil, "", ErrEmptyDocument
}
