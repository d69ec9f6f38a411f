package formats

import (
	"bytes"
	"errors"

	"github.com/xuri/excelize/v2"
)

// resultSheet is the sheet read from workbooks having it.
const resultSheet = "Resultate"

var errNoSheet = errors.New("workbook has no sheets")

// excelRecords reads the rows of the result sheet, or the first sheet, as
// raw cell values. Empty rows are dropped and short rows padded.
func excelRecords(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheet := resultSheet
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errNoSheet
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}

	width := 0
	for _, row := range rows {
		width = max(width, len(row))
	}

	records := make([][]string, 0, len(rows))
	for _, row := range rows {
		if isEmptyRow(row) {
			continue
		}
		record := make([]string, width)
		copy(record, row)
		records = append(records, record)
	}
	return records, nil
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if v != "" {
			return false
		}
	}
	return true
}
