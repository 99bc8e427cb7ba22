package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"salesboard/internal/core"
)

// parseFile reads every data row of the uploaded file into raw rows.
// Routing is by declared extension and happens before any bytes are
// read; anything outside the allowed set is rejected up front.
func parseFile(path, ext string) ([]core.RawRow, error) {
	switch ext {
	case ".csv":
		return parseCSV(path)
	case ".xlsx", ".xls":
		return parseWorkbook(path)
	default:
		return nil, fmt.Errorf("%w: %q", core.ErrUnsupportedFormat, ext)
	}
}

func parseCSV(path string) ([]core.RawRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // ragged rows leave trailing fields empty

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	idx := columnIndex(header)
	var rows []core.RawRow
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		rows = append(rows, rawRow(rec, idx))
	}
	return rows, nil
}

// parseWorkbook reads the first sheet of an xlsx workbook. Legacy .xls
// files go through the same reader and fail at open if they are a true
// OLE workbook.
func parseWorkbook(path string) ([]core.RawRow, error) {
	wb, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	all, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(all) == 0 {
		return nil, nil
	}

	idx := columnIndex(all[0])
	rows := make([]core.RawRow, 0, len(all)-1)
	for _, rec := range all[1:] {
		rows = append(rows, rawRow(rec, idx))
	}
	return rows, nil
}

// columnIndex maps header names onto positions. The mapping is fixed
// and case-sensitive; columns absent from the header simply yield
// empty fields for every row.
func columnIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF") // UTF-8 BOM
		}
		idx[h] = i
	}
	return idx
}

func rawRow(rec []string, idx map[string]int) core.RawRow {
	get := func(name string) string {
		i, ok := idx[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}
	return core.RawRow{
		Date:     get("date"),
		Product:  get("product"),
		Category: get("category"),
		Region:   get("region"),
		Quantity: get("quantity"),
		Price:    get("price"),
		Revenue:  get("revenue"),
	}
}
