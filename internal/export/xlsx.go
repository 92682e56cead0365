package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/hurttlocker/provnotes/internal/pipeline"
)

// SheetName is the worksheet the result table is written to.
const SheetName = "results"

func writeXLSX(w io.Writer, table *pipeline.Table) error {
	if len(table.Rows)+1 > excelize.TotalRows {
		return fmt.Errorf("%d rows exceed the worksheet limit of %d", len(table.Rows), excelize.TotalRows-1)
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}
	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return err
	}

	header := make([]interface{}, len(table.Columns))
	for i, c := range table.Columns {
		header[i] = c
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}

	values := make([]interface{}, len(table.Columns))
	for i, row := range table.Rows {
		for j := range values {
			values[j] = sheetCell(row[j])
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, values); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}
	return f.Write(w)
}

// sheetCell keeps numbers and booleans typed; everything else becomes text
// truncated to the cell limit.
func sheetCell(v any) interface{} {
	switch t := v.(type) {
	case nil:
		return nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
		float32, float64, bool, time.Time:
		return t
	}
	s := textCell(v)
	if r := []rune(s); len(r) > excelize.TotalCellChars {
		s = string(r[:excelize.TotalCellChars])
	}
	return s
}
