package export

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cast"

	"github.com/hurttlocker/provnotes/internal/pipeline"
)

func writeDelimited(w io.Writer, comma rune, table *pipeline.Table) error {
	cw := csv.NewWriter(w)
	cw.Comma = comma
	if err := cw.Write(table.Columns); err != nil {
		return err
	}
	record := make([]string, len(table.Columns))
	for _, row := range table.Rows {
		for i := range record {
			record[i] = textCell(row[i])
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// textCell renders a cell for delimited output; nil is empty.
func textCell(v any) string {
	if v == nil {
		return ""
	}
	if s, err := cast.ToStringE(v); err == nil {
		return s
	}
	if data, err := json.Marshal(v); err == nil {
		return string(data)
	}
	return fmt.Sprint(v)
}

func writeJSON(w io.Writer, table *pipeline.Table) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("[")
	for i, row := range table.Rows {
		if i > 0 {
			bw.WriteString(",")
		}
		bw.WriteString("\n  ")
		obj, err := encodeRow(table.Columns, row)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		bw.Write(obj)
	}
	if len(table.Rows) > 0 {
		bw.WriteString("\n")
	}
	bw.WriteString("]\n")
	return bw.Flush()
}

func writeJSONL(w io.Writer, table *pipeline.Table) error {
	bw := bufio.NewWriter(w)
	for i, row := range table.Rows {
		obj, err := encodeRow(table.Columns, row)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		bw.Write(obj)
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// encodeRow renders one row as a JSON object with keys in column order.
func encodeRow(columns []string, row []any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(row[i])
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", col, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
