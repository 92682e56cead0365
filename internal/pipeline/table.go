package pipeline

import "github.com/hurttlocker/provnotes/internal/ingest"

// CleanedSuffix and ExtractedPrefix name the columns appended to the source
// columns.
const (
	CleanedSuffix   = "_cleaned"
	ExtractedPrefix = "extracted_"
)

// Table is the result table: source columns, the cleaned notes column, then
// one extracted column per registry field.
type Table struct {
	Columns []string
	Rows    [][]any
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// Column returns the values of the named column, or nil when absent.
func (t *Table) Column(name string) []any {
	idx := -1
	for i, c := range t.Columns {
		if c == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	out := make([]any, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out
}

// BuildTable materialises the result table in one pass. rows and outputs
// must be aligned (same length and order).
func BuildTable(columns []string, notesColumn string, fields []string, rows []ingest.Row, outputs []Output) *Table {
	width := len(columns) + 1 + len(fields)
	header := make([]string, 0, width)
	header = append(header, columns...)
	header = append(header, notesColumn+CleanedSuffix)
	for _, f := range fields {
		header = append(header, ExtractedPrefix+f)
	}

	// Rows share one backing array.
	cells := make([]any, len(rows)*width)
	tableRows := make([][]any, len(rows))
	for i, row := range rows {
		r := cells[i*width : (i+1)*width : (i+1)*width]
		copy(r, row.Values)
		out := outputs[i]
		r[len(columns)] = out.Cleaned
		for j, f := range fields {
			r[len(columns)+1+j] = out.Fields[f]
		}
		tableRows[i] = r
	}
	return &Table{Columns: header, Rows: tableRows}
}
