package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Row is one data row. Values line up with the source's Columns; missing
// and empty cells are nil.
type Row struct {
	Index  int
	Values []any
}

// Get returns the value of column i, or nil when the row is short.
func (r Row) Get(i int) any {
	if i < 0 || i >= len(r.Values) {
		return nil
	}
	return r.Values[i]
}

// Source streams rows in batches.
type Source interface {
	// Columns returns the header in source order.
	Columns() []string

	// Next returns up to n rows. It returns io.EOF once the source is
	// exhausted, possibly together with a final partial batch.
	Next(ctx context.Context, n int) ([]Row, error)

	Close() error
}

// Sizer is implemented by sources that know their total row count.
type Sizer interface {
	Len() int
}

// Opener handles a specific file format.
type Opener interface {
	// CanHandle returns true if this opener supports the given file path.
	CanHandle(path string) bool

	// Open returns a source positioned at the first data row.
	Open(path string) (Source, error)
}

// Openers returns the built-in openers in dispatch order.
func Openers() []Opener {
	return []Opener{
		&CSVOpener{},
		&XLSXOpener{},
		&JSONOpener{},
		&JSONLOpener{},
		&YAMLOpener{},
		&TextOpener{},
	}
}

// Open picks an opener by file extension.
func Open(path string) (Source, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	for _, o := range Openers() {
		if o.CanHandle(path) {
			src, err := o.Open(path)
			if err != nil {
				return nil, fmt.Errorf("opening %s: %w", path, err)
			}
			return src, nil
		}
	}
	return nil, fmt.Errorf("unsupported input format %q (want .csv, .tsv, .xlsx, .json, .jsonl, .ndjson, .yaml, .txt)", filepath.Ext(path))
}

// ReadAll drains src in batches of n.
func ReadAll(ctx context.Context, src Source, n int) ([]Row, error) {
	var all []Row
	for {
		rows, err := src.Next(ctx, n)
		all = append(all, rows...)
		if err == io.EOF {
			return all, nil
		}
		if err != nil {
			return all, err
		}
	}
}

func hasExt(path string, exts ...string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// cell maps an empty text cell to nil.
func cell(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func normalizeHeader(columns []string) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		c = strings.TrimPrefix(c, "\ufeff")
		out[i] = strings.TrimSpace(c)
	}
	return out
}

// SliceSource serves rows held in memory.
type SliceSource struct {
	columns []string
	rows    [][]any
	pos     int
}

// NewSliceSource builds a source over in-memory rows. Rows shorter than
// columns are padded with nil.
func NewSliceSource(columns []string, rows [][]any) *SliceSource {
	return &SliceSource{columns: columns, rows: rows}
}

func (s *SliceSource) Columns() []string { return append([]string(nil), s.columns...) }

func (s *SliceSource) Len() int { return len(s.rows) }

func (s *SliceSource) Next(ctx context.Context, n int) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n <= 0 {
		n = 1
	}
	var out []Row
	for len(out) < n && s.pos < len(s.rows) {
		values := make([]any, len(s.columns))
		copy(values, s.rows[s.pos])
		out = append(out, Row{Index: s.pos, Values: values})
		s.pos++
	}
	if s.pos >= len(s.rows) {
		return out, io.EOF
	}
	return out, nil
}

func (s *SliceSource) Close() error { return nil }
