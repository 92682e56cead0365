package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
)

// CSVOpener handles .csv and .tsv files.
type CSVOpener struct{}

// CanHandle returns true for CSV/TSV file extensions.
func (c *CSVOpener) CanHandle(path string) bool {
	return hasExt(path, ".csv", ".tsv")
}

// Open streams a CSV file. The first record is the header.
func (c *CSVOpener) Open(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	comma := ','
	if hasExt(path, ".tsv") {
		comma = '\t'
	}
	src, err := NewCSVSource(f, comma)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("parsing CSV %s: %w", path, err)
	}
	src.closer = f
	return src, nil
}

// CSVSource reads delimited text one record at a time.
type CSVSource struct {
	reader  *csv.Reader
	columns []string
	closer  io.Closer
	next    int
	done    bool
}

// NewCSVSource reads the header from r and returns a source over the
// remaining records.
func NewCSVSource(r io.Reader, comma rune) (*CSVSource, error) {
	reader := csv.NewReader(r)
	reader.Comma = comma
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("missing header row")
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	return &CSVSource{reader: reader, columns: normalizeHeader(header)}, nil
}

func (s *CSVSource) Columns() []string { return append([]string(nil), s.columns...) }

func (s *CSVSource) Next(ctx context.Context, n int) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.done {
		return nil, io.EOF
	}
	if n <= 0 {
		n = 1
	}
	out := make([]Row, 0, n)
	for len(out) < n {
		record, err := s.reader.Read()
		if errors.Is(err, io.EOF) {
			s.done = true
			return out, io.EOF
		}
		if err != nil {
			return out, fmt.Errorf("reading record %d: %w", s.next+1, err)
		}
		values := make([]any, len(s.columns))
		for i := 0; i < len(record) && i < len(values); i++ {
			values[i] = cell(record[i])
		}
		out = append(out, Row{Index: s.next, Values: values})
		s.next++
	}
	return out, nil
}

func (s *CSVSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
