package ingest

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// XLSXOpener handles .xlsx workbooks. Only the first sheet is read.
type XLSXOpener struct{}

// CanHandle returns true for .xlsx files.
func (x *XLSXOpener) CanHandle(path string) bool {
	return hasExt(path, ".xlsx")
}

// Open streams the first sheet row by row; the first row is the header.
func (x *XLSXOpener) Open(path string) (Source, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.Rows(sheets[0])
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("reading sheet %q: %w", sheets[0], err)
	}
	if !rows.Next() {
		rows.Close()
		f.Close()
		if err := rows.Error(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("sheet %q has no header row", sheets[0])
	}
	header, err := rows.Columns()
	if err != nil {
		rows.Close()
		f.Close()
		return nil, fmt.Errorf("reading header: %w", err)
	}
	return &XLSXSource{file: f, rows: rows, sheet: sheets[0], columns: normalizeHeader(header)}, nil
}

// XLSXSource reads one worksheet through excelize's streaming row iterator.
type XLSXSource struct {
	file    *excelize.File
	rows    *excelize.Rows
	sheet   string
	columns []string
	next    int
	done    bool
}

func (s *XLSXSource) Columns() []string { return append([]string(nil), s.columns...) }

func (s *XLSXSource) Next(ctx context.Context, n int) ([]Row, error) {
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
		if !s.rows.Next() {
			s.done = true
			if err := s.rows.Error(); err != nil {
				return out, fmt.Errorf("reading sheet %q: %w", s.sheet, err)
			}
			return out, io.EOF
		}
		cells, err := s.rows.Columns()
		if err != nil {
			return out, fmt.Errorf("reading sheet %q row %d: %w", s.sheet, s.next+2, err)
		}
		values := make([]any, len(s.columns))
		for i := 0; i < len(cells) && i < len(values); i++ {
			values[i] = cell(cells[i])
		}
		out = append(out, Row{Index: s.next, Values: values})
		s.next++
	}
	return out, nil
}

func (s *XLSXSource) Close() error {
	rowsErr := s.rows.Close()
	if err := s.file.Close(); err != nil {
		return err
	}
	return rowsErr
}
