package ingest

import (
	"os"
	"strings"
)

// Columns of a plain-text source.
const (
	TextLineColumn  = "line"
	TextNotesColumn = "notes"
)

// TextOpener handles .txt and .log files: one record per paragraph, with
// paragraphs separated by blank lines.
type TextOpener struct{}

// CanHandle returns true for plain text extensions.
func (t *TextOpener) CanHandle(path string) bool {
	return hasExt(path, ".txt", ".log")
}

// Open splits the file into paragraphs. Columns are "line" (1-based line
// of the paragraph's first line) and "notes".
func (t *TextOpener) Open(path string) (Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewSliceSource([]string{TextLineColumn, TextNotesColumn}, splitParagraphs(string(data))), nil
}

// splitParagraphs splits text on blank lines and tracks line numbers.
func splitParagraphs(content string) [][]any {
	content = strings.ReplaceAll(content, "\r\n", "\n")

	var rows [][]any
	var para []string
	start := 0
	flush := func() {
		if len(para) > 0 {
			rows = append(rows, []any{start, strings.Join(para, "\n")})
			para = nil
		}
	}
	for i, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		if len(para) == 0 {
			start = i + 1
		}
		para = append(para, strings.TrimRight(line, " \t"))
	}
	flush()
	return rows
}
