// Package export writes a run's result table to CSV, TSV, JSON, JSONL or
// XLSX, and run statistics to JSON.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hurttlocker/provnotes/internal/pipeline"
)

// Format is an output encoding.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatTSV   Format = "tsv"
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatXLSX  Format = "xlsx"
)

// FormatFor picks the format from the file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".tsv":
		return FormatTSV, nil
	case ".json":
		return FormatJSON, nil
	case ".jsonl", ".ndjson":
		return FormatJSONL, nil
	case ".xlsx":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("unsupported output format %q", filepath.Ext(path))
}

// Write encodes table to path, choosing the format from its extension.
func Write(path string, table *pipeline.Table) (err error) {
	format, err := FormatFor(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing %s: %w", path, cerr)
		}
	}()
	if err := Encode(f, format, table); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Encode writes table to w in format.
func Encode(w io.Writer, format Format, table *pipeline.Table) error {
	if table == nil {
		return fmt.Errorf("no table to export")
	}
	switch format {
	case FormatCSV:
		return writeDelimited(w, ',', table)
	case FormatTSV:
		return writeDelimited(w, '\t', table)
	case FormatJSON:
		return writeJSON(w, table)
	case FormatJSONL:
		return writeJSONL(w, table)
	case FormatXLSX:
		return writeXLSX(w, table)
	}
	return fmt.Errorf("unsupported output format %q", format)
}

// WriteStats writes stats as indented JSON.
func WriteStats(path string, stats pipeline.Stats) error {
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding stats: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
