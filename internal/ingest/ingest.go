// Package ingest reads tabular record sources in chunks.
//
// Each supported format (CSV, TSV, XLSX, JSON, JSON Lines, YAML, plain text)
// has its own opener that implements the Opener interface. Open auto-detects
// the format by file extension and dispatches to the matching opener.
//
// Every row keeps its 0-based position in the source so callers can restore
// input order after concurrent processing.
package ingest
