package export

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/hurttlocker/provnotes/internal/ingest"
	"github.com/hurttlocker/provnotes/internal/pipeline"
)

func sampleTable() *pipeline.Table {
	return &pipeline.Table{
		Columns: []string{"id", "notes", "notes_cleaned", "extracted_vlan", "extracted_serial_code"},
		Rows: [][]any{
			{"1", "SN: BB001\nVLAN: 100", "SN: BB001\nVLAN: 100", 100, "BB001"},
			{"2", nil, nil, nil, nil},
			{"3", "a, \"quoted\" note", "a, \"quoted\" note", nil, nil},
		},
	}
}

func TestFormatFor(t *testing.T) {
	cases := map[string]Format{
		"out.csv":    FormatCSV,
		"OUT.TSV":    FormatTSV,
		"r.json":     FormatJSON,
		"r.ndjson":   FormatJSONL,
		"dir/x.xlsx": FormatXLSX,
	}
	for path, want := range cases {
		got, err := FormatFor(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, got, path)
	}
	_, err := FormatFor("out.parquet")
	assert.ErrorContains(t, err, "unsupported output format")
}

func TestWrite_CSVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, Write(path, sampleTable()))

	src, err := ingest.Open(path)
	require.NoError(t, err)
	defer src.Close()
	rows, err := ingest.ReadAll(context.Background(), src, 10)
	require.NoError(t, err)

	assert.Equal(t, sampleTable().Columns, src.Columns())
	require.Len(t, rows, 3)
	assert.Equal(t, []any{"1", "SN: BB001\nVLAN: 100", "SN: BB001\nVLAN: 100", "100", "BB001"}, rows[0].Values)
	assert.Equal(t, []any{"2", nil, nil, nil, nil}, rows[1].Values)
	assert.Equal(t, `a, "quoted" note`, rows[2].Get(1))
}

func TestEncode_TSV(t *testing.T) {
	var buf bytes.Buffer
	tbl := &pipeline.Table{Columns: []string{"a", "b"}, Rows: [][]any{{1.5, true}}}
	require.NoError(t, Encode(&buf, FormatTSV, tbl))
	assert.Equal(t, "a\tb\n1.5\ttrue\n", buf.String())
}

func TestEncode_JSONKeepsColumnOrder(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, FormatJSON, sampleTable()))

	out := buf.String()
	assert.Less(t, strings.Index(out, `"id"`), strings.Index(out, `"notes"`))
	assert.Less(t, strings.Index(out, `"notes_cleaned"`), strings.Index(out, `"extracted_vlan"`))

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 3)
	assert.Equal(t, float64(100), decoded[0]["extracted_vlan"])
	assert.Nil(t, decoded[1]["notes"])
	_, present := decoded[1]["extracted_serial_code"]
	assert.True(t, present)
}

func TestEncode_JSONEmptyTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, FormatJSON, &pipeline.Table{Columns: []string{"a"}}))
	assert.Equal(t, "[]\n", buf.String())
}

func TestEncode_JSONL(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, FormatJSONL, sampleTable()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, `{"id":"2","notes":null,"notes_cleaned":null,"extracted_vlan":null,"extracted_serial_code":null}`, lines[1])
}

func TestEncode_NilTable(t *testing.T) {
	assert.Error(t, Encode(&bytes.Buffer{}, FormatCSV, nil))
}

func TestWrite_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	require.NoError(t, Write(path, sampleTable()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetName}, f.GetSheetList())
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, sampleTable().Columns, rows[0])
	assert.Equal(t, []string{"1", "SN: BB001\nVLAN: 100", "SN: BB001\nVLAN: 100", "100", "BB001"}, rows[1])
	assert.Equal(t, []string{"2"}, rows[2])
}

func TestSheetCell_TruncatesLongText(t *testing.T) {
	long := strings.Repeat("x", excelize.TotalCellChars+10)
	assert.Len(t, sheetCell(long), excelize.TotalCellChars)
	assert.Equal(t, 42, sheetCell(42))
	assert.Nil(t, sheetCell(nil))
	assert.Equal(t, `{"a":1}`, sheetCell(map[string]any{"a": 1}))
}

func TestWriteStats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	stats := pipeline.Stats{
		TotalRecords:      2,
		SuccessfulRecords: 1,
		SuccessRate:       0.5,
		ChunksProcessed:   1,
		Fields:            []pipeline.FieldStat{{Field: "vlan", Count: 1, Percentage: 50, Samples: []string{"100"}}},
	}
	require.NoError(t, WriteStats(path, stats))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded pipeline.Stats
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, stats, decoded)
}
