package main

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

	"github.com/hurttlocker/provnotes/internal/config"
	"github.com/hurttlocker/provnotes/internal/registry"
	"github.com/hurttlocker/provnotes/internal/store"
)

type cliEnv struct {
	dir string
	db  string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	return &cliEnv{dir: dir, db: filepath.Join(dir, "runs.db")}
}

func (e *cliEnv) exec(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--db", e.db, "--env-file", filepath.Join(e.dir, "none.env")}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func (e *cliEnv) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func (e *cliEnv) runs(t *testing.T) []*store.RunRecord {
	t.Helper()
	st, err := store.NewStore(store.StoreConfig{DBPath: e.db})
	require.NoError(t, err)
	defer st.Close()
	runs, err := st.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	return runs
}

const notesCSV = `id,notes,product_group
1,SN: BB001 SSID: WiFi_0 password: pass0 VLAN: 100,residential_fiber
2,vlan 200,
3,,residential_fiber
`

func TestVersion(t *testing.T) {
	env := newCLIEnv(t)
	out, _, err := env.exec(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "provnotes "+version+"\n", out)
}

func TestCleanCommand_Stdin(t *testing.T) {
	env := newCLIEnv(t)
	text := "=====\n[DEBUG] link up\ninterface Gi0/1\n  ip address 10.0.0.1 255.255.255.252\nquit\n"

	out, _, err := env.exec(t, text, "clean", "--group", "dedicated_internet")
	require.NoError(t, err)
	assert.Equal(t, "interface Gi0/1\nip address 10.0.0.1 255.255.255.252\n", out)

	out, _, err = env.exec(t, text, "clean", "-g", "dedicated_internet", "--explain", "-")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "drop"), lines[0])
	assert.True(t, strings.HasPrefix(lines[2], "keep"), lines[2])
	assert.True(t, strings.HasPrefix(lines[4], "drop"), lines[4])
}

func TestExtractCommand(t *testing.T) {
	env := newCLIEnv(t)
	path := env.write(t, "note.txt", "SN: BB001 SSID: WiFi_0 password: pass0 VLAN: 100\n")

	out, _, err := env.exec(t, "", "extract", "--group", "Residential_Fiber", path)
	require.NoError(t, err)
	assert.Contains(t, out, "serial_code: BB001\n")
	assert.Contains(t, out, "vlan: 100\n")
	assert.Contains(t, out, "Fibra Residencial mandatory fields:")
	assert.Contains(t, out, "  Serial: BB001\n")
	assert.Contains(t, out, "  Potência Óptica: (missing)\n")
}

func TestExtractCommand_JSON(t *testing.T) {
	env := newCLIEnv(t)
	out, _, err := env.exec(t, "SN: BB001 SSID: WiFi_0 password: pass0 VLAN: 100", "extract", "-g", "residential_fiber", "--json", "--explain")
	require.NoError(t, err)

	var doc struct {
		Group       string           `json:"group"`
		Fields      map[string]any   `json:"fields"`
		Mandatory   map[string]any   `json:"mandatory"`
		Resolutions []map[string]any `json:"resolutions"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "residential_fiber", doc.Group)
	assert.Equal(t, float64(100), doc.Fields["vlan"])
	assert.Equal(t, "BB001", doc.Fields["serial_code"])
	assert.Contains(t, doc.Fields, "asn")
	assert.Nil(t, doc.Fields["asn"])
	assert.Equal(t, "BB001", doc.Mandatory["Serial"])
	assert.Len(t, doc.Resolutions, 4)
}

func TestExtractCommand_UnknownGroup(t *testing.T) {
	env := newCLIEnv(t)
	_, _, err := env.exec(t, "vlan 100", "extract", "--group", "satellite")
	assert.ErrorContains(t, err, "unknown group")
}

func TestGroupsCommand(t *testing.T) {
	env := newCLIEnv(t)
	out, _, err := env.exec(t, "", "groups", "--json")
	require.NoError(t, err)

	var groups []registry.GroupSummary
	require.NoError(t, json.Unmarshal([]byte(out), &groups))
	require.NotEmpty(t, groups)
	assert.Equal(t, "residential_fiber", groups[0].Key)

	out, _, err = env.exec(t, "", "groups")
	require.NoError(t, err)
	assert.Contains(t, out, "residential_fiber (Fibra Residencial)")
}

func TestRunCommand(t *testing.T) {
	env := newCLIEnv(t)
	input := env.write(t, "notes.csv", notesCSV)
	output := filepath.Join(env.dir, "out.json")
	statsPath := filepath.Join(env.dir, "stats.json")

	_, _, err := env.exec(t, "", "run", "-q", "--input", input, "--output", output,
		"--stats", statsPath, "--chunk-size", "100", "--workers", "2", "--store-rows")
	require.NoError(t, err)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(data, &rows))
	require.Len(t, rows, 3)
	assert.Equal(t, "BB001", rows[0]["extracted_serial_code"])
	assert.Equal(t, float64(200), rows[1]["extracted_vlan"])
	assert.Equal(t, "vlan 200", rows[1]["notes_cleaned"])
	assert.Nil(t, rows[2]["notes_cleaned"])

	data, err = os.ReadFile(statsPath)
	require.NoError(t, err)
	var stats struct {
		TotalRecords      int `json:"total_records"`
		SuccessfulRecords int `json:"successful_records"`
	}
	require.NoError(t, json.Unmarshal(data, &stats))
	assert.Equal(t, 3, stats.TotalRecords)
	assert.Equal(t, 2, stats.SuccessfulRecords)

	runs := env.runs(t)
	require.Len(t, runs, 1)
	assert.Equal(t, "completed", runs[0].State)
	assert.Equal(t, 100, runs[0].ChunkSize)
	assert.Equal(t, 2, runs[0].Workers)
	assert.Equal(t, input, runs[0].Input)

	out, _, err := env.exec(t, "", "runs")
	require.NoError(t, err)
	assert.Contains(t, out, shortID(runs[0].ID))
	assert.Contains(t, out, "notes.csv")

	out, _, err = env.exec(t, "", "show", runs[0].ID[:6], "--rows", "5", "--json")
	require.NoError(t, err)
	var shown store.RunRecord
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Equal(t, runs[0].ID, shown.ID)
	require.Len(t, shown.Rows, 3)
	assert.Equal(t, "residential_fiber", shown.Rows[0].Group)
	assert.Equal(t, float64(100), shown.Rows[0].Fields["vlan"])
	assert.NotEmpty(t, shown.Fields)

	out, _, err = env.exec(t, "", "show", runs[0].ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Fibra Residencial")
	assert.Contains(t, out, "Records:   3 (2 successful, 66.7%)")
}

func TestRunCommand_Summary(t *testing.T) {
	env := newCLIEnv(t)
	input := env.write(t, "notes.csv", notesCSV)

	out, _, err := env.exec(t, "", "run", "--input", input, "--no-save")
	require.NoError(t, err)
	assert.Contains(t, out, "Records:     3 (2 with at least one field, 66.7%)")
	assert.Contains(t, out, filepath.Join(env.dir, "notes_processed.csv"))
	assert.FileExists(t, filepath.Join(env.dir, "notes_processed.csv"))
	assert.Empty(t, env.runs(t))
}

func TestRunCommand_MissingNotesColumnFailsAndIsRecorded(t *testing.T) {
	env := newCLIEnv(t)
	input := env.write(t, "bad.csv", "id,text\n1,vlan 100\n")

	_, stderr, err := env.exec(t, "", "run", "-q", "--input", input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed")
	assert.Contains(t, stderr, `"notes"`)
	assert.NoFileExists(t, filepath.Join(env.dir, "bad_processed.csv"))

	runs := env.runs(t)
	require.Len(t, runs, 1)
	assert.Equal(t, "failed", runs[0].State)
	assert.False(t, runs[0].Success)

	_, _, err = env.exec(t, "", "run", "-q", "--input", input, "--notes-column", "text")
	require.NoError(t, err)
}

func TestRunCommand_InvalidSettings(t *testing.T) {
	env := newCLIEnv(t)
	input := env.write(t, "notes.csv", notesCSV)

	_, _, err := env.exec(t, "", "run", "-q", "--input", input, "--chunk-size", "50")
	assert.ErrorIs(t, err, config.ErrInvalid)

	_, _, err = env.exec(t, "", "run", "-q", "--input", input, "--output", filepath.Join(env.dir, "out.txt"))
	assert.ErrorContains(t, err, "unsupported output format")

	_, _, err = env.exec(t, "", "run", "-q")
	assert.ErrorContains(t, err, "input")
}

func TestRunsCommand_EmptyAndDelete(t *testing.T) {
	env := newCLIEnv(t)
	out, _, err := env.exec(t, "", "runs")
	require.NoError(t, err)
	assert.Equal(t, "No runs recorded.\n", out)

	input := env.write(t, "notes.csv", notesCSV)
	_, _, err = env.exec(t, "", "run", "-q", "--input", input)
	require.NoError(t, err)
	id := env.runs(t)[0].ID

	_, _, err = env.exec(t, "", "runs", "delete", id)
	require.NoError(t, err)
	assert.Empty(t, env.runs(t))

	_, _, err = env.exec(t, "", "show", id)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDefaultOutputPath(t *testing.T) {
	cases := map[string]string{
		filepath.Join("data", "in.csv"): filepath.Join("data", "in_processed.csv"),
		"in.xlsx":                       "in_processed.xlsx",
		"in.yaml":                       "in_processed.csv",
		"in.ndjson":                     "in_processed.ndjson",
	}
	for in, want := range cases {
		assert.Equal(t, want, defaultOutputPath(in), in)
	}
}
