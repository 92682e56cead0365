package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hurttlocker/provnotes/internal/pipeline"
	"github.com/hurttlocker/provnotes/internal/registry"
	"github.com/hurttlocker/provnotes/internal/store"
)

func newTestServer(t *testing.T, withStore bool) (*server.MCPServer, store.Store) {
	t.Helper()
	reg, err := registry.Default()
	require.NoError(t, err)

	cfg := ServerConfig{Processor: pipeline.NewProcessor(reg), Version: "test"}
	var st store.Store
	if withStore {
		st, err = store.NewStore(store.StoreConfig{DBPath: ":memory:"})
		require.NoError(t, err)
		t.Cleanup(func() { st.Close() })
		cfg.Store = st
	}
	return NewServer(cfg), st
}

// callTool invokes an MCP tool through the JSON-RPC entry point.
func callTool(t *testing.T, srv *server.MCPServer, name string, args map[string]interface{}) *mcplib.CallToolResult {
	t.Helper()

	result := srv.HandleMessage(context.Background(), mustMarshal(t, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params": map[string]interface{}{
			"name":      name,
			"arguments": args,
		},
	}))

	respBytes, err := json.Marshal(result)
	require.NoError(t, err)

	var resp struct {
		Result struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
			IsError bool `json:"isError"`
		} `json:"result"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(respBytes, &resp), string(respBytes))
	require.Nil(t, resp.Error, "JSON-RPC error: %s", string(respBytes))

	callResult := &mcplib.CallToolResult{IsError: resp.Result.IsError}
	for _, c := range resp.Result.Content {
		if c.Type == "text" {
			callResult.Content = append(callResult.Content, mcplib.NewTextContent(c.Text))
		}
	}
	return callResult
}

func callResource(t *testing.T, srv *server.MCPServer, uri string) string {
	t.Helper()

	result := srv.HandleMessage(context.Background(), mustMarshal(t, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "resources/read",
		"params":  map[string]interface{}{"uri": uri},
	}))

	respBytes, err := json.Marshal(result)
	require.NoError(t, err)

	var resp struct {
		Result struct {
			Contents []struct {
				Text string `json:"text"`
			} `json:"contents"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(respBytes, &resp))
	require.Nil(t, resp.Error, string(respBytes))
	require.NotEmpty(t, resp.Result.Contents)
	return resp.Result.Contents[0].Text
}

func mustMarshal(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func getTextContent(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no text content found")
	return ""
}

func TestCleanTool(t *testing.T) {
	srv, _ := newTestServer(t, false)

	result := callTool(t, srv, "provnotes_clean", map[string]interface{}{
		"text":  "=====\n[DEBUG] link up\ninterface Gi0/1\n  ip address 10.0.0.1 255.255.255.252\nquit",
		"group": "dedicated_internet",
	})
	require.False(t, result.IsError)
	assert.Equal(t, "interface Gi0/1\nip address 10.0.0.1 255.255.255.252", getTextContent(t, result))
}

func TestCleanTool_Explain(t *testing.T) {
	srv, _ := newTestServer(t, false)

	result := callTool(t, srv, "provnotes_clean", map[string]interface{}{
		"text":    "-----\nvlan 100",
		"explain": true,
	})
	var decisions []struct {
		Class string `json:"class"`
		Kept  bool   `json:"kept"`
	}
	require.NoError(t, json.Unmarshal([]byte(getTextContent(t, result)), &decisions))
	require.Len(t, decisions, 2)
	assert.Equal(t, "noise", decisions[0].Class)
	assert.False(t, decisions[0].Kept)
	assert.True(t, decisions[1].Kept)
}

func TestCleanTool_MissingText(t *testing.T) {
	srv, _ := newTestServer(t, false)
	result := callTool(t, srv, "provnotes_clean", map[string]interface{}{})
	assert.True(t, result.IsError)
}

func TestExtractTool(t *testing.T) {
	srv, _ := newTestServer(t, false)

	result := callTool(t, srv, "provnotes_extract", map[string]interface{}{
		"text":  "SN: BB001 SSID: WiFi_0 password: pass0 VLAN: 100",
		"group": "Residential_Fiber",
	})
	require.False(t, result.IsError)

	var resp struct {
		Group     string         `json:"group"`
		Fields    map[string]any `json:"fields"`
		Mandatory map[string]any `json:"mandatory"`
	}
	require.NoError(t, json.Unmarshal([]byte(getTextContent(t, result)), &resp))
	assert.Equal(t, "residential_fiber", resp.Group)
	assert.Equal(t, map[string]any{
		"serial_code":   "BB001",
		"wifi_ssid":     "WiFi_0",
		"wifi_passcode": "pass0",
		"vlan":          float64(100),
	}, resp.Fields)
	assert.Equal(t, "BB001", resp.Mandatory["Serial"])
	assert.Nil(t, resp.Mandatory["Potência Óptica"])
}

func TestExtractTool_ExplainAndEmpty(t *testing.T) {
	srv, _ := newTestServer(t, false)

	result := callTool(t, srv, "provnotes_extract", map[string]interface{}{
		"text":          "vlan 100",
		"explain":       true,
		"include_empty": true,
	})
	var resp struct {
		Fields      map[string]any `json:"fields"`
		Resolutions []struct {
			Field string  `json:"field"`
			Score float64 `json:"score"`
			Pass  string  `json:"pass"`
		} `json:"resolutions"`
		Lines []map[string]any `json:"lines"`
	}
	require.NoError(t, json.Unmarshal([]byte(getTextContent(t, result)), &resp))

	reg, err := registry.Default()
	require.NoError(t, err)
	assert.Len(t, resp.Fields, len(reg.FieldNames()))
	require.Len(t, resp.Resolutions, 1)
	assert.Equal(t, "vlan", resp.Resolutions[0].Field)
	assert.Equal(t, "generic", resp.Resolutions[0].Pass)
	assert.InDelta(t, 0.87, resp.Resolutions[0].Score, 1e-9)
	assert.Len(t, resp.Lines, 1)
}

func TestExtractTool_UnknownGroup(t *testing.T) {
	srv, _ := newTestServer(t, false)
	result := callTool(t, srv, "provnotes_extract", map[string]interface{}{
		"text":  "vlan 100",
		"group": "satellite",
	})
	assert.True(t, result.IsError)
	assert.Contains(t, getTextContent(t, result), "unknown group")
}

func TestProcessFileTool(t *testing.T) {
	srv, _ := newTestServer(t, false)
	path := filepath.Join(t.TempDir(), "notes.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,notes,product_group\n"+
		"1,SN: BB001 VLAN: 100,residential_fiber\n"+
		"2,vlan 200,\n"+
		"3,,residential_fiber\n"), 0o600))

	result := callTool(t, srv, "provnotes_process_file", map[string]interface{}{
		"path":  path,
		"limit": 1,
	})
	require.False(t, result.IsError, getTextContent(t, result))

	var resp struct {
		Records    int `json:"records"`
		Successful int `json:"successful"`
		Rows       []struct {
			Index   int            `json:"index"`
			Group   string         `json:"group"`
			Cleaned string         `json:"cleaned"`
			Fields  map[string]any `json:"fields"`
		} `json:"rows"`
	}
	require.NoError(t, json.Unmarshal([]byte(getTextContent(t, result)), &resp))
	assert.Equal(t, 3, resp.Records)
	assert.Equal(t, 2, resp.Successful)
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, 0, resp.Rows[0].Index)
	assert.Equal(t, "residential_fiber", resp.Rows[0].Group)
	assert.Equal(t, "BB001", resp.Rows[0].Fields["serial_code"])
	assert.Equal(t, float64(100), resp.Rows[0].Fields["vlan"])
	assert.NotContains(t, resp.Rows[0].Fields, "asn")
}

func TestProcessFileTool_Errors(t *testing.T) {
	srv, _ := newTestServer(t, false)
	path := filepath.Join(t.TempDir(), "notes.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,text\n1,vlan 100\n"), 0o600))

	result := callTool(t, srv, "provnotes_process_file", map[string]interface{}{"path": path})
	assert.True(t, result.IsError)
	assert.Contains(t, getTextContent(t, result), `"notes"`)

	result = callTool(t, srv, "provnotes_process_file", map[string]interface{}{"path": path, "notes_column": "text"})
	assert.False(t, result.IsError)

	result = callTool(t, srv, "provnotes_process_file", map[string]interface{}{"path": filepath.Join(t.TempDir(), "none.csv")})
	assert.True(t, result.IsError)
}

func TestGroupsToolAndCatalogResource(t *testing.T) {
	srv, _ := newTestServer(t, false)

	var fromTool, fromResource struct {
		Groups []registry.GroupSummary `json:"groups"`
		Fields []string                `json:"fields"`
	}
	require.NoError(t, json.Unmarshal([]byte(getTextContent(t, callTool(t, srv, "provnotes_groups", nil))), &fromTool))
	require.NoError(t, json.Unmarshal([]byte(callResource(t, srv, CatalogURI)), &fromResource))

	require.NotEmpty(t, fromTool.Groups)
	assert.Equal(t, "residential_fiber", fromTool.Groups[0].Key)
	assert.Contains(t, fromTool.Fields, "vlan")
	assert.Equal(t, fromTool, fromResource)
}

func TestRunsTool(t *testing.T) {
	srv, st := newTestServer(t, true)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	for i, id := range []string{"run-old", "run-new"} {
		require.NoError(t, st.SaveRun(ctx, &store.RunRecord{
			ID:           id,
			State:        "completed",
			Success:      true,
			NotesColumn:  "notes",
			TotalRecords: 10 * (i + 1),
			StartedAt:    base.Add(time.Duration(i) * time.Hour),
			FinishedAt:   base.Add(time.Duration(i)*time.Hour + 2*time.Second),
			Fields:       []pipeline.FieldStat{{Field: "vlan", Count: 3, Percentage: 30, Samples: []string{"100"}}},
		}))
	}

	var list struct {
		Runs []struct {
			ID         string `json:"id"`
			DurationMS int64  `json:"duration_ms"`
		} `json:"runs"`
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal([]byte(getTextContent(t, callTool(t, srv, "provnotes_runs", map[string]interface{}{"limit": 5}))), &list))
	assert.Equal(t, 2, list.Count)
	assert.Equal(t, "run-new", list.Runs[0].ID)
	assert.Equal(t, int64(2000), list.Runs[0].DurationMS)

	var one struct {
		ID     string               `json:"id"`
		Fields []pipeline.FieldStat `json:"fields"`
	}
	require.NoError(t, json.Unmarshal([]byte(getTextContent(t, callTool(t, srv, "provnotes_runs", map[string]interface{}{"id": "run-o"}))), &one))
	assert.Equal(t, "run-old", one.ID)
	require.Len(t, one.Fields, 1)

	missing := callTool(t, srv, "provnotes_runs", map[string]interface{}{"id": "nope"})
	assert.True(t, missing.IsError)
}

func TestRunsTool_WithoutStore(t *testing.T) {
	srv, _ := newTestServer(t, false)
	result := callTool(t, srv, "provnotes_runs", nil)
	assert.True(t, result.IsError)
	assert.Contains(t, getTextContent(t, result), "no store")
}
