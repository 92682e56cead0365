// Package mcp provides a Model Context Protocol server for provnotes.
//
// It exposes cleaning, field extraction, the product-group catalog and the
// run history as MCP tools, and the catalog as an MCP resource. The CLI
// serves it over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/hurttlocker/provnotes/internal/clean"
	"github.com/hurttlocker/provnotes/internal/config"
	"github.com/hurttlocker/provnotes/internal/extract"
	"github.com/hurttlocker/provnotes/internal/ingest"
	"github.com/hurttlocker/provnotes/internal/pipeline"
	"github.com/hurttlocker/provnotes/internal/store"
)

// CatalogURI is the catalog resource address.
const CatalogURI = "provnotes://catalog"

// maxRunsLimit caps provnotes_runs listings.
const maxRunsLimit = 100

// maxFileRows caps the rows returned by provnotes_process_file.
const maxFileRows = 500

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Processor *pipeline.Processor
	Store     store.Store // optional; provnotes_runs reports an error without it
	Version   string
	Logger    *zap.Logger
}

// dbMu serializes tool calls that touch the run store. mcp-go dispatches
// handlers concurrently.
var dbMu sync.Mutex

// NewServer creates a configured MCP server with all provnotes tools and
// resources.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := server.NewMCPServer(
		"provnotes",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	h := &handlers{p: cfg.Processor, st: cfg.Store, logger: logger}
	registerCleanTool(s, h)
	registerExtractTool(s, h)
	registerProcessFileTool(s, h)
	registerGroupsTool(s, h)
	registerRunsTool(s, h)
	registerCatalogResource(s, h)
	return s
}

// Serve runs the server on stdin/stdout until the client disconnects.
func Serve(cfg ServerConfig) error {
	return server.ServeStdio(NewServer(cfg))
}

type handlers struct {
	p      *pipeline.Processor
	st     store.Store
	logger *zap.Logger
}

// --- Tools ---

func registerCleanTool(s *server.MCPServer, h *handlers) {
	tool := mcp.NewTool("provnotes_clean",
		mcp.WithDescription("Clean raw provisioning notes: drop separators, debug/log lines and CLI noise while keeping configuration lines and lines that mention the group's mandatory fields."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Raw notes text"),
		),
		mcp.WithString("group",
			mcp.Description("Product group key (e.g. residential_fiber). Empty = no group."),
		),
		mcp.WithBoolean("explain",
			mcp.Description("Return the per-line decisions as JSON instead of the cleaned text (default: false)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcp.NewToolResultError("text is required"), nil
		}
		group := strings.TrimSpace(req.GetString("group", ""))

		if req.GetBool("explain", false) {
			return jsonResult(h.p.Cleaner().Explain(text, group))
		}
		return mcp.NewToolResultText(h.p.Cleaner().CleanString(text, group)), nil
	})
}

type extractResponse struct {
	Group       string               `json:"group,omitempty"`
	Cleaned     string               `json:"cleaned"`
	Fields      map[string]any       `json:"fields"`
	Mandatory   map[string]any       `json:"mandatory,omitempty"`
	Resolutions []extract.Resolution `json:"resolutions,omitempty"`
	Lines       []clean.LineDecision `json:"lines,omitempty"`
}

func registerExtractTool(s *server.MCPServer, h *handlers) {
	tool := mcp.NewTool("provnotes_extract",
		mcp.WithDescription("Extract technical fields (serial, VLAN, IPs, ASN, Wi-Fi, PPPoE, optical power...) from provisioning notes. Mandatory fields of the product group are resolved first."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Raw notes text"),
		),
		mcp.WithString("group",
			mcp.Description("Product group key. Enables the mandatory pass and group priorities."),
		),
		mcp.WithBoolean("clean",
			mcp.Description("Clean the text before extracting (default: true)"),
		),
		mcp.WithBoolean("explain",
			mcp.Description("Include per-field scores, patterns and line decisions (default: false)"),
		),
		mcp.WithBoolean("include_empty",
			mcp.Description("Include fields that were not found, as null (default: false)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcp.NewToolResultError("text is required"), nil
		}
		group := strings.TrimSpace(req.GetString("group", ""))
		reg := h.p.Registry()
		if group != "" {
			g, ok := reg.Group(group)
			if !ok {
				return mcp.NewToolResultError(fmt.Sprintf("unknown group %q; see provnotes_groups", group)), nil
			}
			group = g.Key
		}

		cleaned := text
		if req.GetBool("clean", true) {
			cleaned = h.p.Cleaner().CleanString(text, group)
		}

		resp := extractResponse{Group: group, Cleaned: cleaned, Fields: map[string]any{}}
		includeEmpty := req.GetBool("include_empty", false)
		for name, v := range h.p.Extractor().ExtractAll(cleaned, group) {
			if v != nil || includeEmpty {
				resp.Fields[name] = v
			}
		}
		if group != "" {
			resp.Mandatory = h.p.Extractor().ExtractMandatory(cleaned, group)
		}
		if req.GetBool("explain", false) {
			resp.Resolutions = h.p.Extractor().ExtractDetailed(cleaned, group)
			resp.Lines = h.p.Cleaner().Explain(text, group)
		}
		return jsonResult(resp)
	})
}

type fileRow struct {
	Index   int            `json:"index"`
	Group   string         `json:"group,omitempty"`
	Cleaned any            `json:"cleaned"`
	Fields  map[string]any `json:"fields"`
}

func registerProcessFileTool(s *server.MCPServer, h *handlers) {
	tool := mcp.NewTool("provnotes_process_file",
		mcp.WithDescription("Clean and extract every record of a local CSV/TSV/XLSX/JSON/JSONL/YAML/TXT file without saving a run. Returns totals and the first rows that yielded fields."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path to the input file"),
		),
		mcp.WithString("notes_column",
			mcp.Description("Notes column name (default: notes)"),
		),
		mcp.WithString("group_column",
			mcp.Description("Product group column name (default: product_group)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum rows to return (default: 20, max: 500)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := req.RequireString("path")
		if err != nil {
			return mcp.NewToolResultError("path is required"), nil
		}
		src, err := ingest.Open(path)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		defer src.Close()

		records, err := pipeline.ReadRecords(ctx, src,
			req.GetString("notes_column", config.DefaultNotesColumn),
			req.GetString("group_column", config.DefaultGroupColumn))
		if err != nil {
			h.logger.Warn("reading file", zap.String("path", path), zap.Error(err))
			return mcp.NewToolResultError(err.Error()), nil
		}

		limit := min(req.GetInt("limit", 20), maxFileRows)
		rows := []fileRow{}
		successful := 0
		for _, o := range h.p.ProcessRecords(records) {
			if !o.Successful {
				continue
			}
			successful++
			if len(rows) >= limit {
				continue
			}
			fields := map[string]any{}
			for name, v := range o.Fields {
				if v != nil {
					fields[name] = v
				}
			}
			rows = append(rows, fileRow{Index: o.Index, Group: o.Group, Cleaned: o.Cleaned, Fields: fields})
		}
		return jsonResult(map[string]any{
			"records":    len(records),
			"successful": successful,
			"rows":       rows,
		})
	})
}

func registerGroupsTool(s *server.MCPServer, h *handlers) {
	tool := mcp.NewTool("provnotes_groups",
		mcp.WithDescription("List product groups with their mandatory business fields and the extracted field behind each."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(map[string]any{
			"groups": h.p.Registry().Summaries(),
			"fields": h.p.Registry().FieldNames(),
		})
	})
}

type runView struct {
	ID                string               `json:"id"`
	Input             string               `json:"input,omitempty"`
	State             string               `json:"state"`
	Success           bool                 `json:"success"`
	TotalRecords      int                  `json:"total_records"`
	SuccessfulRecords int                  `json:"successful_records"`
	SuccessRate       float64              `json:"success_rate"`
	Chunks            int                  `json:"chunks"`
	Errors            []string             `json:"errors,omitempty"`
	StartedAt         string               `json:"started_at"`
	DurationMS        int64                `json:"duration_ms"`
	Fields            []pipeline.FieldStat `json:"fields,omitempty"`
	Groups            []pipeline.GroupStat `json:"groups,omitempty"`
}

func newRunView(r *store.RunRecord) runView {
	return runView{
		ID:                r.ID,
		Input:             r.Input,
		State:             r.State,
		Success:           r.Success,
		TotalRecords:      r.TotalRecords,
		SuccessfulRecords: r.SuccessfulRecords,
		SuccessRate:       r.SuccessRate,
		Chunks:            r.Chunks,
		Errors:            r.Errors,
		StartedAt:         r.StartedAt.UTC().Format("2006-01-02T15:04:05Z"),
		DurationMS:        r.Duration().Milliseconds(),
		Fields:            r.Fields,
		Groups:            r.Groups,
	}
}

func registerRunsTool(s *server.MCPServer, h *handlers) {
	tool := mcp.NewTool("provnotes_runs",
		mcp.WithDescription("List saved pipeline runs (newest first), or show one run with field and group statistics when id is given."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of runs to list (default: 20, max: 100)"),
		),
		mcp.WithString("id",
			mcp.Description("Run id or unique id prefix"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if h.st == nil {
			return mcp.NewToolResultError("run history is not available (no store configured)"), nil
		}
		dbMu.Lock()
		defer dbMu.Unlock()

		if id := strings.TrimSpace(req.GetString("id", "")); id != "" {
			run, err := h.st.GetRun(ctx, id)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return jsonResult(newRunView(run))
		}

		limit := req.GetInt("limit", 20)
		if limit > maxRunsLimit {
			limit = maxRunsLimit
		}
		runs, err := h.st.ListRuns(ctx, limit)
		if err != nil {
			h.logger.Error("listing runs", zap.Error(err))
			return mcp.NewToolResultError(fmt.Sprintf("listing runs: %v", err)), nil
		}
		views := make([]runView, 0, len(runs))
		for _, r := range runs {
			views = append(views, newRunView(r))
		}
		return jsonResult(map[string]any{"runs": views, "count": len(views)})
	})
}

// --- Resources ---

func registerCatalogResource(s *server.MCPServer, h *handlers) {
	resource := mcp.NewResource(
		CatalogURI,
		"Product Group Catalog",
		mcp.WithResourceDescription("Product groups, their mandatory business fields and the registry fields they map to."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		data, err := json.MarshalIndent(map[string]any{
			"groups": h.p.Registry().Summaries(),
			"fields": h.p.Registry().FieldNames(),
		}, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encoding catalog: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
