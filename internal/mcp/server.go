// Package mcp exposes the archive catalog to MCP clients over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ifarchive/indexadmin/internal/archive"
	"github.com/ifarchive/indexadmin/internal/catalog"
	"github.com/ifarchive/indexadmin/internal/index"
	"github.com/ifarchive/indexadmin/internal/store"
)

var (
	db              *store.DB
	arch            *archive.Archive
	lastCatalogTime time.Time
	catalogMu       sync.Mutex
)

const catalogCooldown = 60 * time.Second

// Version is set by the caller (main) before calling Serve.
var Version = "dev"

// Serve starts the MCP server on stdio. It blocks until ctx is done or the
// client disconnects.
func Serve(ctx context.Context, database *store.DB, a *archive.Archive) error {
	db = database
	arch = a

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "indexadmin",
		Version: Version,
	}, nil)

	registerTools(server)

	return server.Run(ctx, &mcp.StdioTransport{})
}

func registerTools(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_index",
		Description: "Read the parsed Index file of one archive directory: the directory's own metadata and description, then every documented file in order.\n\nArgs:\n  dir: Directory relative to the archive root (e.g. 'games/zcode'); empty for the root\n\nReturns JSON. Descriptions that look like prompt injection are withheld and marked flagged.",
	}, handleGetIndex)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "find_entries",
		Description: "Search the catalog of all Index files. Give key (and optionally value) to match metadata such as ifid or tuid, or query to match filenames and description text.\n\nArgs:\n  key: Metadata key\n  value: Exact metadata value (optional)\n  query: Text to find in filenames or descriptions\n  limit: Number of results (default 20, max 100)\n\nReturns matching entries with their directory.",
	}, handleFindEntries)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "validate_metadata",
		Description: "Check a block of metadata text before it is saved. Each line must be 'key: value', a continuation indented by four spaces or a tab, or blank.\n\nArgs:\n  metadata: The metadata block\n\nReturns the parsed pairs, or the first invalid line and its line number.",
	}, handleValidateMetadata)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "catalog",
		Description: "Re-scan the archive and update the catalog. Incremental by default (only changed Index files are re-read).\n\nArgs:\n  force: Recatalog every Index file regardless of changes (default false)\n\nReturns catalog statistics.",
	}, handleCatalog)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "catalog_stats",
		Description: "Report how many directories and entries are cataloged and when the catalog last ran.",
	}, handleCatalogStats)
}

// Tool input types

type getIndexInput struct {
	Dir string `json:"dir" jsonschema:"Directory relative to the archive root"`
}

type findInput struct {
	Key   string `json:"key,omitempty" jsonschema:"Metadata key"`
	Value string `json:"value,omitempty" jsonschema:"Exact metadata value"`
	Query string `json:"query,omitempty" jsonschema:"Text to find in filenames or descriptions"`
	Limit int    `json:"limit,omitempty" jsonschema:"Number of results (default 20, max 100)"`
}

type validateInput struct {
	Metadata string `json:"metadata" jsonschema:"Metadata block text"`
}

type catalogInput struct {
	Force bool `json:"force" jsonschema:"Recatalog every Index file regardless of changes"`
}

type emptyInput struct{}

// Output types

type entryView struct {
	Dirname     string         `json:"dirname,omitempty"`
	Filename    string         `json:"filename"`
	Metadata    index.Metadata `json:"metadata"`
	Description string         `json:"description,omitempty"`
	Flagged     bool           `json:"flagged,omitempty"`
}

type dirView struct {
	Dirname     string         `json:"dirname"`
	Metadata    index.Metadata `json:"metadata"`
	Description string         `json:"description,omitempty"`
	Flagged     bool           `json:"flagged,omitempty"`
	Files       []entryView    `json:"files"`
}

const withheldNotice = "[withheld: description resembles a prompt injection]"

// screen returns desc, or a notice and true when desc looks like an
// injection attempt.
func screen(desc string) (string, bool) {
	if detectInjection(desc) {
		return withheldNotice, true
	}
	return desc, false
}

// Tool handlers

func handleGetIndex(ctx context.Context, req *mcp.CallToolRequest, input getIndexInput) (*mcp.CallToolResult, any, error) {
	d, err := arch.Load(input.Dir)
	if err != nil {
		if errors.Is(err, archive.ErrBadDirname) {
			return textResult("Error: dir must be a relative path within the archive."), nil, nil
		}
		arch.Logger().Named("mcp").Error("read index", "dir", input.Dir, "error", err)
		return textResult("Error reading Index file."), nil, nil
	}
	if !d.HasData() {
		return textResult(fmt.Sprintf("No Index file in %s.", d.Dirname)), nil, nil
	}

	view := dirView{Dirname: d.Dirname, Metadata: d.Metadata, Files: []entryView{}}
	view.Description, view.Flagged = screen(d.Description)
	for _, f := range d.Files {
		e := entryView{Filename: f.Filename, Metadata: f.Metadata}
		e.Description, e.Flagged = screen(f.Description)
		if e.Flagged {
			arch.Logger().Named("mcp").Warn("withheld description", "dir", d.Dirname, "file", f.Filename)
		}
		view.Files = append(view.Files, e)
	}

	data, _ := json.MarshalIndent(view, "", "  ")
	return textResult(string(data)), nil, nil
}

func handleFindEntries(ctx context.Context, req *mcp.CallToolRequest, input findInput) (*mcp.CallToolResult, any, error) {
	limit := clampLimit(input.Limit, 20)

	var (
		records []store.EntryRecord
		err     error
	)
	switch {
	case input.Key != "":
		records, err = db.FindByMetadata(input.Key, input.Value, limit)
	case input.Query != "":
		records, err = db.SearchDescriptions(input.Query, limit)
	default:
		return textResult("Error: give key or query."), nil, nil
	}
	if err != nil {
		return textResult(fmt.Sprintf("Search error: %v", err)), nil, nil
	}
	if len(records) == 0 {
		return textResult("No entries found. The catalog may be empty; try running catalog() first."), nil, nil
	}

	views := make([]entryView, 0, len(records))
	for _, r := range records {
		v := entryView{Dirname: r.Dirname, Filename: r.Filename, Metadata: r.Metadata}
		v.Description, v.Flagged = screen(r.Description)
		views = append(views, v)
	}
	data, _ := json.MarshalIndent(views, "", "  ")
	return textResult(string(data)), nil, nil
}

func handleValidateMetadata(ctx context.Context, req *mcp.CallToolRequest, input validateInput) (*mcp.CallToolResult, any, error) {
	pairs, err := index.ValidateMetadataBlock(input.Metadata)
	var verr *index.ValidationError
	if errors.As(err, &verr) {
		data, _ := json.Marshal(map[string]any{
			"valid":   false,
			"line":    verr.Line,
			"line_no": verr.LineNo,
		})
		return textResult(string(data)), nil, nil
	}
	if pairs == nil {
		pairs = index.Metadata{}
	}
	data, _ := json.MarshalIndent(map[string]any{"valid": true, "metadata": pairs}, "", "  ")
	return textResult(string(data)), nil, nil
}

func handleCatalog(ctx context.Context, req *mcp.CallToolRequest, input catalogInput) (*mcp.CallToolResult, any, error) {
	catalogMu.Lock()
	defer catalogMu.Unlock()

	if time.Since(lastCatalogTime) < catalogCooldown {
		remaining := int(catalogCooldown.Seconds() - time.Since(lastCatalogTime).Seconds())
		data, _ := json.Marshal(map[string]string{
			"error": fmt.Sprintf("Catalog cooldown active. Try again in %ds.", remaining),
		})
		return textResult(string(data)), nil, nil
	}
	lastCatalogTime = time.Now()

	stats, err := catalog.Reindex(db, arch, input.Force)
	if err != nil {
		return textResult(fmt.Sprintf("Catalog error: %v", err)), nil, nil
	}
	data, _ := json.MarshalIndent(stats, "", "  ")
	return textResult(string(data)), nil, nil
}

func handleCatalogStats(ctx context.Context, req *mcp.CallToolRequest, input emptyInput) (*mcp.CallToolResult, any, error) {
	data, _ := json.MarshalIndent(catalog.GetStats(db), "", "  ")
	return textResult(string(data)), nil, nil
}

// Helpers

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func clampLimit(limit, defaultVal int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit > 100 {
		return 100
	}
	return limit
}
