package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"hdql/internal/ast"
	"hdql/internal/engine"
	"hdql/internal/format"
	"hdql/internal/parser"
	"hdql/internal/store"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

const mcpVersion = "1.0.0"

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start an MCP server exposing HDQL query tools over stdio",
	Args:  cobra.NoArgs,
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	st, err := openExisting()
	if err != nil {
		return err
	}
	defer st.Close()

	snap, err := st.Snapshot()
	if err != nil {
		return fmt.Errorf("read store: %w", err)
	}
	live := store.NewLive(snap)
	eng := newEngine(nil, engine.WithLive(live))

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	serveMetrics(ctx)
	go func() {
		if err := store.Watch(ctx, cfg.DB, live, st.Snapshot, logger); err != nil {
			logger.Warn("store watcher stopped", "error", err)
		}
	}()

	return mcpserver.ServeStdio(newMCPServer(eng, cfg.TopK))
}

func newMCPServer(eng *engine.Engine, defaultK int) *mcpserver.MCPServer {
	s := mcpserver.NewMCPServer("hdql", mcpVersion, mcpserver.WithToolCapabilities(false))
	s.AddTool(queryTool(), makeQueryHandler(eng, defaultK))
	s.AddTool(explainTool(), makeExplainHandler(eng))
	s.AddTool(parseTool(), makeParseHandler(eng))
	s.AddTool(listEntitiesTool(), makeListEntitiesHandler(eng))
	return s
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

// --- Tool schema builders ---

var readOnlyAnnotation = mcp.ToolAnnotation{
	ReadOnlyHint:    mcp.ToBoolPtr(true),
	DestructiveHint: mcp.ToBoolPtr(false),
	IdempotentHint:  mcp.ToBoolPtr(true),
	OpenWorldHint:   mcp.ToBoolPtr(false),
}

const grammarHint = `Examples: command("deps-add"), command("dep*"), job("dev") -> command("*"), ` +
	`similar_to(feature("cache"), distance=0.4), feature("*").coverage < 0.5, ` +
	`maximize(coverage) subject_to(effort <= 100).`

func queryTool() mcp.Tool {
	return mcp.NewTool("hdql_query",
		mcp.WithDescription("Run an HDQL query over the entity catalog and return ranked matches or recommendations. "+grammarHint),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("HDQL query string"),
		),
		mcp.WithNumber("top_k",
			mcp.Description("Maximum number of results (default from config)"),
		),
		mcp.WithBoolean("verbose",
			mcp.Description("Include the step-by-step reasoning trace"),
		),
		mcp.WithString("format",
			mcp.Description("markdown (default) or json"),
			mcp.Enum("markdown", "json"),
		),
	)
}

func explainTool() mcp.Tool {
	return mcp.NewTool("hdql_explain",
		mcp.WithDescription("Show the execution plan HDQL would run for a query, with cost estimate and index hints."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("HDQL query string"),
		),
	)
}

func parseTool() mcp.Tool {
	return mcp.NewTool("hdql_parse",
		mcp.WithDescription("Check an HDQL query for syntax errors and return its syntax tree and canonical form."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("HDQL query string"),
		),
	)
}

func listEntitiesTool() mcp.Tool {
	return mcp.NewTool("hdql_list_entities",
		mcp.WithDescription("List catalog entities, optionally filtered by type and name prefix."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("type",
			mcp.Description("Optional entity type, e.g. 'command' or 'feature'"),
		),
		mcp.WithString("prefix",
			mcp.Description("Optional name prefix"),
		),
	)
}

// --- Handler factories ---

func makeQueryHandler(eng *engine.Engine, defaultK int) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := req.GetString("query", "")
		if query == "" {
			return mcp.NewToolResultError("query is required"), nil
		}
		k := req.GetInt("top_k", defaultK)
		if k <= 0 {
			k = defaultK
		}
		res, err := eng.Execute(ctx, query, k, req.GetBool("verbose", false))
		if err != nil {
			return toolError(err), nil
		}
		if req.GetString("format", "markdown") == "json" {
			b, err := json.MarshalIndent(res.ToMap(), "", "  ")
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
			}
			return mcp.NewToolResultText(string(b)), nil
		}
		return mcp.NewToolResultText(format.RenderMarkdown(res)), nil
	}
}

func makeExplainHandler(eng *engine.Engine) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := req.GetString("query", "")
		if query == "" {
			return mcp.NewToolResultError("query is required"), nil
		}
		out, err := eng.Explain(query)
		if err != nil {
			return toolError(err), nil
		}
		return mcp.NewToolResultText(out), nil
	}
}

func makeParseHandler(eng *engine.Engine) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := req.GetString("query", "")
		if query == "" {
			return mcp.NewToolResultError("query is required"), nil
		}
		n, err := eng.Parse(query)
		if err != nil {
			return toolError(err), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("%s\ncanonical: %s", ast.Dump(n), n)), nil
	}
}

func makeListEntitiesHandler(eng *engine.Engine) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		typ := strings.ToLower(req.GetString("type", ""))
		prefix := req.GetString("prefix", "")
		st := eng.Store()

		var ents []*store.Entity
		if typ != "" {
			ents = st.LookupPrefix(typ, prefix)
		} else {
			for _, e := range st.Entities() {
				if strings.HasPrefix(e.Name, prefix) {
					ents = append(ents, e)
				}
			}
		}
		return mcp.NewToolResultText(formatEntityList(typ, ents)), nil
	}
}

// --- Formatting helpers ---

// toolError reports query errors as tool results so the model can retry.
func toolError(err error) *mcp.CallToolResult {
	msg := err.Error()
	var pe *parser.ParseError
	if errors.As(err, &pe) {
		msg += "\n" + pe.Pointer()
	}
	return mcp.NewToolResultError(msg)
}

func formatEntityList(typ string, ents []*store.Entity) string {
	var sb strings.Builder
	if typ != "" {
		fmt.Fprintf(&sb, "## Entities (%d, type: %s)\n\n", len(ents), typ)
	} else {
		fmt.Fprintf(&sb, "## Entities (%d)\n\n", len(ents))
	}
	for _, e := range ents {
		line := fmt.Sprintf("- **%s**", e.Key())
		if d := firstLine(e.Description, 120); d != "" {
			line += " - " + d
		}
		if len(e.Attributes) > 0 {
			line += " `" + attrSummary(e) + "`"
		}
		sb.WriteString(line + "\n")
	}
	return sb.String()
}

func firstLine(s string, n int) string {
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[:i]
	}
	if len(s) > n {
		s = s[:n] + "..."
	}
	return s
}

func attrSummary(e *store.Entity) string {
	names := make([]string, 0, len(e.Attributes))
	for k := range e.Attributes {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, k := range names {
		parts[i] = k + "=" + e.Attributes[k].String()
	}
	return strings.Join(parts, " ")
}
