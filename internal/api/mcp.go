package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/dscopilot/internal/automator"
	"github.com/kalambet/dscopilot/internal/design"
	"github.com/kalambet/dscopilot/internal/protocol"
	"github.com/kalambet/dscopilot/internal/storage"
)

// MCPHost is the in-process document the MCP tools read and mutate.
type MCPHost interface {
	Selection() design.SelectionInfo
	DesignSystem() design.DesignSystemSnapshot
	Execute(ctx context.Context, script design.AutomatorScript) (automator.Result, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store ScriptStore
	Host  MCPHost     // optional; document tools return an error if nil
	Relay PluginRelay // optional; used by run_script when Host is nil
}

// NewMCPServer creates an MCP server with the document and library tools registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"dscopilot",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("dscopilot: read a design document's selection and color tokens and run saved Automator scripts against it."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("get_color_info",
			mcp.WithDescription("List the document's color tokens, one row per token and mode, as uppercase hex."),
		),
		mcpGetColorInfo(deps),
	)

	s.AddTool(
		mcp.NewTool("get_selection_info",
			mcp.WithDescription("Summarize the current selection: node names, types, bounds and the page."),
		),
		mcpGetSelectionInfo(deps),
	)

	s.AddTool(
		mcp.NewTool("list_scripts",
			mcp.WithDescription("List saved Automator scripts, newest first."),
			mcp.WithString("source", mcp.Description("Filter by source: user or generated")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
		),
		mcpListScripts(deps),
	)

	s.AddTool(
		mcp.NewTool("run_script",
			mcp.WithDescription("Run a saved Automator script against the document."),
			mcp.WithString("id", mcp.Description("Script id"), mcp.Required()),
		),
		mcpRunScript(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"design://system",
			"Design System",
			mcp.WithResourceDescription("Snapshot of the document's variables and screens as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceDesignSystem(deps),
	)

	return s
}

func mcpGetColorInfo(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Host == nil {
			return mcpError("no document attached"), nil
		}
		snap := deps.Host.DesignSystem()
		return mcpJSON(design.ColorInfoFrom(&snap)), nil
	}
}

func mcpGetSelectionInfo(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Host == nil {
			return mcpError("no document attached"), nil
		}
		return mcpJSON(deps.Host.Selection()), nil
	}
}

func mcpListScripts(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		if limit > 100 {
			limit = 100
		}
		source := req.GetString("source", "")

		scripts, err := deps.Store.ListScripts(source, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list scripts: %v", err)), nil
		}

		type scriptSummary struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			Description string `json:"description,omitempty"`
			Source      string `json:"source"`
			Actions     int    `json:"actions"`
			CreatedAt   string `json:"created_at"`
		}

		summaries := make([]scriptSummary, len(scripts))
		for i, sc := range scripts {
			summaries[i] = scriptSummary{
				ID:          sc.ID,
				Name:        sc.Name,
				Description: sc.Description,
				Source:      sc.Source,
				Actions:     len(sc.Actions),
				CreatedAt:   sc.CreatedAt.Format(time.RFC3339),
			}
		}
		return mcpJSON(summaries), nil
	}
}

func mcpRunScript(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		script, err := deps.Store.GetScript(id)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("script %s not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get script: %v", err)), nil
		}

		var text string
		switch {
		case deps.Host != nil:
			res, err := deps.Host.Execute(ctx, script.AutomatorScript)
			if err != nil {
				return mcpError(err.Error()), nil
			}
			text = fmt.Sprintf("Ran %q: %d applied, %d skipped", script.Name, res.Applied, res.Skipped)
		case deps.Relay != nil:
			sc := script.AutomatorScript
			n := deps.Relay.ToPlugins(protocol.PluginMessage{
				Type:   protocol.MsgExecuteAutomator,
				ID:     uuid.New().String(),
				Script: &sc,
			})
			if n == 0 {
				return mcpError("no plugin connected"), nil
			}
			text = fmt.Sprintf("Sent %q to %d plugin(s)", script.Name, n)
		default:
			return mcpError("no document attached"), nil
		}

		if err := deps.Store.MarkScriptRun(id, time.Now()); err != nil {
			return mcpError(fmt.Sprintf("script ran but the run was not recorded: %v", err)), nil
		}
		return mcpText(text), nil
	}
}

func mcpResourceDesignSystem(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		if deps.Host == nil {
			return nil, fmt.Errorf("no document attached")
		}

		b, err := json.Marshal(deps.Host.DesignSystem())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal design system: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) *mcp.CallToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err))
	}
	return mcpText(string(b))
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
