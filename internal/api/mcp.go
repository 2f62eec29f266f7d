package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/sitesum/internal/workflow"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Machine *workflow.Machine
	Version string
}

// NewMCPServer creates an MCP server exposing the workflow as tools and its
// state as resources.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := server.NewMCPServer(
		"sitesum",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("sitesum summarizes web pages through a remote prompt service and tracks the objects it leaves there."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("summarize_url",
			mcp.WithDescription("Summarize a web page in two or three sentences. Blocks until the summary is ready."),
			mcp.WithString("url", mcp.Description("Address of the page to summarize"), mcp.Required()),
			mcp.WithBoolean("cleanup", mcp.Description("Delete the objects the run created on the prompt service afterwards (default false)")),
		),
		mcpSummarizeURL(deps),
	)

	s.AddTool(
		mcp.NewTool("reset_workflow",
			mcp.WithDescription("Abandon the current run and return to awaiting input. Created objects stay tracked."),
		),
		mcpResetWorkflow(deps),
	)

	s.AddTool(
		mcp.NewTool("cleanup_artifacts",
			mcp.WithDescription("Delete every tracked object from the prompt service and report the outcome."),
		),
		mcpCleanupArtifacts(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"workflow://state",
			"Workflow State",
			mcp.WithResourceDescription("Current run: step, url, summary and error"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceJSON(func() any { return deps.Machine.Snapshot() }),
	)

	s.AddResource(
		mcp.NewResource(
			"workflow://artifacts",
			"Tracked Artifacts",
			mcp.WithResourceDescription("Objects created on the prompt service that are pending deletion, in creation order"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceJSON(func() any { return deps.Machine.Artifacts() }),
	)

	s.AddResource(
		mcp.NewResource(
			"workflow://calls",
			"API Call Log",
			mcp.WithResourceDescription("Every call made to the prompt service since the last submission"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceJSON(func() any { return deps.Machine.Calls() }),
	)

	return s
}

func mcpSummarizeURL(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := req.RequireString("url")
		if err != nil {
			return mcpError("url is required"), nil
		}

		// A client that gives up should not cancel the run it started.
		run, err := deps.Machine.Submit(context.WithoutCancel(ctx), url)

		if req.GetBool("cleanup", false) {
			report := deps.Machine.Cleanup(context.WithoutCancel(ctx))
			if len(report.Failed) > 0 && err == nil {
				return mcpText(fmt.Sprintf("%s\n\n(%d of %d objects could not be deleted)",
					run.Summary, len(report.Failed), report.Attempted)), nil
			}
		}

		if err != nil {
			var verr *workflow.ValidationError
			var serr *workflow.StageError
			switch {
			case errors.As(err, &verr):
				return mcpError(verr.Message), nil
			case errors.As(err, &serr):
				return mcpError(serr.Message), nil
			case errors.Is(err, workflow.ErrSuperseded):
				return mcpError("run was reset or replaced before it finished"), nil
			default:
				return mcpError(fmt.Sprintf("summarize failed: %v", err)), nil
			}
		}

		return mcpText(run.Summary), nil
	}
}

func mcpResetWorkflow(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		deps.Machine.Reset()
		n := len(deps.Machine.Artifacts())
		return mcpText(fmt.Sprintf("Workflow reset; %d object(s) still tracked", n)), nil
	}
}

func mcpCleanupArtifacts(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		report := deps.Machine.Cleanup(context.WithoutCancel(ctx))

		b, err := json.Marshal(report)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal report: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceJSON(read func() any) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(read())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s: %w", req.Params.URI, err)
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
