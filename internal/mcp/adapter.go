package mcp

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/agentcore/qcode/internal/llmtypes"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

// Adapter wraps one remote MCP tool behind the local tools.Tool contract
// (spec.md §4.3/§4.7), grounded on adapter.py's MCPToolAdapter. Name
// mangled to mcp_<server>_<tool> to avoid collisions with local tools.
type Adapter struct {
	serverName string
	tool       mcpgo.Tool
	client     *Client

	mu sync.RWMutex
	wd string
}

// NewAdapter builds an Adapter for one remote tool bound to client.
func NewAdapter(serverName string, tool mcpgo.Tool, client *Client) *Adapter {
	return &Adapter{serverName: serverName, tool: tool, client: client}
}

// Name returns the mangled, collision-free registry name.
func (a *Adapter) Name() string {
	return fmt.Sprintf("mcp_%s_%s", a.serverName, a.tool.Name)
}

// Description prefixes the remote description with its originating server.
func (a *Adapter) Description() string {
	return fmt.Sprintf("[MCP:%s] %s", a.serverName, a.tool.Description)
}

// OriginalName is the tool's name as known to the MCP server, used for the
// actual tools/call request.
func (a *Adapter) OriginalName() string { return a.tool.Name }

// ServerName is the MCP server this tool came from.
func (a *Adapter) ServerName() string { return a.serverName }

// WorkingDirectory/SetWorkingDirectory satisfy tools.Tool; a remote tool's
// filesystem, if it has one, lives on the MCP server's host, so these only
// record the value for introspection and never affect execution.
func (a *Adapter) WorkingDirectory() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.wd
}

func (a *Adapter) SetWorkingDirectory(path string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.wd = path
}

// Schema reshapes the MCP tool's input schema into llmtypes.ToolSchema,
// preserving required/enum/default exactly as advertised by the server.
func (a *Adapter) Schema() llmtypes.ToolSchema {
	props := a.tool.InputSchema.Properties
	if props == nil {
		props = map[string]any{}
	}
	return llmtypes.ToolSchema{
		Name:        a.Name(),
		Description: a.Description(),
		Type:        "object",
		Properties:  props,
		Required:    a.tool.InputSchema.Required,
	}
}

// Execute dispatches args to the remote tool and converts the result,
// grounded on MCPToolAdapter.execute.
func (a *Adapter) Execute(ctx context.Context, args map[string]any) llmtypes.ToolResult {
	start := time.Now()
	result, err := a.client.CallTool(ctx, a.OriginalName(), args)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		return llmtypes.ToolResult{
			ToolName:             a.Name(),
			Status:               llmtypes.StatusError,
			Error:                err.Error(),
			ExecutionTimeSeconds: elapsed,
			Metadata:             map[string]any{"server_name": a.serverName, "original_name": a.OriginalName()},
		}
	}
	return a.convertResult(result, elapsed)
}

func (a *Adapter) convertResult(result *mcpgo.CallToolResult, elapsed float64) llmtypes.ToolResult {
	meta := map[string]any{"server_name": a.serverName, "original_name": a.OriginalName()}

	if result.IsError {
		return llmtypes.ToolResult{
			ToolName:             a.Name(),
			Status:               llmtypes.StatusError,
			Error:                extractErrorText(result, fmt.Sprintf("MCP tool %s failed with unknown error", a.OriginalName())),
			ExecutionTimeSeconds: elapsed,
			Metadata:             meta,
		}
	}

	meta["content_items"] = len(result.Content)
	return llmtypes.ToolResult{
		ToolName:             a.Name(),
		Status:               llmtypes.StatusCompleted,
		Result:               extractResultData(result),
		ExecutionTimeSeconds: elapsed,
		Metadata:             meta,
	}
}

// extractErrorText joins every text-content item, mirroring
// MCPToolAdapter._extract_error_message.
func extractErrorText(result *mcpgo.CallToolResult, fallback string) string {
	var parts []string
	for _, item := range result.Content {
		if tc, ok := item.(mcpgo.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	if len(parts) == 0 {
		return fallback
	}
	return strings.Join(parts, "\n")
}

// extractResultData collapses content into the same shapes
// MCPToolAdapter._extract_result_data produces: nil for empty, a bare
// string for a single text item, the joined text for all-text multi-item
// results, the raw items for all-non-text multi-item results, and a
// {text, data} map for a mix of both.
func extractResultData(result *mcpgo.CallToolResult) any {
	switch len(result.Content) {
	case 0:
		return nil
	case 1:
		if tc, ok := result.Content[0].(mcpgo.TextContent); ok {
			return tc.Text
		}
		return result.Content[0]
	default:
		var texts []string
		var other []mcpgo.Content
		for _, item := range result.Content {
			if tc, ok := item.(mcpgo.TextContent); ok {
				texts = append(texts, tc.Text)
			} else {
				other = append(other, item)
			}
		}
		switch {
		case len(other) == 0:
			return strings.Join(texts, "\n")
		case len(texts) == 0:
			if len(other) == 1 {
				return other[0]
			}
			return other
		default:
			return map[string]any{"text": strings.Join(texts, "\n"), "data": other}
		}
	}
}
