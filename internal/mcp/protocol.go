// Package mcp implements the remote-tool plane (spec.md §4.7): a
// JSON-RPC-2.0-over-WebSocket client per configured server, an Adapter
// that wraps one remote tool behind the local tools.Tool contract, and a
// Discovery service that connects to every configured server, registers
// its tools, and keeps them alive. Grounded on
// original_source/src/qwen_tui/mcp/{client,adapter,discovery,models}.py.
package mcp

import "encoding/json"

// Method names for the JSON-RPC-2.0 MCP wire protocol.
const (
	MethodInitialize = "initialize"
	MethodListTools  = "tools/list"
	MethodCallTool   = "tools/call"
	MethodPing       = "ping"
	MethodShutdown   = "shutdown"
)

// request is one outgoing JSON-RPC-2.0 call.
type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// notification is sent without an id and expects no reply.
type notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// rpcError is the JSON-RPC-2.0 error object.
type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// response is one incoming JSON-RPC-2.0 message. A message with no id is
// a server-initiated notification, handled fire-and-forget.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// Outbound params shapes. Kept distinct from mcp-go's own request types
// since this client speaks raw JSON-RPC-2.0-over-WebSocket directly
// rather than going through mcp-go's stdio/SSE client transports; mcp-go's
// mcp package is used below only for the response-side wire shapes
// (Tool, CallToolResult, Content) it already models faithfully.
type callToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type initializeParams struct {
	ProtocolVersion string            `json:"protocolVersion"`
	Capabilities    map[string]any    `json:"capabilities"`
	ClientInfo      map[string]string `json:"clientInfo"`
}

type initializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      ServerInfo     `json:"serverInfo"`
}
