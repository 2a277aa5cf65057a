package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/agentcore/qcode/internal/apperrors"
	"github.com/agentcore/qcode/internal/config"
	"github.com/agentcore/qcode/internal/logx"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

var clientLog = logx.For("mcp.client")

const defaultRequestTimeout = 30 * time.Second

// Client speaks JSON-RPC-2.0 over a single WebSocket connection to one MCP
// server, grounded on client.py's MCPClient. All exported methods are safe
// for concurrent use.
type Client struct {
	config config.MCPServerConfig

	mu       sync.Mutex
	conn     *websocket.Conn
	info     *ServerInfo
	tools    []mcpgo.Tool
	pending  map[string]chan response
	lastPing time.Time
}

// NewClient builds a Client for one configured server. It does not connect
// until Connect, ListTools, or CallTool is called.
func NewClient(cfg config.MCPServerConfig) *Client {
	return &Client{config: cfg, pending: make(map[string]chan response)}
}

// ServerName returns the configured server name, for error reporting.
func (c *Client) ServerName() string { return c.config.Name }

// IsConnected reports whether the WebSocket connection is live.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// connectionURL rewrites http(s) to ws(s) and a bare host:port to ws://,
// mirroring MCPServerConfig.get_connection_url.
func connectionURL(raw string) string {
	switch {
	case strings.HasPrefix(raw, "ws://"), strings.HasPrefix(raw, "wss://"):
		return raw
	case strings.HasPrefix(raw, "http://"):
		return "ws://" + strings.TrimPrefix(raw, "http://")
	case strings.HasPrefix(raw, "https://"):
		return "wss://" + strings.TrimPrefix(raw, "https://")
	default:
		return "ws://" + raw
	}
}

func (c *Client) timeout() time.Duration {
	if c.config.Timeout > 0 {
		return time.Duration(c.config.Timeout) * time.Second
	}
	return defaultRequestTimeout
}

// Connect dials the server's WebSocket endpoint and performs the MCP
// initialize handshake. Calling Connect while already connected is a
// no-op that returns the cached ServerInfo.
func (c *Client) Connect(ctx context.Context) (*ServerInfo, error) {
	c.mu.Lock()
	if c.conn != nil {
		info := c.info
		c.mu.Unlock()
		return info, nil
	}
	c.mu.Unlock()

	target := connectionURL(c.config.URL)
	clientLog.Info("connecting to MCP server", "server", c.config.Name, "url", target)

	header := http.Header{}
	if c.config.Auth != "" {
		header.Set("Authorization", c.config.Auth)
	}
	dialer := websocket.Dialer{HandshakeTimeout: c.timeout()}
	conn, _, err := dialer.DialContext(ctx, target, header)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindMCP, apperrors.SubMCPConnection,
			fmt.Sprintf("connecting to MCP server %q", c.config.Name), err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readPump()

	info, err := c.initialize(ctx)
	if err != nil {
		c.cleanup()
		return nil, err
	}

	c.mu.Lock()
	c.info = info
	c.mu.Unlock()
	clientLog.Info("connected to MCP server", "server", c.config.Name)
	return info, nil
}

// Disconnect sends a best-effort shutdown notification and tears down the
// connection, mirroring MCPClient.disconnect.
func (c *Client) Disconnect() {
	_ = c.sendNotification(MethodShutdown)
	c.cleanup()
	clientLog.Info("disconnected from MCP server", "server", c.config.Name)
}

func (c *Client) cleanup() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	pending := c.pending
	c.pending = make(map[string]chan response)
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	for _, ch := range pending {
		close(ch)
	}
}

func (c *Client) readPump() {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			clientLog.Debug("MCP read loop ended", "server", c.config.Name, "error", err)
			c.cleanup()
			return
		}

		var resp response
		if err := json.Unmarshal(data, &resp); err != nil {
			clientLog.Warn("invalid JSON from MCP server", "server", c.config.Name, "error", err)
			continue
		}
		c.dispatch(resp)
	}
}

func (c *Client) dispatch(resp response) {
	if len(resp.ID) == 0 {
		clientLog.Debug("MCP notification received", "server", c.config.Name, "method", resp.Method)
		return
	}
	id := strings.Trim(string(resp.ID), `"`)

	c.mu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if ok {
		ch <- resp
		close(ch)
	}
}

func (c *Client) sendRequest(ctx context.Context, method string, params any) (response, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return response{}, apperrors.New(apperrors.KindMCP, apperrors.SubMCPConnection,
			fmt.Sprintf("not connected to MCP server %q", c.config.Name))
	}

	id := uuid.NewString()
	ch := make(chan response, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	body, err := json.Marshal(request{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return response{}, err
	}

	c.mu.Lock()
	writeErr := conn.WriteMessage(websocket.TextMessage, body)
	c.mu.Unlock()
	if writeErr != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return response{}, apperrors.Wrap(apperrors.KindMCP, apperrors.SubMCPConnection,
			fmt.Sprintf("writing to MCP server %q", c.config.Name), writeErr)
	}

	timeout := c.timeout()
	select {
	case resp, ok := <-ch:
		if !ok {
			return response{}, apperrors.New(apperrors.KindMCP, apperrors.SubMCPConnection,
				fmt.Sprintf("connection to MCP server %q closed mid-request", c.config.Name))
		}
		if resp.Error != nil {
			return resp, apperrors.New(apperrors.KindMCP, apperrors.SubServer,
				fmt.Sprintf("%s: %s", method, resp.Error.Message))
		}
		return resp, nil
	case <-time.After(timeout):
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return response{}, apperrors.New(apperrors.KindMCP, apperrors.SubMCPTimeout,
			fmt.Sprintf("request %q to MCP server %q timed out after %s", method, c.config.Name, timeout))
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return response{}, ctx.Err()
	}
}

func (c *Client) sendNotification(method string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	body, err := json.Marshal(notification{JSONRPC: "2.0", Method: method})
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.WriteMessage(websocket.TextMessage, body)
}

func (c *Client) initialize(ctx context.Context) (*ServerInfo, error) {
	params := initializeParams{
		ProtocolVersion: "1.0.0",
		Capabilities:    map[string]any{"tools": map[string]any{"enabled": true}},
		ClientInfo:      map[string]string{"name": "agentcore", "version": "1.0.0"},
	}
	resp, err := c.sendRequest(ctx, MethodInitialize, params)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindMCP, apperrors.SubProtocol,
			fmt.Sprintf("initializing MCP server %q", c.config.Name), err)
	}

	var result initializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, apperrors.Wrap(apperrors.KindMCP, apperrors.SubProtocol,
			fmt.Sprintf("decoding initialize result from %q", c.config.Name), err)
	}
	return &result.ServerInfo, nil
}

// ListTools fetches the server's tool catalog, connecting first if
// necessary, and filters it down to config.Tools when that allow-list is
// non-empty, mirroring MCPClient.list_tools.
func (c *Client) ListTools(ctx context.Context) ([]mcpgo.Tool, error) {
	if !c.IsConnected() {
		if _, err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}

	resp, err := c.sendRequest(ctx, MethodListTools, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindMCP, apperrors.SubProtocol,
			fmt.Sprintf("listing tools on %q", c.config.Name), err)
	}

	var result struct {
		Tools []mcpgo.Tool `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, apperrors.Wrap(apperrors.KindMCP, apperrors.SubProtocol,
			fmt.Sprintf("decoding tools/list result from %q", c.config.Name), err)
	}

	discovered := result.Tools
	if len(c.config.Tools) > 0 {
		allowed := make(map[string]bool, len(c.config.Tools))
		for _, name := range c.config.Tools {
			allowed[name] = true
		}
		filtered := make([]mcpgo.Tool, 0, len(discovered))
		for _, t := range discovered {
			if allowed[t.Name] {
				filtered = append(filtered, t)
			}
		}
		discovered = filtered
	}

	c.mu.Lock()
	c.tools = discovered
	c.mu.Unlock()
	clientLog.Debug("retrieved tools from MCP server", "server", c.config.Name, "count", len(discovered))
	return discovered, nil
}

// CallTool executes name on the server, connecting first if necessary,
// mirroring MCPClient.call_tool.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (*mcpgo.CallToolResult, error) {
	if !c.IsConnected() {
		if _, err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	known := false
	for _, t := range c.tools {
		if t.Name == name {
			known = true
			break
		}
	}
	c.mu.Unlock()
	if !known {
		return nil, apperrors.New(apperrors.KindMCP, apperrors.SubToolNotFound,
			fmt.Sprintf("tool %q not found on MCP server %q", name, c.config.Name))
	}

	clientLog.Debug("calling MCP tool", "server", c.config.Name, "tool", name)
	resp, err := c.sendRequest(ctx, MethodCallTool, callToolParams{Name: name, Arguments: arguments})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindMCP, apperrors.SubToolExecution,
			fmt.Sprintf("calling tool %q on %q", name, c.config.Name), err)
	}

	var result mcpgo.CallToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, apperrors.Wrap(apperrors.KindMCP, apperrors.SubProtocol,
			fmt.Sprintf("decoding tools/call result from %q", c.config.Name), err)
	}
	return &result, nil
}

// Ping reports whether the server answers a ping within 5 seconds,
// mirroring MCPClient.ping.
func (c *Client) Ping(ctx context.Context) bool {
	if !c.IsConnected() {
		return false
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := c.sendRequest(pingCtx, MethodPing, nil); err != nil {
		return false
	}

	c.mu.Lock()
	c.lastPing = time.Now()
	c.mu.Unlock()
	return true
}
