package mcp

import (
	"time"

	"github.com/agentcore/qcode/internal/config"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

// ServerStatus is the connection lifecycle state of one configured MCP
// server, grounded on models.py's MCPServerStatus.
type ServerStatus string

const (
	StatusDisconnected ServerStatus = "disconnected"
	StatusConnecting   ServerStatus = "connecting"
	StatusConnected    ServerStatus = "connected"
	StatusError        ServerStatus = "error"
	StatusDisabled     ServerStatus = "disabled"
)

// ServerInfo is the identification a server returns from initialize.
type ServerInfo struct {
	Name            string `json:"name"`
	Version         string `json:"version"`
	ProtocolVersion string `json:"protocolVersion"`
}

// ServerState is the discovery service's current view of one configured
// server, grounded on models.py's MCPServerState.
type ServerState struct {
	Config             config.MCPServerConfig
	Status             ServerStatus
	Info               *ServerInfo
	Tools              []mcpgo.Tool
	LastError          string
	LastConnected      time.Time
	ConnectionAttempts int
}
