// Package llmtypes holds the conversation and backend data model shared by
// every component in the agent core: messages, tool calls, tool results,
// requests, streamed responses, backend info, and risk assessments.
package llmtypes

import "time"

// Role identifies who produced a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry in the append-only conversation log. Insertion
// order is semantically significant (spec.md §3).
type Message struct {
	Role       Role           `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// ToolCall is a single invocation the model asked for within a turn.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolStatus is the lifecycle state of a ToolResult.
type ToolStatus string

const (
	StatusPending   ToolStatus = "pending"
	StatusRunning   ToolStatus = "running"
	StatusCompleted ToolStatus = "completed"
	StatusError     ToolStatus = "error"
	StatusCancelled ToolStatus = "cancelled"
)

// ToolResult is the outcome of one tool execution.
type ToolResult struct {
	ToolName            string         `json:"tool_name"`
	Status              ToolStatus     `json:"status"`
	Result              any            `json:"result,omitempty"`
	Error               string         `json:"error,omitempty"`
	Metadata            map[string]any `json:"metadata,omitempty"`
	ExecutionTimeSeconds float64       `json:"execution_time_seconds"`
}

// IsSuccess reports whether the result represents a clean completion.
func (r ToolResult) IsSuccess() bool {
	return r.Status == StatusCompleted && r.Error == ""
}

// ToolSchema is the JSON-Schema shape a tool advertises for its arguments.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Type        string         `json:"type"`
	Properties  map[string]any `json:"properties"`
	Required    []string       `json:"required,omitempty"`
}

// Usage normalizes token-accounting fields across providers.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Request is the normalized shape every Driver.Generate call accepts.
// Unset numeric fields inherit backend defaults (spec.md §3).
type Request struct {
	Messages       []Message      `json:"messages"`
	Tools          []ToolSchema   `json:"tools,omitempty"`
	Model          string         `json:"model,omitempty"`
	Temperature    *float64       `json:"temperature,omitempty"`
	MaxTokens      *int           `json:"max_tokens,omitempty"`
	TopP           *float64       `json:"top_p,omitempty"`
	Stream         bool           `json:"stream"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
	BackendParams  map[string]any `json:"backend_params,omitempty"`
}

// Response is one element of a Driver.Generate stream. A partial chunk
// carries Delta with IsPartial true; the terminal chunk carries
// FinishReason and, if available, aggregated Usage.
type Response struct {
	Content         string         `json:"content"`
	Delta           string         `json:"delta,omitempty"`
	IsPartial       bool           `json:"is_partial"`
	ToolCalls       []ToolCall     `json:"tool_calls,omitempty"`
	FinishReason    string         `json:"finish_reason,omitempty"`
	Usage           *Usage         `json:"usage,omitempty"`
	Model           string         `json:"model,omitempty"`
	ResponseTime    float64        `json:"response_time,omitempty"`
	BackendMetadata map[string]any `json:"backend_metadata,omitempty"`
}

// BackendStatus is the health state of one Driver.
type BackendStatus string

const (
	StatusUnknown      BackendStatus = "unknown"
	StatusConnecting   BackendStatus = "connecting"
	StatusConnected    BackendStatus = "connected"
	StatusAvailable    BackendStatus = "available"
	StatusUnavailable  BackendStatus = "unavailable"
	StatusErrored      BackendStatus = "error"
	StatusDisconnected BackendStatus = "disconnected"
)

// BackendInfo describes one driver's discovery/health state.
type BackendInfo struct {
	Name         string        `json:"name"`
	Type         string        `json:"type"`
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	Model        string        `json:"model,omitempty"`
	Status       BackendStatus `json:"status"`
	Version      string        `json:"version,omitempty"`
	Capabilities []string      `json:"capabilities,omitempty"`
	LastCheck    *time.Time    `json:"last_check,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

// Healthy reports whether this backend may be routed to.
func (b BackendInfo) Healthy() bool {
	return b.Status == StatusAvailable
}

// RiskLevel classifies how dangerous an operation is judged to be.
type RiskLevel string

const (
	RiskSafe     RiskLevel = "safe"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// PermissionAction is the coordinator's disposition for a risk assessment.
type PermissionAction string

const (
	ActionAllow  PermissionAction = "allow"
	ActionPrompt PermissionAction = "prompt"
	ActionBlock  PermissionAction = "block"
)

// RiskAssessment is the output of the command/file classifiers.
type RiskAssessment struct {
	RiskLevel   RiskLevel        `json:"risk_level"`
	Action      PermissionAction `json:"action"`
	Reasons     []string         `json:"reasons"`
	Warnings    []string         `json:"warnings"`
	Suggestions []string         `json:"suggestions"`
}

// PermissionPreference is a persisted per-tool decision.
type PermissionPreference string

const (
	PreferenceAlwaysAllow PermissionPreference = "always_allow"
	PreferenceAlwaysDeny  PermissionPreference = "always_deny"
)
