// Package apperrors implements the error taxonomy used across the agent
// core: a small set of kinds and sub-kinds, wrapped in a single error type
// that renders consistent, user-facing guidance.
package apperrors

import "fmt"

// Kind identifies the broad category of an error.
type Kind string

const (
	KindConfig   Kind = "ConfigError"
	KindBackend  Kind = "BackendError"
	KindLLM      Kind = "LLMError"
	KindSecurity Kind = "SecurityError"
	KindTool     Kind = "ToolError"
	KindMCP      Kind = "MCPError"
)

// SubKind refines a Kind. Not every Kind uses sub-kinds.
type SubKind string

const (
	// BackendError sub-kinds
	SubUnavailable    SubKind = "Unavailable"
	SubConnection     SubKind = "Connection"
	SubTimeout        SubKind = "Timeout"
	SubAuthentication SubKind = "Authentication"
	SubRateLimit      SubKind = "RateLimit"
	SubInvalidResp    SubKind = "InvalidResponse"
	SubUnsupported    SubKind = "Unsupported"

	// LLMError sub-kinds
	SubGeneration SubKind = "Generation"
	SubToolCall   SubKind = "ToolCall"

	// SecurityError sub-kinds
	SubPermissionDenied SubKind = "PermissionDenied"
	SubUnsafeOperation  SubKind = "UnsafeOperation"
	SubPolicyViolation  SubKind = "PolicyViolation"

	// ToolError sub-kinds
	SubNotFound      SubKind = "NotFound"
	SubInit          SubKind = "Init"
	SubParameter     SubKind = "Parameter"
	SubFileSystem    SubKind = "FileSystem"
	SubShellExec     SubKind = "ShellExecution"

	// MCPError sub-kinds
	SubMCPConnection SubKind = "Connection"
	SubProtocol      SubKind = "Protocol"
	SubServer        SubKind = "Server"
	SubMCPTimeout    SubKind = "Timeout"
	SubToolNotFound  SubKind = "ToolNotFound"
	SubToolExecution SubKind = "ToolExecution"
	SubDiscovery     SubKind = "Discovery"
	SubValidation    SubKind = "Validation"
)

// CoreError is the concrete error type for every error surfaced by the
// agent core. It carries enough structure to both drive programmatic
// handling (errors.As + Kind/SubKind) and render a user-facing message.
type CoreError struct {
	Kind     Kind
	SubKind  SubKind
	Reason   string
	Guidance string
	Retry    bool
	Err      error
}

func (e *CoreError) Error() string {
	if e.SubKind != "" {
		return fmt.Sprintf("%s(%s): %s", e.Kind, e.SubKind, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

// Unwrap exposes the underlying error for errors.Is/errors.As chains.
func (e *CoreError) Unwrap() error {
	return e.Err
}

// Retriable reports whether the failure that produced this error is
// worth retrying (possibly against a different backend).
func (e *CoreError) Retriable() bool {
	return e.Retry
}

// UserMessage renders the `{Kind}: {reason}\n\nTip: {guidance}` shape
// spec.md §7 requires for known sub-kinds.
func (e *CoreError) UserMessage() string {
	kind := string(e.Kind)
	if e.SubKind != "" {
		kind = fmt.Sprintf("%s.%s", e.Kind, e.SubKind)
	}
	if e.Guidance == "" {
		return fmt.Sprintf("%s: %s", kind, e.Reason)
	}
	return fmt.Sprintf("%s: %s\n\nTip: %s", kind, e.Reason, e.Guidance)
}

// New builds a CoreError with no wrapped cause.
func New(kind Kind, sub SubKind, reason string) *CoreError {
	return &CoreError{Kind: kind, SubKind: sub, Reason: reason}
}

// Wrap builds a CoreError around an existing error.
func Wrap(kind Kind, sub SubKind, reason string, err error) *CoreError {
	return &CoreError{Kind: kind, SubKind: sub, Reason: reason, Err: err}
}

// WithGuidance attaches a Tip line and returns the receiver for chaining.
func (e *CoreError) WithGuidance(g string) *CoreError {
	e.Guidance = g
	return e
}

// WithRetry marks the error retriable and returns the receiver for chaining.
func (e *CoreError) WithRetry(r bool) *CoreError {
	e.Retry = r
	return e
}

// ModelNotFound builds the BackendError.InvalidResponse variant spec.md §4.1
// requires: a model-not-found error on a local provider carries the list of
// available models so the caller can self-correct.
func ModelNotFound(provider, model string, available []string) *CoreError {
	return New(KindBackend, SubInvalidResp,
		fmt.Sprintf("model %q not found on backend %q", model, provider)).
		WithGuidance(fmt.Sprintf("available models: %v", available))
}
