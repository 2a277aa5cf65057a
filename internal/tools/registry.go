package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentcore/qcode/internal/llmtypes"
	"github.com/agentcore/qcode/internal/logx"
	"github.com/agentcore/qcode/internal/metrics"
)

var registryLog = logx.For("tools.registry")

// PermissionChecker is consulted by Registry.ExecuteTool before a tool runs.
// It is satisfied by internal/permission.Coordinator; kept as an interface
// here so this package does not import permission (which itself needs the
// tool schema to classify risk), avoiding an import cycle.
type PermissionChecker interface {
	Check(ctx context.Context, toolName string, args map[string]any) (allowed bool, reason string, err error)
}

// mcpEntry records which server a registered tool came from, so tools can
// be bulk-unregistered when that server disconnects.
type mcpEntry struct {
	serverName string
}

// Registry holds every tool (local and MCP-adapted) the agent can call,
// grounded on registry.py's ToolRegistry.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
	mcp   map[string]mcpEntry

	permChecker PermissionChecker
	metrics     *metrics.Metrics
}

// SetMetrics attaches a Prometheus collector set; subsequent ExecuteTool
// calls report their duration and outcome into it.
func (r *Registry) SetMetrics(m *metrics.Metrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = m
}

// NewRegistry builds an empty registry with no tools registered.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
		mcp:   make(map[string]mcpEntry),
	}
}

// NewDefaultRegistry builds a registry pre-populated with every built-in
// local tool, mirroring ToolRegistry._initialize_default_tools.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, t := range []Tool{
		NewReadTool(),
		NewWriteTool(),
		NewEditTool(),
		NewMultiEditTool(),
		NewGrepTool(),
		NewGlobTool(),
		NewLSTool(),
		NewBashTool(),
		NewTaskTool(),
	} {
		r.Register(t)
	}
	registryLog.Info("initialized tool registry", "tools", len(r.tools))
	return r
}

// SetPermissionChecker wires a permission coordinator into ExecuteTool. A
// nil checker (the default) skips permission checking entirely.
func (r *Registry) SetPermissionChecker(c PermissionChecker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.permChecker = c
}

// Register adds or replaces a tool under its own name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		registryLog.Warn("tool is being replaced", "tool", t.Name())
	} else {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

// RegisterMCPTool registers an MCP-adapted tool and remembers which server
// it came from, so UnregisterServer can remove it later.
func (r *Registry) RegisterMCPTool(serverName string, t Tool) {
	r.Register(t)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mcp[t.Name()] = mcpEntry{serverName: serverName}
}

// UnregisterServer removes every tool registered on behalf of serverName,
// returning the number removed, grounded on unregister_mcp_tools.
func (r *Registry) UnregisterServer(serverName string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var toRemove []string
	for name, entry := range r.mcp {
		if entry.serverName == serverName {
			toRemove = append(toRemove, name)
		}
	}
	for _, name := range toRemove {
		delete(r.tools, name)
		delete(r.mcp, name)
		r.order = removeFromOrder(r.order, name)
	}
	if len(toRemove) > 0 {
		registryLog.Info("unregistered MCP tools", "server", serverName, "count", len(toRemove))
	}
	return len(toRemove)
}

func removeFromOrder(order []string, name string) []string {
	out := order[:0]
	for _, n := range order {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}

// SetWorkingDirectory propagates a new working directory to every
// registered tool, mirroring BaseAgent.set_working_directory's call into
// ToolManager.
func (r *Registry) SetWorkingDirectory(path string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tools {
		t.SetWorkingDirectory(path)
	}
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns every registered tool name in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Schemas returns every tool's native schema keyed by name, grounded on
// get_tool_schemas.
func (r *Registry) Schemas() map[string]llmtypes.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]llmtypes.ToolSchema, len(r.tools))
	for name, t := range r.tools {
		out[name] = t.Schema()
	}
	return out
}

// OpenAIFunctionSchemas returns every tool's schema reshaped into the
// OpenAI function-calling wire format, grounded on
// get_openai_function_schemas.
func (r *Registry) OpenAIFunctionSchemas() []map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]map[string]any, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		out = append(out, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        name,
				"description": t.Description(),
				"parameters":  t.Schema(),
			},
		})
	}
	return out
}

// ExecuteTool runs the named tool after an optional permission check,
// grounded on ToolRegistry.execute_tool.
func (r *Registry) ExecuteTool(ctx context.Context, name string, args map[string]any) llmtypes.ToolResult {
	t, ok := r.Get(name)
	if !ok {
		return llmtypes.ToolResult{ToolName: name, Status: llmtypes.StatusError, Error: fmt.Sprintf("tool not found: %s", name)}
	}

	r.mu.RLock()
	checker := r.permChecker
	r.mu.RUnlock()

	if checker != nil {
		allowed, reason, err := checker.Check(ctx, name, args)
		if err != nil {
			registryLog.Error("permission check failed", "tool", name, "error", err)
			return llmtypes.ToolResult{ToolName: name, Status: llmtypes.StatusError, Error: fmt.Sprintf("permission check failed: %v", err)}
		}
		if !allowed {
			msg := "permission denied by user"
			if reason != "" {
				msg = reason
			}
			result := llmtypes.ToolResult{ToolName: name, Status: llmtypes.StatusError, Error: msg}
			r.observeExecution(name, result)
			return result
		}
	}

	result := t.Execute(ctx, args)
	r.observeExecution(name, result)
	return result
}

func (r *Registry) observeExecution(name string, result llmtypes.ToolResult) {
	r.mu.RLock()
	m := r.metrics
	r.mu.RUnlock()
	if m == nil {
		return
	}
	m.ToolExecutionTotal.WithLabelValues(name, string(result.Status)).Inc()
	m.ToolExecutionDuration.WithLabelValues(name).Observe(result.ExecutionTimeSeconds)
}

// ToolCall pairs a tool name with its arguments for batch execution.
type ToolCall struct {
	Name string
	Args map[string]any
}

// ExecuteSequence runs calls one at a time, stopping at the first error
// unless continueOnError is set for that call, grounded on
// ToolManager.execute_tool_sequence.
func (r *Registry) ExecuteSequence(ctx context.Context, calls []ToolCall, continueOnError []bool) []llmtypes.ToolResult {
	results := make([]llmtypes.ToolResult, 0, len(calls))
	for i, call := range calls {
		result := r.ExecuteTool(ctx, call.Name, call.Args)
		results = append(results, result)
		if result.Status == llmtypes.StatusError {
			cont := i < len(continueOnError) && continueOnError[i]
			if !cont {
				registryLog.Warn("tool sequence stopped due to error", "tool", call.Name)
				break
			}
		}
	}
	return results
}

// ExecuteParallel runs every call concurrently and returns results in the
// same order as calls, converting a panicking tool into an error
// llmtypes.ToolResult instead of crashing the batch, grounded on
// ToolManager.execute_parallel_tools.
func (r *Registry) ExecuteParallel(ctx context.Context, calls []ToolCall) []llmtypes.ToolResult {
	results := make([]llmtypes.ToolResult, len(calls))
	var wg sync.WaitGroup
	wg.Add(len(calls))
	for i, call := range calls {
		go func(i int, call ToolCall) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					results[i] = llmtypes.ToolResult{
						ToolName: call.Name, Status: llmtypes.StatusError,
						Error: fmt.Sprintf("tool panicked: %v", rec),
					}
				}
			}()
			results[i] = r.ExecuteTool(ctx, call.Name, call.Args)
		}(i, call)
	}
	wg.Wait()
	return results
}
