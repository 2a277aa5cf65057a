// Package tools implements the Tool contract and the concrete local tools
// (spec.md §4.3): a uniform {name, description, get_schema, execute,
// working_directory} interface, grounded on
// original_source/src/qwen_tui/tools/base.py's BaseTool ABC.
package tools

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/agentcore/qcode/internal/llmtypes"
)

// Tool is the uniform contract every local and MCP-adapted tool satisfies.
type Tool interface {
	Name() string
	Description() string
	Schema() llmtypes.ToolSchema
	Execute(ctx context.Context, args map[string]any) llmtypes.ToolResult
	WorkingDirectory() string
	SetWorkingDirectory(path string)
}

// base holds the bookkeeping every concrete tool embeds: name, description,
// and a mutex-guarded working directory, mirroring BaseTool's
// working_directory property.
type base struct {
	name        string
	description string

	mu sync.RWMutex
	wd string
}

func newBase(name, description string) base {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	return base{name: name, description: description, wd: wd}
}

func (b *base) Name() string        { return b.name }
func (b *base) Description() string { return b.description }

func (b *base) WorkingDirectory() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.wd
}

func (b *base) SetWorkingDirectory(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.wd = abs
}

// resolvePath resolves path relative to the tool's working directory,
// mirroring FileBaseTool.resolve_path.
func (b *base) resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Clean(filepath.Join(b.WorkingDirectory(), path))
}

// safeExecute times fn and wraps its result/panic-free error into a
// llmtypes.ToolResult, mirroring BaseTool.safe_execute's timing wrapper.
// Concrete tools call this from Execute so every tool gets identical
// timing/error semantics.
func safeExecute(name string, fn func() (any, map[string]any, error)) llmtypes.ToolResult {
	start := time.Now()
	result, metadata, err := fn()
	elapsed := time.Since(start).Seconds()
	if err != nil {
		return llmtypes.ToolResult{
			ToolName: name, Status: llmtypes.StatusError,
			Error: err.Error(), ExecutionTimeSeconds: elapsed,
		}
	}
	return llmtypes.ToolResult{
		ToolName: name, Status: llmtypes.StatusCompleted,
		Result: result, Metadata: metadata, ExecutionTimeSeconds: elapsed,
	}
}

// stringArg and friends extract typed arguments out of the loosely-typed
// args map every tool call arrives as, mirroring Python's keyword-argument
// dispatch with defaults.
func stringArg(args map[string]any, key, def string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

func boolArg(args map[string]any, key string, def bool) bool {
	if v, ok := args[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

func intArg(args map[string]any, key string, def int) int {
	if v, ok := args[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return def
}

func intArgPtr(args map[string]any, key string) *int {
	if v, ok := args[key]; ok {
		switch n := v.(type) {
		case int:
			return &n
		case int64:
			i := int(n)
			return &i
		case float64:
			i := int(n)
			return &i
		}
	}
	return nil
}

func stringSliceArg(args map[string]any, key string) []string {
	v, ok := args[key]
	if !ok {
		return nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
