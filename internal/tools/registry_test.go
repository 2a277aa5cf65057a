package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/agentcore/qcode/internal/llmtypes"
	"github.com/stretchr/testify/require"
)

type stubTool struct {
	base
	result llmtypes.ToolResult
	calls  int
}

func newStubTool(name string, result llmtypes.ToolResult) *stubTool {
	return &stubTool{base: newBase(name, "stub tool"), result: result}
}

func (s *stubTool) Schema() llmtypes.ToolSchema { return llmtypes.ToolSchema{Name: s.name, Type: "object"} }

func (s *stubTool) Execute(ctx context.Context, args map[string]any) llmtypes.ToolResult {
	s.calls++
	return s.result
}

type fakeChecker struct {
	allow bool
	err   error
}

func (f *fakeChecker) Check(ctx context.Context, name string, args map[string]any) (bool, string, error) {
	if f.err != nil {
		return false, "", f.err
	}
	if !f.allow {
		return false, "denied for test", nil
	}
	return true, "", nil
}

func TestRegistry_ExecuteToolNotFound(t *testing.T) {
	r := NewRegistry()
	result := r.ExecuteTool(context.Background(), "Missing", nil)
	require.Equal(t, llmtypes.StatusError, result.Status)
	require.Contains(t, result.Error, "not found")
}

func TestRegistry_PermissionDeniedShortCircuitsExecution(t *testing.T) {
	r := NewRegistry()
	st := newStubTool("Echo", llmtypes.ToolResult{ToolName: "Echo", Status: llmtypes.StatusCompleted, Result: "ok"})
	r.Register(st)
	r.SetPermissionChecker(&fakeChecker{allow: false})

	result := r.ExecuteTool(context.Background(), "Echo", nil)
	require.Equal(t, llmtypes.StatusError, result.Status)
	require.Equal(t, "denied for test", result.Error)
	require.Equal(t, 0, st.calls)
}

func TestRegistry_PermissionErrorFailsSafe(t *testing.T) {
	r := NewRegistry()
	st := newStubTool("Echo", llmtypes.ToolResult{Status: llmtypes.StatusCompleted})
	r.Register(st)
	r.SetPermissionChecker(&fakeChecker{err: errors.New("boom")})

	result := r.ExecuteTool(context.Background(), "Echo", nil)
	require.Equal(t, llmtypes.StatusError, result.Status)
	require.Contains(t, result.Error, "permission check failed")
}

func TestRegistry_UnregisterServerRemovesOnlyItsTools(t *testing.T) {
	r := NewRegistry()
	r.RegisterMCPTool("serverA", newStubTool("mcp_serverA_tool1", llmtypes.ToolResult{}))
	r.RegisterMCPTool("serverB", newStubTool("mcp_serverB_tool1", llmtypes.ToolResult{}))

	removed := r.UnregisterServer("serverA")
	require.Equal(t, 1, removed)

	_, ok := r.Get("mcp_serverA_tool1")
	require.False(t, ok)
	_, ok = r.Get("mcp_serverB_tool1")
	require.True(t, ok)
}

func TestRegistry_ExecuteParallelPreservesOrder(t *testing.T) {
	r := NewRegistry()
	for i, name := range []string{"A", "B", "C"} {
		r.Register(newStubTool(name, llmtypes.ToolResult{
			ToolName: name, Status: llmtypes.StatusCompleted, Result: i,
		}))
	}

	results := r.ExecuteParallel(context.Background(), []ToolCall{
		{Name: "A"}, {Name: "B"}, {Name: "C"},
	})
	require.Len(t, results, 3)
	require.Equal(t, "A", results[0].ToolName)
	require.Equal(t, "B", results[1].ToolName)
	require.Equal(t, "C", results[2].ToolName)
}

func TestRegistry_ExecuteSequenceStopsOnError(t *testing.T) {
	r := NewRegistry()
	r.Register(newStubTool("First", llmtypes.ToolResult{ToolName: "First", Status: llmtypes.StatusError, Error: "boom"}))
	r.Register(newStubTool("Second", llmtypes.ToolResult{ToolName: "Second", Status: llmtypes.StatusCompleted}))

	results := r.ExecuteSequence(context.Background(), []ToolCall{
		{Name: "First"}, {Name: "Second"},
	}, nil)
	require.Len(t, results, 1)
}

func TestNewDefaultRegistry_RegistersBuiltinTools(t *testing.T) {
	r := NewDefaultRegistry()
	for _, name := range []string{"Read", "Write", "Edit", "MultiEdit", "Grep", "Glob", "LS", "Bash", "Task"} {
		_, ok := r.Get(name)
		require.True(t, ok, "expected builtin tool %s to be registered", name)
	}
}
