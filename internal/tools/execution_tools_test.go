package tools

import (
	"context"
	"testing"

	"github.com/agentcore/qcode/internal/llmtypes"
	"github.com/stretchr/testify/require"
)

func TestBashTool_RunsCommandAndCapturesOutput(t *testing.T) {
	bt := NewBashTool()
	result := bt.Execute(context.Background(), map[string]any{
		"command": "echo hello",
	})
	require.True(t, result.IsSuccess())
	require.Equal(t, "hello", result.Result)
	require.Equal(t, 0, result.Metadata["exit_code"])
}

func TestBashTool_NonZeroExitIsError(t *testing.T) {
	bt := NewBashTool()
	result := bt.Execute(context.Background(), map[string]any{
		"command": "exit 3",
	})
	require.Equal(t, llmtypes.StatusError, result.Status)
	require.Contains(t, result.Error, "exit code 3")
}

func TestBashTool_RejectsDangerousCommand(t *testing.T) {
	bt := NewBashTool()
	result := bt.Execute(context.Background(), map[string]any{
		"command": "rm -rf /",
	})
	require.Equal(t, llmtypes.StatusError, result.Status)
	require.Contains(t, result.Error, "dangerous")
}

func TestBashTool_TimeoutKillsSubprocess(t *testing.T) {
	bt := NewBashTool()
	result := bt.Execute(context.Background(), map[string]any{
		"command": "sleep 5",
		"timeout": float64(1),
	})
	require.Equal(t, llmtypes.StatusError, result.Status)
	require.Contains(t, result.Error, "timed out")
}

func TestBashTool_TimeoutCappedAt600(t *testing.T) {
	bt := NewBashTool()
	result := bt.Execute(context.Background(), map[string]any{
		"command": "echo ok",
		"timeout": float64(9000),
	})
	require.True(t, result.IsSuccess())
	require.Equal(t, float64(600), result.Metadata["timeout"])
}

func TestTaskTool_ValidatesDescriptionAndPromptLength(t *testing.T) {
	tt := NewTaskTool()

	result := tt.Execute(context.Background(), map[string]any{
		"description": "short", "prompt": "too short",
	})
	require.Equal(t, llmtypes.StatusError, result.Status)
	require.Contains(t, result.Error, "too short")

	result = tt.Execute(context.Background(), map[string]any{
		"description": "investigate the failing tests",
		"prompt":      "find out why the integration suite is failing on main",
	})
	require.True(t, result.IsSuccess())
	require.Equal(t, "analysis", result.Metadata["task_type"])
}
