package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/agentcore/qcode/internal/llmtypes"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadTool_OffsetAndLimit(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "f.txt", "one\ntwo\nthree\nfour\n")

	rt := NewReadTool()
	result := rt.Execute(context.Background(), map[string]any{
		"file_path": path, "offset": 2, "limit": 2,
	})
	require.True(t, result.IsSuccess())
	text, ok := result.Result.(string)
	require.True(t, ok)
	require.Contains(t, text, "2→two")
	require.Contains(t, text, "3→three")
	require.NotContains(t, text, "four")
}

func TestReadTool_OffsetBeyondEndOfFile(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "f.txt", "one\ntwo\n")

	rt := NewReadTool()
	result := rt.Execute(context.Background(), map[string]any{
		"file_path": path, "offset": 100,
	})
	require.True(t, result.IsSuccess())
	require.Equal(t, "", result.Result)
	require.Equal(t, "Offset beyond end of file", result.Metadata["message"])
}

func TestWriteTool_CreatesParentDirs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "sub", "f.txt")

	wt := NewWriteTool()
	result := wt.Execute(context.Background(), map[string]any{
		"file_path": path, "content": "hello", "create_dirs": true,
	})
	require.True(t, result.IsSuccess())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
	require.Equal(t, false, result.Metadata["was_overwrite"])
}

func TestEditTool_AmbiguousMatchRequiresReplaceAll(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "f.txt", "foo bar foo baz foo")

	et := NewEditTool()
	result := et.Execute(context.Background(), map[string]any{
		"file_path": path, "old_string": "foo", "new_string": "qux",
	})
	require.Equal(t, llmtypes.StatusError, result.Status)
	require.Contains(t, result.Error, "appears 3 times")

	result = et.Execute(context.Background(), map[string]any{
		"file_path": path, "old_string": "foo", "new_string": "qux", "replace_all": true,
	})
	require.True(t, result.IsSuccess())
	data, _ := os.ReadFile(path)
	require.Equal(t, "qux bar qux baz qux", string(data))
}

func TestMultiEditTool_AtomicFailureLeavesFileUntouched(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "f.txt", "alpha beta gamma")

	met := NewMultiEditTool()
	result := met.Execute(context.Background(), map[string]any{
		"file_path": path,
		"edits": []any{
			map[string]any{"old_string": "alpha", "new_string": "ALPHA"},
			map[string]any{"old_string": "missing", "new_string": "x"},
		},
	})
	require.Equal(t, llmtypes.StatusError, result.Status)
	require.Contains(t, result.Error, "edit 2")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "alpha beta gamma", string(data))
}

func TestMultiEditTool_SequentialEditsApplyInOrder(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "f.txt", "alpha beta gamma")

	met := NewMultiEditTool()
	result := met.Execute(context.Background(), map[string]any{
		"file_path": path,
		"edits": []any{
			map[string]any{"old_string": "alpha", "new_string": "ALPHA"},
			map[string]any{"old_string": "gamma", "new_string": "GAMMA"},
		},
	})
	require.True(t, result.IsSuccess())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "ALPHA beta GAMMA", string(data))
}
