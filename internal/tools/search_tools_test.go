package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGrepTool_FindsMatchesAndSkipsZeroLengthFile(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "a.go", "package main\n\nfunc helloWorld() {}\n")
	writeTempFile(t, dir, "b.go", "package main\n")
	writeTempFile(t, dir, "empty.go", "")

	gt := NewGrepTool()
	gt.SetWorkingDirectory(dir)
	result := gt.Execute(context.Background(), map[string]any{
		"pattern": "helloWorld",
		"path":    dir,
	})
	require.True(t, result.IsSuccess())
	text, ok := result.Result.(string)
	require.True(t, ok)
	require.Contains(t, text, "a.go")
	require.Equal(t, 1, result.Metadata["matches_found"])
}

func TestGrepTool_NoMatchesReturnsFriendlyMessage(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "a.go", "package main\n")

	gt := NewGrepTool()
	result := gt.Execute(context.Background(), map[string]any{
		"pattern": "nonexistentPattern",
		"path":    dir,
	})
	require.True(t, result.IsSuccess())
	require.Equal(t, "No matches found", result.Result)
}

func TestGrepTool_IncludeExcludeBraceExpansion(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "a.ts", "const x = 1;\n")
	writeTempFile(t, dir, "b.tsx", "const y = 1;\n")
	writeTempFile(t, dir, "c.js", "const z = 1;\n")

	gt := NewGrepTool()
	gt.SetWorkingDirectory(dir)
	result := gt.Execute(context.Background(), map[string]any{
		"pattern": "const",
		"path":    dir,
		"include": "*.{ts,tsx}",
	})
	require.True(t, result.IsSuccess())
	require.Equal(t, 2, result.Metadata["matches_found"])
}

func TestGlobTool_MatchesDoubleStarPattern(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub", "deep"), 0o755))
	writeTempFile(t, dir, "top.go", "package main\n")
	writeTempFile(t, filepath.Join(dir, "sub", "deep"), "nested.go", "package deep\n")

	gt := NewGlobTool()
	gt.SetWorkingDirectory(dir)
	result := gt.Execute(context.Background(), map[string]any{
		"pattern": "**/*.go",
		"path":    dir,
	})
	require.True(t, result.IsSuccess())
	require.Equal(t, 2, result.Metadata["matches_found"])
}

func TestLSTool_RecursiveRespectsMaxDepth(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a", "b", "c"), 0o755))
	writeTempFile(t, filepath.Join(dir, "a", "b", "c"), "deep.txt", "x")

	lt := NewLSTool()
	result := lt.Execute(context.Background(), map[string]any{
		"path":      dir,
		"recursive": true,
		"max_depth": 1,
	})
	require.True(t, result.IsSuccess())
	text, ok := result.Result.(string)
	require.True(t, ok)
	require.NotContains(t, text, "deep.txt")
}

func TestLSTool_HidesDotFilesByDefault(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, ".hidden", "x")
	writeTempFile(t, dir, "visible.txt", "x")

	lt := NewLSTool()
	result := lt.Execute(context.Background(), map[string]any{"path": dir})
	require.True(t, result.IsSuccess())
	text := result.Result.(string)
	require.Contains(t, text, "visible.txt")
	require.NotContains(t, text, ".hidden")
}
