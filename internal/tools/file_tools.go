package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentcore/qcode/internal/llmtypes"
)

// ReadTool reads a file with an optional 1-based line offset/limit,
// grounded on original_source tools/file_tools.py's ReadTool.
type ReadTool struct{ base }

func NewReadTool() *ReadTool {
	return &ReadTool{base: newBase("Read", "Reads a file from the filesystem with optional line range")}
}

func (t *ReadTool) Schema() llmtypes.ToolSchema {
	return llmtypes.ToolSchema{
		Name: t.name, Description: t.description, Type: "object",
		Properties: map[string]any{
			"file_path": map[string]any{"type": "string", "description": "Absolute path to the file to read"},
			"offset":    map[string]any{"type": "integer", "description": "Line number to start reading from (1-based)", "minimum": 1},
			"limit":     map[string]any{"type": "integer", "description": "Number of lines to read", "minimum": 1},
		},
		Required: []string{"file_path"},
	}
}

func (t *ReadTool) Execute(ctx context.Context, args map[string]any) llmtypes.ToolResult {
	return safeExecute(t.name, func() (any, map[string]any, error) {
		filePath := stringArg(args, "file_path", "")
		if filePath == "" {
			return nil, nil, fmt.Errorf("missing required parameter: file_path")
		}
		path := t.resolvePath(filePath)

		info, err := os.Stat(path)
		if err != nil {
			return nil, nil, err
		}
		if info.IsDir() {
			return nil, nil, fmt.Errorf("path is not a file: %s", path)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, err
		}
		lines := splitKeepingEmpty(string(data))

		offset := intArgPtr(args, "offset")
		limit := intArgPtr(args, "limit")

		startIdx := 0
		if offset != nil {
			startIdx = *offset - 1
			if startIdx >= len(lines) {
				return "", map[string]any{"total_lines": len(lines), "message": "Offset beyond end of file"}, nil
			}
		}
		endIdx := len(lines)
		switch {
		case offset != nil:
			if limit != nil {
				endIdx = startIdx + *limit
			}
		case limit != nil:
			endIdx = *limit
		}
		if endIdx > len(lines) {
			endIdx = len(lines)
		}
		selected := lines[startIdx:endIdx]

		startLine := 1
		if offset != nil {
			startLine = *offset
		}
		var b strings.Builder
		for i, line := range selected {
			if i > 0 {
				b.WriteByte('\n')
			}
			if len(line) > 2000 {
				line = line[:1997] + "..."
			}
			fmt.Fprintf(&b, "%6d→%s", startLine+i, line)
		}

		return b.String(), map[string]any{
			"total_lines": len(selected),
			"file_size":   info.Size(),
			"encoding":    "utf-8",
		}, nil
	})
}

// splitKeepingEmpty splits text into lines the way Python's readlines()
// does: a trailing newline does not produce a phantom empty final element.
func splitKeepingEmpty(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.TrimSuffix(text, "\n")
	return strings.Split(text, "\n")
}

// WriteTool writes content to a file, creating parent directories on
// request, grounded on WriteTool in file_tools.py.
type WriteTool struct{ base }

func NewWriteTool() *WriteTool {
	return &WriteTool{base: newBase("Write", "Writes content to a file, creating or overwriting as needed")}
}

func (t *WriteTool) Schema() llmtypes.ToolSchema {
	return llmtypes.ToolSchema{
		Name: t.name, Description: t.description, Type: "object",
		Properties: map[string]any{
			"file_path":   map[string]any{"type": "string", "description": "Absolute path to the file to write"},
			"content":     map[string]any{"type": "string", "description": "Content to write to the file"},
			"create_dirs": map[string]any{"type": "boolean", "description": "Create parent directories if they don't exist", "default": false},
		},
		Required: []string{"file_path", "content"},
	}
}

func (t *WriteTool) Execute(ctx context.Context, args map[string]any) llmtypes.ToolResult {
	return safeExecute(t.name, func() (any, map[string]any, error) {
		filePath := stringArg(args, "file_path", "")
		content := stringArg(args, "content", "")
		createDirs := boolArg(args, "create_dirs", false)
		if filePath == "" {
			return nil, nil, fmt.Errorf("missing required parameter: file_path")
		}
		path := t.resolvePath(filePath)

		if createDirs {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, nil, err
			}
		}

		var originalSize int64
		existsBefore := false
		if info, err := os.Stat(path); err == nil {
			existsBefore = true
			originalSize = info.Size()
		}

		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return nil, nil, err
		}

		newInfo, err := os.Stat(path)
		if err != nil {
			return nil, nil, err
		}

		lines := 0
		if content != "" {
			lines = strings.Count(content, "\n") + 1
		}
		meta := map[string]any{
			"bytes_written": newInfo.Size(),
			"lines_written": lines,
			"was_overwrite": existsBefore,
		}
		if existsBefore {
			meta["original_size"] = originalSize
		}
		return fmt.Sprintf("File written successfully: %s", path), meta, nil
	})
}

// EditTool performs an exact-string find/replace, grounded on EditTool in
// file_tools.py. A non-unique match without replace_all is an error, not a
// silent first-match replace.
type EditTool struct{ base }

func NewEditTool() *EditTool {
	return &EditTool{base: newBase("Edit", "Performs exact string replacements in files")}
}

func (t *EditTool) Schema() llmtypes.ToolSchema {
	return llmtypes.ToolSchema{
		Name: t.name, Description: t.description, Type: "object",
		Properties: map[string]any{
			"file_path":   map[string]any{"type": "string", "description": "Absolute path to the file to modify"},
			"old_string":  map[string]any{"type": "string", "description": "Exact text to replace"},
			"new_string":  map[string]any{"type": "string", "description": "Text to replace it with"},
			"replace_all": map[string]any{"type": "boolean", "description": "Replace all occurrences (default false)", "default": false},
		},
		Required: []string{"file_path", "old_string", "new_string"},
	}
}

func (t *EditTool) Execute(ctx context.Context, args map[string]any) llmtypes.ToolResult {
	return safeExecute(t.name, func() (any, map[string]any, error) {
		filePath := stringArg(args, "file_path", "")
		oldString := stringArg(args, "old_string", "")
		newString := stringArg(args, "new_string", "")
		replaceAll := boolArg(args, "replace_all", false)
		if filePath == "" {
			return nil, nil, fmt.Errorf("missing required parameter: file_path")
		}
		path := t.resolvePath(filePath)

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, err
		}
		content := string(data)

		newContent, replacements, err := applyEdit(content, oldString, newString, replaceAll)
		if err != nil {
			return nil, nil, err
		}

		if err := os.WriteFile(path, []byte(newContent), 0o644); err != nil {
			return nil, nil, err
		}

		return fmt.Sprintf("Successfully replaced %d occurrence(s)", replacements), map[string]any{
			"replacements_made": replacements,
			"old_length":        len(content),
			"new_length":        len(newContent),
		}, nil
	})
}

// applyEdit implements the shared old_string/new_string/replace_all
// semantics used by both EditTool and each step of MultiEditTool.
func applyEdit(content, oldString, newString string, replaceAll bool) (string, int, error) {
	count := strings.Count(content, oldString)
	if count == 0 {
		snippet := oldString
		if len(snippet) > 100 {
			snippet = snippet[:100] + "..."
		}
		return "", 0, fmt.Errorf("string not found in file: %s", snippet)
	}
	if !replaceAll && count > 1 {
		return "", 0, fmt.Errorf("string appears %d times. Use replace_all=true or provide more context to make it unique", count)
	}
	if replaceAll {
		return strings.ReplaceAll(content, oldString, newString), count, nil
	}
	return strings.Replace(content, oldString, newString, 1), 1, nil
}

// MultiEditTool applies a sequence of edits to one file atomically: all
// edits are validated and applied in memory before a single write, so a
// failure partway through leaves the file untouched, grounded on
// MultiEditTool in file_tools.py.
type MultiEditTool struct{ base }

func NewMultiEditTool() *MultiEditTool {
	return &MultiEditTool{base: newBase("MultiEdit", "Performs multiple find-and-replace operations on a file atomically")}
}

func (t *MultiEditTool) Schema() llmtypes.ToolSchema {
	return llmtypes.ToolSchema{
		Name: t.name, Description: t.description, Type: "object",
		Properties: map[string]any{
			"file_path": map[string]any{"type": "string", "description": "Absolute path to the file to modify"},
			"edits": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"old_string":  map[string]any{"type": "string"},
						"new_string":  map[string]any{"type": "string"},
						"replace_all": map[string]any{"type": "boolean", "default": false},
					},
					"required": []string{"old_string", "new_string"},
				},
				"description": "Array of edit operations to perform",
			},
		},
		Required: []string{"file_path", "edits"},
	}
}

func (t *MultiEditTool) Execute(ctx context.Context, args map[string]any) llmtypes.ToolResult {
	return safeExecute(t.name, func() (any, map[string]any, error) {
		filePath := stringArg(args, "file_path", "")
		if filePath == "" {
			return nil, nil, fmt.Errorf("missing required parameter: file_path")
		}
		rawEdits, ok := args["edits"].([]any)
		if !ok || len(rawEdits) == 0 {
			return nil, nil, fmt.Errorf("missing required parameter: edits")
		}
		path := t.resolvePath(filePath)

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, err
		}
		originalContent := string(data)
		content := originalContent

		totalReplacements := 0
		var editDetails []map[string]any
		for i, raw := range rawEdits {
			editMap, ok := raw.(map[string]any)
			if !ok {
				return nil, nil, fmt.Errorf("edit %d: malformed edit entry", i+1)
			}
			oldString := stringArg(editMap, "old_string", "")
			newString := stringArg(editMap, "new_string", "")
			replaceAll := boolArg(editMap, "replace_all", false)

			updated, replacements, err := applyEdit(content, oldString, newString, replaceAll)
			if err != nil {
				return nil, nil, fmt.Errorf("edit %d: %w", i+1, err)
			}
			content = updated
			totalReplacements += replacements
			editDetails = append(editDetails, map[string]any{
				"edit_number":  i + 1,
				"replacements": replacements,
				"old_length":   len(oldString),
				"new_length":   len(newString),
			})
		}

		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return nil, nil, err
		}

		return fmt.Sprintf("Successfully applied %d edits with %d total replacements", len(rawEdits), totalReplacements),
			map[string]any{
				"edits_applied":      len(rawEdits),
				"total_replacements": totalReplacements,
				"original_length":    len(originalContent),
				"final_length":       len(content),
				"edit_details":       editDetails,
			}, nil
	})
}
