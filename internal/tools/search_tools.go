package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/agentcore/qcode/internal/llmtypes"
)

// textFileExtensions mirrors GrepTool._is_text_file's extension allowlist.
var textFileExtensions = map[string]bool{
	".py": true, ".js": true, ".ts": true, ".tsx": true, ".jsx": true, ".java": true,
	".cpp": true, ".c": true, ".h": true, ".cs": true, ".php": true, ".rb": true,
	".go": true, ".rs": true, ".kt": true, ".swift": true, ".scala": true,
	".html": true, ".css": true, ".scss": true, ".less": true, ".xml": true,
	".json": true, ".yaml": true, ".yml": true, ".md": true, ".txt": true,
	".cfg": true, ".conf": true, ".ini": true, ".log": true, ".sql": true,
	".sh": true, ".bat": true, ".dockerfile": true, ".makefile": true,
	".cmake": true, ".gradle": true, ".properties": true,
}

// isTextFile mirrors _is_text_file: known extensions pass directly; an
// extensionless file is sampled for a printable-byte ratio above 0.7.
func isTextFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != "" {
		return textFileExtensions[ext]
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	if n == 0 {
		return false
	}
	printable := 0
	for _, b := range buf[:n] {
		if (b >= 32 && b <= 126) || b == 9 || b == 10 || b == 13 {
			printable++
		}
	}
	return float64(printable)/float64(n) > 0.7
}

// expandBracePattern expands a brace-group pattern like "*.{ts,tsx}" into a set
// of plain fnmatch-style patterns, mirroring _should_include_file's ad hoc
// '{' / '}' handling.
func expandBracePattern(pattern string) []string {
	if !strings.Contains(pattern, "{") || !strings.Contains(pattern, "}") {
		return []string{pattern}
	}
	open := strings.Index(pattern, "{")
	close := strings.Index(pattern, "}")
	if close < open {
		return []string{pattern}
	}
	prefix := pattern[:open]
	suffix := pattern[close+1:]
	alts := strings.Split(pattern[open+1:close], ",")
	out := make([]string, 0, len(alts))
	for _, alt := range alts {
		out = append(out, prefix+alt+suffix)
	}
	return out
}

func matchesAnyGlob(name string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}

func shouldIncludeFile(name, include, exclude string) bool {
	if exclude != "" {
		if ok, _ := filepath.Match(exclude, name); ok {
			return false
		}
	}
	if include != "" {
		return matchesAnyGlob(name, expandBracePattern(include))
	}
	return true
}

// GrepTool searches file contents with a regular expression, grounded on
// original_source tools/search_tools.py's GrepTool.
type GrepTool struct{ base }

func NewGrepTool() *GrepTool {
	return &GrepTool{base: newBase("Grep", "Fast content search using regular expressions")}
}

func (t *GrepTool) Schema() llmtypes.ToolSchema {
	return llmtypes.ToolSchema{
		Name: t.name, Description: t.description, Type: "object",
		Properties: map[string]any{
			"pattern":     map[string]any{"type": "string", "description": "Regular expression pattern to search for"},
			"path":        map[string]any{"type": "string", "description": "Directory to search in (defaults to current directory)"},
			"include":     map[string]any{"type": "string", "description": "File pattern to include (e.g., '*.py', '*.{ts,tsx}')"},
			"exclude":     map[string]any{"type": "string", "description": "File pattern to exclude"},
			"max_results": map[string]any{"type": "integer", "description": "Maximum number of results to return", "default": 100},
		},
		Required: []string{"pattern"},
	}
}

func (t *GrepTool) Execute(ctx context.Context, args map[string]any) llmtypes.ToolResult {
	return safeExecute(t.name, func() (any, map[string]any, error) {
		pattern := stringArg(args, "pattern", "")
		if pattern == "" {
			return nil, nil, fmt.Errorf("missing required parameter: pattern")
		}
		searchPath := t.resolvePath(stringArg(args, "path", "."))
		include := stringArg(args, "include", "")
		exclude := stringArg(args, "exclude", "")
		maxResults := intArg(args, "max_results", 100)

		info, err := os.Stat(searchPath)
		if err != nil {
			return nil, nil, fmt.Errorf("path does not exist: %s", searchPath)
		}

		regex, err := regexp.Compile(pattern)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid regex pattern: %w", err)
		}

		var files []string
		if info.IsDir() {
			filepath.Walk(searchPath, func(p string, fi os.FileInfo, err error) error {
				if err != nil || fi.IsDir() {
					return nil
				}
				files = append(files, p)
				return nil
			})
		} else {
			files = []string{searchPath}
		}

		var matches []string
		filesSearched := 0
		for _, f := range files {
			if len(matches) >= maxResults {
				break
			}
			if !shouldIncludeFile(filepath.Base(f), include, exclude) {
				continue
			}
			if !isTextFile(f) {
				continue
			}
			data, err := os.ReadFile(f)
			if err != nil {
				continue
			}
			filesSearched++
			if regex.Match(data) {
				rel, err := filepath.Rel(t.WorkingDirectory(), f)
				if err != nil {
					rel = f
				}
				matches = append(matches, rel)
			}
		}

		sort.Slice(matches, func(i, j int) bool {
			ii, _ := os.Stat(t.resolvePath(matches[i]))
			jj, _ := os.Stat(t.resolvePath(matches[j]))
			if ii == nil || jj == nil {
				return false
			}
			return ii.ModTime().After(jj.ModTime())
		})

		resultText := "No matches found"
		if len(matches) > 0 {
			resultText = strings.Join(matches, "\n")
		}

		return resultText, map[string]any{
			"matches_found":  len(matches),
			"files_searched": filesSearched,
			"pattern":        pattern,
			"search_path":    searchPath,
		}, nil
	})
}

// GlobTool finds files by glob pattern, grounded on GlobTool in
// search_tools.py.
type GlobTool struct{ base }

func NewGlobTool() *GlobTool {
	return &GlobTool{base: newBase("Glob", "Fast file pattern matching with glob patterns")}
}

func (t *GlobTool) Schema() llmtypes.ToolSchema {
	return llmtypes.ToolSchema{
		Name: t.name, Description: t.description, Type: "object",
		Properties: map[string]any{
			"pattern":     map[string]any{"type": "string", "description": "Glob pattern to match files against (e.g., '**/*.go', 'src/**/*.ts')"},
			"path":        map[string]any{"type": "string", "description": "Directory to search in (defaults to current directory)"},
			"max_results": map[string]any{"type": "integer", "description": "Maximum number of results to return", "default": 200},
		},
		Required: []string{"pattern"},
	}
}

func (t *GlobTool) Execute(ctx context.Context, args map[string]any) llmtypes.ToolResult {
	return safeExecute(t.name, func() (any, map[string]any, error) {
		pattern := stringArg(args, "pattern", "")
		if pattern == "" {
			return nil, nil, fmt.Errorf("missing required parameter: pattern")
		}
		searchPath := t.resolvePath(stringArg(args, "path", "."))
		maxResults := intArg(args, "max_results", 200)

		if _, err := os.Stat(searchPath); err != nil {
			return nil, nil, fmt.Errorf("path does not exist: %s", searchPath)
		}

		matches, err := globRecursive(searchPath, pattern)
		if err != nil {
			return nil, nil, err
		}

		sort.Slice(matches, func(i, j int) bool {
			ii, _ := os.Stat(matches[i])
			jj, _ := os.Stat(matches[j])
			if ii == nil || jj == nil {
				return false
			}
			return ii.ModTime().After(jj.ModTime())
		})
		if len(matches) > maxResults {
			matches = matches[:maxResults]
		}

		relMatches := make([]string, 0, len(matches))
		for _, m := range matches {
			rel, err := filepath.Rel(t.WorkingDirectory(), m)
			if err != nil {
				rel = m
			}
			relMatches = append(relMatches, rel)
		}

		resultText := "No matches found"
		if len(relMatches) > 0 {
			resultText = strings.Join(relMatches, "\n")
		}

		return resultText, map[string]any{
			"matches_found": len(relMatches),
			"pattern":       pattern,
			"search_path":   searchPath,
		}, nil
	})
}

// globRecursive supports "**" (match any depth) segments that filepath.Glob
// alone does not, walking the tree and testing each file against the
// pattern split on "/".
func globRecursive(root, pattern string) ([]string, error) {
	if !strings.Contains(pattern, "**") {
		return filepath.Glob(filepath.Join(root, pattern))
	}

	segments := strings.Split(pattern, "/")
	var matches []string
	err := filepath.Walk(root, func(p string, fi os.FileInfo, err error) error {
		if err != nil || fi.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		if matchesDoubleStarPattern(strings.Split(rel, string(filepath.Separator)), segments) {
			matches = append(matches, p)
		}
		return nil
	})
	return matches, err
}

// matchesDoubleStarPattern matches path segments against pattern segments
// where "**" consumes zero or more path segments.
func matchesDoubleStarPattern(pathSegs, patternSegs []string) bool {
	if len(patternSegs) == 0 {
		return len(pathSegs) == 0
	}
	if patternSegs[0] == "**" {
		if matchesDoubleStarPattern(pathSegs, patternSegs[1:]) {
			return true
		}
		if len(pathSegs) == 0 {
			return false
		}
		return matchesDoubleStarPattern(pathSegs[1:], patternSegs)
	}
	if len(pathSegs) == 0 {
		return false
	}
	ok, _ := filepath.Match(patternSegs[0], pathSegs[0])
	if !ok {
		return false
	}
	return matchesDoubleStarPattern(pathSegs[1:], patternSegs[1:])
}

// LSTool lists directory contents with optional recursion, grounded on
// LSTool in search_tools.py.
type LSTool struct{ base }

func NewLSTool() *LSTool {
	return &LSTool{base: newBase("LS", "Lists files and directories with optional filtering")}
}

func (t *LSTool) Schema() llmtypes.ToolSchema {
	return llmtypes.ToolSchema{
		Name: t.name, Description: t.description, Type: "object",
		Properties: map[string]any{
			"path":        map[string]any{"type": "string", "description": "Absolute path to directory to list"},
			"ignore":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "List of glob patterns to ignore"},
			"show_hidden": map[string]any{"type": "boolean", "description": "Show hidden files (starting with .)", "default": false},
			"recursive":   map[string]any{"type": "boolean", "description": "List directories recursively", "default": false},
			"max_depth":   map[string]any{"type": "integer", "description": "Maximum recursion depth", "default": 3},
		},
		Required: []string{"path"},
	}
}

func (t *LSTool) Execute(ctx context.Context, args map[string]any) llmtypes.ToolResult {
	return safeExecute(t.name, func() (any, map[string]any, error) {
		rawPath := stringArg(args, "path", "")
		if rawPath == "" {
			return nil, nil, fmt.Errorf("missing required parameter: path")
		}
		listPath, err := filepath.Abs(rawPath)
		if err != nil {
			return nil, nil, err
		}
		info, err := os.Stat(listPath)
		if err != nil {
			return nil, nil, fmt.Errorf("path does not exist: %s", listPath)
		}
		if !info.IsDir() {
			return nil, nil, fmt.Errorf("path is not a directory: %s", listPath)
		}

		ignore := stringSliceArg(args, "ignore")
		showHidden := boolArg(args, "show_hidden", false)
		recursive := boolArg(args, "recursive", false)
		maxDepth := intArg(args, "max_depth", 3)

		entries := []string{fmt.Sprintf("- %s/", listPath)}
		listDirectory(listPath, listPath, 0, maxDepth, showHidden, recursive, ignore, &entries)

		return strings.Join(entries, "\n"), map[string]any{
			"entries_found": len(entries) - 1,
			"path":          listPath,
			"recursive":     recursive,
			"max_depth":     maxDepth,
		}, nil
	})
}

func listDirectory(dir, base string, depth, maxDepth int, showHidden, recursive bool, ignore []string, entries *[]string) {
	if depth > maxDepth {
		return
	}
	items, err := os.ReadDir(dir)
	if err != nil {
		*entries = append(*entries, fmt.Sprintf("%s[Permission Denied]", strings.Repeat("  ", depth)))
		return
	}
	sort.Slice(items, func(i, j int) bool {
		iDir, jDir := items[i].IsDir(), items[j].IsDir()
		if iDir != jDir {
			return iDir
		}
		return strings.ToLower(items[i].Name()) < strings.ToLower(items[j].Name())
	})

	for _, item := range items {
		name := item.Name()
		if !showHidden && strings.HasPrefix(name, ".") {
			continue
		}
		if matchesAnyGlob(name, ignore) {
			continue
		}

		full := filepath.Join(dir, name)
		rel, err := filepath.Rel(base, full)
		if err != nil {
			rel = name
		}
		indent := strings.Repeat("  ", depth)
		if item.IsDir() {
			*entries = append(*entries, fmt.Sprintf("%s- %s/", indent, rel))
		} else {
			*entries = append(*entries, fmt.Sprintf("%s  - %s", indent, rel))
		}

		if recursive && item.IsDir() && depth < maxDepth {
			listDirectory(full, base, depth+1, maxDepth, showHidden, recursive, ignore, entries)
		}
	}
}
