package tools

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/agentcore/qcode/internal/llmtypes"
)

var dangerousCommandPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\brm\s+-rf\s+/`),
	regexp.MustCompile(`(?i)\bdd\s+`),
	regexp.MustCompile(`>\s*/dev/null.*2>&1.*&`),
	regexp.MustCompile(`(?i)\bsudo\s+`),
	regexp.MustCompile(`(?i)\bsu\s+`),
}

func validateCommand(command string) error {
	for _, p := range dangerousCommandPatterns {
		if p.MatchString(command) {
			return fmt.Errorf("potentially dangerous command detected: %s", command)
		}
	}
	return nil
}

const (
	defaultBashTimeout = 120 * time.Second
	maxBashTimeout     = 600 * time.Second
)

// BashTool runs a shell command through os/exec with a bounded timeout and
// a dangerous-command blocklist, grounded on BashTool in execution_tools.py.
type BashTool struct{ base }

func NewBashTool() *BashTool {
	return &BashTool{base: newBase("Bash", "Executes a bash command in a new shell process")}
}

func (t *BashTool) Schema() llmtypes.ToolSchema {
	return llmtypes.ToolSchema{
		Name: t.name, Description: t.description, Type: "object",
		Properties: map[string]any{
			"command":     map[string]any{"type": "string", "description": "The bash command to execute"},
			"timeout":     map[string]any{"type": "number", "description": "Timeout in seconds (max 600)", "maximum": 600, "default": 120},
			"description": map[string]any{"type": "string", "description": "Clear description of what this command does"},
			"env":         map[string]any{"type": "object", "description": "Environment variables to set", "additionalProperties": map[string]any{"type": "string"}},
		},
		Required: []string{"command"},
	}
}

func (t *BashTool) Execute(ctx context.Context, args map[string]any) llmtypes.ToolResult {
	return safeExecute(t.name, func() (any, map[string]any, error) {
		command := stringArg(args, "command", "")
		if command == "" {
			return nil, nil, fmt.Errorf("missing required parameter: command")
		}
		description := stringArg(args, "description", "")

		if err := validateCommand(command); err != nil {
			return nil, map[string]any{"command": command, "description": description}, err
		}

		timeout := defaultBashTimeout
		if v, ok := args["timeout"]; ok {
			switch n := v.(type) {
			case float64:
				timeout = time.Duration(n * float64(time.Second))
			case int:
				timeout = time.Duration(n) * time.Second
			}
		}
		if timeout > maxBashTimeout {
			timeout = maxBashTimeout
		}

		env := os.Environ()
		if raw, ok := args["env"].(map[string]any); ok {
			for k, v := range raw {
				if s, ok := v.(string); ok {
					env = append(env, k+"="+s)
				}
			}
		}

		runCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(runCtx, "bash", "-c", command)
		cmd.Env = env
		cmd.Dir = t.WorkingDirectory()
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		runErr := cmd.Run()
		if runCtx.Err() == context.DeadlineExceeded {
			return nil, map[string]any{"command": command, "description": description, "timeout": timeout.Seconds()},
				fmt.Errorf("command timed out after %.0f seconds", timeout.Seconds())
		}

		output := formatBashOutput(stdout.String(), stderr.String())
		exitCode := 0
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else if runErr != nil {
			return nil, nil, runErr
		}

		meta := map[string]any{
			"command":     command,
			"exit_code":   exitCode,
			"description": description,
			"timeout":     timeout.Seconds(),
		}
		if exitCode != 0 {
			errMsg := fmt.Sprintf("Command failed with exit code %d", exitCode)
			if stderr.Len() > 0 {
				errMsg += ": " + strings.TrimSpace(stderr.String())
			}
			return nil, meta, fmt.Errorf("%s", errMsg)
		}
		return output, meta, nil
	})
}

func formatBashOutput(stdout, stderr string) string {
	var parts []string
	if s := strings.TrimSpace(stdout); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(stderr); s != "" {
		parts = append(parts, "STDERR:\n"+s)
	}
	return strings.Join(parts, "\n")
}

// TaskTool validates and acknowledges a task-delegation request. It does
// not spawn a sub-agent; grounded on TaskTool in execution_tools.py, which
// is itself a placeholder ("in production, this would delegate to a
// specialized agent").
type TaskTool struct{ base }

func NewTaskTool() *TaskTool {
	return &TaskTool{base: newBase("Task", "Validates and acknowledges a task-delegation request; no sub-agent is launched")}
}

func (t *TaskTool) Schema() llmtypes.ToolSchema {
	return llmtypes.ToolSchema{
		Name: t.name, Description: t.description, Type: "object",
		Properties: map[string]any{
			"description": map[string]any{"type": "string", "description": "Short description of the task (3-5 words)"},
			"prompt":      map[string]any{"type": "string", "description": "Detailed task description for the agent"},
			"task_type":   map[string]any{"type": "string", "enum": []string{"search", "analysis", "coding", "debugging", "research"}, "description": "Type of task to optimize agent behavior", "default": "analysis"},
			"context": map[string]any{
				"type":        "object",
				"description": "Additional context for the task",
				"properties": map[string]any{
					"files":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Relevant files for the task"},
					"keywords": map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Keywords related to the task"},
				},
			},
		},
		Required: []string{"description", "prompt"},
	}
}

func (t *TaskTool) Execute(ctx context.Context, args map[string]any) llmtypes.ToolResult {
	return safeExecute(t.name, func() (any, map[string]any, error) {
		description := stringArg(args, "description", "")
		prompt := stringArg(args, "prompt", "")
		taskType := stringArg(args, "task_type", "analysis")

		if len(description) > 100 {
			return nil, nil, fmt.Errorf("description too long (max 100 characters)")
		}
		if len(prompt) < 10 {
			return nil, nil, fmt.Errorf("prompt too short (min 10 characters)")
		}

		var taskContext map[string]any
		if raw, ok := args["context"].(map[string]any); ok {
			taskContext = raw
		}

		msg := fmt.Sprintf("Task '%s' queued for execution.\n"+
			"This is a placeholder; delegation to a specialized agent is not yet implemented.\n"+
			"Task type: %s\nPrompt length: %d characters", description, taskType, len(prompt))

		return msg, map[string]any{
			"description":   description,
			"task_type":     taskType,
			"prompt_length": len(prompt),
			"context":       taskContext,
		}, nil
	})
}
