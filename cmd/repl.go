package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/agentcore/qcode/internal/agent"
	"github.com/agentcore/qcode/internal/llmtypes"
	"github.com/agentcore/qcode/pkg/agentcore"
)

// terminalPrompter implements permission.Prompter by asking the operator
// on stdin/stdout, mirroring the {Allow once, Deny once, Always allow,
// Always deny} choice set from spec.md §4.4's decision flow.
type terminalPrompter struct {
	reader *bufio.Reader
}

func newTerminalPrompter() *terminalPrompter {
	return &terminalPrompter{reader: bufio.NewReader(os.Stdin)}
}

func (p *terminalPrompter) Prompt(ctx context.Context, toolName string, args map[string]any, assessment llmtypes.RiskAssessment) (bool, bool, error) {
	fmt.Printf("\nPermission requested: %s %v\n", toolName, args)
	fmt.Printf("  risk: %s\n", assessment.RiskLevel)
	for _, r := range assessment.Reasons {
		fmt.Printf("  reason: %s\n", r)
	}
	for _, w := range assessment.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
	fmt.Print("[a]llow once / [d]eny once / always [A]llow / always [D]eny: ")

	line, err := p.reader.ReadString('\n')
	if err != nil {
		return false, false, err
	}
	switch strings.TrimSpace(line) {
	case "A":
		return true, true, nil
	case "D":
		return false, true, nil
	case "d":
		return false, false, nil
	default:
		return true, false, nil
	}
}

func runREPL(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	wd := workingDirectory
	if wd == "" {
		wd, _ = os.Getwd()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	core, err := agentcore.New(ctx, agentcore.Options{
		Config:           cfg,
		WorkingDirectory: wd,
		SystemPrompt:     defaultSystemPrompt,
		Model:            modelFlag,
		PreferredBackend: preferredBackend,
		Fallback:         !noFallback,
		YOLO:             yolo,
		Prompter:         newTerminalPrompter(),
	})
	if err != nil {
		return fmt.Errorf("starting agent core: %w", err)
	}
	defer core.Close()

	isTTY := term.IsTerminal(int(os.Stdin.Fd()))
	if isTTY {
		fmt.Println("qcode ready. Type your message, or /exit to quit.")
	}

	scanner := newLineReader()
	for {
		if isTTY {
			fmt.Print("\n> ")
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/exit" || line == "/quit" {
			break
		}
		if line == "/clear" {
			core.Agent.ClearContext()
			fmt.Println("context cleared.")
			continue
		}
		if line == "/compact" {
			core.Agent.CompactContext()
			fmt.Println("context compacted.")
			continue
		}

		runTurn(ctx, core, line)
	}
	return nil
}

func runTurn(ctx context.Context, core *agentcore.AgentCore, message string) {
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := core.Session.AddMessage(llmtypes.Message{Role: llmtypes.RoleUser, Content: message}); err != nil {
		printErr("session: %v", err)
	}

	s := core.Agent.ProcessMessage(turnCtx, message)
	var visible strings.Builder

	for {
		ev, ok := s.Recv()
		if !ok {
			break
		}
		switch ev.Type {
		case agent.EventVisible:
			visible.WriteString(ev.Text)
		case agent.EventThinking:
			// Internal reasoning never reaches the visible channel
			// (spec.md §6); suppress unless debug logging is enabled.
		case agent.EventToolStart:
			fmt.Printf("\n[tool] %s...\n", ev.ToolName)
		case agent.EventToolResult:
			printToolResult(ev)
		case agent.EventDone:
		}
	}

	if err := s.Err(); err != nil {
		printErr("generation error: %v", err)
		return
	}

	fmt.Print(renderMarkdown(visible.String()))

	if err := core.Session.AddMessage(llmtypes.Message{Role: llmtypes.RoleAssistant, Content: visible.String()}); err != nil {
		printErr("session: %v", err)
	}
}

func printToolResult(ev agent.Event) {
	if ev.ToolResult == nil {
		return
	}
	r := ev.ToolResult
	if r.IsSuccess() {
		fmt.Printf("[tool] %s completed in %.2fs\n", r.ToolName, r.ExecutionTimeSeconds)
		return
	}
	fmt.Printf("[tool] %s failed: %s\n", r.ToolName, r.Error)
}

const defaultSystemPrompt = `You are a careful local coding assistant. You can read, write, and edit files, search the working directory, and run shell commands through tools. Always explain destructive actions before taking them.`
