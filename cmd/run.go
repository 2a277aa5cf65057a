package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentcore/qcode/internal/agent"
	"github.com/agentcore/qcode/internal/llmtypes"
	"github.com/agentcore/qcode/pkg/agentcore"
)

// runCmd is the script/batch-mode entry point (SPEC_FULL.md's "run"
// subcommand): one prompt in, one rendered transcript out, then exit —
// for CI and tooling callers that don't want an interactive REPL,
// grounded on the teacher's cmd/script.go pattern.
var runCmd = &cobra.Command{
	Use:   "run [prompt]",
	Short: "Execute one prompt non-interactively and exit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runOnce(ctx context.Context, prompt string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	wd := workingDirectory
	if wd == "" {
		wd, _ = os.Getwd()
	}

	core, err := agentcore.New(ctx, agentcore.Options{
		Config:           cfg,
		WorkingDirectory: wd,
		SystemPrompt:     defaultSystemPrompt,
		Model:            modelFlag,
		PreferredBackend: preferredBackend,
		Fallback:         !noFallback,
		YOLO:             yolo,
	})
	if err != nil {
		return fmt.Errorf("starting agent core: %w", err)
	}
	defer core.Close()

	if err := core.Session.AddMessage(llmtypes.Message{Role: llmtypes.RoleUser, Content: prompt}); err != nil {
		printErr("session: %v", err)
	}

	s := core.Agent.ProcessMessage(ctx, prompt)
	var visible strings.Builder
	for {
		ev, ok := s.Recv()
		if !ok {
			break
		}
		switch ev.Type {
		case agent.EventVisible:
			visible.WriteString(ev.Text)
		case agent.EventToolStart:
			fmt.Printf("\n[tool] %s...\n", ev.ToolName)
		case agent.EventToolResult:
			printToolResult(ev)
		}
	}

	if err := s.Err(); err != nil {
		return fmt.Errorf("generation error: %w", err)
	}

	fmt.Print(renderMarkdown(visible.String()))

	if err := core.Session.AddMessage(llmtypes.Message{Role: llmtypes.RoleAssistant, Content: visible.String()}); err != nil {
		printErr("session: %v", err)
	}
	return nil
}
