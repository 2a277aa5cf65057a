// Package cmd is the CLI entry point binding pkg/agentcore to a terminal.
// Rendering/widget layout is explicitly out of scope for the agent core
// (spec.md §1); this stays a plain line-oriented REPL rather than a
// reimplementation of the teacher's bubbletea TUI; it exists only so the
// library underneath has a runnable front door, grounded on
// mark3labs-mcphost's cmd/root.go for cobra wiring and glamour rendering
// of assistant output.
package cmd

import (
	"bufio"
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/agentcore/qcode/internal/config"
	"github.com/agentcore/qcode/internal/logx"
)

var log = logx.For("cmd")

var (
	configPath       string
	workingDirectory string
	modelFlag        string
	preferredBackend string
	noFallback       bool
	yolo             bool
	debug            bool
)

// rootCmd is the default command: start an interactive session.
var rootCmd = &cobra.Command{
	Use:   "qcode",
	Short: "A local, multi-backend coding assistant",
	Long: `qcode routes one conversational interface across several LLM
backends, augments it with a tool-using ReAct agent, and protects the host
machine through a risk-based permission layer.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runREPL(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a JSON or YAML config file (default: "+config.DefaultPath()+")")
	rootCmd.PersistentFlags().StringVar(&workingDirectory, "workdir", "", "working directory the agent and its tools operate in (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&modelFlag, "model", "", "model override for the chosen backend")
	rootCmd.PersistentFlags().StringVar(&preferredBackend, "backend", "", "preferred backend type (ollama, lm_studio, vllm, openrouter)")
	rootCmd.PersistentFlags().BoolVar(&noFallback, "no-fallback", false, "disable failover to other healthy backends on error")
	rootCmd.PersistentFlags().BoolVar(&yolo, "yolo", false, "bypass the permission engine entirely (dangerous)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(backendsCmd)
	rootCmd.AddCommand(toolsCmd)
}

// Execute runs the CLI; it is the sole entry point called from main.
func Execute() error {
	return rootCmd.Execute()
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if debug {
		cfg.Logging.Level = "DEBUG"
	}
	return cfg, nil
}

func renderMarkdown(text string) string {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		return text
	}
	out, err := r.Render(text)
	if err != nil {
		return text
	}
	return out
}

func newLineReader() *bufio.Scanner {
	s := bufio.NewScanner(os.Stdin)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return s
}

func printErr(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}
