package cmd

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/agentcore/qcode/internal/agent"
	"github.com/agentcore/qcode/internal/llmtypes"
	"github.com/agentcore/qcode/internal/metrics"
	"github.com/agentcore/qcode/pkg/agentcore"
)

var metricsAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the agent core as a long-lived process with a /metrics endpoint",
	Long: `serve starts the backend Manager's health loop and the MCP
Discovery service the same way the interactive REPL does, but additionally
publishes Prometheus metrics on --metrics-addr and drives the MCP
reconnect/health-check passes from a robfig/cron schedule instead of
Discovery's own internal tickers, so the two independent cadences
(reconnect every 30s, ping every 60s, per spec.md §4.7) are visible as
named cron entries an operator can inspect.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "address to serve /health, /api/chat, /api/tools, and /metrics on")
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	ms := metrics.New(reg)

	core, err := agentcore.New(ctx, agentcore.Options{
		Config:                cfg,
		WorkingDirectory:      workingDirectory,
		Metrics:               ms,
		ExternalMCPScheduling: true,
	})
	if err != nil {
		return err
	}
	defer core.Close()

	c := cron.New()
	if core.MCP != nil {
		if _, err := c.AddFunc("@every 30s", func() { core.MCP.ReconnectPass(ctx) }); err != nil {
			return err
		}
		if _, err := c.AddFunc("@every 60s", func() { core.MCP.HealthCheckPass(ctx) }); err != nil {
			return err
		}
	}
	c.Start()
	defer c.Stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/api/chat", handleChat(core))
	mux.HandleFunc("/api/tools", handleTools(core))

	server := &http.Server{Addr: metricsAddr, Handler: mux}
	log.Info("serving metrics", "addr", metricsAddr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// chatRequest/chatResponse are the /api/chat wire shapes, grounded on the
// teacher's runMCPHost HTTP server.
type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Response  string   `json:"response"`
	ToolCalls []string `json:"tool_calls,omitempty"`
}

// handleChat runs one ProcessMessage turn to completion and returns the
// assembled visible text, for CI/tooling callers that want a single
// request/response round trip instead of the REPL's streamed output.
func handleChat(core *agentcore.AgentCore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Message) == "" {
			http.Error(w, "request body must be {\"message\": \"...\"}", http.StatusBadRequest)
			return
		}

		if err := core.Session.AddMessage(llmtypes.Message{Role: llmtypes.RoleUser, Content: req.Message}); err != nil {
			log.Warn("session: failed to record user message", "error", err)
		}

		s := core.Agent.ProcessMessage(r.Context(), req.Message)
		var visible strings.Builder
		var toolCalls []string
		for {
			ev, ok := s.Recv()
			if !ok {
				break
			}
			switch ev.Type {
			case agent.EventVisible:
				visible.WriteString(ev.Text)
			case agent.EventToolStart:
				toolCalls = append(toolCalls, ev.ToolName)
			}
		}
		if err := s.Err(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		if err := core.Session.AddMessage(llmtypes.Message{Role: llmtypes.RoleAssistant, Content: visible.String()}); err != nil {
			log.Warn("session: failed to record assistant message", "error", err)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResponse{Response: visible.String(), ToolCalls: toolCalls})
	}
}

// handleTools reports every registered local and MCP tool's schema.
func handleTools(core *agentcore.AgentCore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(core.Registry.Schemas())
	}
}
