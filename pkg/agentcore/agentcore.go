// Package agentcore wires the backend Manager, tool Registry, permission
// Coordinator, MCP Discovery service, and ReAct Agent into one value,
// replacing the source's module-level "current backend" / "current tool
// manager" / "current permission manager" globals (spec.md §9's design
// note on that pattern). There is exactly one AgentCore per running
// assistant process; everything it owns is reachable only through the
// value returned by New, never through a package-level singleton.
package agentcore

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/agentcore/qcode/internal/agent"
	"github.com/agentcore/qcode/internal/backend"
	"github.com/agentcore/qcode/internal/config"
	"github.com/agentcore/qcode/internal/logx"
	"github.com/agentcore/qcode/internal/mcp"
	"github.com/agentcore/qcode/internal/metrics"
	"github.com/agentcore/qcode/internal/permission"
	"github.com/agentcore/qcode/internal/session"
	"github.com/agentcore/qcode/internal/tools"
)

var log = logx.For("agentcore")

// Options configures one AgentCore instance.
type Options struct {
	Config           *config.Config
	WorkingDirectory string
	AgentID          string
	SystemPrompt     string
	Model            string
	PreferredBackend string
	Fallback         bool
	YOLO             bool
	PreferenceFile   string
	SessionDir       string
	Prompter         permission.Prompter
	Metrics          *metrics.Metrics

	// ExternalMCPScheduling skips Discovery's own reconnect/health tickers;
	// the caller (the serve command's cron schedule) is responsible for
	// calling MCP.ReconnectPass / MCP.HealthCheckPass itself.
	ExternalMCPScheduling bool
}

// AgentCore is the process-boundary value threaded through every entry
// point (CLI, server, SDK caller). It owns the Manager, the Registry, the
// permission Coordinator, the MCP Discovery service, the Agent, and the
// session Manager that logs the turn.
type AgentCore struct {
	Config      *config.Config
	Backends    *backend.Manager
	Registry    *tools.Registry
	Permissions *permission.Coordinator
	MCP         *mcp.Discovery
	Agent       *agent.Agent
	Session     *session.Manager

	cancelBackends context.CancelFunc
	cancelMCP      context.CancelFunc
}

// New constructs an AgentCore: starts the backend Manager's discovery and
// health loop, builds the tool Registry with the permission Coordinator
// wired as its checker, starts the MCP Discovery service if enabled, and
// binds an Agent over all of it. Callers own the returned value's
// lifetime and must call Close on shutdown.
func New(ctx context.Context, opts Options) (*AgentCore, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	wd := opts.WorkingDirectory
	if wd == "" {
		wd = "."
	}

	logx.SetDebug(cfg.Logging.Level == "DEBUG")

	backendCtx, cancelBackends := context.WithCancel(ctx)
	backends := backend.NewManager(cfg)
	if opts.Metrics != nil {
		backends.SetMetrics(opts.Metrics)
	}
	backends.Start(backendCtx)

	registry := tools.NewDefaultRegistry()
	registry.SetWorkingDirectory(wd)
	if opts.Metrics != nil {
		registry.SetMetrics(opts.Metrics)
	}

	coordinator, err := permission.NewCoordinator(wd, opts.PreferenceFile, opts.YOLO)
	if err != nil {
		cancelBackends()
		return nil, fmt.Errorf("agentcore: permission coordinator: %w", err)
	}
	if opts.Prompter != nil {
		coordinator.SetPrompter(opts.Prompter)
	}
	if opts.Metrics != nil {
		coordinator.SetMetrics(opts.Metrics)
	}
	registry.SetPermissionChecker(coordinator)

	mcpCtx, cancelMCP := context.WithCancel(ctx)
	var discovery *mcp.Discovery
	if cfg.MCP.Enabled && len(cfg.MCP.Servers) > 0 {
		discovery = mcp.NewDiscovery(registry, cfg.MCP.Servers)
		if opts.ExternalMCPScheduling {
			discovery.StartConnectOnly(mcpCtx)
		} else {
			discovery.Start(mcpCtx)
		}
	} else {
		cancelMCP()
	}

	a := agent.NewAgent(opts.AgentID, backends, registry, agent.Config{
		SystemPrompt:     opts.SystemPrompt,
		Model:            opts.Model,
		PreferredBackend: opts.PreferredBackend,
		Fallback:         opts.Fallback,
		WorkingDirectory: wd,
	})

	sessDir := opts.SessionDir
	if sessDir == "" {
		sessDir = wd
	}
	newSession := session.New()
	sessPath := filepath.Join(sessDir, newSession.FileName())
	sess := session.NewManagerWithSession(newSession, sessPath)
	if err := sess.SetMetadata(session.Metadata{
		BackendType: opts.PreferredBackend,
		Model:       opts.Model,
	}); err != nil {
		log.Warn("could not stamp initial session metadata", "error", err)
	}

	log.Info("agent core ready", "working_directory", wd, "mcp_enabled", discovery != nil)

	return &AgentCore{
		Config:         cfg,
		Backends:       backends,
		Registry:       registry,
		Permissions:    coordinator,
		MCP:            discovery,
		Agent:          a,
		Session:        sess,
		cancelBackends: cancelBackends,
		cancelMCP:      cancelMCP,
	}, nil
}

// Close stops the background health/discovery loops and releases the
// permission store's file watch. It does not block on in-flight turns;
// callers should cancel their own per-turn contexts first.
func (c *AgentCore) Close() error {
	if c.MCP != nil {
		c.MCP.Stop()
	}
	c.cancelMCP()
	c.cancelBackends()

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.Backends.Stop(stopCtx)

	return c.Permissions.Close()
}
