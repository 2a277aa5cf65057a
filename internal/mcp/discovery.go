package mcp

import (
	"context"
	"sync"
	"time"

	"github.com/agentcore/qcode/internal/config"
	"github.com/agentcore/qcode/internal/logx"
	"github.com/agentcore/qcode/internal/tools"
)

var discoveryLog = logx.For("mcp.discovery")

// reconnectInterval/healthCheckInterval match discovery.py's
// _discovery_loop/_health_monitor_loop cadence. Discovery's own Start
// drives these with plain time.Tickers; the long-running serve command
// instead drives ReconnectPass/HealthCheckPass from a robfig/cron
// schedule, so Start is only one of two supported callers.
const (
	reconnectInterval   = 30 * time.Second
	healthCheckInterval = 60 * time.Second
)

// Discovery connects to every configured MCP server, registers its tools
// into a Registry, and keeps connections alive, grounded on
// discovery.py's MCPServerDiscovery.
type Discovery struct {
	registry *tools.Registry

	mu      sync.Mutex
	clients map[string]*Client
	states  map[string]*ServerState

	cancel context.CancelFunc
}

// NewDiscovery builds a Discovery for every enabled server in servers.
// Disabled servers are recorded nowhere and never connected.
func NewDiscovery(registry *tools.Registry, servers []config.MCPServerConfig) *Discovery {
	d := &Discovery{
		registry: registry,
		clients:  make(map[string]*Client),
		states:   make(map[string]*ServerState),
	}
	for _, cfg := range servers {
		if !cfg.Enabled {
			continue
		}
		d.states[cfg.Name] = &ServerState{Config: cfg, Status: StatusDisconnected}
	}
	return d
}

// Start connects to every enabled server in parallel, then launches the
// reconnect and health-check loops. Connection failures are logged, not
// fatal: the agent degrades to whichever servers are reachable.
func (d *Discovery) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.connectAll(ctx)

	go d.reconnectLoop(loopCtx)
	go d.healthLoop(loopCtx)
}

// StartConnectOnly performs the initial parallel connection pass without
// launching the internal reconnect/health-check tickers, for callers (the
// serve command) that drive ReconnectPass/HealthCheckPass themselves on
// an external schedule such as robfig/cron.
func (d *Discovery) StartConnectOnly(ctx context.Context) {
	d.connectAll(ctx)
}

// Stop cancels the background loops and disconnects every connected
// server.
func (d *Discovery) Stop() {
	if d.cancel != nil {
		d.cancel()
	}

	d.mu.Lock()
	names := make([]string, 0, len(d.clients))
	for name := range d.clients {
		names = append(names, name)
	}
	d.mu.Unlock()

	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			d.disconnectServer(name)
		}(name)
	}
	wg.Wait()
}

func (d *Discovery) connectAll(ctx context.Context) {
	d.mu.Lock()
	names := make([]string, 0, len(d.states))
	for name := range d.states {
		names = append(names, name)
	}
	d.mu.Unlock()

	var wg sync.WaitGroup
	var mu sync.Mutex
	connected := 0
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if d.connectServer(ctx, name) {
				mu.Lock()
				connected++
				mu.Unlock()
			}
		}(name)
	}
	wg.Wait()
	discoveryLog.Info("initial MCP discovery complete", "connected", connected, "total", len(names))
}

func (d *Discovery) connectServer(ctx context.Context, name string) bool {
	d.mu.Lock()
	state, ok := d.states[name]
	if !ok {
		d.mu.Unlock()
		return false
	}
	if client, exists := d.clients[name]; exists && client.IsConnected() {
		d.mu.Unlock()
		return true
	}
	state.Status = StatusConnecting
	state.ConnectionAttempts++
	cfg := state.Config
	d.mu.Unlock()

	discoveryLog.Debug("connecting to MCP server", "server", name)
	client := NewClient(cfg)
	info, err := client.Connect(ctx)
	if err != nil {
		d.mu.Lock()
		state.Status = StatusError
		state.LastError = err.Error()
		d.mu.Unlock()
		discoveryLog.Warn("failed to connect to MCP server", "server", name, "error", err)
		return false
	}

	d.mu.Lock()
	d.clients[name] = client
	state.Status = StatusConnected
	state.Info = info
	state.LastConnected = time.Now()
	state.LastError = ""
	d.mu.Unlock()

	discovered, err := client.ListTools(ctx)
	if err != nil {
		discoveryLog.Warn("failed to discover tools from MCP server", "server", name, "error", err)
		return true
	}

	d.mu.Lock()
	state.Tools = discovered
	d.mu.Unlock()

	for _, t := range discovered {
		d.registry.RegisterMCPTool(name, NewAdapter(name, t, client))
	}
	discoveryLog.Info("connected to MCP server", "server", name, "tools", len(discovered))
	return true
}

func (d *Discovery) disconnectServer(name string) {
	d.mu.Lock()
	client, ok := d.clients[name]
	if ok {
		delete(d.clients, name)
	}
	state := d.states[name]
	d.mu.Unlock()
	if !ok {
		return
	}

	client.Disconnect()
	removed := d.registry.UnregisterServer(name)

	d.mu.Lock()
	if state != nil {
		state.Status = StatusDisconnected
		state.Tools = nil
	}
	d.mu.Unlock()
	discoveryLog.Info("disconnected from MCP server", "server", name, "tools_removed", removed)
}

// ReconnectPass retries every disconnected/errored server once, subject to
// retry_attempts and retry_delay, mirroring one cycle of _discovery_loop.
// Exported so cmd/serve.go's cron-scheduled tick can drive this directly
// instead of relying on Start's internal ticker.
func (d *Discovery) ReconnectPass(ctx context.Context) {
	d.mu.Lock()
	var retry []string
	for name, state := range d.states {
		if (state.Status == StatusDisconnected || state.Status == StatusError) &&
			state.ConnectionAttempts < state.Config.RetryAttempts {
			retry = append(retry, name)
		}
	}
	d.mu.Unlock()

	for _, name := range retry {
		d.mu.Lock()
		state := d.states[name]
		delay := time.Duration(state.Config.RetryDelaySeconds) * time.Second
		hadError := state.LastError != ""
		d.mu.Unlock()

		if hadError && delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
		}
		d.connectServer(ctx, name)
	}
}

func (d *Discovery) reconnectLoop(ctx context.Context) {
	ticker := time.NewTicker(reconnectInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.ReconnectPass(ctx)
		}
	}
}

// HealthCheckPass pings every connected server, disconnecting on ping
// failure so the next ReconnectPass picks it back up, mirroring one cycle
// of _health_monitor_loop. Exported for the same cron-driven use as
// ReconnectPass.
func (d *Discovery) HealthCheckPass(ctx context.Context) {
	d.mu.Lock()
	names := make([]string, 0, len(d.clients))
	for name := range d.clients {
		names = append(names, name)
	}
	d.mu.Unlock()

	for _, name := range names {
		d.mu.Lock()
		client, ok := d.clients[name]
		d.mu.Unlock()
		if !ok || !client.IsConnected() {
			continue
		}

		if !client.Ping(ctx) {
			discoveryLog.Warn("MCP server failed health check, reconnecting", "server", name)
			d.mu.Lock()
			if state, ok := d.states[name]; ok {
				state.Status = StatusError
				state.LastError = "health check failed"
			}
			d.mu.Unlock()
			d.disconnectServer(name)
		}
	}
}

func (d *Discovery) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.HealthCheckPass(ctx)
		}
	}
}

// ServerStatus returns a snapshot of one configured server's state.
func (d *Discovery) ServerStatus(name string) (ServerState, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	state, ok := d.states[name]
	if !ok {
		return ServerState{}, false
	}
	return *state, true
}

// AllServerStatus returns a snapshot of every configured server's state.
func (d *Discovery) AllServerStatus() map[string]ServerState {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]ServerState, len(d.states))
	for name, state := range d.states {
		out[name] = *state
	}
	return out
}

// ConnectServer manually connects one named server, mirroring
// MCPServerDiscovery.connect_server.
func (d *Discovery) ConnectServer(ctx context.Context, name string) bool {
	d.mu.Lock()
	_, ok := d.states[name]
	d.mu.Unlock()
	if !ok {
		discoveryLog.Warn("unknown MCP server", "server", name)
		return false
	}
	return d.connectServer(ctx, name)
}

// DisconnectServer manually disconnects one named server, mirroring
// MCPServerDiscovery.disconnect_server.
func (d *Discovery) DisconnectServer(name string) bool {
	d.mu.Lock()
	_, ok := d.clients[name]
	d.mu.Unlock()
	if !ok {
		return true
	}
	d.disconnectServer(name)
	return true
}
