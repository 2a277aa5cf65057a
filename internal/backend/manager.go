package backend

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agentcore/qcode/internal/apperrors"
	"github.com/agentcore/qcode/internal/config"
	"github.com/agentcore/qcode/internal/llmtypes"
	"github.com/agentcore/qcode/internal/logx"
	"github.com/agentcore/qcode/internal/metrics"
	"github.com/agentcore/qcode/internal/stream"
)

var managerLog = logx.For("backend.manager")

// healthCheckInterval matches the source's periodic_health_check cadence
// (backends/base.py: _health_check_interval = 30).
const healthCheckInterval = 30 * time.Second

// Manager discovers, health-checks, and routes across the configured
// Drivers, grounded on original_source backends/manager.py's BackendManager.
// It never holds its mutex across driver I/O: each method snapshots what it
// needs under lock, then calls out to drivers unlocked.
type Manager struct {
	mu      sync.RWMutex
	drivers map[string]Driver
	order   []string // preferred_backends, in configured order

	cancelHealthLoop context.CancelFunc
	metrics          *metrics.Metrics
}

// SetMetrics attaches a Prometheus collector set; health checks and
// Generate calls report into it from that point on. Safe to call once,
// before Start.
func (m *Manager) SetMetrics(ms *metrics.Metrics) {
	m.metrics = ms
}

// NewManager constructs drivers for every backend named in cfg's discovery
// set. Discovery itself (Initialize) happens in Start.
func NewManager(cfg *config.Config) *Manager {
	m := &Manager{drivers: make(map[string]Driver), order: append([]string(nil), cfg.PreferredBackends...)}

	m.drivers["ollama"] = NewOllamaDriver(cfg.Ollama)
	m.drivers["lm_studio"] = NewLMStudioDriver(cfg.LMStudio)
	m.drivers["vllm"] = NewVLLMDriver(cfg.VLLM)
	if cfg.OpenRouter.APIKey != "" {
		m.drivers["openrouter"] = NewOpenRouterDriver(cfg.OpenRouter)
	}
	return m
}

// Start initializes every configured driver (failures are logged, not
// fatal, since the Manager should degrade gracefully to whatever backends
// are reachable) and launches the periodic health-check loop.
func (m *Manager) Start(ctx context.Context) {
	m.mu.RLock()
	names := make([]string, 0, len(m.drivers))
	for name := range m.drivers {
		names = append(names, name)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			m.mu.RLock()
			d := m.drivers[name]
			m.mu.RUnlock()
			if err := d.Initialize(ctx); err != nil {
				managerLog.Warn("backend failed to initialize", "backend", name, "error", err)
			}
		}(name)
	}
	wg.Wait()

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancelHealthLoop = cancel
	go m.healthLoop(loopCtx)
}

// Stop cancels the health loop and cleans up every driver.
func (m *Manager) Stop(ctx context.Context) {
	if m.cancelHealthLoop != nil {
		m.cancelHealthLoop()
	}
	m.mu.RLock()
	drivers := make([]Driver, 0, len(m.drivers))
	for _, d := range m.drivers {
		drivers = append(drivers, d)
	}
	m.mu.RUnlock()

	for _, d := range drivers {
		if err := d.Cleanup(ctx); err != nil {
			managerLog.Warn("error cleaning up backend", "error", err)
		}
	}
}

func (m *Manager) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.RLock()
			drivers := make([]Driver, 0, len(m.drivers))
			for _, d := range m.drivers {
				drivers = append(drivers, d)
			}
			m.mu.RUnlock()

			for _, d := range drivers {
				if err := d.HealthCheck(ctx); err != nil {
					managerLog.Debug("periodic health check failed", "backend", d.Type(), "error", err)
				}
				if m.metrics != nil {
					healthy := 0.0
					if d.Info().Healthy() {
						healthy = 1.0
					}
					m.metrics.BackendHealth.WithLabelValues(d.Type()).Set(healthy)
				}
			}
		}
	}
}

// NewManagerForTesting builds a Manager directly from pre-constructed
// drivers, bypassing config-based discovery, for use by other packages'
// tests that need to exercise routing without a real backend.
func NewManagerForTesting(drivers map[string]Driver, order []string) *Manager {
	return &Manager{drivers: drivers, order: order}
}

// Get returns the named driver, if configured.
func (m *Manager) Get(name string) (Driver, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drivers[name]
	return d, ok
}

// HealthyBackends returns every driver currently reporting healthy, in a
// stable order (configured preference order first, then any remainder
// alphabetically), matching get_available_backends.
func (m *Manager) HealthyBackends() []Driver {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	var result []Driver
	for _, name := range m.order {
		if d, ok := m.drivers[name]; ok && d.Info().Healthy() {
			result = append(result, d)
			seen[name] = true
		}
	}
	var rest []string
	for name := range m.drivers {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		if d := m.drivers[name]; d.Info().Healthy() {
			result = append(result, d)
		}
	}
	return result
}

// PreferredBackend returns the highest-priority healthy driver: caller
// preference (handled in Generate) then configured preference order then
// any remaining healthy backend.
func (m *Manager) PreferredBackend() Driver {
	healthy := m.HealthyBackends()
	if len(healthy) == 0 {
		return nil
	}
	return healthy[0]
}

// Generate routes req to preferredBackend if given and healthy, else to the
// configured preference order, and on failure retries remaining healthy
// backends in order when fallback is true (source: BackendManager.generate).
func (m *Manager) Generate(ctx context.Context, req llmtypes.Request, preferredBackend string, fallback bool) (*stream.Stream[llmtypes.Response], error) {
	var primary Driver
	if preferredBackend != "" {
		if d, ok := m.Get(preferredBackend); ok && d.Info().Healthy() {
			primary = d
		} else if !fallback {
			return nil, apperrors.New(apperrors.KindBackend, apperrors.SubUnavailable,
				fmt.Sprintf("preferred backend %q is not available", preferredBackend))
		}
	}
	if primary == nil {
		primary = m.PreferredBackend()
	}
	if primary == nil {
		return nil, apperrors.New(apperrors.KindBackend, apperrors.SubUnavailable, "no healthy backends are available")
	}

	managerLog.Info("routing request to backend", "backend", primary.Type(), "model", req.Model, "messages", len(req.Messages))

	start := time.Now()
	out, err := primary.Generate(ctx, req)
	if err == nil {
		m.observeGenerate(primary.Type(), "completed", start)
		return out, nil
	}
	m.observeGenerate(primary.Type(), "error", start)
	managerLog.Warn("request failed on backend", "backend", primary.Type(), "error", err)
	if !fallback {
		return nil, err
	}

	tried := []string{primary.Type()}
	for _, d := range m.HealthyBackends() {
		if d == primary {
			continue
		}
		managerLog.Info("trying fallback backend", "backend", d.Type())
		fstart := time.Now()
		out, ferr := d.Generate(ctx, req)
		if ferr == nil {
			m.observeGenerate(d.Type(), "failover", fstart)
			return out, nil
		}
		m.observeGenerate(d.Type(), "error", fstart)
		managerLog.Warn("fallback failed", "backend", d.Type(), "error", ferr)
		tried = append(tried, d.Type())
	}

	return nil, apperrors.Wrap(apperrors.KindBackend, apperrors.SubUnavailable,
		fmt.Sprintf("all backends failed: %s", strings.Join(tried, ", ")), err)
}

func (m *Manager) observeGenerate(backendName, status string, start time.Time) {
	if m.metrics == nil {
		return
	}
	m.metrics.BackendRequestTotal.WithLabelValues(backendName, status).Inc()
	m.metrics.BackendRequestDuration.WithLabelValues(backendName, status).Observe(time.Since(start).Seconds())
}

// modelEntry pairs a backend name with one of its models, the shape used by
// get_all_models / find_model_across_backends / get_recommended_models.
type modelEntry struct {
	Backend string `json:"backend"`
	Model   string `json:"model"`
}

// AllModels returns every backend's model list keyed by backend name,
// matching get_all_models.
func (m *Manager) AllModels(ctx context.Context) map[string][]string {
	m.mu.RLock()
	drivers := make(map[string]Driver, len(m.drivers))
	for k, v := range m.drivers {
		drivers[k] = v
	}
	m.mu.RUnlock()

	result := make(map[string][]string, len(drivers))
	for name, d := range drivers {
		models, err := d.ListModels(ctx)
		if err != nil {
			managerLog.Debug("failed to list models", "backend", name, "error", err)
			continue
		}
		result[name] = models
	}
	return result
}

// SwitchModel delegates to the named driver's SwitchModel.
func (m *Manager) SwitchModel(ctx context.Context, backendName, modelID string) (bool, error) {
	d, ok := m.Get(backendName)
	if !ok {
		return false, apperrors.New(apperrors.KindBackend, apperrors.SubNotFound, fmt.Sprintf("unknown backend %q", backendName))
	}
	return d.SwitchModel(ctx, modelID)
}

// FindModelAcrossBackends returns every (backend, model) pair whose model
// id contains pattern, case-insensitively.
func (m *Manager) FindModelAcrossBackends(ctx context.Context, pattern string) []modelEntry {
	pattern = strings.ToLower(pattern)
	var matches []modelEntry
	for backend, models := range m.AllModels(ctx) {
		for _, model := range models {
			if strings.Contains(strings.ToLower(model), pattern) {
				matches = append(matches, modelEntry{Backend: backend, Model: model})
			}
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Backend != matches[j].Backend {
			return matches[i].Backend < matches[j].Backend
		}
		return matches[i].Model < matches[j].Model
	})
	return matches
}

// recommendedPatterns mirrors manager.py's coding-oriented model shortlist.
var recommendedPatterns = []string{"qwen", "coder", "codellama", "deepseek-coder", "starcoder"}

// RecommendedModels returns every discovered model matching a known
// coding-oriented pattern, deduplicated, matching get_recommended_models.
func (m *Manager) RecommendedModels(ctx context.Context) []modelEntry {
	seen := make(map[modelEntry]bool)
	var result []modelEntry
	for _, pattern := range recommendedPatterns {
		for _, entry := range m.FindModelAcrossBackends(ctx, pattern) {
			if !seen[entry] {
				seen[entry] = true
				result = append(result, entry)
			}
		}
	}
	return result
}

// StatusSummary reports every driver's current BackendInfo, keyed by name.
func (m *Manager) StatusSummary() map[string]llmtypes.BackendInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]llmtypes.BackendInfo, len(m.drivers))
	for name, d := range m.drivers {
		out[name] = d.Info()
	}
	return out
}
