// Package metrics exposes the agent core's operational counters as
// Prometheus collectors: backend health/routing, tool execution outcomes,
// and permission decisions. Grounded on
// haasonsaas-nexus/internal/observability/metrics.go's CounterVec/
// HistogramVec/GaugeVec grouping, scoped down to this repo's own
// components rather than that repo's channel/webhook/database surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every collector the agent core publishes. A process
// constructs exactly one and threads it through the Manager, Registry,
// and Coordinator via their SetMetrics methods.
type Metrics struct {
	// BackendHealth is 1 when a backend is routable, 0 otherwise.
	// Labels: backend (ollama|lm_studio|vllm|openrouter).
	BackendHealth *prometheus.GaugeVec

	// BackendRequestDuration measures one Generate call's wall time.
	// Labels: backend, status (completed|error|failover).
	BackendRequestDuration *prometheus.HistogramVec

	// BackendRequestTotal counts Generate calls.
	// Labels: backend, status.
	BackendRequestTotal *prometheus.CounterVec

	// ToolExecutionDuration measures one tool call's wall time.
	// Labels: tool.
	ToolExecutionDuration *prometheus.HistogramVec

	// ToolExecutionTotal counts tool calls by outcome.
	// Labels: tool, status (completed|error|cancelled).
	ToolExecutionTotal *prometheus.CounterVec

	// PermissionDecisionTotal counts permission outcomes.
	// Labels: tool, risk_level, decision (allow|deny).
	PermissionDecisionTotal *prometheus.CounterVec

	// MCPServersConnected is the current count of connected MCP servers.
	MCPServersConnected prometheus.Gauge
}

// New registers a fresh Metrics set against reg. Pass
// prometheus.DefaultRegisterer to publish on the default /metrics handler.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BackendHealth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "agentcore_backend_health",
			Help: "1 if the backend is currently routable, 0 otherwise.",
		}, []string{"backend"}),
		BackendRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentcore_backend_request_duration_seconds",
			Help:    "Duration of one backend Generate call.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"backend", "status"}),
		BackendRequestTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentcore_backend_requests_total",
			Help: "Count of backend Generate calls by outcome.",
		}, []string{"backend", "status"}),
		ToolExecutionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentcore_tool_execution_duration_seconds",
			Help:    "Duration of one tool execution.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120, 600},
		}, []string{"tool"}),
		ToolExecutionTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentcore_tool_executions_total",
			Help: "Count of tool executions by outcome.",
		}, []string{"tool", "status"}),
		PermissionDecisionTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentcore_permission_decisions_total",
			Help: "Count of permission engine decisions.",
		}, []string{"tool", "risk_level", "decision"}),
		MCPServersConnected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "agentcore_mcp_servers_connected",
			Help: "Current number of connected MCP servers.",
		}),
	}
}
