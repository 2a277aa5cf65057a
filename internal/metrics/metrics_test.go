package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_RegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.BackendHealth.WithLabelValues("ollama").Set(1)
	m.BackendRequestTotal.WithLabelValues("ollama", "completed").Inc()
	m.BackendRequestDuration.WithLabelValues("ollama", "completed").Observe(0.5)
	m.ToolExecutionTotal.WithLabelValues("Read", "completed").Inc()
	m.ToolExecutionDuration.WithLabelValues("Read").Observe(0.01)
	m.PermissionDecisionTotal.WithLabelValues("Bash", "high", "allow").Inc()
	m.MCPServersConnected.Set(2)

	if count := testutil.CollectAndCount(m.BackendRequestTotal); count != 1 {
		t.Errorf("expected 1 backend request series, got %d", count)
	}
	if v := testutil.ToFloat64(m.MCPServersConnected); v != 2 {
		t.Errorf("expected MCPServersConnected=2, got %v", v)
	}
	if v := testutil.ToFloat64(m.BackendHealth.WithLabelValues("ollama")); v != 1 {
		t.Errorf("expected backend health gauge=1, got %v", v)
	}
}
