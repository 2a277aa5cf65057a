package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/agentcore/qcode/internal/llmtypes"
	"github.com/agentcore/qcode/internal/stream"
	"github.com/stretchr/testify/require"
)

// fakeDriver is a minimal in-memory Driver for exercising Manager routing
// and failover logic without real network I/O.
type fakeDriver struct {
	name      string
	healthy   bool
	failGen   bool
	generated int
}

func (f *fakeDriver) Type() string                            { return f.name }
func (f *fakeDriver) Initialize(ctx context.Context) error     { return nil }
func (f *fakeDriver) Cleanup(ctx context.Context) error        { return nil }
func (f *fakeDriver) HealthCheck(ctx context.Context) error    { return nil }
func (f *fakeDriver) ListModels(ctx context.Context) ([]string, error) {
	return []string{f.name + "-model"}, nil
}
func (f *fakeDriver) Info() llmtypes.BackendInfo {
	status := llmtypes.StatusUnavailable
	if f.healthy {
		status = llmtypes.StatusAvailable
	}
	return llmtypes.BackendInfo{Name: f.name, Type: f.name, Status: status}
}
func (f *fakeDriver) SwitchModel(ctx context.Context, modelID string) (bool, error) {
	return true, nil
}
func (f *fakeDriver) Generate(ctx context.Context, req llmtypes.Request) (*stream.Stream[llmtypes.Response], error) {
	f.generated++
	if f.failGen {
		return nil, errors.New("boom")
	}
	out, ch, _, _ := stream.NewProducer[llmtypes.Response](ctx)
	go func() {
		defer close(ch)
		ch <- llmtypes.Response{Content: f.name + "-ok", FinishReason: "stop"}
	}()
	return out, nil
}

func newTestManager(drivers ...*fakeDriver) *Manager {
	m := &Manager{drivers: make(map[string]Driver)}
	for _, d := range drivers {
		m.drivers[d.name] = d
		m.order = append(m.order, d.name)
	}
	return m
}

func TestManager_RoutesToFirstHealthyInPreferenceOrder(t *testing.T) {
	a := &fakeDriver{name: "a", healthy: false}
	b := &fakeDriver{name: "b", healthy: true}
	m := newTestManager(a, b)

	out, err := m.Generate(context.Background(), llmtypes.Request{}, "", true)
	require.NoError(t, err)
	r, ok := out.Recv()
	require.True(t, ok)
	require.Equal(t, "b-ok", r.Content)
}

func TestManager_FailsOverToNextHealthyBackend(t *testing.T) {
	a := &fakeDriver{name: "a", healthy: true, failGen: true}
	b := &fakeDriver{name: "b", healthy: true}
	m := newTestManager(a, b)

	out, err := m.Generate(context.Background(), llmtypes.Request{}, "", true)
	require.NoError(t, err)
	r, ok := out.Recv()
	require.True(t, ok)
	require.Equal(t, "b-ok", r.Content)
	require.Equal(t, 1, a.generated)
}

func TestManager_NoFallbackReturnsErrorImmediately(t *testing.T) {
	a := &fakeDriver{name: "a", healthy: true, failGen: true}
	b := &fakeDriver{name: "b", healthy: true}
	m := newTestManager(a, b)

	_, err := m.Generate(context.Background(), llmtypes.Request{}, "a", false)
	require.Error(t, err)
	require.Equal(t, 0, b.generated)
}

func TestManager_NoHealthyBackendsReturnsError(t *testing.T) {
	a := &fakeDriver{name: "a", healthy: false}
	m := newTestManager(a)

	_, err := m.Generate(context.Background(), llmtypes.Request{}, "", true)
	require.Error(t, err)
}

func TestManager_RecommendedModelsMatchesPatterns(t *testing.T) {
	a := &fakeDriver{name: "qwen", healthy: true}
	m := newTestManager(a)

	models := m.RecommendedModels(context.Background())
	require.Len(t, models, 1)
	require.Equal(t, "qwen-model", models[0].Model)
}
