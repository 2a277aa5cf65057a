package permission

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/agentcore/qcode/internal/llmtypes"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prefs.json")
	c, err := NewCoordinator(t.TempDir(), path, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCoordinator_YOLOModeBypassesEverything(t *testing.T) {
	c := newTestCoordinator(t)
	c.EnableYOLO()

	allowed, _, err := c.Check(context.Background(), "Bash", map[string]any{"command": "rm -rf /"})
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestCoordinator_SafeOperationsAutoAllowWithoutPrompter(t *testing.T) {
	c := newTestCoordinator(t)
	allowed, _, err := c.Check(context.Background(), "Grep", map[string]any{"pattern": "x"})
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestCoordinator_BlockedOperationDeniedWithoutPrompting(t *testing.T) {
	c := newTestCoordinator(t)
	allowed, reason, err := c.Check(context.Background(), "Bash", map[string]any{"command": "rm -rf /"})
	require.NoError(t, err)
	require.False(t, allowed)
	require.Contains(t, reason, "blocked")
}

func TestCoordinator_PromptWithoutPrompterDeniesByDefault(t *testing.T) {
	c := newTestCoordinator(t)
	allowed, _, err := c.Check(context.Background(), "Bash", map[string]any{"command": "sudo reboot"})
	require.NoError(t, err)
	require.False(t, allowed)
}

type fakePrompter struct {
	allowed  bool
	remember bool
}

func (f *fakePrompter) Prompt(ctx context.Context, toolName string, args map[string]any, assessment llmtypes.RiskAssessment) (bool, bool, error) {
	return f.allowed, f.remember, nil
}

func TestCoordinator_RememberedDecisionIsReusedWithoutPrompting(t *testing.T) {
	c := newTestCoordinator(t)
	fp := &fakePrompter{allowed: true, remember: true}
	c.SetPrompter(fp)

	allowed, _, err := c.Check(context.Background(), "Bash", map[string]any{"command": "sudo reboot"})
	require.NoError(t, err)
	require.True(t, allowed)

	c.SetPrompter(nil)
	allowed, _, err = c.Check(context.Background(), "Bash", map[string]any{"command": "sudo reboot"})
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestCoordinator_ConcurrentIdenticalRequestsDeduplicate(t *testing.T) {
	c := newTestCoordinator(t)
	fp := &fakePrompter{allowed: true, remember: false}
	c.SetPrompter(fp)

	var wg sync.WaitGroup
	results := make([]bool, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			allowed, _, _ := c.Check(context.Background(), "Bash", map[string]any{"command": "sudo reboot"})
			results[i] = allowed
		}(i)
	}
	wg.Wait()
	for _, r := range results {
		require.True(t, r)
	}
}

func TestCoordinator_AuditSummaryRecordsDecisions(t *testing.T) {
	c := newTestCoordinator(t)
	_, _, _ = c.Check(context.Background(), "Grep", map[string]any{"pattern": "x"})
	summary := c.AuditSummary(5)
	require.Contains(t, summary, "Grep")
}
