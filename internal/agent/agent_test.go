package agent

import (
	"context"
	"testing"

	"github.com/agentcore/qcode/internal/backend"
	"github.com/agentcore/qcode/internal/llmtypes"
	"github.com/agentcore/qcode/internal/stream"
	"github.com/agentcore/qcode/internal/tools"
	"github.com/stretchr/testify/require"
)

// scriptedDriver replays a fixed response, letting tests control exactly
// what the model "says" without any real network I/O.
type scriptedDriver struct {
	content string
}

func (d *scriptedDriver) Type() string                         { return "scripted" }
func (d *scriptedDriver) Initialize(ctx context.Context) error  { return nil }
func (d *scriptedDriver) Cleanup(ctx context.Context) error     { return nil }
func (d *scriptedDriver) HealthCheck(ctx context.Context) error { return nil }
func (d *scriptedDriver) ListModels(ctx context.Context) ([]string, error) {
	return []string{"scripted-model"}, nil
}
func (d *scriptedDriver) Info() llmtypes.BackendInfo {
	return llmtypes.BackendInfo{Name: "scripted", Type: "scripted", Status: llmtypes.StatusAvailable}
}
func (d *scriptedDriver) SwitchModel(ctx context.Context, modelID string) (bool, error) {
	return true, nil
}
func (d *scriptedDriver) Generate(ctx context.Context, req llmtypes.Request) (*stream.Stream[llmtypes.Response], error) {
	out, ch, _, _ := stream.NewProducer[llmtypes.Response](ctx)
	go func() {
		defer close(ch)
		ch <- llmtypes.Response{Content: d.content, Delta: d.content, FinishReason: "stop"}
	}()
	return out, nil
}

func newTestAgent(t *testing.T, content string) (*Agent, *tools.Registry) {
	t.Helper()
	m := backend.NewManagerForTesting(map[string]backend.Driver{"scripted": &scriptedDriver{content: content}}, []string{"scripted"})
	registry := tools.NewDefaultRegistry()
	registry.SetWorkingDirectory(t.TempDir())
	a := NewAgent("test-agent", m, registry, Config{})
	return a, registry
}

func drain(s *stream.Stream[Event]) []Event {
	var events []Event
	for {
		ev, ok := s.Recv()
		if !ok {
			return events
		}
		events = append(events, ev)
	}
}

func TestAgent_ProcessMessageSplitsThinkingFromVisible(t *testing.T) {
	a, _ := newTestAgent(t, "<think>weighing options</think>Here is the answer.")

	events := drain(a.ProcessMessage(context.Background(), "hello"))

	var thinking, visible string
	for _, ev := range events {
		switch ev.Type {
		case EventThinking:
			thinking += ev.Text
		case EventVisible:
			visible += ev.Text
		}
	}
	require.Contains(t, thinking, "weighing options")
	require.Contains(t, visible, "Here is the answer.")
}

func TestAgent_ProcessMessageExecutesExplicitFunctionCall(t *testing.T) {
	a, _ := newTestAgent(t, `I'll check the listing.

<function_call>LS(path=".")</function_call>`)

	events := drain(a.ProcessMessage(context.Background(), "list files"))

	var sawStart, sawResult bool
	for _, ev := range events {
		if ev.Type == EventToolStart && ev.ToolName == "LS" {
			sawStart = true
		}
		if ev.Type == EventToolResult && ev.ToolName == "LS" {
			sawResult = true
			require.True(t, ev.ToolResult.IsSuccess())
		}
	}
	require.True(t, sawStart)
	require.True(t, sawResult)
}

func TestAgent_ProcessMessageAppendsAndTrimsConversationHistory(t *testing.T) {
	a, _ := newTestAgent(t, "ack")

	for i := 0; i < 12; i++ {
		drain(a.ProcessMessage(context.Background(), "message"))
	}

	history := a.ConversationHistory()
	require.Len(t, history, conversationWindow)
}

func TestAgent_ClearContextResetsHistory(t *testing.T) {
	a, _ := newTestAgent(t, "ack")
	drain(a.ProcessMessage(context.Background(), "hi"))
	require.NotEmpty(t, a.ConversationHistory())

	a.ClearContext()
	require.Empty(t, a.ConversationHistory())
	require.Equal(t, "No actions taken yet.", a.GetActionSummary())
}

func TestAgent_CompactContextKeepsSystemAndRecentMessages(t *testing.T) {
	a, _ := newTestAgent(t, "ack")
	for i := 0; i < 8; i++ {
		drain(a.ProcessMessage(context.Background(), "message"))
	}

	msg := a.CompactContext()
	require.Contains(t, msg, "Compacted")
	require.LessOrEqual(t, len(a.ConversationHistory()), 12)
}

func TestParseParameters_JSONForm(t *testing.T) {
	params, err := parseParameters(`{"path": "/tmp", "recursive": true}`)
	require.NoError(t, err)
	require.Equal(t, "/tmp", params["path"])
	require.Equal(t, true, params["recursive"])
}

func TestParseParameters_KeyValueFormWithCoercion(t *testing.T) {
	params, err := parseParameters(`path=".", max_depth=2, show_hidden=true`)
	require.NoError(t, err)
	require.Equal(t, ".", params["path"])
	require.Equal(t, 2, params["max_depth"])
	require.Equal(t, true, params["show_hidden"])
}

func TestExtractToolCalls_BareNameFormRestrictedToKnownTools(t *testing.T) {
	a, _ := newTestAgent(t, "")
	calls := a.extractToolCalls(`Let's run LS(path=".") before anything else. NotATool(x=1) should be ignored.`)

	require.Len(t, calls, 1)
	require.Equal(t, "LS", calls[0].name)
}
