// Package agent implements the ReAct reasoning loop (spec.md §4.5): it
// assembles prompts, drives the backend Manager for streaming generation,
// splits internal reasoning from visible output via the thinking filter,
// extracts tool calls from the model's response, executes them through the
// tool Registry, and folds the turn back into conversation history.
//
// Grounded on original_source/src/qwen_tui/agents/react.py's ReActAgent and
// agents/base.py's BaseAgent, collapsed into one type since this repo has
// no separate base/specialization split.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/agentcore/qcode/internal/backend"
	"github.com/agentcore/qcode/internal/llmtypes"
	"github.com/agentcore/qcode/internal/logx"
	"github.com/agentcore/qcode/internal/stream"
	"github.com/agentcore/qcode/internal/thinking"
	"github.com/agentcore/qcode/internal/tools"
)

var agentLog = logx.For("agent")

// Mode is the agent's current operating mode.
type Mode string

const (
	ModeInteractive Mode = "interactive"
	ModeAutonomous  Mode = "autonomous"
	ModePlanning    Mode = "planning"
	ModeExecution   Mode = "execution"
)

// Phase is where the agent currently sits in its reasoning cycle.
type Phase string

const (
	PhaseAnalysis      Phase = "analysis"
	PhasePlanning      Phase = "planning"
	PhaseToolSelection Phase = "tool_selection"
	PhaseExecution     Phase = "execution"
	PhaseSynthesis     Phase = "synthesis"
	PhaseReflection    Phase = "reflection"
)

// ActionType classifies one entry in the action history.
type ActionType string

const (
	ActionThink   ActionType = "think"
	ActionToolUse ActionType = "tool_use"
	ActionRespond ActionType = "respond"
	ActionPlan    ActionType = "plan"
	ActionObserve ActionType = "observe"
)

// Action is one recorded step the agent took, mirroring AgentAction.
type Action struct {
	Type       ActionType
	Content    string
	ToolName   string
	ToolParams map[string]any
	At         time.Time
}

// State is the agent's current mode/phase/working-context snapshot.
type State struct {
	Mode             Mode
	Phase            Phase
	Context          map[string]any
	WorkingDirectory string
	SessionID        string
}

// conversationWindow bounds conversation_history growth (spec.md §4.5 step
// 5: "trim to the newest 20 entries").
const conversationWindow = 20

// promptWindow is how many trailing conversation messages are folded into
// each turn's prompt (spec.md §4.5 step 1: "the trailing k messages...
// k = 10").
const promptWindow = 10

// recentActionWindow is how many action-history entries are surfaced in the
// prompt's context block.
const recentActionWindow = 5

// Config configures one Agent.
type Config struct {
	SystemPrompt     string
	Model            string
	PreferredBackend string
	Fallback         bool
	WorkingDirectory string
}

// Agent drives one conversation's Plan-Act-Observe loop over a backend
// Manager and a tool Registry.
type Agent struct {
	id       string
	backends *backend.Manager
	registry *tools.Registry
	cfg      Config

	mu                  sync.Mutex
	state               State
	conversationHistory []llmtypes.Message
	actionHistory       []Action
	currentPlan         []string
	contextSnapshot     map[string]any
}

// NewAgent wires a Manager and Registry into a fresh Agent, rooted at
// cfg.WorkingDirectory.
func NewAgent(id string, backends *backend.Manager, registry *tools.Registry, cfg Config) *Agent {
	if id == "" {
		id = fmt.Sprintf("agent_%d", time.Now().UnixNano())
	}
	a := &Agent{
		id:       id,
		backends: backends,
		registry: registry,
		cfg:      cfg,
		state: State{
			Mode:             ModeInteractive,
			Phase:            PhaseAnalysis,
			Context:          make(map[string]any),
			WorkingDirectory: cfg.WorkingDirectory,
		},
	}
	if cfg.WorkingDirectory != "" {
		registry.SetWorkingDirectory(cfg.WorkingDirectory)
	}
	return a
}

// SetWorkingDirectory updates both the agent's own state and every
// registered tool's working directory, mirroring BaseAgent.set_working_directory.
func (a *Agent) SetWorkingDirectory(path string) {
	a.mu.Lock()
	a.state.WorkingDirectory = path
	a.mu.Unlock()
	a.registry.SetWorkingDirectory(path)
	agentLog.Info("working directory set", "agent", a.id, "path", path)
}

// AddContext attaches a piece of ambient context the system prompt reports
// back to the model, mirroring BaseAgent.add_context.
func (a *Agent) AddContext(key string, value any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state.Context[key] = value
}

// EventType classifies one Event emitted from ProcessMessage's stream.
type EventType string

const (
	EventThinking   EventType = "thinking"
	EventVisible    EventType = "visible"
	EventToolStart  EventType = "tool_start"
	EventToolResult EventType = "tool_result"
	EventDone       EventType = "done"
)

// Event is one unit of progress emitted while processing a turn.
type Event struct {
	Type       EventType
	Text       string
	ToolName   string
	ToolResult *llmtypes.ToolResult
}

// ProcessMessage runs one full Plan-Act-Observe turn for message and
// streams its progress. The returned Stream must be drained or Closed by
// the caller; cancelling ctx (or closing the Stream early) propagates to
// the in-flight backend request and any running tool, so a UI's ESC
// keypress can interrupt a turn simply by cancelling its context.
func (a *Agent) ProcessMessage(ctx context.Context, message string) *stream.Stream[Event] {
	s, ch, pctx, errp := stream.NewProducer[Event](ctx)
	go a.runTurn(pctx, message, ch, errp)
	return s
}

func (a *Agent) runTurn(ctx context.Context, message string, ch chan<- Event, errp *error) {
	defer close(ch)

	a.mu.Lock()
	wd := a.state.WorkingDirectory
	convLen := len(a.conversationHistory)
	a.mu.Unlock()

	snapshot := a.buildContextSnapshot(ctx, wd, convLen)

	a.mu.Lock()
	a.contextSnapshot = snapshot
	a.appendAction(Action{Type: ActionRespond, Content: "Processing user message: " + truncate(message, 100)})
	messages := a.buildPrompt(message)
	a.mu.Unlock()

	req := llmtypes.Request{Messages: messages, Stream: true, Model: a.cfg.Model}
	out, err := a.backends.Generate(ctx, req, a.cfg.PreferredBackend, a.cfg.Fallback)
	if err != nil {
		*errp = err
		return
	}
	defer out.Close()

	var full strings.Builder
	var thinkState thinking.StreamState

	for {
		resp, ok := out.Recv()
		if !ok {
			break
		}
		delta := resp.Delta
		if delta == "" {
			delta = resp.Content
		}
		full.WriteString(delta)

		visible, thought := thinkState.Feed(delta)
		if thought != "" {
			a.mu.Lock()
			a.appendAction(Action{Type: ActionThink, Content: thought})
			a.mu.Unlock()
			if !stream.Send(ctx, ch, Event{Type: EventThinking, Text: thought}) {
				return
			}
		}
		if visible != "" {
			if !stream.Send(ctx, ch, Event{Type: EventVisible, Text: visible}) {
				return
			}
		}
	}
	if rest := thinkState.Flush(); rest != "" {
		if !stream.Send(ctx, ch, Event{Type: EventVisible, Text: rest}) {
			return
		}
	}
	if err := out.Err(); err != nil {
		*errp = err
		return
	}

	visibleFull, _ := thinking.Filter(full.String())

	calls := a.extractToolCalls(visibleFull)
	for _, call := range calls {
		a.mu.Lock()
		a.appendAction(Action{
			Type: ActionToolUse, ToolName: call.name, ToolParams: call.args,
			Content: fmt.Sprintf("%s with params: %v", call.name, call.args),
		})
		a.mu.Unlock()

		if !stream.Send(ctx, ch, Event{Type: EventToolStart, ToolName: call.name}) {
			return
		}

		result := a.registry.ExecuteTool(ctx, call.name, call.args)

		observation := fmt.Sprintf("Tool %s succeeded: %s", call.name, truncate(fmt.Sprintf("%v", result.Result), 200))
		if !result.IsSuccess() {
			observation = fmt.Sprintf("Tool %s failed: %s", call.name, result.Error)
		}
		a.mu.Lock()
		a.appendAction(Action{Type: ActionObserve, Content: observation})
		a.mu.Unlock()

		r := result
		if !stream.Send(ctx, ch, Event{Type: EventToolResult, ToolName: call.name, ToolResult: &r}) {
			return
		}
	}

	now := time.Now()
	a.mu.Lock()
	a.conversationHistory = append(a.conversationHistory,
		llmtypes.Message{Role: llmtypes.RoleUser, Content: message, Timestamp: now},
		llmtypes.Message{Role: llmtypes.RoleAssistant, Content: visibleFull, Timestamp: now},
	)
	if len(a.conversationHistory) > conversationWindow {
		a.conversationHistory = a.conversationHistory[len(a.conversationHistory)-conversationWindow:]
	}
	a.mu.Unlock()

	stream.Send(ctx, ch, Event{Type: EventDone})
}

// buildContextSnapshot captures the working directory and a shallow
// directory listing, mirroring _create_context_snapshot. It runs outside
// any lock since LS may touch the filesystem.
func (a *Agent) buildContextSnapshot(ctx context.Context, wd string, conversationLen int) map[string]any {
	snapshot := map[string]any{
		"timestamp":           time.Now(),
		"working_directory":   wd,
		"conversation_length": conversationLen,
	}
	if wd == "" {
		return snapshot
	}
	result := a.registry.ExecuteTool(ctx, "LS", map[string]any{
		"path": wd, "recursive": true, "max_depth": 2,
	})
	if result.IsSuccess() {
		snapshot["directory_structure"] = result.Result
	} else {
		agentLog.Warn("failed to capture directory structure", "error", result.Error)
	}
	return snapshot
}

// formatContextForPrompt renders working directory, directory snapshot,
// agent state, and recent actions as <context> blocks, mirroring
// _format_context_for_prompt. Caller must hold a.mu.
func (a *Agent) formatContextForPrompt() string {
	var parts []string

	if a.state.WorkingDirectory != "" {
		parts = append(parts, fmt.Sprintf("<context name=\"workingDirectory\">\n%s\n</context>", a.state.WorkingDirectory))
	}
	if ds, ok := a.contextSnapshot["directory_structure"]; ok {
		parts = append(parts, fmt.Sprintf("<context name=\"directoryStructure\">\n%v\n</context>", ds))
	}
	parts = append(parts, fmt.Sprintf("<context name=\"agentState\">\nMode: %s\nPhase: %s\n</context>", a.state.Mode, a.state.Phase))

	if len(a.actionHistory) > 0 {
		start := len(a.actionHistory) - recentActionWindow
		if start < 0 {
			start = 0
		}
		var lines []string
		for _, action := range a.actionHistory[start:] {
			lines = append(lines, fmt.Sprintf("- %s: %s", action.Type, truncate(action.Content, 100)))
		}
		parts = append(parts, fmt.Sprintf("<context name=\"recentActions\">\n%s\n</context>", strings.Join(lines, "\n")))
	}

	return strings.Join(parts, "\n\n")
}

// formatToolSchemas renders every registered tool's schema as a
// human-readable block the model can read as part of its prompt, mirroring
// _format_tool_schemas.
func (a *Agent) formatToolSchemas() string {
	var b strings.Builder
	b.WriteString("# Available Tools\n\n")
	for _, name := range a.registry.List() {
		t, ok := a.registry.Get(name)
		if !ok {
			continue
		}
		schema := t.Schema()
		b.WriteString(fmt.Sprintf("## %s\n%s\n\n", name, schema.Description))

		if len(schema.Properties) > 0 {
			required := make(map[string]bool, len(schema.Required))
			for _, r := range schema.Required {
				required[r] = true
			}
			b.WriteString("Parameters:\n")
			for param, info := range schema.Properties {
				marker := ""
				if required[param] {
					marker = " (required)"
				}
				desc := "No description"
				if m, ok := info.(map[string]any); ok {
					if d, ok := m["description"].(string); ok && d != "" {
						desc = d
					}
				}
				b.WriteString(fmt.Sprintf("- %s%s: %s\n", param, marker, desc))
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// systemPrompt returns the configured system prompt, or defaultSystemPrompt
// if none was configured, with working-directory and ambient-context
// sections appended, mirroring get_system_prompt. Caller must hold a.mu.
func (a *Agent) systemPrompt() string {
	prompt := a.cfg.SystemPrompt
	if prompt == "" {
		prompt = defaultSystemPrompt
	}
	if a.state.WorkingDirectory != "" {
		prompt += "\n\n# Working Directory\nYou are currently working in: " + a.state.WorkingDirectory
	}
	if len(a.state.Context) > 0 {
		prompt += "\n\n# Current Context\n"
		for k, v := range a.state.Context {
			prompt += fmt.Sprintf("- %s: %v\n", k, v)
		}
	}
	return prompt
}

// buildPrompt assembles the full message list for one turn (spec.md §4.5
// step 1). Caller must hold a.mu.
func (a *Agent) buildPrompt(message string) []llmtypes.Message {
	messages := []llmtypes.Message{
		{Role: llmtypes.RoleSystem, Content: a.systemPrompt()},
		{Role: llmtypes.RoleSystem, Content: a.formatContextForPrompt()},
		{Role: llmtypes.RoleSystem, Content: a.formatToolSchemas()},
	}

	start := len(a.conversationHistory) - promptWindow
	if start < 0 {
		start = 0
	}
	messages = append(messages, a.conversationHistory[start:]...)
	messages = append(messages, llmtypes.Message{Role: llmtypes.RoleUser, Content: message, Timestamp: time.Now()})
	return messages
}

// appendAction records one Action. Caller must hold a.mu.
func (a *Agent) appendAction(action Action) {
	if action.At.IsZero() {
		action.At = time.Now()
	}
	a.actionHistory = append(a.actionHistory, action)
}

// toolCallCandidate is one tool invocation recognized in the model's
// output, prior to execution.
type toolCallCandidate struct {
	name string
	args map[string]any
}

var functionCallPattern = regexp.MustCompile(`(?s)<function_call>\s*(\w+)\((.*?)\)\s*</function_call>`)

// extractToolCalls recognizes tool calls via two patterns tried in order:
// the explicit <function_call> form, then a bare Name(args) form
// restricted to known tool names, mirroring _extract_tool_calls.
func (a *Agent) extractToolCalls(content string) []toolCallCandidate {
	var calls []toolCallCandidate

	for _, m := range functionCallPattern.FindAllStringSubmatch(content, -1) {
		params, err := parseParameters(m[2])
		if err != nil {
			agentLog.Warn("failed to parse function call", "error", err)
			continue
		}
		calls = append(calls, toolCallCandidate{name: m[1], args: params})
	}
	if len(calls) > 0 {
		return calls
	}

	for _, name := range a.registry.List() {
		pattern := regexp.MustCompile(`(?s)\b` + regexp.QuoteMeta(name) + `\s*\(\s*(.*?)\s*\)`)
		for _, m := range pattern.FindAllStringSubmatch(content, -1) {
			params, err := parseParameters(m[1])
			if err != nil {
				agentLog.Warn("failed to parse tool call", "tool", name, "error", err)
				continue
			}
			calls = append(calls, toolCallCandidate{name: name, args: params})
		}
	}

	return calls
}

// parseParameters parses a tool call's argument string: JSON when it
// starts with '{', else comma-separated key=value pairs with bool/int/
// float coercion, mirroring _parse_parameters.
func parseParameters(paramsStr string) (map[string]any, error) {
	paramsStr = strings.TrimSpace(paramsStr)
	if paramsStr == "" {
		return map[string]any{}, nil
	}

	if strings.HasPrefix(paramsStr, "{") {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(paramsStr), &parsed); err == nil {
			return parsed, nil
		}
	}

	out := make(map[string]any)
	for _, part := range strings.Split(paramsStr, ",") {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		key = strings.Trim(strings.TrimSpace(key), `"'`)
		out[key] = coerceValue(strings.Trim(strings.TrimSpace(value), `"'`))
	}
	return out, nil
}

func coerceValue(v string) any {
	switch strings.ToLower(v) {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// ExecuteAutonomousTask wraps task in a Plan-Act-Observe preamble and runs
// it through the same turn algorithm, draining the stream into a single
// string, mirroring execute_autonomous_task.
func (a *Agent) ExecuteAutonomousTask(ctx context.Context, task string) (string, error) {
	a.mu.Lock()
	a.state.Mode = ModeAutonomous
	a.state.Phase = PhaseAnalysis
	a.mu.Unlock()

	prompt := fmt.Sprintf(`I need to complete this task autonomously: %s

Follow the Plan-Act-Observe methodology:

1. Analyze the task requirements thoroughly
2. Plan a comprehensive approach
3. Execute the plan using available tools
4. Observe results and adapt as needed
5. Summarize what was accomplished

Use your thinking process to work through this systematically.`, task)

	s := a.ProcessMessage(ctx, prompt)
	var full strings.Builder
	for {
		ev, ok := s.Recv()
		if !ok {
			break
		}
		if ev.Type == EventVisible {
			full.WriteString(ev.Text)
		}
	}
	return full.String(), s.Err()
}

// GetActionSummary renders the last 10 recorded actions as markdown,
// mirroring get_action_summary.
func (a *Agent) GetActionSummary() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.actionHistory) == 0 {
		return "No actions taken yet."
	}
	start := len(a.actionHistory) - 10
	if start < 0 {
		start = 0
	}
	var b strings.Builder
	b.WriteString("## Recent Actions\n\n")
	for _, action := range a.actionHistory[start:] {
		b.WriteString(fmt.Sprintf("- **%s** [%s]: %s\n", action.At.Format("15:04:05"), action.Type, truncate(action.Content, 100)))
	}
	return b.String()
}

// ClearContext drops conversation and action history, mirroring
// clear_context (the /clear command).
func (a *Agent) ClearContext() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.conversationHistory = nil
	a.actionHistory = nil
	a.currentPlan = nil
	a.contextSnapshot = nil
	agentLog.Info("cleared context", "agent", a.id)
}

// CompactContext keeps every system message plus the last 6 exchanges
// (12 messages), mirroring compact_context (the /compact command).
func (a *Agent) CompactContext() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.conversationHistory) <= 10 {
		return "Context is already compact."
	}

	var systemMessages []llmtypes.Message
	for _, m := range a.conversationHistory {
		if m.Role == llmtypes.RoleSystem {
			systemMessages = append(systemMessages, m)
		}
	}
	recent := a.conversationHistory
	if len(recent) > 12 {
		recent = recent[len(recent)-12:]
	}

	a.conversationHistory = append(append([]llmtypes.Message(nil), systemMessages...), recent...)
	return fmt.Sprintf("Compacted conversation history. Kept %d system messages and %d recent messages.", len(systemMessages), len(recent))
}

// State returns a copy of the agent's current state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// ConversationHistory returns a copy of the retained conversation.
func (a *Agent) ConversationHistory() []llmtypes.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]llmtypes.Message, len(a.conversationHistory))
	copy(out, a.conversationHistory)
	return out
}

const defaultSystemPrompt = `You are a meticulous coding assistant working directly in a developer's project. You reason and act in a tight loop: think, take an action with a tool, observe what happened, then decide the next step.

# Principles

1. Read before you write. Understand a file's current content and the surrounding conventions before changing it.
2. Keep your internal reasoning inside <think> tags; say only what the user needs to see outside them.
3. Prefer the narrowest tool for the job: Grep/Glob/LS to explore, Read/Edit/MultiEdit for precise changes, Bash to validate, Task to delegate a self-contained sub-problem.
4. Validate your own work. After an edit, re-read the file or run the relevant check before declaring success.
5. When a command or edit could affect things outside the current task, say so plainly before doing it.

Structure responses so the reasoning in <think> tags comes first, followed by what you actually did and what you found.`
