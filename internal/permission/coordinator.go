package permission

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agentcore/qcode/internal/llmtypes"
	"github.com/agentcore/qcode/internal/logx"
	"github.com/agentcore/qcode/internal/metrics"
)

var coordinatorLog = logx.For("permission.coordinator")

// Prompter asks the user to approve or deny a risky operation. The UI
// layer implements this; a nil Prompter causes every PROMPT-tier
// assessment to be denied, which is the safe default for headless runs.
type Prompter interface {
	Prompt(ctx context.Context, toolName string, args map[string]any, assessment llmtypes.RiskAssessment) (allowed bool, remember bool, err error)
}

// auditEntry is one recorded permission decision.
type auditEntry struct {
	at        time.Time
	toolName  string
	riskLevel llmtypes.RiskLevel
	action    llmtypes.PermissionAction
	decision  string
}

// Coordinator assesses and approves tool calls, grounded on
// PermissionManager and TUIPermissionManager in
// original_source/src/qwen_tui/agents/permissions.py and
// tui/permission_manager.py, combined into one type since this repo has
// no separate TUI-vs-core split.
type Coordinator struct {
	commandClassifier *CommandClassifier
	fileController    *FileAccessController
	store             *Store
	prompter          Prompter

	mu      sync.Mutex
	yolo    bool
	audit   []auditEntry
	pending map[string]*pendingRequest
	metrics *metrics.Metrics
}

// SetMetrics attaches a Prometheus collector set; subsequent decisions
// report into it.
func (c *Coordinator) SetMetrics(m *metrics.Metrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = m
}

type permissionOutcome struct {
	allowed bool
	reason  string
	err     error
}

// pendingRequest is a dedup future for one in-flight Check call. done is
// closed once outcome is fully written, which every blocked waiter
// observes: closing a channel happens-after every write that precedes it,
// so every waiter that wakes from <-done is guaranteed to see the final
// outcome rather than racing a single buffered send against N receivers.
type pendingRequest struct {
	done    chan struct{}
	outcome permissionOutcome
}

// NewCoordinator builds a Coordinator rooted at workingDirectory, loading
// saved preferences from storePath.
func NewCoordinator(workingDirectory, storePath string, yolo bool) (*Coordinator, error) {
	store, err := NewStore(storePath)
	if err != nil {
		return nil, err
	}
	return &Coordinator{
		commandClassifier: NewCommandClassifier(),
		fileController:    NewFileAccessController(workingDirectory),
		store:             store,
		yolo:              yolo,
		pending:           make(map[string]*pendingRequest),
	}, nil
}

// SetPrompter wires the interactive approval surface. Without one, every
// PROMPT-tier request is denied rather than blocking forever.
func (c *Coordinator) SetPrompter(p Prompter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompter = p
}

// EnableYOLO bypasses every risk assessment, mirroring
// PermissionManager.enable_yolo_mode (the same bypass the CLI's --yolo
// flag turns on at construction).
func (c *Coordinator) EnableYOLO() {
	c.mu.Lock()
	c.yolo = true
	c.mu.Unlock()
	coordinatorLog.Warn("YOLO mode enabled - all safety checks bypassed")
}

// DisableYOLO re-enables risk assessment.
func (c *Coordinator) DisableYOLO() {
	c.mu.Lock()
	c.yolo = false
	c.mu.Unlock()
	coordinatorLog.Info("YOLO mode disabled - safety checks re-enabled")
}

// assess classifies the risk of a tool call by dispatching to the
// command or file classifier, mirroring assess_tool_permission.
func (c *Coordinator) assess(toolName string, args map[string]any) llmtypes.RiskAssessment {
	switch toolName {
	case "Bash":
		command, _ := args["command"].(string)
		return c.commandClassifier.ClassifyCommand(command)
	case "Write", "Edit", "MultiEdit":
		filePath, _ := args["file_path"].(string)
		return c.fileController.AssessFileAccess(filePath, "write")
	case "Read":
		filePath, _ := args["file_path"].(string)
		return c.fileController.AssessFileAccess(filePath, "read")
	case "Grep", "Glob", "LS":
		return llmtypes.RiskAssessment{RiskLevel: llmtypes.RiskSafe, Action: llmtypes.ActionAllow, Reasons: []string{"Read-only search operation"}}
	case "Task":
		return llmtypes.RiskAssessment{
			RiskLevel: llmtypes.RiskLow, Action: llmtypes.ActionAllow,
			Reasons: []string{"Task delegation - permissions checked at execution"},
			Warnings: []string{"Subtasks will be subject to their own permission checks"},
		}
	default:
		return llmtypes.RiskAssessment{
			RiskLevel: llmtypes.RiskMedium, Action: llmtypes.ActionPrompt,
			Reasons:  []string{fmt.Sprintf("Unknown tool: %s", toolName)},
			Warnings: []string{"Tool not recognized by permission system"},
		}
	}
}

// requestKey identifies a request for dedup purposes: the same tool with
// arguments that serialize identically share a pending future, mirroring
// request_key = f"{tool_name}:{hash(frozenset(parameters.items()))}" in
// tui/permission_manager.py.
func requestKey(toolName string, args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s := toolName
	for _, k := range keys {
		s += fmt.Sprintf(":%s=%v", k, args[k])
	}
	return s
}

// Check is the tools.PermissionChecker implementation: it assesses risk,
// consults saved preferences, auto-allows/blocks per the assessment's
// action, or prompts the user — deduplicating concurrent identical
// requests so the user isn't shown the same dialog twice.
func (c *Coordinator) Check(ctx context.Context, toolName string, args map[string]any) (bool, string, error) {
	c.mu.Lock()
	if c.yolo {
		c.mu.Unlock()
		c.record(toolName, llmtypes.RiskAssessment{RiskLevel: llmtypes.RiskSafe, Action: llmtypes.ActionAllow}, "allowed (yolo)")
		return true, "", nil
	}

	key := requestKey(toolName, args)
	if pr, ok := c.pending[key]; ok {
		c.mu.Unlock()
		<-pr.done
		return pr.outcome.allowed, pr.outcome.reason, pr.outcome.err
	}
	pr := &pendingRequest{done: make(chan struct{})}
	c.pending[key] = pr
	c.mu.Unlock()

	allowed, reason, err := c.handle(ctx, toolName, args)

	c.mu.Lock()
	delete(c.pending, key)
	c.mu.Unlock()

	pr.outcome = permissionOutcome{allowed: allowed, reason: reason, err: err}
	close(pr.done)
	return allowed, reason, err
}

func (c *Coordinator) handle(ctx context.Context, toolName string, args map[string]any) (bool, string, error) {
	assessment := c.assess(toolName, args)

	if pref, ok := c.store.Get(toolName); ok {
		allowed := pref == llmtypes.PreferenceAlwaysAllow
		c.record(toolName, assessment, fmt.Sprintf("preference:%s", pref))
		return allowed, "", nil
	}

	switch assessment.Action {
	case llmtypes.ActionAllow:
		c.record(toolName, assessment, "allowed")
		return true, "", nil

	case llmtypes.ActionBlock:
		c.record(toolName, assessment, "blocked")
		return false, fmt.Sprintf("blocked: %s risk operation", assessment.RiskLevel), nil

	case llmtypes.ActionPrompt:
		c.mu.Lock()
		prompter := c.prompter
		c.mu.Unlock()
		if prompter == nil {
			c.record(toolName, assessment, "denied (no prompter)")
			return false, "permission required but no interactive approval available", nil
		}
		allowed, remember, err := prompter.Prompt(ctx, toolName, args, assessment)
		if err != nil {
			c.record(toolName, assessment, "error")
			return false, "", err
		}
		if remember {
			pref := llmtypes.PreferenceAlwaysDeny
			if allowed {
				pref = llmtypes.PreferenceAlwaysAllow
			}
			if err := c.store.Set(toolName, pref); err != nil {
				coordinatorLog.Warn("failed to save permission preference", "tool", toolName, "error", err)
			}
		}
		decision := "denied"
		if allowed {
			decision = "allowed"
		}
		c.record(toolName, assessment, decision)
		return allowed, "", nil

	default:
		c.record(toolName, assessment, "denied (unknown action)")
		return false, "unknown permission action", nil
	}
}

func (c *Coordinator) record(toolName string, assessment llmtypes.RiskAssessment, decision string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audit = append(c.audit, auditEntry{
		at: time.Now(), toolName: toolName,
		riskLevel: assessment.RiskLevel, action: assessment.Action, decision: decision,
	})
	coordinatorLog.Info("permission decision", "tool", toolName, "decision", decision, "risk", assessment.RiskLevel)

	if c.metrics != nil {
		outcome := "deny"
		if strings.HasPrefix(decision, "allowed") || strings.HasPrefix(decision, "preference:always_allow") {
			outcome = "allow"
		}
		c.metrics.PermissionDecisionTotal.WithLabelValues(toolName, string(assessment.RiskLevel), outcome).Inc()
	}
}

// AuditSummary renders the last n recorded decisions as a markdown list,
// grounded on get_permission_summary.
func (c *Coordinator) AuditSummary(n int) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.audit) == 0 {
		return "No permission decisions recorded."
	}
	start := len(c.audit) - n
	if start < 0 {
		start = 0
	}
	out := "## Recent Permission Decisions\n\n"
	for _, e := range c.audit[start:] {
		out += fmt.Sprintf("- **%s** [%s] %s: %s\n",
			e.at.Format("15:04:05"), upper(string(e.riskLevel)), e.toolName, e.decision)
	}
	return out
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}

// ClearPreference removes any saved decision for toolName.
func (c *Coordinator) ClearPreference(toolName string) error {
	return c.store.Clear(toolName)
}

// ClearAllPreferences removes every saved decision.
func (c *Coordinator) ClearAllPreferences() error {
	return c.store.ClearAll()
}

// Close releases the underlying preference store's file watcher.
func (c *Coordinator) Close() error {
	return c.store.Close()
}
