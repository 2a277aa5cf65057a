package agent

import (
	"github.com/agentcore/qcode/internal/backend"
	"github.com/agentcore/qcode/internal/permission"
	"github.com/agentcore/qcode/internal/tools"
)

// CreationOptions bundles what's needed to stand up one Agent with its own
// tool registry and permission coordinator wired together in a single call.
type CreationOptions struct {
	AgentID          string
	SystemPrompt     string
	Model            string
	PreferredBackend string
	Fallback         bool
	WorkingDirectory string
	YOLO             bool
	PreferenceFile   string
	Prompter         permission.Prompter
}

// Create builds a Registry, a permission Coordinator wired as its
// PermissionChecker, and an Agent bound to both, rooted at
// opts.WorkingDirectory.
func Create(backends *backend.Manager, opts CreationOptions) (*Agent, *tools.Registry, *permission.Coordinator, error) {
	wd := opts.WorkingDirectory
	if wd == "" {
		wd = "."
	}

	registry := tools.NewDefaultRegistry()

	coordinator, err := permission.NewCoordinator(wd, opts.PreferenceFile, opts.YOLO)
	if err != nil {
		return nil, nil, nil, err
	}
	if opts.Prompter != nil {
		coordinator.SetPrompter(opts.Prompter)
	}
	registry.SetPermissionChecker(coordinator)

	a := NewAgent(opts.AgentID, backends, registry, Config{
		SystemPrompt:     opts.SystemPrompt,
		Model:            opts.Model,
		PreferredBackend: opts.PreferredBackend,
		Fallback:         opts.Fallback,
		WorkingDirectory: wd,
	})

	return a, registry, coordinator, nil
}
