// Package logx wraps github.com/charmbracelet/log with small per-subsystem
// helpers so call sites never reach for a bare global logger.
package logx

import (
	"os"

	"github.com/charmbracelet/log"
)

var base = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
})

// SetDebug flips the global logger to debug level with caller reporting,
// mirroring the teacher's --debug flag handling in cmd/root.go.
func SetDebug(enabled bool) {
	if enabled {
		base.SetLevel(log.DebugLevel)
		base.SetReportCaller(true)
		return
	}
	base.SetLevel(log.InfoLevel)
	base.SetReportCaller(false)
}

// For returns a logger scoped to the named subsystem (e.g. "backend.ollama",
// "permission", "mcp.discovery"), so log lines are greppable by component.
func For(subsystem string) *log.Logger {
	return base.With("subsystem", subsystem)
}
