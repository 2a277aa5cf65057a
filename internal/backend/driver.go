// Package backend implements the Backend Driver abstraction (spec.md
// §4.1): a polymorphic interface over {initialize, cleanup, health_check,
// list_models, generate, get_info} with four concrete variants, plus the
// Pool & Manager (§4.2) that discovers, health-checks, routes, and fails
// over across them.
package backend

import (
	"context"

	"github.com/agentcore/qcode/internal/llmtypes"
	"github.com/agentcore/qcode/internal/stream"
)

// Driver is one provider-specific LLM adapter. Implementations must honor
// the contracts in spec.md §4.1: initialize leaves status=connected on
// success and releases all resources on any failure path; generate is an
// asynchronous producer that yields partial chunks followed by exactly one
// terminal chunk; model caches are time-boxed per driver TTL.
type Driver interface {
	// Type returns the driver's stable backend type identifier, e.g. "ollama".
	Type() string

	// Initialize probes the backend and leaves Status() == connected on
	// success. On any failure it releases resources before returning an
	// error.
	Initialize(ctx context.Context) error

	// Cleanup releases all held resources (HTTP clients, background
	// goroutines). Safe to call multiple times.
	Cleanup(ctx context.Context) error

	// HealthCheck performs a lightweight liveness probe independent of
	// Initialize, used by the Manager's periodic health loop.
	HealthCheck(ctx context.Context) error

	// ListModels returns the backend's available model identifiers,
	// respecting the driver's cache TTL.
	ListModels(ctx context.Context) ([]string, error)

	// Generate streams a normalized response for req. The returned Stream
	// must be closed by the caller if abandoned before exhaustion.
	Generate(ctx context.Context, req llmtypes.Request) (*stream.Stream[llmtypes.Response], error)

	// Info returns the driver's current BackendInfo snapshot.
	Info() llmtypes.BackendInfo

	// SwitchModel updates the driver's default model. live reports
	// whether the change takes effect immediately (true) or only on the
	// next request the caller constructs (false, for providers that
	// cannot change model at runtime without a fresh connection).
	SwitchModel(ctx context.Context, modelID string) (live bool, err error)
}
