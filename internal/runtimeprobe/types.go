// Package runtimeprobe discovers which local LLM runtimes are reachable
// and what models they currently have loaded.
package runtimeprobe

import (
	"context"

	"github.com/lanternrouter/lantern/internal/registry"
)

// ProbeResult is an alias for the registry's shared result shape, so
// Scanner satisfies registry.Prober without an adapter.
type ProbeResult = registry.ProbeResult

// Prober knows how to list loaded models for one runtime API dialect.
type Prober interface {
	Kind() registry.RuntimeKind
	// Probe performs one HTTP call against baseURL and returns the loaded
	// models, or a failure kind when the runtime did not respond usefully.
	Probe(ctx context.Context, baseURL string) ([]registry.ModelEntry, error)
}
