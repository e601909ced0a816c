// Package backend translates the router's common request shape into each
// provider's native wire format, normalizes the response, and computes
// per-request cost.
package backend

import "context"

// GenerateRequest is the request shape handed to every adapter.
type GenerateRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// GenerateResponse is the unified shape returned to the fallback executor.
type GenerateResponse struct {
	Text      string
	ModelRef  string
	TokensIn  int
	TokensOut int
	Cost      float64
	SavedCost float64
}

// Adapter is implemented by every provider-specific client.
type Adapter interface {
	// Generate performs one completion call.
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error)
	// CountTokens estimates the token count of text without a network call.
	CountTokens(text string) int
	// ValidateCredentials reports whether the adapter has the credentials it
	// needs. No network call is made: cloud adapters check that an API key
	// is configured, and local runtimes always report true.
	ValidateCredentials(ctx context.Context) bool
	// Name returns the adapter's model reference, e.g. "cloud:claude-sonnet".
	Name() string
	// IsLocal reports whether the adapter targets a local runtime.
	IsLocal() bool
}
