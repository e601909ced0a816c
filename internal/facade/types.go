// Package facade is the router's single public entry point: it orchestrates
// triage, execution through the fallback chain, conversation persistence,
// and the in-memory statistics counters.
package facade

import (
	"errors"
	"sync/atomic"
)

// ErrBusy is returned when the concurrent-request limit is exceeded. The
// caller must retry; the facade never queues requests past the limit.
var ErrBusy = errors.New("facade: too many concurrent requests")

// RequestInput is what a caller hands to Handle.
type RequestInput struct {
	Text          string
	HasImage      bool
	SessionID     string // empty creates a new conversation
	ForceModelRef string
	ExtraContext  string
}

// Stats are the router's read-only counters, updated after every request.
type Stats struct {
	TotalRequests  int64
	LocalUsed      int64
	CloudUsed      int64
	TotalCost      float64
	TotalSaved     float64
	FallbackCount  int64
	VisionRequests int64
}

// counters holds the same fields as Stats but with atomic-friendly types
// for the int64 fields; float64 fields are guarded by a mutex in Facade
// since there is no atomic float64 add in the standard library.
type counters struct {
	totalRequests  atomic.Int64
	localUsed      atomic.Int64
	cloudUsed      atomic.Int64
	fallbackCount  atomic.Int64
	visionRequests atomic.Int64
}

func (c *counters) snapshot(totalCost, totalSaved float64) Stats {
	return Stats{
		TotalRequests:  c.totalRequests.Load(),
		LocalUsed:      c.localUsed.Load(),
		CloudUsed:      c.cloudUsed.Load(),
		TotalCost:      totalCost,
		TotalSaved:     totalSaved,
		FallbackCount:  c.fallbackCount.Load(),
		VisionRequests: c.visionRequests.Load(),
	}
}
