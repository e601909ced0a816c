// Package executor walks the configured fallback chain, retrying
// transient failures within each candidate before moving to the next.
package executor

import (
	"time"

	"github.com/lanternrouter/lantern/internal/backend"
)

// AttemptOutcome is the terminal state of one execution attempt.
type AttemptOutcome string

const (
	AttemptSuccess          AttemptOutcome = "success"
	AttemptTransientFailure AttemptOutcome = "transient-failure"
	AttemptTerminalFailure  AttemptOutcome = "terminal-failure"
)

// AttemptRecord is one execution attempt against one candidate.
type AttemptRecord struct {
	ModelRef  string
	StartedAt time.Time
	Elapsed   time.Duration
	Outcome   AttemptOutcome
	ErrorKind string
	TokensIn  int
	TokensOut int
	Cost      float64
}

// RequestOutcome is returned by Execute.
type RequestOutcome struct {
	ModelRef    string // empty when every candidate failed
	Response    backend.GenerateResponse
	Attempts    []AttemptRecord
	CostWarning bool
	// FromCache is set by the facade, not Execute, when the response cache
	// answered the request without running the fallback chain at all.
	FromCache bool
}

// Succeeded reports whether any candidate produced a response.
func (o RequestOutcome) Succeeded() bool { return o.ModelRef != "" }
