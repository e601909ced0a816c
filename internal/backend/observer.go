package backend

import (
	"context"
	"time"
)

// AttemptOutcome is the terminal state of one underlying HTTP attempt. It
// mirrors executor.AttemptOutcome's values without importing that package
// (executor imports backend, not the reverse).
type AttemptOutcome string

const (
	AttemptSuccess          AttemptOutcome = "success"
	AttemptTransientFailure AttemptOutcome = "transient-failure"
	AttemptTerminalFailure  AttemptOutcome = "terminal-failure"
)

// AttemptEvent describes one HTTP round trip inside a single Generate call.
// A call that retries internally reports one event per attempt, not one per
// call, so a caller keeping attempt history sees every retry.
type AttemptEvent struct {
	ModelRef  string
	StartedAt time.Time
	Elapsed   time.Duration
	Outcome   AttemptOutcome
	ErrorKind string
	TokensIn  int
	TokensOut int
	Cost      float64
}

// AttemptObserver receives one AttemptEvent per underlying HTTP attempt.
type AttemptObserver func(AttemptEvent)

type attemptObserverKey struct{}

// WithAttemptObserver attaches obs to ctx. httpEngine-backed adapters invoke
// it once per HTTP attempt, including ones later retried.
func WithAttemptObserver(ctx context.Context, obs AttemptObserver) context.Context {
	return context.WithValue(ctx, attemptObserverKey{}, obs)
}

// ReportAttempt invokes the observer attached to ctx, if any. It is exported
// so adapters that don't embed httpEngine can still report per-attempt
// history the same way.
func ReportAttempt(ctx context.Context, ev AttemptEvent) {
	if obs, ok := ctx.Value(attemptObserverKey{}).(AttemptObserver); ok && obs != nil {
		obs(ev)
	}
}
