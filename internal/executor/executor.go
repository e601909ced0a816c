package executor

import (
	"context"
	"errors"
	"time"

	"github.com/lanternrouter/lantern/internal/backend"
	"github.com/lanternrouter/lantern/internal/logging"
	"github.com/lanternrouter/lantern/internal/registry"
)

// AdapterFactory resolves a registry entry to the backend adapter that
// serves it. Implementations typically cache one adapter per ref.
type AdapterFactory func(entry registry.ModelEntry) (backend.Adapter, error)

// Executor walks the fallback chain for one request.
type Executor struct {
	registry *registry.Registry
	adapters AdapterFactory
	chain    []string
	log      *logging.Logger
}

// New builds an Executor. chain is the configured fallback priority list.
func New(reg *registry.Registry, adapters AdapterFactory, chain []string, log *logging.Logger) *Executor {
	if log == nil {
		log = logging.Nop()
	}
	return &Executor{registry: reg, adapters: adapters, chain: chain, log: log.With("executor")}
}

// Execute resolves preferredRef first, then walks the rest of the
// configured chain, until one candidate succeeds or every candidate has
// been tried.
func (e *Executor) Execute(ctx context.Context, req backend.GenerateRequest, preferredRef string) RequestOutcome {
	tryOrder := buildTryOrder(preferredRef, e.chain)

	var outcome RequestOutcome
	preferredWasLocal := false
	sawFailure := false

	for i, ref := range tryOrder {
		entry := e.registry.Lookup(ref)
		if entry == nil {
			outcome.Attempts = append(outcome.Attempts, AttemptRecord{
				ModelRef:  ref,
				StartedAt: time.Now(),
				Outcome:   AttemptTerminalFailure,
				ErrorKind: "model-not-loaded",
			})
			sawFailure = true
			continue
		}
		if i == 0 {
			preferredWasLocal = entry.IsLocal()
		}

		adapter, err := e.adapters(*entry)
		if err != nil {
			outcome.Attempts = append(outcome.Attempts, AttemptRecord{
				ModelRef:  entry.Ref(),
				StartedAt: time.Now(),
				Outcome:   AttemptTerminalFailure,
				ErrorKind: "model-not-loaded",
			})
			sawFailure = true
			continue
		}

		started := time.Now()
		before := len(outcome.Attempts)
		genCtx := backend.WithAttemptObserver(ctx, func(ev backend.AttemptEvent) {
			outcome.Attempts = append(outcome.Attempts, AttemptRecord{
				ModelRef:  ev.ModelRef,
				StartedAt: ev.StartedAt,
				Elapsed:   ev.Elapsed,
				Outcome:   AttemptOutcome(ev.Outcome),
				ErrorKind: ev.ErrorKind,
				TokensIn:  ev.TokensIn,
				TokensOut: ev.TokensOut,
				Cost:      ev.Cost,
			})
		})
		resp, genErr := adapter.Generate(genCtx, req)
		elapsed := time.Since(started)

		if genErr == nil {
			if len(outcome.Attempts) == before {
				// Adapter reported no attempt events of its own (e.g. a fake
				// used in tests); fall back to one record for the whole call.
				outcome.Attempts = append(outcome.Attempts, AttemptRecord{
					ModelRef:  entry.Ref(),
					StartedAt: started,
					Elapsed:   elapsed,
					Outcome:   AttemptSuccess,
					TokensIn:  resp.TokensIn,
					TokensOut: resp.TokensOut,
					Cost:      resp.Cost,
				})
			}
			outcome.ModelRef = entry.Ref()
			outcome.Response = resp
			if sawFailure && preferredWasLocal && !entry.IsLocal() {
				outcome.CostWarning = true
			}
			return outcome
		}

		if len(outcome.Attempts) == before {
			outcome.Attempts = append(outcome.Attempts, AttemptRecord{
				ModelRef:  entry.Ref(),
				StartedAt: started,
				Elapsed:   elapsed,
				Outcome:   AttemptTerminalFailure,
				ErrorKind: errorKind(genErr),
			})
		}
		sawFailure = true
		e.log.Warn().Str("model_ref", entry.Ref()).Err(genErr).Msg("candidate exhausted, falling back")
	}

	return outcome
}

// buildTryOrder places preferredRef first, followed by the remainder of
// chain with preferredRef removed.
func buildTryOrder(preferredRef string, chain []string) []string {
	order := make([]string, 0, len(chain)+1)
	if preferredRef != "" {
		order = append(order, preferredRef)
	}
	for _, ref := range chain {
		if ref == preferredRef {
			continue
		}
		order = append(order, ref)
	}
	return order
}

func errorKind(err error) string {
	var backendErr *backend.Error
	if errors.As(err, &backendErr) {
		return string(backendErr.Kind)
	}
	return "unknown"
}
