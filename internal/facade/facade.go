package facade

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lanternrouter/lantern/internal/backend"
	"github.com/lanternrouter/lantern/internal/cache"
	"github.com/lanternrouter/lantern/internal/cost"
	"github.com/lanternrouter/lantern/internal/executor"
	"github.com/lanternrouter/lantern/internal/logging"
	"github.com/lanternrouter/lantern/internal/registry"
	"github.com/lanternrouter/lantern/internal/store"
	"github.com/lanternrouter/lantern/internal/telemetry"
	"github.com/lanternrouter/lantern/internal/triage"
)

const defaultConcurrency = 16

// routing bundles the pieces rebuilt together on a config reload, so a
// reader never observes a triage engine paired with the wrong chain.
type routing struct {
	triage   *triage.Engine
	executor *executor.Executor
}

// Facade is the router's single public entry point.
type Facade struct {
	routing  atomic.Pointer[routing]
	store    *store.Store
	registry *registry.Registry
	cache    *cache.Cache

	sem chan struct{}

	counters   counters
	costMu     sync.Mutex
	totalCost  float64
	totalSaved float64
	tracker    *cost.Tracker

	log *logging.Logger
}

// Config builds a Facade's initial wiring.
type Config struct {
	Triage      *triage.Engine
	Executor    *executor.Executor
	Store       *store.Store
	Registry    *registry.Registry
	Cache       *cache.Cache
	Concurrency int
}

// New builds a Facade ready to serve Handle calls.
func New(cfg Config, log *logging.Logger) *Facade {
	if log == nil {
		log = logging.Nop()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	f := &Facade{
		store:    cfg.Store,
		registry: cfg.Registry,
		cache:    cfg.Cache,
		sem:      make(chan struct{}, concurrency),
		tracker:  cost.NewTracker(time.Now()),
		log:      log.With("facade"),
	}
	f.routing.Store(&routing{triage: cfg.Triage, executor: cfg.Executor})
	return f
}

// ReloadConfig atomically swaps the triage engine and executor used by
// subsequent requests. In-flight requests keep running against the
// snapshot they already captured.
func (f *Facade) ReloadConfig(t *triage.Engine, e *executor.Executor) {
	f.routing.Store(&routing{triage: t, executor: e})
}

// Stats returns a snapshot of the router's counters.
func (f *Facade) Stats() Stats {
	f.costMu.Lock()
	defer f.costMu.Unlock()
	return f.counters.snapshot(f.totalCost, f.totalSaved)
}

// CostReport returns the current daily and monthly spend breakdown.
func (f *Facade) CostReport() (cost.DailyStats, cost.MonthlyStats) {
	return f.tracker.Snapshot()
}

// Handle triages, executes, and persists one request. Callers control the
// effective deadline via ctx; exceeding it aborts the in-flight attempt
// but keeps whatever was already persisted.
func (f *Facade) Handle(ctx context.Context, input RequestInput) (executor.RequestOutcome, error) {
	select {
	case f.sem <- struct{}{}:
	default:
		telemetry.BusyRejections.Inc()
		return executor.RequestOutcome{}, ErrBusy
	}
	defer func() { <-f.sem }()

	telemetry.ConcurrentRequests.Inc()
	defer telemetry.ConcurrentRequests.Dec()
	start := time.Now()

	route := f.routing.Load()
	f.counters.totalRequests.Add(1)
	if input.HasImage {
		f.counters.visionRequests.Add(1)
	}

	convID, err := f.resolveConversation(input.SessionID)
	if err != nil {
		return executor.RequestOutcome{}, err
	}

	if _, err := f.store.AppendMessage(convID, store.RoleUser, input.Text, nil); err != nil {
		f.log.Warn().Err(err).Msg("failed to persist user message")
	}

	decision := route.triage.Triage(ctx, triage.Input{
		Text:         input.Text,
		HasImage:     input.HasImage,
		ExtraContext: input.ExtraContext,
	}, triage.Options{ForceModelRef: input.ForceModelRef})

	if cached, ok := f.checkCache(input, decision.PreferredRef); ok {
		telemetry.RequestsTotal.WithLabelValues(cached.ModelRef, "success").Inc()
		telemetry.RequestLatency.WithLabelValues(cached.ModelRef).Observe(time.Since(start).Seconds())
		modelRef := cached.ModelRef
		if _, err := f.store.AppendMessage(convID, store.RoleAssistant, cached.Response.Text, &modelRef); err != nil {
			f.log.Warn().Err(err).Msg("failed to persist assistant message")
		}
		return cached, nil
	}

	outcome := route.executor.Execute(ctx, backend.GenerateRequest{Prompt: input.Text}, decision.PreferredRef)
	f.recordAttempts(outcome)

	if !outcome.Succeeded() {
		telemetry.RequestsTotal.WithLabelValues(decision.PreferredRef, "failure").Inc()
		if ctx.Err() != nil {
			f.appendInterruptedStub(convID)
		}
		return outcome, nil
	}

	telemetry.RequestsTotal.WithLabelValues(outcome.ModelRef, "success").Inc()
	telemetry.RequestLatency.WithLabelValues(outcome.ModelRef).Observe(time.Since(start).Seconds())

	f.recordSuccess(outcome)
	f.storeCache(input, outcome)

	modelRef := outcome.ModelRef
	if _, err := f.store.AppendMessage(convID, store.RoleAssistant, outcome.Response.Text, &modelRef); err != nil {
		f.log.Warn().Err(err).Msg("failed to persist assistant message")
	}

	return outcome, nil
}

// checkCache answers a request from the response cache without touching the
// fallback chain. Vision requests are never served from cache: the cached
// text answered a different (imageless) question by construction.
func (f *Facade) checkCache(input RequestInput, preferredRef string) (executor.RequestOutcome, bool) {
	if f.cache == nil || input.HasImage {
		return executor.RequestOutcome{}, false
	}

	entry, ok, err := f.cache.Get(input.Text, preferredRef)
	if err != nil {
		f.log.Warn().Err(err).Msg("cache lookup failed")
		return executor.RequestOutcome{}, false
	}
	if !ok {
		telemetry.CacheLookupsTotal.WithLabelValues("miss").Inc()
		return executor.RequestOutcome{}, false
	}

	result := "hit"
	if entry.FromSimilar {
		result = "similar-hit"
	}
	telemetry.CacheLookupsTotal.WithLabelValues(result).Inc()

	return executor.RequestOutcome{
		ModelRef:  preferredRef,
		Response:  backend.GenerateResponse{Text: entry.Response, ModelRef: preferredRef},
		FromCache: true,
	}, true
}

// storeCache saves a successful response for future lookups. Failures are
// logged, not propagated: a cache write failing must never fail the request
// it is caching.
func (f *Facade) storeCache(input RequestInput, outcome executor.RequestOutcome) {
	if f.cache == nil || input.HasImage {
		return
	}
	if err := f.cache.Set(input.Text, outcome.Response.Text, outcome.ModelRef); err != nil {
		f.log.Warn().Err(err).Msg("failed to store cache entry")
	}
}

func (f *Facade) recordAttempts(outcome executor.RequestOutcome) {
	for _, attempt := range outcome.Attempts {
		telemetry.AttemptsTotal.WithLabelValues(attempt.ModelRef, string(attempt.Outcome), attempt.ErrorKind).Inc()
	}
}

func (f *Facade) resolveConversation(sessionID string) (string, error) {
	if sessionID != "" {
		return sessionID, nil
	}
	return f.store.CreateConversation("untitled conversation", nil)
}

// appendInterruptedStub records that a request was cancelled mid-flight.
// The user's question stays in the log and searchable; the assistant
// slot gets a system stub rather than silence.
func (f *Facade) appendInterruptedStub(convID string) {
	if _, err := f.store.AppendMessage(convID, store.RoleSystem, "(interrupted)", nil); err != nil {
		f.log.Warn().Err(err).Msg("failed to persist interrupted stub")
	}
}

func (f *Facade) recordSuccess(outcome executor.RequestOutcome) {
	if f.isLocalRef(outcome.ModelRef) {
		f.counters.localUsed.Add(1)
	} else {
		f.counters.cloudUsed.Add(1)
	}
	if distinctModelRefs(outcome.Attempts) > 1 {
		f.counters.fallbackCount.Add(1)
		telemetry.FallbacksTotal.Inc()
	}

	telemetry.SpendTotal.WithLabelValues(outcome.ModelRef).Add(outcome.Response.Cost)
	if outcome.Response.SavedCost > 0 {
		telemetry.SavedTotal.Add(outcome.Response.SavedCost)
	}

	f.costMu.Lock()
	f.totalCost += outcome.Response.Cost
	f.totalSaved += outcome.Response.SavedCost
	f.costMu.Unlock()

	isLocal := f.isLocalRef(outcome.ModelRef)
	f.tracker.Record(time.Now(), isLocal, outcome.Response.TokensIn, outcome.Response.TokensOut, outcome.Response.Cost, outcome.Response.SavedCost)
}

// distinctModelRefs counts how many different candidates attempts covers.
// Several AttemptRecords can share one ModelRef when a single candidate was
// retried internally, so this is not len(attempts): a retried-then-succeeded
// candidate is not a fallback, only a candidate switch is.
func distinctModelRefs(attempts []executor.AttemptRecord) int {
	seen := make(map[string]struct{}, len(attempts))
	for _, a := range attempts {
		seen[a.ModelRef] = struct{}{}
	}
	return len(seen)
}

func (f *Facade) isLocalRef(ref string) bool {
	if f.registry == nil {
		return false
	}
	entry := f.registry.Lookup(ref)
	return entry != nil && entry.IsLocal()
}
