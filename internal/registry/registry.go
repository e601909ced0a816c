package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lanternrouter/lantern/internal/logging"
	"github.com/lanternrouter/lantern/internal/telemetry"
)

// Prober is the subset of runtimeprobe.Scanner the registry depends on.
// Declaring it here (rather than importing runtimeprobe directly) avoids a
// package cycle, since runtimeprobe depends on this package's types.
type Prober interface {
	ProbeAll(ctx context.Context, descriptors []RuntimeDescriptor) []ProbeResult
}

// Observer is notified after every successful refresh.
type Observer func(added, removed, updated []ModelEntry)

// DefaultRefreshInterval is how often the background loop re-probes when
// no explicit interval is configured.
const DefaultRefreshInterval = 300 * time.Second

// Registry holds the authoritative table of available models.
type Registry struct {
	mu sync.Mutex // serializes writers (Refresh); readers never block on it

	entries atomic.Pointer[[]ModelEntry]
	stale   atomic.Bool

	prober           Prober
	runtimes         func() []RuntimeDescriptor
	cloudCatalog     func() []ModelEntry
	preferredLocalID string
	defaultCloudRef  string

	obsMu     sync.RWMutex
	observers []Observer

	snapshotPath string
	log          *logging.Logger
}

// Config bundles Registry's construction-time dependencies.
type Config struct {
	Prober           Prober
	Runtimes         func() []RuntimeDescriptor
	CloudCatalog     func() []ModelEntry
	PreferredLocalID string
	DefaultCloudRef  string
	SnapshotPath     string
}

// New builds a Registry. It attempts to load a prior JSON snapshot as the
// initial state, marked stale until the first Refresh completes.
func New(cfg Config, log *logging.Logger) *Registry {
	if log == nil {
		log = logging.Nop()
	}
	r := &Registry{
		prober:           cfg.Prober,
		runtimes:         cfg.Runtimes,
		cloudCatalog:     cfg.CloudCatalog,
		preferredLocalID: cfg.PreferredLocalID,
		defaultCloudRef:  cfg.DefaultCloudRef,
		snapshotPath:     cfg.SnapshotPath,
		log:              log.With("registry"),
	}

	if cfg.SnapshotPath != "" {
		if loaded, err := loadSnapshot(cfg.SnapshotPath); err == nil {
			r.entries.Store(&loaded)
			r.stale.Store(true)
			telemetry.RegistryStale.Set(1)
		} else {
			empty := []ModelEntry{}
			r.entries.Store(&empty)
		}
	} else {
		empty := []ModelEntry{}
		r.entries.Store(&empty)
	}

	return r
}

// Stale reports whether the current table came from a persisted snapshot
// and has not yet been confirmed by a live refresh.
func (r *Registry) Stale() bool { return r.stale.Load() }

// Refresh re-probes every configured local runtime, merges in the static
// cloud catalog, computes the diff against the current table, atomically
// swaps, persists a snapshot, and notifies observers. Concurrent Refresh
// calls are serialized; readers always see either the old or new table,
// never a partial one.
func (r *Registry) Refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var descriptors []RuntimeDescriptor
	if r.runtimes != nil {
		descriptors = r.runtimes()
	}

	var fresh []ModelEntry
	if r.prober != nil && len(descriptors) > 0 {
		results := r.prober.ProbeAll(ctx, descriptors)
		for _, res := range results {
			if !res.Reachable {
				r.log.Warn().Str("kind", string(res.Kind)).Str("base_url", res.BaseURL).
					Str("failure_kind", res.FailureKind).Msg("runtime probe failed")
				continue
			}
			fresh = append(fresh, res.Models...)
		}
	}

	if r.cloudCatalog != nil {
		fresh = append(fresh, r.cloudCatalog()...)
	}

	old := r.currentEntries()
	added, removed, updated := diff(old, fresh)

	r.entries.Store(&fresh)
	r.stale.Store(false)
	r.reportMetrics(fresh)

	if r.snapshotPath != "" {
		if err := saveSnapshot(r.snapshotPath, fresh); err != nil {
			r.log.Warn().Err(err).Msg("failed to persist registry snapshot")
		}
	}

	if len(added) > 0 || len(removed) > 0 || len(updated) > 0 {
		r.notify(added, removed, updated)
	}
	return nil
}

// Lookup resolves ref to a ModelEntry. ref is either "provider:id", the
// word "local" (first reachable local entry, preferring the configured
// preferred id), or a cloud alias ("cloud"/"claude" resolve to the
// configured default cloud entry).
func (r *Registry) Lookup(ref string) *ModelEntry {
	entries := r.currentEntries()

	switch ref {
	case "local":
		var fallback *ModelEntry
		for i := range entries {
			e := entries[i]
			if !e.IsLocal() {
				continue
			}
			if fallback == nil {
				fallback = &entries[i]
			}
			if r.preferredLocalID != "" && e.ID == r.preferredLocalID {
				return &entries[i]
			}
		}
		return fallback
	case "cloud", "claude":
		if r.defaultCloudRef == "" {
			return nil
		}
		return r.Lookup(r.defaultCloudRef)
	}

	for i := range entries {
		if entries[i].Ref() == ref {
			return &entries[i]
		}
	}
	// Allow lookup by bare id when the provider prefix was omitted.
	for i := range entries {
		if entries[i].ID == ref {
			return &entries[i]
		}
	}
	return nil
}

// ListAll returns every known model entry.
func (r *Registry) ListAll() []ModelEntry {
	entries := r.currentEntries()
	out := make([]ModelEntry, len(entries))
	copy(out, entries)
	return out
}

// ListLocal returns only local entries.
func (r *Registry) ListLocal() []ModelEntry { return r.filter(func(e ModelEntry) bool { return e.IsLocal() }) }

// ListCloud returns only cloud entries.
func (r *Registry) ListCloud() []ModelEntry {
	return r.filter(func(e ModelEntry) bool { return !e.IsLocal() })
}

func (r *Registry) filter(keep func(ModelEntry) bool) []ModelEntry {
	entries := r.currentEntries()
	out := make([]ModelEntry, 0, len(entries))
	for _, e := range entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// Subscribe registers an observer, returning an index usable with
// Unsubscribe.
func (r *Registry) Subscribe(obs Observer) int {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	r.observers = append(r.observers, obs)
	return len(r.observers) - 1
}

// Unsubscribe removes a previously registered observer by its index.
func (r *Registry) Unsubscribe(id int) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	if id < 0 || id >= len(r.observers) {
		return
	}
	r.observers[id] = nil
}

func (r *Registry) notify(added, removed, updated []ModelEntry) {
	r.obsMu.RLock()
	defer r.obsMu.RUnlock()
	for _, obs := range r.observers {
		if obs != nil {
			obs(added, removed, updated)
		}
	}
}

func (r *Registry) reportMetrics(entries []ModelEntry) {
	telemetry.RegistryStale.Set(0)

	counts := make(map[Provider]int)
	for _, e := range entries {
		counts[e.Provider]++
	}
	for provider, n := range counts {
		telemetry.RegistryModels.WithLabelValues(string(provider)).Set(float64(n))
	}
}

func (r *Registry) currentEntries() []ModelEntry {
	p := r.entries.Load()
	if p == nil {
		return nil
	}
	return *p
}

// RunLoop refreshes on the given interval until ctx is done. Call once
// per process; Refresh itself is safe to call concurrently from an
// on-demand path (e.g. an HTTP /models/scan handler).
func (r *Registry) RunLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				r.log.Warn().Err(err).Msg("periodic registry refresh failed")
			}
		}
	}
}

// diff computes added/removed/updated sets keyed by Ref(). An entry counts
// as updated when its ref persists but any other field changes.
func diff(old, fresh []ModelEntry) (added, removed, updated []ModelEntry) {
	oldByRef := make(map[string]ModelEntry, len(old))
	for _, e := range old {
		oldByRef[e.Ref()] = e
	}
	freshByRef := make(map[string]bool, len(fresh))

	for _, e := range fresh {
		freshByRef[e.Ref()] = true
		prior, existed := oldByRef[e.Ref()]
		if !existed {
			added = append(added, e)
			continue
		}
		if !entriesEqual(prior, e) {
			updated = append(updated, e)
		}
	}
	for _, e := range old {
		if !freshByRef[e.Ref()] {
			removed = append(removed, e)
		}
	}
	return added, removed, updated
}

func entriesEqual(a, b ModelEntry) bool {
	if a.DisplayName != b.DisplayName || a.ContextTokens != b.ContextTokens || a.Pricing != b.Pricing {
		return false
	}
	if len(a.Capabilities) != len(b.Capabilities) {
		return false
	}
	for k, v := range a.Capabilities {
		if b.Capabilities[k] != v {
			return false
		}
	}
	aReachable := a.RuntimeRef != nil && a.RuntimeRef.Reachable
	bReachable := b.RuntimeRef != nil && b.RuntimeRef.Reachable
	return aReachable == bReachable
}
