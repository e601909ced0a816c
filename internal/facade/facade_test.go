package facade

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lanternrouter/lantern/internal/backend"
	"github.com/lanternrouter/lantern/internal/executor"
	"github.com/lanternrouter/lantern/internal/logging"
	"github.com/lanternrouter/lantern/internal/registry"
	"github.com/lanternrouter/lantern/internal/store"
	"github.com/lanternrouter/lantern/internal/triage"
)

type fakeAdapter struct {
	ref         string
	local       bool
	resp        backend.GenerateResponse
	err         error
	delay       time.Duration
	retryEvents []backend.AttemptEvent
}

func (f *fakeAdapter) Generate(ctx context.Context, req backend.GenerateRequest) (backend.GenerateResponse, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return backend.GenerateResponse{}, ctx.Err()
		}
	}
	for _, ev := range f.retryEvents {
		backend.ReportAttempt(ctx, ev)
	}
	if f.err != nil {
		return backend.GenerateResponse{}, f.err
	}
	return f.resp, nil
}
func (f *fakeAdapter) CountTokens(text string) int                 { return len(text) / 4 }
func (f *fakeAdapter) ValidateCredentials(ctx context.Context) bool { return true }
func (f *fakeAdapter) Name() string                                 { return f.ref }
func (f *fakeAdapter) IsLocal() bool                                { return f.local }

type fakeProber struct{ results []registry.ProbeResult }

func (f *fakeProber) ProbeAll(ctx context.Context, descriptors []registry.RuntimeDescriptor) []registry.ProbeResult {
	return f.results
}

func newTestFacade(t *testing.T, local *fakeAdapter, cloud *fakeAdapter) (*Facade, *store.Store) {
	t.Helper()

	reg := registry.New(registry.Config{
		Prober: &fakeProber{results: []registry.ProbeResult{
			{Kind: registry.KindLMStudio, Reachable: true, Models: []registry.ModelEntry{{ID: "qwen3-4b", Provider: registry.ProviderLocal}}},
		}},
		Runtimes:     func() []registry.RuntimeDescriptor { return []registry.RuntimeDescriptor{{Kind: registry.KindLMStudio}} },
		CloudCatalog: func() []registry.ModelEntry { return []registry.ModelEntry{{ID: "claude-sonnet", Provider: registry.ProviderAnthropic}} },
	}, logging.Nop())
	require.NoError(t, reg.Refresh(context.Background()))

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ex := executor.New(reg, func(e registry.ModelEntry) (backend.Adapter, error) {
		if e.IsLocal() {
			return local, nil
		}
		return cloud, nil
	}, []string{"local:qwen3-4b", "anthropic:claude-sonnet"}, logging.Nop())

	eng := triage.New(reg, triage.Config{FallbackChain: []string{"local:qwen3-4b", "anthropic:claude-sonnet"}}, logging.Nop())

	f := New(Config{Triage: eng, Executor: ex, Store: s, Registry: reg}, logging.Nop())
	return f, s
}

func TestHandleSuccessPersistsBothMessages(t *testing.T) {
	local := &fakeAdapter{ref: "local:qwen3-4b", local: true, resp: backend.GenerateResponse{Text: "hi there", ModelRef: "local:qwen3-4b"}}
	f, s := newTestFacade(t, local, &fakeAdapter{})

	outcome, err := f.Handle(context.Background(), RequestInput{Text: "hello", ForceModelRef: "local:qwen3-4b"})
	require.NoError(t, err)
	require.True(t, outcome.Succeeded())

	stats := f.Stats()
	require.Equal(t, int64(1), stats.TotalRequests)
	require.Equal(t, int64(1), stats.LocalUsed)

	convs, err := s.ListConversations(store.ListFilters{}, 0, 0)
	require.NoError(t, err)
	require.Len(t, convs, 1)

	messages, err := s.GetMessages(convs[0].ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	require.Equal(t, store.RoleUser, messages[0].Role)
	require.Equal(t, store.RoleAssistant, messages[1].Role)
}

func TestHandleBusyWhenConcurrencyExceeded(t *testing.T) {
	local := &fakeAdapter{ref: "local:qwen3-4b", local: true, delay: 200 * time.Millisecond, resp: backend.GenerateResponse{Text: "ok", ModelRef: "local:qwen3-4b"}}
	f, _ := newTestFacade(t, local, &fakeAdapter{})
	f.sem = make(chan struct{}, 1)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = f.Handle(context.Background(), RequestInput{Text: "first", ForceModelRef: "local:qwen3-4b"})
	}()

	time.Sleep(20 * time.Millisecond)
	_, err := f.Handle(context.Background(), RequestInput{Text: "second", ForceModelRef: "local:qwen3-4b"})
	require.ErrorIs(t, err, ErrBusy)

	wg.Wait()
}

func TestHandleInterruptedAppendsSystemStub(t *testing.T) {
	local := &fakeAdapter{ref: "local:qwen3-4b", local: true, delay: 100 * time.Millisecond}
	f, s := newTestFacade(t, local, &fakeAdapter{err: context.DeadlineExceeded})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	outcome, err := f.Handle(ctx, RequestInput{Text: "slow request", ForceModelRef: "local:qwen3-4b"})
	require.NoError(t, err)
	require.False(t, outcome.Succeeded())

	convs, err := s.ListConversations(store.ListFilters{}, 0, 0)
	require.NoError(t, err)
	require.Len(t, convs, 1)

	messages, err := s.GetMessages(convs[0].ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	require.Equal(t, store.RoleSystem, messages[1].Role)
	require.Equal(t, "(interrupted)", messages[1].Content)
}

func TestHandleRecordsCostReport(t *testing.T) {
	local := &fakeAdapter{ref: "local:qwen3-4b", local: true, resp: backend.GenerateResponse{Text: "hi", ModelRef: "local:qwen3-4b", TokensIn: 10, TokensOut: 5, SavedCost: 0.02}}
	f, _ := newTestFacade(t, local, &fakeAdapter{})

	_, err := f.Handle(context.Background(), RequestInput{Text: "hello", ForceModelRef: "local:qwen3-4b"})
	require.NoError(t, err)

	daily, monthly := f.CostReport()
	require.Equal(t, int64(1), daily.Requests)
	require.Equal(t, int64(15), daily.LocalTokens)
	require.InDelta(t, 0.02, daily.SavedCost, 0.0001)
	require.Equal(t, int64(1), monthly.Requests)
}

func TestHandleRetriedCandidateIsNotCountedAsFallback(t *testing.T) {
	local := &fakeAdapter{
		ref: "local:qwen3-4b", local: true,
		resp: backend.GenerateResponse{Text: "hi", ModelRef: "local:qwen3-4b"},
		retryEvents: []backend.AttemptEvent{
			{ModelRef: "local:qwen3-4b", Outcome: backend.AttemptTransientFailure, ErrorKind: "rate-limited"},
			{ModelRef: "local:qwen3-4b", Outcome: backend.AttemptSuccess},
		},
	}
	f, _ := newTestFacade(t, local, &fakeAdapter{})

	outcome, err := f.Handle(context.Background(), RequestInput{Text: "hello", ForceModelRef: "local:qwen3-4b"})
	require.NoError(t, err)
	require.True(t, outcome.Succeeded())
	require.Len(t, outcome.Attempts, 2)

	stats := f.Stats()
	require.Equal(t, int64(0), stats.FallbackCount)
}

func TestReloadConfigSwapsRouting(t *testing.T) {
	local := &fakeAdapter{ref: "local:qwen3-4b", local: true, resp: backend.GenerateResponse{Text: "v1", ModelRef: "local:qwen3-4b"}}
	f, _ := newTestFacade(t, local, &fakeAdapter{})

	outcome, err := f.Handle(context.Background(), RequestInput{Text: "hello", ForceModelRef: "local:qwen3-4b"})
	require.NoError(t, err)
	require.Equal(t, "v1", outcome.Response.Text)

	v2 := &fakeAdapter{ref: "local:qwen3-4b", local: true, resp: backend.GenerateResponse{Text: "v2", ModelRef: "local:qwen3-4b"}}
	ex2 := executor.New(f.registry, func(e registry.ModelEntry) (backend.Adapter, error) { return v2, nil }, []string{"local:qwen3-4b"}, logging.Nop())
	eng2 := triage.New(f.registry, triage.Config{FallbackChain: []string{"local:qwen3-4b"}}, logging.Nop())
	f.ReloadConfig(eng2, ex2)
	outcome, err = f.Handle(context.Background(), RequestInput{Text: "hello again", ForceModelRef: "local:qwen3-4b"})
	require.NoError(t, err)
	require.Equal(t, "v2", outcome.Response.Text)
}
