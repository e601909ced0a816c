package registry

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	results []ProbeResult
}

func (f *fakeProber) ProbeAll(ctx context.Context, descriptors []RuntimeDescriptor) []ProbeResult {
	return f.results
}

func TestRefreshMergesLocalAndCloudEntries(t *testing.T) {
	prober := &fakeProber{results: []ProbeResult{
		{Kind: KindLMStudio, BaseURL: "http://127.0.0.1:1234", Reachable: true, Models: []ModelEntry{
			{ID: "qwen3-4b", Provider: ProviderLocal},
		}},
	}}

	r := New(Config{
		Prober:   prober,
		Runtimes: func() []RuntimeDescriptor { return []RuntimeDescriptor{{Kind: KindLMStudio, BaseURL: "http://127.0.0.1:1234"}} },
		CloudCatalog: func() []ModelEntry {
			return []ModelEntry{{ID: "claude-sonnet", Provider: ProviderAnthropic, Pricing: Pricing{Input: 3, Output: 15}}}
		},
	}, nil)

	require.NoError(t, r.Refresh(context.Background()))
	assert.Len(t, r.ListAll(), 2)
	assert.Len(t, r.ListLocal(), 1)
	assert.Len(t, r.ListCloud(), 1)
}

func TestLookupResolvesAliases(t *testing.T) {
	prober := &fakeProber{results: []ProbeResult{
		{Kind: KindLMStudio, Reachable: true, Models: []ModelEntry{
			{ID: "qwen3-4b", Provider: ProviderLocal},
			{ID: "qwen3-14b", Provider: ProviderLocal},
		}},
	}}

	r := New(Config{
		Prober:           prober,
		Runtimes:         func() []RuntimeDescriptor { return []RuntimeDescriptor{{Kind: KindLMStudio}} },
		CloudCatalog:     func() []ModelEntry { return []ModelEntry{{ID: "claude-sonnet", Provider: ProviderAnthropic}} },
		PreferredLocalID: "qwen3-14b",
		DefaultCloudRef:  "anthropic:claude-sonnet",
	}, nil)
	require.NoError(t, r.Refresh(context.Background()))

	local := r.Lookup("local")
	require.NotNil(t, local)
	assert.Equal(t, "qwen3-14b", local.ID)

	cloud := r.Lookup("cloud")
	require.NotNil(t, cloud)
	assert.Equal(t, "claude-sonnet", cloud.ID)

	direct := r.Lookup("local:qwen3-4b")
	require.NotNil(t, direct)
	assert.Equal(t, "qwen3-4b", direct.ID)

	assert.Nil(t, r.Lookup("provider:nonexistent"))
}

func TestRefreshNotifiesObserversOfDiff(t *testing.T) {
	prober := &fakeProber{results: []ProbeResult{
		{Kind: KindLMStudio, Reachable: true, Models: []ModelEntry{{ID: "qwen3-4b", Provider: ProviderLocal}}},
	}}
	r := New(Config{
		Prober:   prober,
		Runtimes: func() []RuntimeDescriptor { return []RuntimeDescriptor{{Kind: KindLMStudio}} },
	}, nil)

	var added, removed, updated []ModelEntry
	r.Subscribe(func(a, rem, u []ModelEntry) {
		added, removed, updated = a, rem, u
	})
	require.NoError(t, r.Refresh(context.Background()))
	require.Len(t, added, 1)
	assert.Empty(t, removed)
	assert.Empty(t, updated)

	prober.results = nil
	require.NoError(t, r.Refresh(context.Background()))
	assert.Empty(t, added)
	require.Len(t, removed, 1)
}

func TestRefreshPersistsAndLoadsSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model_registry.json")
	prober := &fakeProber{results: []ProbeResult{
		{Kind: KindLMStudio, Reachable: true, Models: []ModelEntry{{ID: "qwen3-4b", Provider: ProviderLocal}}},
	}}
	r := New(Config{
		Prober:       prober,
		Runtimes:     func() []RuntimeDescriptor { return []RuntimeDescriptor{{Kind: KindLMStudio}} },
		SnapshotPath: path,
	}, nil)
	require.NoError(t, r.Refresh(context.Background()))

	reloaded := New(Config{SnapshotPath: path}, nil)
	assert.True(t, reloaded.Stale())
	assert.Len(t, reloaded.ListAll(), 1)
}
