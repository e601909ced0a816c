package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lanternrouter/lantern/internal/backend"
	"github.com/lanternrouter/lantern/internal/executor"
	"github.com/lanternrouter/lantern/internal/facade"
	"github.com/lanternrouter/lantern/internal/logging"
	"github.com/lanternrouter/lantern/internal/registry"
	"github.com/lanternrouter/lantern/internal/store"
	"github.com/lanternrouter/lantern/internal/triage"
)

type fakeAdapter struct {
	ref   string
	local bool
	resp  backend.GenerateResponse
	err   error
}

func (f *fakeAdapter) Generate(ctx context.Context, req backend.GenerateRequest) (backend.GenerateResponse, error) {
	if f.err != nil {
		return backend.GenerateResponse{}, f.err
	}
	return f.resp, nil
}
func (f *fakeAdapter) CountTokens(text string) int                 { return len(text) / 4 }
func (f *fakeAdapter) ValidateCredentials(ctx context.Context) bool { return true }
func (f *fakeAdapter) Name() string                                { return f.ref }
func (f *fakeAdapter) IsLocal() bool                                { return f.local }

type fakeProber struct{ results []registry.ProbeResult }

func (f *fakeProber) ProbeAll(ctx context.Context, descriptors []registry.RuntimeDescriptor) []registry.ProbeResult {
	return f.results
}

func newTestServer(t *testing.T) (*Server, *store.Store) {
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

	local := &fakeAdapter{ref: "local:qwen3-4b", local: true, resp: backend.GenerateResponse{Text: "hi there", ModelRef: "local:qwen3-4b"}}
	ex := executor.New(reg, func(e registry.ModelEntry) (backend.Adapter, error) { return local, nil }, []string{"local:qwen3-4b"}, logging.Nop())
	eng := triage.New(reg, triage.Config{FallbackChain: []string{"local:qwen3-4b"}}, logging.Nop())
	f := facade.New(facade.Config{Triage: eng, Executor: ex, Store: s, Registry: reg}, logging.Nop())

	reloaded := false
	srv := New(Config{
		Facade:   f,
		Registry: reg,
		Store:    s,
		Reload:   func() error { reloaded = true; return nil },
	}, logging.Nop())
	_ = reloaded
	return srv, s
}

func doRequest(srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	var r *http.Request
	if body != nil {
		buf, _ := json.Marshal(body)
		r = httptest.NewRequest(method, path, bytes.NewReader(buf))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, r)
	return w
}

func TestHandleHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	w := doRequest(srv, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpointExposesPrometheusFormat(t *testing.T) {
	srv, _ := newTestServer(t)
	w := doRequest(srv, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "lantern_registry_models")
}

func TestHandleQuerySuccess(t *testing.T) {
	srv, _ := newTestServer(t)
	w := doRequest(srv, http.MethodPost, "/router/query", map[string]string{"input": "hello"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp queryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, "local:qwen3-4b", resp.Model)
	require.Equal(t, "hi there", resp.Response)
}

func TestHandleQueryRejectsEmptyInput(t *testing.T) {
	srv, _ := newTestServer(t)
	w := doRequest(srv, http.MethodPost, "/router/query", map[string]string{"input": ""})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleStats(t *testing.T) {
	srv, _ := newTestServer(t)
	doRequest(srv, http.MethodPost, "/router/query", map[string]string{"input": "hello"})

	w := doRequest(srv, http.MethodGet, "/router/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats facade.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	require.Equal(t, int64(1), stats.TotalRequests)
	require.Equal(t, int64(1), stats.LocalUsed)
}

func TestHandleCost(t *testing.T) {
	srv, _ := newTestServer(t)
	doRequest(srv, http.MethodPost, "/router/query", map[string]string{"input": "hello"})

	w := doRequest(srv, http.MethodGet, "/router/cost", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Contains(t, body, "daily")
	require.Contains(t, body, "monthly")
}

func TestHandleSystemStats(t *testing.T) {
	srv, _ := newTestServer(t)
	doRequest(srv, http.MethodPost, "/router/query", map[string]string{"input": "hello"})

	w := doRequest(srv, http.MethodGet, "/system/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, float64(1), body["request_count"])
}

func TestHandleReload(t *testing.T) {
	srv, _ := newTestServer(t)
	w := doRequest(srv, http.MethodPost, "/router/config/reload", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHandleScanReturnsAccepted(t *testing.T) {
	srv, _ := newTestServer(t)
	w := doRequest(srv, http.MethodPost, "/models/scan", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
}

func TestHandleDetected(t *testing.T) {
	srv, _ := newTestServer(t)
	w := doRequest(srv, http.MethodGet, "/models/detected", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Contains(t, body, "models")
	require.Contains(t, body, "cache_valid")
}

func TestConversationLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doRequest(srv, http.MethodPost, "/api/v1/conversations", map[string]string{"title": "test conv"})
	require.Equal(t, http.StatusCreated, w.Code)
	var created map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	convID := created["id"]
	require.NotEmpty(t, convID)

	w = doRequest(srv, http.MethodPost, "/api/v1/conversations/"+convID+"/messages", map[string]string{"role": "user", "content": "hi"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doRequest(srv, http.MethodGet, "/api/v1/conversations/"+convID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	messages, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 1)

	w = doRequest(srv, http.MethodGet, "/api/v1/conversations", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(srv, http.MethodDelete, "/api/v1/conversations/"+convID, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(srv, http.MethodGet, "/api/v1/conversations/"+convID, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestSearchConversations(t *testing.T) {
	srv, s := newTestServer(t)
	convID, err := s.CreateConversation("searchable", nil)
	require.NoError(t, err)
	_, err = s.AppendMessage(convID, store.RoleUser, "find the needle in here", nil)
	require.NoError(t, err)

	w := doRequest(srv, http.MethodGet, "/api/v1/search?q=needle", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	results, ok := body["results"].([]any)
	require.True(t, ok)
	require.Len(t, results, 1)
}

func TestSearchRequiresQuery(t *testing.T) {
	srv, _ := newTestServer(t)
	w := doRequest(srv, http.MethodGet, "/api/v1/search", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportImportRoundTrip(t *testing.T) {
	srv, s := newTestServer(t)
	convID, err := s.CreateConversation("exportable", nil)
	require.NoError(t, err)
	modelRef := "local:qwen3-4b"
	_, err = s.AppendMessage(convID, store.RoleUser, "question", nil)
	require.NoError(t, err)
	_, err = s.AppendMessage(convID, store.RoleAssistant, "answer", &modelRef)
	require.NoError(t, err)

	w := doRequest(srv, http.MethodPost, "/api/v1/export", map[string]any{"conversation_ids": []string{convID}})
	require.Equal(t, http.StatusOK, w.Code)

	var doc store.ExportDocument
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	require.Len(t, doc.Conversations, 1)

	w = doRequest(srv, http.MethodPost, "/api/v1/import", doc)
	require.Equal(t, http.StatusOK, w.Code)

	var result map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	ids, ok := result["conversation_ids"].([]any)
	require.True(t, ok)
	require.Len(t, ids, 1)
}

func TestStartShutsDownOnContextCancel(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}
