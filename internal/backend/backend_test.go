package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanternrouter/lantern/internal/registry"
)

func TestOpenAICompatAdapterGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Write([]byte(`{"choices":[{"message":{"content":"hello there"}}],"usage":{"prompt_tokens":10,"completion_tokens":5}}`))
	}))
	defer srv.Close()

	a := NewOpenAICompatAdapter(OpenAICompatConfig{
		Provider: "openai",
		ModelRef: "cloud:gpt-5",
		BaseURL:  srv.URL,
		Model:    "gpt-5",
		APIKey:   "test-key",
		Pricing:  registry.Pricing{Input: 1, Output: 2},
		FXRate:   1.0,
	}, nil)

	resp, err := a.Generate(context.Background(), GenerateRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.Text)
	assert.Equal(t, 10, resp.TokensIn)
	assert.Equal(t, 5, resp.TokensOut)
	assert.InDelta(t, (10.0/1e6)*1+(5.0/1e6)*2, resp.Cost, 1e-9)
}

func TestOpenAICompatAdapterRetriesOn5xxThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}],"usage":{"prompt_tokens":1,"completion_tokens":1}}`))
	}))
	defer srv.Close()

	a := NewOpenAICompatAdapter(OpenAICompatConfig{
		Provider: "openai",
		ModelRef: "cloud:gpt-5",
		BaseURL:  srv.URL,
		Model:    "gpt-5",
		APIKey:   "test-key",
	}, nil)

	resp, err := a.Generate(context.Background(), GenerateRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, 2, attempts)
}

func TestOpenAICompatAdapterAuthFailureNotRetried(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	a := NewOpenAICompatAdapter(OpenAICompatConfig{
		Provider: "openai",
		ModelRef: "cloud:gpt-5",
		BaseURL:  srv.URL,
		Model:    "gpt-5",
		APIKey:   "bad-key",
	}, nil)

	_, err := a.Generate(context.Background(), GenerateRequest{Prompt: "hi"})
	require.Error(t, err)
	var backendErr *Error
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, KindAuth, backendErr.Kind)
	assert.Equal(t, 1, attempts)
}

func TestAnthropicAdapterGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		w.Write([]byte(`{"content":[{"type":"text","text":"claude says hi"}],"usage":{"input_tokens":3,"output_tokens":4}}`))
	}))
	defer srv.Close()

	a := NewAnthropicAdapter(AnthropicConfig{
		ModelRef: "cloud:claude-sonnet",
		BaseURL:  srv.URL,
		Model:    "claude-sonnet-4",
		APIKey:   "test-key",
	}, nil)

	resp, err := a.Generate(context.Background(), GenerateRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "claude says hi", resp.Text)
	assert.Equal(t, 3, resp.TokensIn)
	assert.Equal(t, 4, resp.TokensOut)
}

func TestGoogleAdapterGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"gemini says hi"}]}}],"usageMetadata":{"promptTokenCount":2,"candidatesTokenCount":3}}`))
	}))
	defer srv.Close()

	a := NewGoogleAdapter(GoogleConfig{
		ModelRef: "cloud:gemini-pro",
		BaseURL:  srv.URL,
		Model:    "gemini-pro",
		APIKey:   "test-key",
	}, nil)

	resp, err := a.Generate(context.Background(), GenerateRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "gemini says hi", resp.Text)
}

func TestOllamaAdapterComputesSavedCost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":"local answer","prompt_eval_count":100,"eval_count":50}`))
	}))
	defer srv.Close()

	a := NewOllamaAdapter(OllamaConfig{
		ModelRef:      "local:qwen3-4b",
		BaseURL:       srv.URL,
		Model:         "qwen3-4b",
		ShadowPricing: registry.Pricing{Input: 3, Output: 15},
		ShadowFXRate:  1.0,
	}, nil)

	resp, err := a.Generate(context.Background(), GenerateRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "local answer", resp.Text)
	assert.Equal(t, 0.0, resp.Cost)
	assert.InDelta(t, (100.0/1e6)*3+(50.0/1e6)*15, resp.SavedCost, 1e-9)
}

func TestOpenAICompatAdapterRetriesAfterRateLimit(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}],"usage":{"prompt_tokens":1,"completion_tokens":1}}`))
	}))
	defer srv.Close()

	a := NewOpenAICompatAdapter(OpenAICompatConfig{
		Provider: "openai",
		ModelRef: "cloud:gpt-5",
		BaseURL:  srv.URL,
		Model:    "gpt-5",
		APIKey:   "test-key",
	}, nil)

	resp, err := a.Generate(context.Background(), GenerateRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, 2, attempts)
}

func TestOpenAICompatAdapterRateLimitReportsOneAttemptEventPerHTTPCall(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}],"usage":{"prompt_tokens":1,"completion_tokens":1}}`))
	}))
	defer srv.Close()

	a := NewOpenAICompatAdapter(OpenAICompatConfig{
		Provider: "openai",
		ModelRef: "cloud:gpt-5",
		BaseURL:  srv.URL,
		Model:    "gpt-5",
		APIKey:   "test-key",
	}, nil)

	var events []AttemptEvent
	ctx := WithAttemptObserver(context.Background(), func(ev AttemptEvent) { events = append(events, ev) })

	resp, err := a.Generate(ctx, GenerateRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)

	require.Len(t, events, 2)
	assert.Equal(t, AttemptTransientFailure, events[0].Outcome)
	assert.Equal(t, string(KindRateLimited), events[0].ErrorKind)
	assert.Equal(t, AttemptSuccess, events[1].Outcome)
}
