package backend

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lanternrouter/lantern/internal/logging"
	"github.com/lanternrouter/lantern/internal/registry"
)

// OllamaConfig configures the Ollama /api/generate dialect.
type OllamaConfig struct {
	ModelRef string
	BaseURL  string
	Model    string
	Timeout  time.Duration
	// ShadowPricing is the configured default cloud model's pricing, used
	// only to estimate what a local request would have cost in the cloud.
	ShadowPricing registry.Pricing
	ShadowFXRate  float64
}

// OllamaAdapter talks to a local Ollama runtime. Local adapters price at
// zero but still compute what the request would have cost on the
// configured default cloud model, so the facade can populate SavedCost.
type OllamaAdapter struct {
	*httpEngine
	cfg OllamaConfig
}

// NewOllamaAdapter builds an Ollama adapter.
func NewOllamaAdapter(cfg OllamaConfig, log *logging.Logger) *OllamaAdapter {
	a := &OllamaAdapter{cfg: cfg}
	a.httpEngine = newHTTPEngine("ollama", cfg.ModelRef, a, cfg.Timeout, registry.Pricing{}, 1.0, true, log)
	return a
}

func (a *OllamaAdapter) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error) {
	resp, err := a.httpEngine.generate(ctx, req)
	if err != nil {
		return resp, err
	}
	resp.SavedCost = computeCost(resp.TokensIn, resp.TokensOut, a.cfg.ShadowPricing, a.cfg.ShadowFXRate)
	return resp, nil
}

func (a *OllamaAdapter) ValidateCredentials(ctx context.Context) bool { return true }

func (a *OllamaAdapter) buildRequest(req GenerateRequest) (method, url string, body []byte, headers map[string]string, err error) {
	prompt := req.Prompt
	if req.System != "" {
		prompt = req.System + "\n\n" + prompt
	}
	payload := map[string]any{
		"model":  a.cfg.Model,
		"prompt": prompt,
		"stream": false,
	}
	body, err = json.Marshal(payload)
	if err != nil {
		return "", "", nil, nil, err
	}
	return "POST", a.cfg.BaseURL + "/api/generate", body, map[string]string{"Content-Type": "application/json"}, nil
}

func (a *OllamaAdapter) parseResponse(body []byte) (text string, tokensIn, tokensOut int, err error) {
	var resp struct {
		Response        string `json:"response"`
		PromptEvalCount int    `json:"prompt_eval_count"`
		EvalCount       int    `json:"eval_count"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", 0, 0, err
	}
	return resp.Response, resp.PromptEvalCount, resp.EvalCount, nil
}
