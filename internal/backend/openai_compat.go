package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lanternrouter/lantern/internal/logging"
	"github.com/lanternrouter/lantern/internal/registry"
)

// OpenAICompatConfig configures any provider speaking the OpenAI
// chat-completions wire format: openai itself, openrouter, moonshot, and
// local runtimes (lmstudio, vllm, generic-openai).
type OpenAICompatConfig struct {
	Provider string
	ModelRef string
	BaseURL  string
	Model    string
	APIKey   string
	Timeout  time.Duration
	Pricing  registry.Pricing
	FXRate   float64
	Local    bool
	// ShadowPricing/ShadowFXRate estimate cloud-equivalent cost for local
	// requests; unused when Local is false.
	ShadowPricing registry.Pricing
	ShadowFXRate  float64
}

// OpenAICompatAdapter talks to any OpenAI-compatible /chat/completions
// endpoint.
type OpenAICompatAdapter struct {
	*httpEngine
	cfg OpenAICompatConfig
}

// NewOpenAICompatAdapter builds an adapter for cfg.Provider.
func NewOpenAICompatAdapter(cfg OpenAICompatConfig, log *logging.Logger) *OpenAICompatAdapter {
	a := &OpenAICompatAdapter{cfg: cfg}
	a.httpEngine = newHTTPEngine(cfg.Provider, cfg.ModelRef, a, cfg.Timeout, cfg.Pricing, cfg.FXRate, cfg.Local, log)
	return a
}

func (a *OpenAICompatAdapter) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error) {
	resp, err := a.httpEngine.generate(ctx, req)
	if err != nil {
		return resp, err
	}
	if a.cfg.Local {
		resp.SavedCost = computeCost(resp.TokensIn, resp.TokensOut, a.cfg.ShadowPricing, a.cfg.ShadowFXRate)
	}
	return resp, nil
}

func (a *OpenAICompatAdapter) ValidateCredentials(ctx context.Context) bool {
	if a.cfg.Local {
		return true
	}
	return a.cfg.APIKey != ""
}

func (a *OpenAICompatAdapter) buildRequest(req GenerateRequest) (method, url string, body []byte, headers map[string]string, err error) {
	messages := []map[string]string{}
	if req.System != "" {
		messages = append(messages, map[string]string{"role": "system", "content": req.System})
	}
	messages = append(messages, map[string]string{"role": "user", "content": req.Prompt})

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	payload := map[string]any{
		"model":       a.cfg.Model,
		"messages":    messages,
		"max_tokens":  maxTokens,
		"temperature": req.Temperature,
	}

	body, err = json.Marshal(payload)
	if err != nil {
		return "", "", nil, nil, err
	}

	headers = map[string]string{"Content-Type": "application/json"}
	if a.cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + a.cfg.APIKey
	}

	return "POST", a.cfg.BaseURL + "/chat/completions", body, headers, nil
}

func (a *OpenAICompatAdapter) parseResponse(body []byte) (text string, tokensIn, tokensOut int, err error) {
	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", 0, 0, err
	}
	if len(resp.Choices) == 0 {
		return "", 0, 0, fmt.Errorf("response contained no choices")
	}
	return resp.Choices[0].Message.Content, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, nil
}
