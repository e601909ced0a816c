package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lanternrouter/lantern/internal/logging"
	"github.com/lanternrouter/lantern/internal/registry"
)

const anthropicVersion = "2023-06-01"

// AnthropicConfig configures the Anthropic Messages API adapter.
type AnthropicConfig struct {
	ModelRef string
	BaseURL  string // default https://api.anthropic.com
	Model    string
	APIKey   string
	Timeout  time.Duration
	Pricing  registry.Pricing
	FXRate   float64
}

// AnthropicAdapter talks to the Claude Messages API.
type AnthropicAdapter struct {
	*httpEngine
	cfg AnthropicConfig
}

// NewAnthropicAdapter builds an Anthropic adapter.
func NewAnthropicAdapter(cfg AnthropicConfig, log *logging.Logger) *AnthropicAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	a := &AnthropicAdapter{cfg: cfg}
	a.httpEngine = newHTTPEngine("anthropic", cfg.ModelRef, a, cfg.Timeout, cfg.Pricing, cfg.FXRate, false, log)
	return a
}

func (a *AnthropicAdapter) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error) {
	return a.httpEngine.generate(ctx, req)
}

func (a *AnthropicAdapter) ValidateCredentials(ctx context.Context) bool {
	return a.cfg.APIKey != ""
}

func (a *AnthropicAdapter) buildRequest(req GenerateRequest) (method, url string, body []byte, headers map[string]string, err error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	payload := map[string]any{
		"model":      a.cfg.Model,
		"max_tokens": maxTokens,
		"messages": []map[string]string{
			{"role": "user", "content": req.Prompt},
		},
	}
	if req.System != "" {
		payload["system"] = req.System
	}
	if req.Temperature > 0 {
		payload["temperature"] = req.Temperature
	}

	body, err = json.Marshal(payload)
	if err != nil {
		return "", "", nil, nil, err
	}

	headers = map[string]string{
		"Content-Type":      "application/json",
		"x-api-key":         a.cfg.APIKey,
		"anthropic-version": anthropicVersion,
	}
	return "POST", a.cfg.BaseURL + "/v1/messages", body, headers, nil
}

func (a *AnthropicAdapter) parseResponse(body []byte) (text string, tokensIn, tokensOut int, err error) {
	var resp struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", 0, 0, err
	}
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return "", 0, 0, fmt.Errorf("response contained no text content")
	}
	return text, resp.Usage.InputTokens, resp.Usage.OutputTokens, nil
}
