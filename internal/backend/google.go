package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lanternrouter/lantern/internal/logging"
	"github.com/lanternrouter/lantern/internal/registry"
)

// GoogleConfig configures the Gemini generateContent API adapter.
type GoogleConfig struct {
	ModelRef string
	BaseURL  string // default https://generativelanguage.googleapis.com/v1beta
	Model    string
	APIKey   string
	Timeout  time.Duration
	Pricing  registry.Pricing
	FXRate   float64
}

// GoogleAdapter talks to the Gemini generateContent API.
type GoogleAdapter struct {
	*httpEngine
	cfg GoogleConfig
}

// NewGoogleAdapter builds a Gemini adapter.
func NewGoogleAdapter(cfg GoogleConfig, log *logging.Logger) *GoogleAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	a := &GoogleAdapter{cfg: cfg}
	a.httpEngine = newHTTPEngine("google", cfg.ModelRef, a, cfg.Timeout, cfg.Pricing, cfg.FXRate, false, log)
	return a
}

func (a *GoogleAdapter) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error) {
	return a.httpEngine.generate(ctx, req)
}

func (a *GoogleAdapter) ValidateCredentials(ctx context.Context) bool {
	return a.cfg.APIKey != ""
}

func (a *GoogleAdapter) buildRequest(req GenerateRequest) (method, url string, body []byte, headers map[string]string, err error) {
	payload := map[string]any{
		"contents": []map[string]any{
			{"role": "user", "parts": []map[string]string{{"text": req.Prompt}}},
		},
	}
	if req.System != "" {
		payload["systemInstruction"] = map[string]any{
			"parts": []map[string]string{{"text": req.System}},
		}
	}
	genConfig := map[string]any{}
	if req.MaxTokens > 0 {
		genConfig["maxOutputTokens"] = req.MaxTokens
	}
	if req.Temperature > 0 {
		genConfig["temperature"] = req.Temperature
	}
	if len(genConfig) > 0 {
		payload["generationConfig"] = genConfig
	}

	body, err = json.Marshal(payload)
	if err != nil {
		return "", "", nil, nil, err
	}

	url = fmt.Sprintf("%s/models/%s:generateContent?key=%s", a.cfg.BaseURL, a.cfg.Model, a.cfg.APIKey)
	headers = map[string]string{"Content-Type": "application/json"}
	return "POST", url, body, headers, nil
}

func (a *GoogleAdapter) parseResponse(body []byte) (text string, tokensIn, tokensOut int, err error) {
	var resp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
		UsageMetadata struct {
			PromptTokenCount     int `json:"promptTokenCount"`
			CandidatesTokenCount int `json:"candidatesTokenCount"`
		} `json:"usageMetadata"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", 0, 0, err
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", 0, 0, fmt.Errorf("response contained no candidates")
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		text += part.Text
	}
	return text, resp.UsageMetadata.PromptTokenCount, resp.UsageMetadata.CandidatesTokenCount, nil
}
