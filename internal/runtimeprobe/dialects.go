package runtimeprobe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/lanternrouter/lantern/internal/registry"
)

// fetchJSON performs a GET and unmarshals the response body into out.
func fetchJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad-response: status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// inferCapabilities guesses capabilities from a model id, matching how
// runtimes like LM Studio expose vision-tuned variants under the same
// /v1/models listing as their text siblings.
func inferCapabilities(id string) map[registry.Capability]bool {
	lower := strings.ToLower(id)
	caps := map[registry.Capability]bool{registry.CapText: true}
	if strings.Contains(lower, "vision") || strings.Contains(lower, "-vl") || strings.Contains(lower, "vl-") {
		caps[registry.CapVision] = true
	}
	if strings.Contains(lower, "instruct") || strings.Contains(lower, "tool") {
		caps[registry.CapTools] = true
	}
	return caps
}

// openAIModelsProber handles any runtime exposing the OpenAI-compatible
// GET /v1/models listing: lmstudio, llamacpp, vllm, jan, gpt4all, and the
// generic-openai fallback dialect.
type openAIModelsProber struct {
	kind   registry.RuntimeKind
	client *http.Client
}

func (p *openAIModelsProber) Kind() registry.RuntimeKind { return p.kind }

func (p *openAIModelsProber) Probe(ctx context.Context, baseURL string) ([]registry.ModelEntry, error) {
	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := fetchJSON(ctx, p.client, baseURL+"/v1/models", &body); err != nil {
		return nil, err
	}
	entries := make([]registry.ModelEntry, 0, len(body.Data))
	for _, m := range body.Data {
		entries = append(entries, registry.ModelEntry{
			ID:           m.ID,
			DisplayName:  m.ID,
			Provider:     registry.ProviderLocal,
			Capabilities: inferCapabilities(m.ID),
		})
	}
	return entries, nil
}

// ollamaProber handles Ollama's GET /api/tags listing.
type ollamaProber struct {
	client *http.Client
}

func (p *ollamaProber) Kind() registry.RuntimeKind { return registry.KindOllama }

func (p *ollamaProber) Probe(ctx context.Context, baseURL string) ([]registry.ModelEntry, error) {
	var body struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := fetchJSON(ctx, p.client, baseURL+"/api/tags", &body); err != nil {
		return nil, err
	}
	entries := make([]registry.ModelEntry, 0, len(body.Models))
	for _, m := range body.Models {
		entries = append(entries, registry.ModelEntry{
			ID:           m.Name,
			DisplayName:  m.Name,
			Provider:     registry.ProviderLocal,
			Capabilities: inferCapabilities(m.Name),
		})
	}
	return entries, nil
}

// koboldProber handles KoboldCPP's GET /api/v1/model listing, which
// reports a single active model rather than a list.
type koboldProber struct {
	client *http.Client
}

func (p *koboldProber) Kind() registry.RuntimeKind { return registry.KindKoboldCPP }

func (p *koboldProber) Probe(ctx context.Context, baseURL string) ([]registry.ModelEntry, error) {
	var body struct {
		Result string `json:"result"`
	}
	if err := fetchJSON(ctx, p.client, baseURL+"/api/v1/model", &body); err != nil {
		return nil, err
	}
	if body.Result == "" {
		return nil, nil
	}
	return []registry.ModelEntry{{
		ID:           body.Result,
		DisplayName:  body.Result,
		Provider:     registry.ProviderLocal,
		Capabilities: inferCapabilities(body.Result),
	}}, nil
}

// NewProber returns the Prober for a given runtime kind, sharing client
// across all dialects.
func NewProber(kind registry.RuntimeKind, client *http.Client) Prober {
	switch kind {
	case registry.KindOllama:
		return &ollamaProber{client: client}
	case registry.KindKoboldCPP:
		return &koboldProber{client: client}
	default:
		return &openAIModelsProber{kind: kind, client: client}
	}
}
