// Package registry holds the authoritative, process-wide table of
// reachable LLM backends.
package registry

import "time"

// RuntimeKind identifies a local LLM runtime's API dialect.
type RuntimeKind string

const (
	KindLMStudio      RuntimeKind = "lmstudio"
	KindOllama        RuntimeKind = "ollama"
	KindLlamaCPP      RuntimeKind = "llamacpp"
	KindKoboldCPP     RuntimeKind = "koboldcpp"
	KindJan           RuntimeKind = "jan"
	KindGPT4All       RuntimeKind = "gpt4all"
	KindVLLM          RuntimeKind = "vllm"
	KindGenericOpenAI RuntimeKind = "generic-openai"
)

// Provider identifies who serves a model.
type Provider string

const (
	ProviderLocal      Provider = "local"
	ProviderAnthropic  Provider = "anthropic"
	ProviderOpenAI     Provider = "openai"
	ProviderGoogle     Provider = "google"
	ProviderOpenRouter Provider = "openrouter"
	ProviderMoonshot   Provider = "moonshot"
)

// Capability is one thing a model can do.
type Capability string

const (
	CapText      Capability = "text"
	CapVision    Capability = "vision"
	CapReasoning Capability = "reasoning"
	CapTools     Capability = "tools"
)

// RuntimeDescriptor identifies one local LLM endpoint.
type RuntimeDescriptor struct {
	Kind         RuntimeKind
	BaseURL      string
	Reachable    bool
	LastProbedAt time.Time
}

// Pricing is price per million tokens; zero for local models.
type Pricing struct {
	Input  float64
	Output float64
}

// IsZero reports whether both input and output prices are zero.
func (p Pricing) IsZero() bool { return p.Input == 0 && p.Output == 0 }

// ModelEntry is one loadable model.
type ModelEntry struct {
	ID            string
	DisplayName   string
	RuntimeRef    *RuntimeDescriptor // nil for cloud models
	Provider      Provider
	Capabilities  map[Capability]bool
	ContextTokens int
	Pricing       Pricing
}

// Ref returns the canonical "provider:id" reference string.
func (m ModelEntry) Ref() string {
	return string(m.Provider) + ":" + m.ID
}

// IsLocal reports whether the entry is served by a local runtime.
func (m ModelEntry) IsLocal() bool {
	return m.Provider == ProviderLocal
}

// HasCapability reports whether the model advertises the given capability.
func (m ModelEntry) HasCapability(c Capability) bool {
	return m.Capabilities[c]
}

// ProbeResult is the outcome of probing one runtime endpoint.
type ProbeResult struct {
	Kind        RuntimeKind
	BaseURL     string
	Reachable   bool
	Models      []ModelEntry
	FailureKind string // "connection-refused", "timeout", "bad-response"; empty when Reachable
	ProbedAt    time.Time
}
