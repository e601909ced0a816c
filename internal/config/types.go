// Package config loads and validates Lantern's declarative routing
// configuration.
package config

import "time"

// Config is the root of the YAML-shaped configuration document.
type Config struct {
	Models   ModelsConfig   `yaml:"models"`
	Routing  RoutingConfig  `yaml:"routing"`
	Fallback FallbackConfig `yaml:"fallback"`
	Cost     CostConfig     `yaml:"cost"`
	Scanner  ScannerConfig  `yaml:"scanner"`
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Cache    CacheConfig    `yaml:"response_cache"`
}

// ModelsConfig configures the default local and cloud models.
type ModelsConfig struct {
	Local LocalModelConfig `yaml:"local"`
	Cloud CloudModelConfig `yaml:"cloud"`
}

// LocalModelConfig describes the primary local runtime.
type LocalModelConfig struct {
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
}

// CloudModelConfig describes the default cloud provider/model.
type CloudModelConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// RoutingConfig configures the triage engine.
type RoutingConfig struct {
	HardRules          []HardRuleConfig         `yaml:"hard_rules"`
	IntelligentRouting IntelligentRoutingConfig `yaml:"intelligent_routing"`
}

// HardRuleConfig is one ordered hard rule.
type HardRuleConfig struct {
	Triggers      []string `yaml:"triggers"`
	PreferredRef  string   `yaml:"preferred_model"`
	Justification string   `yaml:"justification"`
}

// IntelligentRoutingConfig configures the soft/delegated classifier.
type IntelligentRoutingConfig struct {
	Enabled             bool    `yaml:"enabled"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	ClassifierModel     string  `yaml:"classifier_model"`
	TriagePrompt        string  `yaml:"triage_prompt"`
}

// FallbackConfig configures the priority chain walked when the preferred
// model is unavailable or fails.
type FallbackConfig struct {
	Chain []string `yaml:"chain"`
}

// CostConfig configures per-model pricing and the display FX rate.
type CostConfig struct {
	Pricing map[string]PricingConfig `yaml:"pricing"`
	FXRate  float64                  `yaml:"fx_rate"`
}

// PricingConfig is price per million tokens for one model.
type PricingConfig struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// ScannerConfig configures the registry refresh loop and SSRF allow-list.
type ScannerConfig struct {
	CacheTTLSeconds int      `yaml:"cache_ttl"`
	AllowedHosts    []string `yaml:"allowed_hosts"`
}

// DatabaseConfig configures the conversation store location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig configures the HTTP control surface bind address and CORS.
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	RateLimitMS    int      `yaml:"rate_limit_ms"`
}

// CacheTTL returns the scanner TTL as a time.Duration, defaulting to 300s.
func (c ScannerConfig) CacheTTL() time.Duration {
	if c.CacheTTLSeconds <= 0 {
		return 300 * time.Second
	}
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// CacheConfig configures the response cache sitting in front of the
// backend call: an exact-match lookup, falling back to a similarity match
// against recent responses from the same model.
type CacheConfig struct {
	Enabled             bool    `yaml:"enabled"`
	Path                string  `yaml:"path"`
	TTLSeconds          int     `yaml:"ttl"`
	MaxEntries          int     `yaml:"max_entries"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

// TTL returns the entry lifetime as a time.Duration, defaulting to 1 hour.
func (c CacheConfig) TTL() time.Duration {
	if c.TTLSeconds <= 0 {
		return time.Hour
	}
	return time.Duration(c.TTLSeconds) * time.Second
}
