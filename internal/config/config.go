package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath is the environment variable that overrides the config
// file location.
const EnvConfigPath = "ROUTER_CONFIG_PATH"

// DefaultPath returns the conventional config file location, honoring
// ROUTER_CONFIG_PATH when set.
func DefaultPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".lantern", "config.yaml")
}

// Default returns the default configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".lantern")

	return &Config{
		Models: ModelsConfig{
			Local: LocalModelConfig{
				Endpoint: "http://127.0.0.1:11434",
				Model:    "",
			},
			Cloud: CloudModelConfig{
				Provider: "anthropic",
				Model:    "claude-sonnet",
			},
		},
		Routing: RoutingConfig{
			IntelligentRouting: IntelligentRoutingConfig{
				Enabled:             true,
				ConfidenceThreshold: 0.75,
				TriagePrompt:        "Classify the following request as local or cloud. Request: {input}",
			},
		},
		Fallback: FallbackConfig{
			Chain: []string{"local", "cloud"},
		},
		Cost: CostConfig{
			Pricing: map[string]PricingConfig{},
			FXRate:  1.0,
		},
		Scanner: ScannerConfig{
			CacheTTLSeconds: 300,
			AllowedHosts:    nil,
		},
		Database: DatabaseConfig{
			Path: filepath.Join(dataDir, "conversations.db"),
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8787,
		},
		Cache: CacheConfig{
			Enabled:             true,
			Path:                filepath.Join(dataDir, "cache.db"),
			TTLSeconds:          3600,
			MaxEntries:          10000,
			SimilarityThreshold: 0.85,
		},
	}
}

// Load reads and validates the YAML configuration at path. A missing file
// is not an error: Load returns the default configuration.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	expandPaths(cfg)

	warnings, err := Validate(cfg)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, "config warning:", w)
	}

	return cfg, nil
}

// Save writes cfg as YAML to path, creating parent directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func expandPaths(cfg *Config) {
	home, _ := os.UserHomeDir()
	if strings.HasPrefix(cfg.Database.Path, "~") {
		cfg.Database.Path = filepath.Join(home, cfg.Database.Path[1:])
	}
	if strings.HasPrefix(cfg.Cache.Path, "~") {
		cfg.Cache.Path = filepath.Join(home, cfg.Cache.Path[1:])
	}
}

// knownProviders is the set of recognized cloud providers.
var knownProviders = map[string]bool{
	"anthropic": true, "openai": true, "google": true,
	"openrouter": true, "moonshot": true,
}

// Validate checks cfg for terminal errors (missing required keys, unknown
// providers, chain references that cannot exist even in principle) and
// returns non-fatal warnings (pricing entries referring to unknown models).
func Validate(cfg *Config) (warnings []string, err error) {
	if len(cfg.Fallback.Chain) == 0 {
		return nil, fmt.Errorf("config: fallback.chain must not be empty")
	}

	if cfg.Models.Cloud.Provider != "" && !knownProviders[cfg.Models.Cloud.Provider] {
		return nil, fmt.Errorf("config: unknown cloud provider %q", cfg.Models.Cloud.Provider)
	}

	knownRefs := map[string]bool{"local": true, "cloud": true, "claude": true}
	for _, rule := range cfg.Routing.HardRules {
		if rule.PreferredRef == "" {
			return nil, fmt.Errorf("config: hard rule %q missing preferred_model", rule.Justification)
		}
		knownRefs[rule.PreferredRef] = true
		if len(rule.Triggers) == 0 {
			warnings = append(warnings, fmt.Sprintf("hard rule %q has no triggers and will match every request", rule.Justification))
		}
	}
	for _, ref := range cfg.Fallback.Chain {
		knownRefs[ref] = true
	}

	for model := range cfg.Cost.Pricing {
		if !knownRefs[model] && !strings.Contains(model, ":") {
			warnings = append(warnings, fmt.Sprintf("pricing entry %q does not match any configured model", model))
		}
	}

	if cfg.Routing.IntelligentRouting.Enabled {
		if cfg.Routing.IntelligentRouting.ConfidenceThreshold < 0 || cfg.Routing.IntelligentRouting.ConfidenceThreshold > 1 {
			return nil, fmt.Errorf("config: intelligent_routing.confidence_threshold must be in [0,1]")
		}
	}

	if cfg.Cache.Enabled && (cfg.Cache.SimilarityThreshold < 0 || cfg.Cache.SimilarityThreshold > 1) {
		return nil, fmt.Errorf("config: response_cache.similarity_threshold must be in [0,1]")
	}

	return warnings, nil
}
