package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []string{"local", "cloud"}, cfg.Fallback.Chain)
}

func TestLoadParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	doc := `
models:
  local:
    endpoint: http://127.0.0.1:1234
    model: qwen3-4b
  cloud:
    provider: anthropic
    model: claude-sonnet
routing:
  hard_rules:
    - triggers: ["見積"]
      preferred_model: "cloud:claude-sonnet"
      justification: "cost estimation needs cloud reasoning"
  intelligent_routing:
    enabled: true
    confidence_threshold: 0.75
fallback:
  chain: ["local:qwen3-4b", "cloud:claude-sonnet"]
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "qwen3-4b", cfg.Models.Local.Model)
	assert.Len(t, cfg.Routing.HardRules, 1)
	assert.Equal(t, "cloud:claude-sonnet", cfg.Routing.HardRules[0].PreferredRef)
}

func TestValidateRejectsEmptyChain(t *testing.T) {
	cfg := Default()
	cfg.Fallback.Chain = nil
	_, err := Validate(cfg)
	require.Error(t, err)
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	cfg := Default()
	cfg.Models.Cloud.Provider = "not-a-real-provider"
	_, err := Validate(cfg)
	require.Error(t, err)
}

func TestValidateWarnsOnEmptyTriggerList(t *testing.T) {
	cfg := Default()
	cfg.Routing.HardRules = []HardRuleConfig{{PreferredRef: "cloud", Justification: "always cloud"}}
	warnings, err := Validate(cfg)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
}

func TestValidateWarnsOnUnknownPricingModel(t *testing.T) {
	cfg := Default()
	cfg.Cost.Pricing = map[string]PricingConfig{"totally-unknown": {Input: 1, Output: 2}}
	warnings, err := Validate(cfg)
	require.NoError(t, err)
	assert.Len(t, warnings, 1)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	cfg := Default()
	cfg.Models.Local.Model = "qwen3-4b"

	require.NoError(t, Save(path, cfg))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "qwen3-4b", loaded.Models.Local.Model)
}
