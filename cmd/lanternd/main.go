// Command lanternd runs Lantern's routing daemon: it watches the
// configuration file, keeps the model registry fresh, and serves the HTTP
// control surface used by lanternctl and any other client.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lanternrouter/lantern/internal/backend"
	"github.com/lanternrouter/lantern/internal/cache"
	"github.com/lanternrouter/lantern/internal/config"
	"github.com/lanternrouter/lantern/internal/executor"
	"github.com/lanternrouter/lantern/internal/facade"
	"github.com/lanternrouter/lantern/internal/httpapi"
	"github.com/lanternrouter/lantern/internal/logging"
	"github.com/lanternrouter/lantern/internal/registry"
	"github.com/lanternrouter/lantern/internal/runtimeprobe"
	"github.com/lanternrouter/lantern/internal/store"
	"github.com/lanternrouter/lantern/internal/triage"
)

func main() {
	configPath := flag.String("config", config.DefaultPath(), "path to configuration file")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	level := "info"
	if *verbose {
		level = "debug"
	}
	log := logging.New(logging.Config{Level: level, Service: "lanternd"})

	watcher, err := config.NewWatcher(*configPath, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to load configuration")
		os.Exit(2)
	}
	defer watcher.Close()

	st, err := store.Open(watcher.Current().Database.Path, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to open conversation store")
		os.Exit(4)
	}
	defer st.Close()

	cch := openCache(watcher.Current(), log)
	if cch != nil {
		defer cch.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := buildRegistry(watcher.Current(), log)
	if err := reg.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("initial registry scan failed, starting with an empty table")
	}
	go reg.RunLoop(ctx, watcher.Current().Scanner.CacheTTL())

	rt := buildRouting(watcher.Current(), reg, log)
	fac := facade.New(facade.Config{
		Triage:   rt.triage,
		Executor: rt.executor,
		Store:    st,
		Registry: reg,
		Cache:    cch,
	}, log)

	reload := func() error {
		if err := watcher.Reload(); err != nil {
			return err
		}
		cfg := watcher.Current()
		next := buildRouting(cfg, reg, log)
		fac.ReloadConfig(next.triage, next.executor)
		return nil
	}

	cfg := watcher.Current()
	srv := httpapi.New(httpapi.Config{
		Addr:           fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Facade:         fac,
		Registry:       reg,
		Store:          st,
		Reload:         reload,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, log)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info().Msg("shutdown signal received")
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server exited unexpectedly")
			cancel()
			os.Exit(1)
		}
	}
}

// routing bundles the objects that get rebuilt together on every reload.
type routing struct {
	triage   *triage.Engine
	executor *executor.Executor
}

func buildRegistry(cfg *config.Config, log *logging.Logger) *registry.Registry {
	allowList := runtimeprobe.NewAllowList(cfg.Scanner.AllowedHosts)
	scanner := runtimeprobe.NewScanner(allowList, log)

	return registry.New(registry.Config{
		Prober: scanner,
		Runtimes: func() []registry.RuntimeDescriptor {
			if cfg.Models.Local.Endpoint == "" {
				return nil
			}
			return []registry.RuntimeDescriptor{{Kind: registry.KindLMStudio, BaseURL: cfg.Models.Local.Endpoint}}
		},
		CloudCatalog: func() []registry.ModelEntry {
			return cloudCatalog(cfg)
		},
		PreferredLocalID: cfg.Models.Local.Model,
		DefaultCloudRef:  cfg.Models.Cloud.Provider + ":" + cfg.Models.Cloud.Model,
		SnapshotPath:     "",
	}, log)
}

// openCache opens the response cache database, if enabled. A cache failure
// is a warning, not a fatal error: unlike the conversation store, the cache
// is a pure optimization and the router serves correctly without one.
func openCache(cfg *config.Config, log *logging.Logger) *cache.Cache {
	if !cfg.Cache.Enabled {
		return nil
	}
	cch, err := cache.Open(cfg.Cache.Path, cfg.Cache.TTL(), cfg.Cache.MaxEntries, cfg.Cache.SimilarityThreshold, log)
	if err != nil {
		log.Warn().Err(err).Msg("failed to open response cache, continuing without one")
		return nil
	}
	return cch
}

func cloudCatalog(cfg *config.Config) []registry.ModelEntry {
	entries := make([]registry.ModelEntry, 0, len(cfg.Cost.Pricing))
	for ref, pricing := range cfg.Cost.Pricing {
		provider, id := splitRef(ref)
		entries = append(entries, registry.ModelEntry{
			ID:       id,
			Provider: registry.Provider(provider),
			Pricing:  registry.Pricing{Input: pricing.Input, Output: pricing.Output},
		})
	}
	return entries
}

func splitRef(ref string) (provider, id string) {
	for i := 0; i < len(ref); i++ {
		if ref[i] == ':' {
			return ref[:i], ref[i+1:]
		}
	}
	return "", ref
}

func buildRouting(cfg *config.Config, reg *registry.Registry, log *logging.Logger) routing {
	factory := adapterFactory(cfg, log)

	eng := triage.New(reg, triage.Config{
		HardRules:           hardRules(cfg),
		ClassifierEnabled:   cfg.Routing.IntelligentRouting.Enabled,
		Classifier:          classifierFor(cfg, factory, reg),
		ConfidenceThreshold: cfg.Routing.IntelligentRouting.ConfidenceThreshold,
		TriagePrompt:        cfg.Routing.IntelligentRouting.TriagePrompt,
		DefaultCloudRef:     cfg.Models.Cloud.Provider + ":" + cfg.Models.Cloud.Model,
		FallbackChain:       cfg.Fallback.Chain,
	}, log)

	ex := executor.New(reg, factory, cfg.Fallback.Chain, log)

	return routing{triage: eng, executor: ex}
}

func hardRules(cfg *config.Config) []triage.HardRule {
	rules := make([]triage.HardRule, 0, len(cfg.Routing.HardRules))
	for _, r := range cfg.Routing.HardRules {
		rules = append(rules, triage.HardRule{
			Triggers:      r.Triggers,
			PreferredRef:  r.PreferredRef,
			Justification: r.Justification,
		})
	}
	return rules
}

// adapterClassifier wraps a single backend.Adapter so the triage engine can
// use it as a soft classifier without the triage package depending on
// backend.
type adapterClassifier struct {
	adapter backend.Adapter
}

func (c *adapterClassifier) Classify(ctx context.Context, prompt string) (string, error) {
	resp, err := c.adapter.Generate(ctx, backend.GenerateRequest{Prompt: prompt, MaxTokens: 200})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func classifierFor(cfg *config.Config, factory executor.AdapterFactory, reg *registry.Registry) triage.ClassifierModel {
	if !cfg.Routing.IntelligentRouting.Enabled || cfg.Routing.IntelligentRouting.ClassifierModel == "" {
		return nil
	}
	entry := reg.Lookup(cfg.Routing.IntelligentRouting.ClassifierModel)
	if entry == nil {
		return nil
	}
	adapter, err := factory(*entry)
	if err != nil {
		return nil
	}
	return &adapterClassifier{adapter: adapter}
}

func adapterFactory(cfg *config.Config, log *logging.Logger) executor.AdapterFactory {
	return func(entry registry.ModelEntry) (backend.Adapter, error) {
		ref := entry.Ref()
		pricing := entry.Pricing
		timeout := 60 * time.Second

		if entry.IsLocal() {
			shadow := shadowPricing(cfg)
			return backend.NewOpenAICompatAdapter(backend.OpenAICompatConfig{
				Provider:      "local",
				ModelRef:      ref,
				BaseURL:       cfg.Models.Local.Endpoint,
				Model:         entry.ID,
				Timeout:       timeout,
				Local:         true,
				ShadowPricing: shadow,
				ShadowFXRate:  cfg.Cost.FXRate,
			}, log), nil
		}

		switch entry.Provider {
		case registry.ProviderAnthropic:
			return backend.NewAnthropicAdapter(backend.AnthropicConfig{
				ModelRef: ref,
				Model:    entry.ID,
				APIKey:   os.Getenv("ANTHROPIC_API_KEY"),
				Timeout:  timeout,
				Pricing:  pricing,
				FXRate:   cfg.Cost.FXRate,
			}, log), nil
		case registry.ProviderGoogle:
			return backend.NewGoogleAdapter(backend.GoogleConfig{
				ModelRef: ref,
				Model:    entry.ID,
				APIKey:   os.Getenv("GOOGLE_API_KEY"),
				Timeout:  timeout,
				Pricing:  pricing,
				FXRate:   cfg.Cost.FXRate,
			}, log), nil
		case registry.ProviderOpenAI:
			return backend.NewOpenAICompatAdapter(backend.OpenAICompatConfig{
				Provider: "openai",
				ModelRef: ref,
				BaseURL:  "https://api.openai.com/v1",
				Model:    entry.ID,
				APIKey:   os.Getenv("OPENAI_API_KEY"),
				Timeout:  timeout,
				Pricing:  pricing,
				FXRate:   cfg.Cost.FXRate,
			}, log), nil
		case registry.ProviderOpenRouter:
			return backend.NewOpenAICompatAdapter(backend.OpenAICompatConfig{
				Provider: "openrouter",
				ModelRef: ref,
				BaseURL:  "https://openrouter.ai/api/v1",
				Model:    entry.ID,
				APIKey:   os.Getenv("OPENROUTER_API_KEY"),
				Timeout:  timeout,
				Pricing:  pricing,
				FXRate:   cfg.Cost.FXRate,
			}, log), nil
		case registry.ProviderMoonshot:
			return backend.NewOpenAICompatAdapter(backend.OpenAICompatConfig{
				Provider: "moonshot",
				ModelRef: ref,
				BaseURL:  "https://api.moonshot.cn/v1",
				Model:    entry.ID,
				APIKey:   os.Getenv("MOONSHOT_API_KEY"),
				Timeout:  timeout,
				Pricing:  pricing,
				FXRate:   cfg.Cost.FXRate,
			}, log), nil
		default:
			return nil, fmt.Errorf("lanternd: no adapter for provider %q", entry.Provider)
		}
	}
}

func shadowPricing(cfg *config.Config) registry.Pricing {
	ref := cfg.Models.Cloud.Provider + ":" + cfg.Models.Cloud.Model
	if p, ok := cfg.Cost.Pricing[ref]; ok {
		return registry.Pricing{Input: p.Input, Output: p.Output}
	}
	return registry.Pricing{}
}
