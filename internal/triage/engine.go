package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lanternrouter/lantern/internal/logging"
	"github.com/lanternrouter/lantern/internal/registry"
)

const classifierTimeout = 10 * time.Second

// Config wires an Engine to its configured rules and the soft classifier.
type Config struct {
	HardRules           []HardRule
	ClassifierEnabled   bool
	Classifier          ClassifierModel
	ConfidenceThreshold float64
	TriagePrompt        string
	DefaultCloudRef     string
	FallbackChain       []string
}

// Engine implements the triage algorithm described in the routing
// configuration: forced override, vision fast path, hard rules, soft
// classification, confidence upgrade, and a default fallback.
type Engine struct {
	registry *registry.Registry
	cfg      Config
	log      *logging.Logger
}

// New builds an Engine against a model registry, used to resolve the
// vision fast path to a capability-tagged entry.
func New(reg *registry.Registry, cfg Config, log *logging.Logger) *Engine {
	if log == nil {
		log = logging.Nop()
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 0.7
	}
	return &Engine{registry: reg, cfg: cfg, log: log.With("triage")}
}

// classifierResponse is the JSON shape the soft classifier is asked to
// produce.
type classifierResponse struct {
	Model      string  `json:"model"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// Triage decides which model should answer input, applying the
// algorithm's steps in strict order.
func (e *Engine) Triage(ctx context.Context, input Input, opts Options) Decision {
	if opts.ForceModelRef != "" {
		return Decision{PreferredRef: opts.ForceModelRef, Confidence: 1, Origin: OriginForced, Reason: "forced override"}
	}

	if input.HasImage {
		if ref := e.visionRef(); ref != "" {
			return Decision{PreferredRef: ref, Confidence: 1, Origin: OriginHardRule, Reason: "vision"}
		}
	}

	for _, rule := range e.cfg.HardRules {
		if rule.Matches(input.Text) {
			return Decision{
				PreferredRef: rule.PreferredRef,
				Confidence:   1,
				Origin:       OriginHardRule,
				Reason:       rule.Justification,
			}
		}
	}

	if e.cfg.ClassifierEnabled && e.cfg.Classifier != nil {
		if decision, ok := e.classify(ctx, input); ok {
			return e.upgradeConfidence(decision)
		}
	}

	return e.defaultDecision()
}

func (e *Engine) visionRef() string {
	if e.registry == nil {
		return ""
	}
	for _, entry := range e.registry.ListAll() {
		if entry.HasCapability(registry.CapVision) {
			return entry.Ref()
		}
	}
	return ""
}

func (e *Engine) classify(ctx context.Context, input Input) (Decision, bool) {
	prompt := fmt.Sprintf(e.cfg.TriagePrompt, input.Text)

	cctx, cancel := context.WithTimeout(ctx, classifierTimeout)
	defer cancel()

	text, err := e.cfg.Classifier.Classify(cctx, prompt)
	if err != nil {
		e.log.Warn().Err(err).Msg("soft classifier unreachable, falling back to default")
		return Decision{}, false
	}

	var parsed classifierResponse
	if err := json.Unmarshal([]byte(text), &parsed); err == nil && parsed.Model != "" {
		return Decision{
			PreferredRef: parsed.Model,
			Confidence:   parsed.Confidence,
			Origin:       OriginClassifier,
			Reason:       parsed.Reason,
		}, true
	}

	return e.heuristicParse(text), true
}

// heuristicParse is the fallback when the classifier's response isn't
// valid JSON: scan the raw text for the tokens the routing prompt asks
// the model to use.
func (e *Engine) heuristicParse(text string) Decision {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "cloud"), strings.Contains(lower, "complex"):
		return Decision{PreferredRef: e.cfg.DefaultCloudRef, Confidence: 0.8, Origin: OriginClassifier, Reason: "heuristic: cloud/complex token"}
	case strings.Contains(lower, "local"), strings.Contains(lower, "simple"):
		return Decision{PreferredRef: "local", Confidence: 0.8, Origin: OriginClassifier, Reason: "heuristic: local/simple token"}
	default:
		return Decision{PreferredRef: e.cfg.DefaultCloudRef, Confidence: 0.5, Origin: OriginClassifier, Reason: "heuristic: no recognizable token"}
	}
}

// upgradeConfidence replaces a low-confidence local preference with the
// default cloud ref, keeping the original reason as a trace of why the
// upgrade happened.
func (e *Engine) upgradeConfidence(d Decision) Decision {
	if d.PreferredRef == "local" && d.Confidence < e.cfg.ConfidenceThreshold {
		return Decision{
			PreferredRef: e.cfg.DefaultCloudRef,
			Confidence:   d.Confidence,
			Origin:       d.Origin,
			Reason:       fmt.Sprintf("confidence upgrade from local (%.2f): %s", d.Confidence, d.Reason),
		}
	}
	return d
}

func (e *Engine) defaultDecision() Decision {
	if len(e.cfg.FallbackChain) == 0 {
		return Decision{PreferredRef: e.cfg.DefaultCloudRef, Confidence: 0.5, Origin: OriginDefault, Reason: "no fallback chain configured"}
	}
	return Decision{
		PreferredRef: e.cfg.FallbackChain[0],
		Confidence:   0.5,
		Origin:       OriginDefault,
		Reason:       "classifier disabled or unreachable",
	}
}
