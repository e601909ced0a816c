package runtimeprobe

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/lanternrouter/lantern/internal/logging"
	"github.com/lanternrouter/lantern/internal/registry"
)

// maxInFlight bounds how many probes run concurrently during probeAll,
// since a refresh sweep can fan out over dozens of configured runtimes.
const maxInFlight = 8

// defaultProbeTimeout is short because probing sits on the registry
// refresh critical path.
const defaultProbeTimeout = 3 * time.Second

// Scanner probes a set of runtime descriptors and reports fresh results.
type Scanner struct {
	client    *http.Client
	allowList *AllowList
	sem       *semaphore.Weighted
	log       *logging.Logger
}

// NewScanner builds a Scanner. allowList may be nil to permit loopback
// only.
func NewScanner(allowList *AllowList, log *logging.Logger) *Scanner {
	if log == nil {
		log = logging.Nop()
	}
	return &Scanner{
		client:    &http.Client{Timeout: defaultProbeTimeout},
		allowList: allowList,
		sem:       semaphore.NewWeighted(maxInFlight),
		log:       log.With("runtimeprobe"),
	}
}

// Probe performs one probe against a single descriptor.
func (s *Scanner) Probe(ctx context.Context, desc registry.RuntimeDescriptor) ProbeResult {
	result := ProbeResult{Kind: desc.Kind, BaseURL: desc.BaseURL, ProbedAt: time.Now()}

	if err := s.allowList.Check(desc.BaseURL); err != nil {
		s.log.Warn().Err(err).Str("base_url", desc.BaseURL).Msg("refusing to probe disallowed host")
		result.FailureKind = "bad-response"
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, defaultProbeTimeout)
	defer cancel()

	prober := NewProber(desc.Kind, s.client)
	models, err := prober.Probe(ctx, desc.BaseURL)
	if err != nil {
		result.FailureKind = classifyProbeFailure(err)
		return result
	}

	result.Reachable = true
	result.Models = models
	for i := range result.Models {
		result.Models[i].RuntimeRef = &registry.RuntimeDescriptor{
			Kind: desc.Kind, BaseURL: desc.BaseURL, Reachable: true, LastProbedAt: result.ProbedAt,
		}
	}
	return result
}

// ProbeAll runs Probe over every descriptor with bounded concurrency.
// Results are returned in the same order as descriptors.
func (s *Scanner) ProbeAll(ctx context.Context, descriptors []registry.RuntimeDescriptor) []ProbeResult {
	results := make([]ProbeResult, len(descriptors))
	var wg sync.WaitGroup

	for i, desc := range descriptors {
		i, desc := i, desc
		if err := s.sem.Acquire(ctx, 1); err != nil {
			results[i] = ProbeResult{Kind: desc.Kind, BaseURL: desc.BaseURL, FailureKind: "timeout"}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer s.sem.Release(1)
			results[i] = s.Probe(ctx, desc)
		}()
	}
	wg.Wait()
	return results
}

func classifyProbeFailure(err error) string {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return "connection-refused"
	}
	return "bad-response"
}
