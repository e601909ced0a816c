package backend

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/lanternrouter/lantern/internal/logging"
	"github.com/lanternrouter/lantern/internal/registry"
	"github.com/lanternrouter/lantern/internal/retry"
)

// wireCodec knows one provider's request/response JSON shape. httpEngine
// supplies the transport, retry, circuit breaking, and cost accounting
// common to every adapter.
type wireCodec interface {
	// buildRequest returns the method, URL, body, and headers for one call.
	buildRequest(req GenerateRequest) (method, url string, body []byte, headers map[string]string, err error)
	// parseResponse extracts text and token counts from a 200 response body.
	parseResponse(body []byte) (text string, tokensIn, tokensOut int, err error)
}

// httpEngine is embedded by every concrete adapter; it is not exported
// because callers only ever see the Adapter interface.
type httpEngine struct {
	provider string
	modelRef string
	client   *http.Client
	breaker  *retry.Breaker
	policy   retry.Policy
	codec    wireCodec
	pricing  registry.Pricing
	fxRate   float64
	local    bool
	log      *logging.Logger
}

func newHTTPEngine(provider, modelRef string, codec wireCodec, timeout time.Duration, pricing registry.Pricing, fxRate float64, local bool, log *logging.Logger) *httpEngine {
	if log == nil {
		log = logging.Nop()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &httpEngine{
		provider: provider,
		modelRef: modelRef,
		client:   &http.Client{Timeout: timeout},
		breaker:  retry.NewBreaker(retry.DefaultBreakerConfig()),
		policy:   retry.DefaultPolicy(),
		codec:    codec,
		pricing:  pricing,
		fxRate:   fxRate,
		local:    local,
		log:      log.With(provider),
	}
}

func (e *httpEngine) Name() string  { return e.modelRef }
func (e *httpEngine) IsLocal() bool { return e.local }

// CountTokens is a cheap approximation (~4 bytes per token); adapters that
// can call a provider-native tokenizer override it.
func (e *httpEngine) CountTokens(text string) int {
	n := len(text) / 4
	if n == 0 && text != "" {
		n = 1
	}
	return n
}

func (e *httpEngine) generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error) {
	if !e.breaker.Allow() {
		return GenerateResponse{}, newError(e.provider, KindHTTP5xx, "circuit open, backend considered unavailable", nil)
	}

	var text string
	var tokensIn, tokensOut int

	retryErr := retry.Do(ctx, e.policy, func(attempt int) (error, retry.Outcome) {
		started := time.Now()
		emit := func(outcome AttemptOutcome, errKind string, in, out int, cost float64) {
			ReportAttempt(ctx, AttemptEvent{
				ModelRef:  e.modelRef,
				StartedAt: started,
				Elapsed:   time.Since(started),
				Outcome:   outcome,
				ErrorKind: errKind,
				TokensIn:  in,
				TokensOut: out,
				Cost:      cost,
			})
		}

		method, url, body, headers, err := e.codec.buildRequest(req)
		if err != nil {
			emit(AttemptTerminalFailure, "request-build-failed", 0, 0, 0)
			return err, retry.Outcome{Retryable: false}
		}

		httpReq, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			emit(AttemptTerminalFailure, "request-build-failed", 0, 0, 0)
			return err, retry.Outcome{Retryable: false}
		}
		for k, v := range headers {
			httpReq.Header.Set(k, v)
		}

		resp, err := e.client.Do(httpReq)
		if err != nil {
			emit(AttemptTransientFailure, string(KindTCPTimeout), 0, 0, 0)
			return newError(e.provider, KindTCPTimeout, "request failed", err), retry.Outcome{Retryable: true}
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			outcome := AttemptTerminalFailure
			if attempt == 0 {
				outcome = AttemptTransientFailure
			}
			emit(outcome, string(KindMalformed), 0, 0, 0)
			return newError(e.provider, KindMalformed, "could not read response body", err), retry.Outcome{Retryable: attempt == 0}
		}

		if resp.StatusCode != http.StatusOK {
			retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
			classified := classifyStatus(e.provider, resp.StatusCode, retryAfter, string(respBody))
			outcome := AttemptTerminalFailure
			if classified.Retryable() {
				outcome = AttemptTransientFailure
			}
			emit(outcome, string(classified.Kind), 0, 0, 0)
			return classified, retry.Outcome{Retryable: classified.Retryable(), RetryAfter: classified.RetryAfter}
		}

		parsedText, in, out, err := e.codec.parseResponse(respBody)
		if err != nil {
			outcome := AttemptTerminalFailure
			if attempt == 0 {
				outcome = AttemptTransientFailure
			}
			emit(outcome, string(KindMalformed), 0, 0, 0)
			return newError(e.provider, KindMalformed, "could not parse response", err), retry.Outcome{Retryable: attempt == 0}
		}
		text, tokensIn, tokensOut = parsedText, in, out
		emit(AttemptSuccess, "", in, out, computeCost(in, out, e.pricing, e.fxRate))
		return nil, retry.Outcome{}
	})

	e.breaker.Record(retryErr)
	if retryErr != nil {
		return GenerateResponse{}, retryErr
	}

	cost := computeCost(tokensIn, tokensOut, e.pricing, e.fxRate)
	return GenerateResponse{
		Text:      text,
		ModelRef:  e.modelRef,
		TokensIn:  tokensIn,
		TokensOut: tokensOut,
		Cost:      cost,
	}, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := time.ParseDuration(header + "s"); err == nil {
		return secs
	}
	return 0
}
