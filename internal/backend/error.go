package backend

import (
	"fmt"
	"time"
)

// ErrorKind classifies a backend failure for retry and surfacing decisions.
type ErrorKind string

const (
	KindConnectionRefused ErrorKind = "connection-refused"
	KindDNSFailure        ErrorKind = "dns-failure"
	KindTCPTimeout        ErrorKind = "tcp-timeout"
	KindHTTP5xx           ErrorKind = "http-5xx"
	KindRateLimited       ErrorKind = "http-429"
	KindHTTP4xx           ErrorKind = "http-4xx"
	KindAuth              ErrorKind = "http-401-403"
	KindMalformed         ErrorKind = "malformed-response"
	KindModelNotLoaded    ErrorKind = "model-not-loaded"
	KindContextTooLarge   ErrorKind = "context-too-large"
	KindDeadlineExceeded  ErrorKind = "deadline-exceeded"
)

// retryableKinds is the fixed retry policy from the error handling design:
// most transport and server failures are retried, credential and shape
// failures are not.
var retryableKinds = map[ErrorKind]bool{
	KindConnectionRefused: true,
	KindDNSFailure:        true,
	KindTCPTimeout:        true,
	KindHTTP5xx:           true,
	KindRateLimited:       true,
}

// Error is the error type returned by every adapter. It never loses the
// provider's diagnostic text, so a redacted log line can still show what
// happened.
type Error struct {
	Kind       ErrorKind
	Provider   string
	Message    string
	RetryAfter time.Duration
	Inner      error
}

func (e *Error) Error() string {
	if e.Inner != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Inner)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *Error) Unwrap() error { return e.Inner }

// Retryable reports whether the error's kind permits a retry within the
// same attempt loop. malformed-response is retryable only on the first
// attempt; the caller enforces that by checking attempt number itself.
func (e *Error) Retryable() bool { return retryableKinds[e.Kind] }

func newError(provider string, kind ErrorKind, msg string, inner error) *Error {
	return &Error{Provider: provider, Kind: kind, Message: msg, Inner: inner}
}

// classifyStatus maps an HTTP status code and provider to an ErrorKind,
// following the error handling design's fixed table.
func classifyStatus(provider string, status int, retryAfter time.Duration, body string) *Error {
	switch {
	case status == 429:
		return &Error{Provider: provider, Kind: KindRateLimited, Message: "rate limited", RetryAfter: retryAfter}
	case status == 401 || status == 403:
		return newError(provider, KindAuth, "authentication rejected", nil)
	case status >= 500:
		return newError(provider, KindHTTP5xx, fmt.Sprintf("server error (%d): %s", status, body), nil)
	case status >= 400:
		return newError(provider, KindHTTP4xx, fmt.Sprintf("request rejected (%d): %s", status, body), nil)
	default:
		return newError(provider, KindMalformed, fmt.Sprintf("unexpected status %d: %s", status, body), nil)
	}
}
