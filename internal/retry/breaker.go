package retry

import (
	"sync"
	"time"
)

// BreakerState is the circuit breaker's current mode.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

// Breaker prevents repeatedly hammering a backend that is consistently
// failing. Each backend adapter's HTTP engine owns one Breaker.
type Breaker struct {
	mu sync.Mutex

	maxFailures      int
	resetTimeout     time.Duration
	halfOpenAttempts int

	state           BreakerState
	failures        int
	lastFailureTime time.Time
	halfOpenCount   int
}

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	MaxFailures      int
	ResetTimeout     time.Duration
	HalfOpenAttempts int
}

// DefaultBreakerConfig returns sane defaults for a backend adapter.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures:      5,
		ResetTimeout:     60 * time.Second,
		HalfOpenAttempts: 3,
	}
}

// NewBreaker creates a Breaker in the closed state.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg = DefaultBreakerConfig()
	}
	return &Breaker{
		maxFailures:      cfg.MaxFailures,
		resetTimeout:     cfg.ResetTimeout,
		halfOpenAttempts: cfg.HalfOpenAttempts,
		state:            BreakerClosed,
	}
}

// Allow reports whether a request should be let through right now.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if time.Since(b.lastFailureTime) > b.resetTimeout {
			b.state = BreakerHalfOpen
			b.halfOpenCount = 0
			return true
		}
		return false
	case BreakerHalfOpen:
		if b.halfOpenCount < b.halfOpenAttempts {
			b.halfOpenCount++
			return true
		}
		return false
	}
	return false
}

// Record reports the outcome of a request let through by Allow.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.failures = 0
		if b.state == BreakerHalfOpen {
			b.state = BreakerClosed
		}
		return
	}

	b.failures++
	b.lastFailureTime = time.Now()
	if b.failures >= b.maxFailures {
		b.state = BreakerOpen
	}
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the breaker back to closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
	b.halfOpenCount = 0
}
