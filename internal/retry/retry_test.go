package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSucceedsWithoutRetry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DefaultPolicy(), func(attempt int) (error, Outcome) {
		calls++
		return nil, Outcome{}
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesThenSucceeds(t *testing.T) {
	policy := Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2, Jitter: false}
	calls := 0
	err := Do(context.Background(), policy, func(attempt int) (error, Outcome) {
		calls++
		if calls < 3 {
			return errors.New("transient"), Outcome{Retryable: true}
		}
		return nil, Outcome{}
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoAbortsOnNonRetryable(t *testing.T) {
	policy := Policy{MaxAttempts: 5, InitialDelay: time.Millisecond}
	calls := 0
	wantErr := errors.New("auth failure")
	err := Do(context.Background(), policy, func(attempt int) (error, Outcome) {
		calls++
		return wantErr, Outcome{Retryable: false}
	})
	require.Error(t, err)
	assert.Equal(t, wantErr, err)
	assert.Equal(t, 1, calls)
}

func TestDoExhaustsRetriesAndPreservesLastError(t *testing.T) {
	policy := Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
	calls := 0
	err := Do(context.Background(), policy, func(attempt int) (error, Outcome) {
		calls++
		return errors.New("still failing"), Outcome{Retryable: true}
	})
	require.Error(t, err)
	assert.Equal(t, "still failing", err.Error())
	assert.Equal(t, 3, calls)
}

func TestDoHonorsRetryAfter(t *testing.T) {
	policy := Policy{MaxAttempts: 2, InitialDelay: time.Millisecond}
	start := time.Now()
	err := Do(context.Background(), policy, func(attempt int) (error, Outcome) {
		if attempt == 0 {
			return errors.New("rate limited"), Outcome{Retryable: true, RetryAfter: 50 * time.Millisecond}
		}
		return nil, Outcome{}
	})
	elapsed := time.Since(start)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, 45*time.Millisecond)
}

func TestDoRespectsContextCancellation(t *testing.T) {
	policy := Policy{MaxAttempts: 5, InitialDelay: 50 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := Do(ctx, policy, func(attempt int) (error, Outcome) {
		return errors.New("transient"), Outcome{Retryable: true}
	})
	require.Error(t, err)
}

func TestBreakerOpensAfterMaxFailures(t *testing.T) {
	b := NewBreaker(BreakerConfig{MaxFailures: 2, ResetTimeout: 20 * time.Millisecond, HalfOpenAttempts: 1})
	assert.True(t, b.Allow())
	b.Record(errors.New("fail"))
	assert.True(t, b.Allow())
	b.Record(errors.New("fail"))
	assert.Equal(t, BreakerOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreakerHalfOpenRecovers(t *testing.T) {
	b := NewBreaker(BreakerConfig{MaxFailures: 1, ResetTimeout: 5 * time.Millisecond, HalfOpenAttempts: 1})
	b.Record(errors.New("fail"))
	require.Equal(t, BreakerOpen, b.State())

	time.Sleep(10 * time.Millisecond)
	assert.True(t, b.Allow())
	b.Record(nil)
	assert.Equal(t, BreakerClosed, b.State())
}
