package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_OpensAfterErrors(t *testing.T) {
	b := NewBreaker(&BreakerConfig{MaxErrors: 3, ResetTimeout: time.Second, SuccessThreshold: 1})

	for i := 0; i < 3; i++ {
		b.RecordError()
	}

	assert.Equal(t, CircuitOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)
}

func TestBreaker_HalfOpenThenClosed(t *testing.T) {
	var transitions []string
	b := NewBreaker(&BreakerConfig{
		MaxErrors:        2,
		ResetTimeout:     20 * time.Millisecond,
		SuccessThreshold: 2,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	b.RecordError()
	b.RecordError()
	time.Sleep(40 * time.Millisecond)

	require.NoError(t, b.Allow())
	assert.Equal(t, CircuitHalfOpen, b.State())

	b.RecordSuccess()
	b.RecordSuccess()
	assert.Equal(t, CircuitClosed, b.State())
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestBreaker_ErrorInHalfOpenReopens(t *testing.T) {
	b := NewBreaker(&BreakerConfig{MaxErrors: 1, ResetTimeout: 10 * time.Millisecond, SuccessThreshold: 1})
	b.RecordError()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, b.Allow())

	b.RecordError()
	assert.Equal(t, CircuitOpen, b.State())
}

func TestBreaker_Do(t *testing.T) {
	b := NewBreaker(&BreakerConfig{MaxErrors: 1, ResetTimeout: time.Hour, SuccessThreshold: 1})
	boom := errors.New("boom")

	assert.ErrorIs(t, b.Do(func() error { return boom }), boom)
	called := false
	assert.ErrorIs(t, b.Do(func() error { called = true; return nil }), ErrCircuitOpen)
	assert.False(t, called)

	b.Reset()
	assert.NoError(t, b.Do(func() error { return nil }))
}

func TestRetry_SucceedsEventually(t *testing.T) {
	attempts := 0
	cfg := &RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, Multiplier: 1}

	got, err := Retry(context.Background(), cfg, func(ctx context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("flaky")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, attempts)
}

func TestRetry_GivesUp(t *testing.T) {
	cfg := &RetryConfig{MaxRetries: 1, InitialDelay: time.Millisecond, Multiplier: 1}
	boom := errors.New("boom")

	_, err := Retry(context.Background(), cfg, func(ctx context.Context) (int, error) {
		return 0, boom
	})

	assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
	assert.ErrorIs(t, err, boom)
}

func TestRetry_RetryIfStopsEarly(t *testing.T) {
	permanent := errors.New("404")
	attempts := 0
	cfg := &RetryConfig{MaxRetries: 5, InitialDelay: time.Millisecond, Multiplier: 1,
		RetryIf: func(err error) bool { return !errors.Is(err, permanent) }}

	_, err := Retry(context.Background(), cfg, func(ctx context.Context) (int, error) {
		attempts++
		return 0, permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, attempts)
}

func TestBackoff_Capped(t *testing.T) {
	cfg := &RetryConfig{InitialDelay: time.Second, MaxDelay: 3 * time.Second, Multiplier: 10}
	assert.Equal(t, time.Second, Backoff(0, cfg))
	assert.Equal(t, 3*time.Second, Backoff(4, cfg))
}
