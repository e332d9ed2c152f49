package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errBoom = errors.New("connection refused")

func newTestBreaker(cfg BreakerConfig) (*Breaker, *time.Time) {
	now := time.Now()
	b := NewBreaker("test", cfg)
	b.now = func() time.Time { return now }
	return b, &now
}

func fail() error    { return errBoom }
func succeed() error { return nil }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{Threshold: 2, Cooldown: time.Second})

	assert.ErrorIs(t, b.Execute(fail), errBoom)
	assert.Equal(t, CircuitBreakerClosed, b.State())
	assert.ErrorIs(t, b.Execute(fail), errBoom)
	assert.Equal(t, CircuitBreakerOpen, b.State())

	called := false
	err := b.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{Threshold: 2, Cooldown: time.Second})

	_ = b.Execute(fail)
	_ = b.Execute(succeed)
	_ = b.Execute(fail)

	assert.Equal(t, CircuitBreakerClosed, b.State())
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	b, now := newTestBreaker(BreakerConfig{Threshold: 1, Cooldown: time.Second})
	_ = b.Execute(fail)
	assert.Equal(t, CircuitBreakerOpen, b.State())

	*now = now.Add(2 * time.Second)

	// failed probe reopens
	assert.ErrorIs(t, b.Execute(fail), errBoom)
	assert.Equal(t, CircuitBreakerOpen, b.State())
	assert.ErrorIs(t, b.Execute(succeed), ErrCircuitOpen)

	*now = now.Add(2 * time.Second)

	// successful probe closes
	assert.NoError(t, b.Execute(succeed))
	assert.Equal(t, CircuitBreakerClosed, b.State())
}

func TestBreaker_SingleProbeWhileHalfOpen(t *testing.T) {
	b, now := newTestBreaker(BreakerConfig{Threshold: 1, Cooldown: time.Second})
	_ = b.Execute(fail)
	*now = now.Add(2 * time.Second)

	err := b.Execute(func() error {
		// a concurrent caller arriving mid-probe is rejected
		assert.ErrorIs(t, b.Execute(succeed), ErrCircuitOpen)
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, CircuitBreakerClosed, b.State())
}

func TestBreaker_IgnoredErrorsDoNotTrip(t *testing.T) {
	errMissing := errors.New("missing")
	b, _ := newTestBreaker(BreakerConfig{
		Threshold: 1,
		IsFailure: func(err error) bool { return err != nil && !errors.Is(err, errMissing) },
	})

	assert.ErrorIs(t, b.Execute(func() error { return fmt.Errorf("user: %w", errMissing) }), errMissing)
	assert.Equal(t, CircuitBreakerClosed, b.State())
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, "timeout", classifyError(context.DeadlineExceeded))
	assert.Equal(t, "canceled", classifyError(context.Canceled))
	assert.Equal(t, "network", classifyError(errBoom))
	assert.Equal(t, "dns", classifyError(errors.New("lookup db: no such host")))
	assert.Equal(t, "unknown", classifyError(errors.New("syntax error")))
}
