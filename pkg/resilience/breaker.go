// Package resilience guards calls to flaky dependencies.
package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"callhub-backend/pkg/logger"
	"callhub-backend/pkg/metrics"
)

// CircuitBreakerState represents the state of the circuit breaker
type CircuitBreakerState string

const (
	CircuitBreakerClosed   CircuitBreakerState = "closed"
	CircuitBreakerHalfOpen CircuitBreakerState = "half_open"
	CircuitBreakerOpen     CircuitBreakerState = "open"
)

// ErrCircuitOpen is returned without running the operation while the breaker is open
var ErrCircuitOpen = errors.New("circuit breaker open")

// BreakerConfig tunes a Breaker
type BreakerConfig struct {
	// Threshold is the number of consecutive failures that opens the breaker
	Threshold int
	// Cooldown is how long the breaker stays open before letting one probe through
	Cooldown time.Duration
	// IsFailure decides whether an error counts against the breaker.
	// Nil counts every non-nil error.
	IsFailure func(error) bool
}

// Breaker is a consecutive-failure circuit breaker. While open it rejects
// calls immediately; after the cooldown a single probe decides whether it
// closes again.
type Breaker struct {
	name string
	cfg  BreakerConfig
	now  func() time.Time

	mu       sync.Mutex
	state    CircuitBreakerState
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a closed breaker
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 10 * time.Second
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return err != nil }
	}
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
	return &Breaker{
		name:  name,
		cfg:   cfg,
		now:   time.Now,
		state: CircuitBreakerClosed,
	}
}

// Execute runs fn unless the breaker is open
func (b *Breaker) Execute(fn func() error) error {
	if !b.allow() {
		metrics.CircuitBreakerRequestsTotal.WithLabelValues(b.name, "rejected").Inc()
		return ErrCircuitOpen
	}

	err := fn()
	b.record(err)
	return err
}

// State returns the current breaker state
func (b *Breaker) State() CircuitBreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitBreakerOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return false
		}
		b.setState(CircuitBreakerHalfOpen)
		b.probing = true
		return true
	case CircuitBreakerHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return true
	}
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.cfg.IsFailure(err) {
		metrics.CircuitBreakerRequestsTotal.WithLabelValues(b.name, "success").Inc()
		b.failures = 0
		b.probing = false
		if b.state != CircuitBreakerClosed {
			b.setState(CircuitBreakerClosed)
			logger.Info("Circuit breaker closed", zap.String("name", b.name))
		}
		return
	}

	metrics.CircuitBreakerRequestsTotal.WithLabelValues(b.name, "failure").Inc()
	metrics.CircuitBreakerErrorsTotal.WithLabelValues(b.name, classifyError(err)).Inc()

	b.failures++
	b.probing = false
	if b.state == CircuitBreakerHalfOpen || b.failures >= b.cfg.Threshold {
		if b.state != CircuitBreakerOpen {
			logger.Warn("Circuit breaker opened",
				zap.String("name", b.name),
				zap.Int("consecutive_failures", b.failures),
				zap.Error(err))
		}
		b.setState(CircuitBreakerOpen)
		b.openedAt = b.now()
	}
}

// setState updates the state and its gauge. Caller holds b.mu.
func (b *Breaker) setState(s CircuitBreakerState) {
	b.state = s
	var v float64
	switch s {
	case CircuitBreakerHalfOpen:
		v = 1
	case CircuitBreakerOpen:
		v = 2
	}
	metrics.CircuitBreakerState.WithLabelValues(b.name).Set(v)
}

// classifyError classifies errors for better metrics
func classifyError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}

	errMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errMsg, "timeout"):
		return "timeout"
	case strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "network unreachable"):
		return "network"
	case strings.Contains(errMsg, "no such host") || strings.Contains(errMsg, "dns"):
		return "dns"
	default:
		return "unknown"
	}
}
