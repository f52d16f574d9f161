// Package resilience guards calls to external collaborators (catalog API,
// asset host) with a circuit breaker and exponential-backoff retries.
package resilience

import (
	"errors"
	"sync/atomic"
	"time"
)

// ErrCircuitOpen is returned by Allow while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState represents the state of a circuit breaker.
type CircuitState int32

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	// MaxErrors is the number of consecutive errors before opening.
	MaxErrors int

	// ResetTimeout is how long the breaker stays open before probing.
	ResetTimeout time.Duration

	// SuccessThreshold is the number of half-open successes needed to close.
	SuccessThreshold int

	// OnStateChange is called when the state changes.
	OnStateChange func(from, to CircuitState)
}

// DefaultBreakerConfig returns sensible defaults.
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		MaxErrors:        5,
		ResetTimeout:     30 * time.Second,
		SuccessThreshold: 2,
	}
}

// Breaker implements the circuit breaker pattern.
type Breaker struct {
	config *BreakerConfig

	state        atomic.Int32
	errorCount   atomic.Int32
	successCount atomic.Int32
	lastError    atomic.Int64 // unix nanos
}

// NewBreaker creates a breaker. A nil config uses the defaults.
func NewBreaker(config *BreakerConfig) *Breaker {
	if config == nil {
		config = DefaultBreakerConfig()
	}
	b := &Breaker{config: config}
	b.state.Store(int32(CircuitClosed))
	return b
}

// State returns the current circuit state.
func (b *Breaker) State() CircuitState {
	return CircuitState(b.state.Load())
}

// Allow returns nil when a call may proceed.
func (b *Breaker) Allow() error {
	if b.State() != CircuitOpen {
		return nil
	}
	if time.Since(time.Unix(0, b.lastError.Load())) > b.config.ResetTimeout {
		b.setState(CircuitHalfOpen)
		return nil
	}
	return ErrCircuitOpen
}

// RecordSuccess records a successful call.
func (b *Breaker) RecordSuccess() {
	switch b.State() {
	case CircuitHalfOpen:
		if int(b.successCount.Add(1)) >= b.config.SuccessThreshold {
			b.setState(CircuitClosed)
			b.successCount.Store(0)
			b.errorCount.Store(0)
		}
	default:
		b.errorCount.Store(0)
	}
}

// RecordError records a failed call.
func (b *Breaker) RecordError() {
	b.lastError.Store(time.Now().UnixNano())

	switch b.State() {
	case CircuitClosed:
		if int(b.errorCount.Add(1)) >= b.config.MaxErrors {
			b.setState(CircuitOpen)
		}
	case CircuitHalfOpen:
		b.setState(CircuitOpen)
		b.successCount.Store(0)
	}
}

// Do runs fn through the breaker, recording its outcome.
func (b *Breaker) Do(fn func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		b.RecordError()
		return err
	}
	b.RecordSuccess()
	return nil
}

// Reset closes the breaker.
func (b *Breaker) Reset() {
	b.setState(CircuitClosed)
	b.errorCount.Store(0)
	b.successCount.Store(0)
}

func (b *Breaker) setState(next CircuitState) {
	prev := CircuitState(b.state.Swap(int32(next)))
	if b.config.OnStateChange != nil && prev != next {
		b.config.OnStateChange(prev, next)
	}
}
