package registry

import (
	"sync"
	"sync/atomic"
	"time"
)

// BreakerState is one of CLOSED/OPEN/HALF_OPEN.
type BreakerState string

const (
	StateClosed   BreakerState = "CLOSED"
	StateOpen     BreakerState = "OPEN"
	StateHalfOpen BreakerState = "HALF_OPEN"
)

// BreakerConfig tunes a CircuitBreaker. Zero values fall back to the
// defaults below.
type BreakerConfig struct {
	MaxFailures  int
	RecoveryTime time.Duration
	HalfOpenMax  int
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.MaxFailures == 0 {
		c.MaxFailures = 5
	}
	if c.RecoveryTime == 0 {
		c.RecoveryTime = 30 * time.Second
	}
	if c.HalfOpenMax == 0 {
		c.HalfOpenMax = 3
	}
	return c
}

// CircuitBreaker protects a registered service from being routed to
// while it is unhealthy, grounded on itsneelabh-gomind's
// TelemetryCircuitBreaker (telemetry/circuit.go): atomic state with a
// mutex-guarded transition, half-open probing bounded by HalfOpenMax.
type CircuitBreaker struct {
	cfg BreakerConfig

	state           atomic.Value // BreakerState
	failures        atomic.Int64
	successes       atomic.Int64
	lastFailureTime atomic.Value // time.Time

	mu sync.Mutex
}

// NewCircuitBreaker builds a breaker starting in CLOSED state.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{cfg: cfg.withDefaults()}
	cb.state.Store(StateClosed)
	cb.lastFailureTime.Store(time.Time{})
	return cb
}

// Allow reports whether a call should be routed through this service
// right now, transitioning OPEN -> HALF_OPEN once RecoveryTime has
// elapsed since the last failure.
func (cb *CircuitBreaker) Allow() bool {
	switch cb.State() {
	case StateOpen:
		last, _ := cb.lastFailureTime.Load().(time.Time)
		if !last.IsZero() && time.Since(last) > cb.cfg.RecoveryTime {
			cb.mu.Lock()
			if cb.state.Load().(BreakerState) == StateOpen {
				cb.state.Store(StateHalfOpen)
				cb.successes.Store(0)
			}
			cb.mu.Unlock()
			return true
		}
		return false
	case StateHalfOpen:
		return cb.successes.Load() < int64(cb.cfg.HalfOpenMax)
	default:
		return true
	}
}

// RecordSuccess closes the circuit once enough half-open probes
// succeed, or resets the failure counter when already closed.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.successes.Add(1)
	switch cb.State() {
	case StateHalfOpen:
		if cb.successes.Load() >= int64(cb.cfg.HalfOpenMax) {
			cb.mu.Lock()
			if cb.state.Load().(BreakerState) == StateHalfOpen {
				cb.state.Store(StateClosed)
				cb.failures.Store(0)
			}
			cb.mu.Unlock()
		}
	case StateClosed:
		cb.failures.Store(0)
	}
}

// RecordFailure opens the circuit once MaxFailures consecutive
// failures accumulate (or immediately, from HALF_OPEN).
func (cb *CircuitBreaker) RecordFailure() {
	cb.lastFailureTime.Store(time.Now())
	if cb.State() == StateHalfOpen {
		cb.mu.Lock()
		cb.state.Store(StateOpen)
		cb.mu.Unlock()
		return
	}
	failures := cb.failures.Add(1)
	if failures >= int64(cb.cfg.MaxFailures) {
		cb.mu.Lock()
		if cb.state.Load().(BreakerState) != StateOpen {
			cb.state.Store(StateOpen)
			cb.successes.Store(0)
		}
		cb.mu.Unlock()
	}
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() BreakerState {
	return cb.state.Load().(BreakerState)
}
