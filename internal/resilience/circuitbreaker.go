// Package resilience isolates the scheduler's per-symbol candle fetches
// from each other: a broker outage on one symbol trips that symbol's own
// circuit breaker instead of burning retry budget against a dead endpoint
// and starving the rest of the watchlist's scan tick.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// CircuitState is the lifecycle state of a single symbol's circuit breaker.
type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"    // fetches pass through normally
	CircuitOpen     CircuitState = "OPEN"      // recent fetches tripped the threshold, rejecting
	CircuitHalfOpen CircuitState = "HALF_OPEN" // probing whether the broker has recovered
)

// CircuitBreakerConfig holds the thresholds a circuit breaker trips on.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failed fetches before
	// the breaker opens and starts rejecting.
	FailureThreshold int
	// SuccessThreshold is the number of successful probes in half-open
	// state required before the breaker closes again.
	SuccessThreshold int
	// Timeout is how long an open breaker waits before allowing a
	// half-open probe fetch through.
	Timeout time.Duration
	// MaxConcurrent caps in-flight fetches through this breaker (0 = unlimited).
	MaxConcurrent int
}

// DefaultCircuitBreakerConfig returns the thresholds the scheduler applies
// to every symbol's candle fetches.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
		MaxConcurrent:    0,
	}
}

// CircuitBreaker guards a single upstream dependency (one symbol's candle
// fetch, in this scanner) against repeatedly retrying a broker that is
// already down.
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig

	mu              sync.RWMutex
	state           CircuitState
	failures        int
	successes       int
	lastFailureTime time.Time
	lastStateChange time.Time
	concurrent      int

	totalRequests  int64
	totalFailures  int64
	totalSuccesses int64
	totalRejected  int64
	totalTimeouts  int64
}

// NewCircuitBreaker creates a breaker for the named dependency, starting closed.
func NewCircuitBreaker(name string, config CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		name:            name,
		config:          config,
		state:           CircuitClosed,
		lastStateChange: time.Now(),
	}
}

// ErrCircuitOpen is returned when a fetch is rejected because the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ErrTooManyConcurrent is returned when MaxConcurrent in-flight fetches is exceeded.
var ErrTooManyConcurrent = errors.New("too many concurrent requests")

// Execute runs fn with circuit breaker protection, rejecting immediately
// without calling fn if the breaker is open.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := cb.allowRequest(); err != nil {
		return err
	}

	cb.mu.Lock()
	cb.concurrent++
	cb.totalRequests++
	cb.mu.Unlock()

	defer func() {
		cb.mu.Lock()
		cb.concurrent--
		cb.mu.Unlock()
	}()

	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		if err != nil {
			cb.recordFailure()
			return err
		}
		cb.recordSuccess()
		return nil
	case <-ctx.Done():
		cb.mu.Lock()
		cb.totalTimeouts++
		cb.mu.Unlock()
		cb.recordFailure()
		return ctx.Err()
	}
}

// ExecuteWithResult runs a candle-fetching call that returns a value,
// with the same circuit breaker protection as Execute.
func ExecuteWithResult[T any](cb *CircuitBreaker, ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T

	if err := cb.allowRequest(); err != nil {
		return zero, err
	}

	cb.mu.Lock()
	cb.concurrent++
	cb.totalRequests++
	cb.mu.Unlock()

	defer func() {
		cb.mu.Lock()
		cb.concurrent--
		cb.mu.Unlock()
	}()

	type result struct {
		value T
		err   error
	}

	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{value: v, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			cb.recordFailure()
			return zero, r.err
		}
		cb.recordSuccess()
		return r.value, nil
	case <-ctx.Done():
		cb.mu.Lock()
		cb.totalTimeouts++
		cb.mu.Unlock()
		cb.recordFailure()
		return zero, ctx.Err()
	}
}

func (cb *CircuitBreaker) allowRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.config.MaxConcurrent > 0 && cb.concurrent >= cb.config.MaxConcurrent {
		cb.totalRejected++
		return ErrTooManyConcurrent
	}

	switch cb.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		if time.Since(cb.lastFailureTime) > cb.config.Timeout {
			cb.transitionTo(CircuitHalfOpen)
			return nil
		}
		cb.totalRejected++
		return ErrCircuitOpen
	case CircuitHalfOpen:
		return nil
	}

	return nil
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalSuccesses++

	switch cb.state {
	case CircuitHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.transitionTo(CircuitClosed)
		}
	case CircuitClosed:
		cb.failures = 0
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalFailures++
	cb.lastFailureTime = time.Now()

	switch cb.state {
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.transitionTo(CircuitOpen)
		}
	case CircuitHalfOpen:
		// a failed probe sends it straight back to open, bypassing closed
		cb.transitionTo(CircuitOpen)
	}
}

func (cb *CircuitBreaker) transitionTo(state CircuitState) {
	cb.state = state
	cb.lastStateChange = time.Now()
	cb.failures = 0
	cb.successes = 0
}

// Stats returns a snapshot of this breaker's counters.
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return CircuitBreakerStats{
		Name:            cb.name,
		State:           cb.state,
		TotalRequests:   cb.totalRequests,
		TotalSuccesses:  cb.totalSuccesses,
		TotalFailures:   cb.totalFailures,
		TotalRejected:   cb.totalRejected,
		TotalTimeouts:   cb.totalTimeouts,
		CurrentFailures: cb.failures,
		LastFailureTime: cb.lastFailureTime,
		LastStateChange: cb.lastStateChange,
		Concurrent:      cb.concurrent,
	}
}

// CircuitBreakerStats is a point-in-time snapshot of one breaker's counters,
// named by symbol so per-symbol health can be told apart.
type CircuitBreakerStats struct {
	Name            string
	State           CircuitState
	TotalRequests   int64
	TotalSuccesses  int64
	TotalFailures   int64
	TotalRejected   int64
	TotalTimeouts   int64
	CurrentFailures int
	LastFailureTime time.Time
	LastStateChange time.Time
	Concurrent      int
}

// FailureRate returns the failure rate as a percentage of total requests.
func (s CircuitBreakerStats) FailureRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.TotalFailures) / float64(s.TotalRequests) * 100
}
