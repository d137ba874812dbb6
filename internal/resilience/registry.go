package resilience

import (
	"context"
	"sync"
	"time"
)

// CircuitBreakerRegistry hands out one circuit breaker per symbol, creating
// it lazily on first use so the scheduler doesn't need to know the
// watchlist up front.
type CircuitBreakerRegistry struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	config   CircuitBreakerConfig
}

// NewCircuitBreakerRegistry creates a registry where every symbol's breaker
// shares the given config.
func NewCircuitBreakerRegistry(config CircuitBreakerConfig) *CircuitBreakerRegistry {
	return &CircuitBreakerRegistry{
		breakers: make(map[string]*CircuitBreaker),
		config:   config,
	}
}

// Get returns the breaker for symbol, creating one on first use.
func (r *CircuitBreakerRegistry) Get(symbol string) *CircuitBreaker {
	r.mu.RLock()
	if cb, ok := r.breakers[symbol]; ok {
		r.mu.RUnlock()
		return cb
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[symbol]; ok {
		return cb
	}

	cb := NewCircuitBreaker(symbol, r.config)
	r.breakers[symbol] = cb
	return cb
}

// AllStats returns a snapshot of every symbol's breaker, showing which
// symbols are currently degraded.
func (r *CircuitBreakerRegistry) AllStats() []CircuitBreakerStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make([]CircuitBreakerStats, 0, len(r.breakers))
	for _, cb := range r.breakers {
		stats = append(stats, cb.Stats())
	}
	return stats
}

// RetryWithBackoff retries a candle fetch with exponential backoff before
// giving up, each attempt still passing through the symbol's circuit
// breaker via ExecuteWithCircuitBreaker.
type RetryWithBackoff struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        bool
}

// DefaultRetryWithBackoff returns the backoff schedule applied to a
// transient candle-fetch failure.
func DefaultRetryWithBackoff() RetryWithBackoff {
	return RetryWithBackoff{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
	}
}

// Execute runs fn, retrying on error with exponential backoff until
// MaxAttempts is exhausted or ctx is cancelled.
func (r RetryWithBackoff) Execute(ctx context.Context, fn func() error) error {
	var lastErr error
	delay := r.InitialDelay

	for attempt := 0; attempt < r.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := fn(); err != nil {
			lastErr = err

			if attempt < r.MaxAttempts-1 {
				sleepDuration := delay
				if r.Jitter {
					jitter := time.Duration(float64(delay) * 0.25)
					sleepDuration = delay + jitter/2
				}

				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(sleepDuration):
				}

				delay = time.Duration(float64(delay) * r.BackoffFactor)
				if delay > r.MaxDelay {
					delay = r.MaxDelay
				}
			}
		} else {
			return nil
		}
	}

	return lastErr
}

// RetryWithBackoffResult retries a value-returning candle fetch the same
// way Execute retries a plain error-returning call.
func RetryWithBackoffResult[T any](ctx context.Context, r RetryWithBackoff, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	delay := r.InitialDelay

	for attempt := 0; attempt < r.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		result, err := fn()
		if err != nil {
			lastErr = err

			if attempt < r.MaxAttempts-1 {
				sleepDuration := delay
				if r.Jitter {
					jitter := time.Duration(float64(delay) * 0.25)
					sleepDuration = delay + jitter/2
				}

				select {
				case <-ctx.Done():
					return zero, ctx.Err()
				case <-time.After(sleepDuration):
				}

				delay = time.Duration(float64(delay) * r.BackoffFactor)
				if delay > r.MaxDelay {
					delay = r.MaxDelay
				}
			}
		} else {
			return result, nil
		}
	}

	return zero, lastErr
}

// ExecuteWithCircuitBreaker combines the retry schedule with a symbol's
// circuit breaker: each retry attempt passes through cb, so a breaker that
// opens mid-retry stops further attempts immediately instead of waiting
// out the rest of the backoff schedule against a dead endpoint.
func (r RetryWithBackoff) ExecuteWithCircuitBreaker(ctx context.Context, cb *CircuitBreaker, fn func() error) error {
	retryCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var lastErr error
	err := r.Execute(retryCtx, func() error {
		lastErr = cb.Execute(ctx, fn)
		if lastErr != nil && cb.Stats().State == CircuitOpen {
			cancel()
		}
		return lastErr
	})
	if retryCtx.Err() != nil && ctx.Err() == nil {
		return lastErr
	}
	return err
}
