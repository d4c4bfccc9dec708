// Package resilience provides the circuit breakers guarding the remote
// inventory endpoint.
package resilience

import (
	"context"
	"sync"
	"time"

	apperrors "restock-monitor/internal/errors"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"    // Normal operation
	CircuitOpen     CircuitState = "OPEN"      // Failing, rejecting requests
	CircuitHalfOpen CircuitState = "HALF_OPEN" // Testing if service recovered
)

// CircuitBreakerConfig holds circuit breaker configuration.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening
	// the circuit. Zero disables the breaker.
	FailureThreshold int
	// SuccessThreshold is the number of successes in half-open state to close
	SuccessThreshold int
	// Timeout is how long to wait before transitioning from open to half-open
	Timeout time.Duration
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 1,
		Timeout:          30 * time.Minute,
	}
}

// CircuitBreaker implements the circuit breaker pattern. It never retries;
// an open circuit simply rejects calls until Timeout has elapsed.
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig
	now    func() time.Time

	mu              sync.RWMutex
	state           CircuitState
	failures        int
	successes       int
	lastFailureTime time.Time
	lastStateChange time.Time

	totalRequests  int64
	totalFailures  int64
	totalSuccesses int64
	totalRejected  int64
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(name string, config CircuitBreakerConfig) *CircuitBreaker {
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	return &CircuitBreaker{
		name:            name,
		config:          config,
		now:             time.Now,
		state:           CircuitClosed,
		lastStateChange: time.Now(),
	}
}

// ErrCircuitOpen is returned when the circuit is open.
var ErrCircuitOpen = apperrors.ErrCircuitOpen

// Execute runs fn with circuit breaker protection.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := ExecuteWithResult(cb, ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// ExecuteWithResult runs a function that returns a result with circuit breaker protection.
func ExecuteWithResult[T any](cb *CircuitBreaker, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if err := cb.allowRequest(); err != nil {
		return zero, err
	}

	v, err := fn(ctx)
	if err != nil {
		cb.recordFailure()
		return zero, err
	}
	cb.recordSuccess()
	return v, nil
}

func (cb *CircuitBreaker) allowRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalRequests++
	if cb.config.FailureThreshold <= 0 {
		return nil
	}

	switch cb.state {
	case CircuitOpen:
		if cb.now().Sub(cb.lastFailureTime) > cb.config.Timeout {
			cb.transitionTo(CircuitHalfOpen)
			return nil
		}
		cb.totalRejected++
		return ErrCircuitOpen
	default:
		return nil
	}
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
	cb.lastFailureTime = cb.now()

	if cb.config.FailureThreshold <= 0 {
		return
	}

	switch cb.state {
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.transitionTo(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.transitionTo(CircuitOpen)
	}
}

func (cb *CircuitBreaker) transitionTo(state CircuitState) {
	cb.state = state
	cb.lastStateChange = cb.now()
	cb.failures = 0
	cb.successes = 0
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Name returns the circuit breaker name.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Stats returns circuit breaker statistics.
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
		CurrentFailures: cb.failures,
		LastFailureTime: cb.lastFailureTime,
		LastStateChange: cb.lastStateChange,
	}
}

// CircuitBreakerStats holds circuit breaker statistics.
type CircuitBreakerStats struct {
	Name            string       `json:"name"`
	State           CircuitState `json:"state"`
	TotalRequests   int64        `json:"total_requests"`
	TotalSuccesses  int64        `json:"total_successes"`
	TotalFailures   int64        `json:"total_failures"`
	TotalRejected   int64        `json:"total_rejected"`
	CurrentFailures int          `json:"current_failures"`
	LastFailureTime time.Time    `json:"last_failure_time"`
	LastStateChange time.Time    `json:"last_state_change"`
}

// FailureRate returns the failure rate as a percentage.
func (s CircuitBreakerStats) FailureRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.TotalFailures) / float64(s.TotalRequests) * 100
}
