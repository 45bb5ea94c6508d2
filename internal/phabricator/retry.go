package phabricator

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// RetryFunc is a function that can be retried
type RetryFunc func() (*http.Response, error)

// RetryPolicy defines the retry behavior
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy returns a retry policy with sensible defaults
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
	}
}

// calculateBackoff calculates the backoff duration with exponential backoff and jitter
func (p *RetryPolicy) calculateBackoff(attempt int) time.Duration {
	// baseDelay * 2^attempt, capped at MaxDelay
	backoff := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if backoff > float64(p.MaxDelay) {
		backoff = float64(p.MaxDelay)
	}

	// Jitter between 0 and backoff/2 prevents synchronized retries
	jitter := rand.Float64() * (backoff / 2)
	backoff = backoff + jitter

	return time.Duration(backoff)
}

// ShouldRetry determines if an HTTP response should be retried
func ShouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		return IsRetryableError(err)
	}

	if resp == nil {
		return false
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return true
	}

	if resp.StatusCode >= 500 && resp.StatusCode < 600 {
		return true
	}

	return false
}

// RetryWithBackoff retries a function with exponential backoff
// It returns the last response and error encountered
func RetryWithBackoff(ctx context.Context, policy *RetryPolicy, fn RetryFunc) (*http.Response, error) {
	var lastResp *http.Response
	var lastErr error

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		resp, err := fn()

		if !ShouldRetry(resp, err) {
			return resp, err
		}

		lastResp = resp
		lastErr = err

		if attempt == policy.MaxRetries {
			break
		}

		backoff := policy.calculateBackoff(attempt)

		// Honor Retry-After on throttled responses
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			if after := retryAfter(resp.Header); after > backoff {
				backoff = after
			}
		}

		select {
		case <-ctx.Done():
			return lastResp, fmt.Errorf("retry canceled: %w", ctx.Err())
		case <-time.After(backoff):
		}
	}

	if lastErr != nil {
		return lastResp, fmt.Errorf("max retries exceeded: %w", lastErr)
	}

	if lastResp != nil {
		return lastResp, NewRetryableError(
			fmt.Sprintf("max retries exceeded (status: %d)", lastResp.StatusCode),
			nil,
		)
	}

	return nil, fmt.Errorf("max retries exceeded with no response")
}

func retryAfter(header http.Header) time.Duration {
	seconds, err := strconv.Atoi(header.Get("Retry-After"))
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds)*time.Second + time.Second
}

// CircuitBreaker tracks failures and can temporarily stop requests
type CircuitBreaker struct {
	maxFailures     int
	resetTimeout    time.Duration
	failureCount    int
	lastFailureTime time.Time
	state           CircuitState
}

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	// CircuitClosed means requests are allowed
	CircuitClosed CircuitState = iota
	// CircuitOpen means requests are blocked
	CircuitOpen
	// CircuitHalfOpen means testing if service recovered
	CircuitHalfOpen
)

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        CircuitClosed,
	}
}

// Allow checks if a request should be allowed through
func (cb *CircuitBreaker) Allow() bool {
	now := time.Now()

	switch cb.state {
	case CircuitClosed:
		return true

	case CircuitOpen:
		if now.Sub(cb.lastFailureTime) >= cb.resetTimeout {
			cb.state = CircuitHalfOpen
			return true
		}
		return false

	case CircuitHalfOpen:
		return true
	}

	return false
}

// RecordSuccess records a successful request
func (cb *CircuitBreaker) RecordSuccess() {
	cb.failureCount = 0
	cb.state = CircuitClosed
}

// RecordFailure records a failed request
func (cb *CircuitBreaker) RecordFailure() {
	cb.failureCount++
	cb.lastFailureTime = time.Now()

	if cb.failureCount >= cb.maxFailures {
		cb.state = CircuitOpen
	}
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() CircuitState {
	return cb.state
}
