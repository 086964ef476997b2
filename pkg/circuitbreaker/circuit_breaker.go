package circuitbreaker

import (
	"context"
	"sync"
	"time"

	"chatdesk/internal/constants"
	"chatdesk/internal/errors"

	"github.com/sirupsen/logrus"
)

// State represents the state of a circuit breaker
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker implements the circuit breaker pattern for external service calls
type CircuitBreaker struct {
	name             string
	maxFailures      uint32
	timeout          time.Duration
	halfOpenMaxCalls uint32

	mu              sync.RWMutex
	state           State
	failures        uint32
	lastFailureTime time.Time
	halfOpenCalls   uint32
	successCount    uint32
	requestCount    uint32

	logger *errors.Logger
}

// New creates a new circuit breaker
func New(name string, maxFailures uint32, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:             name,
		maxFailures:      maxFailures,
		timeout:          timeout,
		halfOpenMaxCalls: constants.CBHalfOpenMaxCalls,
		state:            StateClosed,
		logger:           errors.NewLogger(),
	}
}

// Execute wraps a function call with circuit breaker logic
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !cb.allowRequest() {
		return errors.New(errors.ErrCodeInternalError, "circuit breaker is open").
			WithContext("service", cb.name).
			WithUserMessage("Service is temporarily unavailable")
	}

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	if err != nil {
		cb.recordFailure()
		cb.logger.LogRetryableError(err, "Circuit breaker failure recorded", logrus.Fields{
			"service":     cb.name,
			"duration_ms": duration.Milliseconds(),
		})
	} else {
		cb.recordSuccess()
		cb.logger.WithContext(logrus.Fields{
			"service":     cb.name,
			"duration_ms": duration.Milliseconds(),
		}).Debug("Circuit breaker success recorded")
	}

	return err
}

// allowRequest checks if a request should be allowed based on circuit breaker state
func (cb *CircuitBreaker) allowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.lastFailureTime) > cb.timeout {
			cb.state = StateHalfOpen
			cb.halfOpenCalls = 0
			cb.logger.WithContext(logrus.Fields{
				"service": cb.name,
			}).Info("Circuit breaker transitioning to half-open")
			return true
		}
		return false
	case StateHalfOpen:
		return cb.halfOpenCalls < cb.halfOpenMaxCalls
	default:
		return false
	}
}

// recordFailure records a failure and potentially opens the circuit
func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.requestCount++
	cb.lastFailureTime = time.Now()

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.maxFailures {
			cb.state = StateOpen
			cb.logger.WithContext(logrus.Fields{
				"service":      cb.name,
				"failures":     cb.failures,
				"max_failures": cb.maxFailures,
			}).Warn("Circuit breaker opened due to failures")
		}
	case StateHalfOpen:
		cb.state = StateOpen
		cb.logger.WithContext(logrus.Fields{
			"service": cb.name,
		}).Warn("Circuit breaker reopened from half-open state")
	}
}

// recordSuccess records a success and potentially closes the circuit
func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.successCount++
	cb.requestCount++

	switch cb.state {
	case StateHalfOpen:
		cb.halfOpenCalls++
		if cb.halfOpenCalls >= cb.halfOpenMaxCalls {
			cb.state = StateClosed
			cb.failures = 0
			cb.logger.WithContext(logrus.Fields{
				"service": cb.name,
			}).Info("Circuit breaker closed after successful half-open tests")
		}
	case StateClosed:
		if cb.failures > 0 {
			cb.failures = 0
		}
	}
}

// GetState returns the current circuit breaker state
func (cb *CircuitBreaker) GetState() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// GetStats returns current circuit breaker statistics
func (cb *CircuitBreaker) GetStats() map[string]interface{} {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return map[string]interface{}{
		"name":         cb.name,
		"state":        cb.state.String(),
		"failures":     cb.failures,
		"successes":    cb.successCount,
		"requests":     cb.requestCount,
		"last_failure": cb.lastFailureTime,
	}
}

// Reset resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failures = 0
	cb.halfOpenCalls = 0
	cb.successCount = 0
	cb.requestCount = 0

	cb.logger.WithContext(logrus.Fields{
		"service": cb.name,
	}).Info("Circuit breaker manually reset")
}
