package retry

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// BackoffConfig contains configuration for exponential backoff
type BackoffConfig struct {
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	Multiplier   float64       `json:"multiplier"`
	MaxAttempts  int           `json:"max_attempts"`
	Jitter       bool          `json:"jitter"`
}

// DefaultBackoffConfig returns a sensible default configuration
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		MaxAttempts:  5,
		Jitter:       true,
	}
}

// Backoff implements exponential backoff with optional jitter
type Backoff struct {
	config BackoffConfig
}

// NewBackoff creates a new exponential backoff instance
func NewBackoff(config BackoffConfig) *Backoff {
	return &Backoff{config: config}
}

// Retry executes the operation with exponential backoff retry logic
func (b *Backoff) Retry(ctx context.Context, operation func() error) error {
	return b.RetryWithPredicate(ctx, operation, func(error) bool { return true })
}

// RetryWithPredicate executes the operation with exponential backoff, using
// a predicate to decide whether an error is worth retrying.
func (b *Backoff) RetryWithPredicate(ctx context.Context, operation func() error, isRetryable func(error) bool) error {
	var lastErr error

	for attempt := 1; attempt <= b.config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := operation()
		if err == nil {
			return nil
		}

		lastErr = err

		if !isRetryable(err) {
			return err
		}

		// Don't wait after the last attempt
		if attempt == b.config.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.delay(attempt)):
		}
	}

	return lastErr
}

// delay computes the backoff for the given attempt, capped at MaxDelay,
// with +/-25% jitter when enabled.
func (b *Backoff) delay(attempt int) time.Duration {
	d := float64(b.config.InitialDelay)
	for i := 1; i < attempt; i++ {
		d *= b.config.Multiplier
	}
	if d > float64(b.config.MaxDelay) {
		d = float64(b.config.MaxDelay)
	}

	if b.config.Jitter {
		jitter := d * 0.25
		d += (secureFloat64() - 0.5) * 2 * jitter
		if d < 0 {
			d = float64(b.config.InitialDelay)
		}
		if d > float64(b.config.MaxDelay) {
			d = float64(b.config.MaxDelay)
		}
	}

	return time.Duration(d)
}

// NextDelay returns the delay that would be used for the given attempt.
func (b *Backoff) NextDelay(attempt int) time.Duration {
	return b.delay(attempt)
}

// secureFloat64 generates a random float64 in [0, 1) from crypto/rand.
func secureFloat64() float64 {
	max := big.NewInt(0).SetUint64(math.MaxUint64)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		// Extremely unlikely; fall back to a time-derived value.
		return float64(time.Now().UnixNano()%1000000) / 1000000.0
	}
	return float64(n.Uint64()) / float64(math.MaxUint64)
}
