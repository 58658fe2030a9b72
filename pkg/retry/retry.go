// Package retry provides bounded retry logic shared by every polling
// call site: fixed-interval readiness loops and backoff for transient
// HTTP failures.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryableError wraps an error to indicate it can be retried
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var retryableErr *RetryableError
	return errors.As(err, &retryableErr)
}

// NewRetryableError wraps an error as retryable
func NewRetryableError(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// Config holds retry configuration
type Config struct {
	// MaxRetries is the maximum number of retry attempts (0 = no retries)
	MaxRetries int

	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration

	// MaxDelay is the maximum delay between retries
	MaxDelay time.Duration

	// Multiplier is the factor by which the delay increases after each
	// retry (1.0 = fixed interval)
	Multiplier float64

	// Jitter adds randomness to delays to prevent thundering herd
	Jitter bool

	// JitterFactor is the maximum jitter as a fraction of delay (0.0 to 1.0)
	JitterFactor float64

	// RetryIf is an optional function to determine if an error should be
	// retried. If nil, all errors are retried (up to MaxRetries)
	RetryIf func(error) bool

	// OnRetry is called before each retry attempt
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Budget returns the worst-case wall-clock time a Retrier with this
// config can spend sleeping. Callers derive context deadlines from it
// so a polling loop can never outlive attempts x interval.
func (c Config) Budget() time.Duration {
	if c.Multiplier <= 1.0 {
		return time.Duration(c.MaxRetries) * c.InitialDelay
	}
	var total time.Duration
	delay := float64(c.InitialDelay)
	for i := 0; i < c.MaxRetries; i++ {
		if delay > float64(c.MaxDelay) {
			delay = float64(c.MaxDelay)
		}
		total += time.Duration(delay)
		delay *= c.Multiplier
	}
	return total
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
		JitterFactor: 0.3,
	}
}

// FixedConfig returns a Config polling at a fixed interval for a
// bounded number of attempts, the shape used for readiness probing
// against eventually-consistent infrastructure.
func FixedConfig(attempts int, interval time.Duration) Config {
	if attempts < 1 {
		attempts = 1
	}
	return Config{
		MaxRetries:   attempts - 1,
		InitialDelay: interval,
		MaxDelay:     interval,
		Multiplier:   1.0,
	}
}

// QuickConfig returns a Config for fast operations
func QuickConfig() Config {
	return Config{
		MaxRetries:   2,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
		JitterFactor: 0.1,
	}
}

// Retrier handles retry logic
type Retrier struct {
	config Config
	rng    *rand.Rand
}

// New creates a new Retrier with the given config
func New(config Config) *Retrier {
	return &Retrier{
		config: config,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Do executes the function with retry logic
func (r *Retrier) Do(fn func() error) error {
	return r.DoWithContext(context.Background(), fn)
}

// DoWithContext executes the function with retry logic and context
func (r *Retrier) DoWithContext(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		// Check context before attempting
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return fmt.Errorf("context cancelled after %d attempts: %w (last error: %v)", attempt, ctx.Err(), lastErr)
			}
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if !r.shouldRetry(err) {
			return err
		}

		if attempt >= r.config.MaxRetries {
			break
		}

		delay := r.calculateDelay(attempt)

		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt+1, err, delay)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled during retry wait: %w (last error: %v)", ctx.Err(), lastErr)
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", r.config.MaxRetries, lastErr)
}

// DoWithData executes a function that returns data with retry logic
func DoWithData[T any](r *Retrier, fn func() (T, error)) (T, error) {
	return DoWithDataContext(context.Background(), r, fn)
}

// DoWithDataContext executes a function that returns data with retry logic and context
func DoWithDataContext[T any](ctx context.Context, r *Retrier, fn func() (T, error)) (T, error) {
	var result T
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return result, fmt.Errorf("context cancelled after %d attempts: %w (last error: %v)", attempt, ctx.Err(), lastErr)
			}
			return result, ctx.Err()
		default:
		}

		var err error
		result, err = fn()
		if err == nil {
			return result, nil
		}

		lastErr = err

		if !r.shouldRetry(err) {
			return result, err
		}

		if attempt >= r.config.MaxRetries {
			break
		}

		delay := r.calculateDelay(attempt)

		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt+1, err, delay)
		}

		select {
		case <-ctx.Done():
			return result, fmt.Errorf("context cancelled during retry wait: %w (last error: %v)", ctx.Err(), lastErr)
		case <-time.After(delay):
		}
	}

	return result, fmt.Errorf("max retries (%d) exceeded: %w", r.config.MaxRetries, lastErr)
}

func (r *Retrier) shouldRetry(err error) bool {
	if r.config.RetryIf != nil {
		return r.config.RetryIf(err)
	}
	// By default, retry all errors
	return true
}

func (r *Retrier) calculateDelay(attempt int) time.Duration {
	delay := float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(attempt))

	if delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}

	if r.config.Jitter && r.config.JitterFactor > 0 {
		jitter := delay * r.config.JitterFactor * (r.rng.Float64()*2 - 1)
		delay += jitter
	}

	if delay < 0 {
		delay = 0
	}

	return time.Duration(delay)
}
