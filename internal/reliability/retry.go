package reliability

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

var (
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
	ErrRetryAborted       = errors.New("retry aborted")
)

// RetryConfig holds configuration for retry logic
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	Jitter         bool

	// OnRetry is called before each wait with the attempt that just failed
	OnRetry func(attempt int, err error, wait time.Duration)
}

// RetryFunc is a function that can be retried
type RetryFunc func(ctx context.Context) error

// permanentError marks an error that retrying cannot fix
type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so Retry returns it immediately
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

func (c *RetryConfig) applyDefaults() {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 100 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.Multiplier < 1 {
		c.Multiplier = 2.0
	}
}

// Retry calls fn until it succeeds, returns a non-retryable error, or
// MaxRetries retries have failed. Waits grow exponentially from
// InitialBackoff up to MaxBackoff.
func Retry(ctx context.Context, config RetryConfig, fn RetryFunc) error {
	config.applyDefaults()

	var lastErr error
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}
		if attempt == config.MaxRetries {
			break
		}

		wait := ExponentialBackoff(attempt, config.InitialBackoff, config.Multiplier, config.MaxBackoff)
		if config.Jitter {
			wait = addJitter(wait)
		}
		if config.OnRetry != nil {
			config.OnRetry(attempt+1, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %v", ErrRetryAborted, ctx.Err())
		case <-timer.C:
		}
	}

	return fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}

// isRetryable rejects context errors, permanent errors and an open breaker
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) {
		return false
	}
	return !IsPermanent(err)
}

// addJitter spreads d by ±20%
func addJitter(d time.Duration) time.Duration {
	spread := float64(d) * 0.4
	return time.Duration(float64(d) - spread/2 + rand.Float64()*spread)
}

// ExponentialBackoff returns initial*multiplier^attempt, capped at max
func ExponentialBackoff(attempt int, initial time.Duration, multiplier float64, max time.Duration) time.Duration {
	backoff := float64(initial) * math.Pow(multiplier, float64(attempt))
	if backoff > float64(max) {
		return max
	}
	return time.Duration(backoff)
}
