// Package retry runs fallible operations under a bounded retry policy and paces
// per-venue work.
package retry

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/venue-match-go/internal/constants"
	"github.com/kapu/venue-match-go/pkg/errors"
)

// Policy describes how often and how long to retry. Multiplier 1 (or 0) gives a fixed
// delay; larger values back off exponentially up to MaxDelay when that is set.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	// Retryable decides whether err is worth another attempt. Nil retries everything
	// except input and configuration errors.
	Retryable func(err error) bool
}

// DefaultPolicy is three attempts five seconds apart.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: constants.RetryConfig.MaxAttempts,
		Delay:       constants.RetryConfig.Delay,
		Multiplier:  constants.RetryConfig.Multiplier,
	}
}

// PlacesPolicy backs off exponentially for the places API.
func PlacesPolicy() Policy {
	return Policy{
		MaxAttempts: constants.PlacesRetryConfig.MaxAttempts,
		Delay:       constants.PlacesRetryConfig.BaseDelay,
		Multiplier:  constants.PlacesRetryConfig.Multiplier,
	}
}

// DelayFor returns the pause after the given zero-based failed attempt.
func (p Policy) DelayFor(attempt int) time.Duration {
	if p.Delay <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay := time.Duration(float64(p.Delay) * math.Pow(mult, float64(attempt)))
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

func (p Policy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return !errors.IsInput(err) && !errors.IsConfig(err)
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempts run out,
// or ctx is done. The last error is returned.
func Do(ctx context.Context, policy Policy, logger *zap.Logger, op string, fn func(ctx context.Context, attempt int) error) error {
	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if !policy.retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts-1 {
			break
		}

		delay := policy.DelayFor(attempt)
		logger.Warn("Attempt failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", attempts),
			zap.Duration("delay", delay),
			zap.Error(lastErr),
		)
		if err := sleep(ctx, delay); err != nil {
			return lastErr
		}
	}

	logger.Error("All attempts failed",
		zap.String("op", op),
		zap.Int("attempts", attempts),
		zap.Error(lastErr),
	)
	return lastErr
}

// DoValue is Do for functions that produce a value.
func DoValue[T any](ctx context.Context, policy Policy, logger *zap.Logger, op string, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var result T
	err := Do(ctx, policy, logger, op, func(ctx context.Context, attempt int) error {
		v, err := fn(ctx, attempt)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
