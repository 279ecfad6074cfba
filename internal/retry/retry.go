package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/amishk599/leadradar/internal/model"
)

// Policy controls how an external call is retried.
type Policy struct {
	// MaxRetries is the number of additional attempts after the first failure.
	MaxRetries int
	// BaseDelay is the delay before the first retry, doubled on each subsequent retry.
	BaseDelay time.Duration
	// AttemptTimeout bounds each attempt; zero means no per-attempt timeout.
	AttemptTimeout time.Duration
}

// Do calls fn until it succeeds, fails with a non-retryable error, or the
// retries are exhausted. It returns the number of attempts made. Cancelling
// ctx stops retrying; an attempt hitting AttemptTimeout is retried.
func Do[T any](ctx context.Context, p Policy, logger *slog.Logger, fn func(ctx context.Context) (T, error)) (T, int, error) {
	var zero T
	var lastErr error

	for attempt := 1; ; attempt++ {
		v, err := runAttempt(ctx, p.AttemptTimeout, fn)
		if err == nil {
			return v, attempt, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, attempt, fmt.Errorf("retry cancelled: %w", ctx.Err())
		}
		if !isRetryable(err) || attempt > p.MaxRetries {
			return zero, attempt, lastErr
		}

		delay := backoffDelay(p.BaseDelay, attempt, lastErr)
		logger.Warn("retrying after transient error",
			"attempt", attempt,
			"max_retries", p.MaxRetries,
			"delay", delay,
			"error", lastErr,
		)

		select {
		case <-ctx.Done():
			return zero, attempt, fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}
	}
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	v, err := fn(attemptCtx)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return v, fmt.Errorf("attempt timed out after %v: %w", timeout, err)
	}
	return v, err
}

// backoffDelay computes the delay for a given attempt with ±30% jitter.
// If the error includes a Retry-After duration (HTTP 429), that takes precedence.
func backoffDelay(base time.Duration, attempt int, err error) time.Duration {
	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
		return httpErr.RetryAfter
	}

	// Exponential: base * 2^(attempt-1)
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
	}

	jitter := float64(delay) * 0.3
	return time.Duration(float64(delay) + (rand.Float64()*2-1)*jitter)
}

// isRetryable returns true if the error represents a transient failure worth
// retrying. The caller has already ruled out cancellation of the parent context,
// so a deadline here is a timed-out attempt.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, model.ErrUnprocessable) {
		return false
	}
	if errors.Is(err, model.ErrMalformedResponse) {
		return true
	}

	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) {
		// 429 Too Many Requests and 5xx are retryable, any other status is not.
		return httpErr.StatusCode == 429 || httpErr.StatusCode >= 500
	}

	// Network, DNS, timeouts.
	return true
}
