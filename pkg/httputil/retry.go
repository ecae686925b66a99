package httputil

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/urdash/pkg/logger"
)

// ErrRetriesExhausted is returned when every attempt of a retry budget failed
var ErrRetriesExhausted = errors.New("retries exhausted")

// Outcome classifies a single attempt
type Outcome int

const (
	// Success carries a value; retrying stops
	Success Outcome = iota
	// Retryable is a transient failure (network, 5xx, malformed body)
	Retryable
	// Fatal stops retrying immediately
	Fatal
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Retryable:
		return "retryable"
	case Fatal:
		return "fatal"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is the explicit outcome of one attempt
type Result[T any] struct {
	Value   T
	Outcome Outcome
	Err     error
}

// Succeeded wraps a successful value
func Succeeded[T any](v T) Result[T] {
	return Result[T]{Value: v, Outcome: Success}
}

// RetryableFailure marks a transient failure
func RetryableFailure[T any](err error) Result[T] {
	return Result[T]{Outcome: Retryable, Err: err}
}

// FatalFailure marks a failure that retrying cannot fix
func FatalFailure[T any](err error) Result[T] {
	return Result[T]{Outcome: Fatal, Err: err}
}

// RetryPolicy is a fixed-interval retry budget. There is no backoff growth.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
}

// Retry runs attempt until it succeeds, fails fatally, the budget is spent
// or ctx is cancelled. Attempts are numbered from 1.
func Retry[T any](ctx context.Context, policy RetryPolicy, log *logger.Logger, attempt func(ctx context.Context, n int) Result[T]) (T, error) {
	var zero T

	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for n := 1; n <= maxAttempts; n++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		res := attempt(ctx, n)
		switch res.Outcome {
		case Success:
			if n > 1 {
				log.WithField("attempt", n).Info("Succeeded after retry")
			}
			return res.Value, nil
		case Fatal:
			return zero, res.Err
		}

		lastErr = res.Err
		log.WithFields(map[string]interface{}{
			"attempt":      n,
			"max_attempts": maxAttempts,
			"error":        fmt.Sprint(res.Err),
		}).Warn("Attempt failed")

		if n == maxAttempts {
			break
		}

		if err := Sleep(ctx, policy.Interval); err != nil {
			return zero, err
		}
	}

	return zero, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, maxAttempts, lastErr)
}

// Sleep blocks for d or until ctx is done, whichever comes first
func Sleep(ctx context.Context, d time.Duration) error {
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
