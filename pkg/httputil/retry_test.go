package httputil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/urdash/pkg/logger"
)

var errFlaky = errors.New("connection refused")

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	got, err := Retry(context.Background(), RetryPolicy{MaxAttempts: 10, Interval: time.Millisecond}, logger.Nop(),
		func(ctx context.Context, n int) Result[string] {
			calls++
			return Succeeded("ok")
		})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 1, calls)
}

func TestRetry_RecoversAfterTransientFailures(t *testing.T) {
	calls := 0
	got, err := Retry(context.Background(), RetryPolicy{MaxAttempts: 10, Interval: time.Millisecond}, logger.Nop(),
		func(ctx context.Context, n int) Result[int] {
			calls++
			if n < 3 {
				return RetryableFailure[int](errFlaky)
			}
			return Succeeded(n)
		})

	require.NoError(t, err)
	assert.Equal(t, 3, got)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustsBudget(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), RetryPolicy{MaxAttempts: 10, Interval: time.Millisecond}, logger.Nop(),
		func(ctx context.Context, n int) Result[int] {
			calls++
			return RetryableFailure[int](errFlaky)
		})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 10, calls)
}

func TestRetry_FatalStopsImmediately(t *testing.T) {
	fatal := errors.New("bad request url")
	calls := 0
	_, err := Retry(context.Background(), RetryPolicy{MaxAttempts: 10, Interval: time.Millisecond}, logger.Nop(),
		func(ctx context.Context, n int) Result[int] {
			calls++
			return FatalFailure[int](fatal)
		})

	assert.ErrorIs(t, err, fatal)
	assert.NotErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 1, calls)
}

func TestRetry_CancelledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan error, 1)
	go func() {
		_, err := Retry(ctx, RetryPolicy{MaxAttempts: 10, Interval: time.Hour}, logger.Nop(),
			func(ctx context.Context, n int) Result[int] {
				calls++
				return RetryableFailure[int](errFlaky)
			})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(2 * time.Second):
		t.Fatal("Retry did not return after cancellation")
	}
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "success", Success.String())
	assert.Equal(t, "retryable", Retryable.String())
	assert.Equal(t, "fatal", Fatal.String())
}
