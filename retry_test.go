package gentlify_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pointmatic/gentlify"
)

var errNonRetryable = errors.New("non-retryable")

func TestExecute_NonRetryablePredicateShortCircuits(t *testing.T) {
	th := gentlify.NewBuilder().
		WithRetry(gentlify.RetryConfig{
			MaxAttempts: 5,
			BaseDelay:   time.Millisecond,
			IsRetryable: func(err error) bool { return !errors.Is(err, errNonRetryable) },
		}).
		Build()

	attempts := 0
	_, err := th.Execute(context.Background(), func(ctx context.Context) (any, error) {
		attempts++
		return nil, errNonRetryable
	})

	assert.ErrorIs(t, err, errNonRetryable)
	assert.Equal(t, 1, attempts)
}

func TestExecute_SucceedsAfterRetries(t *testing.T) {
	th := gentlify.NewBuilder().
		WithRetry(gentlify.RetryConfig{
			MaxAttempts: 3,
			Backoff:     gentlify.BackoffExponential,
			BaseDelay:   time.Millisecond,
			IsRetryable: func(error) bool { return true },
		}).
		Build()

	attempts := 0
	result, err := th.Execute(context.Background(), func(ctx context.Context) (any, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("transient")
		}
		return "ok", nil
	})

	assert.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, attempts)
}

func TestExecute_RetryEventFiresPerAttempt(t *testing.T) {
	var retriedAttempts []int
	th := gentlify.NewBuilder().
		OnStateChange(func(e gentlify.Event) {
			if e.Kind == gentlify.EventRetry {
				retriedAttempts = append(retriedAttempts, e.Data["attempt"].(int))
			}
		}).
		WithRetry(gentlify.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			IsRetryable: func(error) bool { return true },
		}).
		Build()

	_, _ = th.Execute(context.Background(), func(ctx context.Context) (any, error) {
		return nil, errors.New("boom")
	})

	assert.Equal(t, []int{0, 1}, retriedAttempts)
}
