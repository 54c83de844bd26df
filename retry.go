package gentlify

import (
	"math/rand"
	"time"
)

// BackoffKind selects the delay formula used between retry attempts.
type BackoffKind int

const (
	// BackoffFixed uses BaseDelay for every retry.
	BackoffFixed BackoffKind = iota
	// BackoffExponential doubles the delay each attempt, capped at MaxDelay.
	BackoffExponential
	// BackoffExponentialJitter draws the delay uniformly from [0, d), where d
	// is the BackoffExponential delay, to avoid synchronized retry storms.
	BackoffExponentialJitter
)

// RetryConfig configures Throttle.Execute's retry behavior. A nil RetryConfig
// on the Throttle means Execute behaves like Acquire wrapping a single
// attempt with no retries.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first,
	// so MaxAttempts=1 means no retries.
	MaxAttempts int
	Backoff     BackoffKind
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// IsRetryable decides whether a failed attempt's error should be
	// retried. A nil IsRetryable retries every non-nil error.
	IsRetryable func(error) bool
}

func (c RetryConfig) retryable(err error) bool {
	if c.IsRetryable == nil {
		return err != nil
	}
	return c.IsRetryable(err)
}

// delay computes the backoff before the given zero-indexed retry attempt
// (attempt 0 is the delay before the first retry, i.e. after the initial
// attempt failed).
func (c RetryConfig) delay(attempt int, rnd *rand.Rand) time.Duration {
	base := c.BaseDelay
	switch c.Backoff {
	case BackoffFixed:
		return base
	case BackoffExponential:
		return capDelay(base*time.Duration(1<<uint(attempt)), c.MaxDelay)
	case BackoffExponentialJitter:
		exp := capDelay(base*time.Duration(1<<uint(attempt)), c.MaxDelay)
		if exp <= 0 {
			return 0
		}
		return time.Duration(rnd.Int63n(int64(exp)))
	default:
		return base
	}
}

func capDelay(d, max time.Duration) time.Duration {
	if max > 0 && d > max {
		return max
	}
	return d
}
