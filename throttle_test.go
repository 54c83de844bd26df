package gentlify_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pointmatic/gentlify"
)

// S1: a simple successful acquire/release cycle leaves concurrency untouched.
func TestScenario_SimpleSuccess(t *testing.T) {
	mock := clock.NewMock()
	th := gentlify.NewBuilder().WithMaxConcurrency(4).WithJitterFraction(0).WithClock(mock).Build()

	slot, err := th.Acquire(context.Background())
	require.NoError(t, err)
	th.Release(slot, nil)

	snap := th.Snapshot()
	assert.Equal(t, 4, snap.ConcurrencyCurrent)
	assert.Equal(t, 0, snap.ConcurrencyUsed)
}

// S2: a single failure (failure_threshold=1) halves concurrency and enters Cooling.
func TestScenario_SingleFailureDecelerates(t *testing.T) {
	mock := clock.NewMock()
	th := gentlify.NewBuilder().
		WithMaxConcurrency(4).
		WithFailureThreshold(1).
		WithJitterFraction(0).
		WithClock(mock).
		Build()

	slot, err := th.Acquire(context.Background())
	require.NoError(t, err)
	th.Release(slot, errors.New("boom"))

	snap := th.Snapshot()
	assert.Equal(t, 2, snap.ConcurrencyCurrent)
	assert.Equal(t, gentlify.Cooling, snap.Lifecycle)
}

// S3: a failure predicate can filter out errors that shouldn't count.
func TestScenario_PredicateFiltersErrors(t *testing.T) {
	mock := clock.NewMock()
	ignoredErr := errors.New("ignored")
	th := gentlify.NewBuilder().
		WithMaxConcurrency(4).
		WithFailureThreshold(1).
		WithFailurePredicate(func(err error) bool { return !errors.Is(err, ignoredErr) }).
		WithJitterFraction(0).
		WithClock(mock).
		Build()

	slot, err := th.Acquire(context.Background())
	require.NoError(t, err)
	th.Release(slot, ignoredErr)

	snap := th.Snapshot()
	assert.Equal(t, 4, snap.ConcurrencyCurrent)
	assert.Equal(t, gentlify.Running, snap.Lifecycle)
}

// S4: enough consecutive failures trip the breaker, and it stays locked out.
func TestScenario_BreakerTripsAndLocksOut(t *testing.T) {
	mock := clock.NewMock()
	th := gentlify.NewBuilder().
		WithMaxConcurrency(4).
		WithCircuitBreaker(2, time.Second, 1).
		WithMinDispatchInterval(0).
		WithJitterFraction(0).
		WithClock(mock).
		Build()

	for i := 0; i < 2; i++ {
		slot, err := th.Acquire(context.Background())
		require.NoError(t, err)
		th.Release(slot, errors.New("boom"))
	}

	_, err := th.Acquire(context.Background())
	var circuitErr *gentlify.CircuitOpenError
	require.ErrorAs(t, err, &circuitErr)
	assert.Equal(t, gentlify.Open, th.Snapshot().CircuitState)
}

// S5: the token budget refills as old consumption ages out of the window.
func TestScenario_TokenBudgetRefills(t *testing.T) {
	mock := clock.NewMock()
	th := gentlify.NewBuilder().
		WithMaxConcurrency(4).
		WithTokenBudget(2, time.Second).
		WithMinDispatchInterval(0).
		WithJitterFraction(0).
		WithClock(mock).
		Build()

	slot1, err := th.Acquire(context.Background())
	require.NoError(t, err)
	slot1.RecordTokens(2)
	th.Release(slot1, nil)

	done := make(chan error, 1)
	go func() {
		slot2, acquireErr := th.Acquire(context.Background())
		if acquireErr != nil {
			done <- acquireErr
			return
		}
		slot2.RecordTokens(1)
		th.Release(slot2, nil)
		done <- nil
	}()

	select {
	case <-done:
		t.Fatal("expected the second acquire to block on the token budget")
	case <-time.After(10 * time.Millisecond):
	}

	mock.Add(time.Second + time.Millisecond)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("expected the second acquire to unblock once tokens refilled")
	}
}

// S6: retry exhaustion reports exactly one failure to the orchestrator.
func TestScenario_RetryExhaustionReportsOnce(t *testing.T) {
	th := gentlify.NewBuilder().
		WithMaxConcurrency(4).
		WithFailureThreshold(1).
		WithRetry(gentlify.RetryConfig{
			MaxAttempts: 3,
			Backoff:     gentlify.BackoffFixed,
			BaseDelay:   time.Millisecond,
			IsRetryable: func(error) bool { return true },
		}).
		Build()

	attempts := 0
	result, err := th.Execute(context.Background(), func(ctx context.Context) (any, error) {
		attempts++
		return nil, errors.New("boom")
	})

	assert.Nil(t, result)
	assert.Error(t, err)
	assert.Equal(t, 3, attempts)

	snap := th.Snapshot()
	// The single reported failure decelerates 4 -> 2 and clears the failure
	// window; three reports would have decelerated down to 1.
	assert.Equal(t, 0, snap.FailureCount)
	assert.Equal(t, 2, snap.ConcurrencyCurrent)
}

func TestThrottle_DrainWaitsThenRejects(t *testing.T) {
	mock := clock.NewMock()
	th := gentlify.NewBuilder().WithMaxConcurrency(2).WithJitterFraction(0).WithClock(mock).Build()

	slot, err := th.Acquire(context.Background())
	require.NoError(t, err)

	drained := make(chan struct{})
	go func() {
		th.Drain()
		close(drained)
	}()

	select {
	case <-drained:
		t.Fatal("Drain should wait for in-flight work")
	case <-time.After(10 * time.Millisecond):
	}

	th.Release(slot, nil)
	<-drained

	_, err = th.Acquire(context.Background())
	var closedErr *gentlify.ThrottleClosedError
	require.ErrorAs(t, err, &closedErr)
}

// TestThrottle_CloseNeverSuspends proves Close returns immediately even with
// work in flight, unlike the blocking Drain.
func TestThrottle_CloseNeverSuspends(t *testing.T) {
	mock := clock.NewMock()
	th := gentlify.NewBuilder().WithMaxConcurrency(2).WithJitterFraction(0).WithClock(mock).Build()

	slot, err := th.Acquire(context.Background())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		th.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close should never suspend for in-flight work")
	}

	_, err = th.Acquire(context.Background())
	var closedErr *gentlify.ThrottleClosedError
	require.ErrorAs(t, err, &closedErr)

	th.Release(slot, nil)
}

func TestThrottle_CloseIsIdempotent(t *testing.T) {
	mock := clock.NewMock()
	th := gentlify.NewBuilder().WithClock(mock).Build()
	th.Close()
	th.Close()
}

func TestThrottle_DrainIsIdempotent(t *testing.T) {
	mock := clock.NewMock()
	th := gentlify.NewBuilder().WithClock(mock).Build()
	th.Drain()
	th.Drain()
}
