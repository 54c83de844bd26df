package tokenbucket_test

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"

	"github.com/pointmatic/gentlify/tokenbucket"
)

func TestBucket_RecordAndAvailable(t *testing.T) {
	mock := clock.NewMock()
	b := tokenbucket.New(mock, 10, time.Second)
	b.RecordTokens(4)
	assert.Equal(t, 4, b.Used())
	assert.Equal(t, 6, b.Available())
}

func TestBucket_WaitForBudgetExceedsMax(t *testing.T) {
	mock := clock.NewMock()
	b := tokenbucket.New(mock, 5, time.Second)
	err := b.WaitForBudget(context.Background(), 10)
	assert.ErrorIs(t, err, tokenbucket.ErrBudgetExceeded)
}

func TestBucket_WaitForBudgetRefillsOnSchedule(t *testing.T) {
	mock := clock.NewMock()
	b := tokenbucket.New(mock, 5, time.Second)
	b.RecordTokens(5)

	done := make(chan error, 1)
	go func() {
		done <- b.WaitForBudget(context.Background(), 1)
	}()

	select {
	case <-done:
		t.Fatal("should have blocked until the window refilled")
	case <-time.After(10 * time.Millisecond):
	}

	mock.Add(time.Second + time.Millisecond)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("expected WaitForBudget to unblock after refill")
	}
}

func TestBucket_WaitForBudgetRespectsContext(t *testing.T) {
	mock := clock.NewMock()
	b := tokenbucket.New(mock, 5, time.Second)
	b.RecordTokens(5)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- b.WaitForBudget(ctx, 1)
	}()
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("expected WaitForBudget to return on context cancellation")
	}
}
