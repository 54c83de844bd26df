// Package concurrency implements a resizable concurrency limiter: a counting
// semaphore whose capacity is adjusted at runtime by the orchestrator's
// deceleration and reacceleration logic.
package concurrency

import (
	"context"
	"sync"
)

// Limiter bounds the number of concurrently in-flight executions and exposes
// the deceleration/reacceleration operations the orchestrator drives in
// response to success and failure signals.
//
// Limiter is concurrency safe.
type Limiter struct {
	mu      sync.Mutex
	current int
	max     int
	sem     *DynamicSemaphore
}

// New returns a Limiter starting at initial capacity, never exceeding max.
func New(initial, max int) *Limiter {
	return &Limiter{
		current: initial,
		max:     max,
		sem:     NewDynamicSemaphore(initial),
	}
}

// Acquire blocks for a permit until one is available or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.sem.Acquire(ctx)
}

// Release returns a permit.
func (l *Limiter) Release() {
	l.sem.Release()
}

// Current returns the current capacity.
func (l *Limiter) Current() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Used returns the number of permits currently held.
func (l *Limiter) Used() int {
	return l.sem.Used()
}

// Decelerate halves the current capacity, floored at 1, and applies it to
// the underlying semaphore. Returns (old, new) so the caller can record the
// pre-deceleration capacity as a safe ceiling for later reacceleration.
func (l *Limiter) Decelerate() (old, next int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	old = l.current
	next = old / 2
	if next < 1 {
		next = 1
	}
	l.current = next
	l.sem.SetSize(next)
	return old, next
}

// Reaccelerate increases the current capacity by one, capped at ceiling
// (which itself never exceeds the limiter's configured max). Returns
// (old, next).
func (l *Limiter) Reaccelerate(ceiling int) (old, next int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ceiling > l.max {
		ceiling = l.max
	}
	old = l.current
	next = old + 1
	if next > ceiling {
		next = ceiling
	}
	l.current = next
	l.sem.SetSize(next)
	return old, next
}

// Resize sets the capacity directly, clamped to [1, max]. Shrinking never
// preempts in-flight permits; it only reduces future availability.
func (l *Limiter) Resize(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n < 1 {
		n = 1
	}
	if n > l.max {
		n = l.max
	}
	l.current = n
	l.sem.SetSize(n)
	return l.current
}

// Max returns the configured ceiling capacity.
func (l *Limiter) Max() int {
	return l.max
}
