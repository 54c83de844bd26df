package concurrency

import (
	"container/list"
	"context"
	"sync"
)

// DynamicSemaphore is a counting semaphore whose capacity can be resized
// while in use. Shrinking never preempts permits already held — it only
// reduces how many new permits become available, the way a graceful
// deceleration must never cancel in-flight work.
//
// The acquire/release/notify algorithm follows the same waiter-queue shape as
// golang.org/x/sync/semaphore.Weighted, generalized here to support resizing
// capacity (which a fixed weighted semaphore cannot do).
type DynamicSemaphore struct {
	mu      sync.Mutex
	size    int
	used    int
	waiters list.List // of chan struct{}
}

// NewDynamicSemaphore returns a DynamicSemaphore with the given initial capacity.
func NewDynamicSemaphore(size int) *DynamicSemaphore {
	return &DynamicSemaphore{size: size}
}

// Acquire blocks until a permit is available or ctx is done.
func (s *DynamicSemaphore) Acquire(ctx context.Context) error {
	s.mu.Lock()
	if s.used < s.size && s.waiters.Len() == 0 {
		s.used++
		s.mu.Unlock()
		return nil
	}
	ready := make(chan struct{})
	elem := s.waiters.PushBack(ready)
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		err := ctx.Err()
		s.mu.Lock()
		select {
		case <-ready:
			// Acquired concurrently with cancellation; give the permit back.
			s.used--
			s.notifyWaiters()
		default:
			s.waiters.Remove(elem)
		}
		s.mu.Unlock()
		return err
	case <-ready:
		return nil
	}
}

// TryAcquire acquires a permit without blocking, returning false if none is
// immediately available.
func (s *DynamicSemaphore) TryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.used < s.size && s.waiters.Len() == 0 {
		s.used++
		return true
	}
	return false
}

// Release returns a permit to the semaphore.
func (s *DynamicSemaphore) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.used--
	s.notifyWaiters()
}

// SetSize changes the semaphore's capacity. Growing wakes waiters up to the
// new capacity; shrinking only reduces future availability and never
// preempts permits already held.
func (s *DynamicSemaphore) SetSize(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.size = n
	s.notifyWaiters()
}

// Requires external locking.
func (s *DynamicSemaphore) notifyWaiters() {
	for {
		front := s.waiters.Front()
		if front == nil || s.used >= s.size {
			return
		}
		s.used++
		s.waiters.Remove(front)
		close(front.Value.(chan struct{}))
	}
}

// Used returns the number of permits currently held.
func (s *DynamicSemaphore) Used() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}

// Size returns the current capacity.
func (s *DynamicSemaphore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Waiters returns the number of goroutines currently blocked on Acquire.
func (s *DynamicSemaphore) Waiters() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiters.Len()
}

// IsFull reports whether every permit is currently held.
func (s *DynamicSemaphore) IsFull() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used >= s.size
}
