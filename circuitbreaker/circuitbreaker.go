// Package circuitbreaker implements a three-state circuit breaker
// (Closed/Open/HalfOpen) whose open-state lockout doubles on each half-open
// probe failure, capped at a multiple of the configured base duration, and
// resets to the base duration when half-open successes close the breaker.
package circuitbreaker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/pointmatic/gentlify/internal/util"
)

// State is one of Closed, Open, or HalfOpen.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// LockoutCapMultiple bounds how far the open-duration can double before it
// stops growing: 5x the configured base duration.
const LockoutCapMultiple = 5

// Breaker is a three-state circuit breaker. Consecutive failures in the
// Closed state trip it Open; after the open duration elapses up to
// halfOpenMaxCalls probes are allowed through in the HalfOpen state.
// halfOpenMaxCalls HalfOpen successes close the breaker and reset the lockout
// back to its base duration; a HalfOpen failure reopens it with the lockout
// doubled (capped at 5x base).
//
// Breaker is concurrency safe.
type Breaker struct {
	clock clock.Clock
	logger *slog.Logger

	failureThreshold int
	baseOpenDuration time.Duration
	halfOpenMaxCalls int

	mu               sync.Mutex
	state            breakerState
	consecutiveFails int
	currentLockout   time.Duration

	onTransition func(State)
}

// New returns a Breaker that opens after failureThreshold consecutive
// failures, stays open for baseOpenDuration (doubling on repeated half-open
// failure, capped at 5x), and admits up to halfOpenMaxCalls probes per
// half-open period.
func New(clk clock.Clock, failureThreshold int, baseOpenDuration time.Duration, halfOpenMaxCalls int, logger *slog.Logger) *Breaker {
	b := &Breaker{
		clock:            clk,
		logger:           logger,
		failureThreshold: failureThreshold,
		baseOpenDuration: baseOpenDuration,
		halfOpenMaxCalls: halfOpenMaxCalls,
		currentLockout:   baseOpenDuration,
	}
	b.state = &closedState{b: b}
	return b
}

func (b *Breaker) logf(msg string, args ...any) {
	if b.logger != nil && b.logger.Enabled(context.Background(), slog.LevelInfo) {
		b.logger.Info(msg, args...)
	}
}

// OnTransition registers a callback invoked whenever the breaker's state
// changes. Called with b.mu held, so fn must not call back into the Breaker.
func (b *Breaker) OnTransition(fn func(State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onTransition = fn
}

// Check reports whether an execution may proceed, transitioning Open to
// HalfOpen as a side effect if the lockout has elapsed. This is the only
// method that mutates state as a read; the separate State accessor never
// mutates and may be briefly stale under concurrent access.
func (b *Breaker) Check() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.tryAcquire()
}

// State returns the breaker's state without triggering an Open->HalfOpen
// transition, even if the lockout has already elapsed. Eventually consistent
// with respect to concurrent Check calls.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.kind()
}

// RemainingLockout returns how much longer the breaker will stay Open, or 0
// if it is not Open.
func (b *Breaker) RemainingLockout() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if o, ok := b.state.(*openState); ok {
		return o.remaining()
	}
	return 0
}

// RecordSuccess reports a successful execution.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.onSuccess()
}

// RecordFailure reports a failed execution.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.onFailure()
}

// requires b.mu held
func (b *Breaker) transitionTo(s breakerState) {
	prev := b.state.kind()
	b.state = s
	if prev != s.kind() {
		b.logf("circuit breaker transition", "from", prev.String(), "to", s.kind().String())
		if b.onTransition != nil {
			b.onTransition(s.kind())
		}
	}
}

type breakerState interface {
	kind() State
	tryAcquire() bool
	onSuccess()
	onFailure()
}

type closedState struct {
	b *Breaker
}

func (s *closedState) kind() State { return Closed }
func (s *closedState) tryAcquire() bool { return true }
func (s *closedState) onSuccess() {
	s.b.consecutiveFails = 0
}
func (s *closedState) onFailure() {
	s.b.consecutiveFails++
	if s.b.consecutiveFails >= s.b.failureThreshold {
		s.b.consecutiveFails = 0
		s.b.transitionTo(newOpenState(s.b, s.b.currentLockout))
	}
}

type openState struct {
	b        *Breaker
	openedAt time.Time
	lockout  time.Duration
}

func newOpenState(b *Breaker, lockout time.Duration) *openState {
	return &openState{b: b, openedAt: b.clock.Now(), lockout: lockout}
}

func (s *openState) kind() State { return Open }

func (s *openState) remaining() time.Duration {
	elapsed := s.b.clock.Now().Sub(s.openedAt)
	return util.Max(s.lockout-elapsed, 0)
}

func (s *openState) tryAcquire() bool {
	if s.remaining() <= 0 {
		s.b.transitionTo(newHalfOpenState(s.b, s.lockout))
		return s.b.state.tryAcquire()
	}
	return false
}

// onSuccess/onFailure ignore results recorded while Open, such as those of
// work admitted before the breaker tripped.
func (s *openState) onSuccess() {}
func (s *openState) onFailure() {}

type halfOpenState struct {
	b               *Breaker
	previousLockout time.Duration
	permitted       int
	successes       int
}

func newHalfOpenState(b *Breaker, previousLockout time.Duration) *halfOpenState {
	return &halfOpenState{b: b, previousLockout: previousLockout, permitted: b.halfOpenMaxCalls}
}

func (s *halfOpenState) kind() State { return HalfOpen }

func (s *halfOpenState) tryAcquire() bool {
	if s.permitted <= 0 {
		return false
	}
	s.permitted--
	return true
}

func (s *halfOpenState) onSuccess() {
	s.successes++
	if s.successes >= s.b.halfOpenMaxCalls {
		s.b.currentLockout = s.b.baseOpenDuration
		s.b.transitionTo(&closedState{b: s.b})
	}
}

func (s *halfOpenState) onFailure() {
	next := s.previousLockout * 2
	lockoutCap := s.b.baseOpenDuration * LockoutCapMultiple
	if s.b.baseOpenDuration == 0 {
		// With a zero base duration every probe immediately re-enters
		// HalfOpen; there is nothing to double.
		next = 0
	} else if next > lockoutCap {
		next = lockoutCap
	}
	s.b.currentLockout = next
	s.b.transitionTo(newOpenState(s.b, next))
}
