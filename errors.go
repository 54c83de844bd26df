package gentlify

import (
	"errors"
	"fmt"
	"time"
)

// Error is the common interface satisfied by gentlify's sentinel error types,
// allowing callers to distinguish throttle-originated errors from errors
// returned by the wrapped work itself.
type Error interface {
	error
	gentlifyError()
}

// CircuitOpenError is returned by Acquire/Execute when the circuit breaker is
// Open or HalfOpen-but-exhausted. RetryAfter reports how long the caller
// should wait before trying again.
type CircuitOpenError struct {
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("gentlify: circuit open, retry after %s", e.RetryAfter)
}

func (*CircuitOpenError) gentlifyError() {}

// ThrottleClosedError is returned when Acquire/Execute is called after Close
// has been invoked.
type ThrottleClosedError struct{}

func (*ThrottleClosedError) Error() string { return "gentlify: throttle closed" }

func (*ThrottleClosedError) gentlifyError() {}

// ErrDraining is returned when Acquire/Execute is called while the throttle
// is draining (Drain was called but in-flight work has not yet finished).
var ErrDraining = errors.New("gentlify: throttle draining")
