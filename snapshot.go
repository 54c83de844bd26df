package gentlify

import (
	"time"

	"github.com/pointmatic/gentlify/circuitbreaker"
)

// LifecycleState is the orchestrator's own state, distinct from the circuit
// breaker's state: Running admits freely, Cooling has just decelerated and
// is waiting out the cooling period before reaccelerating, Draining is
// finishing in-flight work after Drain, and Closed no longer admits at all.
type LifecycleState int

const (
	Running LifecycleState = iota
	Cooling
	Draining
	ClosedLifecycle
)

func (s LifecycleState) String() string {
	switch s {
	case Running:
		return "running"
	case Cooling:
		return "cooling"
	case Draining:
		return "draining"
	case ClosedLifecycle:
		return "closed"
	default:
		return "unknown"
	}
}

// CircuitState is an alias for the circuit breaker's own state type, so
// callers can compare Snapshot.CircuitState against Closed/Open/HalfOpen
// without importing the circuitbreaker package directly.
type CircuitState = circuitbreaker.State

const (
	Closed   = circuitbreaker.Closed
	Open     = circuitbreaker.Open
	HalfOpen = circuitbreaker.HalfOpen
)

// Snapshot is a point-in-time view of a Throttle's internal state, suitable
// for logging or metrics export.
type Snapshot struct {
	Lifecycle           LifecycleState
	ConcurrencyCurrent  int
	ConcurrencyMax      int
	ConcurrencyUsed     int
	SafeCeiling         int
	DispatchInterval    time.Duration
	CircuitState        circuitbreaker.State
	FailureCount        int
	TokensUsed          int
	TokensAvailable     int
	Completed           int
	Total               int
	ETA                 time.Duration
	LatencyP50          time.Duration
	LatencyP90          time.Duration
}
