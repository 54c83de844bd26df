// Package envconfig loads a gentlify.Builder from environment variables, the
// external collaborator to the core config model (kept separate so the core
// package has no os.Getenv dependency).
package envconfig

import (
	"os"
	"strconv"
	"time"

	"github.com/pointmatic/gentlify"
)

// DefaultPrefix is the environment variable prefix used when Load is called
// without one, matching the reference implementation's default.
const DefaultPrefix = "GENTLIFY"

// Load builds a gentlify.Builder preloaded with defaults, then overrides
// fields found as "<prefix>_<FIELD>" environment variables. Durations are
// read as seconds (e.g. GENTLIFY_COOLING_PERIOD=60 means 60s).
func Load(prefix string) gentlify.Builder {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	b := gentlify.NewBuilder()

	if v, ok := getInt(prefix, "MAX_CONCURRENCY"); ok {
		b.WithMaxConcurrency(v)
	}
	if v, ok := getInt(prefix, "INITIAL_CONCURRENCY"); ok {
		b.WithInitialConcurrency(v)
	}
	if v, ok := getSeconds(prefix, "MIN_DISPATCH_INTERVAL"); ok {
		b.WithMinDispatchInterval(v)
	}
	if v, ok := getSeconds(prefix, "MAX_DISPATCH_INTERVAL"); ok {
		b.WithMaxDispatchInterval(v)
	}
	if v, ok := getInt(prefix, "FAILURE_THRESHOLD"); ok {
		b.WithFailureThreshold(v)
	}
	if v, ok := getSeconds(prefix, "FAILURE_WINDOW"); ok {
		b.WithFailureWindow(v)
	}
	if v, ok := getSeconds(prefix, "COOLING_PERIOD"); ok {
		b.WithCoolingPeriod(v)
	}
	if v, ok := getFloat(prefix, "SAFE_CEILING_DECAY_MULTIPLIER"); ok {
		b.WithSafeCeilingDecayMultiplier(v)
	}
	if v, ok := getFloat(prefix, "JITTER_FRACTION"); ok {
		b.WithJitterFraction(v)
	}
	if v, ok := getInt(prefix, "TOTAL_TASKS"); ok {
		b.WithTotalTasks(v)
	}

	tbMax, tbMaxOK := getInt(prefix, "TOKEN_BUDGET_MAX")
	tbWindow, tbWindowOK := getSeconds(prefix, "TOKEN_BUDGET_WINDOW")
	if tbMaxOK && tbWindowOK {
		b.WithTokenBudget(tbMax, tbWindow)
	}

	cbFailures, cbFailuresOK := getInt(prefix, "CIRCUIT_BREAKER_CONSECUTIVE_FAILURES")
	cbDuration, cbDurationOK := getSeconds(prefix, "CIRCUIT_BREAKER_OPEN_DURATION")
	cbHalfOpen, cbHalfOpenOK := getInt(prefix, "CIRCUIT_BREAKER_HALF_OPEN_MAX_CALLS")
	if cbFailuresOK || cbDurationOK || cbHalfOpenOK {
		if !cbFailuresOK {
			cbFailures = 10
		}
		if !cbDurationOK {
			cbDuration = 30 * time.Second
		}
		if !cbHalfOpenOK {
			cbHalfOpen = 1
		}
		b.WithCircuitBreaker(cbFailures, cbDuration, cbHalfOpen)
	}

	return b
}

func getInt(prefix, suffix string) (int, bool) {
	v, ok := os.LookupEnv(prefix + "_" + suffix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func getFloat(prefix, suffix string) (float64, bool) {
	v, ok := os.LookupEnv(prefix + "_" + suffix)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func getSeconds(prefix, suffix string) (time.Duration, bool) {
	f, ok := getFloat(prefix, suffix)
	if !ok {
		return 0, false
	}
	return time.Duration(f * float64(time.Second)), true
}
