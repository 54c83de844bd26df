// Package gentlify drives work against a downstream service at the highest
// sustainable throughput without overwhelming it. Callers submit work
// through a Throttle, built with NewBuilder(), which admits each request
// through a fixed pipeline — circuit breaker check, concurrency permit,
// dispatch pacing, token budget — and reacts to failures by decelerating,
// later reaccelerating once things have stabilized.
package gentlify

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/pointmatic/gentlify/circuitbreaker"
	"github.com/pointmatic/gentlify/concurrency"
	"github.com/pointmatic/gentlify/dispatch"
	"github.com/pointmatic/gentlify/progress"
	"github.com/pointmatic/gentlify/tokenbucket"
	"github.com/pointmatic/gentlify/window"
)

// Throttle is the orchestrator wiring a ConcurrencyLimiter, DispatchGate,
// optional CircuitBreaker, optional TokenBucket, and ProgressTracker into a
// single admission pipeline.
//
// Throttle is concurrency safe.
type Throttle struct {
	cfg     Config
	clock   clock.Clock
	logger  *slog.Logger
	limiter *concurrency.Limiter
	gate    *dispatch.Gate
	breaker *circuitbreaker.Breaker
	bucket  *tokenbucket.Bucket
	tracker *progress.Tracker

	failureWindow *window.Window

	mu               sync.Mutex
	lifecycle        LifecycleState
	safeCeiling      int
	dispatchInterval time.Duration
	coolingStartedAt time.Time
	lastFailureAt    time.Time
	drainWG          sync.WaitGroup
}

func newThrottle(cfg Config) *Throttle {
	t := &Throttle{
		cfg:              cfg,
		clock:            cfg.Clock,
		logger:           cfg.Logger,
		limiter:          concurrency.New(cfg.InitialConcurrency, cfg.MaxConcurrency),
		gate:             dispatch.New(cfg.Clock, cfg.MinDispatchInterval, cfg.JitterFraction),
		failureWindow:    window.New(cfg.Clock, cfg.FailureWindow),
		tracker:          progress.New(cfg.TotalTasks, cfg.MilestonePercent, progress.DefaultRingSize),
		lifecycle:        Running,
		safeCeiling:      cfg.MaxConcurrency,
		dispatchInterval: cfg.MinDispatchInterval,
	}
	if cfg.CircuitBreaker != nil {
		t.breaker = circuitbreaker.New(cfg.Clock, cfg.CircuitBreaker.ConsecutiveFailures,
			cfg.CircuitBreaker.OpenDuration, cfg.CircuitBreaker.HalfOpenMaxCalls, cfg.Logger)
		t.breaker.OnTransition(t.onBreakerTransition)
	}
	if cfg.TokenBudget != nil {
		t.bucket = tokenbucket.New(cfg.Clock, cfg.TokenBudget.MaxTokens, cfg.TokenBudget.Window)
	}
	return t
}

func (t *Throttle) logInfo(msg string, args ...any) {
	if t.logger != nil && t.logger.Enabled(context.Background(), slog.LevelInfo) {
		t.logger.Info(msg, args...)
	}
}

func (t *Throttle) logDebug(msg string, args ...any) {
	if t.logger != nil && t.logger.Enabled(context.Background(), slog.LevelDebug) {
		t.logger.Debug(msg, args...)
	}
}

func (t *Throttle) fireEvent(kind EventKind, data map[string]any) {
	if t.cfg.OnStateChange != nil {
		t.cfg.OnStateChange(Event{Kind: kind, Data: data})
	}
}

func (t *Throttle) fireProgress(kind EventKind, data map[string]any) {
	if t.cfg.OnProgress != nil {
		t.cfg.OnProgress(Event{Kind: kind, Data: data})
	}
}

// onBreakerTransition translates a circuit breaker state change into the
// corresponding orchestrator event.
func (t *Throttle) onBreakerTransition(s circuitbreaker.State) {
	switch s {
	case circuitbreaker.Open:
		t.fireEvent(EventCircuitOpen, nil)
	case circuitbreaker.HalfOpen:
		t.fireEvent(EventCircuitHalfOpen, nil)
	case circuitbreaker.Closed:
		t.fireEvent(EventCircuitClosed, nil)
	}
}

// Acquire runs the full admission pipeline — lifecycle check, circuit
// breaker check, concurrency permit, dispatch pacing, token budget — and
// returns a Slot once the caller may proceed. The caller must call Release
// exactly once with the outcome of the work it performs.
func (t *Throttle) Acquire(ctx context.Context) (*Slot, error) {
	t.mu.Lock()
	lifecycle := t.lifecycle
	t.mu.Unlock()
	switch lifecycle {
	case ClosedLifecycle:
		return nil, &ThrottleClosedError{}
	case Draining:
		return nil, ErrDraining
	}

	if t.breaker != nil && !t.breaker.Check() {
		return nil, &CircuitOpenError{RetryAfter: t.breaker.RemainingLockout()}
	}

	if err := t.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	t.gate.Wait()

	if t.bucket != nil {
		if err := t.bucket.WaitForBudget(ctx, 1); err != nil {
			t.limiter.Release()
			return nil, err
		}
	}

	t.drainWG.Add(1)
	return &Slot{startedAt: t.clock.Now()}, nil
}

// Release reports the outcome of the work performed under slot and returns
// its concurrency permit. It must be called exactly once per Slot returned
// by Acquire.
func (t *Throttle) Release(slot *Slot, err error) {
	t.release(slot, err, true)
}

// requires recordBreaker to indicate whether the breaker should observe this
// outcome; Execute passes false when its retry loop already recorded each
// attempt's result against the breaker directly.
func (t *Throttle) release(slot *Slot, err error, recordBreaker bool) {
	defer t.drainWG.Done()
	defer t.limiter.Release()

	if t.bucket != nil && slot.TokensReported() > 0 {
		t.bucket.RecordTokens(slot.TokensReported())
	}

	isFailure := err != nil
	if isFailure && t.cfg.FailurePredicate != nil {
		isFailure = t.cfg.FailurePredicate(err)
	}

	if isFailure {
		t.onFailureSignal(recordBreaker)
		return
	}

	t.onSuccessSignal(recordBreaker)
	duration := t.clock.Now().Sub(slot.startedAt)
	if milestone, crossed := t.tracker.RecordCompletion(duration); crossed {
		t.fireProgress(EventMilestone, map[string]any{"milestone": milestone})
	}
}

// onFailureSignal applies the failure-window/deceleration/cooling logic.
// Requires no external locking; it takes t.mu itself.
func (t *Throttle) onFailureSignal(recordBreaker bool) {
	if recordBreaker && t.breaker != nil {
		t.breaker.RecordFailure()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	t.lastFailureAt = now
	t.failureWindow.Record(1)
	if t.failureWindow.Count() < t.cfg.FailureThreshold {
		return
	}

	t.failureWindow.Clear()
	oldConcurrency, newConcurrency := t.limiter.Decelerate()
	t.safeCeiling = oldConcurrency

	newInterval := t.dispatchInterval * 2
	if newInterval > t.cfg.MaxDispatchInterval {
		newInterval = t.cfg.MaxDispatchInterval
	}
	t.dispatchInterval = newInterval
	t.gate.SetInterval(newInterval)

	t.lifecycle = Cooling
	t.coolingStartedAt = now

	t.logInfo("gentlify: decelerating", "concurrency", newConcurrency, "dispatch_interval", newInterval)
	t.fireEvent(EventDecelerate, map[string]any{"concurrency": newConcurrency, "dispatch_interval": newInterval})
	t.fireEvent(EventCooling, nil)
}

// onSuccessSignal applies the reacceleration and safe-ceiling decay logic.
func (t *Throttle) onSuccessSignal(recordBreaker bool) {
	if recordBreaker && t.breaker != nil {
		t.breaker.RecordSuccess()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()

	if t.lifecycle == Cooling && now.Sub(t.coolingStartedAt) >= t.cfg.CoolingPeriod {
		_, newConcurrency := t.limiter.Reaccelerate(t.safeCeiling)
		newInterval := t.dispatchInterval / 2
		if newInterval < t.cfg.MinDispatchInterval {
			newInterval = t.cfg.MinDispatchInterval
		}
		t.dispatchInterval = newInterval
		t.gate.SetInterval(newInterval)
		t.lifecycle = Running

		t.logInfo("gentlify: reaccelerating", "concurrency", newConcurrency, "dispatch_interval", newInterval)
		t.fireEvent(EventReaccelerate, map[string]any{"concurrency": newConcurrency, "dispatch_interval": newInterval})
		t.fireEvent(EventRunning, nil)
	}

	if t.lifecycle == Running && !t.lastFailureAt.IsZero() && t.safeCeiling < t.cfg.MaxConcurrency {
		decayPeriod := time.Duration(float64(t.cfg.CoolingPeriod) * t.cfg.SafeCeilingDecayMultiplier)
		if now.Sub(t.lastFailureAt) >= decayPeriod {
			t.safeCeiling = t.cfg.MaxConcurrency
			t.lastFailureAt = time.Time{}
			t.logDebug("gentlify: safe ceiling decay", "safe_ceiling", t.safeCeiling)
		}
	}
}

// RecordSuccess manually reports a successful execution performed outside
// Acquire/Execute (e.g. work dispatched by some other mechanism that the
// caller still wants the throttle's adaptive logic to observe).
func (t *Throttle) RecordSuccess() {
	t.onSuccessSignal(true)
}

// RecordFailure manually reports a failed execution performed outside
// Acquire/Execute.
func (t *Throttle) RecordFailure() {
	t.onFailureSignal(true)
}

// RecordTokens manually reports token consumption against the token budget,
// for work performed outside Acquire/Execute.
func (t *Throttle) RecordTokens(count int) {
	if t.bucket != nil {
		t.bucket.RecordTokens(count)
	}
}

// Execute runs fn under the throttle's admission pipeline, retrying
// according to the configured RetryConfig. Only the final, exhausting
// failure is reported to the orchestrator's failure handler (deceleration,
// failure window, cooling) — but every failed attempt, including ones that
// go on to be retried, is reported to the circuit breaker directly, so a
// breaker can trip and abort the retry loop mid-flight.
func (t *Throttle) Execute(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	slot, err := t.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	retryCfg := t.cfg.Retry
	maxAttempts := 1
	if retryCfg != nil {
		maxAttempts = retryCfg.MaxAttempts
		if maxAttempts < 1 {
			maxAttempts = 1
		}
	}

	var rnd *rand.Rand
	if retryCfg != nil {
		rnd = rand.New(rand.NewSource(t.clock.Now().UnixNano()))
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		slot.attempt = attempt
		result, callErr := fn(ctx)
		if callErr == nil {
			t.release(slot, nil, true)
			return result, nil
		}

		lastErr = callErr
		if t.breaker != nil {
			t.breaker.RecordFailure()
		}

		retryable := retryCfg != nil && retryCfg.retryable(callErr)
		isLastAttempt := attempt == maxAttempts-1
		if !retryable || isLastAttempt {
			t.release(slot, callErr, false)
			return nil, callErr
		}

		if t.breaker != nil && !t.breaker.Check() {
			retryAfter := t.breaker.RemainingLockout()
			t.release(slot, callErr, false)
			return nil, &CircuitOpenError{RetryAfter: retryAfter}
		}

		t.fireEvent(EventRetry, map[string]any{"attempt": attempt})
		if d := retryCfg.delay(attempt, rnd); d > 0 {
			t.clock.Sleep(d)
		}
	}

	t.release(slot, lastErr, false)
	return nil, lastErr
}

// Snapshot returns a point-in-time view of the throttle's internal state.
func (t *Throttle) Snapshot() Snapshot {
	t.mu.Lock()
	lifecycle := t.lifecycle
	dispatchInterval := t.dispatchInterval
	safeCeiling := t.safeCeiling
	t.mu.Unlock()

	snap := Snapshot{
		Lifecycle:          lifecycle,
		ConcurrencyCurrent: t.limiter.Current(),
		ConcurrencyMax:     t.cfg.MaxConcurrency,
		ConcurrencyUsed:    t.limiter.Used(),
		SafeCeiling:        safeCeiling,
		DispatchInterval:   dispatchInterval,
		FailureCount:       t.failureWindow.Count(),
		Completed:          t.tracker.Completed(),
		Total:              t.tracker.Total(),
		ETA:                t.tracker.ETA(),
		LatencyP50:         t.tracker.DurationQuantile(0.5),
		LatencyP90:         t.tracker.DurationQuantile(0.9),
	}
	if t.breaker != nil {
		snap.CircuitState = t.breaker.State()
	}
	if t.bucket != nil {
		snap.TokensUsed = t.bucket.Used()
		snap.TokensAvailable = t.bucket.Available()
	}
	return snap
}

// Close stops admitting new work and marks the throttle closed immediately.
// It never suspends: work already in flight keeps running in the background,
// and its outcome is still reported through Release. Further Acquire/Execute
// calls return ThrottleClosedError.
func (t *Throttle) Close() {
	t.mu.Lock()
	if t.lifecycle == ClosedLifecycle {
		t.mu.Unlock()
		return
	}
	t.lifecycle = ClosedLifecycle
	t.mu.Unlock()

	t.fireEvent(EventClosed, nil)
}

// Drain stops admitting new work, then suspends the caller until every
// in-flight Slot has been released, before marking the throttle closed.
// Further Acquire/Execute calls return ThrottleClosedError or ErrDraining
// while the drain is in progress.
func (t *Throttle) Drain() {
	t.mu.Lock()
	if t.lifecycle == ClosedLifecycle {
		t.mu.Unlock()
		return
	}
	t.lifecycle = Draining
	t.mu.Unlock()

	t.fireEvent(EventDraining, nil)
	t.drainWG.Wait()

	t.mu.Lock()
	t.lifecycle = ClosedLifecycle
	t.mu.Unlock()

	t.fireEvent(EventDrained, nil)
}
