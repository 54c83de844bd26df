package gentlify

import (
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/pointmatic/gentlify/internal/util"
)

// FailurePredicate decides whether an error returned by wrapped work counts
// as a failure for throttling purposes. A nil predicate treats every
// non-nil error as a failure.
type FailurePredicate func(error) bool

// TokenBudgetConfig configures the optional rolling-window token budget.
type TokenBudgetConfig struct {
	MaxTokens int
	Window    time.Duration
}

// CircuitBreakerConfig configures the optional circuit breaker.
type CircuitBreakerConfig struct {
	ConsecutiveFailures int
	OpenDuration        time.Duration
	HalfOpenMaxCalls    int
}

// Config is the complete, validated configuration for a Throttle. Build one
// with NewBuilder().
type Config struct {
	MaxConcurrency             int
	InitialConcurrency         int
	MinDispatchInterval        time.Duration
	MaxDispatchInterval        time.Duration
	FailureThreshold           int
	FailureWindow              time.Duration
	CoolingPeriod              time.Duration
	SafeCeilingDecayMultiplier float64
	JitterFraction             float64
	TotalTasks                 int
	MilestonePercent           float64

	FailurePredicate FailurePredicate
	TokenBudget      *TokenBudgetConfig
	CircuitBreaker   *CircuitBreakerConfig
	Retry            *RetryConfig

	OnStateChange StateChangeListener
	OnProgress    ProgressListener

	Clock  clock.Clock
	Logger *slog.Logger
}

// Builder builds a Config/Throttle using fluent With* calls.
type Builder interface {
	WithMaxConcurrency(n int) Builder
	WithInitialConcurrency(n int) Builder
	WithMinDispatchInterval(d time.Duration) Builder
	WithMaxDispatchInterval(d time.Duration) Builder
	WithFailureThreshold(n int) Builder
	WithFailureWindow(d time.Duration) Builder
	WithCoolingPeriod(d time.Duration) Builder
	WithSafeCeilingDecayMultiplier(f float64) Builder
	WithJitterFraction(f float64) Builder
	WithTotalTasks(n int) Builder
	WithMilestonePercent(pct float64) Builder
	WithFailurePredicate(fn FailurePredicate) Builder
	WithTokenBudget(maxTokens int, window time.Duration) Builder
	WithCircuitBreaker(consecutiveFailures int, openDuration time.Duration, halfOpenMaxCalls int) Builder
	WithRetry(cfg RetryConfig) Builder
	OnStateChange(fn StateChangeListener) Builder
	OnProgress(fn ProgressListener) Builder
	WithClock(c clock.Clock) Builder
	WithLogger(l *slog.Logger) Builder

	// Build validates the accumulated configuration, panicking on an invalid
	// combination (a programmer error), and returns a running Throttle.
	Build() *Throttle
}

type config struct {
	cfg Config
}

var _ Builder = (*config)(nil)

// NewBuilder returns a Builder preloaded with gentlify's defaults: 5 max
// concurrency, 200ms..30s dispatch interval, 3-failure/60s failure window,
// 60s cooling period, 5x safe-ceiling decay, 50% jitter.
func NewBuilder() Builder {
	return &config{cfg: Config{
		MaxConcurrency:             5,
		MinDispatchInterval:        200 * time.Millisecond,
		MaxDispatchInterval:        30 * time.Second,
		FailureThreshold:           3,
		FailureWindow:              60 * time.Second,
		CoolingPeriod:              60 * time.Second,
		SafeCeilingDecayMultiplier: 5.0,
		JitterFraction:             0.5,
		MilestonePercent:           10.0,
		Clock:                      clock.New(),
	}}
}

func (c *config) WithMaxConcurrency(n int) Builder { c.cfg.MaxConcurrency = n; return c }
func (c *config) WithInitialConcurrency(n int) Builder {
	c.cfg.InitialConcurrency = n
	return c
}
func (c *config) WithMinDispatchInterval(d time.Duration) Builder {
	c.cfg.MinDispatchInterval = d
	return c
}
func (c *config) WithMaxDispatchInterval(d time.Duration) Builder {
	c.cfg.MaxDispatchInterval = d
	return c
}
func (c *config) WithFailureThreshold(n int) Builder { c.cfg.FailureThreshold = n; return c }
func (c *config) WithFailureWindow(d time.Duration) Builder {
	c.cfg.FailureWindow = d
	return c
}
func (c *config) WithCoolingPeriod(d time.Duration) Builder { c.cfg.CoolingPeriod = d; return c }
func (c *config) WithSafeCeilingDecayMultiplier(f float64) Builder {
	c.cfg.SafeCeilingDecayMultiplier = f
	return c
}
func (c *config) WithJitterFraction(f float64) Builder { c.cfg.JitterFraction = f; return c }
func (c *config) WithTotalTasks(n int) Builder         { c.cfg.TotalTasks = n; return c }
func (c *config) WithMilestonePercent(pct float64) Builder {
	c.cfg.MilestonePercent = pct
	return c
}
func (c *config) WithFailurePredicate(fn FailurePredicate) Builder {
	c.cfg.FailurePredicate = fn
	return c
}
func (c *config) WithTokenBudget(maxTokens int, window time.Duration) Builder {
	c.cfg.TokenBudget = &TokenBudgetConfig{MaxTokens: maxTokens, Window: window}
	return c
}
func (c *config) WithCircuitBreaker(consecutiveFailures int, openDuration time.Duration, halfOpenMaxCalls int) Builder {
	c.cfg.CircuitBreaker = &CircuitBreakerConfig{
		ConsecutiveFailures: consecutiveFailures,
		OpenDuration:        openDuration,
		HalfOpenMaxCalls:    halfOpenMaxCalls,
	}
	return c
}
func (c *config) WithRetry(cfg RetryConfig) Builder { c.cfg.Retry = &cfg; return c }
func (c *config) OnStateChange(fn StateChangeListener) Builder {
	c.cfg.OnStateChange = fn
	return c
}
func (c *config) OnProgress(fn ProgressListener) Builder { c.cfg.OnProgress = fn; return c }
func (c *config) WithClock(clk clock.Clock) Builder      { c.cfg.Clock = clk; return c }
func (c *config) WithLogger(l *slog.Logger) Builder      { c.cfg.Logger = l; return c }

func (c *config) Build() *Throttle {
	validate(&c.cfg)
	if c.cfg.Clock == nil {
		c.cfg.Clock = clock.New()
	}
	if c.cfg.InitialConcurrency == 0 {
		c.cfg.InitialConcurrency = c.cfg.MaxConcurrency
	}
	return newThrottle(c.cfg)
}

// validate panics (via internal/util.Assert) on any invalid combination,
// mirroring the Python dataclasses' __post_init__ validation this config
// model is grounded on.
func validate(cfg *Config) {
	util.Assert(cfg.MaxConcurrency >= 1, "MaxConcurrency must be >= 1")
	util.Assert(cfg.InitialConcurrency == 0 || (cfg.InitialConcurrency >= 1 && cfg.InitialConcurrency <= cfg.MaxConcurrency),
		"InitialConcurrency must be between 1 and MaxConcurrency")
	util.Assert(cfg.MinDispatchInterval >= 0, "MinDispatchInterval must be >= 0")
	util.Assert(cfg.MaxDispatchInterval >= cfg.MinDispatchInterval, "MaxDispatchInterval must be >= MinDispatchInterval")
	util.Assert(cfg.FailureThreshold >= 1, "FailureThreshold must be >= 1")
	util.Assert(cfg.FailureWindow > 0, "FailureWindow must be > 0")
	util.Assert(cfg.CoolingPeriod > 0, "CoolingPeriod must be > 0")
	util.Assert(cfg.SafeCeilingDecayMultiplier > 0, "SafeCeilingDecayMultiplier must be > 0")
	util.Assert(cfg.JitterFraction >= 0 && cfg.JitterFraction <= 1, "JitterFraction must be between 0 and 1")
	util.Assert(cfg.TotalTasks >= 0, "TotalTasks must be >= 0")
	if cfg.TokenBudget != nil {
		util.Assert(cfg.TokenBudget.MaxTokens >= 1, "TokenBudget.MaxTokens must be >= 1")
		util.Assert(cfg.TokenBudget.Window > 0, "TokenBudget.Window must be > 0")
	}
	if cfg.CircuitBreaker != nil {
		util.Assert(cfg.CircuitBreaker.ConsecutiveFailures >= 1, "CircuitBreaker.ConsecutiveFailures must be >= 1")
		util.Assert(cfg.CircuitBreaker.OpenDuration >= 0, "CircuitBreaker.OpenDuration must be >= 0")
		util.Assert(cfg.CircuitBreaker.HalfOpenMaxCalls >= 1, "CircuitBreaker.HalfOpenMaxCalls must be >= 1")
	}
}

// FromMap builds a Builder from an untyped map, e.g. parsed from JSON/YAML
// configuration. Unknown keys are ignored; nested "token_budget" and
// "circuit_breaker" maps configure their respective sub-configs.
func FromMap(data map[string]any) Builder {
	b := NewBuilder()
	if v, ok := data["max_concurrency"].(int); ok {
		b.WithMaxConcurrency(v)
	}
	if v, ok := data["initial_concurrency"].(int); ok {
		b.WithInitialConcurrency(v)
	}
	if v, ok := asSeconds(data["min_dispatch_interval"]); ok {
		b.WithMinDispatchInterval(v)
	}
	if v, ok := asSeconds(data["max_dispatch_interval"]); ok {
		b.WithMaxDispatchInterval(v)
	}
	if v, ok := data["failure_threshold"].(int); ok {
		b.WithFailureThreshold(v)
	}
	if v, ok := asSeconds(data["failure_window"]); ok {
		b.WithFailureWindow(v)
	}
	if v, ok := asSeconds(data["cooling_period"]); ok {
		b.WithCoolingPeriod(v)
	}
	if v, ok := data["safe_ceiling_decay_multiplier"].(float64); ok {
		b.WithSafeCeilingDecayMultiplier(v)
	}
	if v, ok := data["jitter_fraction"].(float64); ok {
		b.WithJitterFraction(v)
	}
	if v, ok := data["total_tasks"].(int); ok {
		b.WithTotalTasks(v)
	}
	if tb, ok := data["token_budget"].(map[string]any); ok {
		maxTokens, _ := tb["max_tokens"].(int)
		window, _ := asSeconds(tb["window_seconds"])
		b.WithTokenBudget(maxTokens, window)
	}
	if cb, ok := data["circuit_breaker"].(map[string]any); ok {
		failures, _ := cb["consecutive_failures"].(int)
		openDuration, _ := asSeconds(cb["open_duration"])
		halfOpen, ok := cb["half_open_max_calls"].(int)
		if !ok {
			halfOpen = 1
		}
		b.WithCircuitBreaker(failures, openDuration, halfOpen)
	}
	return b
}

func asSeconds(v any) (time.Duration, bool) {
	switch n := v.(type) {
	case float64:
		return time.Duration(n * float64(time.Second)), true
	case int:
		return time.Duration(n) * time.Second, true
	default:
		return 0, false
	}
}
