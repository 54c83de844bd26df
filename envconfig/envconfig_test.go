package envconfig_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pointmatic/gentlify/envconfig"
)

func TestLoad_OverridesDefaultsFromEnv(t *testing.T) {
	t.Setenv("GENTLIFY_MAX_CONCURRENCY", "12")
	t.Setenv("GENTLIFY_JITTER_FRACTION", "0.25")
	t.Setenv("GENTLIFY_TOKEN_BUDGET_MAX", "50")
	t.Setenv("GENTLIFY_TOKEN_BUDGET_WINDOW", "30")

	th := envconfig.Load("").Build()
	snap := th.Snapshot()

	assert.Equal(t, 12, snap.ConcurrencyCurrent)
	assert.Equal(t, 50, snap.TokensAvailable)
}

func TestLoad_IgnoresUnsetVariables(t *testing.T) {
	th := envconfig.Load("GENTLIFY_NONEXISTENT_PREFIX").Build()
	snap := th.Snapshot()
	assert.Equal(t, 5, snap.ConcurrencyCurrent)
}

// TestLoad_CircuitBreakerPartialOverrideDefaultsRest proves that setting only
// one of the three GENTLIFY_CIRCUIT_BREAKER_* variables still produces a
// valid breaker, with the other two fields taking their documented defaults
// rather than Go zero values (a zero ConsecutiveFailures would otherwise
// fail Build's validation).
func TestLoad_CircuitBreakerPartialOverrideDefaultsRest(t *testing.T) {
	t.Setenv("GENTLIFY_CIRCUIT_BREAKER_HALF_OPEN_MAX_CALLS", "2")

	assert.NotPanics(t, func() {
		envconfig.Load("").Build()
	})
}
