// Package dispatch implements the minimum-spacing gate between successive
// dispatches, with jitter to avoid thundering-herd synchronization across
// many throttle instances hitting the same downstream service.
package dispatch

import (
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/pointmatic/gentlify/internal/util"
)

// Gate enforces a minimum interval between dispatches. Wait reserves the
// caller's dispatch time for the next caller, then sleeps for however long
// the caller must still wait before dispatching.
//
// Gate is concurrency safe; callers are admitted one at a time in the order
// they call Wait.
type Gate struct {
	clock clock.Clock
	rand  *rand.Rand

	mu             sync.Mutex
	interval       time.Duration
	jitterFraction float64
	lastDispatch   time.Time
	hasDispatched  bool
}

// New returns a Gate with the given minimum interval and jitter fraction
// (jitter is drawn uniformly from [0, interval*jitterFraction)).
func New(clk clock.Clock, interval time.Duration, jitterFraction float64) *Gate {
	return &Gate{
		clock:          clk,
		rand:           rand.New(rand.NewSource(clk.Now().UnixNano())),
		interval:       interval,
		jitterFraction: jitterFraction,
	}
}

// SetInterval adjusts the minimum dispatch interval, used when the
// orchestrator decelerates or reaccelerates dispatch pacing.
func (g *Gate) SetInterval(interval time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.interval = interval
}

// Interval returns the current minimum dispatch interval.
func (g *Gate) Interval() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.interval
}

// Wait blocks for as long as required to respect the minimum dispatch
// interval plus jitter. The first call has no interval delay and waits only
// for its jitter (none when jitterFraction or the interval is 0).
//
// Each caller reserves its dispatch slot atomically under the lock, advancing
// lastDispatch to that reserved time before releasing it and sleeping. This
// keeps two concurrent callers from both reading the same stale lastDispatch
// and computing the same wait, which would let them dispatch together.
func (g *Gate) Wait() {
	g.mu.Lock()
	now := g.clock.Now()
	reserved := now
	if g.hasDispatched {
		earliest := g.lastDispatch.Add(g.interval)
		if earliest.After(reserved) {
			reserved = earliest
		}
	}
	if g.jitterFraction > 0 && g.interval > 0 {
		max := float64(g.interval) * g.jitterFraction
		reserved = reserved.Add(time.Duration(g.rand.Float64() * max))
	}
	g.lastDispatch = reserved
	g.hasDispatched = true
	g.mu.Unlock()

	d := util.Max(reserved.Sub(now), 0)
	if d > 0 {
		g.clock.Sleep(d)
	}
}
