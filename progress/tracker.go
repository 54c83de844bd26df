// Package progress tracks completion count, milestone crossings, and a
// rolling estimate of time-to-completion for a run of a known (or unknown)
// total size.
package progress

import (
	"sync"
	"time"

	"github.com/influxdata/tdigest"
)

// DefaultRingSize is the default number of recent completion durations kept
// for the rolling ETA average.
const DefaultRingSize = 50

// DefaultMilestonePercent is the default percentage granularity at which
// milestone crossings are reported (every 10%).
const DefaultMilestonePercent = 10.0

// Tracker accumulates completions against a total and exposes a rolling ETA.
//
// Tracker is concurrency safe.
type Tracker struct {
	mu sync.Mutex

	total            int
	completed        int
	milestonePercent float64
	lastMilestone    int

	ring     []time.Duration
	ringNext int
	ringFull bool

	digest *tdigest.TDigest
}

// New returns a Tracker for a run of total items (0 means unknown total —
// ETA reports 0 until a total is later set via SetTotal).
func New(total int, milestonePercent float64, ringSize int) *Tracker {
	if milestonePercent <= 0 {
		milestonePercent = DefaultMilestonePercent
	}
	if ringSize <= 0 {
		ringSize = DefaultRingSize
	}
	return &Tracker{
		total:            total,
		milestonePercent: milestonePercent,
		ring:             make([]time.Duration, ringSize),
		digest:           tdigest.NewWithCompression(100),
	}
}

// SetTotal updates the total item count, e.g. once it becomes known.
func (t *Tracker) SetTotal(total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total = total
}

// RecordCompletion records that one item finished after taking d. It returns
// the index of the latest milestone reached (completion percentage divided by
// milestonePercent, rounded down, e.g. 3 for 30% with 10% milestones) and
// whether a new milestone was in fact crossed by this completion.
func (t *Tracker) RecordCompletion(d time.Duration) (milestone int, crossed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.completed++
	t.ring[t.ringNext] = d
	t.ringNext = (t.ringNext + 1) % len(t.ring)
	if t.ringNext == 0 {
		t.ringFull = true
	}
	t.digest.Add(float64(d), 1)

	if t.total <= 0 {
		return 0, false
	}
	percentage := 100 * float64(t.completed) / float64(t.total)
	milestone = int(percentage / t.milestonePercent)
	if milestone > t.lastMilestone {
		t.lastMilestone = milestone
		return milestone, true
	}
	return t.lastMilestone, false
}

// Completed returns the number of recorded completions.
func (t *Tracker) Completed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed
}

// Total returns the configured total, or 0 if unknown.
func (t *Tracker) Total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// averageDuration returns the mean of the recorded ring of durations.
// Requires external locking.
func (t *Tracker) averageDuration() time.Duration {
	n := t.ringNext
	if t.ringFull {
		n = len(t.ring)
	}
	if n == 0 {
		return 0
	}
	var sum time.Duration
	for i := 0; i < n; i++ {
		sum += t.ring[i]
	}
	return sum / time.Duration(n)
}

// ETA estimates remaining time as the rolling average completion duration
// times the number of items still outstanding. Returns 0 if the total is
// unknown or already reached.
func (t *Tracker) ETA() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.total <= 0 {
		return 0
	}
	remaining := t.total - t.completed
	if remaining < 0 {
		remaining = 0
	}
	return t.averageDuration() * time.Duration(remaining)
}

// DurationQuantile reports the q-th quantile (0..1) of observed completion
// durations. This is an observability supplement alongside the rolling ETA;
// it does not affect milestone or ETA semantics.
func (t *Tracker) DurationQuantile(q float64) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Duration(t.digest.Quantile(q))
}
