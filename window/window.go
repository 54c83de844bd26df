// Package window implements a sliding time window over a log of timestamped
// values, pruned lazily on read. It is the shared primitive behind the
// orchestrator's failure window and the token bucket's rolling budget.
package window

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Entry is a single timestamped value recorded in a Window.
type Entry struct {
	At    time.Time
	Value int
}

// Window is a sliding log of entries within a configurable duration. Entries
// exactly at the window boundary (age == size) are still considered live;
// only entries strictly older than size are pruned. Pruning only happens on
// read (Count, Sum, Entries) — Record never prunes, matching the source
// behavior this package is grounded on.
//
// Window is concurrency safe.
type Window struct {
	clock clock.Clock
	size  time.Duration

	mu      sync.Mutex
	entries []Entry
}

// New returns a Window covering the trailing size duration, using clk to read
// the current time.
func New(clk clock.Clock, size time.Duration) *Window {
	return &Window{clock: clk, size: size}
}

// Record appends value at the current time. It never prunes.
func (w *Window) Record(value int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = append(w.entries, Entry{At: w.clock.Now(), Value: value})
}

// prune drops entries strictly older than the window. Requires external locking.
func (w *Window) prune() {
	now := w.clock.Now()
	cutoff := now.Add(-w.size)
	i := 0
	for i < len(w.entries) && w.entries[i].At.Before(cutoff) {
		i++
	}
	if i > 0 {
		w.entries = w.entries[i:]
	}
}

// Count returns the number of live entries, pruning expired ones first.
func (w *Window) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune()
	return len(w.entries)
}

// Sum returns the sum of live entry values, pruning expired ones first.
func (w *Window) Sum() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune()
	total := 0
	for _, e := range w.entries {
		total += e.Value
	}
	return total
}

// Entries returns a copy of the live entries, oldest first, pruning expired
// ones first.
func (w *Window) Entries() []Entry {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune()
	out := make([]Entry, len(w.entries))
	copy(out, w.entries)
	return out
}

// Clear removes all entries.
func (w *Window) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = nil
}

// Oldest returns the oldest live entry and true, pruning expired ones first.
// Returns the zero Entry and false if the window is empty.
func (w *Window) Oldest() (Entry, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune()
	if len(w.entries) == 0 {
		return Entry{}, false
	}
	return w.entries[0], true
}
