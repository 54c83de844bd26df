// Package tokenbucket implements a rolling-window token budget: callers
// record token consumption, and WaitForBudget blocks until enough of the
// oldest consumption has aged out of the window to admit the next request.
package tokenbucket

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/pointmatic/gentlify/window"
)

// epsilon is added to the computed wait so that by the time the sleep
// returns the oldest entry has unambiguously left the window, rather than
// landing exactly on the live/expired boundary and spinning once more.
const epsilon = time.Millisecond

// ErrBudgetExceeded is returned by WaitForBudget if the requested token
// count can never be satisfied because it exceeds the bucket's max_tokens.
var ErrBudgetExceeded = errors.New("tokenbucket: requested tokens exceed max_tokens")

// Bucket is a rolling-window token budget over the trailing windowSeconds.
//
// Bucket is concurrency safe.
type Bucket struct {
	clock        clock.Clock
	maxTokens    int
	windowLength time.Duration
	window       *window.Window
}

// New returns a Bucket that allows up to maxTokens to be consumed within any
// trailing windowLength duration.
func New(clk clock.Clock, maxTokens int, windowLength time.Duration) *Bucket {
	return &Bucket{
		clock:        clk,
		maxTokens:    maxTokens,
		windowLength: windowLength,
		window:       window.New(clk, windowLength),
	}
}

// Used returns the tokens consumed within the live window.
func (b *Bucket) Used() int {
	return b.window.Sum()
}

// Available returns the remaining budget within the live window.
func (b *Bucket) Available() int {
	avail := b.maxTokens - b.Used()
	if avail < 0 {
		return 0
	}
	return avail
}

// RecordTokens records consumption of count tokens at the current time.
func (b *Bucket) RecordTokens(count int) {
	if count <= 0 {
		return
	}
	b.window.Record(count)
}

// WaitForBudget blocks until need tokens are available within the window,
// sleeping precisely until the oldest recorded consumption ages out (plus
// epsilon) rather than polling. Returns ctx.Err() if ctx is done first, or
// ErrBudgetExceeded if need can never be satisfied.
func (b *Bucket) WaitForBudget(ctx context.Context, need int) error {
	if need > b.maxTokens {
		return ErrBudgetExceeded
	}
	for {
		if b.Used()+need <= b.maxTokens {
			return nil
		}
		oldest, ok := b.window.Oldest()
		if !ok {
			return nil
		}
		wakeAt := oldest.At.Add(b.windowDuration()).Add(epsilon)
		d := wakeAt.Sub(b.clock.Now())
		if d <= 0 {
			continue
		}
		timer := b.clock.Timer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (b *Bucket) windowDuration() time.Duration {
	return b.windowLength
}
