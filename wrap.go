package gentlify

import "context"

// Wrap returns a function that runs fn under the throttle's Acquire/Release
// pipeline with no retries — a thin decorator convenience over the core
// Acquire/Release API, for callers that don't need Execute's retry loop.
func (t *Throttle) Wrap(fn func(ctx context.Context) (any, error)) func(ctx context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		slot, err := t.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		result, callErr := fn(ctx)
		t.Release(slot, callErr)
		return result, callErr
	}
}
