package gentlify

import "time"

// Slot is the handle yielded by Throttle.Acquire. Callers report token
// consumption for the admitted request via RecordTokens; the throttle reads
// TokensReported when the slot is released.
type Slot struct {
	tokensReported int
	attempt        int
	startedAt      time.Time
}

// RecordTokens reports token consumption for this slot.
func (s *Slot) RecordTokens(count int) {
	s.tokensReported += count
}

// TokensReported returns the tokens reported via RecordTokens during this
// slot's lifetime.
func (s *Slot) TokensReported() int {
	return s.tokensReported
}

// Attempt returns the zero-indexed attempt number: 0 on the first call,
// incrementing on each retry within the same Execute call.
func (s *Slot) Attempt() int {
	return s.attempt
}
