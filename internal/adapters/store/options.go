package store

import "time"

// Option applies a configuration option to the MemStore.
type Option func(*MemStore)

// WithFaultRate sets the probability that a read or conditional update fails
// with ErrUnavailable. Used by tests and the claim simulator to exercise
// retry paths. Zero disables fault injection.
func WithFaultRate(rate float64) Option {
	return func(s *MemStore) {
		if rate >= 0 && rate <= 1 {
			s.faultRate = rate
		}
	}
}

// WithLatencyRange sets a simulated per-operation latency range to model a
// remote document store.
func WithLatencyRange(minLatency, maxLatency time.Duration) Option {
	return func(s *MemStore) {
		if minLatency > 0 && maxLatency > minLatency {
			s.minLatency = minLatency
			s.maxLatency = maxLatency
		}
	}
}

// WithLocalEcho makes every committed mutation first publish an
// OriginLocal snapshot before the OriginServer one, mimicking a client SDK
// that surfaces cached writes ahead of server confirmation.
func WithLocalEcho() Option {
	return func(s *MemStore) {
		s.localEcho = true
	}
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *MemStore) {
		if now != nil {
			s.now = now
		}
	}
}
