// Package award guards point mutations against double application.
//
// Merge awards and expiry penalties are applied outside the issue-store
// transaction, so a crash-and-retry or a duplicate PR-status submission could
// apply the same mutation twice. The guard records which mutation keys have
// already been granted.
package award

import (
	"context"
	"sync"
	"sync/atomic"
)

// Guard records point-mutation keys to ensure at-most-once application.
type Guard interface {
	// Grant atomically checks whether key was already granted and records it
	// if not. Returns true when the caller should apply the mutation, false
	// when it was already applied.
	Grant(ctx context.Context, key string) bool

	// Revoke removes a key, allowing the mutation to be retried. Use only
	// when a granted mutation failed to apply (e.g. ledger write failure).
	Revoke(ctx context.Context, key string)

	Size() int64
}

// inMemoryGuard implements Guard with a mutex-protected set.
//
// Bounded mode (maxSize > 0) evicts the oldest key once the set is full;
// unbounded mode (maxSize <= 0) never evicts.
type inMemoryGuard struct {
	mu      sync.Mutex
	granted map[string]struct{}
	order   []string // insertion order for bounded eviction
	maxSize int
	size    atomic.Int64
}

// Option applies a configuration option to the in-memory guard.
type Option func(*inMemoryGuard)

// WithMaxSize bounds the number of keys kept in memory. Zero or negative
// means unbounded.
func WithMaxSize(n int) Option {
	return func(g *inMemoryGuard) {
		g.maxSize = n
	}
}

// NewInMemoryGuard creates an in-memory guard with configuration options.
func NewInMemoryGuard(opts ...Option) Guard {
	g := &inMemoryGuard{
		granted: make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Grant atomically checks and records a key.
func (g *inMemoryGuard) Grant(ctx context.Context, key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.granted[key]; ok {
		return false
	}

	if g.maxSize > 0 && len(g.granted) >= g.maxSize {
		g.evictOldestLocked()
	}

	g.granted[key] = struct{}{}
	g.order = append(g.order, key)
	g.size.Add(1)
	return true
}

// Revoke removes a key so the mutation can be retried.
func (g *inMemoryGuard) Revoke(ctx context.Context, key string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.granted[key]; !ok {
		return
	}
	delete(g.granted, key)
	for i, k := range g.order {
		if k == key {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	g.size.Add(-1)
}

// Size returns the number of granted keys currently tracked.
func (g *inMemoryGuard) Size() int64 {
	return g.size.Load()
}

// evictOldestLocked drops the oldest granted key. Must hold g.mu.
func (g *inMemoryGuard) evictOldestLocked() {
	for len(g.order) > 0 {
		oldest := g.order[0]
		g.order = g.order[1:]
		if _, ok := g.granted[oldest]; ok {
			delete(g.granted, oldest)
			g.size.Add(-1)
			return
		}
	}
}
