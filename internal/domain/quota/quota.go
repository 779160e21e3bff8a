// Package quota tracks a short-lived per-team count of occupied issues so
// the claim path can reject obviously over-quota attempts without a store
// round trip.
//
// The cache is best-effort only: entries expire after a TTL, reads and
// increments are not compare-and-swap against the store, and the
// authoritative claim transaction does not re-verify quota. It trades strict
// enforcement for fewer store queries.
package quota

import (
	"math/rand"
	"sync"
	"time"

	"github.com/issuearena/issuearena/pkg/metrics"
)

// Default cache configuration constants.
const (
	defaultTTL              = 5 * time.Second
	defaultSweepProbability = 0.1
)

// Option applies a configuration option to the Cache.
type Option func(*Cache)

// WithTTL sets how long a sampled count stays valid.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithSweepProbability sets the chance that a call opportunistically drops
// all expired entries. Zero disables passive sweeping.
func WithSweepProbability(p float64) Option {
	return func(c *Cache) {
		if p >= 0 && p <= 1 {
			c.sweepProbability = p
		}
	}
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

type entry struct {
	count     int
	sampledAt time.Time
}

// Cache is an in-memory TTL cache of per-team occupied counts.
type Cache struct {
	mu               sync.Mutex
	entries          map[string]entry
	ttl              time.Duration
	sweepProbability float64
	now              func() time.Time
	rng              *rand.Rand
}

// NewCache creates a quota cache with configuration options.
func NewCache(opts ...Option) *Cache {
	c := &Cache{
		entries:          make(map[string]entry),
		ttl:              defaultTTL,
		sweepProbability: defaultSweepProbability,
		now:              time.Now,
		rng:              rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // eviction jitter, not security-sensitive
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Get returns the cached occupied count for a team. The second return is
// false on a miss or when the entry has outlived the TTL.
func (c *Cache) Get(team string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.maybeSweepLocked()

	e, ok := c.entries[team]
	if !ok || c.now().Sub(e.sampledAt) >= c.ttl {
		metrics.RecordQuotaCacheMiss()
		return 0, false
	}
	metrics.RecordQuotaCacheHit()
	return e.count, true
}

// Set stores a freshly sampled count for a team.
func (c *Cache) Set(team string, count int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.maybeSweepLocked()
	c.entries[team] = entry{count: count, sampledAt: c.now()}
	metrics.UpdateQuotaCacheSize(len(c.entries))
}

// Increment bumps the cached count in place after a successful claim so
// later claims inside the same TTL window see the new count without a fresh
// query. The sample timestamp is kept so the entry still expires on schedule.
func (c *Cache) Increment(team string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[team]
	if !ok || c.now().Sub(e.sampledAt) >= c.ttl {
		return // nothing fresh to bump
	}
	e.count++
	c.entries[team] = e
}

// Invalidate drops a team's entry, forcing the next claim to re-query.
func (c *Cache) Invalidate(team string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, team)
	metrics.UpdateQuotaCacheSize(len(c.entries))
}

// SweepExpired drops every entry past the TTL and returns how many were
// removed.
func (c *Cache) SweepExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked()
}

// Len returns the number of entries currently held, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// maybeSweepLocked runs a full expired-entry sweep on a small fraction of
// calls. Bounded memory without a dedicated timer goroutine.
func (c *Cache) maybeSweepLocked() {
	if c.sweepProbability <= 0 {
		return
	}
	if c.rng.Float64() < c.sweepProbability {
		c.sweepLocked()
	}
}

func (c *Cache) sweepLocked() int {
	now := c.now()
	removed := 0
	for team, e := range c.entries {
		if now.Sub(e.sampledAt) >= c.ttl {
			delete(c.entries, team)
			removed++
		}
	}
	metrics.UpdateQuotaCacheSize(len(c.entries))
	return removed
}
