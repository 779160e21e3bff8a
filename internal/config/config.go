// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(...) initializer to build a Config with defaults.
// - All future functions must accept context.Context as the first parameter.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"context"
	"runtime"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// QuotaLimit caps concurrently occupied issues per team.
	QuotaLimit int `koanf:"quota_limit"`

	// QuotaCacheTTLMS bounds how long a cached occupancy count is trusted.
	QuotaCacheTTLMS int `koanf:"quota_cache_ttl_ms"`

	// MaxRetries bounds transient-failure claim attempts.
	MaxRetries int `koanf:"max_retries"`

	// OverallTimeoutMS bounds one whole claim attempt end to end.
	OverallTimeoutMS int `koanf:"overall_timeout_ms"`

	// OpTimeoutMS bounds each individual store operation inside a claim.
	OpTimeoutMS int `koanf:"op_timeout_ms"`

	// SweepIntervalMS sets how often the expiry sweeper scans.
	SweepIntervalMS int `koanf:"sweep_interval_ms"`

	// ReleaseQueueSize bounds the in-memory expiry job queue.
	ReleaseQueueSize int `koanf:"release_queue_size"`

	// WorkerCount sets the number of release workers.
	WorkerCount int `koanf:"worker_count"`

	// GuardSize bounds the once-per-cycle award guard.
	GuardSize int `koanf:"guard_size"`

	// MaxStandingsLimit caps GET /standings?limit.
	MaxStandingsLimit int `koanf:"max_standings_limit"`

	// StoreLatencyMinMS and StoreLatencyMaxMS simulate document store latency bounds.
	StoreLatencyMinMS int `koanf:"store_latency_min_ms"`
	StoreLatencyMaxMS int `koanf:"store_latency_max_ms"`

	// StoreFaultRate injects transient store failures, 0.0 to 1.0.
	StoreFaultRate float64 `koanf:"store_fault_rate"`
}

// Default tuning constants.
const (
	defaultQuotaLimit       = 3
	defaultQuotaCacheTTLMS  = 5_000
	defaultMaxRetries       = 3
	defaultOverallTimeoutMS = 10_000
	defaultOpTimeoutMS      = 5_000
	defaultSweepIntervalMS  = 10_000
	defaultReleaseQueueSize = 1024
	defaultGuardSize        = 100_000
	defaultMaxStandings     = 100
)

// New creates a Config using defaults. Context is accepted first to satisfy
// the project-wide convention; it is reserved for future use and is currently
// unused.
func New(_ context.Context) *Config {
	c := &Config{
		LogLevel:          "info",
		Addr:              ":9080",
		QuotaLimit:        defaultQuotaLimit,
		QuotaCacheTTLMS:   defaultQuotaCacheTTLMS,
		MaxRetries:        defaultMaxRetries,
		OverallTimeoutMS:  defaultOverallTimeoutMS,
		OpTimeoutMS:       defaultOpTimeoutMS,
		SweepIntervalMS:   defaultSweepIntervalMS,
		ReleaseQueueSize:  defaultReleaseQueueSize,
		WorkerCount:       runtime.NumCPU() * 2,
		GuardSize:         defaultGuardSize,
		MaxStandingsLimit: defaultMaxStandings,
		StoreLatencyMinMS: 0,
		StoreLatencyMaxMS: 0,
		StoreFaultRate:    0,
	}
	return c
}
