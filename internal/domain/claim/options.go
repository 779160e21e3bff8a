package claim

import (
	"context"
	"time"

	"github.com/issuearena/issuearena/pkg/logger"
)

// Option applies a configuration option to the Coordinator.
type Option func(*Coordinator)

// WithQuotaLimit sets the per-team concurrent-claim quota.
func WithQuotaLimit(limit int) Option {
	return func(c *Coordinator) {
		if limit > 0 {
			c.quotaLimit = limit
		}
	}
}

// WithMaxRetries sets the attempt cap for transient failures.
func WithMaxRetries(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

// WithOverallTimeout sets the wall-clock deadline for one Occupy call.
func WithOverallTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.overallTimeout = d
		}
	}
}

// WithOpTimeout sets the inner deadline guarding each store operation.
func WithOpTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.opTimeout = d
		}
	}
}

// WithBackoff sets the linear backoff step and its cap.
func WithBackoff(step, cap time.Duration) Option {
	return func(c *Coordinator) {
		if step > 0 && cap >= step {
			c.backoffStep = step
			c.backoffCap = cap
		}
	}
}

// WithSleep injects the between-attempt sleep for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Coordinator) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets a custom logger for the coordinator.
func WithLogger(l logger.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}
