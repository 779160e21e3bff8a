// Package sweeper scans occupied issues on a fixed interval and enqueues
// release jobs for those held past their difficulty time limit.
//
// The sweeper only detects expiry; applying the penalty and resetting the
// issue is the release workers' job. A scan pass that crashes mid-way is
// harmless: nothing is mutated here, and the next pass sees the same
// overdue issues again.
package sweeper

import (
	"context"
	"time"

	"github.com/issuearena/issuearena/internal/adapters/mq/queue"
	"github.com/issuearena/issuearena/internal/adapters/store"
	"github.com/issuearena/issuearena/internal/domain/model"
	"github.com/issuearena/issuearena/internal/domain/policy"
	"github.com/issuearena/issuearena/pkg/logger"
	"github.com/issuearena/issuearena/pkg/metrics"
)

// Default sweeper configuration constants.
const (
	defaultInterval = 10 * time.Second
)

// Option applies a configuration option to the Sweeper.
type Option func(*Sweeper)

// WithInterval sets the scan interval.
func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the sweeper.
func WithLogger(l logger.Logger) Option {
	return func(s *Sweeper) {
		if l != nil {
			s.logger = l
		}
	}
}

// Sweeper periodically scans for overdue occupied issues.
type Sweeper struct {
	issues store.Store
	jobs   queue.Queue
	rules  *policy.Table

	interval time.Duration
	now      func() time.Time

	stopCh chan struct{}
	done   chan struct{}

	logger logger.Logger
}

// New creates a sweeper with configuration options.
func New(issues store.Store, jobs queue.Queue, rules *policy.Table, opts ...Option) *Sweeper {
	s := &Sweeper{
		issues:   issues,
		jobs:     jobs,
		rules:    rules,
		interval: defaultInterval,
		now:      time.Now,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("sweeper"),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start runs the scan loop in a goroutine until ctx is canceled or Stop is
// called.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				if _, err := s.Sweep(ctx); err != nil {
					s.logger.Error(ctx, "sweep pass failed", logger.Error(err))
				}
			}
		}
	}()
}

// Stop signals the scan loop to exit and waits for it.
func (s *Sweeper) Stop() {
	select {
	case <-s.stopCh:
		// already stopped
	default:
		close(s.stopCh)
	}
	<-s.done
}

// Sweep runs one scan pass and returns the number of jobs enqueued. Exposed
// so tests and the service can trigger a pass without waiting a tick.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() {
		metrics.RecordSweepDuration(float64(time.Since(start).Milliseconds()))
	}()
	metrics.RecordSweepRun()

	issues, err := s.issues.List(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now()
	enqueued := 0
	for _, issue := range issues {
		if issue.Status != model.StatusOccupied || issue.OccupiedAt == nil {
			continue
		}
		if !s.rules.Expired(issue.Difficulty(), *issue.OccupiedAt, now) {
			continue
		}

		job := model.ExpiryJob{
			IssueID:    issue.ID,
			Team:       issue.AssignedTo,
			Difficulty: issue.Difficulty(),
			OccupiedAt: *issue.OccupiedAt,
		}
		if !s.jobs.Enqueue(ctx, job) {
			// Queue full or closed; the issue stays overdue and the next
			// pass picks it up again.
			s.logger.Warn(ctx, "could not enqueue expiry job",
				logger.String("issue", issue.ID),
				logger.String("team", issue.AssignedTo),
			)
			continue
		}
		enqueued++
		s.logger.Info(ctx, "issue overdue, release queued",
			logger.String("issue", issue.ID),
			logger.String("team", issue.AssignedTo),
			logger.String("difficulty", string(issue.Difficulty())),
		)
	}

	return enqueued, nil
}
