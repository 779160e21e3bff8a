// Package worker runs the release workers that apply expiry penalties and
// reset overdue issues back to open.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/issuearena/issuearena/internal/adapters/mq/queue"
	"github.com/issuearena/issuearena/internal/adapters/standings"
	"github.com/issuearena/issuearena/internal/adapters/store"
	"github.com/issuearena/issuearena/internal/domain/award"
	"github.com/issuearena/issuearena/internal/domain/model"
	"github.com/issuearena/issuearena/internal/domain/policy"
	"github.com/issuearena/issuearena/pkg/logger"
	"github.com/issuearena/issuearena/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerCount    = 4
	workerShutdownTimeout = 5 * time.Second
	poolShutdownTimeout   = 30 * time.Second
)

// Job is what workers read off the queue.
type Job = model.ExpiryJob

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Job
}

// Worker processes expiry jobs until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker.
	Shutdown(ctx context.Context) error
}

// ReleaseWorker implements Worker. For each job it deducts the expiry
// penalty from the team (guarded per assignment cycle so a crash-and-resweep
// cannot double-penalize) and then resets the issue to open.
//
// The two steps are not atomic with each other; a crash in between leaves
// the issue occupied past its deadline until the next sweep pass, which is
// safe because both steps are idempotent.
type ReleaseWorker struct {
	queue  Queue
	issues store.Store
	ledger standings.Ledger
	rules  *policy.Table
	guard  award.Guard
	name   string

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewReleaseWorker creates a new worker with configuration options.
func NewReleaseWorker(q Queue, issues store.Store, ledger standings.Ledger, rules *policy.Table, guard award.Guard, opts ...Option) *ReleaseWorker {
	w := &ReleaseWorker{
		queue:    q,
		issues:   issues,
		ledger:   ledger,
		rules:    rules,
		guard:    guard,
		name:     "release-worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("release-worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Run starts the worker loop.
func (w *ReleaseWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.processJob(ctx, job); err != nil {
				metrics.RecordWorkerError()
				w.logger.Error(ctx, "error releasing expired issue",
					logger.String("issue", job.IssueID),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *ReleaseWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// processJob handles a single expiry job.
func (w *ReleaseWorker) processJob(ctx context.Context, job Job) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	// Step 1: penalty, at most once per assignment cycle.
	penalty := w.rules.Penalty(job.Difficulty)
	if penalty > 0 && w.guard.Grant(ctx, job.CycleKey()) {
		remaining, err := w.ledger.AddPoints(ctx, job.Team, -penalty)
		if err != nil {
			// Give the penalty back to the guard so the next sweep retries it.
			w.guard.Revoke(ctx, job.CycleKey())
			return fmt.Errorf("penalize %s: %w", job.Team, err)
		}
		metrics.RecordPenaltyPoints(penalty)
		w.logger.Info(ctx, "expiry penalty applied",
			logger.String("issue", job.IssueID),
			logger.String("team", job.Team),
			logger.Int("penalty", penalty),
			logger.Int("remaining", remaining),
		)
	}

	// Step 2: reset the issue, conditional on it still being held by the
	// same team in the same cycle. A failed precondition means the cycle
	// already ended; that is success, not failure.
	_, err := w.issues.Update(ctx, job.IssueID,
		func(doc model.Issue) error {
			if doc.Status != model.StatusOccupied || doc.AssignedTo != job.Team {
				return fmt.Errorf("issue no longer held by %s", job.Team)
			}
			if doc.OccupiedAt == nil || !doc.OccupiedAt.Equal(job.OccupiedAt) {
				return errors.New("issue re-occupied in a newer cycle")
			}
			return nil
		},
		func(doc model.Issue) model.Issue {
			doc.Status = model.StatusOpen
			doc.AssignedTo = ""
			doc.OccupiedAt = nil
			doc.ClosedAt = nil
			doc.PRURL = ""
			doc.PRStatus = ""
			doc.LastUpdated = time.Now()
			return doc
		},
	)
	if err != nil && !errors.Is(err, store.ErrPreconditionFailed) {
		return fmt.Errorf("release %s: %w", job.IssueID, err)
	}
	if err == nil {
		metrics.RecordIssueExpired()
		w.logger.Info(ctx, "expired issue released",
			logger.String("issue", job.IssueID),
			logger.String("team", job.Team),
		)
	}
	return nil
}

// Pool manages multiple release workers.
type Pool struct {
	workers []*ReleaseWorker
	queue   Queue

	shutdown chan struct{}

	logger logger.Logger
}

// NewPool creates a new worker pool.
func NewPool(workerCount int, q Queue, issues store.Store, ledger standings.Ledger, rules *policy.Table, guard award.Guard) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}

	pool := &Pool{
		workers:  make([]*ReleaseWorker, workerCount),
		queue:    q,
		shutdown: make(chan struct{}),
		logger:   logger.Get().Named("release-pool"),
	}

	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewReleaseWorker(
			q, issues, ledger, rules, guard,
			WithName("release-worker-"+strconv.Itoa(i)),
		)
	}

	metrics.UpdateWorkerCount(workerCount)

	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Stop gracefully stops all workers.
func (p *Pool) Stop() {
	close(p.shutdown)

	ctx, cancel := context.WithTimeout(context.Background(), workerShutdownTimeout)
	defer cancel()
	for _, w := range p.workers {
		_ = w.Shutdown(ctx)
	}
}

// Shutdown closes the queue and waits for workers to drain.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}

	return nil
}

var _ Queue = (*queue.InMemoryQueue)(nil)
