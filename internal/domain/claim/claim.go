// Package claim implements the concurrent issue-claim protocol.
//
// The Coordinator decides atomically whether a team's claim on an open issue
// succeeds. At most one of any number of racing claims transitions an issue
// from open to occupied; every other attempt observes a terminal failure.
// Transient store failures are retried with linear backoff up to a cap, and
// every attempt races a wall-clock deadline.
package claim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/issuearena/issuearena/internal/adapters/store"
	"github.com/issuearena/issuearena/internal/domain/model"
	"github.com/issuearena/issuearena/internal/domain/quota"
	"github.com/issuearena/issuearena/pkg/logger"
	"github.com/issuearena/issuearena/pkg/metrics"
)

// Default coordinator configuration constants.
const (
	defaultQuotaLimit     = 3
	defaultMaxRetries     = 3
	defaultOverallTimeout = 10 * time.Second
	defaultOpTimeout      = 5 * time.Second
	defaultBackoffStep    = 1 * time.Second
	defaultBackoffCap     = 3 * time.Second
)

// Result is the outcome of one Occupy call. Failures are values, never
// panics; Err carries a sentinel from this package for classification.
type Result struct {
	Success bool
	Err     error
}

// Message returns the user-facing text for the result.
func (r Result) Message() string {
	if r.Success {
		return "issue occupied"
	}
	if r.Err == nil {
		return "claim failed"
	}
	return r.Err.Error()
}

// Coordinator applies quota and state-transition rules to claim attempts.
type Coordinator struct {
	store store.Store
	cache *quota.Cache

	quotaLimit     int
	maxRetries     int
	overallTimeout time.Duration
	opTimeout      time.Duration
	backoffStep    time.Duration
	backoffCap     time.Duration

	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
	logger logger.Logger
}

// NewCoordinator creates a claim coordinator. The quota cache is
// constructor-injected; the coordinator owns its only mutation surface.
func NewCoordinator(st store.Store, cache *quota.Cache, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:          st,
		cache:          cache,
		quotaLimit:     defaultQuotaLimit,
		maxRetries:     defaultMaxRetries,
		overallTimeout: defaultOverallTimeout,
		opTimeout:      defaultOpTimeout,
		backoffStep:    defaultBackoffStep,
		backoffCap:     defaultBackoffCap,
		sleep:          sleepCtx,
		now:            time.Now,
		logger:         logger.Get().Named("claim"),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Occupy attempts to claim issueID for team.
//
// Precondition order: input validation, fast-path snapshot read, quota
// check, then the authoritative conditional transaction. Terminal failures
// return immediately; transient ones back off linearly and retry from the
// authoritative step.
func (c *Coordinator) Occupy(ctx context.Context, issueID, team string) Result {
	metrics.RecordClaimAttempt()

	if issueID == "" || team == "" {
		metrics.RecordClaimRejected("invalid_input")
		return Result{Err: ErrInvalidInput}
	}

	ctx, cancel := context.WithTimeout(ctx, c.overallTimeout)
	defer cancel()

	// Fast path: a snapshot read outside the transaction. Best-effort; a
	// failed read here is not fatal, the transaction re-checks everything.
	if snap, err := c.readSnapshot(ctx, issueID); err == nil {
		if reject := preconditions(snap, team); reject != nil {
			metrics.RecordClaimRejected(rejectLabel(reject))
			return Result{Err: reject}
		}
	} else if errors.Is(err, store.ErrNotFound) {
		metrics.RecordClaimRejected("not_found")
		return Result{Err: err}
	}

	if err := c.checkQuota(ctx, team); err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			metrics.RecordClaimRejected("quota_exceeded")
			return Result{Err: err}
		}
		// Quota query hit a transient failure; the retry loop below will
		// re-derive it, so fall through.
		c.logger.Warn(ctx, "quota pre-check failed", logger.String("team", team), logger.Error(err))
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		committed, err := c.occupyTxn(ctx, issueID, team)
		if err == nil {
			// Bump the cached count in place so claims inside the same TTL
			// window see it without a fresh query.
			c.cache.Increment(team)
			metrics.RecordClaimWon()
			c.logger.Info(ctx, "issue occupied",
				logger.String("issue", issueID),
				logger.String("team", team),
				logger.Int("attempt", attempt),
				logger.Any("version", committed.Version),
			)
			return Result{Success: true}
		}

		if !transient(err) {
			metrics.RecordClaimRejected(rejectLabel(err))
			return Result{Err: err}
		}

		lastErr = err
		if attempt == c.maxRetries {
			break
		}

		metrics.RecordClaimRetry()
		c.logger.Warn(ctx, "transient claim failure, backing off",
			logger.String("issue", issueID),
			logger.String("team", team),
			logger.Int("attempt", attempt),
			logger.Error(err),
		)
		if err := c.sleep(ctx, c.backoff(attempt)); err != nil {
			lastErr = fmt.Errorf("%w: %w", ErrTimeout, err)
			break
		}

		// Re-verify quota; a still-fresh cache entry stands, an expired one
		// triggers a new authoritative count query.
		if err := c.checkQuota(ctx, team); errors.Is(err, ErrQuotaExceeded) {
			metrics.RecordClaimRejected("quota_exceeded")
			return Result{Err: err}
		}
	}

	metrics.RecordClaimRetriesExhausted()
	return Result{Err: fmt.Errorf("%w: %w", ErrRetriesExhausted, lastErr)}
}

// occupyTxn runs the authoritative conditional transaction, racing it
// against the inner operation timeout.
func (c *Coordinator) occupyTxn(ctx context.Context, issueID, team string) (model.Issue, error) {
	return c.await(ctx, func(opCtx context.Context) (model.Issue, error) {
		now := c.now()
		return c.store.Update(opCtx, issueID,
			func(doc model.Issue) error {
				return preconditions(doc, team)
			},
			func(doc model.Issue) model.Issue {
				doc.Status = model.StatusOccupied
				doc.AssignedTo = team
				doc.OccupiedAt = &now
				doc.LastUpdated = now
				return doc
			},
		)
	})
}

// preconditions applies the claim business rules to an issue document.
// Checked both on the fast-path snapshot and inside the transaction; the
// transaction check is the one that closes the race window.
func preconditions(doc model.Issue, team string) error {
	if doc.AssignedTo == team && doc.Status != model.StatusOpen {
		return ErrAlreadySelf
	}
	if doc.Status != model.StatusOpen {
		return ErrAlreadyResolved
	}
	return nil
}

// checkQuota returns ErrQuotaExceeded when the team's occupied count is at
// the limit. A fresh cache entry short-circuits the store; an expired one
// falls back to the authoritative count query, capped at the limit.
func (c *Coordinator) checkQuota(ctx context.Context, team string) error {
	count, ok := c.cache.Get(team)
	if !ok {
		issues, err := c.await2(ctx, func(opCtx context.Context) ([]model.Issue, error) {
			return c.store.ListByAssignee(opCtx, team, model.StatusOccupied, c.quotaLimit)
		})
		if err != nil {
			return fmt.Errorf("quota query: %w", err)
		}
		count = len(issues)
		c.cache.Set(team, count)
	}
	if count >= c.quotaLimit {
		return fmt.Errorf("%w (limit %d)", ErrQuotaExceeded, c.quotaLimit)
	}
	return nil
}

// readSnapshot point-reads the issue under the inner timeout.
func (c *Coordinator) readSnapshot(ctx context.Context, issueID string) (model.Issue, error) {
	return c.await(ctx, func(opCtx context.Context) (model.Issue, error) {
		return c.store.Get(opCtx, issueID)
	})
}

// await races op against the inner operation timeout: first of
// {operation, timeout} wins. Losing the race does NOT cancel the underlying
// store call, which may still commit server-side. The caller only stops
// waiting; the change feed reconciles any claim that lands after a timeout.
func (c *Coordinator) await(ctx context.Context, op func(context.Context) (model.Issue, error)) (model.Issue, error) {
	type outcome struct {
		doc model.Issue
		err error
	}

	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opTimeout)
	ch := make(chan outcome, 1)
	go func() {
		defer cancel()
		doc, err := op(opCtx)
		ch <- outcome{doc: doc, err: err}
	}()

	timer := time.NewTimer(c.opTimeout)
	defer timer.Stop()

	select {
	case out := <-ch:
		return out.doc, out.err
	case <-timer.C:
		return model.Issue{}, fmt.Errorf("%w after %s", ErrTimeout, c.opTimeout)
	case <-ctx.Done():
		return model.Issue{}, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
	}
}

// await2 is the list-shaped twin of await.
func (c *Coordinator) await2(ctx context.Context, op func(context.Context) ([]model.Issue, error)) ([]model.Issue, error) {
	type outcome struct {
		docs []model.Issue
		err  error
	}

	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opTimeout)
	ch := make(chan outcome, 1)
	go func() {
		defer cancel()
		docs, err := op(opCtx)
		ch <- outcome{docs: docs, err: err}
	}()

	timer := time.NewTimer(c.opTimeout)
	defer timer.Stop()

	select {
	case out := <-ch:
		return out.docs, out.err
	case <-timer.C:
		return nil, fmt.Errorf("%w after %s", ErrTimeout, c.opTimeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
	}
}

// backoff returns the linear delay before the next attempt:
// min(step*attempt, cap).
func (c *Coordinator) backoff(attempt int) time.Duration {
	d := c.backoffStep * time.Duration(attempt)
	if d > c.backoffCap {
		d = c.backoffCap
	}
	return d
}

// transient reports whether err is retry-eligible. Business-rule failures
// and malformed input are terminal; infrastructure failures are transient.
func transient(err error) bool {
	switch {
	case errors.Is(err, ErrAlreadyResolved),
		errors.Is(err, ErrAlreadySelf),
		errors.Is(err, ErrQuotaExceeded),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, store.ErrPreconditionFailed),
		errors.Is(err, store.ErrNotFound):
		return false
	case errors.Is(err, store.ErrUnavailable),
		errors.Is(err, ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return true
	default:
		// Unknown failures are treated as transient: retrying an unknown
		// error is safe because the transaction re-checks preconditions.
		return true
	}
}

// rejectLabel maps a terminal error to its metrics label.
func rejectLabel(err error) string {
	switch {
	case errors.Is(err, ErrAlreadySelf):
		return "already_self"
	case errors.Is(err, ErrAlreadyResolved):
		return "already_resolved"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	default:
		return "other"
	}
}

// sleepCtx waits d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
