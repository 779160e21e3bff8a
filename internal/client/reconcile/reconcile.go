// Package reconcile keeps an optimistic client-side view of the issue list
// consistent with the authoritative claim outcome and the store change feed.
//
// On a claim attempt the local list is mutated immediately so feedback is
// instant; the coordinator's result then either confirms the mutation or
// rolls the list back to the exact pre-attempt snapshot. Feed snapshots that
// arrive while an attempt is pending are deferred until it resolves, and
// snapshots originating from the local cache are ignored outright.
package reconcile

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/issuearena/issuearena/internal/adapters/store"
	"github.com/issuearena/issuearena/internal/domain/claim"
	"github.com/issuearena/issuearena/internal/domain/model"
	"github.com/issuearena/issuearena/pkg/logger"
	"github.com/issuearena/issuearena/pkg/metrics"
)

// Default reconciler configuration constants.
const (
	defaultResubscribeBackoff = 5 * time.Second
)

// State is the client-side reconciliation state of one issue.
type State int

// Per-issue reconciliation states.
const (
	// Confirmed: the local view matches the last authoritative snapshot.
	Confirmed State = iota
	// PendingLocal: a speculative claim mutation is applied locally and the
	// coordinator has not resolved yet.
	PendingLocal
	// RollingBack: the attempt failed and the pre-attempt snapshot is being
	// restored.
	RollingBack
)

// Claimer is the coordinator surface the reconciler drives.
type Claimer interface {
	Occupy(ctx context.Context, issueID, team string) claim.Result
}

// Feed is the change-feed surface the reconciler subscribes to.
type Feed interface {
	Watch(onChange func([]model.Issue, store.Origin), onError func(error)) (cancel func())
}

// Option applies a configuration option to the Reconciler.
type Option func(*Reconciler)

// WithResubscribeBackoff sets the fixed delay before re-establishing a
// failed feed subscription.
func WithResubscribeBackoff(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.resubscribeBackoff = d
		}
	}
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets a custom logger for the reconciler.
func WithLogger(l logger.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// Reconciler owns the optimistic local issue list.
type Reconciler struct {
	coordinator Claimer
	feed        Feed

	mu       sync.Mutex
	issues   map[string]model.Issue
	states   map[string]State
	pending  int            // number of unresolved claim attempts
	deferred []model.Issue  // latest server snapshot held back while pending

	resubscribeBackoff time.Duration
	now                func() time.Time

	logger logger.Logger
}

// New creates a reconciler over the given coordinator and change feed.
func New(coordinator Claimer, feed Feed, opts ...Option) *Reconciler {
	r := &Reconciler{
		coordinator:        coordinator,
		feed:               feed,
		issues:             make(map[string]model.Issue),
		states:             make(map[string]State),
		resubscribeBackoff: defaultResubscribeBackoff,
		now:                time.Now,
		logger:             logger.Get().Named("reconcile"),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run subscribes to the change feed and keeps the subscription alive,
// re-establishing it after a stream error with a fixed backoff. Blocks
// until ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	for {
		errCh := make(chan error, 1)
		cancel := r.feed.Watch(r.OnSnapshot, func(err error) {
			select {
			case errCh <- err:
			default:
			}
		})

		select {
		case <-ctx.Done():
			cancel()
			return
		case err := <-errCh:
			cancel()
			metrics.RecordFeedError()
			r.logger.Warn(ctx, "change feed failed, resubscribing",
				logger.Error(err),
				logger.Any("backoff", r.resubscribeBackoff),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.resubscribeBackoff):
			}
		}
	}
}

// OnSnapshot handles one change-feed delivery. Local-cache echoes are
// dropped so offline-queued writes cannot churn the view before the server
// confirms them. Server snapshots arriving while a claim is pending are
// held back and applied once the attempt resolves.
func (r *Reconciler) OnSnapshot(items []model.Issue, origin store.Origin) {
	if origin == store.OriginLocal {
		metrics.RecordFeedLocalEchoDropped()
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pending > 0 {
		r.deferred = cloneList(items)
		return
	}
	r.applySnapshotLocked(items)
}

// Claim runs one optimistic claim attempt.
func (r *Reconciler) Claim(ctx context.Context, issueID, team string) claim.Result {
	r.mu.Lock()
	snapshot := r.snapshotLocked()
	now := r.now()
	if doc, ok := r.issues[issueID]; ok {
		doc.Status = model.StatusOccupied
		doc.AssignedTo = team
		doc.OccupiedAt = &now
		doc.LastUpdated = now
		r.issues[issueID] = doc
	}
	r.states[issueID] = PendingLocal
	r.pending++
	r.mu.Unlock()

	// The coordinator call suspends on store I/O; never hold the list lock
	// across it.
	result := r.coordinator.Occupy(ctx, issueID, team)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending--

	if result.Success {
		r.states[issueID] = Confirmed
		metrics.RecordReconcileConfirmed()
	} else {
		// Restore the pre-attempt snapshot exactly; no partial merge.
		r.states[issueID] = RollingBack
		r.issues = snapshot
		r.states[issueID] = Confirmed
		metrics.RecordReconcileRollback()
		r.logger.Info(ctx, "claim rolled back",
			logger.String("issue", issueID),
			logger.String("team", team),
			logger.String("reason", result.Message()),
		)
	}

	// Whatever the outcome, a deferred authoritative snapshot wins.
	if r.pending == 0 && r.deferred != nil {
		r.applySnapshotLocked(r.deferred)
		r.deferred = nil
	}

	return result
}

// Issues returns the current local view ordered by id.
func (r *Reconciler) Issues() []model.Issue {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.Issue, 0, len(r.issues))
	for _, doc := range r.issues {
		out = append(out, doc.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// StateOf returns the reconciliation state tracked for an issue.
func (r *Reconciler) StateOf(issueID string) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[issueID]
}

// applySnapshotLocked replaces the local view with a full authoritative
// snapshot. Must hold r.mu.
func (r *Reconciler) applySnapshotLocked(items []model.Issue) {
	next := make(map[string]model.Issue, len(items))
	for _, doc := range items {
		next[doc.ID] = doc.Clone()
		r.states[doc.ID] = Confirmed
	}
	r.issues = next
}

// snapshotLocked deep-copies the local view. Must hold r.mu.
func (r *Reconciler) snapshotLocked() map[string]model.Issue {
	out := make(map[string]model.Issue, len(r.issues))
	for id, doc := range r.issues {
		out[id] = doc.Clone()
	}
	return out
}

func cloneList(items []model.Issue) []model.Issue {
	out := make([]model.Issue, len(items))
	for i, doc := range items {
		out[i] = doc.Clone()
	}
	return out
}
