package store

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/issuearena/issuearena/internal/domain/model"
	"github.com/issuearena/issuearena/pkg/metrics"
)

// MemStore implements Store with a mutex-protected document map.
//
// Conditional updates run under the lock, so conflicting transactions on the
// same document are serialized: exactly one observes the pre-write state and
// commits, the rest see the post-write state in their precondition check.
type MemStore struct {
	mu      sync.RWMutex
	docs    map[string]model.Issue
	version uint64

	subMu   sync.Mutex
	subs    map[int]subscriber
	nextSub int

	faultRate  float64
	minLatency time.Duration
	maxLatency time.Duration
	localEcho  bool
	now        func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand

	failMu   sync.Mutex
	failNext int
}

type subscriber struct {
	onChange func([]model.Issue, Origin)
	onError  func(error)
}

// NewMemStore creates an in-memory issue store with configuration options.
func NewMemStore(opts ...Option) *MemStore {
	s := &MemStore{
		docs: make(map[string]model.Issue),
		subs: make(map[int]subscriber),
		now:  time.Now,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // fault injection jitter, not security-sensitive
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// FailNext makes the next n conditional updates fail with ErrUnavailable.
// Deterministic counterpart to WithFaultRate for retry tests.
func (s *MemStore) FailNext(n int) {
	s.failMu.Lock()
	s.failNext = n
	s.failMu.Unlock()
}

// Get implements Store.Get.
func (s *MemStore) Get(ctx context.Context, id string) (model.Issue, error) {
	if err := s.simulateIO(ctx); err != nil {
		return model.Issue{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		return model.Issue{}, fmt.Errorf("get %q: %w", id, ErrNotFound)
	}
	return doc.Clone(), nil
}

// List implements Store.List. Results are ordered by id for stable output.
func (s *MemStore) List(ctx context.Context) ([]model.Issue, error) {
	if err := s.simulateIO(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(), nil
}

// ListByAssignee implements Store.ListByAssignee.
func (s *MemStore) ListByAssignee(ctx context.Context, team string, status model.Status, limit int) ([]model.Issue, error) {
	if err := s.simulateIO(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Issue
	for _, doc := range s.docs {
		if doc.AssignedTo != team || doc.Status != status {
			continue
		}
		out = append(out, doc.Clone())
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Create implements Store.Create.
func (s *MemStore) Create(ctx context.Context, issue model.Issue) error {
	if err := s.simulateIO(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	if _, ok := s.docs[issue.ID]; ok {
		s.mu.Unlock()
		return fmt.Errorf("create %q: %w", issue.ID, ErrExists)
	}
	s.version++
	issue.Version = s.version
	if issue.LastUpdated.IsZero() {
		issue.LastUpdated = s.now()
	}
	s.docs[issue.ID] = issue.Clone()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	metrics.RecordStoreCommit()
	s.publish(snapshot)
	return nil
}

// Update implements Store.Update. The precondition and mutation run under
// the store lock, giving per-document linearizable read-modify-write.
func (s *MemStore) Update(ctx context.Context, id string, precond func(model.Issue) error, mutate func(model.Issue) model.Issue) (model.Issue, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreUpdateLatency(float64(time.Since(start).Milliseconds()))
	}()

	if err := s.takeInjectedFault(); err != nil {
		metrics.RecordStoreUnavailable()
		return model.Issue{}, err
	}
	if err := s.simulateIO(ctx); err != nil {
		return model.Issue{}, err
	}

	s.mu.Lock()
	doc, ok := s.docs[id]
	if !ok {
		s.mu.Unlock()
		return model.Issue{}, fmt.Errorf("update %q: %w", id, ErrNotFound)
	}
	if err := precond(doc.Clone()); err != nil {
		s.mu.Unlock()
		metrics.RecordStorePreconditionFailed()
		return model.Issue{}, fmt.Errorf("update %q: %w: %w", id, ErrPreconditionFailed, err)
	}
	mutated := mutate(doc.Clone())
	mutated.ID = id // identity is immutable
	s.version++
	mutated.Version = s.version
	s.docs[id] = mutated.Clone()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	metrics.RecordStoreCommit()
	s.publish(snapshot)
	return mutated, nil
}

// Watch implements Store.Watch.
func (s *MemStore) Watch(onChange func([]model.Issue, Origin), onError func(error)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = subscriber{onChange: onChange, onError: onError}
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// Count returns the number of documents held.
func (s *MemStore) Count(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// FailSubscribers delivers a stream error to every subscriber. Used by tests
// to exercise the feed re-subscription path.
func (s *MemStore) FailSubscribers(err error) {
	s.subMu.Lock()
	subs := make([]subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subMu.Unlock()

	for _, sub := range subs {
		if sub.onError != nil {
			sub.onError(err)
		}
	}
}

// snapshotLocked copies all documents ordered by id. Must hold s.mu.
func (s *MemStore) snapshotLocked() []model.Issue {
	out := make([]model.Issue, 0, len(s.docs))
	for _, doc := range s.docs {
		out = append(out, doc.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// publish fans a snapshot out to subscribers. Local echo, when enabled, goes
// out first, the way a caching client SDK surfaces unconfirmed writes.
func (s *MemStore) publish(snapshot []model.Issue) {
	s.subMu.Lock()
	subs := make([]subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subMu.Unlock()

	for _, sub := range subs {
		if sub.onChange == nil {
			continue
		}
		if s.localEcho {
			sub.onChange(snapshot, OriginLocal)
		}
		sub.onChange(snapshot, OriginServer)
	}
}

// takeInjectedFault consumes one queued deterministic fault, if any.
func (s *MemStore) takeInjectedFault() error {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	if s.failNext > 0 {
		s.failNext--
		return fmt.Errorf("injected fault: %w", ErrUnavailable)
	}
	return nil
}

// simulateIO applies the configured fault rate and latency window.
func (s *MemStore) simulateIO(ctx context.Context) error {
	if s.faultRate > 0 {
		s.rngMu.Lock()
		fail := s.rng.Float64() < s.faultRate
		s.rngMu.Unlock()
		if fail {
			metrics.RecordStoreUnavailable()
			return fmt.Errorf("simulated outage: %w", ErrUnavailable)
		}
	}

	if s.maxLatency > 0 {
		s.rngMu.Lock()
		latency := s.minLatency + time.Duration(s.rng.Int63n(int64(s.maxLatency-s.minLatency)))
		s.rngMu.Unlock()
		select {
		case <-ctx.Done():
			return fmt.Errorf("store io: %w", ctx.Err())
		case <-time.After(latency):
		}
	}
	return nil
}
