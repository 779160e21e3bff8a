// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	jobqueue "github.com/issuearena/issuearena/internal/adapters/mq/queue"
	workerpool "github.com/issuearena/issuearena/internal/adapters/mq/worker"
	"github.com/issuearena/issuearena/internal/adapters/standings"
	"github.com/issuearena/issuearena/internal/adapters/store"
	"github.com/issuearena/issuearena/internal/domain/award"
	"github.com/issuearena/issuearena/internal/domain/claim"
	"github.com/issuearena/issuearena/internal/domain/model"
	"github.com/issuearena/issuearena/internal/domain/policy"
	"github.com/issuearena/issuearena/internal/domain/quota"
	"github.com/issuearena/issuearena/internal/sweeper"
	"github.com/issuearena/issuearena/pkg/logger"
	"github.com/issuearena/issuearena/pkg/metrics"
)

// Default service configuration constants.
const (
	defaultQueueSize = 1024
	defaultGuardSize = 100_000
	awardGuardPrefix = "award:"
)

// Service implements the API dependencies for the contest tracker.
type Service struct {
	mu sync.RWMutex

	// Core components
	issues      store.Store
	quotaCache  *quota.Cache
	coordinator *claim.Coordinator
	board       *standings.TreapStore
	rules       *policy.Table
	guard       award.Guard
	jobQueue    jobqueue.Queue
	workerPool  *workerpool.Pool
	expiry      *sweeper.Sweeper

	// Configuration
	workerCount    int
	queueSize      int
	guardSize      int
	quotaLimit     int
	quotaCacheTTL  time.Duration
	maxRetries     int
	overallTimeout time.Duration
	opTimeout      time.Duration
	sweepInterval  time.Duration
	timeLimits     map[model.Difficulty]time.Duration
	penalties      map[model.Difficulty]int
	awards         map[model.Difficulty]int
	// Store fault simulation configuration
	storeFaultRate  float64
	storeMinLatency time.Duration
	storeMaxLatency time.Duration

	// State
	started bool
	stopCh  chan struct{}

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of release worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the expiry job queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithGuardSize sets the size of the once-per-cycle award guard.
func WithGuardSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.guardSize = size
		}
	}
}

// WithQuotaLimit caps concurrently occupied issues per team.
func WithQuotaLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.quotaLimit = limit
		}
	}
}

// WithQuotaCacheTTL bounds how long a cached occupancy count is trusted.
func WithQuotaCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.quotaCacheTTL = ttl
		}
	}
}

// WithMaxRetries bounds transient-failure claim attempts.
func WithMaxRetries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// WithClaimTimeouts sets the overall and per-operation claim deadlines.
func WithClaimTimeouts(overall, op time.Duration) Option {
	return func(s *Service) {
		if overall > 0 {
			s.overallTimeout = overall
		}
		if op > 0 {
			s.opTimeout = op
		}
	}
}

// WithSweepInterval sets how often the expiry sweeper scans.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

// WithTimeLimits overrides the per-difficulty occupation time limits.
func WithTimeLimits(limits map[model.Difficulty]time.Duration) Option {
	return func(s *Service) {
		s.timeLimits = limits
	}
}

// WithPenalties overrides the per-difficulty expiry penalties.
func WithPenalties(penalties map[model.Difficulty]int) Option {
	return func(s *Service) {
		s.penalties = penalties
	}
}

// WithAwards overrides the per-difficulty merge awards.
func WithAwards(awards map[model.Difficulty]int) Option {
	return func(s *Service) {
		s.awards = awards
	}
}

// WithStoreFaultRate injects transient store failures, 0.0 to 1.0.
func WithStoreFaultRate(rate float64) Option {
	return func(s *Service) {
		if rate >= 0 && rate <= 1 {
			s.storeFaultRate = rate
		}
	}
}

// WithStoreLatencyRange sets the simulated document store latency range.
func WithStoreLatencyRange(minLatency, maxLatency time.Duration) Option {
	return func(s *Service) {
		if minLatency > 0 && maxLatency > minLatency {
			s.storeMinLatency = minLatency
			s.storeMaxLatency = maxLatency
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount: runtime.NumCPU() * 2,
		queueSize:   defaultQueueSize,
		guardSize:   defaultGuardSize,
		stopCh:      make(chan struct{}),
		logger:      nil, // Will be replaced when service starts
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	// Initialize logger if not already set
	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting contest service...")

	// Initialize components
	var storeOpts []store.Option
	if s.storeFaultRate > 0 {
		storeOpts = append(storeOpts, store.WithFaultRate(s.storeFaultRate))
	}
	if s.storeMaxLatency > 0 {
		storeOpts = append(storeOpts, store.WithLatencyRange(s.storeMinLatency, s.storeMaxLatency))
	}
	s.issues = store.NewMemStore(storeOpts...)

	s.board = standings.NewTreapStore()
	s.logger.Info(ctx, "using treap standings store")

	var policyOpts []policy.Option
	if s.timeLimits != nil {
		policyOpts = append(policyOpts, policy.WithTimeLimits(s.timeLimits))
	}
	if s.penalties != nil {
		policyOpts = append(policyOpts, policy.WithPenalties(s.penalties))
	}
	if s.awards != nil {
		policyOpts = append(policyOpts, policy.WithAwards(s.awards))
	}
	s.rules = policy.NewTable(policyOpts...)

	s.guard = award.NewInMemoryGuard(
		award.WithMaxSize(s.guardSize),
	)

	var cacheOpts []quota.Option
	if s.quotaCacheTTL > 0 {
		cacheOpts = append(cacheOpts, quota.WithTTL(s.quotaCacheTTL))
	}
	s.quotaCache = quota.NewCache(cacheOpts...)

	var claimOpts []claim.Option
	if s.quotaLimit > 0 {
		claimOpts = append(claimOpts, claim.WithQuotaLimit(s.quotaLimit))
	}
	if s.maxRetries > 0 {
		claimOpts = append(claimOpts, claim.WithMaxRetries(s.maxRetries))
	}
	if s.overallTimeout > 0 {
		claimOpts = append(claimOpts, claim.WithOverallTimeout(s.overallTimeout))
	}
	if s.opTimeout > 0 {
		claimOpts = append(claimOpts, claim.WithOpTimeout(s.opTimeout))
	}
	s.coordinator = claim.NewCoordinator(s.issues, s.quotaCache, claimOpts...)

	s.jobQueue = jobqueue.NewInMemoryQueue(
		jobqueue.WithCapacity(s.queueSize),
	)

	// Create and start the release worker pool
	s.workerPool = workerpool.NewPool(s.workerCount, s.jobQueue, s.issues, s.board, s.rules, s.guard)
	s.workerPool.Start(ctx)

	// Create and start the expiry sweeper
	var sweepOpts []sweeper.Option
	if s.sweepInterval > 0 {
		sweepOpts = append(sweepOpts, sweeper.WithInterval(s.sweepInterval))
	}
	s.expiry = sweeper.New(s.issues, s.jobQueue, s.rules, sweepOpts...)
	s.expiry.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "contest service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("guardSize", s.guardSize),
	)

	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(context.Background(), "stopping contest service...")

	// Stop the sweeper first so no new jobs arrive
	if s.expiry != nil {
		s.expiry.Stop()
	}

	// Stop worker pool
	if s.workerPool != nil {
		s.workerPool.Stop()
	}

	// Close queue
	if q, ok := s.jobQueue.(*jobqueue.InMemoryQueue); ok {
		_ = q.Close()
	}

	// Signal cleanup loop to stop
	select {
	case <-s.stopCh:
		// Channel already closed
	default:
		close(s.stopCh)
	}

	s.started = false
	s.logger.Info(context.Background(), "contest service stopped")
}

// Store exposes the issue store as a change feed for clients.
func (s *Service) Store() store.Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.issues
}

// Occupy attempts to claim an open issue for a team.
func (s *Service) Occupy(ctx context.Context, issueID, team string) claim.Result {
	s.mu.RLock()
	coordinator := s.coordinator
	s.mu.RUnlock()

	if coordinator == nil {
		return claim.Result{Err: ErrNotStarted}
	}
	return coordinator.Occupy(ctx, issueID, team)
}

// CloseIssue transitions an occupied issue to closed with a pull request
// attached. Only the assignee may close; the quota slot is released
// immediately by invalidating the team's cached occupancy count.
func (s *Service) CloseIssue(ctx context.Context, issueID, team, prURL string) (model.Issue, error) {
	doc, err := s.issues.Update(ctx, issueID,
		func(doc model.Issue) error {
			if doc.Status != model.StatusOccupied {
				return ErrIssueNotOccupied
			}
			if doc.AssignedTo != team {
				return ErrNotAssignee
			}
			return nil
		},
		func(doc model.Issue) model.Issue {
			now := time.Now()
			doc.Status = model.StatusClosed
			doc.ClosedAt = &now
			doc.PRURL = prURL
			doc.PRStatus = model.PRStatusPending
			doc.LastUpdated = now
			return doc
		},
	)
	if err != nil {
		return model.Issue{}, err
	}

	// The closed issue no longer counts against the quota.
	s.quotaCache.Invalidate(team)

	s.logger.Info(ctx, "issue closed",
		logger.String("issue", issueID),
		logger.String("team", team),
		logger.String("pr", prURL),
	)
	return doc, nil
}

// SetPRStatus updates the review state of a closed issue's pull request.
// A merge awards the difficulty points to the assignee exactly once per
// issue, no matter how many times the merged status is reported.
func (s *Service) SetPRStatus(ctx context.Context, issueID string, status model.PRStatus) (model.Issue, error) {
	switch status {
	case model.PRStatusPending, model.PRStatusApproved, model.PRStatusMerged, model.PRStatusRejected:
	default:
		return model.Issue{}, fmt.Errorf("%w: %q", ErrInvalidPRStatus, status)
	}

	doc, err := s.issues.Update(ctx, issueID,
		func(doc model.Issue) error {
			if doc.Status != model.StatusClosed {
				return ErrIssueNotClosed
			}
			return nil
		},
		func(doc model.Issue) model.Issue {
			doc.PRStatus = status
			doc.LastUpdated = time.Now()
			return doc
		},
	)
	if err != nil {
		return model.Issue{}, err
	}

	if status == model.PRStatusMerged && s.guard.Grant(ctx, awardGuardPrefix+issueID) {
		points := s.rules.Award(doc.Difficulty())
		total, err := s.board.AddPoints(ctx, doc.AssignedTo, points)
		if err != nil {
			s.guard.Revoke(ctx, awardGuardPrefix+issueID)
			return model.Issue{}, fmt.Errorf("award %s: %w", doc.AssignedTo, err)
		}
		metrics.RecordAwardPoints(points)
		s.logger.Info(ctx, "merge award granted",
			logger.String("issue", issueID),
			logger.String("team", doc.AssignedTo),
			logger.Int("points", points),
			logger.Int("total", total),
		)
	}

	return doc, nil
}

// CreateIssue registers a new issue in the store. A missing id is generated.
func (s *Service) CreateIssue(ctx context.Context, issue model.Issue) (model.Issue, error) {
	if issue.ID == "" {
		issue.ID = uuid.NewString()
	}
	issue.Status = model.StatusOpen
	issue.AssignedTo = ""
	issue.OccupiedAt = nil
	issue.ClosedAt = nil
	issue.PRURL = ""
	issue.PRStatus = ""
	issue.LastUpdated = time.Now()

	if err := s.issues.Create(ctx, issue); err != nil {
		return model.Issue{}, err
	}

	s.logger.Debug(ctx, "issue created",
		logger.String("issue", issue.ID),
		logger.String("difficulty", string(issue.Difficulty())),
	)
	return issue, nil
}

// GetIssue returns one issue by id.
func (s *Service) GetIssue(ctx context.Context, issueID string) (model.Issue, error) {
	return s.issues.Get(ctx, issueID)
}

// ListIssues returns all issues ordered by id.
func (s *Service) ListIssues(ctx context.Context) ([]model.Issue, error) {
	return s.issues.List(ctx)
}

// Login registers the team on first sight and opens its session. A team
// already holding a live session is rejected.
func (s *Service) Login(ctx context.Context, team string) error {
	if err := s.board.Register(ctx, team); err != nil && !errors.Is(err, standings.ErrTeamExists) {
		return err
	}
	return s.board.SetActive(ctx, team, true)
}

// Logout closes the team's session.
func (s *Service) Logout(ctx context.Context, team string) error {
	return s.board.SetActive(ctx, team, false)
}

// TopN returns the top N standings entries.
func (s *Service) TopN(ctx context.Context, n int) ([]standings.Entry, error) {
	return s.board.TopN(ctx, n)
}

// Rank returns the rank and points for a given team.
func (s *Service) Rank(ctx context.Context, team string) (standings.Entry, error) {
	return s.board.Rank(ctx, team)
}

// Sweep triggers one expiry scan pass immediately. Returns the number of
// release jobs enqueued.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	if s.expiry == nil {
		return 0, ErrNotStarted
	}
	return s.expiry.Sweep(ctx)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"guardSize":   s.guardSize,
	}

	if s.started {
		queueLen := s.jobQueue.Len(ctx)
		totalTeams := s.board.Count(ctx)

		stats["queueLength"] = queueLen
		stats["totalTeams"] = totalTeams
		stats["quotaCacheEntries"] = s.quotaCache.Len()

		if issues, err := s.issues.List(ctx); err == nil {
			stats["trackedIssues"] = len(issues)
			metrics.UpdateTrackedIssues(len(issues))
		}

		// Update metrics
		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateRegisteredTeams(totalTeams)
		metrics.UpdateWorkerCount(s.workerCount)
		metrics.UpdateQuotaCacheSize(s.quotaCache.Len())
	}

	return stats
}
