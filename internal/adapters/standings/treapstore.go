package standings

import (
	"context"
	"fmt"
	"sync"

	"github.com/issuearena/issuearena/internal/domain/model"
	"github.com/issuearena/issuearena/pkg/metrics"
)

// Treap-based, in-memory Ledger + Standings implementation.
//
// Ordering: points DESC, then team name ASC (deterministic). The BST
// comparator treats "less" as "ranks earlier", so an in-order traversal
// produces the standings from best to worst.

// treap node
type node struct {
	team   string
	points int
	prio   uint64
	left   *node
	right  *node
	size   int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less returns true if (aPoints, aTeam) ranks earlier than (bPoints, bTeam).
func less(aPoints int, aTeam string, bPoints int, bTeam string) bool {
	if aPoints != bPoints {
		return aPoints > bPoints // more points ranks earlier
	}
	return aTeam < bTeam // tie-breaker by name asc
}

func rotateRight(y *node) *node {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	fix(x)
	fix(y)
	return y
}

// pointsToPriority keeps higher-scoring teams nearer the treap root.
// Points are non-negative, so the plain conversion is monotonic.
func pointsToPriority(points int) uint64 {
	return uint64(points)
}

func insert(n *node, team string, points int) *node {
	if n == nil {
		return &node{team: team, points: points, prio: pointsToPriority(points), size: 1}
	}
	if less(points, team, n.points, n.team) {
		n.left = insert(n.left, team, points)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, team, points)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, team string, points int) *node {
	if n == nil {
		return nil
	}
	if points == n.points && team == n.team {
		// Merge children by rotating the higher priority up until leaf.
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, team, points)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, team, points)
		}
	} else if less(points, team, n.points, n.team) {
		n.left = deleteNode(n.left, team, points)
	} else {
		n.right = deleteNode(n.right, team, points)
	}
	fix(n)
	return n
}

// collectTopN appends up to limit entries in rank order (best first).
func collectTopN(n *node, limit int, out *[]Entry) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, Entry{Team: n.team, Points: n.points})
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, out)
	}
}

// collectAll appends every entry in rank order.
func collectAll(n *node, out *[]Entry) {
	if n == nil {
		return
	}
	collectAll(n.left, out)
	*out = append(*out, Entry{Team: n.team, Points: n.points})
	collectAll(n.right, out)
}

// assignRanksWithTies assigns consecutive ranks; teams with equal points
// share a rank.
func assignRanksWithTies(entries []Entry) {
	currentRank := 1
	for i := 0; i < len(entries); i++ {
		entries[i].Rank = currentRank
		sameCount := 1
		for j := i + 1; j < len(entries) && entries[j].Points == entries[i].Points; j++ {
			entries[j].Rank = currentRank
			sameCount++
		}
		currentRank++
		i += sameCount - 1
	}
}

// TreapStore implements Ledger and Standings with a treap ordered by points.
type TreapStore struct {
	mu     sync.RWMutex
	root   *node
	byName map[string]model.Team
}

// NewTreapStore constructs an empty treap-backed standings store.
func NewTreapStore() *TreapStore {
	return &TreapStore{
		byName: make(map[string]model.Team),
	}
}

// Register implements Ledger.Register.
func (s *TreapStore) Register(ctx context.Context, team string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byName[team]; ok {
		return fmt.Errorf("register %q: %w", team, ErrTeamExists)
	}
	s.byName[team] = model.Team{Name: team}
	s.root = insert(s.root, team, 0)
	metrics.UpdateRegisteredTeams(len(s.byName))
	return nil
}

// GetTeam implements Ledger.GetTeam.
func (s *TreapStore) GetTeam(ctx context.Context, team string) (model.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.byName[team]
	if !ok {
		return model.Team{}, fmt.Errorf("get team %q: %w", team, ErrTeamNotFound)
	}
	return t, nil
}

// ReadPoints implements Ledger.ReadPoints.
func (s *TreapStore) ReadPoints(ctx context.Context, team string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.byName[team]
	if !ok {
		return 0, fmt.Errorf("read points %q: %w", team, ErrTeamNotFound)
	}
	return t.Points, nil
}

// WritePoints implements Ledger.WritePoints.
func (s *TreapStore) WritePoints(ctx context.Context, team string, points int) error {
	if points < 0 {
		points = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setPointsLocked(team, points)
}

// AddPoints implements Ledger.AddPoints.
func (s *TreapStore) AddPoints(ctx context.Context, team string, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byName[team]
	if !ok {
		return 0, fmt.Errorf("add points %q: %w", team, ErrTeamNotFound)
	}
	next := t.Points + delta
	if next < 0 {
		next = 0 // penalties floor at zero, never negative
	}
	if err := s.setPointsLocked(team, next); err != nil {
		return 0, err
	}
	return next, nil
}

// SetActive implements Ledger.SetActive.
func (s *TreapStore) SetActive(ctx context.Context, team string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byName[team]
	if !ok {
		return fmt.Errorf("set active %q: %w", team, ErrTeamNotFound)
	}
	if active && t.Active {
		return fmt.Errorf("set active %q: %w", team, ErrSessionActive)
	}
	t.Active = active
	s.byName[team] = t
	return nil
}

// Rank implements Standings.Rank.
func (s *TreapStore) Rank(ctx context.Context, team string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.byName[team]; !ok {
		return Entry{}, fmt.Errorf("rank %q: %w", team, ErrTeamNotFound)
	}

	all := make([]Entry, 0, len(s.byName))
	collectAll(s.root, &all)
	assignRanksWithTies(all)

	for _, e := range all {
		if e.Team == team {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("rank %q: %w", team, ErrTeamNotFound)
}

// TopN implements Standings.TopN.
func (s *TreapStore) TopN(ctx context.Context, n int) ([]Entry, error) {
	if n < 1 {
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	// Rank assignment needs the full ordering when ties span the cutoff, so
	// rank against the complete traversal and then cut.
	all := make([]Entry, 0, len(s.byName))
	collectAll(s.root, &all)
	assignRanksWithTies(all)
	if n > len(all) {
		n = len(all)
	}
	out := make([]Entry, n)
	copy(out, all[:n])
	return out, nil
}

// Count implements Standings.Count.
func (s *TreapStore) Count(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byName)
}

// setPointsLocked repositions a team in the treap. Must hold s.mu.
func (s *TreapStore) setPointsLocked(team string, points int) error {
	t, ok := s.byName[team]
	if !ok {
		return fmt.Errorf("write points %q: %w", team, ErrTeamNotFound)
	}
	if t.Points != points {
		s.root = deleteNode(s.root, team, t.Points)
		s.root = insert(s.root, team, points)
		t.Points = points
		s.byName[team] = t
	}
	return nil
}
