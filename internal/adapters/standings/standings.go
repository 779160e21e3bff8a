// Package standings holds the team point ledger and the contest ranking
// derived from it.
package standings

import (
	"context"

	"github.com/issuearena/issuearena/internal/domain/model"
)

// Entry represents one row of the contest standings.
type Entry struct {
	Rank   int    `json:"rank"`
	Team   string `json:"team"`
	Points int    `json:"points"`
}

// Ledger provides read/write access to team points and session state.
// Point writes are not atomic with issue-store mutations; callers guard
// against double application themselves.
type Ledger interface {
	// Register adds a team with zero points. Returns ErrTeamExists when the
	// name is taken.
	Register(ctx context.Context, team string) error

	// GetTeam returns the team record. Returns ErrTeamNotFound for unknown
	// names.
	GetTeam(ctx context.Context, team string) (model.Team, error)

	// ReadPoints returns the team's current points.
	ReadPoints(ctx context.Context, team string) (int, error)

	// WritePoints sets the team's points. Negative values are floored at 0.
	WritePoints(ctx context.Context, team string, points int) error

	// AddPoints applies a delta, flooring the result at 0, and returns the
	// new total.
	AddPoints(ctx context.Context, team string, delta int) (int, error)

	// SetActive flips the team's live-session flag. Logging in while a
	// session is already live returns ErrSessionActive.
	SetActive(ctx context.Context, team string, active bool) error
}

// Standings exposes the ranking derived from the ledger.
// Ordering: points DESC, team name ASC; equal points share a rank.
type Standings interface {
	// Rank returns the entry for a single team. Returns ErrTeamNotFound for
	// unknown names.
	Rank(ctx context.Context, team string) (Entry, error)

	// TopN returns the best n entries. Returns ErrInvalidLimit when n < 1.
	TopN(ctx context.Context, n int) ([]Entry, error)

	// Count returns the number of registered teams.
	Count(ctx context.Context) int
}
