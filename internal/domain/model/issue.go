// Package model contains domain models passed between layers.
package model

import "time"

// Status is the lifecycle state of an issue.
type Status string

// Issue lifecycle states.
const (
	StatusOpen     Status = "open"
	StatusOccupied Status = "occupied"
	StatusClosed   Status = "closed"
)

// Difficulty tags an issue and keys the time-limit, penalty and award tables.
type Difficulty string

// Recognized difficulty tags.
const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// PRStatus is the review state of the pull request attached to a closed issue.
type PRStatus string

// Pull request review states.
const (
	PRStatusPending  PRStatus = "pending"
	PRStatusApproved PRStatus = "approved"
	PRStatusMerged   PRStatus = "merged"
	PRStatusRejected PRStatus = "rejected"
)

// Issue is one unit of claimable contest work.
//
// Invariants: AssignedTo is non-empty iff Status is occupied or closed;
// OccupiedAt is set iff the issue has been occupied in the current
// assignment cycle.
type Issue struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Tags        []string   `json:"tags"` // first tag carries the difficulty
	Status      Status     `json:"status"`
	AssignedTo  string     `json:"assigned_to,omitempty"`
	OccupiedAt  *time.Time `json:"occupied_at,omitempty"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	PRURL       string     `json:"pr_url,omitempty"`
	PRStatus    PRStatus   `json:"pr_status,omitempty"`
	LastUpdated time.Time  `json:"last_updated"`
	Version     uint64     `json:"version"` // store sequence number
}

// Difficulty returns the issue's primary difficulty: the first tag as-is, or
// medium when the issue carries no tags at all. An unrecognized tag is kept
// raw so the policy table can apply per-rule fallbacks (medium time limit,
// zero penalty) instead of silently charging the medium penalty.
func (i Issue) Difficulty() Difficulty {
	if len(i.Tags) == 0 {
		return DifficultyMedium
	}
	return Difficulty(i.Tags[0])
}

// Clone returns a deep copy so callers can mutate without sharing slices or
// timestamp pointers with the store.
func (i Issue) Clone() Issue {
	out := i
	if i.Tags != nil {
		out.Tags = append([]string(nil), i.Tags...)
	}
	if i.OccupiedAt != nil {
		t := *i.OccupiedAt
		out.OccupiedAt = &t
	}
	if i.ClosedAt != nil {
		t := *i.ClosedAt
		out.ClosedAt = &t
	}
	return out
}

// Team is a contest participant.
type Team struct {
	Name   string `json:"name"`
	Points int    `json:"points"`
	Active bool   `json:"active"` // one live session at a time
}

// ExpiryJob is the unit of work flowing from the sweeper scan to the release
// workers. OccupiedAt identifies the assignment cycle so a job can never act
// on a later claim of the same issue.
type ExpiryJob struct {
	IssueID    string
	Team       string
	Difficulty Difficulty
	OccupiedAt time.Time
}

// CycleKey identifies the assignment cycle the job belongs to. Used as the
// idempotency key for penalty application.
func (j ExpiryJob) CycleKey() string {
	return j.IssueID + "@" + j.OccupiedAt.UTC().Format(time.RFC3339Nano)
}
