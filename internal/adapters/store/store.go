// Package store defines the durable issue store contract and errors.
//
// The claim protocol only needs point reads, filtered queries, atomic
// conditional updates and a change feed; anything resembling a schema is out
// of scope. Implementations must provide linearizable read-modify-write per
// document.
package store

import (
	"context"

	"github.com/issuearena/issuearena/internal/domain/model"
)

// Origin tags a change-feed snapshot with where it came from. Consumers use
// it to ignore unconfirmed local echoes.
type Origin int

// Snapshot origins.
const (
	OriginServer Origin = iota
	OriginLocal
)

// String returns the origin label used in logs.
func (o Origin) String() string {
	if o == OriginLocal {
		return "local"
	}
	return "server"
}

// Store provides read/write access to issue documents.
type Store interface {
	// Get returns the issue with the given id. Returns ErrNotFound when the
	// id is unknown.
	Get(ctx context.Context, id string) (model.Issue, error)

	// List returns every issue. Ordering is unspecified.
	List(ctx context.Context) ([]model.Issue, error)

	// ListByAssignee returns up to limit issues assigned to team with the
	// given status. Ordering is unspecified; limit <= 0 means no cap.
	ListByAssignee(ctx context.Context, team string, status model.Status, limit int) ([]model.Issue, error)

	// Create inserts a new issue document. Returns ErrExists when the id is
	// already present.
	Create(ctx context.Context, issue model.Issue) error

	// Update atomically re-reads the issue, runs precond against the current
	// document, and applies mutate when precond returns nil. A non-nil
	// precond error is returned wrapped in ErrPreconditionFailed so callers
	// can classify the business-rule failure with errors.Is. Returns the
	// committed document on success.
	Update(ctx context.Context, id string, precond func(model.Issue) error, mutate func(model.Issue) model.Issue) (model.Issue, error)

	// Watch registers a change-feed subscriber. onChange receives a full
	// snapshot of all issues after every committed mutation, tagged with its
	// origin. onError receives stream failures. The returned cancel function
	// detaches the subscriber.
	Watch(onChange func([]model.Issue, Origin), onError func(error)) (cancel func())
}
