package service

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrNotStarted       = errors.New("service not started")
	ErrNotAssignee      = errors.New("issue is held by another team")
	ErrIssueNotOccupied = errors.New("issue is not occupied")
	ErrIssueNotClosed   = errors.New("issue is not closed")
	ErrInvalidPRStatus  = errors.New("invalid pull request status")
)
