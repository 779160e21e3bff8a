package store

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound           = errors.New("issue not found")
	ErrExists             = errors.New("issue already exists")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrUnavailable        = errors.New("store unavailable")
	ErrClosed             = errors.New("store closed")
)
