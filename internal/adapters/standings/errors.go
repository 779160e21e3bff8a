package standings

import "errors"

// Sentinel kinds for ledger and standings errors.
var (
	ErrTeamNotFound  = errors.New("team not found")
	ErrTeamExists    = errors.New("team already exists")
	ErrSessionActive = errors.New("team already has a live session")
	ErrInvalidLimit  = errors.New("invalid standings limit")
)
