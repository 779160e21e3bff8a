package claim

import "errors"

// Sentinel kinds for claim failures.
//
// The terminal/transient split drives the retry policy: business-rule
// rejections are final, infrastructure failures are retried up to the cap.
var (
	ErrInvalidInput     = errors.New("issue id and team are required")
	ErrAlreadyResolved  = errors.New("issue is no longer open")
	ErrAlreadySelf      = errors.New("issue is already occupied by this team")
	ErrQuotaExceeded    = errors.New("team already occupies the maximum number of issues")
	ErrTimeout          = errors.New("claim attempt timed out")
	ErrRetriesExhausted = errors.New("claim retries exhausted")
)
