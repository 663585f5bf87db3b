package assessment

import "errors"

// Caller-visible resolution failures. All of them mean "retry with different
// input", not a crash; the HTTP layer maps them to user-facing messages.
var (
	ErrContentNotFound       = errors.New("content not found")
	ErrAssessmentUnavailable = errors.New("assessment unavailable")
	ErrInvalidAttempt        = errors.New("invalid attempt")
	ErrNoOpenAttempt         = errors.New("no open attempt")
	ErrAttemptExpired        = errors.New("attempt expired")
	ErrNoAttemptAvailable    = errors.New("no attempt available")
)

// ErrConflict is returned by stores when a uniqueness constraint breaks a
// concurrent write. Attempt creation retries the whole transaction on it.
var ErrConflict = errors.New("write conflict")
