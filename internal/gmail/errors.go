package gmail

import "errors"

// Error kinds reported by Client implementations. Adapters wrap the
// provider error so callers can use errors.Is.
var (
	ErrNotFound        = errors.New("gmail: not found")
	ErrUnauthenticated = errors.New("gmail: unauthenticated")
	ErrRateLimited     = errors.New("gmail: rate limited")
	ErrUnavailable     = errors.New("gmail: service unavailable")
	ErrConnectivity    = errors.New("gmail: connectivity lost")
)

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrConnectivity)
}
