package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicate         = errors.New("duplicate")
	ErrInvalidSnapshot   = errors.New("invalid market snapshot")
	ErrStaleData         = errors.New("market data stale")
	ErrQueueFull         = errors.New("execution queue full")
	ErrEmergencyStopped  = errors.New("emergency stopped")
	ErrNotSupported      = errors.New("not supported by venue")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrOrderRejected     = errors.New("order rejected")
	ErrLockHeld          = errors.New("lock held")
)

// VenueErrorKind classifies adapter failures for retry and circuit-breaker
// decisions.
type VenueErrorKind string

const (
	// VenueErrTransient covers timeouts and connection drops; safe to retry.
	VenueErrTransient VenueErrorKind = "transient"
	// VenueErrRateLimited means back off for RetryAfter before retrying.
	VenueErrRateLimited VenueErrorKind = "rate_limited"
	// VenueErrAuth means credentials are bad; retrying cannot help.
	VenueErrAuth VenueErrorKind = "auth"
	// VenueErrPermanent covers rejections the venue will repeat verbatim.
	VenueErrPermanent VenueErrorKind = "permanent"
	// VenueErrNotFound means the referenced order or symbol does not exist.
	VenueErrNotFound VenueErrorKind = "not_found"
)

// VenueError wraps a failure from a venue adapter with enough context for
// the caller to decide between retrying, backing off and giving up.
type VenueError struct {
	Venue      string
	Op         string
	Kind       VenueErrorKind
	RetryAfter time.Duration
	Err        error
}

// NewVenueError builds a VenueError. Err may be nil when the venue returned
// a bare status.
func NewVenueError(venue, op string, kind VenueErrorKind, err error) *VenueError {
	return &VenueError{Venue: venue, Op: op, Kind: kind, Err: err}
}

func (e *VenueError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("venue %s: %s: %s", e.Venue, e.Op, e.Kind)
	}
	return fmt.Sprintf("venue %s: %s: %s: %v", e.Venue, e.Op, e.Kind, e.Err)
}

func (e *VenueError) Unwrap() error { return e.Err }

// Retryable reports whether a retry can plausibly succeed.
func (e *VenueError) Retryable() bool {
	return e.Kind == VenueErrTransient || e.Kind == VenueErrRateLimited
}

// AsVenueError unwraps err looking for a VenueError.
func AsVenueError(err error) (*VenueError, bool) {
	var ve *VenueError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// IsRetryable reports whether err is a retryable venue error.
func IsRetryable(err error) bool {
	if ve, ok := AsVenueError(err); ok {
		return ve.Retryable()
	}
	return false
}
