package proxy

import "errors"

var (
	// ErrProxyUnavailable is returned when the pool holds no healthy endpoint.
	// Callers are expected to degrade to a direct connection.
	ErrProxyUnavailable = errors.New("no healthy proxy available")

	// ErrInvalidEndpoint is returned when a candidate line is not a valid
	// host:port or proxy URL.
	ErrInvalidEndpoint = errors.New("invalid proxy endpoint")

	// ErrProbeFailed is returned when a probe request through an endpoint
	// does not return a success status.
	ErrProbeFailed = errors.New("proxy probe failed")

	// ErrNoSource is returned when every candidate feed failed.
	ErrNoSource = errors.New("no proxy source could be fetched")
)

// Status is the outcome of asking the pool for an endpoint.
// It is a typed result rather than an error because an empty pool is an
// expected condition.
type Status int

const (
	// StatusOK indicates an endpoint was returned.
	StatusOK Status = iota

	// StatusUnavailable indicates the pool is empty and the caller must
	// connect directly.
	StatusUnavailable
)

// String returns a human-readable description of the status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Error returns the matching error for this status, or nil if OK.
func (s Status) Error() error {
	switch s {
	case StatusOK:
		return nil
	case StatusUnavailable:
		return ErrProxyUnavailable
	default:
		return errors.New("unknown proxy status")
	}
}
