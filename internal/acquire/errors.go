package acquire

import "errors"

var (
	// ErrAcquisitionFailed is returned when every strategy of every attempt
	// failed to produce a viable page.
	ErrAcquisitionFailed = errors.New("page acquisition failed")

	// ErrNotViable is recorded when a strategy loaded a page that is too
	// short, has an error status, or is a challenge page.
	ErrNotViable = errors.New("page not viable")
)
