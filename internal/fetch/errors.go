package fetch

import "errors"

var (
	// ErrBodyTooLarge is returned when a response exceeds the body size limit.
	ErrBodyTooLarge = errors.New("response body exceeds size limit")

	// ErrEmptyBody is returned when a response has no body.
	ErrEmptyBody = errors.New("empty response body")
)
