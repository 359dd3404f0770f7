package store

import "errors"

var (
	// ErrPersistenceWriteFailed is returned when a file could not be
	// written. The previous file content is intact.
	ErrPersistenceWriteFailed = errors.New("persistence write failed")

	// ErrNoOutputPath is returned by New when the output path is empty.
	ErrNoOutputPath = errors.New("output path is empty")
)
