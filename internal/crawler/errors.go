package crawler

import "errors"

var (
	// ErrSessionAborted is returned when the crawl was interrupted before
	// it reached a natural end. The session has still been finalized.
	ErrSessionAborted = errors.New("crawl session aborted")

	// ErrSessionFailed is returned when the session ended in the failed state.
	ErrSessionFailed = errors.New("crawl session failed")

	// ErrDisallowed is the failure reason when robots.txt forbids the start URL.
	ErrDisallowed = errors.New("start URL disallowed by robots.txt")
)
