package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrNoTarget is returned when no category URL was given.
	ErrNoTarget = errors.New("no target specified: provide a category URL")

	// ErrUnknownEngine is returned for an engine other than rod, chromedp or static.
	ErrUnknownEngine = errors.New("unknown engine: must be rod, chromedp or static")

	// ErrInvalidTimeout is returned when the page load timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidMaxDepth is returned when the depth limit is negative.
	ErrInvalidMaxDepth = errors.New("invalid max depth: must be non-negative")

	// ErrInvalidMaxPages is returned when the page limit is negative.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be non-negative")

	// ErrInvalidAttempts is returned when the attempt count is not positive.
	ErrInvalidAttempts = errors.New("invalid attempts: must be positive")

	// ErrInvalidConcurrency is returned when the concurrency is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidRateLimit is returned when the rate limit is negative.
	ErrInvalidRateLimit = errors.New("invalid rate limit: must be non-negative")

	// ErrInvalidBatchSize is returned when the flush batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrUnknownReportFormat is returned for a report format other than
	// text, json or markdown.
	ErrUnknownReportFormat = errors.New("unknown report format: must be text, json or markdown")

	// ErrNoProxySource is returned when proxies are enabled without any source.
	ErrNoProxySource = errors.New("proxies enabled but no proxy source configured")
)
