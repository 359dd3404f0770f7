package browser

import "errors"

var (
	// ErrLaunchFailed is returned when the engine cannot start a browser.
	// It is fatal to the session.
	ErrLaunchFailed = errors.New("browser launch failed")

	// ErrNavigationFailed is returned when a page cannot be loaded.
	ErrNavigationFailed = errors.New("navigation failed")

	// ErrScriptUnsupported is returned by engines that cannot run script.
	ErrScriptUnsupported = errors.New("script execution not supported by this engine")

	// ErrUnknownEngine is returned by New for an unrecognized engine name.
	ErrUnknownEngine = errors.New("unknown browser engine")

	// ErrPageClosed is returned when a closed page is used.
	ErrPageClosed = errors.New("page is closed")
)
