package model

// State is a state of the crawl controller state machine.
//
//	Init -> Breaching -> Extracting -> Paginating -> (Extracting) -> Finalizing -> Done
//
// Failed is absorbing and reachable from any state.
type State int

const (
	// StateInit resolves the origin, detects the site and prepares proxies.
	StateInit State = iota

	// StateBreaching acquires the current URL.
	StateBreaching

	// StateExtracting harvests product links from the loaded page.
	StateExtracting

	// StatePaginating advances to the next page of results.
	StatePaginating

	// StateFinalizing computes the summary and forces a final flush.
	StateFinalizing

	// StateDone is the successful terminal state.
	StateDone

	// StateFailed is the unrecoverable terminal state.
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateBreaching:
		return "breaching"
	case StateExtracting:
		return "extracting"
	case StatePaginating:
		return "paginating"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}
