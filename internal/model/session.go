package model

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidStartURL is returned when the starting URL is not an absolute
// http or https URL.
var ErrInvalidStartURL = errors.New("invalid start URL: must be an absolute http(s) URL")

// CrawlSession is one run against a starting category URL.
// It owns the visited set, the classification sets and the statistics,
// and is passed explicitly to every component taking part in the run.
//
// A session is not safe for concurrent use. Exactly one goroutine drives
// a session; parallel crawls each own their own session.
type CrawlSession struct {
	// ID uniquely identifies the run in logs and in the history database.
	ID string

	// StartURL is the category URL the crawl started from.
	StartURL string

	// BaseOrigin is the scheme and host of StartURL, e.g. "https://shop.example.com".
	// Relative links are resolved against it.
	BaseOrigin string

	// SiteTag is the detected site type (e.g. "amazon", "generic").
	SiteTag string

	// MaxDepth stops pagination once this run has visited that many
	// distinct URLs, products included. See Depth.
	MaxDepth int

	// MaxPages caps the number of result pages processed.
	MaxPages int

	// StartedAt and EndedAt bound the run.
	StartedAt time.Time
	EndedAt   time.Time

	// State is the current controller state.
	State State

	// FailureReason is set when State is StateFailed.
	FailureReason string

	// Interrupted is set when the run was stopped from outside before
	// it reached a natural end.
	Interrupted bool

	// ListingURL is the listing page the crawl is on, or last processed.
	ListingURL string

	// ResumeURL, when set, is loaded instead of StartURL. It is the
	// listing page an earlier run stopped on.
	ResumeURL string

	// Stats are the running counters.
	Stats CrawlStatistics

	visited map[string]struct{}
	classes map[URLClass][]string
	members map[URLClass]map[string]struct{}
	records []URLRecord
	unsaved int
	seeded  int
	now     func() time.Time
}

// SessionOption configures a CrawlSession.
type SessionOption func(*CrawlSession)

// WithLimits sets the depth and page limits. Non-positive values mean no limit.
func WithLimits(maxDepth, maxPages int) SessionOption {
	return func(s *CrawlSession) {
		s.MaxDepth = maxDepth
		s.MaxPages = maxPages
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) SessionOption {
	return func(s *CrawlSession) {
		s.now = now
	}
}

// NewSession validates startURL and returns a session in StateInit.
func NewSession(startURL string, opts ...SessionOption) (*CrawlSession, error) {
	origin, err := Origin(startURL)
	if err != nil {
		return nil, err
	}

	s := &CrawlSession{
		ID:         uuid.NewString(),
		StartURL:   startURL,
		BaseOrigin: origin,
		State:      StateInit,
		visited:    make(map[string]struct{}),
		classes:    make(map[URLClass][]string),
		members:    make(map[URLClass]map[string]struct{}),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.StartedAt = s.now()
	return s, nil
}

// Origin returns "scheme://host" for an absolute http(s) URL.
func Origin(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidStartURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", ErrInvalidStartURL
	}
	return u.Scheme + "://" + u.Host, nil
}

// Add records rawURL under class. It returns false when the URL was
// already visited, in which case no set is modified. Unknown URLs only
// enter the visited set.
func (s *CrawlSession) Add(rawURL string, class URLClass) bool {
	if _, ok := s.visited[rawURL]; ok {
		return false
	}
	s.visited[rawURL] = struct{}{}
	s.Stats.URLsFound++

	if class == ClassUnknown {
		return true
	}
	s.insert(rawURL, class)
	s.records = append(s.records, URLRecord{URL: rawURL, Class: class, DiscoveredAt: s.now()})
	if class == ClassProduct {
		s.unsaved++
	}
	return true
}

// Seed loads URLs persisted by a previous run. Seeded URLs count as
// visited and discovered but not as unsaved work.
func (s *CrawlSession) Seed(class URLClass, urls []string) {
	for _, u := range urls {
		if _, ok := s.visited[u]; ok {
			continue
		}
		s.visited[u] = struct{}{}
		s.seeded++
		if class != ClassUnknown {
			s.insert(u, class)
		}
	}
}

func (s *CrawlSession) insert(rawURL string, class URLClass) {
	set, ok := s.members[class]
	if !ok {
		set = make(map[string]struct{})
		s.members[class] = set
	}
	set[rawURL] = struct{}{}
	s.classes[class] = append(s.classes[class], rawURL)
	if class == ClassProduct {
		s.Stats.TotalProducts++
	}
}

// Visited reports whether rawURL has been seen in this session.
func (s *CrawlSession) Visited(rawURL string) bool {
	_, ok := s.visited[rawURL]
	return ok
}

// Has reports whether rawURL is in the classification set for class.
func (s *CrawlSession) Has(class URLClass, rawURL string) bool {
	_, ok := s.members[class][rawURL]
	return ok
}

// VisitedCount returns the size of the visited set.
func (s *CrawlSession) VisitedCount() int {
	return len(s.visited)
}

// Depth is the number of distinct URLs visited by this run. URLs seeded
// from an earlier run are not counted, so a resumed crawl gets the full
// MaxDepth budget again.
func (s *CrawlSession) Depth() int {
	return len(s.visited) - s.seeded
}

// URLs returns a copy of the classification set for class in discovery order.
func (s *CrawlSession) URLs(class URLClass) []string {
	out := make([]string, len(s.classes[class]))
	copy(out, s.classes[class])
	return out
}

// Products returns the product URLs in discovery order.
func (s *CrawlSession) Products() []string {
	return s.URLs(ClassProduct)
}

// Records returns the URL records added during this run.
func (s *CrawlSession) Records() []URLRecord {
	out := make([]URLRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Unsaved returns the number of products discovered since the last
// successful flush.
func (s *CrawlSession) Unsaved() int {
	return s.unsaved
}

// MarkSaved resets the unsaved counter after a successful flush.
func (s *CrawlSession) MarkSaved() {
	s.unsaved = 0
}

// Transition moves the session to state. Transitions out of a terminal
// state are ignored.
func (s *CrawlSession) Transition(state State) {
	if s.State.Terminal() {
		return
	}
	s.State = state
}

// Fail moves the session to StateFailed with a reason.
func (s *CrawlSession) Fail(reason string) {
	if s.State.Terminal() {
		return
	}
	s.State = StateFailed
	s.FailureReason = reason
}

// Finish stamps the end time.
func (s *CrawlSession) Finish() {
	s.EndedAt = s.now()
}

// Now returns the session clock's current time.
func (s *CrawlSession) Now() time.Time {
	return s.now()
}

// Duration returns the elapsed run time, using now for a running session.
func (s *CrawlSession) Duration() time.Duration {
	if s.EndedAt.IsZero() {
		return s.now().Sub(s.StartedAt)
	}
	return s.EndedAt.Sub(s.StartedAt)
}
