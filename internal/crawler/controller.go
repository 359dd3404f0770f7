package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/nao1215/productscan/internal/acquire"
	"github.com/nao1215/productscan/internal/browser"
	"github.com/nao1215/productscan/internal/classify"
	"github.com/nao1215/productscan/internal/extract"
	"github.com/nao1215/productscan/internal/model"
	"github.com/nao1215/productscan/internal/paginate"
	"github.com/nao1215/productscan/internal/profile"
	"github.com/nao1215/productscan/internal/report"
)

const (
	// DefaultMinPageDelay and DefaultMaxPageDelay bound the random pause
	// between two result pages.
	DefaultMinPageDelay = 1 * time.Second
	DefaultMaxPageDelay = 3 * time.Second

	// finalizeTimeout bounds history recording once the crawl context
	// may already be cancelled.
	finalizeTimeout = 10 * time.Second
)

// Acquirer loads a URL into a page.
type Acquirer interface {
	Acquire(ctx context.Context, session *model.CrawlSession, rawURL string) (*acquire.Result, error)
}

// Extractor harvests product links from a loaded page.
type Extractor interface {
	Extract(ctx context.Context, page browser.Page, site profile.Site, session *model.CrawlSession) (extract.Result, error)
}

// Paginator advances a page to the next page of results.
type Paginator interface {
	Advance(ctx context.Context, page browser.Page, site profile.Site) (paginate.Outcome, error)
}

// Persister stores discovered products and crawl progress.
type Persister interface {
	Flush(session *model.CrawlSession, force bool) error
	WriteProgress(session *model.CrawlSession) error
	OutputPath() string
}

// Recorder keeps a history of finished sessions.
type Recorder interface {
	RecordSession(ctx context.Context, session *model.CrawlSession, outputPath string) error
}

// ProgressWriter prints progress while a session runs.
type ProgressWriter interface {
	WriteProgress(summary *report.Summary) (int, error)
}

// Controller runs crawl sessions. A Controller may run several sessions
// one after another but never two at once; Batch builds one per worker.
type Controller struct {
	registry  *profile.Registry
	acquirer  Acquirer
	extractor Extractor
	paginator Paginator
	store     Persister
	history   Recorder
	robots    *RobotsGate
	summary   report.Writer
	progress  ProgressWriter
	prepare   func(ctx context.Context) error
	logger    *slog.Logger

	minDelay time.Duration
	maxDelay time.Duration

	prepareOnce sync.Once
	prepareErr  error
}

// Option configures a Controller.
type Option func(*Controller)

// WithExtractor replaces the extraction engine.
func WithExtractor(e Extractor) Option {
	return func(c *Controller) {
		c.extractor = e
	}
}

// WithPaginator replaces the pagination driver.
func WithPaginator(p Paginator) Option {
	return func(c *Controller) {
		c.paginator = p
	}
}

// WithStore sets where products and progress are persisted.
func WithStore(s Persister) Option {
	return func(c *Controller) {
		c.store = s
	}
}

// WithHistory records every finalized session.
func WithHistory(r Recorder) Option {
	return func(c *Controller) {
		c.history = r
	}
}

// WithRobots makes Init check the start URL against robots.txt.
func WithRobots(g *RobotsGate) Option {
	return func(c *Controller) {
		c.robots = g
	}
}

// WithSummary writes the final summary of every session to w.
func WithSummary(w report.Writer) Option {
	return func(c *Controller) {
		c.summary = w
	}
}

// WithProgress reports progress after every page.
func WithProgress(w ProgressWriter) Option {
	return func(c *Controller) {
		c.progress = w
	}
}

// WithPrepare runs fn once, during the Init state of the first session.
// It is used to initialize the proxy pool.
func WithPrepare(fn func(ctx context.Context) error) Option {
	return func(c *Controller) {
		c.prepare = fn
	}
}

// WithPageDelay sets the bounds of the random pause between pages.
func WithPageDelay(minDelay, maxDelay time.Duration) Option {
	return func(c *Controller) {
		if minDelay >= 0 && maxDelay >= minDelay {
			c.minDelay = minDelay
			c.maxDelay = maxDelay
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// New creates a Controller that detects sites with registry and loads
// pages with acquirer.
func New(registry *profile.Registry, acquirer Acquirer, opts ...Option) *Controller {
	c := &Controller{
		registry: registry,
		acquirer: acquirer,
		minDelay: DefaultMinPageDelay,
		maxDelay: DefaultMaxPageDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.extractor == nil {
		eopts := []extract.Option{extract.WithLogger(c.logger)}
		if c.store != nil {
			eopts = append(eopts, extract.WithFlusher(c.store))
		}
		c.extractor = extract.New(registry.Generic(), eopts...)
	}
	if c.paginator == nil {
		c.paginator = paginate.New(paginate.WithLogger(c.logger))
	}
	return c
}

// run is the mutable state of one Crawl call.
type run struct {
	session   *model.CrawlSession
	site      profile.Site
	page      browser.Page
	traversed map[string]struct{}

	// resumed is set while the first page of a resumed session is being
	// extracted. Its products were collected by the earlier run.
	resumed bool
}

// Run creates a session for startURL with the given limits and crawls it.
func (c *Controller) Run(ctx context.Context, startURL string, maxDepth, maxPages int) (*model.CrawlSession, error) {
	session, err := model.NewSession(startURL, model.WithLimits(maxDepth, maxPages))
	if err != nil {
		return nil, err
	}
	return session, c.Crawl(ctx, session)
}

// Crawl drives session to a terminal state. The session is always
// finalized. ErrSessionAborted is returned when ctx was cancelled first,
// and ErrSessionFailed when the session failed.
func (c *Controller) Crawl(ctx context.Context, session *model.CrawlSession) error {
	r := &run{session: session, traversed: make(map[string]struct{})}
	logger := c.logger.With("run_id", session.ID)

	for session.State != model.StateFinalizing && !session.State.Terminal() {
		if ctx.Err() != nil {
			logger.Warn("crawl interrupted", "state", session.State.String())
			session.Interrupted = true
			session.Transition(model.StateFinalizing)
			break
		}

		switch session.State {
		case model.StateInit:
			c.init(ctx, r, logger)
		case model.StateBreaching:
			c.breach(ctx, r, logger)
		case model.StateExtracting:
			c.extract(ctx, r, logger)
		case model.StatePaginating:
			c.paginate(ctx, r, logger)
		}
	}

	c.finalize(ctx, r, logger)

	switch {
	case session.State == model.StateFailed:
		return fmt.Errorf("%w: %s", ErrSessionFailed, session.FailureReason)
	case session.Interrupted:
		return fmt.Errorf("%w: %w", ErrSessionAborted, context.Cause(ctx))
	}
	return nil
}

func (c *Controller) init(ctx context.Context, r *run, logger *slog.Logger) {
	s := r.session

	if c.prepare != nil {
		c.prepareOnce.Do(func() { c.prepareErr = c.prepare(ctx) })
		if c.prepareErr != nil {
			logger.Warn("preparation failed, continuing", "error", c.prepareErr)
		}
	}

	if c.robots != nil {
		allowed, err := c.robots.Allowed(ctx, s.StartURL)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("robots.txt check failed", "url", s.StartURL, "error", err)
		} else if !allowed {
			s.Fail(ErrDisallowed.Error())
			return
		}
	}

	tag := c.registry.Detect(s.StartURL)
	r.site = c.registry.Site(tag)
	s.SiteTag = string(tag)
	s.Add(s.StartURL, classify.Classify(s.StartURL))

	logger.Info("crawl started",
		"url", s.StartURL,
		"site", s.SiteTag,
		"max_depth", s.MaxDepth,
		"max_pages", s.MaxPages,
	)
	s.Transition(model.StateBreaching)
}

func (c *Controller) breach(ctx context.Context, r *run, logger *slog.Logger) {
	s := r.session

	target := s.StartURL
	if s.ResumeURL != "" {
		target = s.ResumeURL
		r.resumed = true
		logger.Info("resuming from listing page", "url", target)
	}

	res, err := c.acquirer.Acquire(ctx, s, target)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.Stats.RecordFailure(s.Now())
		logger.Error("acquisition failed", "url", target, "error", err)
		s.Fail(err.Error())
		return
	}

	r.page = res.Page
	r.traversed[target] = struct{}{}
	s.ListingURL = target
	if res.URL != "" {
		r.traversed[res.URL] = struct{}{}
		s.ListingURL = res.URL
	}
	s.Transition(model.StateExtracting)
}

func (c *Controller) extract(ctx context.Context, r *run, logger *slog.Logger) {
	s := r.session

	res, err := c.extractor.Extract(ctx, r.page, r.site, s)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Warn("extraction error", "url", r.page.URL(), "error", err)
	}

	s.Stats.RecordPage(res.PageCount, s.Now())
	if res.PageCount > 0 {
		if err := c.flush(s, false); err != nil {
			logger.Warn("batch not saved, continuing", "error", err)
		}
	}
	c.reportProgress(s)

	resumed := r.resumed
	r.resumed = false
	if res.Empty() {
		if resumed {
			logger.Info("resumed page holds only known products, advancing", "url", r.page.URL())
			s.Transition(model.StatePaginating)
			return
		}
		logger.Info("no new products on page, stopping", "url", r.page.URL())
		s.Transition(model.StateFinalizing)
		return
	}
	s.Transition(model.StatePaginating)
}

func (c *Controller) paginate(ctx context.Context, r *run, logger *slog.Logger) {
	s := r.session

	if s.MaxPages > 0 && s.Stats.PagesProcessed >= s.MaxPages {
		logger.Info("page limit reached", "pages", s.Stats.PagesProcessed)
		s.Transition(model.StateFinalizing)
		return
	}
	if s.MaxDepth > 0 && s.Depth() >= s.MaxDepth {
		logger.Info("depth limit reached", "visited", s.Depth())
		s.Transition(model.StateFinalizing)
		return
	}

	if err := sleep(ctx, c.pageDelay()); err != nil {
		return
	}

	before := r.page.URL()
	out, err := c.paginator.Advance(ctx, r.page, r.site)
	if err != nil {
		if ctx.Err() == nil {
			logger.Info("pagination finished", "reason", err)
			s.Transition(model.StateFinalizing)
		}
		return
	}

	switch {
	case out.Method == paginate.MethodScroll:
	case out.Method == paginate.MethodClick && out.URL == before:
		// Script-driven listings swap results in place.
	default:
		if _, seen := r.traversed[out.URL]; seen {
			logger.Info("pagination returned to a known page, stopping", "url", out.URL)
			s.Transition(model.StateFinalizing)
			return
		}
		r.traversed[out.URL] = struct{}{}
		s.Add(out.URL, model.ClassPagination)
	}
	if out.URL != "" {
		s.ListingURL = out.URL
	}

	logger.Debug("advanced", "method", out.Method.String(), "url", out.URL)
	s.Transition(model.StateExtracting)
}

// finalize persists everything, releases the page and emits the summary.
// It runs on every path, so it never uses ctx for blocking work.
func (c *Controller) finalize(ctx context.Context, r *run, logger *slog.Logger) {
	s := r.session
	s.Transition(model.StateFinalizing)
	s.Finish()

	if err := c.flush(s, true); err != nil {
		logger.Error("final flush failed", "error", err)
	}
	if c.store != nil {
		if err := c.store.WriteProgress(s); err != nil {
			logger.Error("progress file not written", "error", err)
		}
	}

	if r.page != nil {
		if err := r.page.Close(); err != nil {
			logger.Debug("page close failed", "error", err)
		}
		r.page = nil
	}

	s.Transition(model.StateDone)

	outputPath := ""
	if c.store != nil {
		outputPath = c.store.OutputPath()
	}
	if c.history != nil {
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
		if err := c.history.RecordSession(hctx, s, outputPath); err != nil {
			logger.Warn("session not recorded in history", "error", err)
		}
		cancel()
	}

	logger.Info("crawl finished",
		"state", s.State.String(),
		"pages", s.Stats.PagesProcessed,
		"products", s.Stats.TotalProducts,
		"duration", s.Duration(),
	)
	if c.summary != nil {
		if _, err := c.summary.Write(report.NewSummary(s, outputPath)); err != nil {
			logger.Warn("summary not written", "error", err)
		}
	}
}

func (c *Controller) flush(s *model.CrawlSession, force bool) error {
	if c.store == nil {
		return nil
	}
	return c.store.Flush(s, force)
}

func (c *Controller) reportProgress(s *model.CrawlSession) {
	if c.progress == nil {
		return
	}
	if _, err := c.progress.WriteProgress(report.NewSummary(s, "")); err != nil {
		c.logger.Debug("progress not written", "error", err)
	}
}

func (c *Controller) pageDelay() time.Duration {
	if c.maxDelay <= c.minDelay {
		return c.minDelay
	}
	return c.minDelay + rand.N(c.maxDelay-c.minDelay+1) //nolint:gosec // jitter
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsAborted reports whether err came from an interrupted crawl.
func IsAborted(err error) bool {
	return errors.Is(err, ErrSessionAborted)
}
