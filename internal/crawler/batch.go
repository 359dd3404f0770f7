package crawler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/productscan/internal/model"
)

// DefaultConcurrency is the number of category URLs crawled at once.
const DefaultConcurrency = 2

// Batch crawls several category URLs concurrently. Each URL gets its own
// session and its own Controller from the factory, so proxy cursors and
// URL sets are never shared between workers. The store passed to the
// controllers is the single shared writer.
type Batch struct {
	// factory builds the controller for the URL at index i.
	factory func(i int) *Controller

	concurrency int
	maxDepth    int
	maxPages    int
	prepare     func(session *model.CrawlSession) error
	logger      *slog.Logger
}

// BatchOption configures a Batch.
type BatchOption func(*Batch)

// WithConcurrency sets the maximum number of concurrent crawls.
func WithConcurrency(n int) BatchOption {
	return func(b *Batch) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithLimits sets the depth and page limits of every session.
func WithLimits(maxDepth, maxPages int) BatchOption {
	return func(b *Batch) {
		b.maxDepth = maxDepth
		b.maxPages = maxPages
	}
}

// WithSessionSetup runs fn on every new session before it is crawled,
// for example to seed it from a progress file.
func WithSessionSetup(fn func(session *model.CrawlSession) error) BatchOption {
	return func(b *Batch) {
		b.prepare = fn
	}
}

// WithBatchLogger sets a custom logger for batch-level messages.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *Batch) {
		b.logger = logger
	}
}

// NewBatch creates a Batch. factory is called once per URL with the URL's
// index, which callers use to offset forked proxy cursors.
func NewBatch(factory func(i int) *Controller, opts ...BatchOption) *Batch {
	b := &Batch{
		factory:     factory,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// Run crawls every URL and returns the sessions in input order. A URL
// that cannot start a session leaves a nil entry. Failed and interrupted
// sessions are returned like any other; the error is ErrSessionAborted
// when ctx was cancelled, or the joined start errors.
func (b *Batch) Run(ctx context.Context, urls []string) ([]*model.CrawlSession, error) {
	b.logger.Info("starting batch crawl",
		"total_urls", len(urls),
		"concurrency", b.concurrency,
	)
	start := time.Now()

	sessions := make([]*model.CrawlSession, len(urls))
	startErrs := make([]error, len(urls))

	var g errgroup.Group
	g.SetLimit(b.concurrency)

	for i, u := range urls {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}

			session, err := model.NewSession(u, model.WithLimits(b.maxDepth, b.maxPages))
			if err != nil {
				startErrs[i] = err
				return nil
			}
			if b.prepare != nil {
				if err := b.prepare(session); err != nil {
					startErrs[i] = err
					return nil
				}
			}
			sessions[i] = session

			b.logger.Info("crawling category",
				"url", u,
				"index", i+1,
				"total", len(urls),
			)
			if err := b.factory(i).Crawl(ctx, session); err != nil {
				b.logger.Warn("category crawl ended with error", "url", u, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never return errors

	b.logger.Info("batch crawl complete",
		"total_urls", len(urls),
		"elapsed", time.Since(start),
	)

	if ctx.Err() != nil {
		return sessions, ErrSessionAborted
	}
	return sessions, errors.Join(startErrs...)
}
