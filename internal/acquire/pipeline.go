package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"

	"github.com/nao1215/productscan/internal/browser"
	"github.com/nao1215/productscan/internal/model"
	"github.com/nao1215/productscan/internal/proxy"
)

// Defaults for the retry loop.
const (
	DefaultAttempts      = 3
	DefaultMinRetryDelay = 2 * time.Second
	DefaultMaxRetryDelay = 5 * time.Second
)

// Pipeline runs the acquisition strategies in order.
type Pipeline struct {
	launcher browser.Launcher
	pool     *proxy.Pool
	base     browser.LaunchOptions
	cookie   string

	strategies []Strategy
	attempts   int
	minDelay   time.Duration
	maxDelay   time.Duration
	limiter    *rate.Limiter
	overlays   bool
	logger     *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithPool routes the strategies through a proxy pool.
func WithPool(pool *proxy.Pool) Option {
	return func(p *Pipeline) {
		p.pool = pool
	}
}

// WithLaunchOptions sets the base identity of launched pages.
func WithLaunchOptions(opts browser.LaunchOptions) Option {
	return func(p *Pipeline) {
		p.base = opts
	}
}

// WithCookie sends a Cookie header with raw fetches.
func WithCookie(cookie string) Option {
	return func(p *Pipeline) {
		p.cookie = cookie
	}
}

// WithStrategies replaces the default strategy chain.
func WithStrategies(strategies ...Strategy) Option {
	return func(p *Pipeline) {
		p.strategies = strategies
	}
}

// WithAttempts sets how many times the whole chain is tried.
func WithAttempts(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.attempts = n
		}
	}
}

// WithRetryDelay sets the bounds of the uniform random delay between
// attempts.
func WithRetryDelay(minDelay, maxDelay time.Duration) Option {
	return func(p *Pipeline) {
		if minDelay < 0 || maxDelay < minDelay {
			return
		}
		p.minDelay, p.maxDelay = minDelay, maxDelay
	}
}

// WithLimiter paces strategy runs.
func WithLimiter(l *rate.Limiter) Option {
	return func(p *Pipeline) {
		p.limiter = l
	}
}

// WithOverlayDismissal toggles clicking away cookie banners and modals
// on acquired pages. It is on by default.
func WithOverlayDismissal(enabled bool) Option {
	return func(p *Pipeline) {
		p.overlays = enabled
	}
}

// New creates a Pipeline that launches pages with launcher. Unless
// WithStrategies is given, the chain is stealth-render, raw-fetch,
// rotated-identity.
func New(launcher browser.Launcher, opts ...Option) *Pipeline {
	p := &Pipeline{
		launcher: launcher,
		attempts: DefaultAttempts,
		minDelay: DefaultMinRetryDelay,
		maxDelay: DefaultMaxRetryDelay,
		overlays: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if len(p.strategies) == 0 {
		p.strategies = []Strategy{
			NewStealthRender(p.launcher, p.pool, p.base),
			NewRawFetch(p.launcher, p.pool, p.base, p.cookie),
			NewRotatedIdentity(p.launcher, p.pool, p.base),
		}
	}
	return p
}

// StrategyNames returns the strategy names in execution order.
func (p *Pipeline) StrategyNames() []string {
	names := make([]string, len(p.strategies))
	for i, s := range p.strategies {
		names[i] = s.Name()
	}
	return names
}

// Acquire loads rawURL. It returns the first viable result, or
// ErrAcquisitionFailed once every strategy of every attempt failed.
// Cancellation is returned as the context error.
func (p *Pipeline) Acquire(ctx context.Context, session *model.CrawlSession, rawURL string) (*Result, error) {
	target := Target{URL: rawURL, Session: session}
	var lastErr error

	for attempt := 1; attempt <= p.attempts; attempt++ {
		if attempt > 1 {
			delay := p.retryDelay()
			p.logger.Debug("retrying acquisition", "url", rawURL, "attempt", attempt, "delay", delay)
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		for _, s := range p.strategies {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if p.limiter != nil {
				if err := p.limiter.Wait(ctx); err != nil {
					return nil, err
				}
			}

			res, err := s.Do(ctx, target)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				p.logger.Warn("strategy failed",
					"strategy", s.Name(),
					"url", rawURL,
					"attempt", attempt,
					"error", err,
				)
				lastErr = fmt.Errorf("%s: %w", s.Name(), err)
				continue
			}

			res.Strategy = s.Name()
			res.Attempt = attempt
			if !res.Viable() {
				p.logger.Warn("strategy result not viable",
					"strategy", s.Name(),
					"url", rawURL,
					"status", res.Status,
					"length", res.ContentLength,
					"blocked", res.Blocked,
				)
				if res.Page != nil {
					_ = res.Page.Close()
				}
				lastErr = fmt.Errorf("%s: %w (status %d, %d bytes)", s.Name(), ErrNotViable, res.Status, res.ContentLength)
				continue
			}

			if p.overlays {
				if n := DismissOverlays(ctx, res.Page, p.logger); n > 0 {
					p.logger.Debug("dismissed overlays", "count", n)
				}
			}
			p.logger.Info("page acquired",
				"strategy", s.Name(),
				"url", rawURL,
				"attempt", attempt,
				"status", res.Status,
				"proxy", res.Proxy,
			)
			return res, nil
		}
	}

	if lastErr == nil {
		lastErr = errors.New("no strategies configured")
	}
	return nil, fmt.Errorf("%w: %s after %d attempts: %w", ErrAcquisitionFailed, rawURL, p.attempts, lastErr)
}

func (p *Pipeline) retryDelay() time.Duration {
	if p.maxDelay <= p.minDelay {
		return p.minDelay
	}
	return p.minDelay + rand.N(p.maxDelay-p.minDelay+1) //nolint:gosec // jitter
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
