package acquire

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nao1215/productscan/internal/browser"
	"github.com/nao1215/productscan/internal/fetch"
	"github.com/nao1215/productscan/internal/model"
	"github.com/nao1215/productscan/internal/proxy"
)

// Strategy loads one URL. A strategy that returns an error has already
// released any page it opened.
type Strategy interface {
	// Do loads target and describes the outcome.
	Do(ctx context.Context, target Target) (*Result, error)

	// Name returns the strategy's name for logging.
	Name() string
}

// Target is the URL to load and the session it belongs to.
type Target struct {
	URL     string
	Session *model.CrawlSession
}

// Strategy names.
const (
	NameStealthRender   = "stealth-render"
	NameRawFetch        = "raw-fetch"
	NameRotatedIdentity = "rotated-identity"
)

// StealthRender launches a browser with anti-automation flags and waits for
// the network to settle.
type StealthRender struct {
	launcher browser.Launcher
	pool     *proxy.Pool
	base     browser.LaunchOptions
}

// NewStealthRender returns the stealth-render strategy. pool may be nil.
func NewStealthRender(launcher browser.Launcher, pool *proxy.Pool, base browser.LaunchOptions) *StealthRender {
	return &StealthRender{launcher: launcher, pool: pool, base: base}
}

// Name returns "stealth-render".
func (s *StealthRender) Name() string { return NameStealthRender }

// Do launches and navigates.
func (s *StealthRender) Do(ctx context.Context, target Target) (*Result, error) {
	opts := s.base
	opts.Stealth = true
	opts.Proxy = currentProxy(s.pool)
	return render(ctx, s.launcher, opts, target.URL)
}

// RawFetch downloads the document over plain HTTP with browser-like headers
// and injects it into a fresh page. It gets through defenses that
// fingerprint the browser but not the TLS client.
type RawFetch struct {
	launcher browser.Launcher
	pool     *proxy.Pool
	base     browser.LaunchOptions
	cookie   string
}

// NewRawFetch returns the raw-fetch strategy. pool may be nil.
func NewRawFetch(launcher browser.Launcher, pool *proxy.Pool, base browser.LaunchOptions, cookie string) *RawFetch {
	return &RawFetch{launcher: launcher, pool: pool, base: base, cookie: cookie}
}

// Name returns "raw-fetch".
func (s *RawFetch) Name() string { return NameRawFetch }

// Do fetches and injects.
func (s *RawFetch) Do(ctx context.Context, target Target) (*Result, error) {
	ep := currentProxy(s.pool)
	ua := s.base.UserAgent
	if ua == "" {
		ua = browser.DefaultUserAgent
	}
	client, err := fetch.New(
		fetch.WithUserAgent(ua),
		fetch.WithHeaders(s.base.Headers),
		fetch.WithCookie(s.cookie),
		fetch.WithProxy(ep),
		fetch.WithTimeout(navigationTimeout(s.base)),
	)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	resp, err := client.Get(ctx, target.URL)
	if err != nil {
		return nil, err
	}

	opts := s.base
	opts.Proxy = ep
	page, err := s.launcher.Launch(ctx, opts)
	if err != nil {
		return nil, err
	}
	body := string(resp.Body)
	if err := page.SetContent(ctx, resp.FinalURL, body); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("inject document: %w", err)
	}
	return &Result{
		Page:          &fetchedPage{Page: page, url: resp.FinalURL},
		URL:           resp.FinalURL,
		Status:        resp.StatusCode,
		ContentLength: len(body),
		Blocked:       IsChallenge(body),
		Proxy:         endpointName(ep),
	}, nil
}

// RotatedIdentity relaunches with a random user agent and the next proxy in
// the pool. A proxy that fails the navigation or is served a challenge page
// is demoted.
type RotatedIdentity struct {
	launcher  browser.Launcher
	pool      *proxy.Pool
	base      browser.LaunchOptions
	userAgent func() string
}

// NewRotatedIdentity returns the rotated-identity strategy. pool may be nil,
// in which case only the user agent changes.
func NewRotatedIdentity(launcher browser.Launcher, pool *proxy.Pool, base browser.LaunchOptions) *RotatedIdentity {
	return &RotatedIdentity{
		launcher:  launcher,
		pool:      pool,
		base:      base,
		userAgent: browser.RandomUserAgent,
	}
}

// Name returns "rotated-identity".
func (s *RotatedIdentity) Name() string { return NameRotatedIdentity }

// Do rotates the identity and renders.
func (s *RotatedIdentity) Do(ctx context.Context, target Target) (*Result, error) {
	opts := s.base
	opts.Stealth = true
	opts.UserAgent = s.userAgent()
	if s.pool != nil {
		if ep, status := s.pool.Rotate(); status == proxy.StatusOK {
			opts.Proxy = &ep
		}
	}

	res, err := render(ctx, s.launcher, opts, target.URL)
	if opts.Proxy == nil {
		return res, err
	}
	switch {
	case err != nil && ctx.Err() == nil:
		s.pool.MarkFailed(opts.Proxy.Address)
	case err == nil && res.Blocked:
		// The exit node is flagged by the challenge provider.
		s.pool.MarkFailed(opts.Proxy.Address)
	}
	return res, err
}

// render launches a page with opts and navigates to rawURL.
func render(ctx context.Context, launcher browser.Launcher, opts browser.LaunchOptions, rawURL string) (*Result, error) {
	page, err := launcher.Launch(ctx, opts)
	if err != nil {
		return nil, err
	}
	nav, err := page.Navigate(ctx, rawURL, browser.WaitNetworkIdle)
	if err != nil {
		_ = page.Close()
		return nil, err
	}
	html, err := page.HTML(ctx)
	if err != nil {
		_ = page.Close()
		return nil, err
	}
	return &Result{
		Page:          page,
		URL:           nav.URL,
		Status:        nav.Status,
		ContentLength: len(html),
		Blocked:       IsChallenge(html),
		Proxy:         endpointName(opts.Proxy),
	}, nil
}

func currentProxy(pool *proxy.Pool) *proxy.Endpoint {
	if pool == nil {
		return nil
	}
	ep, status := pool.Current()
	if status != proxy.StatusOK {
		return nil
	}
	return &ep
}

func endpointName(ep *proxy.Endpoint) string {
	if ep == nil {
		return ""
	}
	return ep.String()
}

func navigationTimeout(o browser.LaunchOptions) time.Duration {
	if o.NavigationTimeout <= 0 {
		return browser.DefaultNavigationTimeout
	}
	return o.NavigationTimeout
}

// fetchedPage reports the fetched URL while the injected document has no
// URL of its own (about:blank in a real browser).
type fetchedPage struct {
	browser.Page
	url string
}

func (p *fetchedPage) URL() string {
	if u := p.Page.URL(); strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	return p.url
}
