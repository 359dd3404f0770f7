package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/nao1215/productscan/internal/fetch"
)

// StaticLauncher loads pages with plain HTTP and queries them with goquery.
type StaticLauncher struct {
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewStaticLauncher returns a static engine.
func NewStaticLauncher(cfg Config) *StaticLauncher {
	return &StaticLauncher{limiter: cfg.Limiter, logger: cfg.Logger}
}

// Name returns "static".
func (l *StaticLauncher) Name() string { return EngineStatic }

// Launch creates an HTTP client with the requested identity.
func (l *StaticLauncher) Launch(_ context.Context, opts LaunchOptions) (Page, error) {
	fetchOpts := []fetch.Option{
		fetch.WithHeaders(opts.Headers),
		fetch.WithTimeout(opts.navigationTimeout()),
		fetch.WithProxy(opts.Proxy),
		fetch.WithLimiter(l.limiter),
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	fetchOpts = append(fetchOpts, fetch.WithUserAgent(ua))

	client, err := fetch.New(fetchOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLaunchFailed, err)
	}
	return NewStaticPage(client), nil
}

// StaticPage is a Page backed by an HTTP client and a goquery document.
type StaticPage struct {
	client *fetch.Client

	mu     sync.Mutex
	url    string
	html   string
	doc    *goquery.Document
	closed bool
}

// NewStaticPage returns an empty page that navigates with client.
func NewStaticPage(client *fetch.Client) *StaticPage {
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader("")) //nolint:errcheck // empty input cannot fail
	return &StaticPage{client: client, doc: doc}
}

func (p *StaticPage) Navigate(ctx context.Context, rawURL string, _ WaitPolicy) (Navigation, error) {
	if p.isClosed() {
		return Navigation{}, ErrPageClosed
	}
	resp, err := p.client.Get(ctx, rawURL)
	if err != nil {
		return Navigation{}, fmt.Errorf("%w: %s: %w", ErrNavigationFailed, rawURL, err)
	}
	if err := p.load(resp.FinalURL, string(resp.Body)); err != nil {
		return Navigation{}, err
	}
	return Navigation{URL: resp.FinalURL, Status: resp.StatusCode}, nil
}

// SetContent parses html as the current document served from baseURL.
// An empty baseURL keeps the current URL.
func (p *StaticPage) SetContent(_ context.Context, baseURL, html string) error {
	if p.isClosed() {
		return ErrPageClosed
	}
	if baseURL == "" {
		baseURL = p.URL()
	}
	return p.load(baseURL, html)
}

func (p *StaticPage) load(pageURL, html string) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("parse document: %w", err)
	}
	if u, err := url.Parse(pageURL); err == nil {
		doc.Url = u
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = pageURL
	p.html = html
	p.doc = doc
	return nil
}

func (p *StaticPage) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *StaticPage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *StaticPage) HTML(_ context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", ErrPageClosed
	}
	return p.html, nil
}

func (p *StaticPage) QueryAll(_ context.Context, selector string) ([]Element, error) {
	p.mu.Lock()
	doc := p.doc
	p.mu.Unlock()
	return p.wrap(doc.Find(selector)), nil
}

func (p *StaticPage) wrap(sel *goquery.Selection) []Element {
	out := make([]Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, &staticElement{page: p, sel: s})
	})
	return out
}

// Evaluate is not supported: the static engine runs no script.
func (p *StaticPage) Evaluate(_ context.Context, _ string) (any, error) {
	return nil, ErrScriptUnsupported
}

// WaitIdle returns immediately; a static document never changes on its own.
func (p *StaticPage) WaitIdle(_ context.Context) error {
	return nil
}

func (p *StaticPage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.client.Close()
	return nil
}

type staticElement struct {
	page *StaticPage
	sel  *goquery.Selection
}

func (e *staticElement) Attribute(_ context.Context, name string) (string, bool, error) {
	v, ok := e.sel.Attr(name)
	return v, ok, nil
}

func (e *staticElement) Visible(_ context.Context) (bool, error) {
	return !isElementHidden(e.sel), nil
}

func (e *staticElement) Enabled(ctx context.Context) (bool, error) {
	return attributesEnabled(func(name string) (string, bool, error) {
		return e.Attribute(ctx, name)
	})
}

// Click follows the element's href. Controls without an href need script,
// which the static engine cannot run.
func (e *staticElement) Click(ctx context.Context) error {
	href, ok := e.sel.Attr("href")
	if !ok || strings.TrimSpace(href) == "" || strings.HasPrefix(strings.TrimSpace(href), "javascript:") {
		return ErrScriptUnsupported
	}
	target, err := resolve(e.page.URL(), href)
	if err != nil {
		return err
	}
	_, err = e.page.Navigate(ctx, target, WaitLoad)
	return err
}

func (e *staticElement) QueryAll(_ context.Context, selector string) ([]Element, error) {
	return e.page.wrap(e.sel.Find(selector)), nil
}

func resolve(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}

// hidingClasses are utility classes that hide an element.
var hidingClasses = []string{
	"hide", "hidden", "display-none", "d-none", "invisible", "is-hidden",
}

// isElementHidden inspects the element and its ancestors for the markup
// that hides content without a stylesheet: the hidden attribute,
// aria-hidden, inline display/visibility styles and hiding classes.
func isElementHidden(s *goquery.Selection) bool {
	for n := s; n.Length() > 0 && !n.Is("body"); n = n.Parent() {
		if _, ok := n.Attr("hidden"); ok {
			return true
		}
		if v, ok := n.Attr("aria-hidden"); ok && v == "true" {
			return true
		}
		if style, ok := n.Attr("style"); ok {
			compact := strings.ReplaceAll(strings.ToLower(style), " ", "")
			if strings.Contains(compact, "display:none") || strings.Contains(compact, "visibility:hidden") {
				return true
			}
		}
		for _, class := range hidingClasses {
			if n.HasClass(class) {
				return true
			}
		}
	}
	return false
}
