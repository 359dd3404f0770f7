package browser

import (
	"context"
	"fmt"
	stdhtml "html"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/nao1215/productscan/internal/proxy"
)

// WaitPolicy selects what Navigate waits for after the response.
type WaitPolicy int

const (
	// WaitLoad waits for the load event.
	WaitLoad WaitPolicy = iota

	// WaitNetworkIdle waits for the load event and then for the network
	// to stay quiet for a short window.
	WaitNetworkIdle

	// WaitNone returns as soon as the navigation is committed.
	WaitNone
)

// Default timeouts.
const (
	DefaultNavigationTimeout = 30 * time.Second
	DefaultSelectorTimeout   = 10 * time.Second
	DefaultIdleWindow        = 500 * time.Millisecond
)

// LaunchOptions describe the identity of one browser instance.
type LaunchOptions struct {
	// UserAgent overrides the engine default.
	UserAgent string

	// Proxy routes all traffic through the endpoint when non-nil.
	Proxy *proxy.Endpoint

	// Headless hides the browser window.
	Headless bool

	// Stealth suppresses automation signals (navigator.webdriver and friends).
	Stealth bool

	// BlockResources aborts images, fonts, media and stylesheets.
	BlockResources bool

	// Headers are sent with every request.
	Headers map[string]string

	// NavigationTimeout bounds each navigation.
	NavigationTimeout time.Duration
}

func (o LaunchOptions) navigationTimeout() time.Duration {
	if o.NavigationTimeout <= 0 {
		return DefaultNavigationTimeout
	}
	return o.NavigationTimeout
}

// Navigation is the result of a committed navigation.
type Navigation struct {
	// URL is the final URL after redirects.
	URL string

	// Status is the HTTP status of the main document, or 0 if the engine
	// could not observe it.
	Status int
}

// OK reports whether the status is in the 2xx range.
func (n Navigation) OK() bool {
	return n.Status >= 200 && n.Status <= 299
}

// Launcher starts isolated browser instances.
type Launcher interface {
	// Name returns the engine name.
	Name() string

	// Launch starts a browser with the given identity and returns its page.
	Launch(ctx context.Context, opts LaunchOptions) (Page, error)
}

// Page is one loaded document. A Page is used by one goroutine at a time.
type Page interface {
	// Navigate loads url and waits according to policy.
	Navigate(ctx context.Context, url string, policy WaitPolicy) (Navigation, error)

	// SetContent replaces the document with html as if it had been served
	// from baseURL. Engines that cannot change the document URL add a
	// <base> element so that relative links still resolve.
	SetContent(ctx context.Context, baseURL, html string) error

	// URL returns the current document URL.
	URL() string

	// HTML returns the serialized document.
	HTML(ctx context.Context) (string, error)

	// QueryAll returns the elements matching a CSS selector in document
	// order. No match is an empty slice, not an error.
	QueryAll(ctx context.Context, selector string) ([]Element, error)

	// Evaluate runs a JavaScript expression and returns its JSON value
	// decoded into Go types (float64, string, bool, map, slice, nil).
	Evaluate(ctx context.Context, script string) (any, error)

	// WaitIdle waits until the network has been quiet for a short window.
	WaitIdle(ctx context.Context) error

	// Close releases the page and the browser behind it.
	Close() error
}

// Element is a handle to a DOM element.
type Element interface {
	// Attribute returns the raw attribute value and whether it exists.
	Attribute(ctx context.Context, name string) (string, bool, error)

	// Visible reports whether the element is rendered.
	Visible(ctx context.Context) (bool, error)

	// Enabled reports whether the element accepts interaction.
	Enabled(ctx context.Context) (bool, error)

	// Click activates the element.
	Click(ctx context.Context) error

	// QueryAll returns descendants matching a CSS selector.
	QueryAll(ctx context.Context, selector string) ([]Element, error)
}

// Engine names accepted by New.
const (
	EngineRod      = "rod"
	EngineChromedp = "chromedp"
	EngineStatic   = "static"
)

// Engines lists the accepted engine names.
func Engines() []string {
	return []string{EngineRod, EngineChromedp, EngineStatic}
}

// Config is shared by every engine.
type Config struct {
	// BinPath is the browser executable; empty lets the engine find or
	// download one.
	BinPath string

	// Limiter paces navigations across pages of one engine.
	Limiter *rate.Limiter

	// Logger receives engine diagnostics.
	Logger *slog.Logger
}

// New returns the launcher for engine.
func New(engine string, cfg Config) (Launcher, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	switch engine {
	case EngineRod, "":
		return NewRodLauncher(cfg), nil
	case EngineChromedp:
		return NewChromedpLauncher(cfg), nil
	case EngineStatic:
		return NewStaticLauncher(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, engine)
	}
}

// waitLimiter blocks on the shared limiter when one is configured.
func waitLimiter(ctx context.Context, l *rate.Limiter) error {
	if l == nil {
		return nil
	}
	return l.Wait(ctx)
}

// withBase inserts <base href="baseURL"> into html unless the document
// already declares one.
func withBase(baseURL, html string) string {
	if baseURL == "" || strings.Contains(strings.ToLower(html), "<base") {
		return html
	}
	tag := `<base href="` + stdhtml.EscapeString(baseURL) + `">`
	lower := strings.ToLower(html)
	if i := strings.Index(lower, "<head"); i >= 0 {
		if j := strings.Index(html[i:], ">"); j >= 0 {
			at := i + j + 1
			return html[:at] + tag + html[at:]
		}
	}
	return tag + html
}
