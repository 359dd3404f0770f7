package paginate

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/productscan/internal/browser"
	"github.com/nao1215/productscan/internal/profile"
)

// DefaultScrollDelay is how long the driver waits for lazily loaded results
// after scrolling.
const DefaultScrollDelay = 2 * time.Second

// pageParams are the query keys recognized as a page number, in priority
// order.
var pageParams = []string{"page", "p", "pg", "pageNumber", "pageNum"}

// Method is the way a page was advanced.
type Method int

const (
	// MethodNone means the listing was not advanced.
	MethodNone Method = iota

	// MethodClick means a next-page control was clicked.
	MethodClick

	// MethodURLParam means the page number in the URL was incremented.
	MethodURLParam

	// MethodScroll means scrolling loaded more results.
	MethodScroll
)

// String returns the method name.
func (m Method) String() string {
	switch m {
	case MethodNone:
		return "none"
	case MethodClick:
		return "click"
	case MethodURLParam:
		return "url-param"
	case MethodScroll:
		return "infinite-scroll"
	default:
		return "unknown"
	}
}

// Outcome describes a successful advance.
type Outcome struct {
	// Method is how the page was advanced.
	Method Method

	// URL is the page URL after advancing. Infinite scroll keeps the URL.
	URL string
}

// Advanced reports whether the listing moved on.
func (o Outcome) Advanced() bool {
	return o.Method != MethodNone
}

// Driver advances listing pages.
type Driver struct {
	scrollDelay time.Duration
	logger      *slog.Logger
}

// Option configures a Driver.
type Option func(*Driver)

// WithScrollDelay sets the wait after scrolling.
func WithScrollDelay(d time.Duration) Option {
	return func(dr *Driver) {
		if d >= 0 {
			dr.scrollDelay = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(dr *Driver) {
		dr.logger = logger
	}
}

// New returns a Driver.
func New(opts ...Option) *Driver {
	d := &Driver{scrollDelay: DefaultScrollDelay}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// Advance moves page to the next page of results. It tries, in order, the
// site's next-page controls, the page number in the URL, and infinite
// scroll when the profile enables it. ErrPaginationExhausted is returned
// when all of them failed; any other error is the context's.
func (d *Driver) Advance(ctx context.Context, page browser.Page, site profile.Site) (Outcome, error) {
	p := site.Profile()

	if out, ok := d.click(ctx, page, p.NextPageSelectors); ok {
		return out, nil
	}
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	if out, ok := d.urlParam(ctx, page); ok {
		return out, nil
	}
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	if p.InfiniteScroll {
		out, ok, err := d.scroll(ctx, page)
		if err != nil {
			return Outcome{}, err
		}
		if ok {
			return out, nil
		}
	}

	d.logger.Info("no pagination method succeeded", "url", page.URL())
	return Outcome{}, ErrPaginationExhausted
}

func (d *Driver) click(ctx context.Context, page browser.Page, selectors []string) (Outcome, bool) {
	for _, sel := range selectors {
		els, err := page.QueryAll(ctx, sel)
		if err != nil || len(els) == 0 {
			continue
		}
		for _, el := range els {
			if visible, err := el.Visible(ctx); err != nil || !visible {
				continue
			}
			if enabled, err := el.Enabled(ctx); err != nil || !enabled {
				continue
			}
			if err := el.Click(ctx); err != nil {
				d.logger.Debug("next-page click failed", "selector", sel, "error", err)
				break
			}
			if err := page.WaitIdle(ctx); err != nil {
				d.logger.Debug("wait after click failed", "error", err)
			}
			d.logger.Debug("advanced by click", "selector", sel, "url", page.URL())
			return Outcome{Method: MethodClick, URL: page.URL()}, true
		}
	}
	return Outcome{}, false
}

func (d *Driver) urlParam(ctx context.Context, page browser.Page) (Outcome, bool) {
	next, ok := NextPageURL(page.URL())
	if !ok {
		return Outcome{}, false
	}
	nav, err := page.Navigate(ctx, next, browser.WaitNetworkIdle)
	if err != nil {
		d.logger.Debug("url pagination failed", "url", next, "error", err)
		return Outcome{}, false
	}
	if nav.Status >= 400 {
		d.logger.Debug("url pagination reached an error page", "url", next, "status", nav.Status)
		return Outcome{}, false
	}
	d.logger.Debug("advanced by url parameter", "url", next)
	return Outcome{Method: MethodURLParam, URL: page.URL()}, true
}

func (d *Driver) scroll(ctx context.Context, page browser.Page) (Outcome, bool, error) {
	before, err := browser.ScrollHeight(ctx, page)
	if err != nil {
		d.logger.Debug("scroll height unavailable", "error", err)
		return Outcome{}, false, nil
	}
	if err := browser.ScrollToBottom(ctx, page); err != nil {
		d.logger.Debug("scroll failed", "error", err)
		return Outcome{}, false, nil
	}

	t := time.NewTimer(d.scrollDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return Outcome{}, false, ctx.Err()
	case <-t.C:
	}

	after, err := browser.ScrollHeight(ctx, page)
	if err != nil || after <= before {
		return Outcome{}, false, nil
	}
	d.logger.Debug("advanced by infinite scroll", "before", before, "after", after)
	return Outcome{Method: MethodScroll, URL: page.URL()}, true, nil
}

// NextPageURL increments the first numeric page parameter found in rawURL
// by one. A page parameter without a number, such as page=all, is set to 2,
// and page=2 is appended when there is none. Other parameters keep their
// order.
func NextPageURL(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}

	var pairs []string
	if u.RawQuery != "" {
		pairs = strings.Split(u.RawQuery, "&")
	}
	reset := -1
	for _, key := range pageParams {
		for i, pair := range pairs {
			k, v, _ := strings.Cut(pair, "=")
			if k != key {
				continue
			}
			n, err := strconv.Atoi(v)
			if err != nil {
				if reset < 0 {
					reset = i
				}
				continue
			}
			pairs[i] = k + "=" + strconv.Itoa(n+1)
			u.RawQuery = strings.Join(pairs, "&")
			return u.String(), true
		}
	}

	if reset >= 0 {
		k, _, _ := strings.Cut(pairs[reset], "=")
		pairs[reset] = k + "=2"
	} else {
		pairs = append(pairs, "page=2")
	}
	u.RawQuery = strings.Join(pairs, "&")
	return u.String(), true
}
