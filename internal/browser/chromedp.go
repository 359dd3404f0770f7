package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"golang.org/x/time/rate"
)

// ChromedpLauncher starts Chromium through chromedp.
type ChromedpLauncher struct {
	bin     string
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewChromedpLauncher returns a chromedp engine.
func NewChromedpLauncher(cfg Config) *ChromedpLauncher {
	return &ChromedpLauncher{bin: cfg.BinPath, limiter: cfg.Limiter, logger: cfg.Logger}
}

// Name returns "chromedp".
func (l *ChromedpLauncher) Name() string { return EngineChromedp }

// Launch starts a dedicated browser process with the requested identity.
func (l *ChromedpLauncher) Launch(ctx context.Context, opts LaunchOptions) (Page, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-infobars", true),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.WindowSize(WindowWidth, WindowHeight),
	)
	if l.bin != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(l.bin))
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.Proxy != nil {
		allocOpts = append(allocOpts, chromedp.ProxyServer(opts.Proxy.String()))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		l.logger.Debug(fmt.Sprintf(format, args...))
	}))

	p := &chromedpPage{
		tabCtx:  tabCtx,
		cancel:  func() { cancelTab(); cancelAlloc() },
		limiter: l.limiter,
		opts:    opts,
	}

	setup := []chromedp.Action{network.Enable()}
	if opts.Stealth {
		setup = append(setup, chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(StealthScript).Do(ctx)
			return err
		}))
	}
	if len(opts.Headers) > 0 {
		headers := make(network.Headers, len(opts.Headers))
		for k, v := range opts.Headers {
			headers[k] = v
		}
		setup = append(setup, network.SetExtraHTTPHeaders(headers))
	}
	if opts.BlockResources {
		setup = append(setup, network.SetBlockedURLs(blockedURLPatterns))
	}

	// The first Run starts the browser process.
	if err := chromedp.Run(tabCtx, setup...); err != nil {
		p.cancel()
		return nil, fmt.Errorf("%w: %w", ErrLaunchFailed, err)
	}
	return p, nil
}

type chromedpPage struct {
	tabCtx  context.Context
	cancel  context.CancelFunc
	limiter *rate.Limiter
	opts    LaunchOptions

	mu     sync.Mutex
	url    string
	closed bool
}

// run executes actions on the tab, bounded by ctx as well as the tab.
func (p *chromedpPage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrPageClosed
	}

	runCtx, cancel := context.WithTimeout(p.tabCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (p *chromedpPage) Navigate(ctx context.Context, url string, policy WaitPolicy) (Navigation, error) {
	if err := waitLimiter(ctx, p.limiter); err != nil {
		return Navigation{}, err
	}

	var (
		resp     *network.Response
		location string
	)
	err := p.run(ctx, p.opts.navigationTimeout(), chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		resp, err = chromedp.RunResponse(ctx, chromedp.Navigate(url))
		if err != nil {
			return err
		}
		if policy != WaitNone {
			if err := chromedp.WaitReady("body", chromedp.ByQuery).Do(ctx); err != nil {
				return err
			}
		}
		if policy == WaitNetworkIdle {
			if err := chromedp.Sleep(DefaultIdleWindow).Do(ctx); err != nil {
				return err
			}
		}
		return chromedp.Location(&location).Do(ctx)
	}))
	if err != nil {
		return Navigation{}, fmt.Errorf("%w: %s: %w", ErrNavigationFailed, url, err)
	}

	p.mu.Lock()
	p.url = location
	p.mu.Unlock()

	nav := Navigation{URL: location}
	if resp != nil {
		nav.Status = int(resp.Status)
	}
	return nav, nil
}

func (p *chromedpPage) SetContent(ctx context.Context, baseURL, html string) error {
	return p.run(ctx, DefaultSelectorTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		tree, err := page.GetFrameTree().Do(ctx)
		if err != nil {
			return err
		}
		return page.SetDocumentContent(tree.Frame.ID, withBase(baseURL, html)).Do(ctx)
	}))
}

func (p *chromedpPage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *chromedpPage) HTML(ctx context.Context) (string, error) {
	var html string
	err := p.run(ctx, DefaultSelectorTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (p *chromedpPage) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	return p.queryNodes(ctx, selector)
}

func (p *chromedpPage) queryNodes(ctx context.Context, selector string, opts ...chromedp.QueryOption) ([]Element, error) {
	var nodes []*cdp.Node
	opts = append([]chromedp.QueryOption{chromedp.ByQueryAll, chromedp.AtLeast(0)}, opts...)
	if err := p.run(ctx, DefaultSelectorTimeout, chromedp.Nodes(selector, &nodes, opts...)); err != nil {
		return nil, err
	}
	out := make([]Element, len(nodes))
	for i, n := range nodes {
		out[i] = &chromedpElement{page: p, node: n}
	}
	return out, nil
}

func (p *chromedpPage) Evaluate(ctx context.Context, script string) (any, error) {
	var res any
	err := p.run(ctx, DefaultSelectorTimeout, chromedp.Evaluate(script, &res))
	return res, err
}

func (p *chromedpPage) WaitIdle(ctx context.Context) error {
	return p.run(ctx, DefaultSelectorTimeout,
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(DefaultIdleWindow),
	)
}

// Close cancels the tab and the allocator, which terminates the browser.
func (p *chromedpPage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.cancel()
	return nil
}

type chromedpElement struct {
	page *chromedpPage
	node *cdp.Node
}

func (e *chromedpElement) Attribute(_ context.Context, name string) (string, bool, error) {
	v, ok := e.node.Attribute(name)
	return v, ok, nil
}

// Visible reports whether the element has a non-empty box model.
func (e *chromedpElement) Visible(ctx context.Context) (bool, error) {
	var visible bool
	err := e.page.run(ctx, DefaultSelectorTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		box, err := dom.GetBoxModel().WithNodeID(e.node.NodeID).Do(ctx)
		if err != nil {
			// No box model means the element is not rendered.
			return nil //nolint:nilerr // not rendered is a valid answer
		}
		visible = box.Width > 0 && box.Height > 0
		return nil
	}))
	return visible, err
}

func (e *chromedpElement) Enabled(ctx context.Context) (bool, error) {
	return attributesEnabled(func(name string) (string, bool, error) {
		return e.Attribute(ctx, name)
	})
}

func (e *chromedpElement) Click(ctx context.Context) error {
	return e.page.run(ctx, DefaultSelectorTimeout, chromedp.MouseClickNode(e.node))
}

func (e *chromedpElement) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	return e.page.queryNodes(ctx, strings.TrimSpace(selector), chromedp.FromNode(e.node))
}
