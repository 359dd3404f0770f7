package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"golang.org/x/time/rate"
)

// RodLauncher starts Chromium through go-rod.
type RodLauncher struct {
	bin     string
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewRodLauncher returns a rod engine.
func NewRodLauncher(cfg Config) *RodLauncher {
	return &RodLauncher{bin: cfg.BinPath, limiter: cfg.Limiter, logger: cfg.Logger}
}

// Name returns "rod".
func (l *RodLauncher) Name() string { return EngineRod }

// Launch starts a dedicated browser process with the requested identity.
func (l *RodLauncher) Launch(ctx context.Context, opts LaunchOptions) (Page, error) {
	ln := launcher.New().
		Context(ctx).
		Headless(opts.Headless).
		NoSandbox(true).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("disable-infobars").
		Set("window-size", fmt.Sprintf("%d,%d", WindowWidth, WindowHeight))
	if l.bin != "" {
		ln = ln.Bin(l.bin)
	}
	if opts.UserAgent != "" {
		ln = ln.Set("user-agent", opts.UserAgent)
	}
	if opts.Proxy != nil {
		ln = ln.Proxy(opts.Proxy.String())
	}

	controlURL, err := ln.Launch()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLaunchFailed, err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		ln.Kill()
		return nil, fmt.Errorf("%w: connect: %w", ErrLaunchFailed, err)
	}

	p := &rodPage{launcher: ln, browser: b, limiter: l.limiter, logger: l.logger, opts: opts}
	if err := p.setup(); err != nil {
		_ = p.Close() //nolint:errcheck // best effort cleanup
		return nil, fmt.Errorf("%w: %w", ErrLaunchFailed, err)
	}
	return p, nil
}

type rodPage struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	router   *rod.HijackRouter
	limiter  *rate.Limiter
	logger   *slog.Logger
	opts     LaunchOptions

	closeOnce sync.Once
	closed    atomic.Bool
}

func (p *rodPage) setup() error {
	if p.opts.Proxy != nil && p.opts.Proxy.User != nil {
		pass, _ := p.opts.Proxy.User.Password()
		go func() {
			_ = p.browser.HandleAuth(p.opts.Proxy.User.Username(), pass)() //nolint:errcheck // ends with the browser
		}()
	}

	var err error
	if p.opts.Stealth {
		p.page, err = stealth.Page(p.browser)
	} else {
		p.page, err = p.browser.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}

	if p.opts.Stealth {
		if _, err := p.page.EvalOnNewDocument(StealthScript); err != nil {
			return fmt.Errorf("install stealth script: %w", err)
		}
	}
	if p.opts.UserAgent != "" {
		if err := p.page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      p.opts.UserAgent,
			AcceptLanguage: "en-US,en;q=0.9",
		}); err != nil {
			return fmt.Errorf("set user agent: %w", err)
		}
	}
	if len(p.opts.Headers) > 0 {
		dict := make([]string, 0, len(p.opts.Headers)*2)
		for k, v := range p.opts.Headers {
			dict = append(dict, k, v)
		}
		if _, err := p.page.SetExtraHeaders(dict); err != nil {
			return fmt.Errorf("set headers: %w", err)
		}
	}
	if p.opts.BlockResources {
		p.router = p.page.HijackRequests()
		if err := p.router.Add("*", "", func(h *rod.Hijack) {
			if blockedResourceTypes[string(h.Request.Type())] {
				h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
				return
			}
			h.ContinueRequest(&proto.FetchContinueRequest{})
		}); err != nil {
			return fmt.Errorf("install resource filter: %w", err)
		}
		go p.router.Run()
	}
	return nil
}

func (p *rodPage) ctxPage(ctx context.Context) (*rod.Page, error) {
	if p.closed.Load() {
		return nil, ErrPageClosed
	}
	return p.page.Context(ctx), nil
}

func (p *rodPage) Navigate(ctx context.Context, url string, policy WaitPolicy) (Navigation, error) {
	if err := waitLimiter(ctx, p.limiter); err != nil {
		return Navigation{}, err
	}
	pg, err := p.ctxPage(ctx)
	if err != nil {
		return Navigation{}, err
	}
	pg = pg.Timeout(p.opts.navigationTimeout())
	defer pg.CancelTimeout()

	var status atomic.Int64
	waitStatus := pg.EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Type == proto.NetworkResourceTypeDocument {
			status.Store(int64(e.Response.Status))
			return true
		}
		return false
	})
	go waitStatus()

	var waitIdle func()
	if policy == WaitNetworkIdle {
		waitIdle = pg.WaitRequestIdle(DefaultIdleWindow, nil, nil, nil)
	}

	if err := pg.Navigate(url); err != nil {
		return Navigation{}, fmt.Errorf("%w: %s: %w", ErrNavigationFailed, url, err)
	}
	if policy != WaitNone {
		if err := pg.WaitLoad(); err != nil {
			return Navigation{}, fmt.Errorf("%w: wait load: %w", ErrNavigationFailed, err)
		}
	}
	if waitIdle != nil {
		waitIdle()
	}

	return Navigation{URL: p.URL(), Status: int(status.Load())}, nil
}

func (p *rodPage) SetContent(ctx context.Context, baseURL, html string) error {
	pg, err := p.ctxPage(ctx)
	if err != nil {
		return err
	}
	return pg.SetDocumentContent(withBase(baseURL, html))
}

func (p *rodPage) URL() string {
	if p.closed.Load() {
		return ""
	}
	info, err := p.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (p *rodPage) HTML(ctx context.Context) (string, error) {
	pg, err := p.ctxPage(ctx)
	if err != nil {
		return "", err
	}
	return pg.HTML()
}

func (p *rodPage) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	pg, err := p.ctxPage(ctx)
	if err != nil {
		return nil, err
	}
	els, err := pg.Elements(selector)
	if err != nil {
		return nil, err
	}
	return wrapRodElements(els), nil
}

func (p *rodPage) Evaluate(ctx context.Context, script string) (any, error) {
	pg, err := p.ctxPage(ctx)
	if err != nil {
		return nil, err
	}
	res, err := pg.Eval(script)
	if err != nil {
		return nil, err
	}
	return res.Value.Val(), nil
}

func (p *rodPage) WaitIdle(ctx context.Context) error {
	pg, err := p.ctxPage(ctx)
	if err != nil {
		return err
	}
	pg = pg.Timeout(DefaultSelectorTimeout)
	defer pg.CancelTimeout()
	return pg.WaitIdle(DefaultSelectorTimeout)
}

// Close stops the hijack router, closes the browser and removes the
// temporary profile directory.
func (p *rodPage) Close() error {
	var errs []error
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		if p.router != nil {
			errs = append(errs, p.router.Stop())
		}
		if p.browser != nil {
			errs = append(errs, p.browser.Close())
		}
		p.launcher.Kill()
		p.launcher.Cleanup()
	})
	return errors.Join(errs...)
}

type rodElement struct {
	el *rod.Element
}

func wrapRodElements(els rod.Elements) []Element {
	out := make([]Element, len(els))
	for i, el := range els {
		out[i] = &rodElement{el: el}
	}
	return out
}

func (e *rodElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (e *rodElement) Visible(ctx context.Context) (bool, error) {
	return e.el.Context(ctx).Visible()
}

func (e *rodElement) Enabled(ctx context.Context) (bool, error) {
	return attributesEnabled(func(name string) (string, bool, error) {
		return e.Attribute(ctx, name)
	})
}

func (e *rodElement) Click(ctx context.Context) error {
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

func (e *rodElement) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	els, err := e.el.Context(ctx).Elements(selector)
	if err != nil {
		return nil, err
	}
	return wrapRodElements(els), nil
}

// attributesEnabled derives the enabled state from the disabled attribute,
// aria-disabled and a "disabled" class, which storefronts use for
// next-page controls on the last page.
func attributesEnabled(attr func(name string) (string, bool, error)) (bool, error) {
	if _, ok, err := attr("disabled"); err != nil || ok {
		return false, err
	}
	if v, ok, err := attr("aria-disabled"); err != nil || (ok && strings.EqualFold(v, "true")) {
		return false, err
	}
	class, _, err := attr("class")
	if err != nil {
		return false, err
	}
	for _, c := range strings.Fields(class) {
		if strings.Contains(strings.ToLower(c), "disabled") {
			return false, nil
		}
	}
	return true, nil
}
