package extract

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/nao1215/productscan/internal/browser"
	"github.com/nao1215/productscan/internal/classify"
	"github.com/nao1215/productscan/internal/model"
	"github.com/nao1215/productscan/internal/profile"
)

// DefaultMilestone is the number of new products between milestone flushes.
const DefaultMilestone = 10

// anchorSelector is used by the raw tier.
const anchorSelector = "a[href]"

// Tier identifies which extraction tier produced the result.
type Tier int

const (
	// TierNone means no tier found a product.
	TierNone Tier = iota

	// TierProfile is the site profile tier.
	TierProfile

	// TierGeneric is the generic profile tier.
	TierGeneric

	// TierRawAnchors scans every anchor on the page.
	TierRawAnchors
)

// String returns the tier name.
func (t Tier) String() string {
	switch t {
	case TierNone:
		return "none"
	case TierProfile:
		return "profile"
	case TierGeneric:
		return "generic"
	case TierRawAnchors:
		return "raw-anchors"
	default:
		return "unknown"
	}
}

// Result describes one extraction.
type Result struct {
	// Tier is the tier that found products, TierNone if none did.
	Tier Tier

	// PageCount is the number of new product URLs found on the page.
	PageCount int

	// Total is the session's product total after the page.
	Total int
}

// Empty reports whether the page yielded no new product.
func (r Result) Empty() bool {
	return r.PageCount == 0
}

// Flusher persists a session's products. It is called with force=false at
// every milestone and is expected to coalesce.
type Flusher interface {
	Flush(session *model.CrawlSession, force bool) error
}

// Engine extracts product URLs.
type Engine struct {
	generic   profile.Site
	flusher   Flusher
	milestone int
	logger    *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithFlusher enables milestone flushes.
func WithFlusher(f Flusher) Option {
	return func(e *Engine) {
		e.flusher = f
	}
}

// WithMilestone sets the number of new products between milestone flushes.
func WithMilestone(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.milestone = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New returns an Engine whose second tier uses generic.
func New(generic profile.Site, opts ...Option) *Engine {
	e := &Engine{generic: generic, milestone: DefaultMilestone}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Extract scans page and records what it finds in session. Finding nothing
// is reported through Result.Empty, not as an error; an error is returned
// only when ctx is done.
func (e *Engine) Extract(ctx context.Context, page browser.Page, site profile.Site, session *model.CrawlSession) (Result, error) {
	x := &extraction{engine: e, site: site, session: session}

	tiers := []struct {
		tier Tier
		run  func() error
	}{
		{TierProfile, func() error { return x.containers(ctx, page, site.Profile()) }},
		{TierGeneric, func() error {
			if site.Tag() == e.generic.Tag() {
				return nil
			}
			return x.containers(ctx, page, e.generic.Profile())
		}},
		{TierRawAnchors, func() error { return x.anchors(ctx, page) }},
	}

	res := Result{}
	for _, t := range tiers {
		if err := t.run(); err != nil {
			return res, err
		}
		if x.found > 0 {
			res.Tier = t.tier
			break
		}
		e.logger.Debug("extraction tier empty", "tier", t.tier.String(), "url", page.URL())
	}

	res.PageCount = x.found
	res.Total = session.Stats.TotalProducts
	e.logger.Info("page extracted",
		"url", page.URL(),
		"tier", res.Tier.String(),
		"products", res.PageCount,
		"total", res.Total,
	)
	return res, nil
}

// extraction is the state of one Extract call.
type extraction struct {
	engine  *Engine
	site    profile.Site
	session *model.CrawlSession
	found   int
}

func (x *extraction) containers(ctx context.Context, page browser.Page, p profile.SiteProfile) error {
	for _, containerSel := range p.ProductSelectors {
		if err := ctx.Err(); err != nil {
			return err
		}
		containers, err := page.QueryAll(ctx, containerSel)
		if err != nil {
			x.engine.logger.Debug("container query failed", "selector", containerSel, "error", err)
			continue
		}
		for _, c := range containers {
			for _, linkSel := range p.LinkSelectors {
				links, err := c.QueryAll(ctx, linkSel)
				if err != nil || len(links) == 0 {
					continue
				}
				x.link(ctx, links[0], true)
			}
		}
	}
	return ctx.Err()
}

func (x *extraction) anchors(ctx context.Context, page browser.Page) error {
	links, err := page.QueryAll(ctx, anchorSelector)
	if err != nil {
		x.engine.logger.Debug("anchor query failed", "error", err)
		return ctx.Err()
	}
	for _, l := range links {
		if err := ctx.Err(); err != nil {
			return err
		}
		x.link(ctx, l, false)
	}
	return nil
}

// link records one link. recordOthers keeps category and pagination links.
func (x *extraction) link(ctx context.Context, el browser.Element, recordOthers bool) {
	href, ok, err := el.Attribute(ctx, "href")
	if err != nil || !ok {
		return
	}
	resolved, ok := Resolve(x.session.BaseOrigin, href)
	if !ok {
		return
	}

	class := classify.Classify(resolved)
	switch class {
	case model.ClassProduct:
		normalized, ok := x.site.NormalizeProductURL(x.session.BaseOrigin, resolved)
		if !ok {
			return
		}
		if !x.session.Add(normalized, model.ClassProduct) {
			return
		}
		x.found++
		x.milestone()
	case model.ClassCategory, model.ClassPagination:
		if recordOthers {
			x.session.Add(resolved, class)
		}
	}
}

func (x *extraction) milestone() {
	total := x.session.Stats.TotalProducts
	if total%x.engine.milestone != 0 {
		return
	}
	x.engine.logger.Info("milestone reached", "total", total)
	if x.engine.flusher == nil {
		return
	}
	if err := x.engine.flusher.Flush(x.session, false); err != nil {
		x.engine.logger.Warn("milestone flush failed", "error", err)
	}
}

// Resolve makes href absolute against origin and drops the fragment. It
// rejects non-http schemes such as javascript: and mailto:.
func Resolve(origin, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	base, err := url.Parse(origin)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	u := base.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	u.Fragment = ""
	return u.String(), true
}
