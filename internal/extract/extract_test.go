package extract

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/nao1215/productscan/internal/browser"
	"github.com/nao1215/productscan/internal/model"
	"github.com/nao1215/productscan/internal/profile"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func loadPage(t *testing.T, pageURL, html string) browser.Page {
	t.Helper()
	l, err := browser.New(browser.EngineStatic, browser.Config{})
	if err != nil {
		t.Fatal(err)
	}
	p, err := l.Launch(context.Background(), browser.LaunchOptions{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = p.Close() })
	if err := p.SetContent(context.Background(), pageURL, html); err != nil {
		t.Fatal(err)
	}
	return p
}

func newSession(t *testing.T, startURL string) *model.CrawlSession {
	t.Helper()
	s, err := model.NewSession(startURL)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func newRegistry(t *testing.T) *profile.Registry {
	t.Helper()
	r, err := profile.NewRegistry()
	if err != nil {
		t.Fatal(err)
	}
	return r
}

type countingFlusher struct {
	calls  int
	totals []int
	err    error
}

func (f *countingFlusher) Flush(s *model.CrawlSession, force bool) error {
	f.calls++
	f.totals = append(f.totals, s.Stats.TotalProducts)
	return f.err
}

// TestExtractProfileTier tests the site profile tier with Amazon URL
// normalization.
func TestExtractProfileTier(t *testing.T) {
	t.Parallel()

	html := `<html><body>
<div data-component-type="s-search-result">
  <h2><a class="a-link-normal" href="/Phone-One/dp/B0ABCDEFGH/ref=sr_1_1?keywords=phone">One</a></h2>
</div>
<div data-component-type="s-search-result">
  <h2><a class="a-link-normal" href="/gp/slredirect/x?url=%2Fdp%2FB0ABCDEFGH">Sponsored duplicate</a></h2>
  <a href="/Phone-One/dp/B0ABCDEFGH?th=1">Same product</a>
</div>
<div data-component-type="s-search-result">
  <h2><a class="a-link-normal" href="https://www.amazon.com/Phone-Two/dp/B0ZZZZZZZ1">Two</a></h2>
</div>
<a href="/s?k=phone&page=2">Next</a>
</body></html>`

	reg := newRegistry(t)
	session := newSession(t, "https://www.amazon.com/s?k=phone")
	page := loadPage(t, session.StartURL, html)
	e := New(reg.Generic(), WithLogger(discardLogger()))

	res, err := e.Extract(context.Background(), page, reg.Site(profile.TagAmazon), session)
	if err != nil {
		t.Fatal(err)
	}
	if res.Tier != TierProfile {
		t.Errorf("tier = %s, want profile", res.Tier)
	}
	want := []string{
		"https://www.amazon.com/dp/B0ABCDEFGH",
		"https://www.amazon.com/dp/B0ZZZZZZZ1",
	}
	got := session.Products()
	if len(got) != len(want) {
		t.Fatalf("products = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("products[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if res.PageCount != 2 || res.Total != 2 {
		t.Errorf("result = %+v", res)
	}
}

// TestExtractRawAnchorTier tests that a single product anchor outside any
// container is still found.
func TestExtractRawAnchorTier(t *testing.T) {
	t.Parallel()

	html := `<html><body>
<ul class="listing"><li><a href="/shoes/item/12345">Runner</a></li></ul>
<a href="/about">About</a>
<a href="mailto:help@example.com">Mail</a>
</body></html>`

	reg := newRegistry(t)
	session := newSession(t, "https://shop.example.com/category/shoes")
	page := loadPage(t, session.StartURL, html)
	e := New(reg.Generic(), WithLogger(discardLogger()))

	res, err := e.Extract(context.Background(), page, reg.Site(profile.TagNoon), session)
	if err != nil {
		t.Fatal(err)
	}
	if res.Tier != TierRawAnchors || res.PageCount != 1 {
		t.Errorf("result = %+v, want raw-anchors with 1 product", res)
	}
	products := session.Products()
	if len(products) != 1 || products[0] != "https://shop.example.com/shoes/item/12345" {
		t.Errorf("products = %v", products)
	}
	if !session.Visited(products[0]) {
		t.Error("product must also be visited")
	}
}

// TestExtractGenericTier tests the generic fallback and that category and
// pagination links found in containers are recorded.
func TestExtractGenericTier(t *testing.T) {
	t.Parallel()

	html := `<html><body>
<div class="product">
  <a href="/product/alpha">Alpha</a>
</div>
<div class="product-tile">
  <a href="/p/beta#reviews">Beta</a>
</div>
<div class="product-related">
  <a href="/products/?cat=12">More like this</a>
</div>
</body></html>`

	reg := newRegistry(t)
	session := newSession(t, "https://shop.example.com/c/all")
	page := loadPage(t, session.StartURL, html)
	e := New(reg.Generic(), WithLogger(discardLogger()))

	res, err := e.Extract(context.Background(), page, reg.Site(profile.TagSharafDG), session)
	if err != nil {
		t.Fatal(err)
	}
	if res.Tier != TierGeneric || res.PageCount != 2 {
		t.Errorf("result = %+v, want generic with 2 products", res)
	}
	if !session.Has(model.ClassProduct, "https://shop.example.com/p/beta") {
		t.Error("fragment should be dropped from product URL")
	}
	if !session.Has(model.ClassCategory, "https://shop.example.com/products/?cat=12") {
		t.Errorf("category link not recorded: %v", session.URLs(model.ClassCategory))
	}
}

// TestExtractEmpty tests the zero-result outcome.
func TestExtractEmpty(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t)
	session := newSession(t, "https://shop.example.com/c/all")
	page := loadPage(t, session.StartURL, `<html><body><p>No results</p></body></html>`)
	e := New(reg.Generic(), WithLogger(discardLogger()))

	res, err := e.Extract(context.Background(), page, reg.Generic(), session)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Empty() || res.Tier != TierNone {
		t.Errorf("result = %+v, want empty", res)
	}
}

// TestExtractMilestoneFlush tests that a flush is requested every ten new
// products and that a failing flush does not stop extraction.
func TestExtractMilestoneFlush(t *testing.T) {
	t.Parallel()

	html := "<html><body>"
	for i := range 25 {
		html += `<div class="product"><a href="/product/` + string(rune('a'+i)) + `">x</a></div>`
	}
	html += "</body></html>"

	reg := newRegistry(t)
	session := newSession(t, "https://shop.example.com/c/all")
	page := loadPage(t, session.StartURL, html)
	f := &countingFlusher{err: errors.New("disk full")}
	e := New(reg.Generic(), WithFlusher(f), WithLogger(discardLogger()))

	res, err := e.Extract(context.Background(), page, reg.Generic(), session)
	if err != nil {
		t.Fatal(err)
	}
	if res.PageCount != 25 {
		t.Errorf("page count = %d, want 25", res.PageCount)
	}
	if f.calls != 2 || f.totals[0] != 10 || f.totals[1] != 20 {
		t.Errorf("flushes = %d at %v, want 2 at [10 20]", f.calls, f.totals)
	}
}

// TestExtractSkipsKnownProducts tests that products seen on an earlier
// page do not count again.
func TestExtractSkipsKnownProducts(t *testing.T) {
	t.Parallel()

	html := `<div class="product"><a href="/product/a">a</a></div>`
	reg := newRegistry(t)
	session := newSession(t, "https://shop.example.com/c/all")
	session.Seed(model.ClassProduct, []string{"https://shop.example.com/product/a"})
	page := loadPage(t, session.StartURL, html)
	e := New(reg.Generic(), WithLogger(discardLogger()))

	res, err := e.Extract(context.Background(), page, reg.Generic(), session)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Empty() {
		t.Errorf("page count = %d, want 0", res.PageCount)
	}
}

// TestResolve tests link resolution.
func TestResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		href string
		want string
		ok   bool
	}{
		{"/p/1", "https://shop.example.com/p/1", true},
		{"p/1", "https://shop.example.com/p/1", true},
		{"https://cdn.example.net/p/1#x", "https://cdn.example.net/p/1", true},
		{"//m.example.com/p/2", "https://m.example.com/p/2", true},
		{"#top", "", false},
		{"javascript:void(0)", "", false},
		{"mailto:a@b.c", "", false},
		{"  ", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.href, func(t *testing.T) {
			t.Parallel()
			got, ok := Resolve("https://shop.example.com", tt.href)
			if ok != tt.ok || got != tt.want {
				t.Errorf("Resolve(%q) = %q, %v; want %q, %v", tt.href, got, ok, tt.want, tt.ok)
			}
		})
	}
}
