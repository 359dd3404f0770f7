package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/nao1215/productscan/internal/acquire"
	"github.com/nao1215/productscan/internal/browser"
	"github.com/nao1215/productscan/internal/extract"
	"github.com/nao1215/productscan/internal/fetch"
	"github.com/nao1215/productscan/internal/model"
	"github.com/nao1215/productscan/internal/paginate"
	"github.com/nao1215/productscan/internal/profile"
	"github.com/nao1215/productscan/internal/report"
	"github.com/nao1215/productscan/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const lastPage = 4

// newShopServer serves a category listing at /c/<name> with lastPage pages
// of three products each. /repeat serves the same products on every page.
// robots.txt disallows /private/.
func newShopServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = io.WriteString(w, "User-agent: *\nDisallow: /private/\n")
			return
		}
		if r.URL.Path == "/blocked" {
			w.WriteHeader(http.StatusForbidden)
			_, _ = io.WriteString(w, "denied")
			return
		}

		page := 1
		if p := r.URL.Query().Get("page"); p != "" {
			n, err := strconv.Atoi(p)
			if err != nil || n > lastPage {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			page = n
		}

		name := strings.Trim(r.URL.Path, "/")
		name = strings.ReplaceAll(name, "/", "-")
		id := page
		if r.URL.Path == "/repeat" {
			id = 1
		}

		var sb strings.Builder
		sb.WriteString("<html><body>")
		for i := 1; i <= 3; i++ {
			fmt.Fprintf(&sb, `<div class="product"><a href="/product/%d-%d?from=%s">item</a></div>`, id, i, name)
		}
		if page < lastPage {
			fmt.Fprintf(&sb, `<a class="next" href="%s?page=%d">Next</a>`, r.URL.Path, page+1)
		}
		sb.WriteString("</body></html>")
		_, _ = io.WriteString(w, sb.String())
	}))
	t.Cleanup(srv.Close)
	return srv
}

type fakeRecorder struct {
	mu       sync.Mutex
	sessions []*model.CrawlSession
}

func (f *fakeRecorder) RecordSession(_ context.Context, s *model.CrawlSession, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, s)
	return nil
}

// inPlacePaginator clicks a control that swaps the results without
// changing the URL, limit times.
type inPlacePaginator struct {
	clicks int
	limit  int
}

func (p *inPlacePaginator) Advance(_ context.Context, page browser.Page, _ profile.Site) (paginate.Outcome, error) {
	if p.clicks == p.limit {
		return paginate.Outcome{}, paginate.ErrPaginationExhausted
	}
	p.clicks++
	return paginate.Outcome{Method: paginate.MethodClick, URL: page.URL()}, nil
}

// freshExtractor finds one new product on every call.
type freshExtractor struct {
	calls int
}

func (e *freshExtractor) Extract(_ context.Context, _ browser.Page, _ profile.Site, s *model.CrawlSession) (extract.Result, error) {
	e.calls++
	s.Add(fmt.Sprintf("%s/product/swap-%d", s.BaseOrigin, e.calls), model.ClassProduct)
	return extract.Result{PageCount: 1, Total: s.Stats.TotalProducts}, nil
}

type progressFunc func(*report.Summary)

func (f progressFunc) WriteProgress(s *report.Summary) (int, error) {
	f(s)
	return 0, nil
}

type testEnv struct {
	store    *store.Store
	history  *fakeRecorder
	summary  *bytes.Buffer
	dir      string
	registry *profile.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	st, err := store.New(filepath.Join(dir, "out.json"),
		store.WithProgressPath(filepath.Join(dir, "progress.json")),
		store.WithLogger(discardLogger()),
	)
	if err != nil {
		t.Fatal(err)
	}
	reg, err := profile.NewRegistry()
	if err != nil {
		t.Fatal(err)
	}
	return &testEnv{store: st, history: &fakeRecorder{}, summary: &bytes.Buffer{}, dir: dir, registry: reg}
}

func (e *testEnv) controller(opts ...Option) *Controller {
	launcher := browser.NewStaticLauncher(browser.Config{Logger: discardLogger()})
	pipeline := acquire.New(launcher,
		acquire.WithStrategies(acquire.NewStealthRender(launcher, nil, browser.LaunchOptions{})),
		acquire.WithAttempts(1),
		acquire.WithOverlayDismissal(false),
		acquire.WithLogger(discardLogger()),
	)
	base := []Option{
		WithStore(e.store),
		WithHistory(e.history),
		WithSummary(report.NewTextWriter(e.summary)),
		WithPageDelay(0, 0),
		WithLogger(discardLogger()),
	}
	return New(e.registry, pipeline, append(base, opts...)...)
}

func TestControllerCrawl(t *testing.T) {
	t.Parallel()

	srv := newShopServer(t)

	t.Run("follows pagination to the last page", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		session, err := env.controller().Run(context.Background(), srv.URL+"/c/shoes", 0, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if session.State != model.StateDone {
			t.Errorf("state = %v, want done", session.State)
		}
		if session.Stats.PagesProcessed != lastPage {
			t.Errorf("pages = %d, want %d", session.Stats.PagesProcessed, lastPage)
		}
		if session.Stats.TotalProducts != 3*lastPage {
			t.Errorf("products = %d, want %d", session.Stats.TotalProducts, 3*lastPage)
		}
		if session.SiteTag != string(profile.TagGeneric) {
			t.Errorf("site = %q, want generic", session.SiteTag)
		}

		out, err := store.Load(env.store.OutputPath())
		if err != nil {
			t.Fatal(err)
		}
		if len(out.ProductURLs) != 3*lastPage {
			t.Errorf("persisted = %d, want %d", len(out.ProductURLs), 3*lastPage)
		}

		progress, err := store.LoadProgress(env.store.ProgressPath())
		if err != nil {
			t.Fatal(err)
		}
		if len(progress.PaginationURLs) != lastPage-1 {
			t.Errorf("pagination urls = %v", progress.PaginationURLs)
		}

		if len(env.history.sessions) != 1 {
			t.Errorf("history records = %d, want 1", len(env.history.sessions))
		}
		if !strings.Contains(env.summary.String(), "CRAWL SUMMARY") {
			t.Error("summary not written")
		}
	})

	t.Run("max depth counts visited URLs", func(t *testing.T) {
		t.Parallel()

		// The first page visits the start URL and three products.
		tests := []struct {
			depth    int
			pages    int
			products int
		}{
			{depth: 4, pages: 1, products: 3},
			{depth: 5, pages: 2, products: 6},
			{depth: 9, pages: 3, products: 9},
		}
		for _, tt := range tests {
			env := newTestEnv(t)
			session, err := env.controller().Run(context.Background(), srv.URL+"/c/hats", tt.depth, 0)
			if err != nil {
				t.Fatalf("depth %d: unexpected error: %v", tt.depth, err)
			}
			if session.Stats.PagesProcessed != tt.pages {
				t.Errorf("depth %d: pages = %d, want %d", tt.depth, session.Stats.PagesProcessed, tt.pages)
			}
			if session.Stats.TotalProducts != tt.products {
				t.Errorf("depth %d: products = %d, want %d", tt.depth, session.Stats.TotalProducts, tt.products)
			}
		}
	})

	t.Run("click pagination that keeps the URL continues", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		p := &inPlacePaginator{limit: 3}
		x := &freshExtractor{}
		session, err := env.controller(WithPaginator(p), WithExtractor(x)).
			Run(context.Background(), srv.URL+"/c/scarves", 0, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.clicks != 3 {
			t.Errorf("clicks = %d, want 3", p.clicks)
		}
		if session.Stats.PagesProcessed != 4 {
			t.Errorf("pages = %d, want 4", session.Stats.PagesProcessed)
		}
		if session.Stats.TotalProducts != 4 {
			t.Errorf("products = %d, want 4", session.Stats.TotalProducts)
		}
		if got := session.URLs(model.ClassPagination); len(got) != 0 {
			t.Errorf("pagination urls = %v, want none for in-place results", got)
		}
	})

	t.Run("max pages", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		session, err := env.controller().Run(context.Background(), srv.URL+"/c/bags", 0, 3)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if session.Stats.PagesProcessed != 3 {
			t.Errorf("pages = %d, want 3", session.Stats.PagesProcessed)
		}
	})

	t.Run("page without new products stops the crawl", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		session, err := env.controller().Run(context.Background(), srv.URL+"/repeat", 0, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if session.Stats.PagesProcessed != 2 {
			t.Errorf("pages = %d, want 2", session.Stats.PagesProcessed)
		}
		if session.Stats.TotalProducts != 3 {
			t.Errorf("products = %d, want 3", session.Stats.TotalProducts)
		}
	})

	t.Run("acquisition failure fails the session", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		session, err := env.controller().Run(context.Background(), srv.URL+"/blocked", 0, 0)
		if !errors.Is(err, ErrSessionFailed) {
			t.Fatalf("error = %v, want ErrSessionFailed", err)
		}
		if session.State != model.StateFailed {
			t.Errorf("state = %v, want failed", session.State)
		}
		if !strings.Contains(session.FailureReason, acquire.ErrAcquisitionFailed.Error()) {
			t.Errorf("reason = %q", session.FailureReason)
		}
		if session.Stats.FailedScrapes != 1 {
			t.Errorf("failed scrapes = %d, want 1", session.Stats.FailedScrapes)
		}
		if len(env.history.sessions) != 1 {
			t.Error("failed session should still be recorded")
		}
		if !strings.Contains(env.summary.String(), "Failed") {
			t.Errorf("summary should show failure:\n%s", env.summary.String())
		}
	})

	t.Run("cancelled context finalizes", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		session, err := env.controller().Run(ctx, srv.URL+"/c/socks", 0, 0)
		if !errors.Is(err, ErrSessionAborted) {
			t.Fatalf("error = %v, want ErrSessionAborted", err)
		}
		if !IsAborted(err) {
			t.Error("IsAborted should report true")
		}
		if !session.Interrupted || session.State != model.StateDone {
			t.Errorf("state = %v interrupted = %v", session.State, session.Interrupted)
		}
		if _, err := store.LoadProgress(env.store.ProgressPath()); err != nil {
			t.Errorf("progress file not written: %v", err)
		}
		if len(env.history.sessions) != 1 {
			t.Error("interrupted session should be recorded")
		}
	})

	t.Run("robots gate", func(t *testing.T) {
		t.Parallel()

		client, err := fetch.New()
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(client.Close)

		env := newTestEnv(t)
		c := env.controller(WithRobots(NewRobotsGate(client, "productscan")))

		session, err := c.Run(context.Background(), srv.URL+"/private/c/deals", 0, 0)
		if !errors.Is(err, ErrSessionFailed) {
			t.Fatalf("error = %v, want ErrSessionFailed", err)
		}
		if session.FailureReason != ErrDisallowed.Error() {
			t.Errorf("reason = %q", session.FailureReason)
		}

		session, err = c.Run(context.Background(), srv.URL+"/c/allowed", 1, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if session.Stats.PagesProcessed != 1 {
			t.Errorf("pages = %d, want 1", session.Stats.PagesProcessed)
		}
	})

	t.Run("prepare runs once", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		calls := 0
		c := env.controller(WithPrepare(func(context.Context) error {
			calls++
			return errors.New("no proxies")
		}))
		for range 2 {
			if _, err := c.Run(context.Background(), srv.URL+"/c/coats", 1, 0); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if calls != 1 {
			t.Errorf("prepare calls = %d, want 1", calls)
		}
	})

	t.Run("resumed crawl continues past the interruption", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		start := srv.URL + "/c/gloves"

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		stopAfterTwo := progressFunc(func(s *report.Summary) {
			if s.PagesProcessed == 2 {
				cancel()
			}
		})
		if _, err := env.controller(WithProgress(stopAfterTwo)).Run(ctx, start, 0, 0); !errors.Is(err, ErrSessionAborted) {
			t.Fatalf("error = %v, want ErrSessionAborted", err)
		}

		progress, err := store.LoadProgress(env.store.ProgressPath())
		if err != nil {
			t.Fatal(err)
		}
		if got := progress.ResumePages[start]; got != start+"?page=2" {
			t.Fatalf("resume page = %q, want page 2", got)
		}

		session, err := model.NewSession(start)
		if err != nil {
			t.Fatal(err)
		}
		n, err := store.Resume(session, env.store.ProgressPath())
		if err != nil {
			t.Fatal(err)
		}
		if n == 0 {
			t.Fatal("nothing resumed")
		}
		if err := env.controller().Crawl(context.Background(), session); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if session.Stats.PagesProcessed != 3 {
			t.Errorf("pages = %d, want 3 (page 2 again, then 3 and 4)", session.Stats.PagesProcessed)
		}
		if session.Stats.TotalProducts != 6 {
			t.Errorf("new products = %d, want 6", session.Stats.TotalProducts)
		}
		out, err := store.Load(env.store.OutputPath())
		if err != nil {
			t.Fatal(err)
		}
		if len(out.ProductURLs) != 3*lastPage {
			t.Errorf("persisted = %d, want %d", len(out.ProductURLs), 3*lastPage)
		}
	})
}

func TestBatch(t *testing.T) {
	t.Parallel()

	srv := newShopServer(t)
	env := newTestEnv(t)

	var mu sync.Mutex
	var offsets []int
	b := NewBatch(func(i int) *Controller {
		mu.Lock()
		offsets = append(offsets, i)
		mu.Unlock()
		return env.controller(WithSummary(nil))
	},
		WithConcurrency(2),
		WithLimits(5, 0),
		WithBatchLogger(discardLogger()),
	)

	urls := []string{srv.URL + "/c/a", "not a url", srv.URL + "/c/b"}
	sessions, err := b.Run(context.Background(), urls)
	if !errors.Is(err, model.ErrInvalidStartURL) {
		t.Fatalf("error = %v, want ErrInvalidStartURL", err)
	}
	if len(sessions) != 3 || sessions[1] != nil {
		t.Fatalf("sessions = %v", sessions)
	}
	for _, i := range []int{0, 2} {
		if sessions[i].Stats.TotalProducts != 6 {
			t.Errorf("session %d products = %d, want 6", i, sessions[i].Stats.TotalProducts)
		}
	}

	slices.Sort(offsets)
	if !slices.Equal(offsets, []int{0, 2}) {
		t.Errorf("factory offsets = %v, want [0 2]", offsets)
	}

	out, err := store.Load(env.store.OutputPath())
	if err != nil {
		t.Fatal(err)
	}
	if len(out.ProductURLs) != 12 {
		t.Errorf("shared output holds %d products, want 12", len(out.ProductURLs))
	}
	if out.Stats.TotalPagesProcessed != 4 {
		t.Errorf("aggregated pages = %d, want 4", out.Stats.TotalPagesProcessed)
	}
}

func TestBatchCancelled(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := NewBatch(func(int) *Controller { return env.controller() }, WithBatchLogger(discardLogger()))
	sessions, err := b.Run(ctx, []string{"https://shop.example.com/c/x"})
	if !errors.Is(err, ErrSessionAborted) {
		t.Fatalf("error = %v, want ErrSessionAborted", err)
	}
	if sessions[0] != nil {
		t.Error("no session should start after cancellation")
	}
}
