package proxy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeProber marks endpoints healthy by address.
type fakeProber struct {
	healthy map[string]bool
}

func (f fakeProber) Probe(_ context.Context, ep Endpoint) (time.Duration, error) {
	if f.healthy[ep.Address] {
		return time.Millisecond, nil
	}
	return 0, ErrProbeFailed
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func candidates(n int) []Endpoint {
	out := make([]Endpoint, n)
	for i := range out {
		out[i] = Endpoint{Scheme: "http", Address: fmt.Sprintf("10.0.0.%d:8080", i+1)}
	}
	return out
}

// TestPoolTwoOfFifty tests that only probed-healthy endpoints are retained
// and that rotation alternates between them.
func TestPoolTwoOfFifty(t *testing.T) {
	t.Parallel()

	pool := NewPool(
		WithProber(fakeProber{healthy: map[string]bool{"10.0.0.7:8080": true, "10.0.0.42:8080": true}}),
		WithLogger(discardLogger()),
	)
	pool.Initialize(context.Background(), candidates(50))

	if pool.Size() != 2 {
		t.Fatalf("got pool size %d, want 2", pool.Size())
	}

	first, status := pool.Current()
	if status != StatusOK || first.Address != "10.0.0.7:8080" {
		t.Fatalf("got (%v, %v), want 10.0.0.7:8080", first.Address, status)
	}
	for i := range 10 {
		ep, _ := pool.Rotate()
		want := "10.0.0.42:8080"
		if i%2 == 1 {
			want = "10.0.0.7:8080"
		}
		if ep.Address != want {
			t.Fatalf("rotation %d: got %s, want %s", i, ep.Address, want)
		}
	}
}

// TestPoolRotationIsCircular tests that N rotations return to the start.
func TestPoolRotationIsCircular(t *testing.T) {
	t.Parallel()

	healthy := map[string]bool{}
	for _, ep := range candidates(4) {
		healthy[ep.Address] = true
	}
	pool := NewPool(WithProber(fakeProber{healthy: healthy}), WithLogger(discardLogger()))
	pool.Initialize(context.Background(), candidates(4))

	start, _ := pool.Current()
	for range pool.Size() {
		pool.Rotate()
	}
	end, _ := pool.Current()
	if start.Address != end.Address {
		t.Errorf("got %s after full cycle, want %s", end.Address, start.Address)
	}
}

// TestPoolCapsHealthy tests the MaxHealthy cap.
func TestPoolCapsHealthy(t *testing.T) {
	t.Parallel()

	healthy := map[string]bool{}
	for _, ep := range candidates(12) {
		healthy[ep.Address] = true
	}
	pool := NewPool(
		WithProber(fakeProber{healthy: healthy}),
		WithProbeConcurrency(1),
		WithLogger(discardLogger()),
	)
	pool.Initialize(context.Background(), candidates(12))

	if pool.Size() != DefaultMaxHealthy {
		t.Fatalf("got %d healthy, want %d", pool.Size(), DefaultMaxHealthy)
	}
	for i, ep := range pool.Healthy() {
		if ep.Health != HealthHealthy {
			t.Errorf("endpoint %d has health %v", i, ep.Health)
		}
	}
}

// slowFirst answers for the first candidate only some time after every
// other candidate has been answered.
type slowFirst struct {
	first  string
	others sync.WaitGroup
}

func (s *slowFirst) Probe(ctx context.Context, ep Endpoint) (time.Duration, error) {
	if ep.Address != s.first {
		defer s.others.Done()
		return time.Millisecond, nil
	}
	done := make(chan struct{})
	go func() {
		s.others.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	t := time.NewTimer(50 * time.Millisecond)
	defer t.Stop()
	select {
	case <-t.C:
		return 50 * time.Millisecond, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// TestPoolKeepsCandidateOrder tests that a slow early candidate is kept
// ahead of faster later ones once the cap is reached.
func TestPoolKeepsCandidateOrder(t *testing.T) {
	t.Parallel()

	cands := candidates(DefaultMaxHealthy + 1)
	checker := &slowFirst{first: cands[0].Address}
	checker.others.Add(len(cands) - 1)

	pool := NewPool(
		WithProber(checker),
		WithProbeConcurrency(len(cands)),
		WithLogger(discardLogger()),
	)
	pool.Initialize(context.Background(), cands)

	got := pool.Healthy()
	if len(got) != DefaultMaxHealthy {
		t.Fatalf("got %d healthy, want %d", len(got), DefaultMaxHealthy)
	}
	for i, ep := range got {
		if ep.Address != cands[i].Address {
			t.Errorf("healthy[%d] = %s, want %s", i, ep.Address, cands[i].Address)
		}
	}
	if len(pool.Failed()) != 0 {
		t.Errorf("no candidate should fail, got %d", len(pool.Failed()))
	}
}

// TestPoolEmptyIsNoProxyMode tests the typed unavailable outcome.
func TestPoolEmptyIsNoProxyMode(t *testing.T) {
	t.Parallel()

	pool := NewPool(WithProber(fakeProber{}), WithLogger(discardLogger()))
	pool.Initialize(context.Background(), candidates(5))

	if _, status := pool.Current(); status != StatusUnavailable {
		t.Errorf("Current: got %v, want unavailable", status)
	}
	if _, status := pool.Rotate(); status != StatusUnavailable {
		t.Errorf("Rotate: got %v, want unavailable", status)
	}
	if got := len(pool.Failed()); got != 5 {
		t.Errorf("got %d failed endpoints, want 5", got)
	}
}

// TestPoolMarkFailed tests demotion and cursor handling.
func TestPoolMarkFailed(t *testing.T) {
	t.Parallel()

	pool := NewPool(WithLogger(discardLogger()))
	pool.Add(candidates(3)...)

	pool.Rotate() // cursor on .2
	pool.MarkFailed("10.0.0.2:8080")

	cur, status := pool.Current()
	if status != StatusOK || cur.Address != "10.0.0.3:8080" {
		t.Errorf("got %s, want the endpoint following the demoted one", cur.Address)
	}
	if pool.Size() != 2 {
		t.Errorf("got size %d, want 2", pool.Size())
	}

	// A demoted endpoint never comes back.
	for range 6 {
		ep, _ := pool.Rotate()
		if ep.Address == "10.0.0.2:8080" {
			t.Fatal("demoted endpoint returned by Rotate")
		}
	}

	pool.MarkFailed("10.0.0.1:8080")
	pool.MarkFailed("10.0.0.3:8080")
	if _, status := pool.Current(); status != StatusUnavailable {
		t.Errorf("got %v, want unavailable after demoting all", status)
	}
	failed := pool.Failed()
	if len(failed) != 3 || failed[0].ConsecutiveFailures != 1 {
		t.Errorf("unexpected failed list: %+v", failed)
	}
}

// TestPoolFork tests that forks own an independent cursor and set.
func TestPoolFork(t *testing.T) {
	t.Parallel()

	pool := NewPool(WithLogger(discardLogger()))
	pool.Add(candidates(3)...)

	fork := pool.Fork(1)
	cur, _ := fork.Current()
	if cur.Address != "10.0.0.2:8080" {
		t.Errorf("fork cursor: got %s, want offset 1", cur.Address)
	}

	fork.MarkFailed("10.0.0.1:8080")
	if pool.Size() != 3 {
		t.Errorf("demotion in fork leaked to parent: size %d", pool.Size())
	}

	empty := NewPool().Fork(3)
	if _, status := empty.Current(); status != StatusUnavailable {
		t.Error("fork of empty pool should be unavailable")
	}
}

// TestHTTPProber probes through a real HTTP proxy server.
func TestHTTPProber(t *testing.T) {
	t.Parallel()

	proxySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A forward proxy receives the absolute target URL.
		if !r.URL.IsAbs() || !strings.HasSuffix(r.URL.Path, "/ip") {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"origin":"203.0.113.7"}`))
	}))
	t.Cleanup(proxySrv.Close)

	dead := httptest.NewServer(http.NotFoundHandler())
	deadAddr := strings.TrimPrefix(dead.URL, "http://")
	dead.Close()

	prober := NewHTTPProber(WithProbeURL("http://probe.test/ip"), WithProbeTimeout(2*time.Second))

	t.Run("working proxy", func(t *testing.T) {
		t.Parallel()

		ep, err := ParseEndpoint(strings.TrimPrefix(proxySrv.URL, "http://"))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := prober.Probe(context.Background(), ep); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("dead proxy", func(t *testing.T) {
		t.Parallel()

		ep, err := ParseEndpoint(deadAddr)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := prober.Probe(context.Background(), ep); err == nil {
			t.Error("expected probe through closed listener to fail")
		}
	})

	t.Run("pool keeps only working proxy", func(t *testing.T) {
		t.Parallel()

		live, _ := ParseEndpoint(strings.TrimPrefix(proxySrv.URL, "http://"))
		gone, _ := ParseEndpoint(deadAddr)

		pool := NewPool(WithProber(prober), WithLogger(discardLogger()))
		pool.Initialize(context.Background(), []Endpoint{gone, live})

		if pool.Size() != 1 {
			t.Fatalf("got %d healthy, want 1", pool.Size())
		}
		if cur, _ := pool.Current(); cur.Address != live.Address {
			t.Errorf("got %s, want %s", cur.Address, live.Address)
		}
	})
}
