package fetch

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"golang.org/x/time/rate"
)

// TestClientGet tests header injection and decoding.
func TestClientGet(t *testing.T) {
	t.Parallel()

	page := "<html><body>" + strings.Repeat("<div class=\"product\">x</div>", 20) + "</body></html>"

	mux := http.NewServeMux()
	mux.HandleFunc("/plain", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "test-agent" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if r.Header.Get("Accept-Language") == "" || r.Header.Get("Cookie") != "locale=en" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(page))
	})
	mux.HandleFunc("/gzip", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		_, _ = gz.Write([]byte(page))
		_ = gz.Close()
	})
	mux.HandleFunc("/br", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Encoding", "br")
		br := brotli.NewWriter(w)
		_, _ = br.Write([]byte(page))
		_ = br.Close()
	})
	mux.HandleFunc("/latin1", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		_, _ = w.Write([]byte("<p>caf\xe9</p>"))
	})
	mux.HandleFunc("/blocked", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("Attention Required! | Cloudflare"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client, err := New(WithUserAgent("test-agent"), WithCookie("locale=en"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(client.Close)

	tests := []struct {
		name     string
		path     string
		wantBody string
		wantOK   bool
	}{
		{name: "plain with headers", path: "/plain", wantBody: page, wantOK: true},
		{name: "gzip", path: "/gzip", wantBody: page, wantOK: true},
		{name: "brotli", path: "/br", wantBody: page, wantOK: true},
		{name: "latin1 to utf-8", path: "/latin1", wantBody: "<p>café</p>", wantOK: true},
		{name: "non-2xx is not an error", path: "/blocked", wantBody: "Attention Required! | Cloudflare", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resp, err := client.Get(context.Background(), srv.URL+tt.path)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(resp.Body) != tt.wantBody {
				t.Errorf("got body %q, want %q", resp.Body, tt.wantBody)
			}
			if resp.OK() != tt.wantOK {
				t.Errorf("got OK()=%v (status %d), want %v", resp.OK(), resp.StatusCode, tt.wantOK)
			}
		})
	}
}

// TestClientBodyLimit tests the body size cap.
func TestClientBodyLimit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("a"), 2048))
	}))
	t.Cleanup(srv.Close)

	client, err := New(WithMaxBodySize(1024))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := client.Get(context.Background(), srv.URL); !errors.Is(err, ErrBodyTooLarge) {
		t.Errorf("expected ErrBodyTooLarge, got %v", err)
	}
}

// TestClientLimiterHonorsContext tests that waiting on the limiter is cancellable.
func TestClientLimiterHonorsContext(t *testing.T) {
	t.Parallel()

	limiter := rate.NewLimiter(rate.Limit(0.001), 1)
	limiter.Allow() // drain the only token

	client, err := New(WithLimiter(limiter))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.Get(ctx, "http://127.0.0.1:1/"); err == nil {
		t.Error("expected error from cancelled limiter wait")
	}
}

// TestClientHeaderOverride tests that WithHeaders overrides defaults.
func TestClientHeaderOverride(t *testing.T) {
	t.Parallel()

	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got <- r.Header.Get("Accept-Language")
	}))
	t.Cleanup(srv.Close)

	client, err := New(WithHeaders(map[string]string{"Accept-Language": "ar-AE"}))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := client.Get(context.Background(), srv.URL); err != nil {
		t.Fatal(err)
	}
	if lang := <-got; lang != "ar-AE" {
		t.Errorf("got Accept-Language %q, want ar-AE", lang)
	}
}
