package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultProbeURL is a lightweight endpoint that echoes the caller's IP.
	DefaultProbeURL = "http://httpbin.org/ip"

	// DefaultProbeTimeout bounds each probe. Public proxies that cannot
	// answer a tiny request within this window are useless for rendering.
	DefaultProbeTimeout = 10 * time.Second
)

// Prober checks whether an endpoint can carry a request.
type Prober interface {
	Probe(ctx context.Context, ep Endpoint) (time.Duration, error)
}

// HTTPProber probes an endpoint by fetching a URL through it.
type HTTPProber struct {
	url     string
	timeout time.Duration
}

// ProberOption configures an HTTPProber.
type ProberOption func(*HTTPProber)

// WithProbeURL sets the URL fetched through the proxy.
func WithProbeURL(u string) ProberOption {
	return func(p *HTTPProber) {
		p.url = u
	}
}

// WithProbeTimeout sets the per-probe timeout.
func WithProbeTimeout(d time.Duration) ProberOption {
	return func(p *HTTPProber) {
		p.timeout = d
	}
}

// NewHTTPProber returns a prober using DefaultProbeURL and DefaultProbeTimeout.
func NewHTTPProber(opts ...ProberOption) *HTTPProber {
	p := &HTTPProber{url: DefaultProbeURL, timeout: DefaultProbeTimeout}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe fetches the probe URL through ep and requires a 2xx status.
// It returns the request latency on success.
func (p *HTTPProber) Probe(ctx context.Context, ep Endpoint) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	transport, err := NewTransport(&ep, p.timeout)
	if err != nil {
		return 0, err
	}
	defer transport.CloseIdleConnections()
	client := &http.Client{Transport: transport, Timeout: p.timeout}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrProbeFailed, ep, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024)) //nolint:errcheck // draining only

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("%w: %s: status %d", ErrProbeFailed, ep, resp.StatusCode)
	}
	return time.Since(start), nil
}
