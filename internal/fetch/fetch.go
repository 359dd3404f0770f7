package fetch

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/html/charset"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/nao1215/productscan/internal/proxy"
)

const (
	// DefaultTimeout bounds a whole request including the body read.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxBodySize limits how much of a response is read.
	DefaultMaxBodySize = 8 * 1024 * 1024

	// maxRedirects stops redirect loops on storefront geo-redirects.
	maxRedirects = 10
)

// BrowserHeaders are sent with every request, matching what a desktop
// browser sends on a top-level navigation.
var BrowserHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.9",
	"Cache-Control":             "no-cache",
	"Pragma":                    "no-cache",
	"Upgrade-Insecure-Requests": "1",
}

// Response is a fetched document.
type Response struct {
	// URL is the requested URL.
	URL string

	// FinalURL is the URL after redirects.
	FinalURL string

	// StatusCode is the HTTP status code.
	StatusCode int

	// Header holds the response headers.
	Header http.Header

	// Body is the decoded, UTF-8 body.
	Body []byte

	// Latency is the time to the complete body.
	Latency time.Duration
}

// OK reports whether the status is in the 2xx range.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode <= 299
}

// Client fetches documents.
type Client struct {
	client      *http.Client
	userAgent   string
	headers     map[string]string
	cookie      string
	maxBodySize int64
	limiter     *rate.Limiter
	timeout     time.Duration
	endpoint    *proxy.Endpoint
}

// Option configures a Client.
type Option func(*Client)

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithHeaders adds headers that override BrowserHeaders.
func WithHeaders(headers map[string]string) Option {
	return func(c *Client) {
		for k, v := range headers {
			c.headers[k] = v
		}
	}
}

// WithCookie sets a raw Cookie header, e.g. "session=abc; locale=en".
func WithCookie(cookie string) Option {
	return func(c *Client) {
		c.cookie = cookie
	}
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithMaxBodySize sets the body size limit in bytes.
func WithMaxBodySize(n int64) Option {
	return func(c *Client) {
		c.maxBodySize = n
	}
}

// WithProxy routes requests through ep.
func WithProxy(ep *proxy.Endpoint) Option {
	return func(c *Client) {
		c.endpoint = ep
	}
}

// WithLimiter shares a rate limiter between clients.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// New returns a Client. The transport is built once; use a new Client to
// change proxy.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		headers:     make(map[string]string, len(BrowserHeaders)),
		maxBodySize: DefaultMaxBodySize,
		timeout:     DefaultTimeout,
	}
	for k, v := range BrowserHeaders {
		c.headers[k] = v
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxBodySize <= 0 {
		c.maxBodySize = DefaultMaxBodySize
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}

	transport, err := proxy.NewTransport(c.endpoint, c.timeout)
	if err != nil {
		return nil, err
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	c.client = &http.Client{
		Transport: transport,
		Timeout:   c.timeout,
		Jar:       jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
	return c, nil
}

// HTTPClient exposes the underlying client, e.g. for robots.txt and
// proxy list downloads.
func (c *Client) HTTPClient() *http.Client {
	return c.client
}

// Close releases idle connections.
func (c *Client) Close() {
	c.client.CloseIdleConnections()
}

// Get fetches rawURL. Non-2xx responses are returned without error so that
// callers can judge viability themselves.
func (c *Client) Get(ctx context.Context, rawURL string) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http fetch failed: %w", err)
	}
	body, err := c.readBody(resp)
	if err != nil {
		return nil, err
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	return &Response{
		URL:        rawURL,
		FinalURL:   finalURL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
		Latency:    time.Since(start),
	}, nil
}

// readBody decompresses, size-limits and converts the body to UTF-8.
func (c *Client) readBody(resp *http.Response) ([]byte, error) {
	if resp.Body == nil {
		return nil, ErrEmptyBody
	}

	reader := io.Reader(resp.Body)
	closers := []io.Closer{resp.Body}

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		reader = gz
		closers = append(closers, gz)
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		reader = fl
		closers = append(closers, fl)
	}
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(reader, c.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(raw)) > c.maxBodySize {
		return nil, fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, c.maxBodySize)
	}

	utf8Reader, err := charset.NewReader(bytes.NewReader(raw), resp.Header.Get("Content-Type"))
	if err != nil {
		// Unknown charset label: keep the bytes as they are.
		return raw, nil
	}
	decoded, err := io.ReadAll(utf8Reader)
	if err != nil {
		return raw, nil
	}
	return decoded, nil
}
