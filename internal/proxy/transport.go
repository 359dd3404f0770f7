package proxy

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	xproxy "golang.org/x/net/proxy"
)

// NewTransport returns an http.Transport that routes through ep.
// A nil endpoint yields a direct transport.
func NewTransport(ep *Endpoint, dialTimeout time.Duration) (*http.Transport, error) {
	dialer := &net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   dialTimeout,
		ExpectContinueTimeout: time.Second,
		// Compressed bodies are decoded by the caller, which also handles brotli.
		DisableCompression: true,
	}
	if ep == nil {
		return transport, nil
	}

	switch ep.Scheme {
	case "http", "https":
		transport.Proxy = http.ProxyURL(ep.URL())
	case "socks5":
		d, err := xproxy.FromURL(ep.URL(), dialer)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		transport.DialContext = contextDialer(d)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidEndpoint, ep.Scheme)
	}
	return transport, nil
}

// contextDialer adapts a proxy.Dialer to a DialContext function.
func contextDialer(d xproxy.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	if cd, ok := d.(xproxy.ContextDialer); ok {
		return cd.DialContext
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		type dialResult struct {
			conn net.Conn
			err  error
		}
		resultCh := make(chan dialResult, 1)
		go func() {
			conn, err := d.Dial(network, addr)
			resultCh <- dialResult{conn, err}
		}()
		select {
		case r := <-resultCh:
			return r.conn, r.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
