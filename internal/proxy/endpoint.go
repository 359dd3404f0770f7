package proxy

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Health is the health state of an endpoint.
type Health int

const (
	// HealthUntested is the state of a freshly parsed candidate.
	HealthUntested Health = iota

	// HealthHealthy means the endpoint passed its probe and has not failed since.
	HealthHealthy

	// HealthFailed means the endpoint failed a probe or a real request.
	HealthFailed
)

// String returns the health name.
func (h Health) String() string {
	switch h {
	case HealthUntested:
		return "untested"
	case HealthHealthy:
		return "healthy"
	case HealthFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Endpoint is one proxy server.
type Endpoint struct {
	// Scheme is "http", "https" or "socks5".
	Scheme string

	// Address is the "host:port" of the proxy.
	Address string

	// User holds optional credentials from a proxy URL.
	User *url.Userinfo

	// Health is the current health state.
	Health Health

	// ConsecutiveFailures counts failures since the last success.
	ConsecutiveFailures int

	// Latency is the duration of the last successful probe.
	Latency time.Duration

	// LastCheck is when the endpoint was last probed or used.
	LastCheck time.Time
}

// URL returns the proxy URL including credentials, suitable for
// http.ProxyURL and golang.org/x/net/proxy.FromURL.
func (e Endpoint) URL() *url.URL {
	return &url.URL{Scheme: e.Scheme, Host: e.Address, User: e.User}
}

// String returns "scheme://host:port" without credentials. This is the
// form accepted by Chromium's --proxy-server flag.
func (e Endpoint) String() string {
	return e.Scheme + "://" + e.Address
}

// ParseEndpoint parses a candidate line. Accepted forms are "host:port"
// (HTTP proxy) and "scheme://[user:pass@]host:port" with scheme http,
// https, socks5 or socks5h.
func ParseEndpoint(line string) (Endpoint, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Endpoint{}, fmt.Errorf("%w: empty line", ErrInvalidEndpoint)
	}

	ep := Endpoint{Scheme: "http", Address: line}
	if strings.Contains(line, "://") {
		u, err := url.Parse(line)
		if err != nil {
			return Endpoint{}, fmt.Errorf("%w: %w", ErrInvalidEndpoint, err)
		}
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
			ep.Scheme = strings.ToLower(u.Scheme)
		case "socks5", "socks5h":
			ep.Scheme = "socks5"
		default:
			return Endpoint{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidEndpoint, u.Scheme)
		}
		ep.Address = u.Host
		ep.User = u.User
	}

	if !isValidAddress(ep.Address) {
		return Endpoint{}, fmt.Errorf("%w: %q", ErrInvalidEndpoint, line)
	}
	return ep, nil
}

// isValidAddress checks for a non-empty host and a port in 1..65535.
func isValidAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" || strings.ContainsAny(host, " \t/") {
		return false
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return false
	}
	return n >= 1 && n <= 65535
}
