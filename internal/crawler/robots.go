package crawler

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/temoto/robotstxt"

	"github.com/nao1215/productscan/internal/fetch"
)

// RobotsGate evaluates robots.txt rules for start URLs, caching the
// parsed rules per host.
type RobotsGate struct {
	client    *fetch.Client
	userAgent string

	mu    sync.Mutex
	cache map[string]*robotstxt.RobotsData
}

// NewRobotsGate returns a gate that fetches robots.txt with client and
// matches rules for userAgent. An empty userAgent matches the "*" group.
func NewRobotsGate(client *fetch.Client, userAgent string) *RobotsGate {
	if userAgent == "" {
		userAgent = "*"
	}
	return &RobotsGate{
		client:    client,
		userAgent: userAgent,
		cache:     make(map[string]*robotstxt.RobotsData),
	}
}

// Allowed reports whether rawURL may be crawled. A robots.txt that cannot
// be fetched or parsed allows everything, and so does a 4xx response.
// A 5xx response disallows everything.
func (g *RobotsGate) Allowed(ctx context.Context, rawURL string) (bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() {
		return false, fmt.Errorf("invalid URL %q", rawURL)
	}

	rules, err := g.rules(ctx, u)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		return true, nil
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return rules.TestAgent(path, g.userAgent), nil
}

func (g *RobotsGate) rules(ctx context.Context, u *url.URL) (*robotstxt.RobotsData, error) {
	host := strings.ToLower(u.Host)

	g.mu.Lock()
	data, ok := g.cache[host]
	g.mu.Unlock()
	if ok {
		return data, nil
	}

	resp, err := g.client.Get(ctx, u.Scheme+"://"+u.Host+"/robots.txt")
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	data, err = robotstxt.FromStatusAndBytes(resp.StatusCode, resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}

	g.mu.Lock()
	g.cache[host] = data
	g.mu.Unlock()
	return data, nil
}
