package proxy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultSources are public plaintext HTTP proxy lists.
var DefaultSources = []string{
	"https://raw.githubusercontent.com/TheSpeedX/PROXY-List/master/http.txt",
	"https://raw.githubusercontent.com/ShiftyTR/Proxy-List/master/http.txt",
	"https://raw.githubusercontent.com/monosans/proxy-list/main/proxies/http.txt",
}

// maxSourceSize caps how much of a single list is read.
const maxSourceSize = 4 * 1024 * 1024

// FetchCandidates downloads every source and returns the parsed candidates
// in source order with duplicates removed. A failing source is skipped; an
// error is returned only when no source could be fetched.
func FetchCandidates(ctx context.Context, client *http.Client, sources []string) ([]Endpoint, error) {
	seen := make(map[string]struct{})
	var (
		out  []Endpoint
		errs []error
	)

	for _, src := range sources {
		eps, err := fetchSource(ctx, client, src)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, ep := range eps {
			key := ep.String()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, ep)
		}
	}

	if len(sources) > 0 && len(errs) == len(sources) {
		return nil, fmt.Errorf("%w: %w", ErrNoSource, errors.Join(errs...))
	}
	return out, nil
}

func fetchSource(ctx context.Context, client *http.Client, src string) ([]Endpoint, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", src, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", src, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status %d", src, resp.StatusCode)
	}
	return ParseCandidates(io.LimitReader(resp.Body, maxSourceSize)), nil
}

// ParseCandidates reads one endpoint per line. Blank lines, comments
// starting with '#' and malformed lines are skipped.
func ParseCandidates(r io.Reader) []Endpoint {
	var out []Endpoint
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ep, err := ParseEndpoint(line)
		if err != nil {
			continue
		}
		out = append(out, ep)
	}
	return out
}
