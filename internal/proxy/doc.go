// Package proxy maintains the pool of health-checked proxy endpoints used
// to rotate the crawler's network identity.
//
// The pool is built once per crawl:
//
//	candidates, err := proxy.FetchCandidates(ctx, httpClient, proxy.DefaultSources)
//	pool := proxy.NewPool(proxy.WithProber(proxy.NewHTTPProber()))
//	pool.Initialize(ctx, candidates)
//
// Candidates come from public plaintext lists (one host:port per line) and
// are probed with a short, bounded request. At most MaxHealthy endpoints are
// kept. Validation is advisory: an endpoint that passed its probe can still
// fail during the crawl, in which case callers demote it with MarkFailed and
// continue with Rotate. A failed endpoint is never retried within the same
// pool.
//
// An empty pool is a normal operating mode. Current and Rotate then report
// StatusUnavailable and callers connect directly.
//
// EmbeddedTor can start a local Tor daemon whose SOCKS5 listener is added to
// the candidate list like any other endpoint.
package proxy
