// Package fetch performs raw HTTP requests that look like a regular browser
// navigation: browser-like headers, a cookie jar, optional proxy, gzip,
// deflate and brotli decoding, and charset conversion to UTF-8.
//
// The raw fetch is the fallback used when a rendering engine is blocked:
// the body is fetched here and injected into a fresh page context. It is
// also the transport of the static engine, which does not execute scripts.
//
// A shared rate limiter (golang.org/x/time/rate) spaces requests so that a
// crawl does not hammer a single storefront.
package fetch
