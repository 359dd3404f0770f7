// Package browser defines the page renderer capability the crawl engine
// drives, and ships three engines implementing it.
//
//   - rod: headless Chromium through go-rod with go-rod/stealth. This is
//     the default engine.
//   - chromedp: headless Chromium through chromedp, for environments where
//     rod's browser management does not fit.
//   - static: plain HTTP plus goquery. It executes no script, so click
//     pagination only follows anchors and infinite scroll is unsupported.
//
// The engine is chosen once per crawl. Every Launch starts an isolated
// browser (or HTTP client) with its own identity; Page.Close tears all of it
// down so that retries never share state with a failed attempt.
package browser
