package acquire

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// challengeTitles are page titles served by bot-protection interstitials.
var challengeTitles = []string{
	"just a moment",
	"attention required",
	"checking your browser",
	"ddos-guard",
	"access denied",
}

// challengeSelector matches the markup of Cloudflare challenge pages.
const challengeSelector = `#challenge-form, #challenge-running, #cf-challenge-running, ` +
	`.cf-browser-verification, #cf-wrapper, #turnstile-wrapper, ` +
	`iframe[src*="challenges.cloudflare.com"]`

// challengeMarkers are raw substrings that identify challenge scripts.
var challengeMarkers = []string{
	"/cdn-cgi/challenge-platform/",
	"cf_chl_opt",
	"cf-please-wait",
}

// IsChallenge reports whether html is a bot-protection interstitial rather
// than the requested document.
func IsChallenge(html string) bool {
	if html == "" {
		return false
	}
	for _, m := range challengeMarkers {
		if strings.Contains(html, m) {
			return true
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	title := strings.ToLower(strings.TrimSpace(doc.Find("title").First().Text()))
	for _, t := range challengeTitles {
		if strings.HasPrefix(title, t) {
			return true
		}
	}
	return doc.Find(challengeSelector).Length() > 0
}
