package acquire

import (
	"github.com/nao1215/productscan/internal/browser"
)

// MinContentLength is the document length above which a page is viable
// regardless of its status code.
const MinContentLength = 1000

// Result is an acquired page.
type Result struct {
	// Page is the loaded page. The caller owns it and must close it.
	Page browser.Page

	// URL is the URL the page was loaded from, after redirects.
	URL string

	// Strategy is the name of the strategy that produced the page.
	Strategy string

	// Attempt is the 1-based attempt number.
	Attempt int

	// Status is the HTTP status of the document, 0 if unknown.
	Status int

	// ContentLength is the length of the serialized document.
	ContentLength int

	// Blocked is set when the document is a bot challenge.
	Blocked bool

	// Proxy is the egress endpoint, empty for a direct connection.
	Proxy string
}

// Viable reports whether the page can be used for extraction.
func (r *Result) Viable() bool {
	if r == nil || r.Blocked {
		return false
	}
	return r.ContentLength > MinContentLength || (r.Status >= 200 && r.Status <= 299)
}
