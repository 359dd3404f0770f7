// Package acquire loads a URL into a browser page despite anti-bot defenses.
//
// A Pipeline runs an ordered list of strategies (stealth render, raw fetch,
// rotated identity) and stops at the first viable result. The whole chain
// is retried up to three times with a randomized delay. A result is viable
// when the document is longer than MinContentLength or the status is 2xx,
// and it is not a challenge page.
package acquire
