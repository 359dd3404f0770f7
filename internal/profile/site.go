package profile

import "regexp"

// Site is the per-site capability selected once per crawl.
type Site interface {
	// Tag returns the site type.
	Tag() Tag

	// Profile returns the selector configuration for the site.
	Profile() SiteProfile

	// NormalizeProductURL rewrites a resolved product link into the site's
	// canonical form. It returns false when the link cannot be normalized,
	// in which case the link must be discarded.
	NormalizeProductURL(origin, resolved string) (string, bool)
}

// defaultSite keeps resolved links unchanged.
type defaultSite struct {
	profile SiteProfile
}

func (s defaultSite) Tag() Tag { return s.profile.Tag }

func (s defaultSite) Profile() SiteProfile { return s.profile.clone() }

func (s defaultSite) NormalizeProductURL(_, resolved string) (string, bool) {
	return resolved, resolved != ""
}

// asinPattern captures the 10-character Amazon Standard Identification Number.
var asinPattern = regexp.MustCompile(`/dp/([A-Z0-9]{10})`)

// amazonSite rewrites every product link to "<origin>/dp/<ASIN>", dropping
// tracking segments and query strings so that the same product reached
// through different listings is stored once.
type amazonSite struct {
	defaultSite
}

func (s amazonSite) NormalizeProductURL(origin, resolved string) (string, bool) {
	m := asinPattern.FindStringSubmatch(resolved)
	if m == nil {
		return "", false
	}
	return origin + "/dp/" + m[1], true
}

// ASIN returns the Amazon product identifier embedded in rawURL, if any.
func ASIN(rawURL string) (string, bool) {
	m := asinPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return "", false
	}
	return m[1], true
}
