package profile

import (
	"fmt"
	"strings"
)

// Tag identifies a site type, derived from the target domain.
type Tag string

// Built-in site tags.
const (
	TagGeneric  Tag = "generic"
	TagAlibaba  Tag = "alibaba"
	TagNoon     Tag = "noon"
	TagSharafDG Tag = "sharafdg"
	TagAmazon   Tag = "amazon"
)

// SiteProfile is the declarative selector configuration for one site layout.
// Selector lists are ordered; earlier entries are tried first.
type SiteProfile struct {
	// Tag is the site type this profile belongs to.
	Tag Tag

	// ProductSelectors match the containers that wrap a single product card.
	ProductSelectors []string

	// LinkSelectors match the product link inside a container.
	LinkSelectors []string

	// NextPageSelectors match clickable next-page controls.
	NextPageSelectors []string

	// InfiniteScroll reports whether the listing loads more results on scroll.
	InfiniteScroll bool
}

// Validate checks that the profile can drive extraction.
func (p SiteProfile) Validate() error {
	if p.Tag == "" {
		return ErrEmptyTag
	}
	if len(p.ProductSelectors) == 0 {
		return fmt.Errorf("%s: %w", p.Tag, ErrNoProductSelectors)
	}
	if len(p.LinkSelectors) == 0 {
		return fmt.Errorf("%s: %w", p.Tag, ErrNoLinkSelectors)
	}
	for _, list := range [][]string{p.ProductSelectors, p.LinkSelectors, p.NextPageSelectors} {
		for _, sel := range list {
			if strings.TrimSpace(sel) == "" {
				return fmt.Errorf("%s: %w", p.Tag, ErrBlankSelector)
			}
		}
	}
	return nil
}

// clone returns a deep copy so callers cannot mutate registry state.
func (p SiteProfile) clone() SiteProfile {
	p.ProductSelectors = append([]string(nil), p.ProductSelectors...)
	p.LinkSelectors = append([]string(nil), p.LinkSelectors...)
	p.NextPageSelectors = append([]string(nil), p.NextPageSelectors...)
	return p
}

// builtinProfiles are the selector sets known to work on each marketplace.
var builtinProfiles = []SiteProfile{
	{
		Tag:               TagAlibaba,
		ProductSelectors:  []string{"div.product-card", "div.product-item"},
		LinkSelectors:     []string{"a.product-link", `a[href*="/product/"]`},
		NextPageSelectors: []string{"a.next-page", "button.next-btn"},
		InfiniteScroll:    true,
	},
	{
		Tag:               TagNoon,
		ProductSelectors:  []string{"div.product-grid-item", "div.productContainer"},
		LinkSelectors:     []string{`a[href*="/product"]`, "a.product-link"},
		NextPageSelectors: []string{`button[class*="next"]`, "a.next-page"},
		InfiniteScroll:    true,
	},
	{
		Tag:               TagSharafDG,
		ProductSelectors:  []string{"div.product-item", "div.product-box"},
		LinkSelectors:     []string{"a.product-url", `a[href*="/p/"]`},
		NextPageSelectors: []string{"a.next", "button.load-more"},
	},
	{
		Tag: TagAmazon,
		ProductSelectors: []string{
			`div[data-component-type="s-search-result"]`,
			"div.s-result-item:not(.AdHolder)",
			".s-card-container",
		},
		LinkSelectors: []string{
			"h2 a.a-link-normal",
			"a.a-link-normal.s-no-outline",
			"h2.a-size-mini a",
			`a[href*="/dp/"]`,
		},
		NextPageSelectors: []string{".s-pagination-next", `a[href*="page="]`, "span.s-pagination-next"},
	},
	{
		Tag:               TagGeneric,
		ProductSelectors:  []string{"div.product", `div[class*="product"]`, "article.product"},
		LinkSelectors:     []string{`a[href*="product"]`, `a[href*="/p/"]`, "a.product-link", `a[href*="/dp/"]`},
		NextPageSelectors: []string{"a.next", `a[rel="next"]`, "button.load-more"},
	},
}

// builtinMarkers map a domain substring to a site tag, tested in order.
var builtinMarkers = []marker{
	{substr: "alibaba", tag: TagAlibaba},
	{substr: "noon", tag: TagNoon},
	{substr: "sharafdg", tag: TagSharafDG},
	{substr: "amazon", tag: TagAmazon},
}

type marker struct {
	substr string
	tag    Tag
}
