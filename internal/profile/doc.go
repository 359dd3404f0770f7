// Package profile maps a target domain to a site profile: the ordered
// selector candidates used to find product containers, product links and
// next-page controls, and whether the site loads more results by
// infinite scroll.
//
// Profiles are static configuration. The built-in set covers a few large
// marketplaces plus a mandatory "generic" profile; the YAML configuration
// file can override or add profiles, and every profile is validated when
// the Registry is built.
//
// Per-site behavior that goes beyond selectors (for example rewriting a
// product link to the marketplace's canonical detail-page form) is exposed
// through the Site capability interface. The Registry selects one Site per
// crawl and the crawl holds it for its whole duration.
package profile
