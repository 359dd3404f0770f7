package profile

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Override customizes or adds a site profile. Empty selector lists keep the
// built-in values; a nil InfiniteScroll keeps the built-in flag.
type Override struct {
	// Markers are domain substrings that select this profile.
	// A new tag without markers is detected by its own name.
	Markers []string

	ProductSelectors  []string
	LinkSelectors     []string
	NextPageSelectors []string
	InfiniteScroll    *bool
}

// Registry holds the validated profiles and the domain markers used to
// detect the site type.
type Registry struct {
	profiles map[Tag]SiteProfile
	markers  []marker
}

// Option configures a Registry.
type Option func(*registryBuilder)

type registryBuilder struct {
	overrides map[Tag]Override
}

// WithOverride merges o into the profile for tag, creating it if needed.
func WithOverride(tag Tag, o Override) Option {
	return func(b *registryBuilder) {
		b.overrides[tag] = o
	}
}

// NewRegistry returns a Registry holding the built-in profiles with any
// overrides applied. Every profile is validated; the first invalid one
// is reported.
func NewRegistry(opts ...Option) (*Registry, error) {
	b := &registryBuilder{overrides: make(map[Tag]Override)}
	for _, opt := range opts {
		opt(b)
	}

	r := &Registry{profiles: make(map[Tag]SiteProfile, len(builtinProfiles))}
	for _, p := range builtinProfiles {
		r.profiles[p.Tag] = p.clone()
	}

	// Sorted for a deterministic marker order across runs.
	tags := make([]Tag, 0, len(b.overrides))
	for tag := range b.overrides {
		tags = append(tags, tag)
	}
	slices.Sort(tags)

	for _, tag := range tags {
		o := b.overrides[tag]
		p := r.profiles[tag]
		p.Tag = tag
		if len(o.ProductSelectors) > 0 {
			p.ProductSelectors = append([]string(nil), o.ProductSelectors...)
		}
		if len(o.LinkSelectors) > 0 {
			p.LinkSelectors = append([]string(nil), o.LinkSelectors...)
		}
		if len(o.NextPageSelectors) > 0 {
			p.NextPageSelectors = append([]string(nil), o.NextPageSelectors...)
		}
		if o.InfiniteScroll != nil {
			p.InfiniteScroll = *o.InfiniteScroll
		}
		r.profiles[tag] = p

		markers := o.Markers
		if len(markers) == 0 && !r.hasBuiltinMarker(tag) && tag != TagGeneric {
			markers = []string{string(tag)}
		}
		for _, m := range markers {
			m = strings.ToLower(strings.TrimSpace(m))
			if m != "" {
				r.markers = append(r.markers, marker{substr: m, tag: tag})
			}
		}
	}
	r.markers = append(r.markers, builtinMarkers...)

	for _, p := range r.profiles {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("invalid site profile: %w", err)
		}
	}
	return r, nil
}

func (r *Registry) hasBuiltinMarker(tag Tag) bool {
	for _, m := range builtinMarkers {
		if m.tag == tag {
			return true
		}
	}
	return false
}

// Detect returns the site tag for rawURL by substring match against its
// host, or TagGeneric when nothing matches.
func (r *Registry) Detect(rawURL string) Tag {
	return detect(r.markers, rawURL)
}

// ProfileFor returns the profile for tag, falling back to the generic
// profile for unknown tags.
func (r *Registry) ProfileFor(tag Tag) SiteProfile {
	if p, ok := r.profiles[tag]; ok {
		return p.clone()
	}
	return r.profiles[TagGeneric].clone()
}

// Site returns the capability implementation for tag.
func (r *Registry) Site(tag Tag) Site {
	base := defaultSite{profile: r.ProfileFor(tag)}
	if base.profile.Tag == TagAmazon {
		return amazonSite{defaultSite: base}
	}
	return base
}

// Generic returns the generic site, used by the extraction fallback tier.
func (r *Registry) Generic() Site {
	return r.Site(TagGeneric)
}

// Markers returns the domain markers that select tag, in match order.
func (r *Registry) Markers(tag Tag) []string {
	var out []string
	for _, m := range r.markers {
		if m.tag == tag && !slices.Contains(out, m.substr) {
			out = append(out, m.substr)
		}
	}
	return out
}

// Tags returns the registered tags in sorted order.
func (r *Registry) Tags() []Tag {
	tags := make([]Tag, 0, len(r.profiles))
	for tag := range r.profiles {
		tags = append(tags, tag)
	}
	slices.Sort(tags)
	return tags
}

// DetectSiteType detects the site tag using the built-in markers only.
func DetectSiteType(rawURL string) Tag {
	return detect(builtinMarkers, rawURL)
}

func detect(markers []marker, rawURL string) Tag {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Hostname()
	}
	host = strings.ToLower(host)
	// Markers are matched against the registrable domain so that a
	// subdomain like noon-deals.example.com stays generic.
	if domain, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		host = domain
	}
	for _, m := range markers {
		if strings.Contains(host, m.substr) {
			return m.tag
		}
	}
	return TagGeneric
}
