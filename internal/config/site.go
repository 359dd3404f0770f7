package config

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nao1215/productscan/internal/profile"
)

// SiteConfig overrides or adds the selector profile of one site type.
// Keys of the sites section are site tags such as "amazon" or a new tag.
type SiteConfig struct {
	// Markers are domain substrings that select this site.
	Markers []string `yaml:"markers,omitempty"`

	// ProductSelectors match product containers.
	ProductSelectors []string `yaml:"product_selectors,omitempty"`

	// LinkSelectors match the product link inside a container.
	LinkSelectors []string `yaml:"link_selectors,omitempty"`

	// NextPageSelectors match next-page controls.
	NextPageSelectors []string `yaml:"next_page_selectors,omitempty"`

	// InfiniteScroll enables scroll pagination. Unset keeps the built-in value.
	InfiniteScroll *bool `yaml:"infinite_scroll,omitempty"`
}

// Override converts the section to a registry override.
func (s SiteConfig) Override() profile.Override {
	return profile.Override{
		Markers:           slices.Clone(s.Markers),
		ProductSelectors:  slices.Clone(s.ProductSelectors),
		LinkSelectors:     slices.Clone(s.LinkSelectors),
		NextPageSelectors: slices.Clone(s.NextPageSelectors),
		InfiniteScroll:    s.InfiniteScroll,
	}
}

// CrawlSection holds crawl defaults. Unset fields keep the built-in defaults.
type CrawlSection struct {
	Engine         string            `yaml:"engine,omitempty"`
	MaxDepth       *int              `yaml:"max_depth,omitempty"`
	MaxPages       *int              `yaml:"max_pages,omitempty"`
	Timeout        string            `yaml:"timeout,omitempty"`
	Attempts       int               `yaml:"attempts,omitempty"`
	Concurrency    int               `yaml:"concurrency,omitempty"`
	RateLimit      *float64          `yaml:"rate_limit,omitempty"`
	Headless       *bool             `yaml:"headless,omitempty"`
	BlockResources *bool             `yaml:"block_resources,omitempty"`
	RespectRobots  *bool             `yaml:"respect_robots,omitempty"`
	UserAgent      string            `yaml:"user_agent,omitempty"`
	Cookie         string            `yaml:"cookie,omitempty"`
	Headers        map[string]string `yaml:"headers,omitempty"`
	OutputDir      string            `yaml:"output_dir,omitempty"`
}

// ProxySection configures the proxy pool.
type ProxySection struct {
	Enabled      *bool    `yaml:"enabled,omitempty"`
	Sources      []string `yaml:"sources,omitempty"`
	ProbeURL     string   `yaml:"probe_url,omitempty"`
	ProbeTimeout string   `yaml:"probe_timeout,omitempty"`
	MaxHealthy   int      `yaml:"max_healthy,omitempty"`
	Tor          *bool    `yaml:"tor,omitempty"`
}

// File represents the structure of the .productscan.yaml configuration file.
type File struct {
	Crawl CrawlSection          `yaml:"crawl,omitempty"`
	Proxy ProxySection          `yaml:"proxy,omitempty"`
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`
}

// Flag names shared by the CLI and File.Apply.
const (
	FlagEngine         = "engine"
	FlagMaxDepth       = "max-depth"
	FlagMaxPages       = "max-pages"
	FlagTimeout        = "timeout"
	FlagAttempts       = "attempts"
	FlagConcurrency    = "concurrency"
	FlagRateLimit      = "rate-limit"
	FlagHeadless       = "headless"
	FlagBlockResources = "block-resources"
	FlagRespectRobots  = "respect-robots"
	FlagUserAgent      = "user-agent"
	FlagCookie         = "cookie"
	FlagOutputDir      = "output-dir"
	FlagNoProxy        = "no-proxy"
	FlagProxySource    = "proxy-source"
	FlagTor            = "tor"
)

// Apply copies the file values into cfg. A value is skipped when isSet
// reports that the matching flag was given on the command line.
func (f *File) Apply(cfg *Config, isSet func(flag string) bool) error {
	c := f.Crawl
	if c.Engine != "" && !isSet(FlagEngine) {
		cfg.Engine = c.Engine
	}
	if c.MaxDepth != nil && !isSet(FlagMaxDepth) {
		cfg.MaxDepth = *c.MaxDepth
	}
	if c.MaxPages != nil && !isSet(FlagMaxPages) {
		cfg.MaxPages = *c.MaxPages
	}
	if c.Timeout != "" && !isSet(FlagTimeout) {
		d, err := time.ParseDuration(c.Timeout)
		if err != nil {
			return fmt.Errorf("crawl.timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if c.Attempts != 0 && !isSet(FlagAttempts) {
		cfg.Attempts = c.Attempts
	}
	if c.Concurrency != 0 && !isSet(FlagConcurrency) {
		cfg.Concurrency = c.Concurrency
	}
	if c.RateLimit != nil && !isSet(FlagRateLimit) {
		cfg.RateLimit = *c.RateLimit
	}
	if c.Headless != nil && !isSet(FlagHeadless) {
		cfg.Headless = *c.Headless
	}
	if c.BlockResources != nil && !isSet(FlagBlockResources) {
		cfg.BlockResources = *c.BlockResources
	}
	if c.RespectRobots != nil && !isSet(FlagRespectRobots) {
		cfg.RespectRobots = *c.RespectRobots
	}
	if c.UserAgent != "" && !isSet(FlagUserAgent) {
		cfg.UserAgent = c.UserAgent
	}
	if c.Cookie != "" && !isSet(FlagCookie) {
		cfg.Cookie = c.Cookie
	}
	if len(c.Headers) > 0 {
		if cfg.Headers == nil {
			cfg.Headers = make(map[string]string, len(c.Headers))
		}
		maps.Copy(cfg.Headers, c.Headers)
	}
	if c.OutputDir != "" && !isSet(FlagOutputDir) {
		cfg.OutputDir = c.OutputDir
	}

	p := f.Proxy
	if p.Enabled != nil && !isSet(FlagNoProxy) {
		cfg.UseProxies = *p.Enabled
	}
	if len(p.Sources) > 0 && !isSet(FlagProxySource) {
		cfg.ProxySources = slices.Clone(p.Sources)
	}
	if p.ProbeURL != "" {
		cfg.ProbeURL = p.ProbeURL
	}
	if p.ProbeTimeout != "" {
		d, err := time.ParseDuration(p.ProbeTimeout)
		if err != nil {
			return fmt.Errorf("proxy.probe_timeout: %w", err)
		}
		cfg.ProbeTimeout = d
	}
	if p.MaxHealthy > 0 {
		cfg.MaxHealthyProxies = p.MaxHealthy
	}
	if p.Tor != nil && !isSet(FlagTor) {
		cfg.UseTor = *p.Tor
	}

	cfg.SiteConfigs = f
	return nil
}

// ProfileOptions returns the registry options for the sites section,
// in tag order.
func (f *File) ProfileOptions() []profile.Option {
	if f == nil {
		return nil
	}
	tags := slices.Sorted(maps.Keys(f.Sites))
	opts := make([]profile.Option, 0, len(tags))
	for _, tag := range tags {
		opts = append(opts, profile.WithOverride(profile.Tag(tag), f.Sites[tag].Override()))
	}
	return opts
}

// BuiltinSites describes every profile of r as a sites section, so users
// can start from an editable copy of the shipped selectors.
func BuiltinSites(r *profile.Registry) map[string]SiteConfig {
	sites := make(map[string]SiteConfig)
	for _, tag := range r.Tags() {
		p := r.ProfileFor(tag)
		scroll := p.InfiniteScroll
		sites[string(tag)] = SiteConfig{
			Markers:           r.Markers(tag),
			ProductSelectors:  p.ProductSelectors,
			LinkSelectors:     p.LinkSelectors,
			NextPageSelectors: p.NextPageSelectors,
			InfiniteScroll:    &scroll,
		}
	}
	return sites
}

// MarshalSites renders sites as a top-level sites section with two-space
// indentation.
func MarshalSites(sites map[string]SiteConfig) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(File{Sites: sites}); err != nil {
		return nil, fmt.Errorf("failed to encode sites: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode sites: %w", err)
	}
	return buf.Bytes(), nil
}
