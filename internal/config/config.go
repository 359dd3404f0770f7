package config

import (
	"path/filepath"
	"slices"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "productscan"

	// DefaultEngine is the rendering engine used when none is chosen.
	DefaultEngine = "rod"

	// DefaultMaxDepth is the visited-URL count that stops pagination.
	// It matches the default offered by the interactive prompt.
	DefaultMaxDepth = 3

	// DefaultMaxPages caps the result pages processed per category.
	DefaultMaxPages = 50

	// DefaultTimeout bounds a single page load.
	DefaultTimeout = 30 * time.Second

	// DefaultConcurrency is the number of category URLs crawled at once.
	DefaultConcurrency = 2

	// DefaultRateLimit is the number of page loads per second across all
	// workers. Zero disables the limiter.
	DefaultRateLimit = 1.0

	// DefaultAttempts is the number of acquisition attempts per URL.
	DefaultAttempts = 3

	// DefaultFlushBatchSize is the number of unsaved products that
	// triggers a write of the output file.
	DefaultFlushBatchSize = 10

	// DefaultMaxHealthyProxies is the number of healthy proxies kept.
	DefaultMaxHealthyProxies = 5

	// DefaultProbeTimeout bounds each proxy probe.
	DefaultProbeTimeout = 10 * time.Second

	// DefaultProbeURL is fetched through every candidate proxy.
	DefaultProbeURL = "http://httpbin.org/ip"

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute

	// DefaultReportFormat is the summary format printed at the end of a crawl.
	DefaultReportFormat = "text"
)

// Report formats accepted by ReportFormat.
const (
	ReportText     = "text"
	ReportJSON     = "json"
	ReportMarkdown = "markdown"
)

// Engines are the rendering engines accepted by Engine.
var Engines = []string{"rod", "chromedp", "static"}

// DefaultProxySources are public plaintext HTTP proxy lists.
var DefaultProxySources = []string{
	"https://raw.githubusercontent.com/TheSpeedX/PROXY-List/master/http.txt",
	"https://raw.githubusercontent.com/ShiftyTR/Proxy-List/master/http.txt",
	"https://raw.githubusercontent.com/monosans/proxy-list/main/proxies/http.txt",
}

// Config holds all configuration options for productscan.
// It is populated from CLI flags and the configuration file, and passed
// through the application rather than kept in global state.
type Config struct {
	// Targets are the category URLs to crawl.
	Targets []string

	// Engine is the rendering engine: rod, chromedp or static.
	Engine string

	// BrowserPath is the browser executable. Empty lets the engine find
	// or download one.
	BrowserPath string

	// Headless hides the browser window.
	Headless bool

	// BlockResources aborts images, fonts, media and stylesheets in
	// rendered pages.
	BlockResources bool

	// MaxDepth stops pagination once a category run has visited this many
	// distinct URLs. Zero means no limit.
	MaxDepth int

	// MaxPages caps the result pages processed per category. Zero means
	// no limit.
	MaxPages int

	// Timeout bounds a single page load.
	Timeout time.Duration

	// Attempts is the number of acquisition attempts per URL.
	Attempts int

	// Concurrency is the number of category URLs crawled at once.
	Concurrency int

	// RateLimit is the number of page loads per second across all
	// workers. Zero disables the limiter.
	RateLimit float64

	// UserAgent overrides the browser user agent for the first strategy.
	UserAgent string

	// Cookie is sent with raw fetches, e.g. "session=abc; consent=1".
	Cookie string

	// Headers are extra request headers.
	Headers map[string]string

	// RespectRobots makes the crawler refuse start URLs disallowed by
	// robots.txt.
	RespectRobots bool

	// UseProxies fetches and probes public proxy lists before crawling.
	UseProxies bool

	// ProxySources are the plaintext proxy lists.
	ProxySources []string

	// ProbeURL is fetched through every candidate proxy.
	ProbeURL string

	// ProbeTimeout bounds each proxy probe.
	ProbeTimeout time.Duration

	// MaxHealthyProxies is the number of healthy proxies kept.
	MaxHealthyProxies int

	// UseTor starts an embedded Tor daemon and adds it to the proxy pool.
	UseTor bool

	// TorStartupTimeout is the maximum time to wait for Tor to bootstrap.
	TorStartupTimeout time.Duration

	// OutputDir is where output and progress files are created when
	// OutputFile is empty. Defaults to the XDG data directory.
	OutputDir string

	// OutputFile is the product output file. Empty means a timestamped
	// name in OutputDir.
	OutputFile string

	// ProgressFile is the progress file. Empty means a timestamped name
	// in OutputDir.
	ProgressFile string

	// ResumeFile is a progress file whose URLs seed every new session.
	ResumeFile string

	// FlushBatchSize is the number of unsaved products that triggers a write.
	FlushBatchSize int

	// DBDir is the directory of the history database.
	DBDir string

	// SaveToDB records finished sessions in the history database.
	SaveToDB bool

	// SkipRecent drops targets crawled within this window, according to
	// the history database. Zero disables the check.
	SkipRecent time.Duration

	// ReportFormat is the summary format: text, json or markdown.
	ReportFormat string

	// ReportFile also receives the summary, in ReportFormat, when set.
	// Stdout then gets the text summary.
	ReportFile string

	// Verbose enables debug logging.
	Verbose bool

	// LogJSON switches log output to JSON.
	LogJSON bool

	// ConfigFilePath is the configuration file given with --config.
	ConfigFilePath string

	// SiteConfigs holds the sites section of the configuration file.
	SiteConfigs *File
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Engine:            DefaultEngine,
		Headless:          true,
		BlockResources:    true,
		MaxDepth:          DefaultMaxDepth,
		MaxPages:          DefaultMaxPages,
		Timeout:           DefaultTimeout,
		Attempts:          DefaultAttempts,
		Concurrency:       DefaultConcurrency,
		RateLimit:         DefaultRateLimit,
		UseProxies:        true,
		ProxySources:      slices.Clone(DefaultProxySources),
		ProbeURL:          DefaultProbeURL,
		ProbeTimeout:      DefaultProbeTimeout,
		MaxHealthyProxies: DefaultMaxHealthyProxies,
		TorStartupTimeout: DefaultTorStartupTimeout,
		OutputDir:         XDGDataDir(),
		FlushBatchSize:    DefaultFlushBatchSize,
		DBDir:             XDGDataDir(),
		SaveToDB:          true,
		ReportFormat:      DefaultReportFormat,
	}
}

// OutputPath returns OutputFile, or name inside OutputDir.
func (c *Config) OutputPath(name string) string {
	if c.OutputFile != "" {
		return c.OutputFile
	}
	return filepath.Join(c.OutputDir, name)
}

// ProgressPath returns ProgressFile, or name inside OutputDir.
func (c *Config) ProgressPath(name string) string {
	if c.ProgressFile != "" {
		return c.ProgressFile
	}
	return filepath.Join(c.OutputDir, name)
}

// XDGDataDir returns the XDG data directory for productscan.
// On Linux: ~/.local/share/productscan
// On macOS: ~/Library/Application Support/productscan
// On Windows: %LOCALAPPDATA%\productscan
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for productscan.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for productscan.
// Downloaded browser binaries live here.
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns the first problem found as a sentinel error.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}
	if !slices.Contains(Engines, c.Engine) {
		return ErrUnknownEngine
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.MaxDepth < 0 {
		return ErrInvalidMaxDepth
	}
	if c.MaxPages < 0 {
		return ErrInvalidMaxPages
	}
	if c.Attempts <= 0 {
		return ErrInvalidAttempts
	}
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.RateLimit < 0 {
		return ErrInvalidRateLimit
	}
	if c.FlushBatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	switch c.ReportFormat {
	case ReportText, ReportJSON, ReportMarkdown:
	default:
		return ErrUnknownReportFormat
	}
	if c.UseProxies && len(c.ProxySources) == 0 && !c.UseTor {
		return ErrNoProxySource
	}
	return nil
}
