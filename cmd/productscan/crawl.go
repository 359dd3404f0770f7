package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/nao1215/productscan/internal/acquire"
	"github.com/nao1215/productscan/internal/browser"
	"github.com/nao1215/productscan/internal/config"
	"github.com/nao1215/productscan/internal/crawler"
	"github.com/nao1215/productscan/internal/database"
	"github.com/nao1215/productscan/internal/fetch"
	"github.com/nao1215/productscan/internal/model"
	"github.com/nao1215/productscan/internal/profile"
	"github.com/nao1215/productscan/internal/proxy"
	"github.com/nao1215/productscan/internal/report"
	"github.com/nao1215/productscan/internal/store"
)

// Flags that only the crawl command knows.
const (
	flagBrowserPath  = "browser-path"
	flagHeader       = "header"
	flagOutput       = "output"
	flagProgressFile = "progress-file"
	flagResume       = "resume"
	flagBatchSize    = "batch-size"
	flagTorTimeout   = "tor-timeout"
	flagFormat       = "format"
	flagReportFile   = "report-file"
	flagNoHistory    = "no-history"
	flagDBDir        = "db-dir"
	flagSkipRecent   = "skip-recent"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [category-url...]",
		Short: "Collect product URLs from one or more category pages",
		Long: `Crawl loads each category or search-result URL, extracts the product
links it lists, and follows pagination until the depth or page limit is
reached. Discovered product URLs are written incrementally to a JSON
output file; a progress file allows resuming with --resume.

Without a URL argument, crawl asks for one interactively.

Examples:
  # Crawl a single category page
  productscan crawl "https://www.amazon.ae/s?k=headphones"

  # Crawl two categories at once, stopping each after 200 visited URLs
  productscan crawl -d 200 https://shop.example.com/phones https://shop.example.com/laptops

  # Plain HTTP engine, no proxies
  productscan crawl --engine static --no-proxy https://shop.example.com/phones

  # Continue from an earlier run
  productscan crawl --resume progress_20260314_092653.json https://shop.example.com/phones

  # JSON summary for scripting
  productscan crawl -f json https://shop.example.com/phones`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	// Engine flags
	cmd.Flags().StringP(config.FlagEngine, "e", config.DefaultEngine,
		"Rendering engine: "+strings.Join(config.Engines, ", "))
	cmd.Flags().String(flagBrowserPath, "",
		"Browser executable (default: found or downloaded by the engine)")
	cmd.Flags().Bool(config.FlagHeadless, true, "Hide the browser window")
	cmd.Flags().Bool(config.FlagBlockResources, true,
		"Abort images, fonts, media and stylesheets in rendered pages")

	// Crawl behavior flags
	cmd.Flags().IntP(config.FlagMaxDepth, "d", config.DefaultMaxDepth,
		"Stop paginating after this many distinct visited URLs (0 = no limit)")
	cmd.Flags().IntP(config.FlagMaxPages, "p", config.DefaultMaxPages,
		"Result pages processed per category (0 = no limit)")
	cmd.Flags().DurationP(config.FlagTimeout, "t", config.DefaultTimeout,
		"Timeout for a single page load")
	cmd.Flags().Int(config.FlagAttempts, config.DefaultAttempts,
		"Acquisition attempts per URL")
	cmd.Flags().IntP(config.FlagConcurrency, "n", config.DefaultConcurrency,
		"Category URLs crawled at once")
	cmd.Flags().Float64(config.FlagRateLimit, config.DefaultRateLimit,
		"Page loads per second across all workers (0 = unlimited)")
	cmd.Flags().Bool(config.FlagRespectRobots, false,
		"Refuse start URLs disallowed by robots.txt")

	// Identity flags
	cmd.Flags().String(config.FlagUserAgent, "", "User agent for the first acquisition strategy")
	cmd.Flags().String(config.FlagCookie, "", `Cookie header for raw fetches, e.g. "session=abc"`)
	cmd.Flags().StringToStringP(flagHeader, "H", nil, "Extra request header (repeatable), e.g. -H Accept-Language=en")

	// Proxy flags
	cmd.Flags().Bool(config.FlagNoProxy, false, "Crawl without the public proxy pool")
	cmd.Flags().StringSlice(config.FlagProxySource, nil,
		"Plaintext proxy list URL (repeatable, replaces the defaults)")
	cmd.Flags().Bool(config.FlagTor, false, "Start an embedded Tor daemon and add it to the proxy pool")
	cmd.Flags().Duration(flagTorTimeout, config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")

	// Persistence flags
	cmd.Flags().String(config.FlagOutputDir, config.XDGDataDir(),
		"Directory for output and progress files")
	cmd.Flags().StringP(flagOutput, "o", "", "Product output file (default: timestamped name in --output-dir)")
	cmd.Flags().String(flagProgressFile, "", "Progress file (default: timestamped name in --output-dir)")
	cmd.Flags().String(flagResume, "", "Seed every session with the URLs of a progress or output file")
	cmd.Flags().Int(flagBatchSize, config.DefaultFlushBatchSize,
		"Unsaved products that trigger a write of the output file")
	cmd.Flags().Bool(flagNoHistory, false, "Do not record sessions in the history database")
	cmd.Flags().String(flagDBDir, defaultDBDir(), "Directory of the history database")
	cmd.Flags().Duration(flagSkipRecent, 0, "Skip targets crawled within this duration, e.g. 24h")

	// Report flags
	cmd.Flags().StringP(flagFormat, "f", config.DefaultReportFormat,
		"Summary format: text, json or markdown")
	cmd.Flags().StringP(flagReportFile, "r", "",
		"Also write the summary to a file in --format")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if len(cfg.Targets) == 0 {
		if err := promptTargets(cmd, cfg); err != nil {
			return err
		}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg.Verbose, cfg.LogJSON)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runCrawl(ctx, cfg, logger, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// buildConfig creates a Config from the configuration file and the
// command flags. Flags given on the command line win over the file.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	if cfg.Engine, err = flags.GetString(config.FlagEngine); err != nil {
		return nil, err
	}
	if cfg.BrowserPath, err = flags.GetString(flagBrowserPath); err != nil {
		return nil, err
	}
	if cfg.Headless, err = flags.GetBool(config.FlagHeadless); err != nil {
		return nil, err
	}
	if cfg.BlockResources, err = flags.GetBool(config.FlagBlockResources); err != nil {
		return nil, err
	}
	if cfg.MaxDepth, err = flags.GetInt(config.FlagMaxDepth); err != nil {
		return nil, err
	}
	if cfg.MaxPages, err = flags.GetInt(config.FlagMaxPages); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = flags.GetDuration(config.FlagTimeout); err != nil {
		return nil, err
	}
	if cfg.Attempts, err = flags.GetInt(config.FlagAttempts); err != nil {
		return nil, err
	}
	if cfg.Concurrency, err = flags.GetInt(config.FlagConcurrency); err != nil {
		return nil, err
	}
	if cfg.RateLimit, err = flags.GetFloat64(config.FlagRateLimit); err != nil {
		return nil, err
	}
	if cfg.RespectRobots, err = flags.GetBool(config.FlagRespectRobots); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString(config.FlagUserAgent); err != nil {
		return nil, err
	}
	if cfg.Cookie, err = flags.GetString(config.FlagCookie); err != nil {
		return nil, err
	}
	if cfg.Headers, err = flags.GetStringToString(flagHeader); err != nil {
		return nil, err
	}

	noProxy, err := flags.GetBool(config.FlagNoProxy)
	if err != nil {
		return nil, err
	}
	cfg.UseProxies = !noProxy
	if flags.Changed(config.FlagProxySource) {
		if cfg.ProxySources, err = flags.GetStringSlice(config.FlagProxySource); err != nil {
			return nil, err
		}
	}
	if cfg.UseTor, err = flags.GetBool(config.FlagTor); err != nil {
		return nil, err
	}
	if cfg.TorStartupTimeout, err = flags.GetDuration(flagTorTimeout); err != nil {
		return nil, err
	}

	if cfg.OutputDir, err = flags.GetString(config.FlagOutputDir); err != nil {
		return nil, err
	}
	if cfg.OutputFile, err = flags.GetString(flagOutput); err != nil {
		return nil, err
	}
	if cfg.ProgressFile, err = flags.GetString(flagProgressFile); err != nil {
		return nil, err
	}
	if cfg.ResumeFile, err = flags.GetString(flagResume); err != nil {
		return nil, err
	}
	if cfg.FlushBatchSize, err = flags.GetInt(flagBatchSize); err != nil {
		return nil, err
	}
	noHistory, err := flags.GetBool(flagNoHistory)
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noHistory
	if cfg.DBDir, err = flags.GetString(flagDBDir); err != nil {
		return nil, err
	}
	if cfg.SkipRecent, err = flags.GetDuration(flagSkipRecent); err != nil {
		return nil, err
	}

	if cfg.ReportFormat, err = flags.GetString(flagFormat); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString(flagReportFile); err != nil {
		return nil, err
	}

	cfg.Verbose = persistentBool(cmd, flagVerbose)
	cfg.LogJSON = persistentBool(cmd, flagLogJSON)
	cfg.ConfigFilePath = persistentString(cmd, flagConfig)

	if err := applyConfigFile(cmd, cfg); err != nil {
		return nil, err
	}

	cfg.Targets = args
	return cfg, nil
}

// applyConfigFile loads the configuration file, if any, into cfg.
// An explicitly given file must exist; a missing default file is fine.
func applyConfigFile(cmd *cobra.Command, cfg *config.Config) error {
	explicit := cfg.ConfigFilePath != ""
	path := config.FindConfigFile(cfg.ConfigFilePath)
	if path == "" {
		if explicit {
			return fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
		}
		return nil
	}

	file, err := config.LoadConfigFile(path)
	if err != nil {
		return fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	if err := file.Apply(cfg, cmd.Flags().Changed); err != nil {
		return fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return nil
}

// promptTargets asks for a category URL and, unless --max-depth was
// given, the maximum depth.
func promptTargets(cmd *cobra.Command, cfg *config.Config) error {
	in := bufio.NewScanner(cmd.InOrStdin())
	out := cmd.OutOrStdout()

	fmt.Fprint(out, "Enter category URL: ")
	if !in.Scan() {
		if err := in.Err(); err != nil {
			return err
		}
		return config.ErrNoTarget
	}
	target := strings.TrimSpace(in.Text())
	if target == "" {
		return config.ErrNoTarget
	}
	cfg.Targets = []string{target}

	if cmd.Flags().Changed(config.FlagMaxDepth) {
		return nil
	}
	fmt.Fprintf(out, "Enter max depth [%d]: ", cfg.MaxDepth)
	if !in.Scan() {
		return in.Err()
	}
	answer := strings.TrimSpace(in.Text())
	if answer == "" {
		return nil
	}
	depth, err := strconv.Atoi(answer)
	if err != nil || depth < 0 {
		return fmt.Errorf("%w: %q", config.ErrInvalidMaxDepth, answer)
	}
	cfg.MaxDepth = depth
	return nil
}

// runCrawl wires the components together and crawls every target.
// Summaries go to stdout (or the report file), progress lines to errOut.
func runCrawl(ctx context.Context, cfg *config.Config, logger *slog.Logger, out, errOut io.Writer) error {
	logger.Info("starting crawl",
		"targets", len(cfg.Targets),
		"engine", cfg.Engine,
		"max_depth", cfg.MaxDepth,
		"max_pages", cfg.MaxPages,
		"concurrency", cfg.Concurrency,
	)

	registry, err := profile.NewRegistry(cfg.SiteConfigs.ProfileOptions()...)
	if err != nil {
		return fmt.Errorf("invalid site profiles: %w", err)
	}
	logger.Debug("site profiles loaded", "tags", registry.Tags())

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	launcher, err := browser.New(cfg.Engine, browser.Config{
		BinPath: cfg.BrowserPath,
		Limiter: limiter,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	now := time.Now()
	st, err := store.New(cfg.OutputPath(store.OutputName(now)),
		store.WithProgressPath(cfg.ProgressPath(store.ProgressName(now))),
		store.WithBatchSize(cfg.FlushBatchSize),
		store.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	var history *database.HistoryDB
	if cfg.SaveToDB {
		history, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer history.Close()
		logger.Info("history database opened", "path", history.Path())

		if cfg.SkipRecent > 0 {
			cfg.Targets, err = dropRecent(ctx, history, cfg.Targets, cfg.SkipRecent, logger)
			if err != nil {
				return err
			}
			if len(cfg.Targets) == 0 {
				logger.Warn("every target was crawled recently; nothing to do", "window", cfg.SkipRecent)
				return nil
			}
		}
	}

	var robots *crawler.RobotsGate
	if cfg.RespectRobots {
		client, err := fetch.New(
			fetch.WithUserAgent(userAgentOrDefault(cfg.UserAgent)),
			fetch.WithTimeout(cfg.Timeout),
		)
		if err != nil {
			return err
		}
		defer client.Close()
		robots = crawler.NewRobotsGate(client, userAgentOrDefault(cfg.UserAgent))
	}

	eg := newEgress(cfg, logger)
	defer eg.close()

	progress := report.NewTextWriter(errOut, report.WithVerbose(cfg.Verbose))
	base := browser.LaunchOptions{
		UserAgent:         cfg.UserAgent,
		Headless:          cfg.Headless,
		BlockResources:    cfg.BlockResources,
		Headers:           cfg.Headers,
		NavigationTimeout: cfg.Timeout,
	}

	factory := func(i int) *crawler.Controller {
		acq := &workerAcquirer{
			egress: eg,
			index:  i,
			build: func(pool *proxy.Pool) *acquire.Pipeline {
				return acquire.New(launcher,
					acquire.WithPool(pool),
					acquire.WithLaunchOptions(base),
					acquire.WithCookie(cfg.Cookie),
					acquire.WithAttempts(cfg.Attempts),
					acquire.WithLogger(logger),
				)
			},
		}
		opts := []crawler.Option{
			crawler.WithStore(st),
			crawler.WithRobots(robots),
			crawler.WithProgress(progress),
			crawler.WithPrepare(eg.prepare),
			crawler.WithLogger(logger),
		}
		if history != nil {
			opts = append(opts, crawler.WithHistory(history))
		}
		return crawler.New(registry, acq, opts...)
	}

	batchOpts := []crawler.BatchOption{
		crawler.WithConcurrency(cfg.Concurrency),
		crawler.WithLimits(cfg.MaxDepth, cfg.MaxPages),
		crawler.WithBatchLogger(logger),
	}
	if cfg.ResumeFile != "" {
		resumeFile := cfg.ResumeFile
		batchOpts = append(batchOpts, crawler.WithSessionSetup(func(s *model.CrawlSession) error {
			n, err := store.Resume(s, resumeFile)
			if err != nil {
				return fmt.Errorf("resume from %s: %w", resumeFile, err)
			}
			logger.Info("session resumed", "run_id", s.ID, "seeded", n)
			return nil
		}))
	}

	sessions, runErr := crawler.NewBatch(factory, batchOpts...).Run(ctx, cfg.Targets)

	if err := writeSummaries(cfg, out, sessions, st.OutputPath()); err != nil {
		logger.Error("summary not written", "error", err)
	}

	if runErr != nil {
		if crawler.IsAborted(runErr) {
			return fmt.Errorf("crawl interrupted, partial results saved to %s: %w", st.OutputPath(), runErr)
		}
		return runErr
	}
	if failed := countFailed(sessions); failed > 0 {
		return fmt.Errorf("%w: %d of %d sessions", crawler.ErrSessionFailed, failed, len(sessions))
	}
	return nil
}

// writeSummaries prints the final summary of every started session in
// the configured format.
func writeSummaries(cfg *config.Config, out io.Writer, sessions []*model.CrawlSession, outputPath string) (err error) {
	summaries := make([]*report.Summary, 0, len(sessions))
	for _, s := range sessions {
		if s != nil {
			summaries = append(summaries, report.NewSummary(s, outputPath))
		}
	}
	if len(summaries) == 0 {
		return nil
	}

	var w report.Writer
	if cfg.ReportFile != "" {
		f, closeFn, ferr := createReportFile(cfg.ReportFile)
		if ferr != nil {
			return ferr
		}
		defer func() {
			if cerr := closeFn(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		fileWriter, werr := summaryWriter(cfg.ReportFormat, f, cfg.Verbose)
		if werr != nil {
			return werr
		}
		// The terminal keeps a text summary while the file gets the
		// requested format.
		w = report.NewMultiWriter(report.NewTextWriter(out, report.WithVerbose(cfg.Verbose)), fileWriter)
	} else {
		w, err = summaryWriter(cfg.ReportFormat, out, cfg.Verbose)
		if err != nil {
			return err
		}
	}
	if len(summaries) == 1 {
		_, err = w.Write(summaries[0])
		return err
	}
	_, err = w.WriteAll(summaries)
	return err
}

// summaryWriter returns the report writer for format.
func summaryWriter(format string, out io.Writer, verbose bool) (report.Writer, error) {
	switch format {
	case config.ReportText, "":
		return report.NewTextWriter(out, report.WithVerbose(verbose)), nil
	case config.ReportJSON:
		return report.NewJSONWriter(out, report.WithPrettyPrint()), nil
	case config.ReportMarkdown:
		return report.NewMarkdownWriter(out), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownReportFormat, format)
	}
}

// createReportFile creates path and its parent directories with owner-only
// permissions.
func createReportFile(path string) (*os.File, func() error, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // user-chosen report path
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, f.Close, nil
}

func countFailed(sessions []*model.CrawlSession) int {
	n := 0
	for _, s := range sessions {
		if s != nil && s.State == model.StateFailed {
			n++
		}
	}
	return n
}

func userAgentOrDefault(ua string) string {
	if ua != "" {
		return ua
	}
	return browser.DefaultUserAgent
}

// egress owns the shared proxy pool and the optional Tor daemon. The pool
// is filled once, by the first session that reaches its Init state.
type egress struct {
	cfg    *config.Config
	pool   *proxy.Pool
	tor    *proxy.EmbeddedTor
	logger *slog.Logger

	once sync.Once
	err  error
}

func newEgress(cfg *config.Config, logger *slog.Logger) *egress {
	prober := proxy.NewHTTPProber(
		proxy.WithProbeURL(cfg.ProbeURL),
		proxy.WithProbeTimeout(cfg.ProbeTimeout),
	)
	return &egress{
		cfg: cfg,
		pool: proxy.NewPool(
			proxy.WithProber(prober),
			proxy.WithMaxHealthy(cfg.MaxHealthyProxies),
			proxy.WithLogger(logger),
		),
		logger: logger,
	}
}

// prepare fills the pool. Only Tor startup failures are returned; a
// proxy list that cannot be fetched leaves the crawl in no-proxy mode.
func (e *egress) prepare(ctx context.Context) error {
	e.once.Do(func() {
		e.err = e.initialize(ctx)
	})
	return e.err
}

func (e *egress) initialize(ctx context.Context) error {
	if e.cfg.UseProxies {
		client, err := fetch.New(fetch.WithTimeout(e.cfg.ProbeTimeout))
		if err != nil {
			return err
		}
		defer client.Close()

		candidates, err := proxy.FetchCandidates(ctx, client.HTTPClient(), e.cfg.ProxySources)
		if err != nil {
			e.logger.Warn("proxy lists unavailable, continuing without proxy", "error", err)
		} else {
			e.logger.Info("probing proxies", "candidates", len(candidates))
			e.pool.Initialize(ctx, candidates)
		}
	}

	if e.cfg.UseTor {
		e.tor = proxy.NewEmbeddedTor(proxy.WithStartupTimeout(e.cfg.TorStartupTimeout))
		if err := e.tor.Start(ctx); err != nil {
			return fmt.Errorf("failed to start embedded Tor: %w", err)
		}
		ep, err := e.tor.Endpoint()
		if err != nil {
			return err
		}
		e.pool.Add(ep)
		e.logger.Info("embedded Tor daemon started", "proxy", ep.String())
	}
	return nil
}

func (e *egress) close() {
	if e.tor == nil {
		return
	}
	if err := e.tor.Stop(); err != nil {
		e.logger.Error("failed to stop embedded Tor", "error", err)
	}
}

// workerAcquirer builds its acquisition pipeline on first use, after the
// egress pool is ready, over a fork of the pool offset by the worker index.
type workerAcquirer struct {
	egress *egress
	index  int
	build  func(pool *proxy.Pool) *acquire.Pipeline

	once     sync.Once
	pipeline *acquire.Pipeline
}

func (w *workerAcquirer) Acquire(ctx context.Context, session *model.CrawlSession, rawURL string) (*acquire.Result, error) {
	w.once.Do(func() {
		w.pipeline = w.build(w.egress.pool.Fork(w.index))
		w.egress.logger.Debug("acquisition pipeline ready",
			"worker", w.index,
			"strategies", w.pipeline.StrategyNames(),
		)
	})
	return w.pipeline.Acquire(ctx, session, rawURL)
}

var _ crawler.Acquirer = (*workerAcquirer)(nil)

// dropRecent removes the targets the history database saw within window.
func dropRecent(ctx context.Context, history *database.HistoryDB, targets []string, window time.Duration, logger *slog.Logger) ([]string, error) {
	kept := make([]string, 0, len(targets))
	for _, target := range targets {
		recent, err := history.HasRecentSession(ctx, target, window)
		if err != nil {
			return nil, fmt.Errorf("failed to check crawl history: %w", err)
		}
		if recent {
			logger.Info("skipping recently crawled target", "url", target, "window", window)
			continue
		}
		kept = append(kept, target)
	}
	return kept, nil
}
