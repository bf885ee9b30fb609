package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/uxaudit/internal/config"
	"github.com/nao1215/uxaudit/internal/database"
	"github.com/nao1215/uxaudit/internal/imageprep"
	"github.com/nao1215/uxaudit/internal/log"
	"github.com/nao1215/uxaudit/internal/model"
	"github.com/nao1215/uxaudit/internal/pipeline"
	"github.com/nao1215/uxaudit/internal/render"
	"github.com/nao1215/uxaudit/internal/report"
)

// errInvalidViewport is returned when --viewport is not WIDTHxHEIGHT.
var errInvalidViewport = errors.New("viewport must be WIDTHxHEIGHT, e.g. 1440x900")

// errInvalidHeader is returned when --header is not "Name: value".
var errInvalidHeader = errors.New(`header must be "Name: value"`)

// NewAnalyzeCmd creates the analyze command.
func NewAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <url>...",
		Short: "Crawl a website and audit its UX from screenshots",
		Long: `Analyze crawls a website breadth-first from the seed URL, captures
full-page and section screenshots, drops near-duplicate captures, and
sends the remaining screenshots to a Gemini vision model for UX review.

Budgets default to a single page so that a first run stays cheap.
Raise --max-pages and --max-screenshots to audit more of a site.

The API key is read from UXAUDIT_API_KEY, GEMINI_API_KEY or GOOGLE_API_KEY.

Examples:
  # Audit the landing page only
  uxaudit analyze https://example.com

  # Audit up to 10 pages and 30 screenshots, write Markdown
  uxaudit analyze --max-pages 10 --max-screenshots 30 --format markdown https://example.com

  # Capture only, no model calls
  uxaudit analyze --no-analysis https://example.com

  # Use an already running Chrome
  uxaudit analyze --browser-url ws://127.0.0.1:9222/devtools/browser/... https://example.com

  # Audit several sites, two at a time
  uxaudit analyze --parallel 2 https://example.com https://example.org`,
		Args: cobra.MinimumNArgs(1),
		RunE: runAnalyzeCmd,
	}

	// Crawl budget flags
	cmd.Flags().Int("max-pages", config.DefaultMaxPages,
		"Maximum number of pages to capture")
	cmd.Flags().Int("max-depth", config.DefaultMaxDepth,
		"Maximum link distance from the seed page")
	cmd.Flags().Int("max-sections", config.DefaultMaxSectionsPerPage,
		"Maximum section captures per page")
	cmd.Flags().Int("max-screenshots", config.DefaultMaxTotalScreenshots,
		"Maximum accepted screenshots per run")
	cmd.Flags().Int("max-capture-attempts", 0,
		"Maximum capture attempts per run (0 = 3 x max screenshots)")

	// Scope flags
	cmd.Flags().Bool("same-domain-only", true,
		"Only follow links on the seed host")
	cmd.Flags().StringSlice("allow-subdomain", nil,
		"Additional in-scope host (exact or *.suffix), repeatable")
	cmd.Flags().StringSlice("include", nil,
		"Only crawl paths matching this regular expression, repeatable")
	cmd.Flags().StringSlice("exclude", nil,
		"Skip paths matching this regular expression, repeatable")
	cmd.Flags().StringSlice("exclude-param", nil,
		"Additional query parameter to strip during normalization, repeatable")
	cmd.Flags().Bool("respect-robots", false,
		"Skip URLs disallowed by robots.txt")

	// Browser flags
	cmd.Flags().String("viewport", fmt.Sprintf("%dx%d", config.DefaultViewportWidth, config.DefaultViewportHeight),
		"Browser viewport as WIDTHxHEIGHT")
	cmd.Flags().String("user-agent", "",
		"Browser user agent (default: Chrome's own)")
	cmd.Flags().Duration("nav-timeout", config.DefaultNavigationTimeout,
		"Timeout for a single page load")
	cmd.Flags().Duration("quiescence-timeout", config.DefaultQuiescenceTimeout,
		"Maximum wait for network idle after load")
	cmd.Flags().String("browser-url", "",
		"DevTools URL of a running Chrome (default: launch one)")
	cmd.Flags().Bool("headful", false,
		"Show the launched browser window")
	cmd.Flags().Bool("stealth", true,
		"Hide common headless browser fingerprints")
	cmd.Flags().String("cookie", "",
		`Cookie header sent to the audited site ("name=value; ...")`)
	cmd.Flags().StringArray("header", nil,
		`Extra request header as "Name: value", repeatable`)

	// Capture flags
	cmd.Flags().Int("dedup-threshold", config.DefaultDedupThreshold,
		"Hamming distance under which two captures are duplicates")
	cmd.Flags().Int("workers", config.DefaultWorkerConcurrency,
		"Number of concurrent browser tabs")
	cmd.Flags().Int("max-failures", config.DefaultMaxConsecutiveFailures,
		"Consecutive page failures that abort the crawl")
	cmd.Flags().Int("capture-retries", config.DefaultCaptureRetries,
		"Retries for transient navigation failures")
	cmd.Flags().Duration("capture-backoff", config.DefaultCaptureBackoff,
		"Linear backoff unit between capture retries")
	cmd.Flags().Duration("politeness", 0,
		"Minimum interval between navigations to one host")

	// Analysis flags
	cmd.Flags().Bool("no-analysis", false,
		"Capture screenshots without calling the model")
	cmd.Flags().String("model", config.DefaultModel,
		"Model name or alias (flash, pro)")
	cmd.Flags().Duration("analysis-timeout", config.DefaultAnalysisTimeout,
		"Timeout for a single model request")
	cmd.Flags().Int("analysis-max-retries", config.DefaultAnalysisMaxRetries,
		"Retries for rate-limited or failed model requests")
	cmd.Flags().Duration("analysis-backoff-initial", config.DefaultAnalysisBackoffInitial,
		"Initial backoff between model retries")
	cmd.Flags().Float64("analysis-backoff-factor", config.DefaultAnalysisBackoffFactor,
		"Backoff multiplier between model retries")
	cmd.Flags().Int("analysis-concurrency", config.DefaultAnalysisConcurrency,
		"Number of model requests in flight")
	cmd.Flags().Int("max-image-dimension", config.DefaultMaxImageDimension,
		"Longest side of an image sent to the model")
	cmd.Flags().Int("max-image-bytes", config.DefaultMaxImageBytes,
		"Target encoded size of an image sent to the model")

	// Output flags
	cmd.Flags().String("out", config.DefaultOutputDir,
		"Directory where run directories are created")
	cmd.Flags().String("format", config.DefaultReportFormat,
		"Report format: simple, json or markdown")
	cmd.Flags().StringP("output", "o", "",
		"Write the report to this file instead of stdout")
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .uxaudit in current or home directory)")
	cmd.Flags().Bool("no-history", false,
		"Do not record the run in the history database")
	cmd.Flags().Int("parallel", 1,
		"Number of seeds audited concurrently")

	return cmd
}

// runAnalyzeCmd executes the analyze command.
func runAnalyzeCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.AnalysisEnabled {
		cfg.APIKey = config.APIKeyFromEnv()
	}

	// Every seed is validated before the browser starts
	for _, seed := range args {
		if err := cfg.ForSeed(seed).Validate(); err != nil {
			return fmt.Errorf("configuration error for %s: %w", seed, err)
		}
	}

	parallel, err := cmd.Flags().GetInt("parallel")
	if err != nil {
		return err
	}

	logger := log.NewSecureLogger(cmd.ErrOrStderr(), cfg.Verbose)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	browser := render.NewRodBrowser(
		render.WithRemoteURL(cfg.BrowserURL),
		render.WithHeadless(!cfg.Headful),
		render.WithStealth(cfg.Stealth),
		render.WithLogger(logger),
	)
	if err := browser.Start(ctx); err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer func() {
		if err := browser.Close(); err != nil {
			logger.Warn("failed to close browser", "error", err)
		}
	}()

	deps := pipeline.Deps{
		Browser: browser,
		Cache:   imageprep.NewCache(filepath.Join(config.XDGCacheDir(), "prepared"), logger),
		Logger:  logger,
	}

	if cfg.SaveToDB {
		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open history database: %w", err)
		}
		defer db.Close()
		deps.History = db
	}

	return runAudits(ctx, cmd, cfg, args, parallel, deps)
}

// runAudits audits every seed, writes the reports and turns failed runs
// into a non-zero exit.
func runAudits(ctx context.Context, cmd *cobra.Command, cfg *config.Config, seeds []string, parallel int, deps pipeline.Deps) error {
	bp := pipeline.NewBatchProcessor(
		func(seed string) (*pipeline.Pipeline, *pipeline.Run, error) {
			return pipeline.NewAudit(cfg.ForSeed(seed), seed, deps)
		},
		pipeline.WithConcurrency(parallel),
		pipeline.WithBatchLogger(deps.Logger),
	)

	reports, batchErr := bp.ProcessBatch(ctx, seeds)

	out, closeOut, err := openReportOutput(cmd, cfg.ReportFile)
	if err != nil {
		return err
	}
	defer closeOut()

	w, err := report.New(cfg.ReportFormat, out)
	if err != nil {
		return err
	}

	var errs []error
	for _, r := range reports {
		if r.RunID == "" {
			errs = append(errs, fmt.Errorf("audit of %s failed: %s", r.SeedURL, r.Error))
			continue
		}
		if _, err := w.Write(r); err != nil {
			errs = append(errs, fmt.Errorf("failed to write report for %s: %w", r.SeedURL, err))
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Artifacts for %s written to %s\n",
			r.SeedURL, filepath.Join(cfg.OutputDir, r.RunID))

		if r.Status == model.RunSystemicFailure {
			errs = append(errs, fmt.Errorf("audit of %s aborted: %s", r.SeedURL, r.Error))
		}
	}

	if batchErr != nil {
		errs = append(errs, fmt.Errorf("audit cancelled: %w", batchErr))
	}
	return errors.Join(errs...)
}

// openReportOutput returns the report destination: the file at path, or
// stdout when path is empty.
func openReportOutput(cmd *cobra.Command, path string) (io.Writer, func(), error) {
	if path == "" {
		return cmd.OutOrStdout(), func() {}, nil
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Reports may contain session-specific URLs, so only the owner can read them
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // User-provided output path is intentional
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// buildConfig creates a Config from cobra command flags.
// Seed URLs are applied per run with Config.ForSeed.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	f := cmd.Flags()

	ints := []struct {
		name string
		dst  *int
	}{
		{"max-pages", &cfg.MaxPages},
		{"max-depth", &cfg.MaxDepth},
		{"max-sections", &cfg.MaxSectionsPerPage},
		{"max-screenshots", &cfg.MaxTotalScreenshots},
		{"max-capture-attempts", &cfg.MaxCaptureAttempts},
		{"dedup-threshold", &cfg.DedupSimilarityThreshold},
		{"workers", &cfg.WorkerConcurrency},
		{"max-failures", &cfg.MaxConsecutiveFailures},
		{"capture-retries", &cfg.CaptureRetries},
		{"analysis-max-retries", &cfg.AnalysisMaxRetries},
		{"analysis-concurrency", &cfg.AnalysisConcurrency},
		{"max-image-dimension", &cfg.MaxImageDimension},
		{"max-image-bytes", &cfg.MaxImageBytes},
	}
	for _, fl := range ints {
		v, err := f.GetInt(fl.name)
		if err != nil {
			return nil, err
		}
		*fl.dst = v
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"nav-timeout", &cfg.NavigationTimeout},
		{"quiescence-timeout", &cfg.QuiescenceTimeout},
		{"capture-backoff", &cfg.CaptureBackoff},
		{"politeness", &cfg.PolitenessInterval},
		{"analysis-timeout", &cfg.AnalysisTimeout},
		{"analysis-backoff-initial", &cfg.AnalysisBackoffInitial},
	}
	for _, fl := range durations {
		v, err := f.GetDuration(fl.name)
		if err != nil {
			return nil, err
		}
		*fl.dst = v
	}

	strs := []struct {
		name string
		dst  *string
	}{
		{"user-agent", &cfg.UserAgent},
		{"browser-url", &cfg.BrowserURL},
		{"cookie", &cfg.Cookie},
		{"model", &cfg.Model},
		{"out", &cfg.OutputDir},
		{"format", &cfg.ReportFormat},
		{"output", &cfg.ReportFile},
		{"config", &cfg.ConfigFilePath},
	}
	for _, fl := range strs {
		v, err := f.GetString(fl.name)
		if err != nil {
			return nil, err
		}
		*fl.dst = v
	}

	var err error
	if cfg.SameDomainOnly, err = f.GetBool("same-domain-only"); err != nil {
		return nil, err
	}
	if cfg.RespectRobots, err = f.GetBool("respect-robots"); err != nil {
		return nil, err
	}
	if cfg.Headful, err = f.GetBool("headful"); err != nil {
		return nil, err
	}
	if cfg.Stealth, err = f.GetBool("stealth"); err != nil {
		return nil, err
	}
	noAnalysis, err := f.GetBool("no-analysis")
	if err != nil {
		return nil, err
	}
	cfg.AnalysisEnabled = !noAnalysis
	noHistory, err := f.GetBool("no-history")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noHistory
	cfg.Verbose = getVerboseFlag(cmd)

	if cfg.AnalysisBackoffFactor, err = f.GetFloat64("analysis-backoff-factor"); err != nil {
		return nil, err
	}

	if cfg.AllowedSubdomains, err = f.GetStringSlice("allow-subdomain"); err != nil {
		return nil, err
	}
	if cfg.IncludePathPatterns, err = f.GetStringSlice("include"); err != nil {
		return nil, err
	}
	if cfg.ExcludePathPatterns, err = f.GetStringSlice("exclude"); err != nil {
		return nil, err
	}
	extraParams, err := f.GetStringSlice("exclude-param")
	if err != nil {
		return nil, err
	}
	cfg.ExcludeQueryParams = append(cfg.ExcludeQueryParams, extraParams...)

	viewport, err := f.GetString("viewport")
	if err != nil {
		return nil, err
	}
	if cfg.Viewport, err = parseViewport(viewport); err != nil {
		return nil, err
	}

	headers, err := f.GetStringArray("header")
	if err != nil {
		return nil, err
	}
	if cfg.Headers, err = parseHeaders(headers); err != nil {
		return nil, err
	}

	// Load site-specific configurations from config file
	// If user explicitly specified a config file path, error if not found.
	// If no path specified, silently use empty config if no file found.
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)

	if configPath != "" {
		cfg.SiteConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	} else if explicitConfigPath {
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}

	return cfg, nil
}

// parseViewport parses "WIDTHxHEIGHT".
func parseViewport(s string) (model.Viewport, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return model.Viewport{}, fmt.Errorf("%w: %q", errInvalidViewport, s)
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return model.Viewport{}, fmt.Errorf("%w: %q", errInvalidViewport, s)
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return model.Viewport{}, fmt.Errorf("%w: %q", errInvalidViewport, s)
	}
	return model.Viewport{Width: width, Height: height}, nil
}

// parseHeaders parses repeated "Name: value" flags. Nil when none are given.
func parseHeaders(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(values))
	for _, v := range values {
		name, value, ok := strings.Cut(v, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: %q", errInvalidHeader, v)
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers, nil
}
