package config

import (
	"fmt"
	"maps"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/uxaudit/internal/model"
)

// Default configuration values.
// Budgets default to a single-page audit so that an accidental run never
// sends a whole site to a paid model. Larger audits opt in via flags.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "uxaudit"

	// DefaultMaxPages of 1 audits only the seed page.
	DefaultMaxPages = 1

	// DefaultMaxDepth bounds link distance from the seed when max pages is raised.
	// Two hops reach almost every page linked from primary navigation.
	DefaultMaxDepth = 2

	// DefaultMaxSectionsPerPage caps section captures so one long landing page
	// cannot consume the whole screenshot budget.
	DefaultMaxSectionsPerPage = 8

	// DefaultMaxTotalScreenshots is the ceiling on accepted artifacts per run.
	DefaultMaxTotalScreenshots = 1

	// CaptureAttemptsMultiplier derives the capture attempts ceiling when it is
	// not set explicitly: attempts = multiplier * max total screenshots.
	CaptureAttemptsMultiplier = 3

	// DefaultViewportWidth and DefaultViewportHeight match a common laptop display.
	DefaultViewportWidth  = 1440
	DefaultViewportHeight = 900

	// DefaultNavigationTimeout bounds a single page load.
	DefaultNavigationTimeout = 45 * time.Second

	// DefaultQuiescenceTimeout bounds the wait for network idle after load.
	// Pages with long-polling never go idle, so this must stay short.
	DefaultQuiescenceTimeout = 10 * time.Second

	// DefaultDedupThreshold is a Hamming distance on a 256-bit difference hash.
	// Captures closer than this to an accepted capture are duplicates.
	DefaultDedupThreshold = 10

	// DefaultWorkerConcurrency is the number of browser tabs capturing in parallel.
	DefaultWorkerConcurrency = 2

	// DefaultMaxConsecutiveFailures stops runs against a site that is down.
	DefaultMaxConsecutiveFailures = 3

	// DefaultCaptureRetries retries transient navigation failures once.
	DefaultCaptureRetries = 1

	// DefaultCaptureBackoff is the linear backoff unit between capture retries.
	DefaultCaptureBackoff = 1 * time.Second

	// DefaultOutputDir is where run directories are created.
	DefaultOutputDir = "runs"

	// DefaultModel is the alias resolved when no model is given.
	DefaultModel = "flash"

	// DefaultAnalysisTimeout bounds a single model request.
	DefaultAnalysisTimeout = 60 * time.Second

	// DefaultAnalysisMaxRetries is the number of retries after the first attempt.
	DefaultAnalysisMaxRetries = 3

	// DefaultAnalysisBackoffInitial and DefaultAnalysisBackoffFactor define the
	// exponential backoff between model retries.
	DefaultAnalysisBackoffInitial = 1 * time.Second
	DefaultAnalysisBackoffFactor  = 2.0

	// MaxAnalysisBackoff caps any single retry delay.
	MaxAnalysisBackoff = 30 * time.Second

	// DefaultAnalysisConcurrency is the number of model requests in flight.
	DefaultAnalysisConcurrency = 2

	// DefaultMaxImageDimension is the longest side of an analysis image.
	DefaultMaxImageDimension = 1600

	// DefaultMaxImageBytes is the target encoded size of an analysis image.
	DefaultMaxImageBytes = 2_000_000

	// DefaultReportFormat is the format written to stdout.
	DefaultReportFormat = "simple"
)

// Report formats accepted by --format.
const (
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
	FormatSimple   = "simple"
)

// modelAliases maps short names to full Gemini model names.
var modelAliases = map[string]string{
	"flash": "gemini-3-flash-preview",
	"pro":   "gemini-3-pro-preview",
}

// defaultExcludeQueryParams are tracking parameters stripped during URL
// normalization. Entries ending in "*" are prefix matches.
var defaultExcludeQueryParams = []string{"utm_*", "gclid", "fbclid", "msclkid", "mc_cid", "mc_eid", "_ga", "ref"}

// apiKeyEnvVars are checked in order by APIKeyFromEnv.
var apiKeyEnvVars = []string{"UXAUDIT_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"}

// Config holds all configuration options for a uxaudit run.
// This struct is populated from defaults, the site configuration file and
// CLI flags, and passed through the application rather than kept as global state.
//
// Design decision: We use a single flat struct instead of nested structs
// (e.g., CrawlConfig, AnalysisConfig) for simplicity. Components that need a
// subset receive it through their own functional options.
type Config struct {
	// SeedURL is the starting page of the crawl.
	SeedURL string

	// MaxPages is the ceiling on page targets admitted for capture.
	MaxPages int

	// MaxDepth is the maximum link distance from the seed.
	MaxDepth int

	// MaxSectionsPerPage caps section targets per page. Zero disables sections.
	MaxSectionsPerPage int

	// MaxTotalScreenshots caps accepted artifacts (pages and sections).
	MaxTotalScreenshots int

	// MaxCaptureAttempts bounds total capture work including duplicates and
	// failures. Zero derives it from MaxTotalScreenshots.
	MaxCaptureAttempts int

	// SameDomainOnly restricts the crawl to the seed host and AllowedSubdomains.
	SameDomainOnly bool

	// AllowedSubdomains are extra hosts treated as in scope. Entries may be
	// exact hosts ("docs.example.com") or wildcards ("*.example.com").
	AllowedSubdomains []string

	// IncludePathPatterns are regular expressions; when non-empty, a URL path
	// must match at least one of them.
	IncludePathPatterns []string

	// ExcludePathPatterns are regular expressions; a URL path matching any of
	// them is out of scope.
	ExcludePathPatterns []string

	// ExcludeQueryParams are query parameter names removed during
	// normalization. A trailing "*" makes the entry a prefix match.
	ExcludeQueryParams []string

	// Viewport is the browser window used for every capture.
	Viewport model.Viewport

	// UserAgent overrides the browser user agent when non-empty.
	UserAgent string

	// NavigationTimeout bounds each page load.
	NavigationTimeout time.Duration

	// QuiescenceTimeout bounds the wait for network idle. Exceeding it is a
	// warning, not a failure.
	QuiescenceTimeout time.Duration

	// DedupSimilarityThreshold is the fingerprint distance below which a
	// capture is a duplicate of an accepted one.
	DedupSimilarityThreshold int

	// WorkerConcurrency is the number of concurrent capture workers.
	WorkerConcurrency int

	// MaxConsecutiveFailures terminates the run early with a systemic failure.
	MaxConsecutiveFailures int

	// CaptureRetries is the number of retries for transient navigation errors.
	CaptureRetries int

	// CaptureBackoff is the linear backoff unit between capture retries.
	CaptureBackoff time.Duration

	// PolitenessInterval is the minimum delay between navigations to the same
	// host. Zero disables rate limiting.
	PolitenessInterval time.Duration

	// RespectRobots excludes URLs disallowed by robots.txt.
	RespectRobots bool

	// BrowserURL connects to an existing Chrome DevTools endpoint instead of
	// launching a local browser.
	BrowserURL string

	// Headful launches a visible browser window. Useful for debugging.
	Headful bool

	// Stealth applies anti-bot-detection patches to every page.
	Stealth bool

	// Cookie is sent with every navigation ("name=value; name2=value2").
	Cookie string

	// Headers are extra HTTP headers sent with every navigation.
	Headers map[string]string

	// AnalysisEnabled sends accepted images to the vision model.
	AnalysisEnabled bool

	// Model is the vision model name or alias.
	Model string

	// APIKey authenticates the vision model client.
	APIKey string

	// APIBaseURL overrides the model endpoint. Used by tests.
	APIBaseURL string

	// AnalysisTimeout bounds each model request.
	AnalysisTimeout time.Duration

	// AnalysisMaxRetries is the number of retries after the first request.
	AnalysisMaxRetries int

	// AnalysisBackoffInitial is the first retry delay.
	AnalysisBackoffInitial time.Duration

	// AnalysisBackoffFactor multiplies the delay after every retry.
	AnalysisBackoffFactor float64

	// AnalysisConcurrency is the number of model requests in flight.
	AnalysisConcurrency int

	// MaxImageDimension is the longest side of a prepared image.
	MaxImageDimension int

	// MaxImageBytes is the target encoded size of a prepared image.
	MaxImageBytes int

	// OutputDir is the parent directory of run directories.
	OutputDir string

	// ReportFormat selects the stdout report: json, markdown or simple.
	ReportFormat string

	// ReportFile writes the stdout report to a file instead.
	ReportFile string

	// Verbose enables detailed log output using slog.LevelDebug.
	Verbose bool

	// ConfigFilePath is an explicit path to the site configuration file.
	ConfigFilePath string

	// SiteConfigs holds site-specific configurations loaded from the config file.
	SiteConfigs *File

	// DBDir is the directory of the history database.
	DBDir string

	// SaveToDB stores the run in the history database.
	SaveToDB bool
}

// NewConfig creates a new Config with default values.
//
// Design decision: We use a constructor function instead of relying on
// zero values because many defaults are non-zero (e.g., timeouts, budgets).
// This also serves as documentation of what the defaults are.
func NewConfig() *Config {
	return &Config{
		MaxPages:                 DefaultMaxPages,
		MaxDepth:                 DefaultMaxDepth,
		MaxSectionsPerPage:       DefaultMaxSectionsPerPage,
		MaxTotalScreenshots:      DefaultMaxTotalScreenshots,
		SameDomainOnly:           true,
		ExcludeQueryParams:       append([]string(nil), defaultExcludeQueryParams...),
		Viewport:                 model.Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight},
		NavigationTimeout:        DefaultNavigationTimeout,
		QuiescenceTimeout:        DefaultQuiescenceTimeout,
		DedupSimilarityThreshold: DefaultDedupThreshold,
		WorkerConcurrency:        DefaultWorkerConcurrency,
		MaxConsecutiveFailures:   DefaultMaxConsecutiveFailures,
		CaptureRetries:           DefaultCaptureRetries,
		CaptureBackoff:           DefaultCaptureBackoff,
		Stealth:                  true,
		AnalysisEnabled:          true,
		Model:                    DefaultModel,
		AnalysisTimeout:          DefaultAnalysisTimeout,
		AnalysisMaxRetries:       DefaultAnalysisMaxRetries,
		AnalysisBackoffInitial:   DefaultAnalysisBackoffInitial,
		AnalysisBackoffFactor:    DefaultAnalysisBackoffFactor,
		AnalysisConcurrency:      DefaultAnalysisConcurrency,
		MaxImageDimension:        DefaultMaxImageDimension,
		MaxImageBytes:            DefaultMaxImageBytes,
		OutputDir:                DefaultOutputDir,
		ReportFormat:             DefaultReportFormat,
		DBDir:                    XDGDataDir(),
		SaveToDB:                 true,
	}
}

// XDGDataDir returns the XDG data directory for uxaudit.
// On Linux: ~/.local/share/uxaudit
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for uxaudit.
// On Linux: ~/.config/uxaudit
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for uxaudit.
// On Linux: ~/.cache/uxaudit
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// ResolveModel maps an alias ("flash", "pro") to a full model name.
// Unknown names are returned trimmed and unchanged.
func ResolveModel(name string) string {
	normalized := strings.TrimSpace(name)
	if normalized == "" {
		return modelAliases[DefaultModel]
	}
	if full, ok := modelAliases[strings.ToLower(normalized)]; ok {
		return full
	}
	return normalized
}

// IsKnownModel reports whether name is an alias or a full model name that
// the alias table resolves to.
func IsKnownModel(name string) bool {
	n := strings.TrimSpace(name)
	if _, ok := modelAliases[strings.ToLower(n)]; ok {
		return true
	}
	for _, full := range modelAliases {
		if full == n {
			return true
		}
	}
	return false
}

// APIKeyFromEnv returns the first non-empty API key from the environment.
func APIKeyFromEnv() string {
	for _, name := range apiKeyEnvVars {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return ""
}

// EffectiveMaxCaptureAttempts returns the capture attempts ceiling, deriving
// it from the screenshot budget when unset.
func (c *Config) EffectiveMaxCaptureAttempts() int {
	if c.MaxCaptureAttempts > 0 {
		return c.MaxCaptureAttempts
	}
	return CaptureAttemptsMultiplier * c.MaxTotalScreenshots
}

// SeedHost returns the lower-cased host of the seed URL, or "" if unparsable.
func (c *Config) SeedHost() string {
	u, err := url.Parse(c.SeedURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// ApplySiteConfig merges the site configuration for the seed host into c.
// Values already set on c by flags take precedence over the file for scalar
// options; pattern and subdomain lists are appended.
func (c *Config) ApplySiteConfig() {
	if c.SiteConfigs == nil {
		return
	}
	site := c.SiteConfigs.GetSiteConfig(c.SeedHost())

	if c.Cookie == "" {
		c.Cookie = site.Cookie
	}
	if len(site.Headers) > 0 {
		if c.Headers == nil {
			c.Headers = make(map[string]string, len(site.Headers))
		}
		for k, v := range site.Headers {
			if _, ok := c.Headers[k]; !ok {
				c.Headers[k] = v
			}
		}
	}
	if site.MaxDepth > 0 && c.MaxDepth == DefaultMaxDepth {
		c.MaxDepth = site.MaxDepth
	}
	if c.UserAgent == "" {
		c.UserAgent = site.UserAgent
	}
	c.IncludePathPatterns = appendUnique(c.IncludePathPatterns, site.IncludePatterns...)
	c.ExcludePathPatterns = appendUnique(c.ExcludePathPatterns, site.ExcludePatterns...)
	c.AllowedSubdomains = appendUnique(c.AllowedSubdomains, site.AllowedSubdomains...)
}

// ForSeed returns a copy of c for one seed URL with the matching site
// configuration applied. The copy shares no slices or maps with c.
func (c *Config) ForSeed(seedURL string) *Config {
	cp := *c
	cp.SeedURL = seedURL
	cp.AllowedSubdomains = slices.Clone(c.AllowedSubdomains)
	cp.IncludePathPatterns = slices.Clone(c.IncludePathPatterns)
	cp.ExcludePathPatterns = slices.Clone(c.ExcludePathPatterns)
	cp.ExcludeQueryParams = slices.Clone(c.ExcludeQueryParams)
	cp.Headers = maps.Clone(c.Headers)
	cp.ApplySiteConfig()
	return &cp
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		found := false
		for _, d := range dst {
			if d == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}

// Validate checks if the configuration is valid.
// It returns a specific error describing what is invalid.
//
// Design decision: We validate at the config level rather than at each
// point of use to fail fast and provide clear error messages upfront.
// This is called once after CLI parsing, before any browser is started.
//
// We chose to return the first error found rather than collecting all errors
// because fixing one error often makes others irrelevant.
func (c *Config) Validate() error {
	u, err := url.Parse(c.SeedURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrInvalidSeedURL
	}

	if c.MaxPages < 1 {
		return ErrInvalidMaxPages
	}
	if c.MaxDepth < 0 {
		return ErrInvalidMaxDepth
	}
	if c.MaxSectionsPerPage < 0 {
		return ErrInvalidMaxSections
	}
	if c.MaxTotalScreenshots < 1 {
		return ErrInvalidMaxScreenshots
	}
	if c.MaxCaptureAttempts < 0 || (c.MaxCaptureAttempts > 0 && c.MaxCaptureAttempts < c.MaxTotalScreenshots) {
		return ErrInvalidMaxAttempts
	}
	if c.Viewport.Width <= 0 || c.Viewport.Height <= 0 {
		return ErrInvalidViewport
	}
	if c.NavigationTimeout <= 0 || c.QuiescenceTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.DedupSimilarityThreshold < 0 {
		return ErrInvalidThreshold
	}
	if c.WorkerConcurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.MaxConsecutiveFailures < 1 {
		return ErrInvalidFailureLimit
	}
	if c.CaptureRetries < 0 || c.CaptureBackoff < 0 || c.PolitenessInterval < 0 {
		return ErrInvalidRetry
	}

	for _, p := range append(append([]string(nil), c.IncludePathPatterns...), c.ExcludePathPatterns...) {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidPattern, p, err)
		}
	}

	if c.MaxImageDimension <= 0 || c.MaxImageBytes <= 0 {
		return ErrInvalidImageBudget
	}

	switch c.ReportFormat {
	case FormatJSON, FormatMarkdown, FormatSimple:
	default:
		return ErrInvalidReportFormat
	}

	if c.AnalysisEnabled {
		if c.AnalysisTimeout <= 0 {
			return ErrInvalidTimeout
		}
		if c.AnalysisMaxRetries < 0 || c.AnalysisBackoffInitial < 0 || c.AnalysisBackoffFactor < 1 {
			return ErrInvalidRetry
		}
		if c.AnalysisConcurrency <= 0 {
			return ErrInvalidConcurrency
		}
		if c.APIKey == "" {
			return ErrMissingAPIKey
		}
	}

	return nil
}
