package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and provide specific
// information about what is wrong with the configuration.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages. Errors that need the offending value wrap the
// sentinel with fmt.Errorf.
var (
	// ErrInvalidSeedURL is returned when the seed URL is missing, unparsable,
	// or not an absolute http(s) URL.
	ErrInvalidSeedURL = errors.New("invalid seed url: must be an absolute http or https URL")

	// ErrInvalidMaxPages is returned when max pages is less than one.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be at least 1")

	// ErrInvalidMaxDepth is returned when max depth is negative.
	// Depth 0 means only the seed page is captured.
	ErrInvalidMaxDepth = errors.New("invalid max depth: must be non-negative")

	// ErrInvalidMaxSections is returned when max sections per page is negative.
	ErrInvalidMaxSections = errors.New("invalid max sections per page: must be non-negative")

	// ErrInvalidMaxScreenshots is returned when the total screenshot budget is less than one.
	ErrInvalidMaxScreenshots = errors.New("invalid max total screenshots: must be at least 1")

	// ErrInvalidMaxAttempts is returned when the capture attempts ceiling is
	// negative or smaller than the screenshot budget.
	ErrInvalidMaxAttempts = errors.New("invalid max capture attempts: must be 0 (auto) or at least max total screenshots")

	// ErrInvalidViewport is returned when either viewport dimension is not positive.
	ErrInvalidViewport = errors.New("invalid viewport: width and height must be positive")

	// ErrInvalidTimeout is returned when a navigation, quiescence or analysis
	// timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidThreshold is returned when the dedup similarity threshold is negative.
	ErrInvalidThreshold = errors.New("invalid dedup similarity threshold: must be non-negative")

	// ErrInvalidConcurrency is returned when a worker count is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidFailureLimit is returned when max consecutive failures is less than one.
	ErrInvalidFailureLimit = errors.New("invalid max consecutive failures: must be at least 1")

	// ErrInvalidPattern is returned when an include or exclude pattern is not a valid regular expression.
	ErrInvalidPattern = errors.New("invalid path pattern")

	// ErrInvalidImageBudget is returned when the image dimension or byte budget is not positive.
	ErrInvalidImageBudget = errors.New("invalid image budget: dimension and bytes must be positive")

	// ErrInvalidRetry is returned when retry counts or backoff values are negative,
	// or the backoff factor is below 1.
	ErrInvalidRetry = errors.New("invalid retry settings: counts and delays must be non-negative and factor at least 1")

	// ErrInvalidReportFormat is returned when the report format is unknown.
	ErrInvalidReportFormat = errors.New("invalid report format: must be json, markdown or simple")

	// ErrMissingAPIKey is returned when analysis is enabled but no API key was found.
	ErrMissingAPIKey = errors.New("missing API key: set UXAUDIT_API_KEY, GEMINI_API_KEY or GOOGLE_API_KEY, or use --no-analysis")
)
