package pipeline

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/uxaudit/internal/analysis"
	"github.com/nao1215/uxaudit/internal/capture"
	"github.com/nao1215/uxaudit/internal/config"
	"github.com/nao1215/uxaudit/internal/crawler"
	"github.com/nao1215/uxaudit/internal/database"
	"github.com/nao1215/uxaudit/internal/dedup"
	"github.com/nao1215/uxaudit/internal/imageprep"
	"github.com/nao1215/uxaudit/internal/render"
)

// Deps are the collaborators shared by the audits of one process.
type Deps struct {
	// Browser renders pages. It is shared by concurrent audits.
	Browser render.Browser

	// Generator answers analysis prompts. When nil and analysis is enabled,
	// a Gemini client is built from the configuration.
	Generator analysis.Generator

	// History stores finished runs. Nil disables the history step.
	History *database.HistoryDB

	// Cache memoizes image preparation across audits. Nil uses a
	// memory-only cache per audit.
	Cache *imageprep.Cache

	// Logger is passed to every component.
	Logger *slog.Logger

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// NewGenerator builds the Gemini client described by cfg.
func NewGenerator(cfg *config.Config, logger *slog.Logger) *analysis.GeminiClient {
	return analysis.NewGeminiClient(cfg.APIKey, config.ResolveModel(cfg.Model),
		analysis.WithBaseURL(cfg.APIBaseURL),
		analysis.WithTimeout(cfg.AnalysisTimeout),
		analysis.WithRetry(analysis.RetryConfig{
			MaxRetries: cfg.AnalysisMaxRetries,
			Initial:    cfg.AnalysisBackoffInitial,
			Factor:     cfg.AnalysisBackoffFactor,
			Jitter:     analysis.DefaultRetryConfig().Jitter,
		}),
		analysis.WithLogger(logger),
	)
}

// NewAudit creates the run directory for seedURL and wires a pipeline of
// crawl, analysis, report and history steps according to cfg.
func NewAudit(cfg *config.Config, seedURL string, deps Deps) (*Pipeline, *Run, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	normalizer := crawler.NewNormalizer(cfg.ExcludeQueryParams)
	seed, err := normalizer.Normalize(seedURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid seed url %q: %w", seedURL, err)
	}

	scopeOpts := crawler.ScopeOptions{
		SameDomainOnly:    cfg.SameDomainOnly,
		AllowedSubdomains: cfg.AllowedSubdomains,
		IncludePatterns:   cfg.IncludePathPatterns,
		ExcludePatterns:   cfg.ExcludePathPatterns,
	}
	if cfg.RespectRobots {
		scopeOpts.Robots = crawler.NewRobotsAgent(cfg.UserAgent, crawler.WithRobotsLogger(logger))
	}
	scope, err := crawler.NewScope(seed, scopeOpts)
	if err != nil {
		return nil, nil, err
	}

	run, err := NewRun(cfg.OutputDir, seed, now())
	if err != nil {
		return nil, nil, err
	}
	logger = logger.With("run", run.ID)

	capturer := capture.New(deps.Browser,
		capture.WithOpenOptions(render.OpenOptions{
			Viewport:  cfg.Viewport,
			UserAgent: cfg.UserAgent,
			Timeout:   cfg.NavigationTimeout,
			Cookie:    cfg.Cookie,
			Headers:   cfg.Headers,
		}),
		capture.WithQuiescenceTimeout(cfg.QuiescenceTimeout),
		capture.WithPoliteness(cfg.PolitenessInterval),
		capture.WithObserver(run.Metrics.ObserveCapture),
		capture.WithLogger(logger),
	)

	store := NewArtifactStore(run, deps.Cache, imageprep.Options{
		MaxDimension: cfg.MaxImageDimension,
		MaxBytes:     cfg.MaxImageBytes,
	}, logger)

	scheduler := crawler.NewScheduler(
		capturer,
		crawler.NewExtractor(normalizer, scope, cfg.Viewport),
		dedup.NewFilter(cfg.DedupSimilarityThreshold),
		run.Ledger,
		crawler.WithLimits(crawler.Limits{
			MaxPages:           cfg.MaxPages,
			MaxSectionsPerPage: cfg.MaxSectionsPerPage,
			MaxScreenshots:     cfg.MaxTotalScreenshots,
			MaxAttempts:        cfg.EffectiveMaxCaptureAttempts(),
		}),
		crawler.WithMaxDepth(cfg.MaxDepth),
		crawler.WithWorkers(cfg.WorkerConcurrency),
		crawler.WithMaxConsecutiveFailures(cfg.MaxConsecutiveFailures),
		crawler.WithRetries(cfg.CaptureRetries, cfg.CaptureBackoff),
		crawler.WithSink(store.Store),
		crawler.WithLogger(logger),
	)

	p := New(WithLogger(logger))
	p.AddStep(NewCrawlStep(scheduler, logger))

	if cfg.AnalysisEnabled {
		gen := deps.Generator
		modelName := config.ResolveModel(cfg.Model)
		if gen == nil {
			gen = NewGenerator(cfg, logger)
		}
		analyzer := analysis.NewAnalyzer(gen, run.Ledger,
			analysis.WithConcurrency(cfg.AnalysisConcurrency),
			analysis.WithObserver(run.Metrics.ObserveAnalysis),
			analysis.WithAnalyzerLogger(logger),
		)
		p.AddStep(NewAnalysisStep(analyzer, modelName))
	}

	p.AddFinalizer(NewReportStep(now))
	if deps.History != nil {
		p.AddFinalizer(NewHistoryStep(deps.History))
	}
	return p, run, nil
}
