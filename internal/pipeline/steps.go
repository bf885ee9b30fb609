package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/nao1215/uxaudit/internal/analysis"
	"github.com/nao1215/uxaudit/internal/config"
	"github.com/nao1215/uxaudit/internal/crawler"
	"github.com/nao1215/uxaudit/internal/database"
	"github.com/nao1215/uxaudit/internal/manifest"
	"github.com/nao1215/uxaudit/internal/metrics"
	"github.com/nao1215/uxaudit/internal/model"
	"github.com/nao1215/uxaudit/internal/report"
)

// Crawler is the part of crawler.Scheduler used by CrawlStep.
type Crawler interface {
	Run(ctx context.Context, seedURL string) (*crawler.Result, error)
}

// CrawlStep crawls the seed and records pages, sections and screenshots.
//
// Design decision: A systemic failure is recorded in the report and the
// step returns nil, so analysis still runs over whatever was captured before
// the run stopped. Cancellation and invalid seeds are returned as errors.
type CrawlStep struct {
	crawler Crawler
	logger  *slog.Logger
}

// NewCrawlStep creates a crawl step.
func NewCrawlStep(c Crawler, logger *slog.Logger) *CrawlStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &CrawlStep{crawler: c, logger: logger}
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return "crawl"
}

// Do executes the crawl step.
func (s *CrawlStep) Do(ctx context.Context, run *Run) error {
	result, err := s.crawler.Run(ctx, run.SeedURL)
	if result != nil {
		run.Crawl = result
		r := run.Report
		r.SeedURL = result.SeedURL
		r.Status = result.Status
		r.Pages = result.Pages
		r.Sections = result.Sections
		r.Screenshots = screenshots(result.Captures)
	}
	if err == nil {
		return nil
	}

	var systemic *crawler.SystemicFailureError
	if errors.As(err, &systemic) {
		s.logger.Warn("crawl stopped after repeated failures",
			"seed", run.SeedURL, "consecutive", systemic.Consecutive, "error", err)
		run.recordError(err)
		return nil
	}
	return fmt.Errorf("crawl failed: %w", err)
}

func screenshots(captures []crawler.Capture) []model.Screenshot {
	out := make([]model.Screenshot, 0, len(captures))
	for _, c := range captures {
		shot := model.Screenshot{
			ID:          model.ScreenshotID(c.Target),
			TargetID:    c.Target.ID,
			Kind:        c.Target.Kind,
			Path:        c.ArtifactRef,
			Width:       int(math.Round(c.Geometry.Width)),
			Height:      int(math.Round(c.Geometry.Height)),
			Fingerprint: c.Fingerprint,
		}
		if c.Image != nil {
			shot.PreparedPath = c.Image.Path
		}
		out = append(out, shot)
	}
	return out
}

// AnalysisStep sends every accepted screenshot to the vision model.
type AnalysisStep struct {
	analyzer *analysis.Analyzer
	model    string
}

// NewAnalysisStep creates an analysis step. modelName is recorded in the
// report.
func NewAnalysisStep(analyzer *analysis.Analyzer, modelName string) *AnalysisStep {
	return &AnalysisStep{analyzer: analyzer, model: modelName}
}

// Name returns the step name.
func (s *AnalysisStep) Name() string {
	return "analysis"
}

// Do executes the analysis step.
func (s *AnalysisStep) Do(ctx context.Context, run *Run) error {
	run.Report.Model = s.model
	if run.Crawl == nil {
		return nil
	}

	reqs := Requests(run.Crawl, run.Ledger)
	if len(reqs) == 0 {
		return nil
	}

	result, err := s.analyzer.Analyze(ctx, reqs)
	if result != nil {
		run.Report.Analyses = result.Items
		recs := result.Recommendations
		model.SortRecommendations(recs)
		run.Report.Recommendations = recs
	}
	return err
}

// Requests builds analysis requests for the captures that have a prepared
// image, in capture order.
func Requests(result *crawler.Result, ledger *manifest.Accumulator) []analysis.Request {
	reqs := make([]analysis.Request, 0, len(result.Captures))
	for _, c := range result.Captures {
		if c.Image == nil {
			continue
		}
		req := analysis.Request{
			Target:    c.Target,
			Depth:     c.Depth,
			PageTitle: c.PageTitle,
			Section:   c.Section,
			Image:     c.Image,
		}
		if ledger != nil {
			if e, ok := ledger.Latest(c.Target.ID); ok {
				req.DiscoveredFrom = e.DiscoveredFrom
			}
		}
		reqs = append(reqs, req)
	}
	return reqs
}

// ReportStep writes manifest.json, report.json, report.md and metrics.prom
// into the run directory. It is meant to run as a finalizer.
type ReportStep struct {
	now func() time.Time
}

// NewReportStep creates a report step.
func NewReportStep(now func() time.Time) *ReportStep {
	if now == nil {
		now = time.Now
	}
	return &ReportStep{now: now}
}

// Name returns the step name.
func (s *ReportStep) Name() string {
	return "report"
}

// Do executes the report step.
func (s *ReportStep) Do(_ context.Context, run *Run) error {
	r := run.Report
	if r.CompletedAt.IsZero() {
		r.CompletedAt = s.now()
	}
	r.Status = statusOf(r)
	r.Manifest = run.Ledger.Entries()

	var errs []error
	if err := run.Ledger.WriteFile(run.Path(manifest.FileName), run.ID); err != nil {
		errs = append(errs, err)
	}
	if err := writeReportFile(run.Path(ReportJSONFile), config.FormatJSON, r); err != nil {
		errs = append(errs, err)
	}
	if err := writeReportFile(run.Path(ReportMarkdownFile), config.FormatMarkdown, r); err != nil {
		errs = append(errs, err)
	}

	run.Metrics.SetRunDuration(r.Duration())
	if err := run.Metrics.WriteFile(run.Path(metrics.FileName)); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func writeReportFile(path, format string, r *model.AuditReport) (err error) {
	f, err := os.Create(path) //nolint:gosec // path is inside the run directory
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close report file: %w", cerr)
		}
	}()

	w, err := report.New(format, f)
	if err != nil {
		return err
	}
	if _, err := w.Write(r); err != nil {
		return fmt.Errorf("failed to write %s report: %w", format, err)
	}
	return nil
}

// HistoryStep stores the finished run in the history database. It is meant
// to run as a finalizer, after ReportStep.
type HistoryStep struct {
	db *database.HistoryDB
}

// NewHistoryStep creates a history step.
func NewHistoryStep(db *database.HistoryDB) *HistoryStep {
	return &HistoryStep{db: db}
}

// Name returns the step name.
func (s *HistoryStep) Name() string {
	return "history"
}

// Do executes the history step.
func (s *HistoryStep) Do(ctx context.Context, run *Run) error {
	if run.Report.Manifest == nil {
		run.Report.Manifest = run.Ledger.Entries()
	}
	if err := s.db.SaveRun(ctx, run.Report); err != nil {
		return fmt.Errorf("failed to save run history: %w", err)
	}
	return nil
}
