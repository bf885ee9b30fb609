package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/uxaudit/internal/crawler"
	"github.com/nao1215/uxaudit/internal/manifest"
	"github.com/nao1215/uxaudit/internal/metrics"
	"github.com/nao1215/uxaudit/internal/model"
)

const (
	// ScreenshotsDir holds the raw PNG of every accepted capture.
	ScreenshotsDir = "screenshots"

	// PreparedDir holds the analysis-ready JPEG renditions.
	PreparedDir = "prepared"

	// ReportJSONFile and ReportMarkdownFile are written by ReportStep.
	ReportJSONFile     = "report.json"
	ReportMarkdownFile = "report.md"
)

// Run is the state shared by the steps of one audit.
type Run struct {
	// ID names the run and its directory.
	ID string

	// Dir is the run directory.
	Dir string

	// SeedURL is the seed as given; the report carries the normalized form.
	SeedURL string

	// Report accumulates results.
	Report *model.AuditReport

	// Ledger is the run's manifest.
	Ledger *manifest.Accumulator

	// Metrics records run metrics. It observes Ledger.
	Metrics *metrics.Recorder

	// Crawl is the crawl result, set by CrawlStep.
	Crawl *crawler.Result

	// Performed lists the steps that completed, in order.
	Performed []string
}

// NewRunID returns "<UTC timestamp>-<uuid prefix>", which sorts by start time.
func NewRunID(now time.Time) string {
	return now.UTC().Format("20060102T150405Z") + "-" + uuid.NewString()[:8]
}

// NewRun creates the run directory layout under outputDir.
func NewRun(outputDir, seedURL string, now time.Time) (*Run, error) {
	id := NewRunID(now)
	dir := filepath.Join(outputDir, id)
	for _, sub := range []string{ScreenshotsDir, PreparedDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create run directory: %w", err)
		}
	}

	rec := metrics.NewRecorder()
	return &Run{
		ID:      id,
		Dir:     dir,
		SeedURL: seedURL,
		Report: &model.AuditReport{
			RunID:     id,
			SeedURL:   seedURL,
			StartedAt: now,
		},
		Ledger:  manifest.New(manifest.WithObserver(rec.ObserveEntry)),
		Metrics: rec,
	}, nil
}

// Path returns a path inside the run directory.
func (r *Run) Path(elem ...string) string {
	return filepath.Join(append([]string{r.Dir}, elem...)...)
}

func (r *Run) markCancelled(err error) {
	r.Report.Status = model.RunCancelled
	r.recordError(err)
}

func (r *Run) recordError(err error) {
	if r.Report.Error == "" && err != nil {
		r.Report.Error = err.Error()
	}
}
