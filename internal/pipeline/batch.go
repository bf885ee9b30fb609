package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/uxaudit/internal/model"
)

// Factory builds the pipeline and run for one seed URL.
type Factory func(seedURL string) (*Pipeline, *Run, error)

// BatchProcessor audits multiple seed URLs concurrently.
// It uses errgroup to manage goroutines and respect concurrency limits.
//
// Design decision: We use a separate BatchProcessor rather than adding batch
// functionality to Pipeline because:
// 1. It keeps the Pipeline focused on single-run execution
// 2. Each seed gets its own run directory, manifest and metrics
// 3. It provides cleaner separation of concerns
type BatchProcessor struct {
	// factory creates a fresh pipeline and run for each seed.
	factory Factory

	// concurrency is the maximum number of concurrent audits.
	concurrency int

	// logger is used for batch-level logging.
	logger *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent audits.
// Default is 1 if not specified.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(factory Factory, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		factory:     factory,
		concurrency: 1,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch audits every seed and returns the reports in seed order.
//
// A failing audit does not stop the others: its error is recorded in its
// report. Seeds whose run could not even be created get a report holding
// only the seed and the error. The returned error is the context error when
// the batch was cancelled.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, seeds []string) ([]*model.AuditReport, error) {
	bp.logger.Info("starting batch processing",
		"total_seeds", len(seeds),
		"concurrency", bp.concurrency,
	)

	startTime := time.Now()

	// Pre-allocate results slice to maintain order
	results := make([]*model.AuditReport, len(seeds))

	var g errgroup.Group
	g.SetLimit(bp.concurrency)

	for i, seed := range seeds {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = &model.AuditReport{SeedURL: seed, Status: model.RunCancelled, Error: err.Error()}
				return nil
			}

			bp.logger.Info("auditing seed",
				"seed", seed,
				"index", i+1,
				"total", len(seeds),
			)

			p, run, err := bp.factory(seed)
			if err != nil {
				bp.logger.Warn("audit setup failed", "seed", seed, "error", err)
				results[i] = &model.AuditReport{SeedURL: seed, Error: err.Error()}
				return nil
			}

			// The report contains error information if the audit failed
			if err := p.Execute(ctx, run); err != nil {
				bp.logger.Warn("audit failed",
					"seed", seed,
					"run", run.ID,
					"error", err,
				)
			} else {
				bp.logger.Info("audit completed", "seed", seed, "run", run.ID)
			}
			results[i] = run.Report
			return nil
		})
	}

	_ = g.Wait() // workers never return errors

	bp.logger.Info("batch processing complete",
		"total_seeds", len(seeds),
		"elapsed", time.Since(startTime),
	)

	return results, ctx.Err()
}
