package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nao1215/uxaudit/internal/model"
)

// Step defines the interface that all pipeline steps must implement.
// Steps are executed in sequence, with each step receiving the run state
// accumulated by previous steps.
type Step interface {
	// Do executes the pipeline step.
	// Returns an error if the step fails critically; non-critical errors
	// should be recorded in the report and return nil.
	Do(ctx context.Context, run *Run) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline orchestrates the execution of multiple steps.
type Pipeline struct {
	// steps contains the ordered list of steps to execute.
	steps []Step

	// finalizers always run after steps, with cancellation detached.
	finalizers []Step

	// logger is used for structured logging during execution.
	logger *slog.Logger

	// continueOnError determines whether to continue executing steps
	// after one fails. If false, the pipeline stops on first error.
	continueOnError bool
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to continue execution
// even when a step fails. Failed steps are logged and their errors
// are recorded in the report, but subsequent steps still execute.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates a new Pipeline with the given options.
// Steps should be added using AddStep after creation.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// AddStep appends a step to the pipeline.
// Steps are executed in the order they are added.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// AddFinalizer appends a step that runs after all regular steps, whether
// they succeeded, failed or were cancelled.
func (p *Pipeline) AddFinalizer(step Step) {
	p.finalizers = append(p.finalizers, step)
}

// Execute runs all pipeline steps in sequence, then the finalizers.
//
// Design decision: We check context.Done() before each step rather than
// during, because steps should handle their own cancellation. A cancelled
// run marks the report as cancelled and skips the remaining regular steps,
// but finalizers still run on a context that ignores the cancellation so
// partial results are persisted.
//
// Returns the first step error (or the context error) joined with any
// finalizer errors.
func (p *Pipeline) Execute(ctx context.Context, run *Run) error {
	stepErr := p.runSteps(ctx, run)

	var finalErrs []error
	detached := context.WithoutCancel(ctx)
	for _, step := range p.finalizers {
		p.logger.Debug("executing finalizer", "step", step.Name(), "run", run.ID)
		if err := step.Do(detached, run); err != nil {
			p.logger.Error("finalizer failed", "step", step.Name(), "run", run.ID, "error", err)
			finalErrs = append(finalErrs, err)
			continue
		}
		run.Performed = append(run.Performed, step.Name())
	}

	return errors.Join(append([]error{stepErr}, finalErrs...)...)
}

func (p *Pipeline) runSteps(ctx context.Context, run *Run) error {
	var firstErr error
	for _, step := range p.steps {
		select {
		case <-ctx.Done():
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"reason", ctx.Err(),
			)
			run.markCancelled(ctx.Err())
			return ctx.Err()
		default:
		}

		p.logger.Info("executing step",
			"step", step.Name(),
			"seed", run.SeedURL,
		)

		if err := step.Do(ctx, run); err != nil {
			if ctx.Err() != nil {
				run.markCancelled(ctx.Err())
				return ctx.Err()
			}

			p.logger.Error("step failed",
				"step", step.Name(),
				"seed", run.SeedURL,
				"error", err,
			)
			run.recordError(err)
			if firstErr == nil {
				firstErr = err
			}
			if !p.continueOnError {
				return err
			}
			continue
		}

		p.logger.Debug("step completed",
			"step", step.Name(),
			"seed", run.SeedURL,
		)
		run.Performed = append(run.Performed, step.Name())
	}

	return firstErr
}

// StepCount returns the number of regular steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order,
// finalizers last.
func (p *Pipeline) StepNames() []string {
	names := make([]string, 0, len(p.steps)+len(p.finalizers))
	for _, step := range p.steps {
		names = append(names, step.Name())
	}
	for _, step := range p.finalizers {
		names = append(names, step.Name())
	}
	return names
}

// statusOf returns the status recorded so far, defaulting to completed.
func statusOf(r *model.AuditReport) model.RunStatus {
	if r.Status == "" {
		return model.RunCompleted
	}
	return r.Status
}
