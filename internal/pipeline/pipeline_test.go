package pipeline

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/nao1215/uxaudit/internal/model"
)

// mockStep is a test helper that implements the Step interface.
type mockStep struct {
	name      string
	doFunc    func(ctx context.Context, run *Run) error
	callCount int
}

// Do implements Step.Do.
func (m *mockStep) Do(ctx context.Context, run *Run) error {
	m.callCount++
	if m.doFunc != nil {
		return m.doFunc(ctx, run)
	}
	return nil
}

// Name implements Step.Name.
func (m *mockStep) Name() string {
	return m.name
}

func newMockRun() *Run {
	return &Run{ID: "test-run", SeedURL: "https://example.com/", Report: &model.AuditReport{}}
}

// TestPipelineNew tests the Pipeline constructor.
func TestPipelineNew(t *testing.T) {
	t.Parallel()

	t.Run("creates pipeline with default settings", func(t *testing.T) {
		t.Parallel()

		p := New()
		if p.StepCount() != 0 {
			t.Errorf("expected 0 steps, got %d", p.StepCount())
		}
		if p.continueOnError {
			t.Error("expected continueOnError to default to false")
		}
	})

	t.Run("applies WithContinueOnError option", func(t *testing.T) {
		t.Parallel()

		p := New(WithContinueOnError(true))
		if !p.continueOnError {
			t.Error("expected continueOnError to be true")
		}
	})
}

// TestPipelineStepNames tests step ordering with finalizers.
func TestPipelineStepNames(t *testing.T) {
	t.Parallel()

	p := New()
	p.AddFinalizer(&mockStep{name: "report"})
	p.AddStep(&mockStep{name: "crawl"})
	p.AddSteps(&mockStep{name: "analysis"})

	want := []string{"crawl", "analysis", "report"}
	if got := p.StepNames(); !slices.Equal(got, want) {
		t.Errorf("StepNames() = %v, want %v", got, want)
	}
	if p.StepCount() != 2 {
		t.Errorf("StepCount() = %d, want 2", p.StepCount())
	}
}

// TestPipelineExecute tests pipeline execution.
func TestPipelineExecute(t *testing.T) {
	t.Parallel()

	t.Run("executes all steps in order", func(t *testing.T) {
		t.Parallel()

		var order []string
		record := func(name string) *mockStep {
			return &mockStep{name: name, doFunc: func(context.Context, *Run) error {
				order = append(order, name)
				return nil
			}}
		}

		p := New()
		p.AddFinalizer(record("report"))
		p.AddSteps(record("crawl"), record("analysis"))

		run := newMockRun()
		if err := p.Execute(context.Background(), run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := []string{"crawl", "analysis", "report"}
		if !slices.Equal(order, want) {
			t.Errorf("order = %v, want %v", order, want)
		}
		if !slices.Equal(run.Performed, want) {
			t.Errorf("Performed = %v, want %v", run.Performed, want)
		}
	})

	t.Run("stops on error but still finalizes", func(t *testing.T) {
		t.Parallel()

		errBoom := errors.New("boom")
		failing := &mockStep{name: "crawl", doFunc: func(context.Context, *Run) error { return errBoom }}
		skipped := &mockStep{name: "analysis"}
		final := &mockStep{name: "report"}

		p := New()
		p.AddSteps(failing, skipped)
		p.AddFinalizer(final)

		run := newMockRun()
		err := p.Execute(context.Background(), run)
		if !errors.Is(err, errBoom) {
			t.Fatalf("expected errBoom, got %v", err)
		}
		if skipped.callCount != 0 {
			t.Error("expected remaining steps to be skipped")
		}
		if final.callCount != 1 {
			t.Error("expected finalizer to run")
		}
		if run.Report.Error != "boom" {
			t.Errorf("Report.Error = %q", run.Report.Error)
		}
	})

	t.Run("continues on error when configured", func(t *testing.T) {
		t.Parallel()

		errBoom := errors.New("boom")
		next := &mockStep{name: "analysis"}

		p := New(WithContinueOnError(true))
		p.AddSteps(&mockStep{name: "crawl", doFunc: func(context.Context, *Run) error { return errBoom }}, next)

		err := p.Execute(context.Background(), newMockRun())
		if !errors.Is(err, errBoom) {
			t.Fatalf("expected errBoom, got %v", err)
		}
		if next.callCount != 1 {
			t.Error("expected next step to run")
		}
	})

	t.Run("cancellation marks the run and detaches finalizers", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		var finalCtxErr error
		first := &mockStep{name: "crawl", doFunc: func(context.Context, *Run) error {
			cancel()
			return nil
		}}
		second := &mockStep{name: "analysis"}
		final := &mockStep{name: "report", doFunc: func(ctx context.Context, _ *Run) error {
			finalCtxErr = ctx.Err()
			return nil
		}}

		p := New()
		p.AddSteps(first, second)
		p.AddFinalizer(final)

		run := newMockRun()
		err := p.Execute(ctx, run)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if second.callCount != 0 {
			t.Error("expected step after cancellation to be skipped")
		}
		if final.callCount != 1 || finalCtxErr != nil {
			t.Errorf("finalizer calls = %d, ctx err = %v", final.callCount, finalCtxErr)
		}
		if run.Report.Status != model.RunCancelled {
			t.Errorf("Status = %q, want cancelled", run.Report.Status)
		}
	})

	t.Run("step error caused by cancellation is reported as cancelled", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
		defer cancel()

		p := New()
		p.AddStep(&mockStep{name: "crawl", doFunc: func(ctx context.Context, _ *Run) error {
			<-ctx.Done()
			return ctx.Err()
		}})

		run := newMockRun()
		if err := p.Execute(ctx, run); !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline error, got %v", err)
		}
		if run.Report.Status != model.RunCancelled {
			t.Errorf("Status = %q, want cancelled", run.Report.Status)
		}
	})

	t.Run("finalizer errors are returned", func(t *testing.T) {
		t.Parallel()

		errDisk := errors.New("disk full")
		p := New()
		p.AddFinalizer(&mockStep{name: "report", doFunc: func(context.Context, *Run) error { return errDisk }})

		run := newMockRun()
		if err := p.Execute(context.Background(), run); !errors.Is(err, errDisk) {
			t.Fatalf("expected errDisk, got %v", err)
		}
		if len(run.Performed) != 0 {
			t.Errorf("Performed = %v, want none", run.Performed)
		}
	})
}

// TestNewRunID tests run identifier layout.
func TestNewRunID(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 10, 4, 5, 0, time.FixedZone("JST", 9*3600))
	a, b := NewRunID(now), NewRunID(now)

	const prefix = "20260301T010405Z-"
	if len(a) != len(prefix)+8 || a[:len(prefix)] != prefix {
		t.Errorf("NewRunID() = %q, want %s<8 chars>", a, prefix)
	}
	if a == b {
		t.Error("expected distinct run ids")
	}
}
