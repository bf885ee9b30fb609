package model

import (
	"math"
	"testing"
)

func TestRectGeometry(t *testing.T) {
	t.Parallel()

	t.Run("area of degenerate box is zero", func(t *testing.T) {
		t.Parallel()
		if got := (Rect{Width: 0, Height: 10}).Area(); got != 0 {
			t.Errorf("expected 0, got %v", got)
		}
		if !(Rect{Width: -5, Height: 10}).Empty() {
			t.Error("expected negative width box to be empty")
		}
	})

	t.Run("intersect of disjoint boxes is empty", func(t *testing.T) {
		t.Parallel()
		a := Rect{X: 0, Y: 0, Width: 10, Height: 10}
		b := Rect{X: 20, Y: 20, Width: 10, Height: 10}
		if !a.Intersect(b).Empty() {
			t.Error("expected empty intersection")
		}
	})

	t.Run("iou of identical boxes is one", func(t *testing.T) {
		t.Parallel()
		a := Rect{X: 5, Y: 5, Width: 100, Height: 50}
		if got := a.IoU(a); math.Abs(got-1) > 1e-9 {
			t.Errorf("expected 1, got %v", got)
		}
	})

	t.Run("iou of half overlap", func(t *testing.T) {
		t.Parallel()
		a := Rect{X: 0, Y: 0, Width: 10, Height: 10}
		b := Rect{X: 5, Y: 0, Width: 10, Height: 10}
		// intersection 50, union 150
		if got := a.IoU(b); math.Abs(got-1.0/3.0) > 1e-9 {
			t.Errorf("expected 1/3, got %v", got)
		}
	})

	t.Run("clamp to document", func(t *testing.T) {
		t.Parallel()
		r := Rect{X: -10, Y: 900, Width: 200, Height: 300}
		got := r.ClampTo(1440, 1000)
		want := Rect{X: 0, Y: 900, Width: 190, Height: 100}
		if got != want {
			t.Errorf("expected %+v, got %+v", want, got)
		}
	})
}

func TestTargetIDs(t *testing.T) {
	t.Parallel()

	if got := PageID(3); got != "page-3" {
		t.Errorf("expected page-3, got %q", got)
	}
	if got := SectionID("page-3", 2); got != "page-3-section-2" {
		t.Errorf("expected page-3-section-2, got %q", got)
	}

	ref := TargetRef{Kind: TargetSection, URL: "https://example.com/", Selector: "section#pricing"}
	if got := ref.String(); got != "https://example.com/ [section#pricing]" {
		t.Errorf("unexpected ref string %q", got)
	}

	tests := []struct {
		id   string
		want string
	}{
		{"page-1", "shot-1"},
		{"page-12-section-3", "shot-12-s3"},
		{"custom", "shot-custom"},
	}
	for _, tt := range tests {
		if got := ScreenshotID(TargetRef{ID: tt.id}); got != tt.want {
			t.Errorf("ScreenshotID(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestBandBetween(t *testing.T) {
	t.Parallel()

	start := Rect{X: 40, Y: 300, Width: 200, Height: 30}

	t.Run("ends at next heading", func(t *testing.T) {
		t.Parallel()
		end := Rect{X: 40, Y: 700, Width: 200, Height: 30}
		got := BandBetween(start, &end, 1280, 2000)
		want := Rect{X: 0, Y: 300, Width: 1280, Height: 400}
		if got != want {
			t.Errorf("expected %+v, got %+v", want, got)
		}
	})

	t.Run("extends to document end", func(t *testing.T) {
		t.Parallel()
		got := BandBetween(start, nil, 1280, 2000)
		want := Rect{X: 0, Y: 300, Width: 1280, Height: 1700}
		if got != want {
			t.Errorf("expected %+v, got %+v", want, got)
		}
	})

	t.Run("ignores end above start", func(t *testing.T) {
		t.Parallel()
		end := Rect{Y: 100}
		got := BandBetween(start, &end, 1280, 900)
		if got.Height != 600 {
			t.Errorf("expected band to run to document end, got %+v", got)
		}
	})
}

func TestOutcomeClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		outcome Outcome
		skip    bool
		failure bool
	}{
		{OutcomeCaptured, false, false},
		{OutcomeDuplicate, false, false},
		{OutcomeFailed, false, true},
		{OutcomeAnalysisFailed, false, true},
		{OutcomeSkippedBudget, true, false},
		{OutcomeSkippedCancelled, true, false},
		{OutcomeSkippedScope, true, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			t.Parallel()
			if got := tt.outcome.IsSkip(); got != tt.skip {
				t.Errorf("IsSkip() = %v, want %v", got, tt.skip)
			}
			if got := tt.outcome.IsFailure(); got != tt.failure {
				t.Errorf("IsFailure() = %v, want %v", got, tt.failure)
			}
		})
	}
}
