package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nao1215/uxaudit/internal/model"
)

func TestRecorder(t *testing.T) {
	t.Parallel()

	r := NewRecorder()
	page := model.TargetRef{ID: "page-1", Kind: model.TargetPage, URL: "https://example.com/"}
	section := model.TargetRef{ID: "page-1-section-1", Kind: model.TargetSection, URL: "https://example.com/"}

	r.ObserveEntry(model.ManifestEntry{Target: page, Outcome: model.OutcomeCaptured})
	r.ObserveEntry(model.ManifestEntry{Target: section, Outcome: model.OutcomeDuplicate})
	r.ObserveEntry(model.ManifestEntry{Target: section, Outcome: model.OutcomeDuplicate})
	r.ObserveCapture(model.TargetPage, 2*time.Second, nil)
	r.ObserveCapture(model.TargetSection, time.Second, errors.New("gone"))
	r.ObserveAnalysis("ok", time.Second)
	r.ObserveAnalysis("rate_limited", time.Second)
	r.ObserveAnalysis("ok", time.Second)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"captured pages", testutil.ToFloat64(r.targets.WithLabelValues("page", "captured")), 1},
		{"duplicate sections", testutil.ToFloat64(r.targets.WithLabelValues("section", "duplicate")), 2},
		{"dedup rejections", testutil.ToFloat64(r.dedupRejections), 2},
		{"page attempts", testutil.ToFloat64(r.captureAttempts.WithLabelValues("page", "ok")), 1},
		{"section errors", testutil.ToFloat64(r.captureAttempts.WithLabelValues("section", "error")), 1},
		{"analysis ok", testutil.ToFloat64(r.analysisRequests.WithLabelValues("ok")), 2},
		{"analysis rate limited", testutil.ToFloat64(r.analysisRequests.WithLabelValues("rate_limited")), 1},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, tt.got, tt.want)
		}
	}

	if n := testutil.CollectAndCount(r.captureDuration); n != 2 {
		t.Errorf("expected 2 capture duration series, got %d", n)
	}
}

func TestRecorderWriteFile(t *testing.T) {
	t.Parallel()

	r := NewRecorder()
	r.ObserveEntry(model.ManifestEntry{Target: model.TargetRef{Kind: model.TargetPage}, Outcome: model.OutcomeSkippedBudget})
	r.SetRunDuration(1500 * time.Millisecond)

	path := filepath.Join(t.TempDir(), FileName)
	if err := r.WriteFile(path); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	data, err := os.ReadFile(path) //nolint:gosec // test file
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, want := range []string{
		`uxaudit_targets_total{kind="page",outcome="skipped_budget"} 1`,
		"uxaudit_run_duration_seconds 1.5",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics file missing %q:\n%s", want, text)
		}
	}
}
