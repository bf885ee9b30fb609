package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nao1215/uxaudit/internal/model"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *HistoryDB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testReport(runID, seed string, started time.Time) *model.AuditReport {
	page := model.TargetRef{ID: "page-1", Kind: model.TargetPage, URL: seed}
	section := model.TargetRef{ID: "page-1-section-1", Kind: model.TargetSection, URL: seed, Selector: "section#hero"}
	return &model.AuditReport{
		RunID:       runID,
		SeedURL:     seed,
		Model:       "gemini-3-flash-preview",
		StartedAt:   started,
		CompletedAt: started.Add(time.Minute),
		Status:      model.RunCompleted,
		Manifest: []model.ManifestEntry{
			{Seq: 1, Target: page, Outcome: model.OutcomeCaptured, ArtifactRef: "screenshots/page-1.png"},
			{Seq: 2, Target: section, Outcome: model.OutcomeFailed, ErrorKind: "region_unavailable", Error: "region unavailable"},
			{Seq: 3, Target: model.TargetRef{ID: "page-2", Kind: model.TargetPage, URL: seed + "about"}, Outcome: model.OutcomeSkippedBudget},
		},
		Recommendations: []model.Recommendation{
			{ID: "rec-01", TargetID: "page-1", Title: "Shorten hero", Priority: model.PriorityP0, Impact: model.ImpactHigh, Effort: model.EffortSmall},
			{ID: "rec-02", TargetID: "page-1", Title: "Raise contrast", Priority: model.PriorityP2, Impact: model.ImpactLow, Effort: model.EffortMedium},
		},
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(filepath.Join(dbDir, FileName)); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != filepath.Join(dbDir, FileName) {
			t.Errorf("unexpected path %s", db.Path())
		}
	})

	t.Run("CreateIfNotExists=false returns error when database does not exist", func(t *testing.T) {
		t.Parallel()

		_, err := Open(filepath.Join(t.TempDir(), "missing"), Options{CreateIfNotExists: false})
		if err == nil {
			t.Fatal("expected error for missing database")
		}
	})

	t.Run("reopens existing database", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		db, err := Open(dir, DefaultOptions())
		if err != nil {
			t.Fatal(err)
		}
		if err := db.SaveRun(context.Background(), testReport("run-1", "https://example.com/", time.Now())); err != nil {
			t.Fatal(err)
		}
		_ = db.Close()

		db, err = Open(dir, Options{CreateIfNotExists: false})
		if err != nil {
			t.Fatalf("failed to reopen: %v", err)
		}
		defer db.Close()
		runs, err := db.ListRuns(context.Background(), "", 0)
		if err != nil || len(runs) != 1 {
			t.Fatalf("expected 1 run after reopen, got %d (%v)", len(runs), err)
		}
	})
}

func TestSaveAndGetRun(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()
	started := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	report := testReport("run-1", "https://example.com/", started)

	if err := db.SaveRun(ctx, report); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	got, err := db.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.SeedURL != report.SeedURL || len(got.Manifest) != 3 || len(got.Recommendations) != 2 {
		t.Errorf("unexpected report: %+v", got)
	}
	if got.Recommendations[0].Priority != model.PriorityP0 {
		t.Errorf("priority did not survive storage: %v", got.Recommendations[0].Priority)
	}

	if _, err := db.GetRun(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}

	t.Run("saving again replaces rows", func(t *testing.T) {
		report.Recommendations = report.Recommendations[:1]
		if err := db.SaveRun(ctx, report); err != nil {
			t.Fatal(err)
		}
		recs, err := db.TopRecommendations(ctx, "run-1", 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(recs) != 1 {
			t.Errorf("expected 1 recommendation after replace, got %d", len(recs))
		}
	})
}

func TestListRuns(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	for i, r := range []*model.AuditReport{
		testReport("run-a", "https://example.com/", base),
		testReport("run-b", "https://other.example/", base.Add(time.Hour)),
		testReport("run-c", "https://example.com/", base.Add(2*time.Hour)),
	} {
		if err := db.SaveRun(ctx, r); err != nil {
			t.Fatalf("SaveRun %d failed: %v", i, err)
		}
	}

	tests := []struct {
		name  string
		seed  string
		limit int
		want  []string
	}{
		{name: "all newest first", want: []string{"run-c", "run-b", "run-a"}},
		{name: "by seed", seed: "https://example.com/", want: []string{"run-c", "run-a"}},
		{name: "limit", limit: 1, want: []string{"run-c"}},
		{name: "unknown seed", seed: "https://nope.example/", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := db.ListRuns(ctx, tt.seed, tt.limit)
			if err != nil {
				t.Fatal(err)
			}
			if len(runs) != len(tt.want) {
				t.Fatalf("expected %d runs, got %d", len(tt.want), len(runs))
			}
			for i, id := range tt.want {
				if runs[i].RunID != id {
					t.Errorf("run %d: expected %s, got %s", i, id, runs[i].RunID)
				}
			}
		})
	}

	runs, err := db.ListRuns(ctx, "", 1)
	if err != nil {
		t.Fatal(err)
	}
	s := runs[0]
	if s.Counts[model.OutcomeCaptured] != 1 || s.Counts[model.OutcomeFailed] != 1 || s.Counts[model.OutcomeSkippedBudget] != 1 {
		t.Errorf("unexpected counts: %v", s.Counts)
	}
	if s.Recommendations != 2 || s.Status != model.RunCompleted {
		t.Errorf("unexpected summary: %+v", s)
	}
	if !s.StartedAt.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("unexpected start time: %v", s.StartedAt)
	}
}

func TestFailedTargets(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()
	if err := db.SaveRun(ctx, testReport("run-1", "https://example.com/", time.Now())); err != nil {
		t.Fatal(err)
	}

	failed, err := db.FailedTargets(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 1 || failed[0].Target.Selector != "section#hero" || failed[0].ErrorKind != "region_unavailable" {
		t.Errorf("unexpected failed targets: %+v", failed)
	}
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		zero  bool
	}{
		{input: "2026-10-01T12:00:00.123Z"},
		{input: "2026-10-01 12:00:00"},
		{input: "garbage", zero: true},
		{input: "", zero: true},
	}
	for _, tt := range tests {
		if got := parseTimestamp(tt.input); got.IsZero() != tt.zero {
			t.Errorf("parseTimestamp(%q) = %v", tt.input, got)
		}
	}
}
