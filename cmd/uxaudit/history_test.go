package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/uxaudit/internal/database"
	"github.com/nao1215/uxaudit/internal/model"
)

// seedHistory creates a history database with two runs of one site.
func seedHistory(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	db, err := database.Open(dir, database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	home := model.TargetRef{ID: "page-1", Kind: model.TargetPage, URL: "https://example.com/"}
	broken := model.TargetRef{ID: "page-2", Kind: model.TargetPage, URL: "https://example.com/broken"}

	for i, runID := range []string{"20260301T100000Z-aaaa1111", "20260302T100000Z-bbbb2222"} {
		report := &model.AuditReport{
			RunID:       runID,
			SeedURL:     "https://example.com/",
			Model:       "gemini-3-flash-preview",
			StartedAt:   started.AddDate(0, 0, i),
			CompletedAt: started.AddDate(0, 0, i).Add(time.Minute),
			Status:      model.RunCompleted,
			Manifest: []model.ManifestEntry{
				{Seq: 1, Target: home, Outcome: model.OutcomeCaptured},
				{Seq: 2, Target: broken, Depth: 1, Outcome: model.OutcomeFailed, ErrorKind: "http_status", Error: "status 500"},
			},
			Recommendations: []model.Recommendation{
				{ID: "rec-01", TargetID: "page-1", Title: "Make the signup button stand out",
					Priority: model.PriorityP0, Impact: model.ImpactHigh, Effort: model.EffortSmall},
				{ID: "rec-02", TargetID: "page-1", Title: "Shorten hero copy",
					Priority: model.PriorityP2, Impact: model.ImpactLow, Effort: model.EffortSmall},
			},
		}
		if err := db.SaveRun(context.Background(), report); err != nil {
			t.Fatalf("SaveRun() error = %v", err)
		}
	}
	return dir
}

// runHistory executes the history command with args and returns its output.
func runHistory(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var buf bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&buf)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{"history"}, args...))
	err := root.Execute()
	return buf.String(), err
}

// TestHistoryCmd tests listing and showing recorded runs.
func TestHistoryCmd(t *testing.T) {
	t.Parallel()

	t.Run("no database", func(t *testing.T) {
		t.Parallel()

		out, err := runHistory(t, "--db-dir", t.TempDir())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, noHistoryMessage) {
			t.Errorf("output = %q", out)
		}
	})

	t.Run("lists runs newest first", func(t *testing.T) {
		t.Parallel()

		out, err := runHistory(t, "--db-dir", seedHistory(t))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "Audit runs (2)") {
			t.Errorf("output = %q", out)
		}
		newer := strings.Index(out, "bbbb2222")
		older := strings.Index(out, "aaaa1111")
		if newer < 0 || older < 0 || newer > older {
			t.Errorf("expected newest run first, got %q", out)
		}
	})

	t.Run("limit and seed filter", func(t *testing.T) {
		t.Parallel()

		dir := seedHistory(t)
		out, err := runHistory(t, "--db-dir", dir, "--limit", "1", "--json")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var runs []runListEntry
		if err := json.Unmarshal([]byte(out), &runs); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(runs) != 1 || runs[0].RunID != "20260302T100000Z-bbbb2222" {
			t.Errorf("runs = %+v", runs)
		}
		if runs[0].Recommendations != 2 {
			t.Errorf("Recommendations = %d, want 2", runs[0].Recommendations)
		}

		out, err = runHistory(t, "--db-dir", dir, "--seed", "https://other.example/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, noHistoryMessage) {
			t.Errorf("output = %q", out)
		}
	})

	t.Run("shows one run", func(t *testing.T) {
		t.Parallel()

		out, err := runHistory(t, "--db-dir", seedHistory(t), "--top", "1", "20260301T100000Z-aaaa1111")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, want := range []string{
			"Run 20260301T100000Z-aaaa1111",
			"Failed targets (1)",
			"[failed] page-2 https://example.com/broken (http_status)",
			"Top recommendations (1 of 2)",
			"[P0] Make the signup button stand out",
		} {
			if !strings.Contains(out, want) {
				t.Errorf("expected output to contain %q, got %q", want, out)
			}
		}
		if strings.Contains(out, "Shorten hero copy") {
			t.Error("expected --top to limit recommendations")
		}
	})

	t.Run("shows one run as JSON", func(t *testing.T) {
		t.Parallel()

		out, err := runHistory(t, "--db-dir", seedHistory(t), "--json", "20260301T100000Z-aaaa1111")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var detail runDetail
		if err := json.Unmarshal([]byte(out), &detail); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if detail.Counts[model.OutcomeCaptured] != 1 || detail.Counts[model.OutcomeFailed] != 1 {
			t.Errorf("Counts = %v", detail.Counts)
		}
		if len(detail.Recommendations) != 2 {
			t.Errorf("got %d recommendations", len(detail.Recommendations))
		}
	})

	t.Run("unknown run", func(t *testing.T) {
		t.Parallel()

		_, err := runHistory(t, "--db-dir", seedHistory(t), "missing")
		if !errors.Is(err, database.ErrRunNotFound) {
			t.Errorf("expected ErrRunNotFound, got %v", err)
		}
	})
}
