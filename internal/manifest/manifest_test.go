package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/uxaudit/internal/model"
)

func pageRef(id string) model.TargetRef {
	return model.TargetRef{ID: id, Kind: model.TargetPage, URL: "https://example.com/" + id}
}

func TestAccumulatorAppend(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var observed []model.ManifestEntry
	acc := New(
		WithClock(func() time.Time { return fixed }),
		WithObserver(func(e model.ManifestEntry) { observed = append(observed, e) }),
	)

	first := acc.Append(model.ManifestEntry{Target: pageRef("page-1"), Outcome: model.OutcomeCaptured, Seq: 99})
	acc.Append(model.ManifestEntry{Target: pageRef("page-2"), Outcome: model.OutcomeFailed, ErrorKind: "timeout"})
	acc.Append(model.ManifestEntry{Target: pageRef("page-1"), Outcome: model.OutcomeAnalysisFailed})

	if first.Seq != 1 {
		t.Errorf("expected seq 1, got %d", first.Seq)
	}
	if !first.RecordedAt.Equal(fixed) {
		t.Errorf("expected fixed timestamp, got %v", first.RecordedAt)
	}
	if acc.Len() != 3 || len(observed) != 3 {
		t.Fatalf("expected 3 entries and 3 notifications, got %d and %d", acc.Len(), len(observed))
	}

	latest, ok := acc.Latest("page-1")
	if !ok || latest.Outcome != model.OutcomeAnalysisFailed {
		t.Errorf("expected latest page-1 entry to be analysis_failed, got %+v", latest)
	}
	if _, ok := acc.Latest("page-9"); ok {
		t.Error("expected no entry for unknown target")
	}

	counts := acc.Counts()
	if counts[model.OutcomeAnalysisFailed] != 1 || counts[model.OutcomeFailed] != 1 || counts[model.OutcomeCaptured] != 0 {
		t.Errorf("unexpected counts %v", counts)
	}
	if got := acc.Filter(model.OutcomeCaptured); len(got) != 1 {
		t.Errorf("expected one captured entry, got %d", len(got))
	}
}

func TestAccumulatorConcurrentAppend(t *testing.T) {
	t.Parallel()

	acc := New()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			acc.Append(model.ManifestEntry{Target: pageRef(model.PageID(i)), Outcome: model.OutcomeCaptured})
		}()
	}
	wg.Wait()

	entries := acc.Entries()
	if len(entries) != 50 {
		t.Fatalf("expected 50 entries, got %d", len(entries))
	}
	for i, e := range entries {
		if e.Seq != i+1 {
			t.Fatalf("entry %d has seq %d", i, e.Seq)
		}
	}
}

func TestWriteAndReadFile(t *testing.T) {
	t.Parallel()

	t.Run("round trip through disk", func(t *testing.T) {
		t.Parallel()
		acc := New()
		acc.Append(model.ManifestEntry{Target: pageRef("page-1"), Outcome: model.OutcomeCaptured, ArtifactRef: "screenshots/page-1.png"})
		acc.Append(model.ManifestEntry{Target: pageRef("page-2"), Outcome: model.OutcomeSkippedBudget})

		path := filepath.Join(t.TempDir(), "run", FileName)
		if err := acc.WriteFile(path, "run-1"); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
		if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
			t.Error("expected temporary file to be renamed away")
		}

		entries, err := ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile failed: %v", err)
		}
		if len(entries) != 2 || entries[0].ArtifactRef != "screenshots/page-1.png" {
			t.Errorf("unexpected entries %+v", entries)
		}
	})

	t.Run("empty manifest is still written", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), FileName)
		if err := New().WriteFile(path, ""); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
		entries, err := ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile failed: %v", err)
		}
		if len(entries) != 0 {
			t.Errorf("expected no entries, got %d", len(entries))
		}
	})

	t.Run("corrupt file", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), FileName)
		if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := ReadFile(path); !errors.Is(err, ErrInvalidManifest) {
			t.Errorf("expected ErrInvalidManifest, got %v", err)
		}
	})
}
