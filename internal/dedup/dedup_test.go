package dedup

import (
	"errors"
	"testing"

	"github.com/nao1215/uxaudit/internal/model"
	"github.com/nao1215/uxaudit/internal/render/rendertest"
)

func artifact(t *testing.T, id string, seed uint64) *model.CaptureArtifact {
	t.Helper()
	data, err := rendertest.Pattern(seed, model.Rect{Width: 320, Height: 480})
	if err != nil {
		t.Fatalf("failed to render pattern: %v", err)
	}
	return &model.CaptureArtifact{Target: model.TargetRef{ID: id, Kind: model.TargetPage}, Raw: data}
}

func TestFilterAccept(t *testing.T) {
	t.Parallel()

	t.Run("identical images are duplicates of the first", func(t *testing.T) {
		t.Parallel()
		f := NewFilter(10)

		first, err := f.Accept(artifact(t, "page-1", 7))
		if err != nil {
			t.Fatalf("Accept failed: %v", err)
		}
		if !first.Accepted || first.Distance != -1 {
			t.Fatalf("expected first artifact to be accepted, got %+v", first)
		}

		second, err := f.Accept(artifact(t, "page-2", 7))
		if err != nil {
			t.Fatalf("Accept failed: %v", err)
		}
		if second.Accepted || second.DuplicateOf != "page-1" || second.Distance != 0 {
			t.Errorf("expected duplicate of page-1, got %+v", second)
		}
		if f.Len() != 1 {
			t.Errorf("expected one accepted fingerprint, got %d", f.Len())
		}
	})

	t.Run("distinct images are accepted", func(t *testing.T) {
		t.Parallel()
		f := NewFilter(10)
		for i, seed := range []uint64{1, 2, 3} {
			d, err := f.Accept(artifact(t, model.PageID(i+1), seed))
			if err != nil {
				t.Fatalf("Accept failed: %v", err)
			}
			if !d.Accepted {
				t.Errorf("seed %d: expected accepted, got %+v", seed, d)
			}
		}
	})

	t.Run("fingerprint is stored on the artifact", func(t *testing.T) {
		t.Parallel()
		art := artifact(t, "page-1", 3)
		if _, err := NewFilter(10).Accept(art); err != nil {
			t.Fatalf("Accept failed: %v", err)
		}
		if len(art.Fingerprint) == 0 {
			t.Error("expected fingerprint to be set")
		}
	})

	t.Run("zero threshold still rejects identical images", func(t *testing.T) {
		t.Parallel()
		f := NewFilter(0)
		if f.Threshold() != 1 {
			t.Fatalf("expected threshold clamped to 1, got %d", f.Threshold())
		}
		if _, err := f.Accept(artifact(t, "page-1", 9)); err != nil {
			t.Fatal(err)
		}
		d, err := f.Accept(artifact(t, "page-2", 9))
		if err != nil {
			t.Fatal(err)
		}
		if d.Accepted {
			t.Error("expected identical image to be rejected")
		}
	})
}

func TestFilterErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  []byte
		want error
	}{
		{"empty", nil, ErrEmptyArtifact},
		{"not a png", []byte("GIF89a"), ErrDecode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			art := &model.CaptureArtifact{Raw: tt.raw}
			if _, err := NewFilter(10).Accept(art); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestFilterCheckDoesNotRemember(t *testing.T) {
	t.Parallel()

	f := NewFilter(10)
	first, err := f.Check(artifact(t, "page-1", 5))
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !first.Accepted {
		t.Fatalf("expected first artifact to be accepted, got %+v", first)
	}
	if f.Len() != 0 {
		t.Fatalf("expected Check to leave the filter empty, got %d", f.Len())
	}

	// page-1 was never committed, so an identical page-2 is still new.
	second, err := f.Check(artifact(t, "page-2", 5))
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !second.Accepted {
		t.Fatalf("expected uncommitted fingerprint to be ignored, got %+v", second)
	}
	f.Commit(second)

	third, err := f.Check(artifact(t, "page-3", 5))
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if third.Accepted || third.DuplicateOf != "page-2" {
		t.Errorf("expected duplicate of page-2, got %+v", third)
	}

	f.Commit(third)
	if f.Len() != 1 {
		t.Errorf("expected rejected decisions not to be committed, got %d", f.Len())
	}
}
