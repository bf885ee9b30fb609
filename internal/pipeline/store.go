package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"

	"github.com/nao1215/uxaudit/internal/crawler"
	"github.com/nao1215/uxaudit/internal/imageprep"
	"github.com/nao1215/uxaudit/internal/model"
)

// ArtifactStore persists accepted captures into a run directory and prepares
// their analysis renditions. Its Store method is a crawler.Sink.
type ArtifactStore struct {
	run    *Run
	cache  *imageprep.Cache
	opts   imageprep.Options
	logger *slog.Logger
}

// NewArtifactStore creates a store writing into run. A nil cache prepares
// images without memoization.
func NewArtifactStore(run *Run, cache *imageprep.Cache, opts imageprep.Options, logger *slog.Logger) *ArtifactStore {
	if cache == nil {
		cache = imageprep.NewCache("", logger)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ArtifactStore{run: run, cache: cache, opts: opts, logger: logger}
}

// Store writes screenshots/<target>.png and prepared/<target>.jpg and releases the
// raw bytes. Paths in the result are relative to the run directory. On error
// nothing is left in the run directory.
func (s *ArtifactStore) Store(ctx context.Context, art *model.CaptureArtifact) (crawler.Stored, error) {
	if err := ctx.Err(); err != nil {
		return crawler.Stored{}, err
	}
	defer art.Release()

	id := model.ScreenshotID(art.Target)
	prepared, err := s.cache.Transform(art.Raw, s.opts)
	if err != nil {
		return crawler.Stored{}, fmt.Errorf("failed to prepare screenshot %s: %w", id, err)
	}

	rawRef := path.Join(ScreenshotsDir, art.Target.ID+".png")
	if err := os.WriteFile(s.run.Path(rawRef), art.Raw, 0o600); err != nil {
		return crawler.Stored{}, fmt.Errorf("failed to write screenshot: %w", err)
	}
	preparedRef := path.Join(PreparedDir, art.Target.ID+".jpg")
	if err := os.WriteFile(s.run.Path(preparedRef), prepared.Data, 0o600); err != nil {
		if rmErr := os.Remove(s.run.Path(rawRef)); rmErr != nil {
			s.logger.Debug("failed to remove screenshot", "id", id, "error", rmErr)
		}
		return crawler.Stored{}, fmt.Errorf("failed to write prepared image: %w", err)
	}

	s.logger.Debug("stored screenshot", "id", id, "bytes", len(art.Raw),
		"prepared_bytes", len(prepared.Data), "quality", prepared.Quality)

	return crawler.Stored{
		Ref: rawRef,
		Image: &model.PreparedImage{
			Target:       art.Target,
			ScreenshotID: id,
			Data:         prepared.Data,
			MIMEType:     imageprep.MIMEType,
			Width:        prepared.Width,
			Height:       prepared.Height,
			Digest:       prepared.Digest,
			Path:         preparedRef,
		},
	}, nil
}
