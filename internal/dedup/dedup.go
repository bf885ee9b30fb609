package dedup

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"
	"sync"

	"github.com/corona10/goimagehash"

	"github.com/nao1215/uxaudit/internal/model"
)

// hashSide is the width and height of the difference hash grid.
const hashSide = 16

var (
	// ErrDecode is returned when artifact bytes are not a decodable PNG.
	ErrDecode = errors.New("failed to decode screenshot")

	// ErrEmptyArtifact is returned for artifacts without image bytes.
	ErrEmptyArtifact = errors.New("artifact has no image data")
)

// Decision is the result of offering an artifact to the Filter.
type Decision struct {
	// Accepted is true when the artifact is not a near-duplicate.
	Accepted bool

	// DuplicateOf is the target ID of the matching accepted artifact.
	DuplicateOf string

	// Distance is the Hamming distance to the closest accepted fingerprint,
	// or -1 when nothing was accepted before.
	Distance int

	// Fingerprint is the hex form of the artifact's hash.
	Fingerprint string

	targetID string
	hash     *goimagehash.ExtImageHash
}

type acceptedHash struct {
	targetID string
	hash     *goimagehash.ExtImageHash
}

// Filter is the per-run set of accepted fingerprints. It is safe for
// concurrent use. Callers that persist accepted artifacts use Check and
// Commit so a fingerprint is only remembered once its artifact exists;
// Accept does both at once.
type Filter struct {
	threshold int

	mu       sync.Mutex
	accepted []acceptedHash
}

// NewFilter creates a Filter. Thresholds below 1 are raised to 1 so that
// identical fingerprints are always duplicates.
func NewFilter(threshold int) *Filter {
	return &Filter{threshold: max(threshold, 1)}
}

// Threshold returns the effective distance threshold.
func (f *Filter) Threshold() int {
	return f.threshold
}

// Fingerprint computes the hash of PNG bytes.
func Fingerprint(data []byte) (*goimagehash.ExtImageHash, error) {
	if len(data) == 0 {
		return nil, ErrEmptyArtifact
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	hash, err := goimagehash.ExtDifferenceHash(img, hashSide, hashSide)
	if err != nil {
		return nil, fmt.Errorf("failed to hash screenshot: %w", err)
	}
	return hash, nil
}

// Check fingerprints the artifact, stores the fingerprint on it, and
// decides whether it is new against the committed fingerprints. Check does
// not remember the artifact; pass an accepted Decision to Commit for that.
func (f *Filter) Check(art *model.CaptureArtifact) (Decision, error) {
	hash, err := Fingerprint(art.Raw)
	if err != nil {
		return Decision{}, err
	}
	art.Fingerprint = hash.ToString()

	f.mu.Lock()
	defer f.mu.Unlock()

	decision := Decision{Distance: -1, Fingerprint: art.Fingerprint}
	for _, prev := range f.accepted {
		d, err := hash.Distance(prev.hash)
		if err != nil {
			return Decision{}, fmt.Errorf("failed to compare fingerprints: %w", err)
		}
		if decision.Distance < 0 || d < decision.Distance {
			decision.Distance = d
			decision.DuplicateOf = prev.targetID
		}
	}
	if decision.Distance >= 0 && decision.Distance < f.threshold {
		return decision, nil
	}

	decision.Accepted = true
	decision.DuplicateOf = ""
	decision.targetID = art.Target.ID
	decision.hash = hash
	return decision, nil
}

// Commit remembers the fingerprint of an accepted Decision. Rejected
// decisions are ignored.
func (f *Filter) Commit(d Decision) {
	if !d.Accepted || d.hash == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accepted = append(f.accepted, acceptedHash{targetID: d.targetID, hash: d.hash})
}

// Accept is Check followed by Commit.
func (f *Filter) Accept(art *model.CaptureArtifact) (Decision, error) {
	d, err := f.Check(art)
	if err != nil {
		return Decision{}, err
	}
	f.Commit(d)
	return d, nil
}

// Len returns the number of accepted fingerprints.
func (f *Filter) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.accepted)
}
