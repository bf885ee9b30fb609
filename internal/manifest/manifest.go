package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nao1215/uxaudit/internal/model"
)

// FileName is the manifest file name inside a run directory.
const FileName = "manifest.json"

// ErrInvalidManifest is returned when a manifest file cannot be decoded.
var ErrInvalidManifest = errors.New("invalid manifest file")

// Observer is notified after every append. It runs under no lock and must
// not call back into the Accumulator.
type Observer func(entry model.ManifestEntry)

// Option configures an Accumulator.
type Option func(*Accumulator)

// WithObserver registers a callback for appended entries.
func WithObserver(o Observer) Option {
	return func(a *Accumulator) {
		if o != nil {
			a.observers = append(a.observers, o)
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(a *Accumulator) {
		if now != nil {
			a.now = now
		}
	}
}

// Accumulator collects manifest entries for a run.
type Accumulator struct {
	mu        sync.Mutex
	entries   []model.ManifestEntry
	now       func() time.Time
	observers []Observer
}

// New creates an empty Accumulator.
func New(opts ...Option) *Accumulator {
	a := &Accumulator{now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Append records an entry. Seq and RecordedAt are assigned here; any values
// set by the caller are overwritten. The stored entry is returned.
func (a *Accumulator) Append(entry model.ManifestEntry) model.ManifestEntry {
	a.mu.Lock()
	entry.Seq = len(a.entries) + 1
	entry.RecordedAt = a.now().UTC()
	if len(entry.Warnings) > 0 {
		entry.Warnings = append([]string(nil), entry.Warnings...)
	}
	a.entries = append(a.entries, entry)
	a.mu.Unlock()

	for _, o := range a.observers {
		o(entry)
	}
	return entry
}

// Entries returns a copy of all entries in append order.
func (a *Accumulator) Entries() []model.ManifestEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]model.ManifestEntry(nil), a.entries...)
}

// Len returns the number of entries.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// Counts returns the number of targets per terminal outcome.
func (a *Accumulator) Counts() map[model.Outcome]int {
	return model.CountOutcomes(a.Entries())
}

// Latest returns the most recent entry for a target ID.
func (a *Accumulator) Latest(targetID string) (model.ManifestEntry, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := len(a.entries) - 1; i >= 0; i-- {
		if a.entries[i].Target.ID == targetID {
			return a.entries[i], true
		}
	}
	return model.ManifestEntry{}, false
}

// Filter returns the entries with the given outcome, in append order.
func (a *Accumulator) Filter(outcome model.Outcome) []model.ManifestEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []model.ManifestEntry
	for _, e := range a.entries {
		if e.Outcome == outcome {
			out = append(out, e)
		}
	}
	return out
}

// document is the on-disk layout of manifest.json.
type document struct {
	RunID   string                `json:"run_id,omitempty"`
	Counts  map[model.Outcome]int `json:"counts"`
	Entries []model.ManifestEntry `json:"entries"`
}

// WriteFile writes the manifest as indented JSON. The file is written to a
// temporary name first and renamed so readers never see a partial manifest.
func (a *Accumulator) WriteFile(path, runID string) error {
	entries := a.Entries()
	if entries == nil {
		entries = []model.ManifestEntry{}
	}
	doc := document{
		RunID:   runID,
		Counts:  model.CountOutcomes(entries),
		Entries: entries,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to move manifest into place: %w", err)
	}
	return nil
}

// ReadFile loads the entries of a manifest written by WriteFile.
func ReadFile(path string) ([]model.ManifestEntry, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is a run directory chosen by the user
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	return doc.Entries, nil
}
