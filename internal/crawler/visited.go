package crawler

import (
	"maps"
	"sync"

	"github.com/nao1215/uxaudit/internal/model"
)

// VisitSet holds the admission state of every normalized URL seen in a run.
// A URL enters the set once and is never removed.
type VisitSet struct {
	mu     sync.Mutex
	states map[string]model.VisitStatus
}

// NewVisitSet creates an empty set.
func NewVisitSet() *VisitSet {
	return &VisitSet{states: make(map[string]model.VisitStatus)}
}

// HasVisited reports whether the URL was ever admitted to the set.
func (v *VisitSet) HasVisited(canonical string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.states[canonical]
	return ok
}

// MarkVisited adds the URL as pending. It returns false, without changing
// anything, when the URL is already present. The check and the insert are
// one atomic step.
func (v *VisitSet) MarkVisited(canonical string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.states[canonical]; ok {
		return false
	}
	v.states[canonical] = model.VisitPending
	return true
}

// Resolve moves a known URL to its next status. Unknown URLs are ignored.
func (v *VisitSet) Resolve(canonical string, status model.VisitStatus) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.states[canonical]; ok {
		v.states[canonical] = status
	}
}

// Status returns the current status of a URL.
func (v *VisitSet) Status(canonical string) (model.VisitStatus, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	s, ok := v.states[canonical]
	return s, ok
}

// Len returns the number of URLs in the set.
func (v *VisitSet) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.states)
}

// Count returns how many URLs have the given status.
func (v *VisitSet) Count(status model.VisitStatus) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, s := range v.states {
		if s == status {
			n++
		}
	}
	return n
}

// Snapshot returns a copy of the set.
func (v *VisitSet) Snapshot() map[string]model.VisitStatus {
	v.mu.Lock()
	defer v.mu.Unlock()
	return maps.Clone(v.states)
}
