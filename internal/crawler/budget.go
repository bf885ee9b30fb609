package crawler

import (
	"context"
	"sync"
)

// Limits are the ceilings enforced by a Budget.
type Limits struct {
	// MaxPages bounds admitted pages.
	MaxPages int

	// MaxSectionsPerPage bounds section candidates admitted per page.
	MaxSectionsPerPage int

	// MaxScreenshots bounds accepted (non-duplicate) screenshots.
	MaxScreenshots int

	// MaxAttempts bounds capture attempts, duplicates and retries included.
	MaxAttempts int
}

// Budget tracks run counters against Limits.
//
// A capture holds a reservation on a screenshot slot from admission until
// its artifact is either accepted (Commit) or discarded as a failure or
// duplicate (Release). Reserve waits while every free slot is held by an
// in-flight capture, so that the admit/skip decision only depends on
// settled results.
type Budget struct {
	limits Limits

	mu       sync.Mutex
	pages    int
	accepted int
	reserved int
	attempts int
	changed  chan struct{}
}

// Stats is a snapshot of budget counters.
type Stats struct {
	Pages    int `json:"pages"`
	Accepted int `json:"accepted"`
	Attempts int `json:"attempts"`
}

// NewBudget creates a Budget. A non-positive MaxAttempts defaults to three
// attempts per screenshot.
func NewBudget(limits Limits) *Budget {
	if limits.MaxAttempts <= 0 {
		limits.MaxAttempts = 3 * limits.MaxScreenshots
	}
	return &Budget{limits: limits, changed: make(chan struct{})}
}

// Limits returns the configured ceilings.
func (b *Budget) Limits() Limits {
	return b.limits
}

// CanAdmitPage returns ErrPageBudget when no more pages may be admitted.
func (b *Budget) CanAdmitPage() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pages >= b.limits.MaxPages {
		return ErrPageBudget
	}
	return nil
}

// CommitPage counts an admitted page.
func (b *Budget) CommitPage() {
	b.mu.Lock()
	b.pages++
	b.mu.Unlock()
}

// CanAdmitSection returns ErrSectionBudget when index (zero-based) is beyond
// the per-page section ceiling.
func (b *Budget) CanAdmitSection(index int) error {
	if index >= b.limits.MaxSectionsPerPage {
		return ErrSectionBudget
	}
	return nil
}

// Reserve takes one capture attempt and one screenshot slot. It returns
// ErrAttemptBudget or ErrScreenshotBudget once the outcome is certain, and
// blocks while the answer depends on in-flight captures.
func (b *Budget) Reserve(ctx context.Context) error {
	for {
		b.mu.Lock()
		switch {
		case b.attempts >= b.limits.MaxAttempts:
			b.mu.Unlock()
			return ErrAttemptBudget
		case b.accepted >= b.limits.MaxScreenshots:
			b.mu.Unlock()
			return ErrScreenshotBudget
		case b.accepted+b.reserved < b.limits.MaxScreenshots:
			b.reserved++
			b.attempts++
			b.mu.Unlock()
			return nil
		}
		wait := b.changed
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}
	}
}

// TryAttempt takes one extra capture attempt for a held reservation, such as
// a retry. It reports false when the attempt ceiling is reached.
func (b *Budget) TryAttempt() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.attempts >= b.limits.MaxAttempts {
		return false
	}
	b.attempts++
	return true
}

// Commit turns a reservation into an accepted screenshot.
func (b *Budget) Commit() {
	b.settle(true)
}

// Release returns a reservation without accepting anything.
func (b *Budget) Release() {
	b.settle(false)
}

func (b *Budget) settle(accept bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.reserved > 0 {
		b.reserved--
	}
	if accept {
		b.accepted++
	}
	close(b.changed)
	b.changed = make(chan struct{})
}

// Stats returns the current counters.
func (b *Budget) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{Pages: b.pages, Accepted: b.accepted, Attempts: b.attempts}
}
