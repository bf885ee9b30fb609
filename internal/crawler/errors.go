package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidURL is returned when a URL cannot be parsed or is not absolute.
	ErrInvalidURL = errors.New("invalid url")

	// ErrUnsupportedScheme is returned for URLs that are not http or https.
	ErrUnsupportedScheme = errors.New("unsupported url scheme")

	// ErrPageBudget means the page-count ceiling was reached.
	ErrPageBudget = errors.New("page budget exhausted")

	// ErrScreenshotBudget means the accepted-screenshot ceiling was reached.
	ErrScreenshotBudget = errors.New("screenshot budget exhausted")

	// ErrAttemptBudget means the capture-attempt safety ceiling was reached.
	ErrAttemptBudget = errors.New("capture attempt budget exhausted")

	// ErrSectionBudget means the per-page section ceiling was reached.
	ErrSectionBudget = errors.New("per-page section budget exhausted")

	// ErrSystemicFailure is matched by SystemicFailureError.
	ErrSystemicFailure = errors.New("systemic failure")
)

// SystemicFailureError reports that the consecutive page failure ceiling was
// breached. The run stops early; entries recorded before it remain valid.
type SystemicFailureError struct {
	// Consecutive is the number of consecutive failed pages.
	Consecutive int

	// Last is the error of the final failed page.
	Last error
}

// Error implements the error interface.
func (e *SystemicFailureError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("systemic failure: %d consecutive page failures", e.Consecutive)
	}
	return fmt.Sprintf("systemic failure: %d consecutive page failures, last: %v", e.Consecutive, e.Last)
}

// Is makes errors.Is(err, ErrSystemicFailure) true.
func (e *SystemicFailureError) Is(target error) bool {
	return target == ErrSystemicFailure
}

// Unwrap returns the last page error.
func (e *SystemicFailureError) Unwrap() error {
	return e.Last
}

// isBudgetError reports whether err is one of the budget sentinels.
func isBudgetError(err error) bool {
	return errors.Is(err, ErrPageBudget) ||
		errors.Is(err, ErrScreenshotBudget) ||
		errors.Is(err, ErrAttemptBudget) ||
		errors.Is(err, ErrSectionBudget)
}
