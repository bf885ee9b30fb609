package model

// Outcome is the terminal state of a target as recorded in the manifest.
type Outcome string

const (
	// OutcomeCaptured means the artifact was accepted by the dedup filter.
	OutcomeCaptured Outcome = "captured"

	// OutcomeDuplicate means the capture was a near-duplicate of an
	// earlier accepted artifact and its bytes were discarded.
	OutcomeDuplicate Outcome = "duplicate"

	// OutcomeFailed means navigation or region capture failed.
	OutcomeFailed Outcome = "failed"

	// OutcomeSkippedBudget means a budget ceiling was reached before the
	// target could be processed.
	OutcomeSkippedBudget Outcome = "skipped_budget"

	// OutcomeSkippedCancelled means the run was stopped externally before
	// the target could be processed.
	OutcomeSkippedCancelled Outcome = "skipped_cancelled"

	// OutcomeSkippedScope means the URL failed the domain, path or robots
	// policy. These are skips, not failures.
	OutcomeSkippedScope Outcome = "skipped_scope"

	// OutcomeAnalysisFailed means the target was captured but the vision
	// model could not analyze it.
	OutcomeAnalysisFailed Outcome = "analysis_failed"
)

// AllOutcomes lists outcomes in report order.
func AllOutcomes() []Outcome {
	return []Outcome{
		OutcomeCaptured,
		OutcomeDuplicate,
		OutcomeFailed,
		OutcomeAnalysisFailed,
		OutcomeSkippedBudget,
		OutcomeSkippedCancelled,
		OutcomeSkippedScope,
	}
}

// IsSkip reports whether the outcome is a recorded skip rather than a
// processing result.
func (o Outcome) IsSkip() bool {
	switch o {
	case OutcomeSkippedBudget, OutcomeSkippedCancelled, OutcomeSkippedScope:
		return true
	default:
		return false
	}
}

// IsFailure reports whether the outcome should be surfaced as a problem.
func (o Outcome) IsFailure() bool {
	return o == OutcomeFailed || o == OutcomeAnalysisFailed
}

// VisitStatus is the per-URL admission state held by the scheduler.
// Every normalized URL has at most one status for the lifetime of a run.
type VisitStatus string

const (
	VisitPending       VisitStatus = "pending"
	VisitVisited       VisitStatus = "visited"
	VisitFailed        VisitStatus = "failed"
	VisitSkippedBudget VisitStatus = "skipped_budget"
)

// RunStatus describes how a run terminated.
type RunStatus string

const (
	// RunCompleted means the frontier drained or a budget was reached.
	RunCompleted RunStatus = "completed"

	// RunSystemicFailure means the consecutive-failure ceiling was breached.
	RunSystemicFailure RunStatus = "systemic_failure"

	// RunCancelled means an external stop signal ended the run.
	RunCancelled RunStatus = "cancelled"
)
