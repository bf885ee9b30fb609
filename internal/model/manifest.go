package model

import "time"

// ManifestEntry is one append-only ledger line.
// A target may collect more than one entry over a run (for example
// "captured" followed by "analysis_failed"); the latest entry is terminal.
type ManifestEntry struct {
	// Seq is the append position, starting at 1.
	Seq int `json:"seq"`

	// Target identifies the page or section.
	Target TargetRef `json:"target"`

	// Depth is the page depth (sections inherit their page's depth).
	Depth int `json:"depth"`

	// DiscoveredFrom is the parent page URL, when known.
	DiscoveredFrom string `json:"discovered_from,omitempty"`

	// Outcome is the terminal state recorded by the writing component.
	Outcome Outcome `json:"outcome"`

	// ArtifactRef is the screenshot path relative to the run directory.
	ArtifactRef string `json:"artifact_ref,omitempty"`

	// DuplicateOf references the accepted target this one duplicated.
	DuplicateOf string `json:"duplicate_of,omitempty"`

	// ErrorKind is a stable machine-readable failure class such as
	// "timeout", "network", "http_status", "region_unavailable",
	// "rate_limited", "quota_exceeded" or "invalid_response".
	ErrorKind string `json:"error_kind,omitempty"`

	// Error is the human-readable failure message.
	Error string `json:"error,omitempty"`

	// Warnings carries non-fatal notes from capture.
	Warnings []string `json:"warnings,omitempty"`

	// RecordedAt is when the entry was appended.
	RecordedAt time.Time `json:"recorded_at"`
}
