package model

import (
	"encoding/json"
	"time"
)

// AuditReport is the aggregated result of a run.
// It is written as report.json, rendered by the report writers, and stored
// in the history database.
//
// Design decision: We keep the manifest inside the report rather than only
// referencing manifest.json because:
// 1. Reports must remain inspectable on their own after early termination
// 2. Writers need outcomes to flag "captured but not analyzed" targets
// 3. The history database stores both from a single value
type AuditReport struct {
	// RunID identifies the run and names its directory.
	RunID string `json:"run_id"`

	// SeedURL is the normalized starting URL.
	SeedURL string `json:"seed_url"`

	// Model is the resolved vision model name. Empty when analysis was disabled.
	Model string `json:"model,omitempty"`

	// StartedAt and CompletedAt bound the run.
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`

	// Status describes how the run terminated.
	Status RunStatus `json:"status"`

	// Error holds the terminating error for non-completed runs.
	Error string `json:"error,omitempty"`

	// Pages lists every page target that reached the capture stage.
	Pages []PageRecord `json:"pages"`

	// Sections lists every section target that reached the capture stage.
	Sections []SectionRecord `json:"sections,omitempty"`

	// Screenshots lists accepted artifacts.
	Screenshots []Screenshot `json:"screenshots"`

	// Manifest is the full run ledger in append order.
	Manifest []ManifestEntry `json:"manifest"`

	// Analyses holds per-screenshot model summaries.
	Analyses []AnalysisItem `json:"analyses,omitempty"`

	// Recommendations is the flattened, priority-sorted finding list.
	Recommendations []Recommendation `json:"recommendations"`
}

// PageRecord summarizes a processed page.
type PageRecord struct {
	ID         string  `json:"id"`
	URL        string  `json:"url"`
	Depth      int     `json:"depth"`
	Title      string  `json:"title,omitempty"`
	StatusCode int     `json:"status_code,omitempty"`
	Outcome    Outcome `json:"outcome"`
	Error      string  `json:"error,omitempty"`
}

// SectionRecord summarizes a processed section.
type SectionRecord struct {
	ID       string  `json:"id"`
	PageID   string  `json:"page_id"`
	PageURL  string  `json:"page_url"`
	Title    string  `json:"title,omitempty"`
	Selector string  `json:"selector"`
	Outcome  Outcome `json:"outcome"`
	Error    string  `json:"error,omitempty"`
}

// Screenshot describes an accepted artifact on disk.
type Screenshot struct {
	ID           string     `json:"id"`
	TargetID     string     `json:"target_id"`
	Kind         TargetKind `json:"kind"`
	Path         string     `json:"path"`
	PreparedPath string     `json:"prepared_path,omitempty"`
	Width        int        `json:"width"`
	Height       int        `json:"height"`
	Fingerprint  string     `json:"fingerprint"`
}

// AnalysisItem is the model's answer for one screenshot.
// Analysis and RawResponse keep the answer as received so a run can be
// inspected or re-normalized later.
type AnalysisItem struct {
	TargetID     string `json:"target_id"`
	ScreenshotID string `json:"screenshot_id"`
	URL          string `json:"url"`
	Title        string `json:"title,omitempty"`
	SectionTitle string `json:"section_title,omitempty"`
	Summary      string `json:"summary,omitempty"`

	// Analysis is the decoded JSON payload of the response.
	Analysis json.RawMessage `json:"analysis,omitempty"`

	// RawResponse is the model text the payload was extracted from.
	RawResponse string `json:"raw_response,omitempty"`
}

// Counts returns the number of targets per terminal outcome.
// Only the latest entry of each target is counted.
func (r *AuditReport) Counts() map[Outcome]int {
	return CountOutcomes(r.Manifest)
}

// CountOutcomes tallies terminal outcomes of a manifest.
func CountOutcomes(entries []ManifestEntry) map[Outcome]int {
	latest := make(map[string]Outcome, len(entries))
	order := make([]string, 0, len(entries))
	for _, e := range entries {
		key := entryKey(e)
		if _, ok := latest[key]; !ok {
			order = append(order, key)
		}
		latest[key] = e.Outcome
	}
	counts := make(map[Outcome]int)
	for _, k := range order {
		counts[latest[k]]++
	}
	return counts
}

func entryKey(e ManifestEntry) string {
	if e.Target.ID != "" {
		return e.Target.ID
	}
	return string(e.Target.Kind) + "|" + e.Target.URL + "|" + e.Target.Selector
}

// RecommendationsByPriority groups recommendations by priority.
func (r *AuditReport) RecommendationsByPriority() map[Priority][]Recommendation {
	grouped := make(map[Priority][]Recommendation)
	for _, rec := range r.Recommendations {
		grouped[rec.Priority] = append(grouped[rec.Priority], rec)
	}
	return grouped
}

// Duration returns the wall-clock length of the run.
func (r *AuditReport) Duration() time.Duration {
	if r.CompletedAt.IsZero() {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}
