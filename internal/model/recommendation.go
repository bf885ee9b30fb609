package model

import (
	"slices"
	"strings"
)

// Priority ranks how urgently a recommendation should be addressed.
//
// Design decision: We use iota-based constants ordered from most to least
// urgent so that sorting ascending yields the action list directly. Text
// marshaling keeps the "P0|P1|P2" wire form used by the model and reports.
type Priority int

const (
	// PriorityP0 is a blocking usability problem.
	PriorityP0 Priority = iota
	// PriorityP1 is an important improvement. It is the default.
	PriorityP1
	// PriorityP2 is a polish item.
	PriorityP2
)

// String returns the wire form of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityP0:
		return "P0"
	case PriorityP1:
		return "P1"
	case PriorityP2:
		return "P2"
	default:
		return "UNKNOWN"
	}
}

// ParsePriority parses "P0", "p1", ... and falls back to PriorityP1.
func ParsePriority(s string) Priority {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "P0":
		return PriorityP0
	case "P2":
		return PriorityP2
	default:
		return PriorityP1
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Priority) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Priority) UnmarshalText(b []byte) error {
	*p = ParsePriority(string(b))
	return nil
}

// Impact is the expected user-facing benefit of a recommendation.
type Impact int

const (
	ImpactHigh Impact = iota
	ImpactMedium
	ImpactLow
)

// String returns the wire form of the impact.
func (i Impact) String() string {
	switch i {
	case ImpactHigh:
		return "H"
	case ImpactMedium:
		return "M"
	case ImpactLow:
		return "L"
	default:
		return "UNKNOWN"
	}
}

// ParseImpact parses "H|M|L" and falls back to ImpactMedium.
func ParseImpact(s string) Impact {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "H":
		return ImpactHigh
	case "L":
		return ImpactLow
	default:
		return ImpactMedium
	}
}

// MarshalText implements encoding.TextMarshaler.
func (i Impact) MarshalText() ([]byte, error) { return []byte(i.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *Impact) UnmarshalText(b []byte) error {
	*i = ParseImpact(string(b))
	return nil
}

// Effort is the estimated implementation cost of a recommendation.
type Effort int

const (
	EffortSmall Effort = iota
	EffortMedium
	EffortLarge
)

// String returns the wire form of the effort.
func (e Effort) String() string {
	switch e {
	case EffortSmall:
		return "S"
	case EffortMedium:
		return "M"
	case EffortLarge:
		return "L"
	default:
		return "UNKNOWN"
	}
}

// ParseEffort parses "S|M|L" and falls back to EffortMedium.
func ParseEffort(s string) Effort {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "S":
		return EffortSmall
	case "L":
		return EffortLarge
	default:
		return EffortMedium
	}
}

// MarshalText implements encoding.TextMarshaler.
func (e Effort) MarshalText() ([]byte, error) { return []byte(e.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *Effort) UnmarshalText(b []byte) error {
	*e = ParseEffort(string(b))
	return nil
}

// Evidence points at the screenshot region that supports a recommendation.
type Evidence struct {
	ScreenshotID string `json:"screenshot_id"`
	Note         string `json:"note,omitempty"`
	Location     string `json:"location,omitempty"`
}

// Recommendation is a normalized UX finding.
type Recommendation struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Rationale   string     `json:"rationale,omitempty"`
	Priority    Priority   `json:"priority"`
	Impact      Impact     `json:"impact"`
	Effort      Effort     `json:"effort"`
	Evidence    []Evidence `json:"evidence,omitempty"`
	Tags        []string   `json:"tags,omitempty"`

	// TargetID is the page or section the finding was produced for.
	TargetID string `json:"target_id,omitempty"`
}

// SortRecommendations orders recommendations by priority, then impact
// (high first), then effort (small first). The sort is stable, so findings
// with equal rank keep the order in which targets were analyzed.
func SortRecommendations(recs []Recommendation) {
	slices.SortStableFunc(recs, func(a, b Recommendation) int {
		if a.Priority != b.Priority {
			return int(a.Priority) - int(b.Priority)
		}
		if a.Impact != b.Impact {
			return int(a.Impact) - int(b.Impact)
		}
		return int(a.Effort) - int(b.Effort)
	})
}
