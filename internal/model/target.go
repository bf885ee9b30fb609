package model

import (
	"fmt"
	"math"
	"strings"
)

// TargetKind distinguishes full-page targets from in-page section targets.
type TargetKind string

const (
	// TargetPage is a full page captured at the configured viewport.
	TargetPage TargetKind = "page"

	// TargetSection is a clipped region of an already loaded page.
	TargetSection TargetKind = "section"
)

// TargetRef identifies a target in the manifest, in artifacts and in reports.
// ID is assigned at admission time and is stable for the run: pages are
// "page-N" in admission order, sections are "page-N-section-M".
type TargetRef struct {
	// ID is the run-scoped identifier of the target.
	ID string `json:"id,omitempty"`

	// Kind is page or section.
	Kind TargetKind `json:"kind"`

	// URL is the normalized page URL (the owning page for sections).
	URL string `json:"url"`

	// Selector locates a section inside its page. Empty for pages.
	Selector string `json:"selector,omitempty"`
}

// String returns a human-readable form used in logs.
func (r TargetRef) String() string {
	if r.Kind == TargetSection && r.Selector != "" {
		return fmt.Sprintf("%s [%s]", r.URL, r.Selector)
	}
	return r.URL
}

// PageID returns the identifier of the page for the given admission sequence.
func PageID(seq int) string {
	return fmt.Sprintf("page-%d", seq)
}

// SectionID returns the identifier of the index-th section of a page.
func SectionID(pageID string, index int) string {
	return fmt.Sprintf("%s-section-%d", pageID, index)
}

// ScreenshotID returns the identifier the analysis model uses to cite a
// screenshot: "page-3" becomes "shot-3" and "page-3-section-2" becomes
// "shot-3-s2". IDs that do not follow the target scheme are returned with a
// "shot-" prefix.
func ScreenshotID(ref TargetRef) string {
	id := ref.ID
	rest, ok := strings.CutPrefix(id, "page-")
	if !ok {
		return "shot-" + id
	}
	if page, section, found := strings.Cut(rest, "-section-"); found {
		return fmt.Sprintf("shot-%s-s%s", page, section)
	}
	return "shot-" + rest
}

// PageTarget is a page candidate for capture.
// It is immutable after creation and consumed exactly once by the scheduler.
type PageTarget struct {
	// URL is the normalized URL of the page.
	URL string `json:"url"`

	// Depth is the link distance from the seed (the seed is depth 0).
	Depth int `json:"depth"`

	// DiscoveredFrom is the normalized URL of the page that linked here.
	// Empty for the seed.
	DiscoveredFrom string `json:"discovered_from,omitempty"`
}

// SectionSource records which discovery rule produced a section.
type SectionSource string

const (
	// SectionFromLandmark is an id-bearing sectioning element or ARIA landmark.
	SectionFromLandmark SectionSource = "landmark"

	// SectionFromHeading is a region delimited by an h1-h3 heading.
	SectionFromHeading SectionSource = "heading"

	// SectionFromAnchor is an element referenced by an on-page "#id" link.
	SectionFromAnchor SectionSource = "anchor"
)

// SectionTarget is an in-page region candidate. It is scoped to the
// processing of its page and never re-enqueued.
type SectionTarget struct {
	// PageURL is the normalized URL of the owning page.
	PageURL string `json:"page_url"`

	// Selector is a CSS selector (or "#id" anchor) that locates the region.
	Selector string `json:"selector"`

	// EndSelector bounds heading-delimited sections: the region ends where
	// this element starts. Empty when the region is a single element or
	// extends to the end of the document.
	EndSelector string `json:"end_selector,omitempty"`

	// Title is a human label for the region, if one could be derived.
	Title string `json:"title,omitempty"`

	// Source is the discovery rule that produced this candidate.
	Source SectionSource `json:"source"`

	// Region is the bounding box in document coordinates at discovery time.
	Region Rect `json:"region"`
}

// Rect is an axis-aligned box in CSS pixels, in document coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Area returns the box area, or zero for degenerate boxes.
func (r Rect) Area() float64 {
	if r.Width <= 0 || r.Height <= 0 {
		return 0
	}
	return r.Width * r.Height
}

// Empty reports whether the box has no visible area.
func (r Rect) Empty() bool {
	return r.Area() == 0
}

// Intersect returns the overlapping region of r and o.
func (r Rect) Intersect(o Rect) Rect {
	x0 := math.Max(r.X, o.X)
	y0 := math.Max(r.Y, o.Y)
	x1 := math.Min(r.X+r.Width, o.X+o.Width)
	y1 := math.Min(r.Y+r.Height, o.Y+o.Height)
	if x1 <= x0 || y1 <= y0 {
		return Rect{}
	}
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// IoU returns the intersection-over-union ratio of two boxes.
func (r Rect) IoU(o Rect) float64 {
	inter := r.Intersect(o).Area()
	if inter == 0 {
		return 0
	}
	union := r.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// ClampTo restricts the box to a document of the given size.
func (r Rect) ClampTo(width, height float64) Rect {
	return r.Intersect(Rect{Width: width, Height: height})
}

// BandBetween returns the full-width band that starts at the top of start and
// ends at the top of end. A nil end extends the band to the bottom of the
// document. The result is clamped to the document.
func BandBetween(start Rect, end *Rect, docWidth, docHeight float64) Rect {
	bottom := docHeight
	if end != nil && end.Y > start.Y {
		bottom = end.Y
	}
	band := Rect{X: 0, Y: start.Y, Width: docWidth, Height: bottom - start.Y}
	return band.ClampTo(docWidth, docHeight)
}

// Viewport is the browser window size used for every capture.
type Viewport struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}
