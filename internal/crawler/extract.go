package crawler

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"net/url"
	"slices"
	"strings"

	"github.com/nao1215/uxaudit/internal/model"
	"github.com/nao1215/uxaudit/internal/render"
)

// Section geometry thresholds, relative to the viewport where noted.
const (
	// MinSectionWidthRatio is the minimum width as a share of viewport width.
	MinSectionWidthRatio = 0.4

	// MinSectionHeight is the minimum height in CSS pixels.
	MinSectionHeight = 120

	// MaxSectionHeightRatio is the maximum height as a multiple of viewport height.
	MaxSectionHeightRatio = 2.5

	// MaxSectionOverlap is the IoU above which a candidate duplicates an
	// earlier accepted section.
	MaxSectionOverlap = 0.6
)

// LinkCandidate is a normalized navigation link found on a page.
type LinkCandidate struct {
	// Target is the page candidate at the parent's depth plus one.
	Target model.PageTarget

	// Rejected is the scope rejection reason, or "" when in scope.
	Rejected string
}

// Extractor discovers navigation links and section candidates.
// It is safe for concurrent use.
type Extractor struct {
	normalizer *Normalizer
	scope      *Scope
	viewport   model.Viewport
}

// NewExtractor creates an Extractor.
func NewExtractor(normalizer *Normalizer, scope *Scope, viewport model.Viewport) *Extractor {
	return &Extractor{normalizer: normalizer, scope: scope, viewport: viewport}
}

// Discovery holds the element snapshots of one page. Links and Sections are
// lazy, finite and single-use: a second range over either yields nothing.
type Discovery struct {
	extractor *Extractor
	pageURL   string
	from      model.PageTarget

	links     []render.ElementInfo
	landmarks []render.ElementInfo
	headings  []render.ElementInfo
	anchors   []render.ElementInfo
	ids       []render.ElementInfo
	docWidth  float64
	docHeight float64

	linksUsed    bool
	sectionsUsed bool
}

// Discover queries the page once. Link elements are only queried when
// withLinks is set; the caller passes false when the page's children would
// exceed the depth limit, so those links are never normalized.
func (e *Extractor) Discover(ctx context.Context, page render.Page, from model.PageTarget, withLinks bool) (*Discovery, error) {
	d := &Discovery{extractor: e, pageURL: page.URL(), from: from}
	if d.pageURL == "" {
		d.pageURL = from.URL
	}

	var err error
	if withLinks {
		if d.links, err = page.Query(ctx, render.NavLinkSelector); err != nil {
			return nil, fmt.Errorf("failed to query navigation links: %w", err)
		}
	}
	if d.landmarks, err = page.Query(ctx, render.LandmarkSelector); err != nil {
		return nil, fmt.Errorf("failed to query landmarks: %w", err)
	}
	if d.headings, err = page.Query(ctx, render.HeadingSelector); err != nil {
		return nil, fmt.Errorf("failed to query headings: %w", err)
	}
	if d.anchors, err = page.Query(ctx, render.InPageAnchorSelector); err != nil {
		return nil, fmt.Errorf("failed to query in-page anchors: %w", err)
	}
	if len(d.anchors) > 0 {
		if d.ids, err = page.Query(ctx, render.IDSelector); err != nil {
			return nil, fmt.Errorf("failed to query anchor targets: %w", err)
		}
	}
	if d.docWidth, d.docHeight, err = page.DocumentSize(ctx); err != nil {
		return nil, fmt.Errorf("failed to measure document: %w", err)
	}
	return d, nil
}

// Links yields navigation links in document order, resolved against the
// page URL and normalized. Each canonical URL is yielded once per page.
// Links that cannot be navigated (fragments, javascript:, mailto:) are dropped.
func (d *Discovery) Links(ctx context.Context) iter.Seq[LinkCandidate] {
	return func(yield func(LinkCandidate) bool) {
		if d.linksUsed {
			return
		}
		d.linksUsed = true

		seen := make(map[string]struct{}, len(d.links))
		for _, el := range d.links {
			href := strings.TrimSpace(el.Href)
			if href == "" || strings.HasPrefix(href, "#") {
				continue
			}
			canonical, err := d.extractor.normalizer.Resolve(d.pageURL, href)
			if err != nil {
				continue
			}
			if _, dup := seen[canonical]; dup {
				continue
			}
			seen[canonical] = struct{}{}

			c := LinkCandidate{Target: model.PageTarget{
				URL:            canonical,
				Depth:          d.from.Depth + 1,
				DiscoveredFrom: d.from.URL,
			}}
			if d.extractor.scope != nil {
				c.Rejected = d.extractor.scope.Check(ctx, canonical)
			}
			if !yield(c) {
				return
			}
		}
	}
}

// sectionCandidate is an element that may open a section. rank breaks ties
// between rules matching the same element: lower is tried first.
type sectionCandidate struct {
	order  int
	rank   int
	target model.SectionTarget
	text   bool
}

// Sections yields section candidates in document order after the geometric
// filters: minimum width and height, maximum height, inside the document,
// carrying text, and not overlapping an earlier section by more than
// MaxSectionOverlap. When several rules match one element, the first
// candidate that passes the filters is kept.
func (d *Discovery) Sections() iter.Seq[model.SectionTarget] {
	return func(yield func(model.SectionTarget) bool) {
		if d.sectionsUsed {
			return
		}
		d.sectionsUsed = true

		candidates := d.sectionCandidates()
		vw := float64(d.extractor.viewport.Width)
		vh := float64(d.extractor.viewport.Height)

		var accepted []model.Rect
		done := make(map[int]bool)
		for _, c := range candidates {
			if done[c.order] {
				continue
			}
			region := c.target.Region.ClampTo(d.docWidth, d.docHeight)
			if !sectionFits(region, c.text, vw, vh) || overlapsAny(region, accepted) {
				continue
			}
			done[c.order] = true
			accepted = append(accepted, region)

			t := c.target
			t.Region = region
			if !yield(t) {
				return
			}
		}
	}
}

func (d *Discovery) sectionCandidates() []sectionCandidate {
	var out []sectionCandidate

	landmarkOrder := make(map[int]bool, len(d.landmarks))
	for _, el := range d.landmarks {
		landmarkOrder[el.Order] = true
		out = append(out, sectionCandidate{
			order: el.Order,
			rank:  0,
			text:  el.HasText,
			target: model.SectionTarget{
				PageURL:  d.from.URL,
				Selector: el.Selector,
				Title:    el.Title,
				Source:   model.SectionFromLandmark,
				Region:   el.Box,
			},
		})
	}

	anchored := make(map[string]bool, len(d.anchors))
	for _, a := range d.anchors {
		if id := anchorID(a.Href); id != "" {
			anchored[id] = true
		}
	}
	for _, el := range d.ids {
		if !anchored[el.ID] || landmarkOrder[el.Order] {
			continue
		}
		out = append(out, sectionCandidate{
			order: el.Order,
			rank:  1,
			text:  el.HasText,
			target: model.SectionTarget{
				PageURL:  d.from.URL,
				Selector: el.Selector,
				Title:    el.Title,
				Source:   model.SectionFromAnchor,
				Region:   el.Box,
			},
		})
	}

	for i, h := range d.headings {
		var end *render.ElementInfo
		for j := i + 1; j < len(d.headings); j++ {
			if d.headings[j].Level <= h.Level {
				end = &d.headings[j]
				break
			}
		}
		t := model.SectionTarget{
			PageURL:  d.from.URL,
			Selector: h.Selector,
			Title:    h.Title,
			Source:   model.SectionFromHeading,
		}
		if end != nil {
			t.EndSelector = end.Selector
			t.Region = model.BandBetween(h.Box, &end.Box, d.docWidth, d.docHeight)
		} else {
			t.Region = model.BandBetween(h.Box, nil, d.docWidth, d.docHeight)
		}
		out = append(out, sectionCandidate{order: h.Order, rank: 2, text: h.HasText, target: t})
	}

	slices.SortStableFunc(out, func(a, b sectionCandidate) int {
		if c := cmp.Compare(a.order, b.order); c != 0 {
			return c
		}
		return cmp.Compare(a.rank, b.rank)
	})
	return out
}

func sectionFits(r model.Rect, hasText bool, vw, vh float64) bool {
	if r.Empty() || !hasText {
		return false
	}
	if r.Width < MinSectionWidthRatio*vw {
		return false
	}
	if r.Height < MinSectionHeight {
		return false
	}
	return r.Height <= MaxSectionHeightRatio*vh
}

func overlapsAny(r model.Rect, accepted []model.Rect) bool {
	for _, a := range accepted {
		if r.IoU(a) > MaxSectionOverlap {
			return true
		}
	}
	return false
}

// anchorID extracts the target id of an in-page "#id" link.
func anchorID(href string) string {
	frag, ok := strings.CutPrefix(strings.TrimSpace(href), "#")
	if !ok || frag == "" {
		return ""
	}
	if decoded, err := url.PathUnescape(frag); err == nil {
		return decoded
	}
	return frag
}
