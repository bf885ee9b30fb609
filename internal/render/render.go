package render

import (
	"context"
	"time"

	"github.com/nao1215/uxaudit/internal/model"
)

// Selectors used for discovery. They are plain CSS selector lists so every
// query returns matches in document order.
const (
	// NavLinkSelector matches links inside navigation landmark regions.
	NavLinkSelector = "nav a[href], header a[href], footer a[href], [role=navigation] a[href]"

	// LandmarkSelector matches sectioning elements and ARIA landmarks that
	// carry an id.
	LandmarkSelector = "section[id], main[id], article[id], aside[id], header[id], footer[id], nav[id], " +
		"[role=region][id], [role=main][id], [role=banner][id], [role=contentinfo][id], [aria-labelledby][id]"

	// HeadingSelector matches headings used as section delimiters.
	HeadingSelector = "h1, h2, h3"

	// InPageAnchorSelector matches links that point at an in-page target.
	InPageAnchorSelector = "a[href^='#']"

	// IDSelector matches every element carrying an id. Anchor targets are
	// resolved from it.
	IDSelector = "[id]"
)

// OpenOptions configures a navigation.
type OpenOptions struct {
	// Viewport is the emulated window size.
	Viewport model.Viewport

	// UserAgent overrides the browser user agent when non-empty.
	UserAgent string

	// Timeout bounds the navigation until the load event.
	Timeout time.Duration

	// Cookie is a "name=value; name2=value2" header applied to the target URL.
	Cookie string

	// Headers are extra HTTP headers sent with every request of the page.
	Headers map[string]string
}

// Browser opens isolated pages. Implementations must be safe for concurrent
// use: each concurrent render gets its own tab.
type Browser interface {
	// Open navigates a new tab to rawURL and waits for the load event.
	// It returns a *NavigationError on timeouts, transport errors and
	// non-2xx responses.
	Open(ctx context.Context, rawURL string, opts OpenOptions) (Page, error)

	// Close releases the browser.
	Close() error
}

// Page is a loaded tab.
type Page interface {
	// URL returns the document URL after redirects.
	URL() string

	// Title returns the document title.
	Title() string

	// StatusCode returns the HTTP status of the main document, or 0 if unknown.
	StatusCode() int

	// WaitQuiescent waits for network activity to settle. It returns
	// ErrQuiescenceTimeout when the timeout elapses first.
	WaitQuiescent(ctx context.Context, timeout time.Duration) error

	// Query returns snapshots of the elements matching a CSS selector list,
	// in document order.
	Query(ctx context.Context, selector string) ([]ElementInfo, error)

	// Locate returns the current bounding box of the element matching
	// selector. It returns ErrRegionUnavailable when nothing matches.
	Locate(ctx context.Context, selector string) (model.Rect, error)

	// DocumentSize returns the scrollable document dimensions.
	DocumentSize(ctx context.Context) (width, height float64, err error)

	// Screenshot captures the full page when clip is nil, or exactly the
	// clip region (document coordinates) otherwise. It returns PNG bytes.
	Screenshot(ctx context.Context, clip *model.Rect) ([]byte, error)

	// Close closes the tab.
	Close() error
}

// ElementInfo is a snapshot of an element taken at query time.
type ElementInfo struct {
	// Order is the element's position in document order. Snapshots from
	// different queries of the same page can be merged by it.
	Order int `json:"order"`

	// Selector uniquely locates the element in the document at query time.
	Selector string `json:"selector"`

	// Tag is the lower-case tag name.
	Tag string `json:"tag"`

	// ID is the id attribute.
	ID string `json:"id,omitempty"`

	// Classes are the element's class names.
	Classes []string `json:"classes,omitempty"`

	// Href is the raw href attribute for links.
	Href string `json:"href,omitempty"`

	// Role is the ARIA role attribute.
	Role string `json:"role,omitempty"`

	// Title is the accessible label: aria-label, then the aria-labelledby
	// target text, then the first h1-h3 inside the element, then the
	// element's own text for headings.
	Title string `json:"title,omitempty"`

	// Level is 1-3 for headings and 0 otherwise.
	Level int `json:"level,omitempty"`

	// HasText reports whether the element contains visible text.
	HasText bool `json:"hasText"`

	// Box is the bounding box in document coordinates.
	Box model.Rect `json:"box"`
}
