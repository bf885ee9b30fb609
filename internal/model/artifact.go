package model

import "time"

// CaptureArtifact is a raw screenshot of a target.
//
// Ownership moves from the capture pipeline to the dedup filter and then to
// the preprocessor. Once accepted it is never mutated; rejected artifacts are
// dropped and their Raw bytes released.
type CaptureArtifact struct {
	// Target identifies what was captured.
	Target TargetRef `json:"target"`

	// Raw holds the encoded PNG bytes.
	Raw []byte `json:"-"`

	// Fingerprint is the perceptual hash, set by the dedup filter.
	Fingerprint string `json:"fingerprint,omitempty"`

	// Geometry is the captured region in document coordinates. For full
	// pages it spans the whole document.
	Geometry Rect `json:"geometry"`

	// CapturedAt is the capture completion time.
	CapturedAt time.Time `json:"captured_at"`

	// Title is the document title of the page at capture time.
	Title string `json:"title,omitempty"`

	// StatusCode is the HTTP status of the page navigation, when known.
	StatusCode int `json:"status_code,omitempty"`

	// Warnings holds non-fatal capture notes such as stabilization timeouts.
	Warnings []string `json:"warnings,omitempty"`
}

// Release drops the raw bytes so a rejected artifact does not pin memory.
func (a *CaptureArtifact) Release() {
	a.Raw = nil
}

// PreparedImage is a downsized, re-encoded artifact ready for analysis.
type PreparedImage struct {
	// Target identifies the source artifact.
	Target TargetRef `json:"target"`

	// ScreenshotID is the identifier referenced by model evidence.
	ScreenshotID string `json:"screenshot_id"`

	// Data holds the encoded image bytes.
	Data []byte `json:"-"`

	// MIMEType is the content type of Data.
	MIMEType string `json:"mime_type"`

	// Width and Height are the prepared pixel dimensions.
	Width  int `json:"width"`
	Height int `json:"height"`

	// Digest is the BLAKE2b-256 hex digest of the source PNG.
	Digest string `json:"digest"`

	// Path is the prepared file path relative to the run directory.
	Path string `json:"path,omitempty"`
}
