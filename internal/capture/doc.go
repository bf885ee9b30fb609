// Package capture turns page and section targets into screenshot artifacts.
//
// A page capture opens a tab, waits for network quiescence and takes a
// full-page PNG. Quiescence is best effort: when it times out the page is
// captured as rendered and the artifact carries a "stabilization timeout"
// warning. Section captures reuse the page's tab, re-locate the element and
// clip exactly its current region; a vanished or zero-area element fails
// with ErrRegionUnavailable.
//
// Requests to one host are spaced by an optional politeness interval.
package capture
