// Package render is the boundary to the browser that loads and screenshots
// pages.
//
// The rest of uxaudit only sees the Browser, Page and ElementInfo types
// declared here, so crawl scheduling, section discovery and capture can be
// tested without Chrome (see the rendertest package). The production
// implementation drives Chrome over the DevTools protocol with go-rod.
//
// Design decision: We expose element snapshots (ElementInfo) instead of live
// element handles because:
//  1. A single script evaluation returns every candidate in document order
//  2. Snapshots are plain values that can cross goroutines safely
//  3. Capture re-locates elements by selector, which is exactly how a DOM
//     change between discovery and capture is detected
package render
