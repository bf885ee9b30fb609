// Package crawler discovers and schedules capture targets for an audit run.
//
// # Architecture
//
// The package is built around the Scheduler, which owns all per-run crawl
// state: the FIFO frontier, the VisitSet of normalized URLs, and the Budget.
// These live in one value created per run and are never process-wide.
//
// Design decision: We keep every admission decision on a single scheduler
// goroutine and parallelize only the render and capture work because:
//  1. Two workers can never both see the last free budget slot
//  2. The truncation point on budget exhaustion stays breadth-first and
//     reproducible for the same discovery inputs
//  3. Shared state needs locking only at that single choke point
//
// # Components
//
//   - Normalizer: canonical URL forms used for deduplication
//   - VisitSet: per-URL admission state (pending, visited, failed, skipped)
//   - Scope: same-domain, allowed-subdomain, path pattern and robots policy
//   - Budget: page, screenshot and capture-attempt ceilings with reservations
//   - Extractor: navigation links and section candidates from a loaded page
//   - Scheduler: the breadth-first work queue and worker pool
//
// # Admission order
//
// Checks run in a fixed order and the first failing one names the skip:
// domain/path filter, normalization/dedup, depth, page count, per-page
// section count, then the global screenshot count.
//
// # Failures
//
// Navigation and region failures are recorded per target in the manifest
// and never stop the crawl. Only a run of consecutive page failures
// (SystemicFailureError) or cancellation ends a run early, and the frontier
// is always drained into skip entries first.
package crawler
