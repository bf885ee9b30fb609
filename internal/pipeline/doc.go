// Package pipeline runs an audit as a sequence of steps.
//
// A run flows through crawl, analysis and persistence stages. Each stage is
// implemented as a Step that receives the shared Run and records its results
// in the run's report. Finalizer steps (report files, history) run after the
// regular steps even when the run was cancelled or a step failed, so a run
// directory always holds a manifest and a report.
//
// Design decision: We use a pipeline pattern instead of direct function calls
// because:
// 1. It allows easy addition/removal of steps without modifying core logic
// 2. It provides consistent error handling and logging across steps
// 3. It supports cancellation via context for long-running crawls
//
// The pipeline supports both single audits and batches of seed URLs with
// concurrency control using errgroup.
package pipeline
