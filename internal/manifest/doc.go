// Package manifest provides the append-only ledger of a run.
//
// Every target the crawler ever considers ends with at least one entry:
// captured, duplicate, failed or one of the skip outcomes. The analysis
// stage may append a later "analysis_failed" entry for a captured target;
// the latest entry per target is its terminal state.
//
// The Accumulator is safe for concurrent use. Entries are numbered in append
// order, which may differ from admission order when captures run in
// parallel.
package manifest
