// Package database provides SQLite-based run history for uxaudit.
//
// This package implements the HistoryDB, which stores:
//   - One row per audit run with its status, timings and outcome counts
//   - The run's manifest entries, for querying failures across runs
//   - The run's recommendations, for "top findings" listings
//   - The full report JSON, so past reports can be rendered again
//
// Design decision: We use SQLite (via modernc.org/sqlite) instead of other
// databases because:
// 1. No external dependencies - the database is a single file
// 2. CGO-free implementation allows easy cross-compilation
// 3. Sufficient performance for our use case
// 4. WAL mode provides good concurrent read performance
package database
