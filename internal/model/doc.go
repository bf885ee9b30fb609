// Package model defines the core data structures used throughout uxaudit.
//
// This package contains the following main types:
//   - PageTarget / SectionTarget: candidates admitted by the crawl scheduler
//   - CaptureArtifact: a raw screenshot plus geometry, owned by one stage at a time
//   - PreparedImage: a downsized, re-encoded artifact ready for analysis
//   - ManifestEntry: one ledger line per target ever considered
//   - Recommendation: a normalized finding returned by the vision model
//   - AuditReport: the aggregated result of a run
//
// Design decision: We separate models into their own package to avoid circular
// dependencies. The crawler, capture, analysis and report packages all share
// these types, so centralizing them prevents import cycles.
//
// The models are designed to be serializable to JSON for the run manifest,
// the report, and database storage.
package model
