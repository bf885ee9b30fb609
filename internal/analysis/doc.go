// Package analysis sends prepared screenshots to a vision model and turns
// its answers into normalized recommendations.
//
// The package has four parts:
//   - GeminiClient: a generateContent REST client with retry and backoff
//   - BuildPrompt: the JSON-only auditor prompt for a page or a section
//   - ExtractJSON / NormalizeRecommendations: tolerant response parsing
//   - Analyzer: bounded fan-out over a run's accepted images
//
// Design decision: a failed analysis never aborts a run. The Analyzer
// appends an "analysis_failed" manifest entry for the target (captured but
// not analyzed) and carries on with the remaining images, so a quota
// problem halfway through still yields a usable partial report.
package analysis
