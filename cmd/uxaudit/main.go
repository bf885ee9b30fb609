// Package main provides the entry point for the uxaudit CLI.
//
// uxaudit crawls a website, captures page and section screenshots, and asks
// a vision model for prioritized UX recommendations.
//
// Usage:
//
//	uxaudit analyze <url>
//	uxaudit history [run-id]
//
// See --help for all available options.
package main

// main is the entry point for uxaudit.
func main() {
	Execute()
}
