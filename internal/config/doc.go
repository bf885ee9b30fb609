// Package config provides configuration structures and utilities for uxaudit.
// It defines the run-scoped crawl and capture options, the analysis options
// for the vision model, the optional per-site YAML configuration file, and
// the XDG locations used for history and caches.
package config
