package report

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/uxaudit/internal/model"
)

// ErrUnknownFormat is returned by New for unsupported formats.
var ErrUnknownFormat = errors.New("unknown report format")

// Writer defines the interface for report output.
// Implementations write audit results in various formats.
type Writer interface {
	// Write outputs the report to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(report *model.AuditReport) (int, error)
}

// New returns the writer for a format name: "json", "markdown" or "simple".
func New(format string, output io.Writer) (Writer, error) {
	switch format {
	case "json":
		return NewJSONWriter(output, WithPrettyPrint()), nil
	case "markdown":
		return NewMarkdownWriter(output), nil
	case "simple":
		return NewSimpleWriter(output), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// MultiWriter writes to multiple Writers simultaneously.
// This is useful for outputting to both terminal and file.
//
// Design decision: We implement this as a separate type rather than
// using io.MultiWriter because our Writer interface is different
// from io.Writer - we write reports, not raw bytes.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(report *model.AuditReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

var titleCaser = cases.Title(language.English)

// outcomeLabel turns "skipped_budget" into "Skipped Budget".
func outcomeLabel(o model.Outcome) string {
	return titleCaser.String(strings.ReplaceAll(string(o), "_", " "))
}

// statusText describes how the run ended.
func statusText(report *model.AuditReport) string {
	switch report.Status {
	case model.RunCancelled:
		return "Cancelled (partial results)"
	case model.RunSystemicFailure:
		return "Stopped after repeated failures (partial results)"
	case model.RunCompleted:
		return "Complete"
	default:
		return "Unknown"
	}
}

// targetLabel names the page or section a recommendation belongs to.
func targetLabel(report *model.AuditReport, targetID string) string {
	for _, s := range report.Sections {
		if s.ID == targetID {
			if s.Title != "" {
				return fmt.Sprintf("%s (%s)", s.Title, s.PageURL)
			}
			return fmt.Sprintf("%s (%s)", s.Selector, s.PageURL)
		}
	}
	for _, p := range report.Pages {
		if p.ID == targetID {
			return p.URL
		}
	}
	return targetID
}

// problemEntries returns the terminal failed and analysis_failed entries.
func problemEntries(report *model.AuditReport) []model.ManifestEntry {
	latest := make(map[string]int)
	for i, e := range report.Manifest {
		latest[e.Target.ID] = i
	}
	var out []model.ManifestEntry
	for i, e := range report.Manifest {
		if latest[e.Target.ID] == i && e.Outcome.IsFailure() {
			out = append(out, e)
		}
	}
	return out
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
