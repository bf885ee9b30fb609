package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/uxaudit/internal/model"
)

// SimpleWriter outputs human-readable text reports for terminal display.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors by default because:
// 1. It works in all terminals without compatibility issues
// 2. It's easier to pipe to files or other tools
// 3. Color can be added as an option later if needed
type SimpleWriter struct {
	baseWriter

	// verbose enables descriptions and evidence in the output.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(report *model.AuditReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeSummary(&sb, report)
	w.writeProblems(&sb, report)
	w.writeRecommendations(&sb, report)
	w.writeFooter(&sb)

	return io.WriteString(w.output, sb.String())
}

func rule(sb *strings.Builder, c string) {
	sb.WriteString(strings.Repeat(c, 70))
	sb.WriteString("\n")
}

// writeHeader writes the report header with run information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.AuditReport) {
	sb.WriteString("\n")
	rule(sb, "=")
	sb.WriteString("                          UX AUDIT REPORT\n")
	rule(sb, "=")
	sb.WriteString("\n")

	fmt.Fprintf(sb, "Run ID:       %s\n", report.RunID)
	fmt.Fprintf(sb, "Seed URL:     %s\n", report.SeedURL)
	if report.Model != "" {
		fmt.Fprintf(sb, "Model:        %s\n", report.Model)
	}
	fmt.Fprintf(sb, "Started:      %s\n", report.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Pages:        %d\n", len(report.Pages))
	fmt.Fprintf(sb, "Screenshots:  %d\n", len(report.Screenshots))
	fmt.Fprintf(sb, "Status:       %s\n", statusText(report))
	if report.Error != "" {
		fmt.Fprintf(sb, "Error:        %s\n", report.Error)
	}
	sb.WriteString("\n")
}

// writeSummary writes outcome counts.
func (w *SimpleWriter) writeSummary(sb *strings.Builder, report *model.AuditReport) {
	rule(sb, "-")
	sb.WriteString("SUMMARY\n")
	rule(sb, "-")
	sb.WriteString("\n")

	counts := report.Counts()
	for _, o := range model.AllOutcomes() {
		if counts[o] == 0 {
			continue
		}
		fmt.Fprintf(sb, "  %-18s %d\n", outcomeLabel(o)+":", counts[o])
	}
	grouped := report.RecommendationsByPriority()
	fmt.Fprintf(sb, "\n  RECOMMENDATIONS:   %d (P0 %d, P1 %d, P2 %d)\n\n",
		len(report.Recommendations),
		len(grouped[model.PriorityP0]), len(grouped[model.PriorityP1]), len(grouped[model.PriorityP2]))
}

// writeProblems lists failed and unanalyzed targets.
func (w *SimpleWriter) writeProblems(sb *strings.Builder, report *model.AuditReport) {
	problems := problemEntries(report)
	if len(problems) == 0 {
		return
	}
	rule(sb, "-")
	sb.WriteString("WARNINGS\n")
	rule(sb, "-")
	sb.WriteString("\n")
	for _, e := range problems {
		fmt.Fprintf(sb, "  [!] %s %s (%s)\n", e.Target.ID, e.Target.String(), e.Outcome)
		if e.Error != "" {
			fmt.Fprintf(sb, "      %s\n", e.Error)
		}
	}
	sb.WriteString("\n")
}

// writeRecommendations writes recommendations in priority order.
func (w *SimpleWriter) writeRecommendations(sb *strings.Builder, report *model.AuditReport) {
	if len(report.Recommendations) == 0 {
		return
	}
	rule(sb, "-")
	sb.WriteString("RECOMMENDATIONS\n")
	rule(sb, "-")
	sb.WriteString("\n")

	for _, r := range report.Recommendations {
		fmt.Fprintf(sb, "[%s] %s (impact %s, effort %s)\n", r.Priority, r.Title, r.Impact, r.Effort)
		fmt.Fprintf(sb, "    Target: %s\n", targetLabel(report, r.TargetID))
		if w.verbose {
			if r.Description != "" {
				fmt.Fprintf(sb, "    %s\n", r.Description)
			}
			for _, e := range r.Evidence {
				fmt.Fprintf(sb, "    Evidence: %s %s\n", e.ScreenshotID, e.Location)
			}
		}
	}
	sb.WriteString("\n")
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	rule(sb, "=")
	sb.WriteString("Report generated by uxaudit\n")
	sb.WriteString("https://github.com/nao1215/uxaudit\n")
	rule(sb, "=")
}
