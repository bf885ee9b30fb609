package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/uxaudit/internal/model"
)

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, details blocks and mermaid charts
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the full report in Markdown format.
func (w *MarkdownWriter) Write(report *model.AuditReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeSummary(md, report)
	w.writeWarnings(md, report)
	w.writeRecommendations(md, report)
	w.writeManifest(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with run information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.AuditReport) {
	md.H1("UX Audit Report")
	md.PlainText("")

	modelName := report.Model
	if modelName == "" {
		modelName = "- (analysis disabled)"
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run ID", "`" + report.RunID + "`"},
			{"Seed URL", report.SeedURL},
			{"Model", modelName},
			{"Started", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", report.Duration().Round(1e9).String()},
			{"Pages", strconv.Itoa(len(report.Pages))},
			{"Screenshots", strconv.Itoa(len(report.Screenshots))},
			{"Status", statusText(report)},
		},
	})
	md.PlainText("")

	if report.Error != "" {
		md.Cautionf("The run ended early: %s", report.Error)
		md.PlainText("")
	}
}

// writeSummary writes outcome counts and the priority distribution.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.AuditReport) {
	md.H2("Summary")
	md.PlainText("")

	counts := report.Counts()
	rows := make([][]string, 0, len(model.AllOutcomes()))
	for _, o := range model.AllOutcomes() {
		if counts[o] == 0 {
			continue
		}
		rows = append(rows, []string{outcomeLabel(o), strconv.Itoa(counts[o])})
	}
	if len(rows) > 0 {
		md.Table(markdown.TableSet{Header: []string{"Outcome", "Targets"}, Rows: rows})
		md.PlainText("")
	}

	if len(report.Recommendations) > 0 {
		w.writePieChart(md, report)
	}

	for _, item := range report.Analyses {
		if item.Summary == "" {
			continue
		}
		label := item.URL
		if item.SectionTitle != "" {
			label = fmt.Sprintf("%s (%s)", item.URL, item.SectionTitle)
		}
		md.PlainTextf("- **%s** `%s`: %s", label, item.ScreenshotID, item.Summary)
	}
	md.PlainText("")
}

// writePieChart writes a mermaid pie chart for priority distribution.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, report *model.AuditReport) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Recommendations by Priority"),
		piechart.WithShowData(true),
	)

	grouped := report.RecommendationsByPriority()
	for _, p := range []model.Priority{model.PriorityP0, model.PriorityP1, model.PriorityP2} {
		if n := len(grouped[p]); n > 0 {
			chart.LabelAndIntValue(p.String(), uint64(n))
		}
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeWarnings flags targets that were not captured or not analyzed.
func (w *MarkdownWriter) writeWarnings(md *markdown.Markdown, report *model.AuditReport) {
	problems := problemEntries(report)
	if len(problems) == 0 {
		return
	}

	items := make([]string, 0, len(problems))
	for _, e := range problems {
		items = append(items, fmt.Sprintf("%s `%s`: %s (%s)", outcomeLabel(e.Outcome), e.Target.ID, e.Target.String(), e.ErrorKind))
	}
	md.Warningf("%d target(s) were captured incompletely or not analyzed.", len(problems))
	md.PlainText("")
	md.BulletList(items...)
	md.PlainText("")
}

// writeRecommendations writes recommendations grouped by priority.
func (w *MarkdownWriter) writeRecommendations(md *markdown.Markdown, report *model.AuditReport) {
	md.H2("Recommendations")
	md.PlainText("")

	if len(report.Recommendations) == 0 {
		md.PlainText("No recommendations.")
		md.PlainText("")
		return
	}

	grouped := report.RecommendationsByPriority()
	for _, p := range []model.Priority{model.PriorityP0, model.PriorityP1, model.PriorityP2} {
		recs := grouped[p]
		if len(recs) == 0 {
			continue
		}
		md.H3(p.String())
		md.PlainText("")

		rows := make([][]string, len(recs))
		for i, r := range recs {
			rows[i] = []string{
				r.ID,
				truncateString(r.Title, 60),
				r.Impact.String(),
				r.Effort.String(),
				truncateString(targetLabel(report, r.TargetID), 50),
			}
		}
		md.Table(markdown.TableSet{
			Header: []string{"ID", "Title", "Impact", "Effort", "Target"},
			Rows:   rows,
		})
		md.PlainText("")

		for _, r := range recs {
			md.Details(r.Title, recommendationDetails(r))
		}
		md.PlainText("")
	}
}

func recommendationDetails(r model.Recommendation) string {
	var sb strings.Builder
	sb.WriteString(r.Description)
	if r.Rationale != "" {
		sb.WriteString("\n\nWhy: " + r.Rationale)
	}
	for _, e := range r.Evidence {
		sb.WriteString(fmt.Sprintf("\n\n- `%s`", e.ScreenshotID))
		if e.Location != "" {
			sb.WriteString(" " + e.Location)
		}
		if e.Note != "" {
			sb.WriteString(": " + e.Note)
		}
	}
	if len(r.Tags) > 0 {
		sb.WriteString("\n\nTags: " + strings.Join(r.Tags, ", "))
	}
	return sb.String()
}

// writeManifest appends the run ledger in a collapsed block.
func (w *MarkdownWriter) writeManifest(md *markdown.Markdown, report *model.AuditReport) {
	if len(report.Manifest) == 0 {
		return
	}

	rows := make([][]string, len(report.Manifest))
	for i, e := range report.Manifest {
		note := e.ErrorKind
		if e.DuplicateOf != "" {
			note = "duplicate of " + e.DuplicateOf
		}
		if note == "" {
			note = "-"
		}
		rows[i] = []string{
			strconv.Itoa(e.Seq),
			e.Target.ID,
			truncateString(e.Target.String(), 60),
			outcomeLabel(e.Outcome),
			note,
		}
	}

	table := markdown.NewMarkdown(io.Discard)
	table.Table(markdown.TableSet{
		Header: []string{"#", "Target", "Where", "Outcome", "Note"},
		Rows:   rows,
	})

	md.H2("Manifest")
	md.PlainText("")
	md.Details(fmt.Sprintf("%d entries", len(report.Manifest)), "\n"+table.String())
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [uxaudit](https://github.com/nao1215/uxaudit)*")
}
