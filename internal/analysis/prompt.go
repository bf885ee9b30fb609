package analysis

import (
	"strings"
	"text/template"

	"github.com/nao1215/uxaudit/internal/model"
)

// PromptInput is the context rendered into the auditor prompt.
type PromptInput struct {
	PageURL      string
	PageTitle    string
	ScreenshotID string
	Section      *model.SectionTarget
}

var promptTemplate = template.Must(template.New("prompt").Parse(`You are a senior UX/UI auditor.
Analyze the screenshot and return ONLY valid JSON with this shape:
{
  "summary": "short summary",
  "recommendations": [
    {
      "id": "rec-01",
      "title": "short title",
      "description": "what to change and how",
      "rationale": "why this matters",
      "priority": "P0|P1|P2",
      "impact": "H|M|L",
      "effort": "S|M|L",
      "evidence": [
        {
          "screenshot_id": "{{.ScreenshotID}}",
          "note": "what to look at",
          "location": "where in the UI"
        }
      ],
      "tags": ["tag1", "tag2"]
    }
  ]
}

Language and style:
- Write in the language used by the page content.
- Be specific and actionable; name the UI element you refer to.
- Keep titles under 80 characters.

Scope rules:
- Only report issues visible in the screenshot.
- Cite screenshot_id "{{.ScreenshotID}}" in every evidence item.
{{- if .Section}}
- This screenshot shows one section of the page. Limit findings to this section only.
{{- end}}

Page URL: {{.PageURL}}
Page title: {{.PageTitle}}
{{- if .Section}}
Section title: {{.Section.Title}}
Section selector: {{.Section.Selector}}
{{- end}}
Return JSON only. No markdown, no code fences.
`))

// BuildPrompt renders the auditor prompt for one screenshot.
func BuildPrompt(in PromptInput) string {
	var b strings.Builder
	// The template only prints strings, so execution cannot fail.
	_ = promptTemplate.Execute(&b, in)
	return b.String()
}
