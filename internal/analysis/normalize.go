package analysis

import (
	"fmt"
	"strings"

	"github.com/nao1215/uxaudit/internal/model"
)

// Summary returns the "summary" field of a decoded response, if any.
func Summary(raw any) string {
	obj, ok := raw.(map[string]any)
	if !ok {
		return ""
	}
	return str(obj["summary"])
}

// NormalizeRecommendations converts a decoded model response into
// recommendations. The response may be an object with a "recommendations"
// list or the list itself; non-object items are skipped.
func NormalizeRecommendations(raw any) []model.Recommendation {
	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case map[string]any:
		items, _ = v["recommendations"].([]any)
	}

	recs := make([]model.Recommendation, 0, len(items))
	index := 0
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		index++
		recs = append(recs, fromRaw(obj, index))
	}
	return recs
}

func fromRaw(raw map[string]any, index int) model.Recommendation {
	return model.Recommendation{
		ID:          firstNonEmpty(str(raw["id"]), fmt.Sprintf("rec-%02d", index)),
		Title:       firstNonEmpty(str(raw["title"]), str(raw["summary"]), fmt.Sprintf("Recommendation %d", index)),
		Description: firstNonEmpty(str(raw["description"]), str(raw["details"])),
		Rationale:   firstNonEmpty(str(raw["rationale"]), str(raw["reason"])),
		Priority:    model.ParsePriority(str(raw["priority"])),
		Impact:      model.ParseImpact(str(raw["impact"])),
		Effort:      model.ParseEffort(str(raw["effort"])),
		Evidence:    evidence(raw["evidence"]),
		Tags:        tags(raw["tags"]),
	}
}

func evidence(v any) []model.Evidence {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []model.Evidence
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id := str(obj["screenshot_id"])
		if id == "" {
			continue
		}
		out = append(out, model.Evidence{ScreenshotID: id, Note: str(obj["note"]), Location: str(obj["location"])})
	}
	return out
}

func tags(v any) []string {
	switch t := v.(type) {
	case string:
		if t = strings.TrimSpace(t); t != "" {
			return []string{t}
		}
	case []any:
		var out []string
		for _, item := range t {
			if s := str(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// str renders scalar JSON values as strings. Objects and lists are ignored.
func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64, bool:
		return fmt.Sprint(t)
	default:
		return ""
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
