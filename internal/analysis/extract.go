package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON finds and decodes the JSON value in a model response.
// It accepts bare JSON, fenced code blocks, and text surrounding the first
// balanced JSON object or array.
func ExtractJSON(text string) (any, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, ErrEmptyResponse
	}
	if v, ok := decode(trimmed); ok {
		return v, nil
	}
	if fenced, ok := fencedBlock(trimmed); ok {
		if v, ok := decode(fenced); ok {
			return v, nil
		}
		trimmed = fenced
	}
	if candidate, ok := balanced(trimmed); ok {
		if v, ok := decode(candidate); ok {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoJSON, truncate(text, 200))
}

func decode(s string) (any, bool) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	switch v.(type) {
	case map[string]any, []any:
		return v, true
	default:
		return nil, false
	}
}

// fencedBlock returns the body of the first ``` block.
func fencedBlock(s string) (string, bool) {
	_, rest, ok := strings.Cut(s, "```")
	if !ok {
		return "", false
	}
	// Drop the info string ("json") on the opening line.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}
	body, _, ok := strings.Cut(rest, "```")
	if !ok {
		return "", false
	}
	return strings.TrimSpace(body), true
}

// balanced returns the first balanced {...} or [...] span, honoring strings.
func balanced(s string) (string, bool) {
	start := strings.IndexAny(s, "{[")
	for start >= 0 {
		if end := matchClose(s, start); end > 0 {
			return s[start : end+1], true
		}
		next := strings.IndexAny(s[start+1:], "{[")
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

func matchClose(s string, start int) int {
	var stack []byte
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return -1
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i
			}
		}
	}
	return -1
}

func truncate(s string, limit int) string {
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), "\n", " ")
	if len(cleaned) <= limit {
		return cleaned
	}
	return cleaned[:limit] + "..."
}
