package generation

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// ParseJSONArray decodes a JSON array from a completion. It accepts clean
// JSON, an array inside a markdown code fence, or an array embedded in prose.
// Anything else is a parse error; partial data is never returned.
func ParseJSONArray[T any](content string) ([]T, error) {
	content = strings.TrimSpace(content)

	var items []T
	if err := json.Unmarshal([]byte(content), &items); err == nil {
		return items, nil
	}

	if idx := strings.Index(content, "```"); idx >= 0 {
		inner := content[idx+3:]
		// Skip language tag on the same line (e.g., ```json)
		if nl := strings.Index(inner, "\n"); nl >= 0 {
			inner = inner[nl+1:]
		}
		if end := strings.Index(inner, "```"); end >= 0 {
			inner = inner[:end]
		}
		items = nil
		if err := json.Unmarshal([]byte(strings.TrimSpace(inner)), &items); err == nil {
			return items, nil
		}
	}

	if extracted := extractJSONArray(content); extracted != "" {
		items = nil
		if err := json.Unmarshal([]byte(extracted), &items); err == nil {
			return items, nil
		}
	}

	return nil, NewError(ErrParse, fmt.Sprintf("no valid JSON array found in response (%d chars)", len(content)))
}

// extractJSONArray finds the first balanced [ ... ] block whose first
// element is an object.
func extractJSONArray(s string) string {
	for offset := 0; offset < len(s); {
		rel := strings.Index(s[offset:], "[")
		if rel < 0 {
			return ""
		}
		start := offset + rel
		if next := firstNonSpace(s[start+1:]); next == '{' {
			if block := balanced(s, start); block != "" {
				return block
			}
		}
		offset = start + 1
	}
	return ""
}

func firstNonSpace(s string) rune {
	for _, r := range s {
		if !unicode.IsSpace(r) {
			return r
		}
	}
	return 0
}

func balanced(s string, start int) string {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
