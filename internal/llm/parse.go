package llm

import (
	"encoding/json"
	"strings"
)

// parseIntent turns raw model output into an Intent. It tries the whole
// string as JSON, then brace-scans for an embedded object (models often wrap
// JSON in prose), and finally degrades to DefaultIntent. Never errors.
func parseIntent(raw string) *Intent {
	candidate := strings.TrimSpace(raw)

	if intent, ok := tryUnmarshalIntent(candidate); ok {
		return intent
	}

	if embedded, ok := extractJSONObject(candidate); ok {
		if intent, ok := tryUnmarshalIntent(embedded); ok {
			return intent
		}
	}

	return DefaultIntent()
}

// tryUnmarshalIntent unmarshals a candidate JSON document into an Intent,
// normalizing a nil parameters map.
func tryUnmarshalIntent(candidate string) (*Intent, bool) {
	if candidate == "" || candidate[0] != '{' {
		return nil, false
	}

	var intent Intent
	if err := json.Unmarshal([]byte(candidate), &intent); err != nil {
		return nil, false
	}

	if intent.Parameters == nil {
		intent.Parameters = map[string]any{}
	}
	return &intent, true
}

// extractJSONObject scans for the first balanced {...} object in the text.
// Brace depth is tracked outside of string literals.
func extractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

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
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	return "", false
}
