package llm

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoObject is returned when no parseable JSON object can be recovered
// from a completion.
var ErrNoObject = errors.New("llm: no JSON object in completion")

// DecodeLoose unmarshals a model completion into v, tolerating the usual
// formatting noise. It tries, in order: the raw text, the first balanced
// object-shaped substring, and the text with code-fence markers stripped.
func DecodeLoose(text string, v any) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrNoObject
	}

	if json.Unmarshal([]byte(text), v) == nil {
		return nil
	}

	if obj, ok := firstObject(text); ok {
		if json.Unmarshal([]byte(obj), v) == nil {
			return nil
		}
	}

	stripped := stripFences(text)
	if stripped != text {
		if json.Unmarshal([]byte(stripped), v) == nil {
			return nil
		}
		if obj, ok := firstObject(stripped); ok {
			if json.Unmarshal([]byte(obj), v) == nil {
				return nil
			}
		}
	}

	return ErrNoObject
}

// firstObject returns the first brace-balanced substring of s. Braces inside
// string literals are skipped so embedded prose like {"a": "b}c"} survives.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
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

func stripFences(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
