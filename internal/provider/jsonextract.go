package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ubuygold/contentmill/internal/model"
)

// ExtractJSON recovers a JSON object from model output. It tries the whole text, then
// the text with a surrounding code fence removed, then the first balanced {...} span.
// Structured prompts always ask for an object keyed by field, so a top-level array or
// scalar is reported as ErrMalformedResponse. An array of objects yields its first
// element through the balanced-span fallback.
func ExtractJSON(text string) (map[string]any, error) {
	trimmed := strings.TrimSpace(text)
	if obj, ok := decodeObject(trimmed); ok {
		return obj, nil
	}
	if unfenced, ok := stripFence(trimmed); ok {
		if obj, ok := decodeObject(unfenced); ok {
			return obj, nil
		}
	}
	if span, ok := firstBalancedObject(trimmed); ok {
		if obj, ok := decodeObject(span); ok {
			return obj, nil
		}
	}
	return nil, fmt.Errorf("no JSON object in response (%d bytes): %w", len(text), model.ErrMalformedResponse)
}

func decodeObject(s string) (map[string]any, bool) {
	if s == "" {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// stripFence removes a leading ```lang line and everything from the closing ``` on.
func stripFence(s string) (string, bool) {
	if !strings.HasPrefix(s, "```") {
		return "", false
	}
	nl := strings.IndexByte(s, '\n')
	if nl < 0 {
		return "", false
	}
	body := s[nl+1:]
	if end := strings.LastIndex(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body), true
}

// firstBalancedObject returns the span from the first '{' to its matching '}'.
// Braces inside string literals are ignored.
func firstBalancedObject(s string) (string, bool) {
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
