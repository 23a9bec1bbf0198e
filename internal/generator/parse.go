package generator

import (
	"fmt"
	"strings"

	"github.com/ubuygold/contentmill/internal/model"
)

// splitDelimited splits text on the item delimiter and drops blank items.
func splitDelimited(text string) []string {
	var items []string
	for _, part := range strings.Split(text, Delimiter) {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}

// splitLines returns the non-blank lines of text.
func splitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// splitSeeds parses the "-" delimited seed keyword list of a project.
func splitSeeds(seeds string) []string {
	var out []string
	for _, s := range strings.Split(seeds, "-") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// stringField returns the first of keys present in data as a string.
// Lists are joined with newlines; a missing field is empty.
func stringField(data map[string]any, keys ...string) string {
	for _, key := range keys {
		v, ok := data[key]
		if !ok || v == nil {
			continue
		}
		return toString(v)
	}
	return ""
}

func toString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, toString(item))
		}
		return strings.Join(parts, "\n")
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}

// poolItems extracts batch items from a structured field. A string is split on the
// delimiter, a list contributes one item per element.
func poolItems(data map[string]any, key string) []string {
	switch val := data[key].(type) {
	case string:
		return splitDelimited(val)
	case []any:
		var items []string
		for _, item := range val {
			items = append(items, splitDelimited(toString(item))...)
		}
		return items
	default:
		return nil
	}
}

// chaptersField reads the chapters array. Entries that are not objects are skipped.
func chaptersField(data map[string]any) []model.Chapter {
	raw, ok := data["chapters"].([]any)
	if !ok {
		return []model.Chapter{}
	}
	chapters := make([]model.Chapter, 0, len(raw))
	for _, entry := range raw {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		chapters = append(chapters, model.Chapter{
			Title:   stringField(obj, "title"),
			Content: stringField(obj, "content"),
		})
	}
	return chapters
}
