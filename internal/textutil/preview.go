package textutil

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// PreviewLimit is the number of characters of tool output retained when
// a failure message is surfaced to users. Full output stays in the logs.
const PreviewLimit = 200

// TruncatePreview collapses value to a single trimmed line and cuts it
// to limit characters, appending "..." when anything was dropped.
// A non-positive limit falls back to PreviewLimit.
func TruncatePreview(value string, limit int) string {
	if limit <= 0 {
		limit = PreviewLimit
	}
	value = strings.TrimSpace(value)
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit]) + "..."
}

var titleCaser = cases.Title(language.English)

// TitleCase renders a lowercase identifier (a quality tier, a pipeline
// stage) for display.
func TitleCase(value string) string {
	return titleCaser.String(strings.TrimSpace(value))
}

// Ternary is a generic conditional helper that returns a if cond is true, b otherwise.
func Ternary[T any](cond bool, a, b T) T {
	if cond {
		return a
	}
	return b
}
