package textutil

import (
	"strings"
	"unicode/utf8"
)

// Excerpt bounds free text to budget characters for embedding in provider
// prompts. Truncation happens on rune boundaries and appends "..." so the
// cut is visible to the model.
func Excerpt(s string, budget int) string {
	s = strings.TrimSpace(s)
	if budget <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= budget {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:budget])) + "..."
}

// TruncateForLog truncates a string to maxLen characters for safe logging,
// appending "..." when anything was cut.
func TruncateForLog(s string, maxLen int) string {
	if maxLen <= 0 {
		return "..."
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
