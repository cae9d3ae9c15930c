package textutil

import "testing"

func TestExcerpt(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		budget   int
		expected string
	}{
		{
			name:     "short text untouched",
			input:    "tech on site",
			budget:   300,
			expected: "tech on site",
		},
		{
			name:     "long text truncated with marker",
			input:    "abcdefghij",
			budget:   4,
			expected: "abcd...",
		},
		{
			name:     "zero budget",
			input:    "anything",
			budget:   0,
			expected: "",
		},
		{
			name:     "multibyte runes not split",
			input:    "日本語のテキスト",
			budget:   3,
			expected: "日本語...",
		},
		{
			name:     "surrounding whitespace trimmed",
			input:    "  padded  ",
			budget:   300,
			expected: "padded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Excerpt(tt.input, tt.budget); got != tt.expected {
				t.Errorf("Excerpt(%q, %d) = %q, want %q", tt.input, tt.budget, got, tt.expected)
			}
		})
	}
}

func TestTruncateForLog(t *testing.T) {
	if got := TruncateForLog("hello world", 5); got != "hello..." {
		t.Errorf("got %q", got)
	}
	if got := TruncateForLog("hi", 5); got != "hi" {
		t.Errorf("got %q", got)
	}
	if got := TruncateForLog("hi", 0); got != "..." {
		t.Errorf("got %q", got)
	}
}
