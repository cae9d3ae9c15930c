// Package sanitize repairs malformed text coming out of the upstream ticket
// store. Post and note aggregates are JSON-ish strings assembled by SQL
// concatenation and arrive truncated, with embedded control characters or
// unbalanced brackets. Everything from that path is untrusted text.
package sanitize

import (
	"encoding/json"
	"regexp"
	"strings"

	"chainalyzer/internal/shared/logger"
)

// singleObject matches one flat {...} object with no nested braces.
var singleObject = regexp.MustCompile(`\{[^{}]*\}`)

// Sanitizer repairs aggregate blobs and free-text fields. The optional sink
// receives intermediate snapshots for post-hoc inspection and never affects
// the repair result.
type Sanitizer struct {
	sink   Sink
	logger logger.Interface
}

func New(sink Sink, log logger.Interface) *Sanitizer {
	if sink == nil {
		sink = NopSink{}
	}
	return &Sanitizer{sink: sink, logger: log}
}

// Aggregate turns a raw aggregate blob into a slice of objects. Repair stages
// run in order, stopping at the first successful parse:
//
//  1. strip control characters and try the string as-is (wrapped in [ ] when
//     the brackets are missing)
//  2. extract every flat {...} object and reassemble them into an array
//  3. strip non-printable ASCII, append closers for counted unbalanced
//     braces/brackets, and parse the best-effort result
//
// Total failure yields an empty slice. Aggregate never returns an error and
// never panics; upstream corruption is not the caller's problem.
func (s *Sanitizer) Aggregate(raw string) []map[string]any {
	if raw == "" {
		return []map[string]any{}
	}

	cleaned := stripControl(raw)
	s.sink.Write("aggregate_stage1.json", []byte(cleaned))

	wrapped := cleaned
	if !strings.HasPrefix(strings.TrimSpace(wrapped), "[") {
		wrapped = "[" + wrapped
	}
	if !strings.HasSuffix(strings.TrimSpace(wrapped), "]") {
		wrapped = wrapped + "]"
	}
	if out, ok := parseObjects(wrapped); ok {
		return out
	}

	// Stage 2: the blob is broken between objects; salvage the well-formed
	// ones individually.
	matches := singleObject.FindAllString(cleaned, -1)
	if len(matches) > 0 {
		reassembled := "[" + strings.Join(matches, ",") + "]"
		s.sink.Write("aggregate_stage2.json", []byte(reassembled))
		if out, ok := parseObjects(reassembled); ok {
			return out
		}
	}

	// Stage 3: best effort. Printable ASCII only, auto-close whatever is
	// still open.
	repaired := stripNonPrintableASCII(cleaned)
	repaired += strings.Repeat("}", imbalance(repaired, '{', '}'))
	repaired += strings.Repeat("]", imbalance(repaired, '[', ']'))
	if !strings.HasPrefix(strings.TrimSpace(repaired), "[") {
		repaired = "[" + repaired + "]"
	}
	s.sink.Write("aggregate_stage3.json", []byte(repaired))
	if out, ok := parseObjects(repaired); ok {
		return out
	}

	if s.logger != nil {
		s.logger.Warnw("aggregate blob unrecoverable, returning empty set",
			"length", len(raw))
	}
	return []map[string]any{}
}

// Text strips control code points from a free-text field, see the package
// function of the same name. Exposed on the Sanitizer so callers holding the
// injected instance sanitize through one handle.
func (s *Sanitizer) Text(raw string) string {
	return Text(raw)
}

// Text strips C0, DEL and C1 control code points from a free-text field.
// All other Unicode content, emoji included, passes through untouched.
func Text(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7F || (r >= 0x80 && r <= 0x9F) {
			return -1
		}
		return r
	}, raw)
}

func parseObjects(s string) ([]map[string]any, bool) {
	var out []map[string]any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, false
	}
	if out == nil {
		out = []map[string]any{}
	}
	return out, true
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7F {
			return -1
		}
		return r
	}, s)
}

func stripNonPrintableASCII(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7E {
			return -1
		}
		return r
	}, s)
}

func imbalance(s string, open, close rune) int {
	n := strings.Count(s, string(open)) - strings.Count(s, string(close))
	if n < 0 {
		return 0
	}
	return n
}
