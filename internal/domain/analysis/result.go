package analysis

import (
	"regexp"
	"strings"
	"time"
)

// AnalysisResult is one persisted chain analysis. Rows are append-only: a
// re-run of the same chain produces a new row rather than updating an old one.
type AnalysisResult struct {
	ID              uint
	TicketID        string
	ChainHash       string
	TicketCount     int
	TimelineEvents  string
	RelationshipMap string
	AnomaliesIssues string
	ServiceSummary  string
	FullAnalysis    string
	CreatedAt       time.Time
}

// Sections is the consolidated report split along its numbered headers.
type Sections struct {
	Timeline     string
	Relationship string
	Anomalies    string
	Summary      string
}

// Header patterns tolerate markdown heading markers, optional punctuation and
// any case. Each section runs until the next numbered header or end of text.
var sectionPatterns = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"timeline", regexp.MustCompile(`(?is)#{0,3}\s*1\.?\s*TIMELINE(?:\s+OF\s+EVENTS)?:?(.*?)(?:#{0,3}\s*2\.|$)`)},
	{"relationship", regexp.MustCompile(`(?is)#{0,3}\s*2\.?\s*RELATIONSHIP\s+MAP:?(.*?)(?:#{0,3}\s*3\.|$)`)},
	{"anomalies", regexp.MustCompile(`(?is)#{0,3}\s*3\.?\s*ANOMALIES(?:\s*(?:AND|/)\s*ISSUES)?:?(.*?)(?:#{0,3}\s*4\.|$)`)},
	{"summary", regexp.MustCompile(`(?is)#{0,3}\s*4\.?\s*(?:SERVICE\s+)?SUMMARY:?(.*)`)},
}

// ParseSections extracts the four report sections from unstructured provider
// output. A section missing from the text yields an empty string, never an
// error; the caller keeps the verbatim full text regardless.
func ParseSections(fullText string) Sections {
	parsed := map[string]string{}
	for _, sp := range sectionPatterns {
		if m := sp.pattern.FindStringSubmatch(fullText); m != nil {
			parsed[sp.name] = strings.TrimSpace(m[1])
		}
	}
	return Sections{
		Timeline:     parsed["timeline"],
		Relationship: parsed["relationship"],
		Anomalies:    parsed["anomalies"],
		Summary:      parsed["summary"],
	}
}

// NewResult builds an AnalysisResult from the consolidated report text.
func NewResult(chainHash, ticketID string, ticketCount int, fullText string) *AnalysisResult {
	sections := ParseSections(fullText)
	return &AnalysisResult{
		TicketID:        ticketID,
		ChainHash:       chainHash,
		TicketCount:     ticketCount,
		TimelineEvents:  sections.Timeline,
		RelationshipMap: sections.Relationship,
		AnomaliesIssues: sections.Anomalies,
		ServiceSummary:  sections.Summary,
		FullAnalysis:    fullText,
	}
}
