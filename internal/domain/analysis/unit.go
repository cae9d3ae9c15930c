package analysis

import (
	"encoding/json"
	"strings"

	apperrors "chainalyzer/internal/shared/errors"
)

// UnitStatus records the outcome of one analysis unit.
type UnitStatus string

const (
	UnitOK              UnitStatus = "ok"
	UnitValidationError UnitStatus = "validation_error"
	UnitTransportError  UnitStatus = "transport_error"
	UnitNotAttempted    UnitStatus = "not_attempted"
)

// UnitResult is the per-pair (or per-batch) outcome of the unit analysis
// stage. Failed units keep the raw response or error reason instead of being
// discarded; the final report distinguishes answered, failed and skipped
// units explicitly.
type UnitResult struct {
	PrimaryTicketID string     `json:"primary_ticket_id"`
	RelatedTicketID string     `json:"related_ticket_id,omitempty"`
	PairType        string     `json:"pair_type"`
	Status          UnitStatus `json:"status"`
	Raw             string     `json:"raw,omitempty"`
	Error           string     `json:"error,omitempty"`
	Issues          []string   `json:"issues_encountered,omitempty"`
	MissingInfo     []string   `json:"missing_information,omitempty"`
}

// ValidateUnitResponse checks that a provider response is parseable JSON
// loosely matching the expected shape: an object or list that references at
// least one of the unit's ticket identifiers. It extracts issue and
// missing-information fields for the compilation stage. The raw text is
// preserved inside the returned error on failure.
func ValidateUnitResponse(raw string, ticketIDs []string) (issues, missing []string, err error) {
	payload := stripCodeFence(raw)

	var parsed any
	if jsonErr := json.Unmarshal([]byte(payload), &parsed); jsonErr != nil {
		return nil, nil, apperrors.NewProviderValidationError("response is not valid JSON", raw)
	}

	if !mentionsAny(payload, ticketIDs) {
		return nil, nil, apperrors.NewProviderValidationError("response references none of the unit's tickets", raw)
	}

	collectStrings(parsed, "issues_encountered", &issues)
	collectStrings(parsed, "issues", &issues)
	collectStrings(parsed, "missing_information", &missing)
	collectStrings(parsed, "missing_info", &missing)
	return issues, missing, nil
}

// stripCodeFence removes a surrounding markdown code fence; providers wrap
// JSON answers in ```json blocks more often than not.
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

func mentionsAny(payload string, ticketIDs []string) bool {
	for _, id := range ticketIDs {
		if id != "" && strings.Contains(payload, id) {
			return true
		}
	}
	return false
}

// collectStrings walks the parsed value and gathers string entries found
// under the given key, at any nesting depth.
func collectStrings(v any, key string, out *[]string) {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if strings.EqualFold(k, key) {
				appendStrings(child, out)
				continue
			}
			collectStrings(child, key, out)
		}
	case []any:
		for _, child := range t {
			collectStrings(child, key, out)
		}
	}
}

func appendStrings(v any, out *[]string) {
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) != "" {
			*out = append(*out, t)
		}
	case []any:
		for _, item := range t {
			appendStrings(item, out)
		}
	case map[string]any:
		// Issue objects ({"description": ..., "ticket": ...}) flatten to
		// their description when present.
		if desc, ok := t["description"].(string); ok {
			appendStrings(desc, out)
		}
	}
}
