package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "chainalyzer/internal/shared/errors"
)

func TestValidateUnitResponse_Valid(t *testing.T) {
	raw := `{
		"turnup_ticket": "2401912",
		"dispatch_ticket": "2401900",
		"issues_encountered": ["material shortage", "late arrival"],
		"missing_information": ["time out not recorded"]
	}`

	issues, missing, err := ValidateUnitResponse(raw, []string{"2401912", "2401900"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"material shortage", "late arrival"}, issues)
	assert.Equal(t, []string{"time out not recorded"}, missing)
}

func TestValidateUnitResponse_CodeFenced(t *testing.T) {
	raw := "```json\n{\"ticket\": \"2401912\", \"issues\": [\"bad circuit\"]}\n```"

	issues, _, err := ValidateUnitResponse(raw, []string{"2401912"})
	require.NoError(t, err)
	assert.Equal(t, []string{"bad circuit"}, issues)
}

func TestValidateUnitResponse_NotJSON(t *testing.T) {
	raw := "Sure! Here is the analysis of ticket 2401912: all good."

	_, _, err := ValidateUnitResponse(raw, []string{"2401912"})
	require.Error(t, err)
	assert.True(t, apperrors.IsProviderValidation(err))

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Details, "2401912", "raw text must survive in the error")
}

func TestValidateUnitResponse_NoTicketReference(t *testing.T) {
	raw := `{"summary": "a dispatch happened", "issues": []}`

	_, _, err := ValidateUnitResponse(raw, []string{"2401912", "2401900"})
	require.Error(t, err)
	assert.True(t, apperrors.IsProviderValidation(err))
}

func TestValidateUnitResponse_NestedIssueObjects(t *testing.T) {
	raw := `{
		"ticket": "2401912",
		"analysis": {
			"issues_encountered": [
				{"description": "tech left early", "ticket": "2401912"},
				"second visit required"
			]
		}
	}`

	issues, _, err := ValidateUnitResponse(raw, []string{"2401912"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"tech left early", "second visit required"}, issues)
}

func TestValidateUnitResponse_TopLevelList(t *testing.T) {
	raw := `[{"ticket": "2401912", "issues": ["no access"]}]`

	issues, _, err := ValidateUnitResponse(raw, []string{"2401912"})
	require.NoError(t, err)
	assert.Equal(t, []string{"no access"}, issues)
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence(`{"a":1}`))
}
