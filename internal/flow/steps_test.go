package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycflow/internal/domain"
)

func TestParseStep(t *testing.T) {
	cases := map[string]domain.StepKind{
		"country-selection":      domain.StepCountrySelection,
		"country_selection":      domain.StepCountrySelection,
		"document_type":          domain.StepDocumentSelection,
		"document-front-capture": domain.StepDocumentFront,
		"document-back":          domain.StepDocumentBack,
		" Selfie-Capture ":       domain.StepSelfie,
		"Scanning":               domain.StepMRZ,
		"thank-you":              domain.StepComplete,
	}
	for id, want := range cases {
		got, err := ParseStep(id)
		require.NoError(t, err, id)
		assert.Equal(t, want, got, id)
	}

	_, err := ParseStep("document-frontt")
	assert.ErrorIs(t, err, ErrUnknownStep)
}

func TestParseSteps(t *testing.T) {
	t.Run("completion is appended", func(t *testing.T) {
		steps, err := ParseSteps([]string{"selfie"}, domain.FlowSettings{})
		require.NoError(t, err)
		assert.Equal(t, []domain.StepKind{domain.StepSelfie, domain.StepComplete}, steps)
	})

	t.Run("mrz inserted after the last document capture", func(t *testing.T) {
		steps, err := ParseSteps([]string{"document-front-capture", "document-back-capture", "selfie-capture", "thank-you"},
			domain.FlowSettings{EnableMRZ: true})
		require.NoError(t, err)
		assert.Equal(t, []domain.StepKind{
			domain.StepDocumentFront, domain.StepDocumentBack, domain.StepMRZ, domain.StepSelfie, domain.StepComplete,
		}, steps)
	})

	t.Run("explicit mrz position is honored", func(t *testing.T) {
		steps, err := ParseSteps([]string{"selfie", "document-front", "Scanning", "document-back"},
			domain.FlowSettings{EnableMRZ: true})
		require.NoError(t, err)
		assert.Equal(t, []domain.StepKind{
			domain.StepSelfie, domain.StepDocumentFront, domain.StepMRZ, domain.StepDocumentBack, domain.StepComplete,
		}, steps)
	})

	t.Run("mrz needs a document step to attach to", func(t *testing.T) {
		steps, err := ParseSteps([]string{"selfie"}, domain.FlowSettings{EnableMRZ: true})
		require.NoError(t, err)
		assert.Equal(t, []domain.StepKind{domain.StepSelfie, domain.StepComplete}, steps)
	})

	t.Run("duplicates rejected across spellings", func(t *testing.T) {
		_, err := ParseSteps([]string{"selfie", "selfie-capture"}, domain.FlowSettings{})
		assert.Error(t, err)
	})

	t.Run("completion must be last", func(t *testing.T) {
		_, err := ParseSteps([]string{"thank-you", "selfie"}, domain.FlowSettings{})
		assert.Error(t, err)
	})

	t.Run("completion alone is not a flow", func(t *testing.T) {
		_, err := ParseSteps([]string{"complete"}, domain.FlowSettings{})
		assert.Error(t, err)
	})

	t.Run("unknown identifiers fail the whole list", func(t *testing.T) {
		_, err := ParseSteps([]string{"selfie", "face-scan"}, domain.FlowSettings{})
		assert.ErrorIs(t, err, ErrUnknownStep)
	})
}
