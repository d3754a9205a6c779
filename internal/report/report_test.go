package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycflow/internal/domain"
	"kycflow/pkg/platform/sentinel"
)

func completedSession(t *testing.T, steps ...domain.StepKind) *domain.VerificationSession {
	t.Helper()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s, err := domain.NewVerificationSession("ver-1", "user-1", steps, domain.FlowSettings{}, now)
	require.NoError(t, err)
	for _, step := range steps {
		if step.IsCapture() {
			s.RecordArtifact(step, domain.CapturedArtifact{Payload: []byte{1}}, now)
		}
		if step == domain.StepMRZ {
			s.MRZData = "{}"
		}
		if step != domain.StepComplete {
			_, err := s.Advance(step, now)
			require.NoError(t, err)
		}
	}
	return s
}

func TestBuild(t *testing.T) {
	now := time.Date(2026, 5, 6, 7, 8, 9, 123_000_000, time.UTC)

	t.Run("flags accepted captures", func(t *testing.T) {
		s := completedSession(t, domain.StepDocumentFront, domain.StepSelfie, domain.StepComplete)
		r, err := Build(s, now)
		require.NoError(t, err)
		assert.Equal(t, Report{
			VerificationID: "ver-1",
			Timestamp:      "2026-05-06T07:08:09.123Z",
			Status:         "completed",
			Documents:      Documents{Selfie: true, DocumentFront: true},
		}, r)
	})

	t.Run("mrz flow sets the scanner type", func(t *testing.T) {
		s := completedSession(t, domain.StepDocumentFront, domain.StepMRZ, domain.StepComplete)
		r, err := Build(s, now)
		require.NoError(t, err)
		assert.True(t, r.Documents.MRZScan)
		assert.Equal(t, "mrz", r.ScannerType)
	})

	t.Run("incomplete session has no report", func(t *testing.T) {
		s, err := domain.NewVerificationSession("ver-2", "u", []domain.StepKind{domain.StepSelfie, domain.StepComplete}, domain.FlowSettings{}, now)
		require.NoError(t, err)
		_, err = Build(s, now)
		assert.ErrorIs(t, err, sentinel.ErrInvalidState)
	})
}

func TestExport(t *testing.T) {
	data, err := Export(Report{VerificationID: "v", Timestamp: "t", Status: StatusCompleted})
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"verificationId": "v",
		"timestamp": "t",
		"status": "completed",
		"documents": {"selfie": false, "documentFront": false, "documentBack": false, "mrzScan": false}
	}`, string(data))
	assert.Contains(t, string(data), "\n  \"status\"")
	assert.Equal(t, "kyc-verification-v.json", FileName("v"))
}

func TestExportPDF(t *testing.T) {
	s := completedSession(t, domain.StepDocumentFront, domain.StepMRZ, domain.StepComplete)
	r, err := Build(s, time.Now())
	require.NoError(t, err)

	data, err := ExportPDF(r)
	require.NoError(t, err)
	assert.True(t, len(data) > 100)
	assert.Equal(t, "%PDF-", string(data[:5]))
	assert.Equal(t, "kyc-verification-ver-1.pdf", PDFFileName("ver-1"))
}
