// Package report builds the downloadable summary of a completed verification.
package report

import (
	"encoding/json"
	"fmt"
	"time"

	"kycflow/internal/domain"
	"kycflow/pkg/platform/sentinel"
)

const (
	StatusCompleted = "completed"
	ScannerMRZ      = "mrz"
	ContentType     = "application/json"
	timestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Documents flags which captures were accepted.
type Documents struct {
	Selfie        bool `json:"selfie"`
	DocumentFront bool `json:"documentFront"`
	DocumentBack  bool `json:"documentBack"`
	MRZScan       bool `json:"mrzScan"`
}

// Report is the exported verification summary.
type Report struct {
	VerificationID string    `json:"verificationId"`
	Timestamp      string    `json:"timestamp"`
	Status         string    `json:"status"`
	Documents      Documents `json:"documents"`
	ScannerType    string    `json:"scannerType,omitempty"`
}

// Build summarizes a completed session. Incomplete sessions have no report.
func Build(session *domain.VerificationSession, now time.Time) (Report, error) {
	if session == nil || !session.Completed() {
		return Report{}, fmt.Errorf("verification not complete: %w", sentinel.ErrInvalidState)
	}
	r := Report{
		VerificationID: session.ID,
		Timestamp:      now.UTC().Format(timestampLayout),
		Status:         StatusCompleted,
		Documents: Documents{
			Selfie:        session.HasArtifact(domain.StepSelfie),
			DocumentFront: session.HasArtifact(domain.StepDocumentFront),
			DocumentBack:  session.HasArtifact(domain.StepDocumentBack),
			MRZScan:       session.MRZData != "",
		},
	}
	if session.HasStep(domain.StepMRZ) {
		r.ScannerType = ScannerMRZ
	}
	return r, nil
}

// Export renders the report as indented JSON.
func Export(r Report) ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return data, nil
}

// FileName is the download name of a verification's report.
func FileName(verificationID string) string {
	return "kyc-verification-" + verificationID + ".json"
}
