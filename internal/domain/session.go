package domain

import (
	"fmt"
	"time"

	"kycflow/pkg/platform/sentinel"
)

// FlowSettings are the feature toggles supplied by the flow configuration.
type FlowSettings struct {
	EnableMRZ     bool     `json:"enable_mrz"`
	EnableBarcode bool     `json:"enable_barcode"`
	DocumentTypes []string `json:"document_types"`
	Countries     []string `json:"countries"`
}

// VerificationSession is the aggregate state of one user flow. It is owned by
// the flow sequencer and mutated only through its transition methods.
type VerificationSession struct {
	ID           string                      `json:"id"`
	UserID       string                      `json:"user_id"`
	Steps        []StepKind                  `json:"steps"`
	Current      int                         `json:"current"`
	Artifacts    map[StepKind]ArtifactRecord `json:"artifacts"`
	Settings     FlowSettings                `json:"settings"`
	CountryCode  string                      `json:"country_code,omitempty"`
	DocumentType string                      `json:"document_type,omitempty"`
	MRZData      string                      `json:"mrz_data,omitempty"`
	StartedAt    time.Time                   `json:"started_at"`
	CompletedAt  *time.Time                  `json:"completed_at,omitempty"`
}

// NewVerificationSession builds a session positioned on its first step.
func NewVerificationSession(id, userID string, steps []StepKind, settings FlowSettings, now time.Time) (*VerificationSession, error) {
	if id == "" {
		return nil, fmt.Errorf("verification id is required")
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("flow has no steps")
	}
	return &VerificationSession{
		ID:        id,
		UserID:    userID,
		Steps:     append([]StepKind(nil), steps...),
		Artifacts: make(map[StepKind]ArtifactRecord),
		Settings:  settings,
		StartedAt: now,
	}, nil
}

// CurrentStep returns the active step kind.
func (s *VerificationSession) CurrentStep() StepKind {
	if s.Current < 0 || s.Current >= len(s.Steps) {
		return StepComplete
	}
	return s.Steps[s.Current]
}

// Completed reports whether the flow reached its terminal step.
func (s *VerificationSession) Completed() bool {
	return s.CompletedAt != nil
}

// Advance moves from the given step to the next one. It fails when from is not
// the current step, which keeps late callers from skipping steps.
func (s *VerificationSession) Advance(from StepKind, now time.Time) (StepKind, error) {
	if s.Completed() {
		return "", fmt.Errorf("session %s already completed: %w", s.ID, sentinel.ErrInvalidState)
	}
	if s.CurrentStep() != from {
		return "", fmt.Errorf("advance from %s but current step is %s: %w", from, s.CurrentStep(), sentinel.ErrInvalidState)
	}
	if s.Current < len(s.Steps)-1 {
		s.Current++
	}
	next := s.CurrentStep()
	if next == StepComplete {
		completed := now
		s.CompletedAt = &completed
	}
	return next, nil
}

// RecordArtifact stores the summary of an accepted capture.
func (s *VerificationSession) RecordArtifact(kind StepKind, artifact CapturedArtifact, acceptedAt time.Time) {
	if s.Artifacts == nil {
		s.Artifacts = make(map[StepKind]ArtifactRecord)
	}
	s.Artifacts[kind] = ArtifactRecord{
		ContentType: artifact.ContentType,
		Size:        len(artifact.Payload),
		CapturedAt:  artifact.CapturedAt,
		AcceptedAt:  acceptedAt,
	}
}

// HasArtifact reports whether the step has an accepted capture.
func (s *VerificationSession) HasArtifact(kind StepKind) bool {
	_, ok := s.Artifacts[kind]
	return ok
}

// HasStep reports whether the flow includes the step.
func (s *VerificationSession) HasStep(kind StepKind) bool {
	for _, k := range s.Steps {
		if k == kind {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to hand out of the sequencer lock.
func (s *VerificationSession) Clone() *VerificationSession {
	if s == nil {
		return nil
	}
	out := *s
	out.Steps = append([]StepKind(nil), s.Steps...)
	out.Artifacts = make(map[StepKind]ArtifactRecord, len(s.Artifacts))
	for k, v := range s.Artifacts {
		out.Artifacts[k] = v
	}
	out.Settings.DocumentTypes = append([]string(nil), s.Settings.DocumentTypes...)
	out.Settings.Countries = append([]string(nil), s.Settings.Countries...)
	if s.CompletedAt != nil {
		completed := *s.CompletedAt
		out.CompletedAt = &completed
	}
	return &out
}
