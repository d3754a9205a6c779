package flow

import (
	"kycflow/internal/capture"
	"kycflow/internal/catalog"
	"kycflow/internal/domain"
)

// View is the client-facing projection of a flow: the session summary plus
// whatever the current step needs rendered.
type View struct {
	VerificationID string                 `json:"verification_id"`
	UserID         string                 `json:"user_id"`
	Steps          []domain.StepKind      `json:"steps"`
	CurrentIndex   int                    `json:"current_index"`
	CurrentStep    domain.StepKind        `json:"current_step"`
	CountryCode    string                 `json:"country_code,omitempty"`
	DocumentType   string                 `json:"document_type,omitempty"`
	Completed      bool                   `json:"completed"`
	Closed         bool                   `json:"closed,omitempty"`
	Countries      []catalog.Country      `json:"countries,omitempty"`
	DocumentTypes  []catalog.DocumentType `json:"document_types,omitempty"`
	Capture        *capture.View          `json:"capture,omitempty"`
}

func (s *Sequencer) View() View {
	s.mu.Lock()
	session := s.session.Clone()
	step := s.step
	closed := s.closed
	s.mu.Unlock()

	v := View{
		VerificationID: session.ID,
		UserID:         session.UserID,
		Steps:          session.Steps,
		CurrentIndex:   session.Current,
		CurrentStep:    session.CurrentStep(),
		CountryCode:    session.CountryCode,
		DocumentType:   session.DocumentType,
		Completed:      session.Completed(),
		Closed:         closed,
	}
	if closed {
		return v
	}
	switch v.CurrentStep {
	case domain.StepCountrySelection:
		v.Countries = s.CountryOptions()
	case domain.StepDocumentSelection:
		v.DocumentTypes = s.DocumentOptions()
	}
	if step != nil {
		cv := capture.Project(step.Snapshot())
		v.Capture = &cv
	}
	return v
}
