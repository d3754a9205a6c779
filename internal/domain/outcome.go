package domain

import "encoding/json"

// OutcomeStatus tags the StepOutcome variant.
type OutcomeStatus string

const (
	OutcomeAccepted OutcomeStatus = "accepted"
	OutcomeRejected OutcomeStatus = "rejected"
	OutcomeFailed   OutcomeStatus = "failed"
)

// StepOutcome is the result of exactly one submission attempt.
//
//   - Accepted carries normalized data from the service (may be nil).
//   - Rejected means the service answered and refused the content.
//   - Failed means the attempt could not be judged (transport, device, encoding).
//
// Rejected and Failed always carry an ErrorDescriptor.
type StepOutcome struct {
	Status OutcomeStatus    `json:"status"`
	Data   json.RawMessage  `json:"data,omitempty"`
	Error  *ErrorDescriptor `json:"error,omitempty"`
}

func Accepted(data json.RawMessage) StepOutcome {
	return StepOutcome{Status: OutcomeAccepted, Data: data}
}

func Rejected(desc ErrorDescriptor) StepOutcome {
	return StepOutcome{Status: OutcomeRejected, Error: &desc}
}

func Failed(desc ErrorDescriptor) StepOutcome {
	return StepOutcome{Status: OutcomeFailed, Error: &desc}
}

func (o StepOutcome) IsAccepted() bool {
	return o.Status == OutcomeAccepted
}
