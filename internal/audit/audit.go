// Package audit records what happened in each verification flow. Events are
// emitted by the flow sequencer, pseudonymized and fanned out to sinks by a
// background worker.
package audit

import (
	"context"
	"time"
)

// EventCategory classifies events for routing and retention.
type EventCategory string

const (
	// CategoryCompliance covers flow lifecycle facts that must be kept.
	CategoryCompliance EventCategory = "compliance"
	// CategoryOperations covers per-attempt activity useful for debugging.
	CategoryOperations EventCategory = "operations"
)

type Action string

const (
	ActionFlowStarted    Action = "flow_started"
	ActionFlowCompleted  Action = "flow_completed"
	ActionFlowClosed     Action = "flow_closed"
	ActionFlowRestarted  Action = "flow_restarted"
	ActionStepSelected   Action = "selection_made"
	ActionStepAccepted   Action = "step_accepted"
	ActionStepRejected   Action = "step_rejected"
	ActionStepFailed     Action = "step_failed"
	ActionReportExported Action = "report_exported"
)

var actionCategories = map[Action]EventCategory{
	ActionFlowStarted:    CategoryCompliance,
	ActionFlowCompleted:  CategoryCompliance,
	ActionFlowClosed:     CategoryCompliance,
	ActionFlowRestarted:  CategoryCompliance,
	ActionReportExported: CategoryCompliance,
}

// Category returns the category of the action. Unknown actions are
// operational.
func (a Action) Category() EventCategory {
	if c, ok := actionCategories[a]; ok {
		return c
	}
	return CategoryOperations
}

// Event is one audit record. UserID is replaced by UserHash before the event
// leaves the publisher.
type Event struct {
	Category       EventCategory `json:"category"`
	Timestamp      time.Time     `json:"timestamp"`
	VerificationID string        `json:"verification_id"`
	UserID         string        `json:"user_id,omitempty"`
	UserHash       string        `json:"user_hash,omitempty"`
	Action         Action        `json:"action"`
	Step           string        `json:"step,omitempty"`
	Decision       string        `json:"decision,omitempty"`
	Reason         string        `json:"reason,omitempty"`
	RequestID      string        `json:"request_id,omitempty"`
	Device         string        `json:"device,omitempty"`
}

// Emitter is what flow code depends on.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// Sink persists or forwards events.
type Sink interface {
	Append(ctx context.Context, event Event) error
}
