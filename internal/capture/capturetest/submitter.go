// Package capturetest provides a scriptable submitter for capture and flow
// tests.
package capturetest

import (
	"context"
	"encoding/json"
	"sync"

	"kycflow/internal/domain"
)

// Call records one submission.
type Call struct {
	Kind           domain.StepKind
	Artifact       domain.CapturedArtifact
	VerificationID string
}

// Submitter answers from per-step queues and accepts when a queue is empty.
// Hold makes submissions block until the returned release func is called.
type Submitter struct {
	mu       sync.Mutex
	outcomes map[domain.StepKind][]domain.StepOutcome
	gate     chan struct{}
	calls    []Call
	started  chan Call
}

func NewSubmitter() *Submitter {
	return &Submitter{
		outcomes: make(map[domain.StepKind][]domain.StepOutcome),
		started:  make(chan Call, 64),
	}
}

// Enqueue queues outcomes for a step, answered in order.
func (s *Submitter) Enqueue(kind domain.StepKind, outcomes ...domain.StepOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[kind] = append(s.outcomes[kind], outcomes...)
}

// Hold blocks every submission that starts before release is called.
func (s *Submitter) Hold() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.gate == gate {
				s.gate = nil
			}
			s.mu.Unlock()
			close(gate)
		})
	}
}

// Started delivers each call as it begins.
func (s *Submitter) Started() <-chan Call {
	return s.started
}

func (s *Submitter) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

func (s *Submitter) Submit(ctx context.Context, kind domain.StepKind, artifact domain.CapturedArtifact, verificationID string) domain.StepOutcome {
	call := Call{Kind: kind, Artifact: artifact, VerificationID: verificationID}
	s.mu.Lock()
	s.calls = append(s.calls, call)
	gate := s.gate
	s.mu.Unlock()

	select {
	case s.started <- call:
	default:
	}
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	queue := s.outcomes[kind]
	if len(queue) == 0 {
		return defaultAccept(kind)
	}
	s.outcomes[kind] = queue[1:]
	return queue[0]
}

func defaultAccept(kind domain.StepKind) domain.StepOutcome {
	if kind == domain.StepMRZ {
		return domain.Accepted(json.RawMessage("{\n  \"document_number\": \"X1234567\"\n}"))
	}
	return domain.Accepted(nil)
}
