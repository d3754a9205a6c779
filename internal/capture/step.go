// Package capture runs the per-step capture cycle: acquire the camera, take
// one frame, submit it and react to the verdict.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"kycflow/internal/camera"
	"kycflow/internal/classify"
	"kycflow/internal/domain"
	"kycflow/internal/platform/metrics"
	"kycflow/pkg/platform/sentinel"
)

// State of a capture step.
type State string

const (
	StateIdle              State = "idle"
	StateStreaming         State = "streaming"
	StateCapturing         State = "capturing"
	StateUploading         State = "uploading"
	StateAccepted          State = "accepted"
	StateRejectedRetryable State = "rejected_retryable"
	StateFailed            State = "failed"
	StateExited            State = "exited"
)

// IsError reports whether the state offers Retry.
func (s State) IsError() bool {
	return s == StateRejectedRetryable || s == StateFailed
}

var (
	// ErrCaptureNotAllowed is returned when Capture is called outside Streaming.
	ErrCaptureNotAllowed = fmt.Errorf("capture not allowed: %w", sentinel.ErrInvalidState)
	// ErrRetryNotAllowed is returned when Retry is called outside an error state.
	ErrRetryNotAllowed = fmt.Errorf("retry not allowed: %w", sentinel.ErrInvalidState)
	// ErrStepExited is returned by operations on a step that was left.
	ErrStepExited = fmt.Errorf("step exited: %w", sentinel.ErrInvalidState)
)

// Submitter sends one capture to the verification service.
type Submitter interface {
	Submit(ctx context.Context, step domain.StepKind, artifact domain.CapturedArtifact, verificationID string) domain.StepOutcome
}

// AcceptFunc is called once, outside the step lock, when a submission of the
// current attempt is accepted.
type AcceptFunc func(ctx context.Context, kind domain.StepKind, artifact domain.CapturedArtifact, outcome domain.StepOutcome)

// Config wires a Step.
type Config struct {
	Kind           domain.StepKind
	VerificationID string
	Camera         *camera.Manager
	Submitter      Submitter
	Handles        *Handles
	OnAccepted     AcceptFunc
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
}

// Step is the state machine for one capture step. Its lock is never held
// across camera acquisition, frame capture or submission.
type Step struct {
	kind           domain.StepKind
	verificationID string
	camera         *camera.Manager
	submitter      Submitter
	handles        *Handles
	onAccepted     AcceptFunc
	logger         *slog.Logger
	metrics        *metrics.Metrics

	mu       sync.Mutex
	state    State
	epoch    uint64
	cancel   context.CancelFunc
	stream   *camera.Stream
	facing   camera.Facing
	artifact domain.CapturedArtifact
	outcome  *domain.StepOutcome
	failure  *domain.ErrorDescriptor
}

func NewStep(cfg Config) (*Step, error) {
	if !cfg.Kind.IsCapture() {
		return nil, fmt.Errorf("step %s does not capture", cfg.Kind)
	}
	if cfg.Camera == nil || cfg.Submitter == nil {
		return nil, errors.New("capture step needs a camera and a submitter")
	}
	if cfg.Handles == nil {
		cfg.Handles = NewHandles()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Step{
		kind:           cfg.Kind,
		verificationID: cfg.VerificationID,
		camera:         cfg.Camera,
		submitter:      cfg.Submitter,
		handles:        cfg.Handles,
		onAccepted:     cfg.OnAccepted,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		state:          StateIdle,
		facing:         PreferredFacing(cfg.Kind),
	}, nil
}

// PreferredFacing is the camera a step asks for: the selfie uses the front
// camera, document and MRZ steps the rear one.
func PreferredFacing(kind domain.StepKind) camera.Facing {
	if kind == domain.StepSelfie {
		return camera.FacingUser
	}
	return camera.FacingEnvironment
}

func (s *Step) Kind() domain.StepKind {
	return s.kind
}

// Enter acquires the camera. The step ends in Streaming, or Failed with a
// camera descriptor. Acquisition failures are not returned as errors.
func (s *Step) Enter(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateExited {
		s.mu.Unlock()
		return ErrStepExited
	}
	if s.state != StateIdle {
		s.mu.Unlock()
		return fmt.Errorf("enter from %s: %w", s.state, sentinel.ErrInvalidState)
	}
	epoch := s.epoch
	preferred := PreferredFacing(s.kind)
	acquireCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	stream, err := s.camera.Acquire(acquireCtx, preferred)
	cancel()

	s.mu.Lock()
	if s.epoch != epoch || s.state != StateIdle {
		s.mu.Unlock()
		if stream != nil {
			stream.Release()
		}
		return nil
	}
	s.cancel = nil
	if err != nil {
		desc := classify.Failure(err)
		s.failure = &desc
		s.setState(ctx, StateFailed)
		s.mu.Unlock()
		s.logger.WarnContext(ctx, "camera acquisition failed",
			"verification_id", s.verificationID,
			"step", s.kind.String(),
			"error", err.Error(),
		)
		return nil
	}
	s.stream = stream
	s.facing = stream.Facing()
	s.setState(ctx, StateStreaming)
	s.mu.Unlock()
	return nil
}

// Capture samples one frame and submits it. It is refused unless the step is
// Streaming, so at most one submission is outstanding per step. The returned
// attempt resolves when its verdict has been applied (or ignored as stale).
func (s *Step) Capture(ctx context.Context) (*Attempt, error) {
	s.mu.Lock()
	s.detectLostStream(ctx)
	if s.state != StateStreaming {
		state := s.state
		s.mu.Unlock()
		if state == StateExited {
			return nil, ErrStepExited
		}
		return nil, fmt.Errorf("%w (state %s)", ErrCaptureNotAllowed, state)
	}
	s.setState(ctx, StateCapturing)
	epoch := s.epoch
	stream := s.stream
	s.mu.Unlock()

	attempt := newAttempt(epoch)
	frame, err := stream.CaptureFrame(ctx)

	s.mu.Lock()
	if s.epoch != epoch || s.state != StateCapturing {
		s.mu.Unlock()
		attempt.finish(domain.Failed(classify.Failure(ErrStepExited)), false)
		return attempt, nil
	}
	if err != nil {
		desc := classify.Failure(err)
		s.failure = &desc
		s.setState(ctx, StateFailed)
		s.mu.Unlock()
		attempt.finish(domain.Failed(desc), true)
		return attempt, nil
	}

	artifact := domain.CapturedArtifact{
		Payload:     frame.Data,
		ContentType: frame.ContentType,
		CapturedAt:  frame.CapturedAt,
	}
	artifact.Handle = s.handles.Issue(Preview{
		Data:        frame.Data,
		ContentType: frame.ContentType,
		CapturedAt:  frame.CapturedAt,
	})
	s.handles.Revoke(s.artifact.Handle)
	s.artifact = artifact
	s.setState(ctx, StateUploading)
	s.mu.Unlock()

	go s.submit(context.WithoutCancel(ctx), attempt, artifact)
	return attempt, nil
}

func (s *Step) submit(ctx context.Context, attempt *Attempt, artifact domain.CapturedArtifact) {
	outcome := s.submitter.Submit(ctx, s.kind, artifact, s.verificationID)
	s.complete(ctx, attempt, artifact, outcome)
}

// complete applies a verdict unless the attempt is stale.
func (s *Step) complete(ctx context.Context, attempt *Attempt, artifact domain.CapturedArtifact, outcome domain.StepOutcome) {
	s.mu.Lock()
	if s.epoch != attempt.epoch || s.state != StateUploading {
		s.mu.Unlock()
		s.metrics.RecordStaleResult(s.kind.String())
		s.logger.InfoContext(ctx, "ignoring stale submission result",
			"verification_id", s.verificationID,
			"step", s.kind.String(),
			"outcome", string(outcome.Status),
		)
		attempt.finish(outcome, false)
		return
	}

	var release *camera.Stream
	switch outcome.Status {
	case domain.OutcomeAccepted:
		s.outcome = &outcome
		s.failure = nil
		release = s.stream
		s.stream = nil
		s.setState(ctx, StateAccepted)
	case domain.OutcomeRejected:
		s.failure = descriptorOf(outcome)
		s.setState(ctx, StateRejectedRetryable)
	default:
		s.failure = descriptorOf(outcome)
		s.setState(ctx, StateFailed)
	}
	s.mu.Unlock()

	if outcome.IsAccepted() {
		if release != nil {
			release.Release()
		}
		if s.onAccepted != nil {
			s.onAccepted(ctx, s.kind, artifact, outcome)
		}
	}
	attempt.finish(outcome, true)
}

func descriptorOf(outcome domain.StepOutcome) *domain.ErrorDescriptor {
	if outcome.Error != nil && outcome.Error.Message != "" {
		desc := *outcome.Error
		return &desc
	}
	desc := classify.Failure(nil)
	return &desc
}

// Retry discards the artifact, releases the camera and re-acquires it. Only
// valid from RejectedRetryable or Failed.
func (s *Step) Retry(ctx context.Context) error {
	s.mu.Lock()
	if !s.state.IsError() {
		state := s.state
		s.mu.Unlock()
		if state == StateExited {
			return ErrStepExited
		}
		return fmt.Errorf("%w (state %s)", ErrRetryNotAllowed, state)
	}
	stream := s.reset()
	s.setState(ctx, StateIdle)
	s.mu.Unlock()

	if stream != nil {
		stream.Release()
	}
	s.logger.InfoContext(ctx, "capture step retried",
		"verification_id", s.verificationID,
		"step", s.kind.String(),
	)
	return s.Enter(ctx)
}

// Exit leaves the step: the camera is released, the display handle revoked
// and any outstanding submission becomes stale. Idempotent.
func (s *Step) Exit(ctx context.Context) {
	s.mu.Lock()
	if s.state == StateExited {
		s.mu.Unlock()
		return
	}
	stream := s.reset()
	s.setState(ctx, StateExited)
	s.mu.Unlock()

	if stream != nil {
		stream.Release()
	}
}

// detectLostStream fails a Streaming step whose stream was stopped by another
// acquisition on the shared camera. Caller holds s.mu.
func (s *Step) detectLostStream(ctx context.Context) {
	if s.state != StateStreaming || s.stream == nil || s.stream.Active() {
		return
	}
	s.stream = nil
	desc := classify.Failure(camera.ErrDeviceBusy)
	s.failure = &desc
	s.setState(ctx, StateFailed)
	s.logger.WarnContext(ctx, "camera taken by another acquisition",
		"verification_id", s.verificationID,
		"step", s.kind.String(),
	)
}

// reset drops per-attempt state, cancels a pending acquisition and
// invalidates outstanding attempts. It returns the stream for the caller to
// release after unlocking.
func (s *Step) reset() *camera.Stream {
	s.epoch++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.handles.Revoke(s.artifact.Handle)
	s.artifact = domain.CapturedArtifact{}
	s.outcome = nil
	s.failure = nil
	stream := s.stream
	s.stream = nil
	return stream
}

func (s *Step) setState(ctx context.Context, next State) {
	if s.state == next {
		return
	}
	s.logger.DebugContext(ctx, "capture step transition",
		"verification_id", s.verificationID,
		"step", s.kind.String(),
		"from", string(s.state),
		"state", string(next),
	)
	s.state = next
	s.metrics.RecordTransition(s.kind.String(), string(next))
}

// Snapshot is a consistent copy of the step state.
type Snapshot struct {
	Kind       domain.StepKind
	State      State
	Epoch      uint64
	Facing     camera.Facing
	Handle     string
	CapturedAt time.Time
	Outcome    *domain.StepOutcome
	Error      *domain.ErrorDescriptor
}

// Snapshot is a consistent copy of the step state. A Streaming step whose
// camera was taken is reported, and left, as Failed.
func (s *Step) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detectLostStream(context.Background())
	snap := Snapshot{
		Kind:       s.kind,
		State:      s.state,
		Epoch:      s.epoch,
		Facing:     s.facing,
		Handle:     s.artifact.Handle,
		CapturedAt: s.artifact.CapturedAt,
	}
	if s.outcome != nil {
		o := *s.outcome
		snap.Outcome = &o
	}
	if s.failure != nil {
		d := *s.failure
		d.Tips = append([]string(nil), s.failure.Tips...)
		snap.Error = &d
	}
	return snap
}

// Attempt is one capture-and-submit cycle.
type Attempt struct {
	epoch   uint64
	done    chan struct{}
	outcome domain.StepOutcome
	applied bool
}

func newAttempt(epoch uint64) *Attempt {
	return &Attempt{epoch: epoch, done: make(chan struct{})}
}

func (a *Attempt) finish(outcome domain.StepOutcome, applied bool) {
	a.outcome = outcome
	a.applied = applied
	close(a.done)
}

// Done is closed once the attempt has resolved.
func (a *Attempt) Done() <-chan struct{} {
	return a.done
}

// Wait blocks until the attempt resolves. Applied is false when the step had
// moved on and the verdict was ignored.
func (a *Attempt) Wait(ctx context.Context) (outcome domain.StepOutcome, applied bool, err error) {
	select {
	case <-a.done:
		return a.outcome, a.applied, nil
	case <-ctx.Done():
		return domain.StepOutcome{}, false, ctx.Err()
	}
}
