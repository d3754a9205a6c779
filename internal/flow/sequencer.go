// Package flow orders the steps of a verification and owns the session
// state. Capture steps are delegated to the capture package; selections,
// advancement, completion and teardown happen here.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"kycflow/internal/audit"
	"kycflow/internal/camera"
	"kycflow/internal/capture"
	"kycflow/internal/catalog"
	"kycflow/internal/domain"
	"kycflow/internal/flow/store"
	"kycflow/internal/platform/metrics"
	"kycflow/internal/report"
	reportstore "kycflow/internal/report/store"
	"kycflow/pkg/platform/sentinel"
	pstrings "kycflow/pkg/platform/strings"
	"kycflow/pkg/requestcontext"
)

var (
	ErrFlowClosed       = fmt.Errorf("flow closed: %w", sentinel.ErrInvalidState)
	ErrWrongStep        = fmt.Errorf("operation does not match the current step: %w", sentinel.ErrInvalidState)
	ErrNoCaptureStep    = fmt.Errorf("current step does not capture: %w", sentinel.ErrInvalidState)
	ErrInvalidSelection = fmt.Errorf("selection not offered: %w", sentinel.ErrInvalidInput)
)

// Deps are the collaborators shared by every flow. Catalog, Camera and
// Submitter are required; the rest default to in-memory or no-op versions.
type Deps struct {
	Catalog   *catalog.Catalog
	Camera    *camera.Manager
	Submitter capture.Submitter
	Sessions  store.SessionStore
	Archive   reportstore.Archive
	Audit     audit.Emitter
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

func (d Deps) withDefaults() (Deps, error) {
	if d.Catalog == nil {
		return d, errors.New("catalog is required")
	}
	if d.Camera == nil {
		return d, errors.New("camera manager is required")
	}
	if d.Submitter == nil {
		return d, errors.New("submitter is required")
	}
	if d.Sessions == nil {
		d.Sessions = store.NewMemoryStore()
	}
	if d.Archive == nil {
		d.Archive = reportstore.NewMemoryArchive()
	}
	if d.Audit == nil {
		d.Audit = nopEmitter{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d, nil
}

type nopEmitter struct{}

func (nopEmitter) Emit(context.Context, audit.Event) error { return nil }

// Sequencer drives one verification session through its steps. At most one
// capture step is live at a time; the previous one is exited before the next
// is entered. The sequencer lock is never held across step calls.
type Sequencer struct {
	deps    Deps
	handles *capture.Handles
	device  string

	mu      sync.Mutex
	session *domain.VerificationSession
	step    *capture.Step
	closed  bool
}

func newSequencer(deps Deps, session *domain.VerificationSession, device string) *Sequencer {
	return &Sequencer{
		deps:    deps,
		handles: capture.NewHandles(),
		device:  device,
		session: session,
	}
}

func (s *Sequencer) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.ID
}

func (s *Sequencer) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.UserID
}

// Session returns a copy of the session.
func (s *Sequencer) Session() *domain.VerificationSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Clone()
}

// start persists the session and activates its current step. Resumed flows
// do not emit a start event.
func (s *Sequencer) start(ctx context.Context, resumed bool) error {
	s.mu.Lock()
	snap := s.session.Clone()
	s.mu.Unlock()

	s.persist(ctx, snap)
	if !resumed {
		s.emit(ctx, audit.Event{Action: audit.ActionFlowStarted, Step: snap.CurrentStep().String()})
	}
	s.deps.Logger.InfoContext(ctx, "verification flow started",
		"verification_id", snap.ID,
		"step", snap.CurrentStep().String(),
		"resumed", resumed,
	)
	return s.activate(ctx)
}

// activate enters the current step when it captures. Selection steps wait
// for input and the completion step has nothing to run.
func (s *Sequencer) activate(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrFlowClosed
	}
	kind := s.session.CurrentStep()
	id := s.session.ID
	if !kind.IsCapture() || s.step != nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	step, err := capture.NewStep(capture.Config{
		Kind:           kind,
		VerificationID: id,
		Camera:         s.deps.Camera,
		Submitter:      auditedSubmitter{next: s.deps.Submitter, seq: s},
		Handles:        s.handles,
		OnAccepted:     s.onAccepted,
		Logger:         s.deps.Logger,
		Metrics:        s.deps.Metrics,
	})
	if err != nil {
		return fmt.Errorf("build %s step: %w", kind, err)
	}

	s.mu.Lock()
	if s.closed || s.step != nil || s.session.CurrentStep() != kind {
		s.mu.Unlock()
		return nil
	}
	s.step = step
	s.mu.Unlock()

	if err := step.Enter(ctx); err != nil && !errors.Is(err, capture.ErrStepExited) {
		return fmt.Errorf("enter %s: %w", kind, err)
	}
	return nil
}

// advance applies mutate, moves past from and activates the next step. It
// returns ErrWrongStep when from is no longer current.
func (s *Sequencer) advance(ctx context.Context, from domain.StepKind, mutate func(*domain.VerificationSession), event audit.Event) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrFlowClosed
	}
	if s.session.CurrentStep() != from {
		current := s.session.CurrentStep()
		s.mu.Unlock()
		return fmt.Errorf("%w: %s is current, not %s", ErrWrongStep, current, from)
	}
	if mutate != nil {
		mutate(s.session)
	}
	next, err := s.session.Advance(from, s.deps.Now())
	if err != nil {
		s.mu.Unlock()
		return err
	}
	previous := s.step
	s.step = nil
	snap := s.session.Clone()
	s.mu.Unlock()

	if previous != nil {
		previous.Exit(ctx)
	}
	s.persist(ctx, snap)
	event.Step = from.String()
	s.emit(ctx, event)
	s.deps.Logger.InfoContext(ctx, "verification step advanced",
		"verification_id", snap.ID,
		"step", from.String(),
		"next_step", next.String(),
	)

	if next == domain.StepComplete {
		s.finish(ctx, snap)
		return nil
	}
	return s.activate(ctx)
}

// finish archives the report of a completed session.
func (s *Sequencer) finish(ctx context.Context, snap *domain.VerificationSession) {
	s.deps.Metrics.IncrementFlowsCompleted()
	s.emit(ctx, audit.Event{Action: audit.ActionFlowCompleted})

	completedAt := s.deps.Now()
	if snap.CompletedAt != nil {
		completedAt = *snap.CompletedAt
	}
	rep, err := report.Build(snap, completedAt)
	if err != nil {
		s.deps.Logger.ErrorContext(ctx, "failed to build report",
			"verification_id", snap.ID,
			"error", err.Error(),
		)
		return
	}
	steps := make([]string, 0, len(snap.Steps))
	for _, k := range snap.Steps {
		steps = append(steps, k.String())
	}
	entry := reportstore.Entry{
		Report:       rep,
		UserID:       snap.UserID,
		CountryCode:  snap.CountryCode,
		DocumentType: snap.DocumentType,
		Steps:        steps,
		ArchivedAt:   s.deps.Now(),
	}
	if err := s.deps.Archive.Save(ctx, entry); err != nil {
		s.deps.Logger.ErrorContext(ctx, "failed to archive report",
			"verification_id", snap.ID,
			"error", err.Error(),
		)
		return
	}
	s.deps.Logger.InfoContext(ctx, "verification flow completed", "verification_id", snap.ID)
}

func (s *Sequencer) onAccepted(ctx context.Context, kind domain.StepKind, artifact domain.CapturedArtifact, outcome domain.StepOutcome) {
	now := s.deps.Now()
	err := s.advance(ctx, kind, func(session *domain.VerificationSession) {
		session.RecordArtifact(kind, artifact, now)
		if kind == domain.StepMRZ {
			session.MRZData = string(outcome.Data)
		}
	}, audit.Event{Action: audit.ActionStepAccepted, Decision: string(outcome.Status)})
	if err != nil {
		s.deps.Logger.WarnContext(ctx, "accepted result not applied",
			"verification_id", s.ID(),
			"step", kind.String(),
			"error", err.Error(),
		)
	}
}

// CountryOptions lists the selectable countries: the catalog filtered by the
// configured countries when any are set.
func (s *Sequencer) CountryOptions() []catalog.Country {
	s.mu.Lock()
	allowed := append([]string(nil), s.session.Settings.Countries...)
	s.mu.Unlock()

	all := s.deps.Catalog.Countries()
	if len(allowed) == 0 {
		return all
	}
	out := make([]catalog.Country, 0, len(all))
	for _, c := range all {
		if pstrings.ContainsFold(allowed, c.Code) {
			out = append(out, c)
		}
	}
	return out
}

// DocumentOptions lists the document types of the selected country, filtered
// by the configured types (matched by value or label). When the filter would
// leave nothing the unfiltered list is offered. Without a selected country
// the configured types are offered as-is.
func (s *Sequencer) DocumentOptions() []catalog.DocumentType {
	s.mu.Lock()
	country := s.session.CountryCode
	configured := append([]string(nil), s.session.Settings.DocumentTypes...)
	s.mu.Unlock()

	if country == "" {
		out := make([]catalog.DocumentType, 0, len(configured))
		for _, v := range configured {
			out = append(out, catalog.DocumentType{Value: v, Label: v})
		}
		return out
	}
	all := s.deps.Catalog.DocumentTypes(country)
	if len(configured) == 0 {
		return all
	}
	filtered := make([]catalog.DocumentType, 0, len(all))
	for _, d := range all {
		if pstrings.ContainsFold(configured, d.Value) || pstrings.ContainsFold(configured, d.Label) {
			filtered = append(filtered, d)
		}
	}
	if len(filtered) == 0 {
		return all
	}
	return filtered
}

// SelectCountry records the country and advances.
func (s *Sequencer) SelectCountry(ctx context.Context, code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	offered := false
	for _, c := range s.CountryOptions() {
		if c.Code == code {
			offered = true
			break
		}
	}
	if !offered {
		return fmt.Errorf("country %q: %w", code, ErrInvalidSelection)
	}
	return s.advance(ctx, domain.StepCountrySelection, func(session *domain.VerificationSession) {
		session.CountryCode = code
		session.DocumentType = ""
	}, audit.Event{Action: audit.ActionStepSelected, Decision: code})
}

// SelectDocumentType records the document type and advances. value may be
// an option's value or its label.
func (s *Sequencer) SelectDocumentType(ctx context.Context, value string) error {
	var chosen *catalog.DocumentType
	for _, d := range s.DocumentOptions() {
		if strings.EqualFold(d.Value, strings.TrimSpace(value)) || strings.EqualFold(d.Label, strings.TrimSpace(value)) {
			chosen = &d
			break
		}
	}
	if chosen == nil {
		return fmt.Errorf("document type %q: %w", value, ErrInvalidSelection)
	}
	return s.advance(ctx, domain.StepDocumentSelection, func(session *domain.VerificationSession) {
		session.DocumentType = chosen.Value
	}, audit.Event{Action: audit.ActionStepSelected, Decision: chosen.Value})
}

func (s *Sequencer) currentStep() (*capture.Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrFlowClosed
	}
	if s.step == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoCaptureStep, s.session.CurrentStep())
	}
	return s.step, nil
}

// Capture takes a frame on the current capture step and submits it.
func (s *Sequencer) Capture(ctx context.Context) (*capture.Attempt, error) {
	step, err := s.currentStep()
	if err != nil {
		return nil, err
	}
	return step.Capture(ctx)
}

// Retry resets the current capture step after a rejection or failure.
func (s *Sequencer) Retry(ctx context.Context) error {
	step, err := s.currentStep()
	if err != nil {
		return err
	}
	return step.Retry(ctx)
}

// Preview returns the image behind a display handle issued by this flow.
func (s *Sequencer) Preview(handle string) (capture.Preview, bool) {
	return s.handles.Get(handle)
}

// Report builds the report of a completed flow.
func (s *Sequencer) Report(ctx context.Context) (report.Report, error) {
	snap := s.Session()
	rep, err := report.Build(snap, s.deps.Now())
	if err != nil {
		return report.Report{}, err
	}
	s.emit(ctx, audit.Event{Action: audit.ActionReportExported})
	return rep, nil
}

// close exits the live step, releasing the camera and revoking its handle,
// and drops the stored session. Idempotent.
func (s *Sequencer) close(ctx context.Context, action audit.Action) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	step := s.step
	s.step = nil
	id := s.session.ID
	s.mu.Unlock()

	if step != nil {
		step.Exit(ctx)
	}
	if err := s.deps.Sessions.Delete(ctx, id); err != nil {
		s.deps.Logger.WarnContext(ctx, "failed to delete session",
			"verification_id", id,
			"error", err.Error(),
		)
	}
	s.emit(ctx, audit.Event{Action: action})
	s.deps.Logger.InfoContext(ctx, "verification flow closed",
		"verification_id", id,
		"action", string(action),
	)
}

func (s *Sequencer) persist(ctx context.Context, snap *domain.VerificationSession) {
	if err := s.deps.Sessions.Save(ctx, snap); err != nil {
		s.deps.Logger.ErrorContext(ctx, "failed to persist session",
			"verification_id", snap.ID,
			"step", snap.CurrentStep().String(),
			"error", err.Error(),
		)
	}
}

func (s *Sequencer) emit(ctx context.Context, event audit.Event) {
	s.mu.Lock()
	event.VerificationID = s.session.ID
	event.UserID = s.session.UserID
	s.mu.Unlock()
	event.Timestamp = s.deps.Now()
	event.RequestID = requestcontext.RequestID(ctx)
	event.Device = s.device
	if err := s.deps.Audit.Emit(ctx, event); err != nil {
		s.deps.Logger.WarnContext(ctx, "failed to emit audit event",
			"verification_id", event.VerificationID,
			"action", string(event.Action),
			"error", err.Error(),
		)
	}
}

// auditedSubmitter records rejected and failed attempts. Accepted attempts
// are recorded when the flow advances.
type auditedSubmitter struct {
	next capture.Submitter
	seq  *Sequencer
}

func (a auditedSubmitter) Submit(ctx context.Context, kind domain.StepKind, artifact domain.CapturedArtifact, verificationID string) domain.StepOutcome {
	outcome := a.next.Submit(ctx, kind, artifact, verificationID)
	var action audit.Action
	switch outcome.Status {
	case domain.OutcomeRejected:
		action = audit.ActionStepRejected
	case domain.OutcomeFailed:
		action = audit.ActionStepFailed
	default:
		return outcome
	}
	event := audit.Event{Action: action, Step: kind.String(), Decision: string(outcome.Status)}
	if outcome.Error != nil {
		event.Reason = string(outcome.Error.Kind) + ": " + outcome.Error.Message
	}
	a.seq.emit(ctx, event)
	return outcome
}
