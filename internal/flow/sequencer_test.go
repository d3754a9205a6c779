package flow_test

//go:generate mockgen -source=config.go -destination=mocks/mocks.go -package=mocks ConfigSource

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"kycflow/internal/audit"
	"kycflow/internal/camera"
	"kycflow/internal/camera/cameratest"
	"kycflow/internal/capture"
	"kycflow/internal/capture/capturetest"
	"kycflow/internal/catalog"
	"kycflow/internal/domain"
	"kycflow/internal/flow"
	"kycflow/internal/flow/mocks"
	"kycflow/internal/flow/store"
	reportstore "kycflow/internal/report/store"
	"kycflow/pkg/platform/sentinel"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingEmitter) Emit(_ context.Context, e audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingEmitter) actions() []audit.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]audit.Action, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Action)
	}
	return out
}

type SequencerSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	source    *mocks.MockConfigSource
	device    *cameratest.Device
	submitter *capturetest.Submitter
	sessions  *store.MemoryStore
	archive   *reportstore.MemoryArchive
	emitter   *recordingEmitter
	registry  *flow.Registry
	ids       int
}

func TestSequencerSuite(t *testing.T) {
	suite.Run(t, new(SequencerSuite))
}

func (s *SequencerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.source = mocks.NewMockConfigSource(s.ctrl)
	s.device = cameratest.NewDevice(camera.FacingUser, camera.FacingEnvironment)
	s.submitter = capturetest.NewSubmitter()
	s.sessions = store.NewMemoryStore()
	s.archive = reportstore.NewMemoryArchive()
	s.emitter = &recordingEmitter{}
	s.ids = 0
	s.registry = s.newRegistry()
}

func (s *SequencerSuite) TearDownTest() {
	s.registry.Shutdown(context.Background())
	s.ctrl.Finish()
}

func (s *SequencerSuite) newRegistry() *flow.Registry {
	cat, err := catalog.Default()
	s.Require().NoError(err)
	registry, err := flow.NewRegistry(s.source, flow.Deps{
		Catalog:   cat,
		Camera:    camera.NewManager(s.device),
		Submitter: s.submitter,
		Sessions:  s.sessions,
		Archive:   s.archive,
		Audit:     s.emitter,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, flow.WithIDGenerator(func() string {
		s.ids++
		return "ver-" + string(rune('0'+s.ids))
	}))
	s.Require().NoError(err)
	return registry
}

func (s *SequencerSuite) expectConfig(steps []domain.StepKind, settings domain.FlowSettings) *gomock.Call {
	return s.source.EXPECT().FlowConfig(gomock.Any(), "user-1").Return(flow.Config{Steps: steps, Settings: settings}, nil)
}

func (s *SequencerSuite) fullFlow() {
	_ = s.expectConfig([]domain.StepKind{
		domain.StepCountrySelection,
		domain.StepDocumentSelection,
		domain.StepDocumentFront,
		domain.StepDocumentBack,
		domain.StepSelfie,
		domain.StepComplete,
	}, domain.FlowSettings{Countries: []string{"US", "GB"}, DocumentTypes: []string{"passport"}})
}

func (s *SequencerSuite) capture(seq *flow.Sequencer) (domain.StepOutcome, bool) {
	attempt, err := seq.Capture(context.Background())
	s.Require().NoError(err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	outcome, applied, err := attempt.Wait(ctx)
	s.Require().NoError(err)
	return outcome, applied
}

func (s *SequencerSuite) TestFullFlow() {
	ctx := context.Background()
	s.fullFlow()

	seq, err := s.registry.Start(ctx, "user-1")
	s.Require().NoError(err)

	s.Run("country selection offers the configured countries", func() {
		v := seq.View()
		s.Equal(domain.StepCountrySelection, v.CurrentStep)
		s.Equal([]catalog.Country{{Code: "GB", Name: "United Kingdom"}, {Code: "US", Name: "United States"}}, v.Countries)
		s.Nil(v.Capture)
		s.Zero(s.device.Running())
	})

	s.Run("capture outside a capture step is refused", func() {
		_, err := seq.Capture(ctx)
		s.ErrorIs(err, flow.ErrNoCaptureStep)
	})

	s.Run("unlisted country is refused", func() {
		err := seq.SelectCountry(ctx, "fr")
		s.ErrorIs(err, sentinel.ErrInvalidInput)
	})

	s.Require().NoError(seq.SelectCountry(ctx, "us"))

	s.Run("document options are filtered by the configured types", func() {
		s.Equal([]catalog.DocumentType{{Value: "PP", Label: "Passport"}}, seq.View().DocumentTypes)
		s.ErrorIs(seq.SelectDocumentType(ctx, "DL"), flow.ErrInvalidSelection)
	})

	s.Require().NoError(seq.SelectDocumentType(ctx, "passport"))

	s.Run("document front streams from the rear camera", func() {
		v := seq.View()
		s.Equal(domain.StepDocumentFront, v.CurrentStep)
		s.Equal("US", v.CountryCode)
		s.Equal("PP", v.DocumentType)
		s.Require().NotNil(v.Capture)
		s.Equal(capture.StateStreaming, v.Capture.State)
		s.Equal(camera.FacingEnvironment, v.Capture.Facing)
		s.False(v.Capture.Mirrored)
		s.Equal(1, s.device.Running())
	})

	s.Run("a blurry capture stays on the step until retried", func() {
		s.submitter.Enqueue(domain.StepDocumentFront, domain.Rejected(domain.ErrorDescriptor{
			Kind:    domain.ErrorKindValidation,
			Message: "Blurry image",
		}))
		outcome, applied := s.capture(seq)
		s.True(applied)
		s.Equal(domain.OutcomeRejected, outcome.Status)

		v := seq.View()
		s.Equal(domain.StepDocumentFront, v.CurrentStep)
		s.Equal(capture.StateRejectedRetryable, v.Capture.State)
		s.Require().NotNil(v.Capture.Error)
		s.Equal("Blurry image", v.Capture.Error.Message)
		s.Equal("Validation Error", v.Capture.Error.Title)

		s.Require().NoError(seq.Retry(ctx))
		s.Equal(capture.StateStreaming, seq.View().Capture.State)
	})

	s.Run("accepted captures advance step by step", func() {
		_, applied := s.capture(seq)
		s.True(applied)
		s.Equal(domain.StepDocumentBack, seq.View().CurrentStep)

		_, applied = s.capture(seq)
		s.True(applied)
		v := seq.View()
		s.Equal(domain.StepSelfie, v.CurrentStep)
		s.Equal(camera.FacingUser, v.Capture.Facing)
		s.True(v.Capture.Mirrored)
		s.Equal(1, s.device.Running())

		_, applied = s.capture(seq)
		s.True(applied)
	})

	s.Run("completion releases the camera and archives the report", func() {
		v := seq.View()
		s.True(v.Completed)
		s.Equal(domain.StepComplete, v.CurrentStep)
		s.Nil(v.Capture)
		s.Zero(s.device.Running())

		session := seq.Session()
		s.True(session.HasArtifact(domain.StepDocumentFront))
		s.True(session.HasArtifact(domain.StepDocumentBack))
		s.True(session.HasArtifact(domain.StepSelfie))

		entry, err := s.archive.Get(ctx, seq.ID())
		s.Require().NoError(err)
		s.Equal("user-1", entry.UserID)
		s.Equal("US", entry.CountryCode)
		s.True(entry.Report.Documents.Selfie)
		s.False(entry.Report.Documents.MRZScan)

		stored, err := s.sessions.Get(ctx, seq.ID())
		s.Require().NoError(err)
		s.True(stored.Completed())
	})

	s.Run("report is available once complete", func() {
		rep, err := seq.Report(ctx)
		s.Require().NoError(err)
		s.Equal("completed", rep.Status)
		s.True(rep.Documents.DocumentFront)
	})

	s.Equal([]audit.Action{
		audit.ActionFlowStarted,
		audit.ActionStepSelected,
		audit.ActionStepSelected,
		audit.ActionStepRejected,
		audit.ActionStepAccepted,
		audit.ActionStepAccepted,
		audit.ActionStepAccepted,
		audit.ActionFlowCompleted,
		audit.ActionReportExported,
	}, s.emitter.actions())
}

func (s *SequencerSuite) TestMRZDataIsKept() {
	ctx := context.Background()
	s.expectConfig([]domain.StepKind{domain.StepMRZ, domain.StepComplete}, domain.FlowSettings{EnableMRZ: true})

	seq, err := s.registry.Start(ctx, "user-1")
	s.Require().NoError(err)
	_, err = seq.Report(ctx)
	s.ErrorIs(err, sentinel.ErrInvalidState)

	_, applied := s.capture(seq)
	s.True(applied)

	s.Contains(seq.Session().MRZData, "document_number")
	rep, err := seq.Report(ctx)
	s.Require().NoError(err)
	s.True(rep.Documents.MRZScan)
	s.Equal("mrz", rep.ScannerType)
}

func (s *SequencerSuite) TestCloseDuringUploadIgnoresTheResult() {
	ctx := context.Background()
	s.expectConfig([]domain.StepKind{domain.StepSelfie, domain.StepComplete}, domain.FlowSettings{})

	seq, err := s.registry.Start(ctx, "user-1")
	s.Require().NoError(err)

	release := s.submitter.Hold()
	attempt, err := seq.Capture(ctx)
	s.Require().NoError(err)
	<-s.submitter.Started()
	s.Equal(capture.StateUploading, seq.View().Capture.State)

	s.Require().NoError(s.registry.Close(ctx, seq.ID()))
	s.Zero(s.device.Running())
	release()

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	outcome, applied, err := attempt.Wait(waitCtx)
	s.Require().NoError(err)
	s.True(outcome.IsAccepted())
	s.False(applied)

	s.Equal(domain.StepSelfie, seq.Session().CurrentStep())
	s.False(seq.Session().HasArtifact(domain.StepSelfie))
	_, err = s.sessions.Get(ctx, seq.ID())
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = seq.Capture(ctx)
	s.ErrorIs(err, flow.ErrFlowClosed)
}

func (s *SequencerSuite) TestCameraFailureIsRetryable() {
	ctx := context.Background()
	s.expectConfig([]domain.StepKind{domain.StepDocumentFront, domain.StepComplete}, domain.FlowSettings{})
	s.device.SetOpenErr(camera.ErrPermissionDenied)

	seq, err := s.registry.Start(ctx, "user-1")
	s.Require().NoError(err)

	v := seq.View()
	s.Equal(capture.StateFailed, v.Capture.State)
	s.Equal("Camera Access Required", v.Capture.Error.Title)
	s.True(v.Capture.CanRetry)

	s.device.SetOpenErr(nil)
	s.Require().NoError(seq.Retry(ctx))
	s.Equal(capture.StateStreaming, seq.View().Capture.State)
}

func (s *SequencerSuite) TestRestart() {
	ctx := context.Background()
	s.expectConfig([]domain.StepKind{domain.StepSelfie, domain.StepComplete}, domain.FlowSettings{}).Times(2)

	first, err := s.registry.Start(ctx, "user-1")
	s.Require().NoError(err)

	second, err := s.registry.Restart(ctx, first.ID())
	s.Require().NoError(err)
	s.NotEqual(first.ID(), second.ID())
	s.Equal("user-1", second.UserID())
	s.Equal(1, s.registry.Len())
	s.Equal(1, s.device.Running())

	_, err = s.sessions.Get(ctx, first.ID())
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.Contains(s.emitter.actions(), audit.ActionFlowRestarted)
}

func (s *SequencerSuite) TestResumeFromStore() {
	ctx := context.Background()
	s.fullFlow()

	seq, err := s.registry.Start(ctx, "user-1")
	s.Require().NoError(err)
	s.Require().NoError(seq.SelectCountry(ctx, "GB"))

	other := s.newRegistry()
	resumed, err := other.Get(ctx, seq.ID())
	s.Require().NoError(err)
	v := resumed.View()
	s.Equal(domain.StepDocumentSelection, v.CurrentStep)
	s.Equal("GB", v.CountryCode)
	s.Equal([]catalog.DocumentType{{Value: "PP", Label: "Passport"}}, v.DocumentTypes)
}

func (s *SequencerSuite) TestStartErrors() {
	ctx := context.Background()

	s.Run("blank user", func() {
		_, err := s.registry.Start(ctx, "  ")
		s.ErrorIs(err, sentinel.ErrInvalidInput)
	})

	s.Run("config source failure", func() {
		s.source.EXPECT().FlowConfig(gomock.Any(), "user-2").Return(flow.Config{}, sentinel.ErrUnavailable)
		_, err := s.registry.Start(ctx, "user-2")
		s.ErrorIs(err, sentinel.ErrUnavailable)
		s.Zero(s.registry.Len())
	})

	s.Run("unknown flow", func() {
		_, err := s.registry.Get(ctx, "missing")
		s.True(errors.Is(err, sentinel.ErrNotFound))
	})
}
