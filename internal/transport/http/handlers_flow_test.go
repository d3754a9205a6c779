package httptransport

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"kycflow/internal/camera"
	"kycflow/internal/camera/cameratest"
	"kycflow/internal/capture/capturetest"
	"kycflow/internal/catalog"
	"kycflow/internal/domain"
	"kycflow/internal/flow"
	"kycflow/internal/platform/logger"
	"kycflow/internal/ratelimit"
	"kycflow/pkg/platform/svctoken"
	"kycflow/pkg/testutil"
)

type FlowHandlerSuite struct {
	suite.Suite
	device    *cameratest.Device
	submitter *capturetest.Submitter
	registry  *flow.Registry
	router    http.Handler
}

func TestFlowHandlerSuite(t *testing.T) {
	suite.Run(t, new(FlowHandlerSuite))
}

func (s *FlowHandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cat, err := catalog.Default()
	s.Require().NoError(err)
	s.device = cameratest.NewDevice(camera.FacingUser, camera.FacingEnvironment)
	s.submitter = capturetest.NewSubmitter()

	source := flow.NewStaticSource(
		[]string{"country-selection", "document-front-capture", "thank-you"},
		domain.FlowSettings{Countries: []string{"US"}},
	)
	s.registry, err = flow.NewRegistry(source, flow.Deps{
		Catalog:   cat,
		Camera:    camera.NewManager(s.device),
		Submitter: s.submitter,
		Logger:    logger,
	})
	s.Require().NoError(err)

	s.router = NewRouter(RouterConfig{
		Logger:  logger,
		Flows:   NewFlowHandler(s.registry, logger),
		Catalog: NewCatalogHandler(cat),
	})
}

func (s *FlowHandlerSuite) TearDownTest() {
	s.registry.Shutdown(context.Background())
}

func (s *FlowHandlerSuite) start() flow.View {
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/flows", map[string]string{"user_id": "user-1"}))
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	return *testutil.UnmarshalResponse[flow.View](s.T(), rr)
}

func (s *FlowHandlerSuite) post(path string, body any) *httptest.ResponseRecorder {
	return testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, path, body))
}

func (s *FlowHandlerSuite) TestStart() {
	s.Run("creates a flow on its first step", func() {
		v := s.start()
		s.NotEmpty(v.VerificationID)
		s.Equal(domain.StepCountrySelection, v.CurrentStep)
		s.Len(v.Countries, 1)
	})

	s.Run("rejects malformed bodies", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), http.MethodPost, "/v1/flows", "{bad"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, CodeInvalidRequest)
	})

	s.Run("requires a user", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/flows", map[string]string{}))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, CodeInvalidInput)
	})
}

func (s *FlowHandlerSuite) TestCaptureLifecycle() {
	v := s.start()
	base := "/v1/flows/" + v.VerificationID

	s.Run("capture on a selection step conflicts", func() {
		rr := s.post(base+"/capture", nil)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, CodeConflict)
	})

	s.Run("unknown country is invalid input", func() {
		rr := s.post(base+"/country", map[string]string{"country_code": "JP"})
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, CodeInvalidInput)
	})

	s.Run("report conflicts before completion", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, base+"/report"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, CodeConflict)
	})

	rr := s.post(base+"/country", map[string]string{"country_code": "us"})
	testutil.AssertStatusOK(s.T(), rr)
	v = *testutil.UnmarshalResponse[flow.View](s.T(), rr)
	s.Equal(domain.StepDocumentFront, v.CurrentStep)
	s.Require().NotNil(v.Capture)
	s.True(v.Capture.CaptureEnabled)

	s.Run("a rejected capture exposes its preview and can be retried", func() {
		s.submitter.Enqueue(domain.StepDocumentFront, domain.Rejected(domain.ErrorDescriptor{
			Kind:    domain.ErrorKindValidation,
			Message: "Blurry image",
		}))
		rr := s.post(base+"/capture?wait=true", nil)
		testutil.AssertStatusOK(s.T(), rr)
		v := *testutil.UnmarshalResponse[flow.View](s.T(), rr)
		s.Require().NotNil(v.Capture.Error)
		s.Equal("Blurry image", v.Capture.Error.Message)
		s.True(v.Capture.CanRetry)
		s.Require().NotEmpty(v.Capture.PreviewHandle)

		art := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, base+"/artifacts/"+v.Capture.PreviewHandle))
		testutil.AssertStatusOK(s.T(), art)
		s.Equal("image/jpeg", art.Header().Get("Content-Type"))

		rr = s.post(base+"/retry", nil)
		testutil.AssertStatusOK(s.T(), rr)

		gone := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, base+"/artifacts/"+v.Capture.PreviewHandle))
		testutil.AssertStatusAndError(s.T(), gone, http.StatusNotFound, CodeNotFound)

		rr = s.post(base+"/retry", nil)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, CodeConflict)
	})

	s.Run("an accepted capture completes the flow", func() {
		rr := s.post(base+"/capture?wait=true", nil)
		testutil.AssertStatusOK(s.T(), rr)
		v := *testutil.UnmarshalResponse[flow.View](s.T(), rr)
		s.True(v.Completed)

		rep := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, base+"/report"))
		testutil.AssertStatusOK(s.T(), rep)
		s.Equal(`attachment; filename="kyc-verification-`+v.VerificationID+`.json"`, rep.Header().Get("Content-Disposition"))
		testutil.AssertJSONContains(s.T(), rep, "status", "completed")

		pdf := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, base+"/report?format=pdf"))
		testutil.AssertStatusOK(s.T(), pdf)
		s.Equal("application/pdf", pdf.Header().Get("Content-Type"))
		s.Contains(pdf.Header().Get("Content-Disposition"), ".pdf")
		s.True(strings.HasPrefix(pdf.Body.String(), "%PDF-"))
	})
}

func (s *FlowHandlerSuite) TestRestartAndClose() {
	v := s.start()

	rr := s.post("/v1/flows/"+v.VerificationID+"/restart", nil)
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	next := *testutil.UnmarshalResponse[flow.View](s.T(), rr)
	s.NotEqual(v.VerificationID, next.VerificationID)

	old := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/flows/"+v.VerificationID))
	testutil.AssertStatusAndError(s.T(), old, http.StatusNotFound, CodeNotFound)

	del := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodDelete, "/v1/flows/"+next.VerificationID))
	testutil.AssertStatus(s.T(), del, http.StatusNoContent)
	s.Zero(s.device.Running())
}

func (s *FlowHandlerSuite) TestCatalog() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/catalog/countries/gb/documents"))
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "country", "GB")

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/catalog/countries/XX/documents"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, CodeNotFound)
}

func (s *FlowHandlerSuite) TestHealth() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/healthz"))
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "status", "ok")
}

func (s *FlowHandlerSuite) TestRateLimit() {
	limited := NewRouter(RouterConfig{
		Logger:    logger.Discard(),
		Flows:     NewFlowHandler(s.registry, logger.Discard()),
		RateLimit: ratelimit.Middleware(ratelimit.New(ratelimit.NewMemoryStore(), 1, time.Minute), logger.Discard(), nil),
	})

	first := testutil.DoRequest(limited, testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/flows", map[string]string{"user_id": "user-1"}))
	testutil.AssertStatus(s.T(), first, http.StatusCreated)

	second := testutil.DoRequest(limited, testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/flows", map[string]string{"user_id": "user-1"}))
	testutil.AssertStatus(s.T(), second, http.StatusTooManyRequests)
	s.Contains(second.Body.String(), "rate_limit_exceeded")

	health := testutil.DoRequest(limited, testutil.NewRequest(s.T(), http.MethodGet, "/healthz"))
	testutil.AssertStatusOK(s.T(), health)
}

func (s *FlowHandlerSuite) TestServiceTokenRequired() {
	issuer := svctoken.NewIssuer("api-key", "kycflow", "kycflow-api", time.Minute)
	protected := NewRouter(RouterConfig{
		Logger:         logger.Discard(),
		Flows:          NewFlowHandler(s.registry, logger.Discard()),
		TokenValidator: issuer,
	})

	rr := testutil.DoRequest(protected, testutil.NewRequest(s.T(), http.MethodGet, "/v1/flows/unknown"))
	testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)

	token, err := issuer.Token("")
	s.Require().NoError(err)
	req := testutil.NewRequest(s.T(), http.MethodGet, "/v1/flows/unknown")
	req.Header.Set("Authorization", "Bearer "+token)
	rr = testutil.DoRequest(protected, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, CodeNotFound)
}
