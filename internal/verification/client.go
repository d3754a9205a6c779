// Package verification submits captured frames to the remote verification
// service and normalizes every answer into exactly one domain.StepOutcome.
package verification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"kycflow/internal/camera"
	"kycflow/internal/classify"
	"kycflow/internal/domain"
	"kycflow/internal/platform/metrics"
	"kycflow/pkg/platform/circuit"
)

var tracer = otel.Tracer("kycflow/verification")

const (
	pathDocumentQuality = "/document/quality"
	pathDocumentOCR     = "/document/ocr"
	pathMRZ             = "/mrz"
	pathLiveness        = "/liveness"

	clearImage      = "CLEAR IMAGE"
	verdictReal     = "REAL"
	verdictFake     = "FAKE"
	mrzSuccess      = "success"
	ocrIDPrefix     = "ML_"
	maxResponseBody = 1 << 20
)

// HTTPDoer is the subset of *http.Client the client needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// TokenSource issues bearer tokens for service calls.
type TokenSource interface {
	Token(verificationID string) (string, error)
}

// Client talks to the verification service.
type Client struct {
	baseURL   string
	http      HTTPDoer
	tokens    TokenSource
	breaker   *circuit.Breaker
	logger    *slog.Logger
	metrics   *metrics.Metrics
	enableOCR bool
	newID     func() string
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.http = doer
		}
	}
}

func WithTokenSource(tokens TokenSource) Option {
	return func(c *Client) {
		c.tokens = tokens
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) {
		if b != nil {
			c.breaker = b
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithDocumentOCR enables the OCR side call after a clear document front.
func WithDocumentOCR(enabled bool) Option {
	return func(c *Client) {
		c.enableOCR = enabled
	}
}

// WithIDGenerator overrides the OCR correlation id generator (tests).
func WithIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if gen != nil {
			c.newID = gen
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		breaker: circuit.New("verification"),
		logger:  slog.Default(),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Submit sends one capture for the given step and returns exactly one
// outcome. It never returns an error: transport problems become
// Failed(network) outcomes.
func (c *Client) Submit(ctx context.Context, step domain.StepKind, artifact domain.CapturedArtifact, verificationID string) domain.StepOutcome {
	ctx, span := tracer.Start(ctx, "verification.submit")
	defer span.End()
	span.SetAttributes(
		attribute.String("verification.step", step.String()),
		attribute.String("verification.id", verificationID),
	)

	start := time.Now()
	var outcome domain.StepOutcome
	switch {
	case artifact.Empty():
		outcome = domain.Failed(classify.Failure(fmt.Errorf("submit %s: %w", step, camera.ErrEncode)))
	case step.IsDocument():
		outcome = c.submitDocument(ctx, step, artifact, verificationID)
	case step == domain.StepSelfie:
		outcome = c.submitSelfie(ctx, artifact, verificationID)
	case step == domain.StepMRZ:
		outcome = c.submitMRZ(ctx, artifact, verificationID)
	default:
		outcome = domain.Failed(classify.Failure(fmt.Errorf("step %s does not submit captures", step)))
	}

	c.metrics.RecordSubmission(step.String(), string(outcome.Status), time.Since(start).Seconds())
	span.SetAttributes(attribute.String("verification.outcome", string(outcome.Status)))
	if !outcome.IsAccepted() {
		span.SetStatus(codes.Error, outcome.Error.Message)
	}
	c.logger.InfoContext(ctx, "verification submission finished",
		"verification_id", verificationID,
		"step", step.String(),
		"outcome", string(outcome.Status),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return outcome
}

type documentResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

type documentAccepted struct {
	Message string          `json:"message"`
	OCRID   string          `json:"ocr_id,omitempty"`
	OCR     json.RawMessage `json:"ocr,omitempty"`
}

type ocrResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) submitDocument(ctx context.Context, step domain.StepKind, artifact domain.CapturedArtifact, verificationID string) domain.StepOutcome {
	var resp documentResponse
	err := c.post(ctx, pathDocumentQuality, verificationID, artifact, []field{
		{"type", step.WireName()},
		{"verificationId", verificationID},
	}, &resp)
	if err != nil {
		return domain.Failed(classify.Network(err))
	}
	if !isClear(resp.Message) && !isClear(resp.Status) {
		return domain.Rejected(classify.Rejection(step, resp.Message))
	}

	accepted := documentAccepted{Message: clearImage}
	if step == domain.StepDocumentFront && c.enableOCR {
		accepted.OCRID, accepted.OCR = c.documentOCR(ctx, artifact, verificationID)
	}
	data, err := json.Marshal(accepted)
	if err != nil {
		return domain.Failed(classify.Failure(err))
	}
	return domain.Accepted(data)
}

// documentOCR runs the OCR side call. Its result is informational: failures
// are logged and never change the quality verdict.
func (c *Client) documentOCR(ctx context.Context, artifact domain.CapturedArtifact, verificationID string) (string, json.RawMessage) {
	id := ocrIDPrefix + c.newID()
	var resp ocrResponse
	if err := c.post(ctx, pathDocumentOCR, verificationID, artifact, []field{{"uuid", id}}, &resp); err != nil {
		c.logger.WarnContext(ctx, "document ocr failed",
			"verification_id", verificationID,
			"ocr_id", id,
			"error", err.Error(),
		)
		return id, nil
	}
	if !resp.Success || len(resp.Data) == 0 {
		return id, nil
	}
	return id, resp.Data
}

type livenessResponse struct {
	Live    string `json:"live"`
	Message string `json:"message"`
}

func (c *Client) submitSelfie(ctx context.Context, artifact domain.CapturedArtifact, verificationID string) domain.StepOutcome {
	var resp livenessResponse
	err := c.post(ctx, pathLiveness, verificationID, artifact, []field{
		{"type", domain.StepSelfie.WireName()},
		{"verificationId", verificationID},
	}, &resp)
	if err != nil {
		return domain.Failed(classify.Network(err))
	}

	switch strings.ToUpper(strings.TrimSpace(resp.Live)) {
	case verdictReal:
		data, err := json.Marshal(livenessResponse{Live: verdictReal, Message: resp.Message})
		if err != nil {
			return domain.Failed(classify.Failure(err))
		}
		return domain.Accepted(data)
	case verdictFake:
		return domain.Rejected(classify.FakeFace(resp.Message))
	case "":
		return domain.Failed(classify.NoFace())
	default:
		return domain.Rejected(classify.Rejection(domain.StepSelfie, resp.Message))
	}
}

type mrzResponse struct {
	Success bool `json:"success"`
	Data    *struct {
		Status     string          `json:"status"`
		ParsedData json.RawMessage `json:"parsed_data"`
	} `json:"data"`
}

func (c *Client) submitMRZ(ctx context.Context, artifact domain.CapturedArtifact, verificationID string) domain.StepOutcome {
	var resp mrzResponse
	err := c.post(ctx, pathMRZ, verificationID, artifact, []field{{"uuid", verificationID}}, &resp)
	if err != nil {
		return domain.Failed(classify.Network(err))
	}
	if !resp.Success || resp.Data == nil || resp.Data.Status != mrzSuccess {
		return domain.Rejected(classify.Rejection(domain.StepMRZ, ""))
	}

	parsed := resp.Data.ParsedData
	if len(parsed) == 0 {
		parsed = json.RawMessage("null")
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, parsed, "", "  "); err != nil {
		return domain.Rejected(classify.Rejection(domain.StepMRZ, ""))
	}
	return domain.Accepted(buf.Bytes())
}

type field struct {
	name  string
	value string
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// post sends a multipart form with the image and fields and decodes a 2xx
// JSON body into out. Every failure is a *ServiceError.
func (c *Client) post(ctx context.Context, path, verificationID string, artifact domain.CapturedArtifact, fields []field, out any) error {
	if !c.breaker.Allow() {
		return &ServiceError{Endpoint: path, Underlying: ErrCircuitOpen}
	}

	body, contentType, err := encodeForm(artifact, fields)
	if err != nil {
		return &ServiceError{Endpoint: path, Underlying: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return &ServiceError{Endpoint: path, Underlying: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.tokens != nil {
		token, err := c.tokens.Token(verificationID)
		if err != nil {
			return &ServiceError{Endpoint: path, Underlying: err}
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return c.fail(ctx, &ServiceError{Endpoint: path, Underlying: err})
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return c.fail(ctx, &ServiceError{Endpoint: path, StatusCode: resp.StatusCode, Underlying: err})
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb errorBody
		_ = json.Unmarshal(raw, &eb)
		msg := eb.Message
		if msg == "" {
			msg = eb.Error
		}
		return c.fail(ctx, &ServiceError{Endpoint: path, StatusCode: resp.StatusCode, Message: msg})
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return c.fail(ctx, &ServiceError{
			Endpoint:   path,
			StatusCode: resp.StatusCode,
			Underlying: fmt.Errorf("malformed response: %w", err),
		})
	}
	c.succeed(ctx)
	return nil
}

func (c *Client) fail(ctx context.Context, err *ServiceError) error {
	if !err.tripsBreaker() {
		c.succeed(ctx)
		return err
	}
	if _, change := c.breaker.RecordFailure(); change.Opened {
		c.logger.WarnContext(ctx, "verification circuit opened",
			"breaker", c.breaker.Name(),
			"error", err.Error(),
		)
	}
	return err
}

func (c *Client) succeed(ctx context.Context) {
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "verification circuit closed", "breaker", c.breaker.Name())
	}
}

func encodeForm(artifact domain.CapturedArtifact, fields []field) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	contentType := artifact.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="capture.jpg"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create image part: %w", err)
	}
	if _, err := part.Write(artifact.Payload); err != nil {
		return nil, "", fmt.Errorf("write image part: %w", err)
	}
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", f.name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

func isClear(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), clearImage)
}
