package httptransport

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"kycflow/internal/flow"
	"kycflow/internal/report"
	"kycflow/pkg/requestcontext"
)

// FlowService is the flow registry as seen by the HTTP layer.
type FlowService interface {
	Start(ctx context.Context, userID string) (*flow.Sequencer, error)
	Get(ctx context.Context, verificationID string) (*flow.Sequencer, error)
	Restart(ctx context.Context, verificationID string) (*flow.Sequencer, error)
	Close(ctx context.Context, verificationID string) error
}

// FlowHandler serves the verification flow API.
type FlowHandler struct {
	flows       FlowService
	logger      *slog.Logger
	captureWait time.Duration
}

func NewFlowHandler(flows FlowService, logger *slog.Logger) *FlowHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FlowHandler{flows: flows, logger: logger, captureWait: 30 * time.Second}
}

// Register mounts the flow routes.
func (h *FlowHandler) Register(r chi.Router) {
	r.Post("/flows", h.handleStart)
	r.Route("/flows/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Delete("/", h.handleClose)
		r.Post("/country", h.handleCountry)
		r.Post("/document-type", h.handleDocumentType)
		r.Post("/capture", h.handleCapture)
		r.Post("/retry", h.handleRetry)
		r.Post("/restart", h.handleRestart)
		r.Get("/artifacts/{handle}", h.handleArtifact)
		r.Get("/report", h.handleReport)
	})
}

type startRequest struct {
	UserID string `json:"user_id"`
}

type countryRequest struct {
	CountryCode string `json:"country_code"`
}

type documentTypeRequest struct {
	DocumentType string `json:"document_type"`
}

func decode(r *http.Request, dst any) error {
	return json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(dst)
}

func (h *FlowHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req startRequest
	if err := decode(r, &req); err != nil {
		h.logger.WarnContext(ctx, "invalid start flow request",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		writeBadRequest(w, "invalid request body")
		return
	}
	seq, err := h.flows.Start(ctx, req.UserID)
	if err != nil {
		h.fail(ctx, w, "failed to start flow", err)
		return
	}
	writeJSON(w, http.StatusCreated, seq.View())
}

func (h *FlowHandler) lookup(w http.ResponseWriter, r *http.Request) (*flow.Sequencer, bool) {
	seq, err := h.flows.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(r.Context(), w, "flow lookup failed", err)
		return nil, false
	}
	return seq, true
}

func (h *FlowHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	seq, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, seq.View())
}

func (h *FlowHandler) handleCountry(w http.ResponseWriter, r *http.Request) {
	seq, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req countryRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if err := seq.SelectCountry(r.Context(), req.CountryCode); err != nil {
		h.fail(r.Context(), w, "country selection failed", err)
		return
	}
	writeJSON(w, http.StatusOK, seq.View())
}

func (h *FlowHandler) handleDocumentType(w http.ResponseWriter, r *http.Request) {
	seq, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req documentTypeRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if err := seq.SelectDocumentType(r.Context(), req.DocumentType); err != nil {
		h.fail(r.Context(), w, "document type selection failed", err)
		return
	}
	writeJSON(w, http.StatusOK, seq.View())
}

// handleCapture answers 202 while the submission runs. With ?wait=true it
// waits for the verdict and answers 200.
func (h *FlowHandler) handleCapture(w http.ResponseWriter, r *http.Request) {
	seq, ok := h.lookup(w, r)
	if !ok {
		return
	}
	attempt, err := seq.Capture(r.Context())
	if err != nil {
		h.fail(r.Context(), w, "capture refused", err)
		return
	}
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		ctx, cancel := context.WithTimeout(r.Context(), h.captureWait)
		defer cancel()
		if _, _, err := attempt.Wait(ctx); err == nil {
			writeJSON(w, http.StatusOK, seq.View())
			return
		}
	}
	writeJSON(w, http.StatusAccepted, seq.View())
}

func (h *FlowHandler) handleRetry(w http.ResponseWriter, r *http.Request) {
	seq, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := seq.Retry(r.Context()); err != nil {
		h.fail(r.Context(), w, "retry refused", err)
		return
	}
	writeJSON(w, http.StatusOK, seq.View())
}

func (h *FlowHandler) handleRestart(w http.ResponseWriter, r *http.Request) {
	seq, err := h.flows.Restart(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(r.Context(), w, "restart failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, seq.View())
}

func (h *FlowHandler) handleClose(w http.ResponseWriter, r *http.Request) {
	if err := h.flows.Close(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(r.Context(), w, "close failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *FlowHandler) handleArtifact(w http.ResponseWriter, r *http.Request) {
	seq, ok := h.lookup(w, r)
	if !ok {
		return
	}
	preview, found := seq.Preview(chi.URLParam(r, "handle"))
	if !found {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: CodeNotFound, Message: "artifact not found"})
		return
	}
	w.Header().Set("Content-Type", preview.ContentType)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(preview.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(preview.Data)
}

func (h *FlowHandler) handleReport(w http.ResponseWriter, r *http.Request) {
	seq, ok := h.lookup(w, r)
	if !ok {
		return
	}
	rep, err := seq.Report(r.Context())
	if err != nil {
		h.fail(r.Context(), w, "report unavailable", err)
		return
	}
	export, contentType, name := report.Export, report.ContentType, report.FileName(rep.VerificationID)
	if r.URL.Query().Get("format") == "pdf" {
		export, contentType, name = report.ExportPDF, report.ContentTypePDF, report.PDFFileName(rep.VerificationID)
	}
	body, err := export(rep)
	if err != nil {
		h.fail(r.Context(), w, "report export failed", err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *FlowHandler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	status, _ := statusFor(err)
	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"status", status,
		"error", err.Error(),
	}
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	writeError(w, err)
}
