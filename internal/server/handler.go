package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"CareerReport/internal/audit"
	"CareerReport/internal/backend"
	"CareerReport/internal/report"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
)

const (
	SecretHeader    = "X-Webhook-Secret"
	RequestIDHeader = "X-Request-Id"

	msgMethodNotAllowed = "Only POST allowed"
	msgUnauthorized     = "Unauthorized"
	msgGenerationFailed = "Błąd generowania raportu"
)

// Generator produces a report from a raw request body
type Generator interface {
	Generate(ctx context.Context, body []byte) (string, error)
}

// Recorder stores request outcomes
type Recorder interface {
	Record(ctx context.Context, e audit.Entry) error
}

// Envelope is the body of every 200 and 500 response.
// Exactly one of Report and Error is set.
type Envelope struct {
	OK     bool    `json:"ok"`
	Report *string `json:"report,omitempty"`
	Error  *string `json:"error,omitempty"`
}

// ErrorResponse is the body of 405 and 401 responses
type ErrorResponse struct {
	Error string `json:"error"`
}

// Options configures a ReportHandler
type Options struct {
	// Secret enables the shared-secret gate when non-empty
	Secret       string
	MaxBodyBytes int64
	Logger       *slog.Logger
	Meter        metric.Meter
	Recorder     Recorder // Optional
}

// ReportHandler serves the report endpoint
type ReportHandler struct {
	generator Generator
	secret    string
	maxBody   int64
	logger    *slog.Logger
	recorder  Recorder
	requests  metric.Int64Counter
}

func NewReportHandler(generator Generator, opts Options) *ReportHandler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	meter := opts.Meter
	if meter == nil {
		meter = metricnoop.NewMeterProvider().Meter("careerreport")
	}

	h := &ReportHandler{
		generator: generator,
		secret:    opts.Secret,
		maxBody:   opts.MaxBodyBytes,
		logger:    logger,
		recorder:  opts.Recorder,
	}

	counter, err := meter.Int64Counter(
		"report.requests",
		metric.WithDescription("Report requests by outcome"),
	)
	if err != nil {
		logger.Warn("failed to create counter", "error", err)
	} else {
		h.requests = counter
	}
	return h
}

// result is the terminal state of one request
type result struct {
	status       int
	outcome      string
	detail       string
	payloadBytes int
}

func (h *ReportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := uuid.NewString()
	w.Header().Set(RequestIDHeader, requestID)

	logger := h.logger.With("request_id", requestID, "method", r.Method, "path", r.URL.Path)

	res := h.handle(w, r, logger)

	duration := time.Since(start)
	logger.Info("request handled",
		"status", res.status,
		"outcome", res.outcome,
		"duration_ms", duration.Milliseconds(),
	)

	if h.requests != nil {
		h.requests.Add(r.Context(), 1, metric.WithAttributes(attribute.String("outcome", res.outcome)))
	}

	if h.recorder != nil {
		err := h.recorder.Record(context.WithoutCancel(r.Context()), audit.Entry{
			ID:            requestID,
			ReceivedAt:    start,
			Method:        r.Method,
			Status:        res.status,
			Outcome:       res.outcome,
			OutcomeDetail: res.detail,
			Duration:      duration,
			PayloadBytes:  res.payloadBytes,
		})
		if err != nil {
			logger.Warn("failed to record audit entry", "error", err)
		}
	}
}

func (h *ReportHandler) handle(w http.ResponseWriter, r *http.Request, logger *slog.Logger) result {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: msgMethodNotAllowed})
		return result{status: http.StatusMethodNotAllowed, outcome: audit.OutcomeMethodRejected}
	}

	if !h.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: msgUnauthorized})
		return result{status: http.StatusUnauthorized, outcome: audit.OutcomeUnauthorized}
	}

	body, err := h.readBody(w, r)
	if err != nil {
		return h.fail(w, logger, err, len(body))
	}

	text, err := h.generator.Generate(r.Context(), body)
	if err != nil {
		return h.fail(w, logger, err, len(body))
	}

	writeJSON(w, http.StatusOK, Envelope{OK: true, Report: &text})
	return result{status: http.StatusOK, outcome: audit.OutcomeSuccess, payloadBytes: len(body)}
}

// authorized reports whether the shared-secret gate lets the request through.
// Without a configured secret access is open.
func (h *ReportHandler) authorized(r *http.Request) bool {
	if h.secret == "" {
		return true
	}
	provided := r.Header.Get(SecretHeader)
	if provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(h.secret)) == 1
}

func (h *ReportHandler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	var reader io.Reader = r.Body
	if h.maxBody > 0 {
		reader = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	return io.ReadAll(reader)
}

// fail logs the real cause and answers with the generic message only
func (h *ReportHandler) fail(w http.ResponseWriter, logger *slog.Logger, err error, payloadBytes int) result {
	reason := failureReason(err)
	logger.Error("API error", "error", err, "reason", reason)

	msg := msgGenerationFailed
	writeJSON(w, http.StatusInternalServerError, Envelope{OK: false, Error: &msg})
	return result{
		status:       http.StatusInternalServerError,
		outcome:      audit.OutcomeFailure,
		detail:       reason,
		payloadBytes: payloadBytes,
	}
}

func failureReason(err error) string {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		return "body_too_large"
	case errors.Is(err, report.ErrInvalidPayload):
		return "invalid_payload"
	case errors.Is(err, backend.ErrMissingAPIKey):
		return "missing_api_key"
	case errors.Is(err, backend.ErrUpstreamStatus):
		return "upstream_status"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "upstream_error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
