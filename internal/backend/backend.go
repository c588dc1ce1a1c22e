package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// ErrMissingAPIKey is returned when a backend is called without credentials
	ErrMissingAPIKey = errors.New("completion API key not set")

	// ErrUpstreamStatus is returned when the completion service answers with a non-2xx status
	ErrUpstreamStatus = errors.New("completion service returned an error status")
)

// Message represents a single chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is a single synchronous chat completion call
type CompletionRequest struct {
	Temperature float64
	Messages    []Message
}

// Completion is the result of a successful completion call.
// Content is nil when the service returned no message content.
type Completion struct {
	Content *string
	Usage   map[string]interface{}
}

// Completer is the external completion service collaborator
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// callMetrics holds the instruments shared by every backend
type callMetrics struct {
	meter    metric.Meter
	duration metric.Float64Histogram
	logger   *slog.Logger
}

func newCallMetrics(meter metric.Meter, logger *slog.Logger) *callMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	m := &callMetrics{meter: meter, logger: logger}

	histogram, err := meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
	)
	if err != nil {
		logger.Warn("failed to create histogram", "error", err)
	} else {
		m.duration = histogram
	}
	return m
}

func (m *callMetrics) recordDuration(ctx context.Context, start time.Time) {
	if m.duration != nil {
		m.duration.Record(ctx, float64(time.Since(start).Milliseconds()))
	}
}

// recordUsage records OpenTelemetry counters from usage data
func (m *callMetrics) recordUsage(ctx context.Context, usage map[string]interface{}) {
	for key, value := range usage {
		intVal, ok := value.(float64)
		if !ok {
			continue
		}
		counter, err := m.meter.Int64Counter(
			fmt.Sprintf("llm.usage.%s", key),
			metric.WithDescription(fmt.Sprintf("LLM usage metric: %s", key)),
		)
		if err != nil {
			m.logger.Warn("failed to create counter", "key", key, "error", err)
			continue
		}
		counter.Add(ctx, int64(intVal))
	}
}

func failSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
