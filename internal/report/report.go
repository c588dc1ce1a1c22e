package report

import (
	"context"
	"fmt"

	"CareerReport/internal/backend"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Generator turns questionnaire answers into a report through a completion service
type Generator struct {
	completer backend.Completer
	tracer    trace.Tracer
}

func NewGenerator(completer backend.Completer, tracer trace.Tracer) *Generator {
	return &Generator{completer: completer, tracer: tracer}
}

// Generate parses the raw body, builds the prompt and makes exactly one completion call.
// Once the call succeeds a report is always returned, falling back to Placeholder.
func (g *Generator) Generate(ctx context.Context, body []byte) (string, error) {
	ctx, span := g.tracer.Start(ctx, "generate_report",
		trace.WithAttributes(attribute.Int("payload.bytes", len(body))))
	defer span.End()

	payload, err := ParsePayload(body)
	if err != nil {
		span.SetStatus(codes.Error, "invalid payload")
		return "", err
	}

	prompt := BuildPrompt(payload)

	completion, err := g.completer.Complete(ctx, backend.CompletionRequest{
		Temperature: Temperature,
		Messages:    Messages(prompt),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return "", fmt.Errorf("completion failed: %w", err)
	}

	if completion == nil || completion.Content == nil {
		span.AddEvent("placeholder_used")
		return Placeholder, nil
	}
	return *completion.Content, nil
}
