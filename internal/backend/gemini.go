package backend

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"
)

// GeminiConfig configures a GeminiClient
type GeminiConfig struct {
	APIKey     string
	Model      string
	BaseURL    string // Empty uses the SDK default endpoint
	HTTPClient *http.Client
}

// GeminiClient calls the Gemini API through the genai SDK
type GeminiClient struct {
	client  *genai.Client
	initErr error // Reported on every call when the SDK client could not be built
	model   string
	tracer  trace.Tracer
	metrics *callMetrics
}

// NewGeminiClient builds the SDK client once. A missing key or a construction
// failure does not stop startup; each Complete call returns it instead.
func NewGeminiClient(cfg GeminiConfig, tracer trace.Tracer, meter metric.Meter, logger *slog.Logger) *GeminiClient {
	c := &GeminiClient{
		model:   cfg.Model,
		tracer:  tracer,
		metrics: newCallMetrics(meter, logger),
	}

	if cfg.APIKey == "" {
		c.initErr = fmt.Errorf("GEMINI_API_KEY: %w", ErrMissingAPIKey)
		return c
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  cfg.HTTPClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		c.initErr = fmt.Errorf("failed to create client: %w", err)
		return c
	}
	c.client = client
	return c
}

// Complete maps system messages to the system instruction and the rest to contents
func (c *GeminiClient) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	ctx, span := c.tracer.Start(ctx, "gemini_api_call",
		trace.WithAttributes(attribute.String("llm.model", c.model)))
	defer span.End()

	start := time.Now()

	if c.initErr != nil {
		return nil, failSpan(span, c.initErr)
	}

	system, contents := toGeminiContents(req.Messages)

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: system,
		Temperature:       genai.Ptr(float32(req.Temperature)),
	})
	c.metrics.recordDuration(ctx, start)
	if err != nil {
		return nil, failSpan(span, fmt.Errorf("failed to generate content: %w", err))
	}

	completion := &Completion{}
	if resp.UsageMetadata != nil {
		completion.Usage = map[string]interface{}{
			"prompt_tokens":     float64(resp.UsageMetadata.PromptTokenCount),
			"completion_tokens": float64(resp.UsageMetadata.CandidatesTokenCount),
			"total_tokens":      float64(resp.UsageMetadata.TotalTokenCount),
		}
		c.metrics.recordUsage(ctx, completion.Usage)
	}

	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		var sb strings.Builder
		found := false
		for _, part := range resp.Candidates[0].Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			sb.WriteString(part.Text)
			found = true
		}
		if found {
			text := sb.String()
			completion.Content = &text
		}
	}
	return completion, nil
}

func toGeminiContents(messages []Message) (*genai.Content, []*genai.Content) {
	var system *genai.Content
	contents := make([]*genai.Content, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			system = genai.NewContentFromText(msg.Content, genai.RoleUser)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}
	return system, contents
}
