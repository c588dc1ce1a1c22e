package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// OpenAIModel is the chat model used for every report
const OpenAIModel = "gpt-4o-mini"

// OpenAIRequest represents the request body for OpenAI-compatible APIs
type OpenAIRequest struct {
	Model       string    `json:"model"`
	Temperature float64   `json:"temperature"`
	Messages    []Message `json:"messages"`
}

// OpenAIResponse represents the response from OpenAI-compatible APIs.
// Message and Content are pointers so that absent and null values stay distinguishable.
type OpenAIResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message *struct {
			Role    string  `json:"role"`
			Content *string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage map[string]interface{} `json:"usage"`
}

// OpenAIConfig configures an OpenAIClient
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string // e.g. https://api.openai.com/v1
	Model      string
	HTTPClient *http.Client
}

// OpenAIClient calls the chat completions endpoint
type OpenAIClient struct {
	apiKey     string
	endpoint   string
	model      string
	httpClient *http.Client
	tracer     trace.Tracer
	metrics    *callMetrics
}

// NewOpenAIClient creates a client; an empty API key is accepted and reported on each call
func NewOpenAIClient(cfg OpenAIConfig, tracer trace.Tracer, meter metric.Meter, logger *slog.Logger) *OpenAIClient {
	model := cfg.Model
	if model == "" {
		model = OpenAIModel
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}

	return &OpenAIClient{
		apiKey:     cfg.APIKey,
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions",
		model:      model,
		httpClient: httpClient,
		tracer:     tracer,
		metrics:    newCallMetrics(meter, logger),
	}
}

// Complete calls the OpenAI API
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	ctx, span := c.tracer.Start(ctx, "openai_api_call",
		trace.WithAttributes(attribute.String("llm.model", c.model)))
	defer span.End()

	start := time.Now()

	if c.apiKey == "" {
		return nil, failSpan(span, fmt.Errorf("OPENAI_API_KEY: %w", ErrMissingAPIKey))
	}

	reqBody := OpenAIRequest{
		Model:       c.model,
		Temperature: req.Temperature,
		Messages:    req.Messages,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, failSpan(span, fmt.Errorf("failed to marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, failSpan(span, fmt.Errorf("failed to create request: %w", err))
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("content-type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, failSpan(span, fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, failSpan(span, fmt.Errorf("failed to read response: %w", err))
	}

	c.metrics.recordDuration(ctx, start)

	if resp.StatusCode != http.StatusOK {
		return nil, failSpan(span, fmt.Errorf("%w: %s - %s", ErrUpstreamStatus, resp.Status, string(body)))
	}

	var apiResp OpenAIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, failSpan(span, fmt.Errorf("failed to unmarshal response: %w", err))
	}

	c.metrics.recordUsage(ctx, apiResp.Usage)

	completion := &Completion{Usage: apiResp.Usage}
	if len(apiResp.Choices) > 0 && apiResp.Choices[0].Message != nil {
		completion.Content = apiResp.Choices[0].Message.Content
	}
	return completion, nil
}
