package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/genai"
)

func newTestGeminiClient(apiKey, baseURL string, meter metric.Meter) *GeminiClient {
	if meter == nil {
		meter = metricnoop.NewMeterProvider().Meter("test")
	}
	return NewGeminiClient(
		GeminiConfig{APIKey: apiKey, Model: "gemini-2.5-flash", BaseURL: baseURL},
		tracenoop.NewTracerProvider().Tracer("test"),
		meter,
		nil,
	)
}

func TestGeminiClient_MissingAPIKey(t *testing.T) {
	c := newTestGeminiClient("", "", nil)

	_, err := c.Complete(context.Background(), testRequest)
	assert.True(t, errors.Is(err, ErrMissingAPIKey))

	// reported again on the next call
	_, err = c.Complete(context.Background(), testRequest)
	assert.True(t, errors.Is(err, ErrMissingAPIKey))
}

func TestGeminiClient_Complete(t *testing.T) {
	text := func(s string) *string { return &s }

	tests := []struct {
		name     string
		response string
		want     *string
	}{
		{
			name:     "single part",
			response: `{"candidates":[{"content":{"role":"model","parts":[{"text":"Report text"}]}}]}`,
			want:     text("Report text"),
		},
		{
			name:     "parts are joined",
			response: `{"candidates":[{"content":{"role":"model","parts":[{"text":"Part one, "},{"text":"part two"}]}}]}`,
			want:     text("Part one, part two"),
		},
		{
			name:     "thought parts skipped",
			response: `{"candidates":[{"content":{"role":"model","parts":[{"text":"thinking","thought":true},{"text":"answer"}]}}]}`,
			want:     text("answer"),
		},
		{
			name:     "thought only",
			response: `{"candidates":[{"content":{"role":"model","parts":[{"text":"thinking","thought":true}]}}]}`,
			want:     nil,
		},
		{
			name:     "no content",
			response: `{"candidates":[{"finishReason":"SAFETY"}]}`,
			want:     nil,
		},
		{
			name:     "empty candidates",
			response: `{"candidates":[]}`,
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(tt.response))
			}))
			defer server.Close()

			completion, err := newTestGeminiClient("g-key", server.URL, nil).Complete(context.Background(), testRequest)
			require.NoError(t, err)
			assert.Equal(t, tt.want, completion.Content)
		})
	}
}

func TestGeminiClient_Request(t *testing.T) {
	var path, apiKey string
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		apiKey = r.Header.Get("x-goog-api-key")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`))
	}))
	defer server.Close()

	_, err := newTestGeminiClient("g-key", server.URL, nil).Complete(context.Background(), testRequest)
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(path, "/models/gemini-2.5-flash:generateContent"), path)
	assert.Equal(t, "g-key", apiKey)

	system, _ := json.Marshal(body["systemInstruction"])
	assert.Contains(t, string(system), `"text":"system"`)
	contents, _ := json.Marshal(body["contents"])
	assert.Contains(t, string(contents), `"text":"prompt"`)
	assert.NotContains(t, string(contents), `"text":"system"`)

	generationConfig, ok := body["generationConfig"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 0.7, generationConfig["temperature"], 1e-6)
}

func TestGeminiClient_Usage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"candidates":[{"content":{"parts":[{"text":"ok"}]}}],
			"usageMetadata":{"promptTokenCount":12,"candidatesTokenCount":4,"totalTokenCount":16}
		}`))
	}))
	defer server.Close()

	reader, provider := newTestMeter()
	completion, err := newTestGeminiClient("g-key", server.URL, provider.Meter("test")).Complete(context.Background(), testRequest)
	require.NoError(t, err)

	assert.Equal(t, float64(16), completion.Usage["total_tokens"])

	counters := collectCounters(t, reader)
	assert.Equal(t, int64(12), counters["llm.usage.prompt_tokens"])
	assert.Equal(t, int64(4), counters["llm.usage.completion_tokens"])
	assert.Equal(t, int64(16), counters["llm.usage.total_tokens"])
}

func TestGeminiClient_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`))
	}))
	defer server.Close()

	_, err := newTestGeminiClient("g-key", server.URL, nil).Complete(context.Background(), testRequest)
	assert.ErrorContains(t, err, "failed to generate content")
}

func TestToGeminiContents(t *testing.T) {
	system, contents := toGeminiContents([]Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "question"},
		{Role: RoleAssistant, Content: "answer"},
	})

	require.NotNil(t, system)
	require.Len(t, system.Parts, 1)
	assert.Equal(t, "be brief", system.Parts[0].Text)

	require.Len(t, contents, 2)
	assert.Equal(t, string(genai.RoleUser), contents[0].Role)
	assert.Equal(t, "question", contents[0].Parts[0].Text)
	assert.Equal(t, string(genai.RoleModel), contents[1].Role)
}
