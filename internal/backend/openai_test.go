package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

func newTestOpenAIClient(apiKey, baseURL string) *OpenAIClient {
	return NewOpenAIClient(
		OpenAIConfig{APIKey: apiKey, BaseURL: baseURL},
		tracenoop.NewTracerProvider().Tracer("test"),
		metricnoop.NewMeterProvider().Meter("test"),
		nil,
	)
}

var testRequest = CompletionRequest{
	Temperature: 0.7,
	Messages: []Message{
		{Role: RoleSystem, Content: "system"},
		{Role: RoleUser, Content: "prompt"},
	},
}

func TestOpenAIClient_Complete(t *testing.T) {
	var got OpenAIRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Report text"}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	}))
	defer server.Close()

	c := newTestOpenAIClient("sk-test", server.URL+"/v1/")
	completion, err := c.Complete(context.Background(), testRequest)
	require.NoError(t, err)

	require.NotNil(t, completion.Content)
	assert.Equal(t, "Report text", *completion.Content)
	assert.Equal(t, float64(15), completion.Usage["total_tokens"])

	assert.Equal(t, OpenAIModel, got.Model)
	assert.Equal(t, 0.7, got.Temperature)
	assert.Equal(t, testRequest.Messages, got.Messages)
}

func TestOpenAIClient_AbsentContent(t *testing.T) {
	bodies := map[string]string{
		"null content":  `{"choices": [{"message": {"role": "assistant", "content": null}}]}`,
		"no message":    `{"choices": [{"index": 0}]}`,
		"empty choices": `{"choices": []}`,
		"no choices":    `{}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			}))
			defer server.Close()

			completion, err := newTestOpenAIClient("sk-test", server.URL).Complete(context.Background(), testRequest)
			require.NoError(t, err)
			assert.Nil(t, completion.Content)
		})
	}
}

func TestOpenAIClient_EmptyStringIsContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": [{"message": {"content": ""}}]}`))
	}))
	defer server.Close()

	completion, err := newTestOpenAIClient("sk-test", server.URL).Complete(context.Background(), testRequest)
	require.NoError(t, err)
	require.NotNil(t, completion.Content)
	assert.Equal(t, "", *completion.Content)
}

func TestOpenAIClient_Errors(t *testing.T) {
	t.Run("missing api key", func(t *testing.T) {
		called := false
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))
		defer server.Close()

		_, err := newTestOpenAIClient("", server.URL).Complete(context.Background(), testRequest)
		assert.True(t, errors.Is(err, ErrMissingAPIKey))
		assert.False(t, called, "no request should be sent without a key")
	})

	t.Run("upstream status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":{"message":"invalid key"}}`, http.StatusUnauthorized)
		}))
		defer server.Close()

		_, err := newTestOpenAIClient("sk-bad", server.URL).Complete(context.Background(), testRequest)
		assert.True(t, errors.Is(err, ErrUpstreamStatus))
		assert.Contains(t, err.Error(), "invalid key")
	})

	t.Run("malformed body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`not json`))
		}))
		defer server.Close()

		_, err := newTestOpenAIClient("sk-test", server.URL).Complete(context.Background(), testRequest)
		assert.ErrorContains(t, err, "failed to unmarshal response")
	})

	t.Run("network failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		_, err := newTestOpenAIClient("sk-test", url).Complete(context.Background(), testRequest)
		assert.ErrorContains(t, err, "failed to send request")
	})
}

func TestOpenAIClient_UsageCounters(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"choices": [{"message": {"content": "ok"}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	}))
	defer server.Close()

	reader, provider := newTestMeter()
	c := NewOpenAIClient(
		OpenAIConfig{APIKey: "sk-test", BaseURL: server.URL},
		tracenoop.NewTracerProvider().Tracer("test"),
		provider.Meter("test"),
		nil,
	)

	_, err := c.Complete(context.Background(), testRequest)
	require.NoError(t, err)

	counters := collectCounters(t, reader)
	assert.Equal(t, int64(10), counters["llm.usage.prompt_tokens"])
	assert.Equal(t, int64(5), counters["llm.usage.completion_tokens"])
	assert.Equal(t, int64(15), counters["llm.usage.total_tokens"])
}
