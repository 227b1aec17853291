package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(url string) *Config {
	return &Config{
		APIKey:      "test-key",
		APIURL:      url,
		Model:       "test-model",
		MaxTokens:   1000,
		Temperature: 0.7,
		Timeout:     30,
	}
}

const okResponse = `{
	"id": "test-id",
	"object": "chat.completion",
	"created": 1234567890,
	"model": "o3-2025-04-16",
	"choices": [{
		"index": 0,
		"message": {"role": "assistant", "content": "**HOOK**\nShort."},
		"finish_reason": "stop"
	}],
	"usage": {
		"prompt_tokens": 285,
		"completion_tokens": 1400,
		"total_tokens": 1685,
		"completion_tokens_details": {"reasoning_tokens": 900}
	}
}`

func TestNewClient(t *testing.T) {
	config := testConfig("https://api.example.com/")

	client, err := NewClient(config)
	require.NoError(t, err)
	assert.Equal(t, config, client.config)
	assert.Equal(t, "https://api.example.com", client.baseURL)
	assert.NotNil(t, client.httpClient)

	_, err = NewClient(&Config{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestClient_Complete(t *testing.T) {
	var got ChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(okResponse))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	out, err := client.Complete(context.Background(), CompletionRequest{
		Model:           "o3-2025-04-16",
		System:          "You write biographies.",
		Prompt:          "Write about Tom Hanks",
		ReasoningEffort: "high",
	})
	require.NoError(t, err)

	assert.Equal(t, "**HOOK**\nShort.", out.Text)
	assert.Equal(t, "o3-2025-04-16", out.Model)
	assert.Equal(t, TokenUsage{InputTokens: 285, OutputTokens: 1400, ReasoningTokens: 900}, out.Usage)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "Write about Tom Hanks", got.Messages[1].Content)
	assert.Equal(t, "high", got.ReasoningEffort)
	assert.Equal(t, 1000, got.MaxCompletionTokens)
	assert.Zero(t, got.MaxTokens)
	assert.Zero(t, got.Temperature)
}

func TestClient_CompleteNonReasoningModel(t *testing.T) {
	var got ChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(okResponse))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), CompletionRequest{Model: "gpt-4o", Prompt: "hi", ReasoningEffort: "high"})
	require.NoError(t, err)
	assert.Equal(t, 1000, got.MaxTokens)
	assert.Equal(t, 0.7, got.Temperature)
	assert.Empty(t, got.ReasoningEffort)
}

func TestClient_ErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   ErrorKind
	}{
		{
			name:   "unauthenticated",
			status: http.StatusUnauthorized,
			body:   `{"error": {"message": "Invalid API key", "type": "invalid_request_error", "code": "invalid_api_key"}}`,
			want:   KindUnauthenticated,
		},
		{
			name:   "rate limited",
			status: http.StatusTooManyRequests,
			body:   `{"error": {"message": "Slow down", "type": "requests", "code": "rate_limit_exceeded"}}`,
			want:   KindRateLimited,
		},
		{
			name:   "model not found",
			status: http.StatusNotFound,
			body:   `{"error": {"message": "The model does not exist", "type": "invalid_request_error", "code": "model_not_found"}}`,
			want:   KindModelUnavailable,
		},
		{
			name:   "gateway timeout plain body",
			status: http.StatusGatewayTimeout,
			body:   `upstream timed out`,
			want:   KindTimeout,
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   `{"error": {"message": "boom", "type": "server_error"}}`,
			want:   KindOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client, err := NewClient(testConfig(server.URL))
			require.NoError(t, err)

			_, err = client.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
			require.Error(t, err)
			assert.Equal(t, tt.want, KindOf(err))

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
		})
	}
}

func TestClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = client.Complete(ctx, CompletionRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
}

func TestClientErrorHandling(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "Invalid API key", "type": "authentication_error", "code": "401"}}`))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	response, err := client.ChatCompletion(context.Background(), []Message{{Role: "user", Content: "Hello"}}, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, KindUnauthenticated, KindOf(err))
	if response != nil && response.Error != nil {
		assert.Equal(t, "Invalid API key", response.Error.Message)
	}
}

func TestSimpleChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "test-model", req.Model)

		_, _ = w.Write([]byte(`{"choices": [{"index": 0, "message": {"role": "assistant", "content": "Simple chat response"}}]}`))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	response, err := client.SimpleChat(context.Background(), "Hello", "You are a helpful assistant")
	require.NoError(t, err)
	assert.Equal(t, "Simple chat response", response)
}

func TestClientConcurrentRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(okResponse))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.Complete(context.Background(), CompletionRequest{Prompt: "Hello"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}

func TestInvalidJSONResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("invalid json"))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), CompletionRequest{Prompt: "Hello"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse response")
	assert.Equal(t, KindOther, KindOf(err))
}

func TestIsReasoningModel(t *testing.T) {
	assert.True(t, IsReasoningModel("o3-2025-04-16"))
	assert.True(t, IsReasoningModel("o4-mini"))
	assert.True(t, IsReasoningModel("openai/o3-mini-2025-01-31"))
	assert.False(t, IsReasoningModel("gpt-4o"))
	assert.False(t, IsReasoningModel("gpt-4-turbo"))
	assert.False(t, IsReasoningModel("omni"))
}

// TestProviderIntegration talks to the real provider. Skipped unless LLM_API_KEY is set.
func TestProviderIntegration(t *testing.T) {
	_ = godotenv.Load("./.env")
	apiKey := os.Getenv("LLM_API_KEY")
	if apiKey == "" {
		t.Skip("Set LLM_API_KEY environment variable to run this test")
	}
	apiURL := os.Getenv("LLM_API_URL")
	if apiURL == "" {
		apiURL = "https://api.openai.com/v1"
	}

	client, err := NewClient(&Config{
		APIKey:      apiKey,
		APIURL:      apiURL,
		Model:       "gpt-4o",
		MaxTokens:   100,
		Temperature: 0.7,
		Timeout:     60,
	})
	require.NoError(t, err)

	out, err := client.Complete(context.Background(), CompletionRequest{
		System: "Reply briefly.",
		Prompt: "Say hello.",
	})
	require.NoError(t, err)
	assert.Contains(t, strings.ToLower(out.Text), "hello")
	assert.Positive(t, out.Usage.InputTokens)
}
