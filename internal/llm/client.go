package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// Client represents a generic LLM API client speaking the OpenAI-compatible
// chat completions protocol. Thread-safe for concurrent use.
//
// config: Configuration for the LLM API
// httpClient: HTTP client for API requests
// baseURL: Base URL for the LLM API
type Client struct {
	config     *Config
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a new LLM client with the given configuration
//
// Example:
//
//	client, err := llm.NewClient(&llm.Config{APIKey: key, APIURL: url, Model: "o3-2025-04-16", MaxTokens: 16000, Temperature: 1, Timeout: 600})
//	if err != nil {
//		log.Fatal(err)
//	}
func NewClient(config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	client := &Client{
		config:  config,
		baseURL: strings.TrimRight(config.APIURL, "/"),
		httpClient: &http.Client{
			Timeout: config.requestTimeout(),
		},
	}

	return client, nil
}

// Complete submits one system + user prompt to the given model and returns
// the output text together with token usage. Failures are *APIError values
// carrying an ErrorKind.
//
// Example:
//
//	out, err := client.Complete(ctx, llm.CompletionRequest{
//		Model:  "o3-2025-04-16",
//		System: "You are a biography writer.",
//		Prompt: prompt,
//	})
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	model := req.Model
	if model == "" {
		model = c.config.Model
	}

	var messages []Message
	if req.System != "" {
		messages = append(messages, Message{Role: "system", Content: req.System})
	}
	messages = append(messages, Message{Role: "user", Content: req.Prompt})

	request := ChatRequest{
		Model:    model,
		Messages: messages,
	}
	if IsReasoningModel(model) {
		request.MaxCompletionTokens = c.config.MaxTokens
		request.ReasoningEffort = req.ReasoningEffort
	} else {
		request.MaxTokens = c.config.MaxTokens
		request.Temperature = c.config.Temperature
	}

	response, err := c.makeRequest(ctx, http.MethodPost, "/chat/completions", request)
	if err != nil {
		return nil, err
	}
	if len(response.Choices) == 0 {
		return nil, &APIError{Kind: KindOther, Message: "no choices in response"}
	}

	usedModel := response.Model
	if usedModel == "" {
		usedModel = model
	}
	completion := &Completion{
		Text:  response.Choices[0].Message.Content,
		Model: usedModel,
		Usage: TokenUsage{
			InputTokens:  response.Usage.PromptTokens,
			OutputTokens: response.Usage.CompletionTokens,
		},
	}
	if details := response.Usage.CompletionTokensDetails; details != nil {
		completion.Usage.ReasoningTokens = details.ReasoningTokens
	}
	return completion, nil
}

// ChatCompletion creates a chat completion request to the configured LLM API
//
// Example:
//
//	messages := []llm.Message{
//		{Role: "user", Content: "Hello, how are you?"},
//	}
//	response, err := client.ChatCompletion(ctx, messages, nil)
func (c *Client) ChatCompletion(ctx context.Context, messages []Message, opts *ChatCompletionOptions) (*ChatResponse, error) {
	if opts == nil {
		opts = NewChatCompletionOptions()
	}

	if opts.SystemPrompt != "" {
		systemMessage := Message{
			Role:    "system",
			Content: opts.SystemPrompt,
		}
		messages = append([]Message{systemMessage}, messages...)
	}

	request := ChatRequest{
		Model:       c.getModel(opts),
		Messages:    messages,
		MaxTokens:   c.getMaxTokens(opts),
		Temperature: c.getTemperature(opts),
	}

	response, err := c.makeRequest(ctx, http.MethodPost, "/chat/completions", request)
	if err != nil {
		return response, fmt.Errorf("chat completion failed: %w", err)
	}

	return response, nil
}

// SimpleChat provides a simple interface for chat completion
//
// Example:
//
//	response, err := client.SimpleChat(ctx, "What is Go?", "You are a helpful assistant.")
func (c *Client) SimpleChat(ctx context.Context, prompt string, systemPrompt string) (string, error) {
	messages := []Message{
		{Role: "user", Content: prompt},
	}

	opts := NewChatCompletionOptions()
	if systemPrompt != "" {
		opts = opts.WithSystemPrompt(systemPrompt)
	}

	response, err := c.ChatCompletion(ctx, messages, opts)
	if err != nil {
		return "", err
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return response.Choices[0].Message.Content, nil
}

// makeRequest makes a raw HTTP request to the configured LLM API and turns
// every failure into an *APIError.
func (c *Client) makeRequest(ctx context.Context, method, path string, payload interface{}) (*ChatResponse, error) {
	url := c.baseURL + path

	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, &APIError{Kind: KindOther, Message: "failed to marshal request", Cause: err}
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, &APIError{Kind: KindOther, Message: "failed to create request", Cause: err}
	}

	c.config.applyHeaders(req.Header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if os.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
			return nil, &APIError{Kind: KindTimeout, Message: "request timed out", Cause: err}
		}
		return nil, &APIError{Kind: KindOther, Message: "failed to make request", Cause: err}
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		kind := KindOther
		if os.IsTimeout(err) {
			kind = KindTimeout
		}
		return nil, &APIError{Kind: kind, StatusCode: resp.StatusCode, Message: "failed to read response body", Cause: err}
	}

	var chatResponse ChatResponse
	if err := json.Unmarshal(responseBody, &chatResponse); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &APIError{
				Kind:       classify(resp.StatusCode, "", ""),
				StatusCode: resp.StatusCode,
				Message:    strings.TrimSpace(string(responseBody)),
			}
		}
		return nil, &APIError{Kind: KindOther, StatusCode: resp.StatusCode, Message: "failed to parse response", Cause: err}
	}

	if apiErr := chatResponse.Error; apiErr != nil && apiErr.Message != "" {
		return &chatResponse, &APIError{
			Kind:       classify(resp.StatusCode, apiErr.Code, apiErr.Type),
			StatusCode: resp.StatusCode,
			Type:       apiErr.Type,
			Code:       apiErr.Code,
			Message:    apiErr.Message,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &chatResponse, &APIError{
			Kind:       classify(resp.StatusCode, "", ""),
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("API request failed: %s", string(responseBody)),
		}
	}

	return &chatResponse, nil
}

// getModel returns the model to use for the request
func (c *Client) getModel(opts *ChatCompletionOptions) string {
	if opts.Model != "" {
		return opts.Model
	}
	return c.config.Model
}

// getMaxTokens returns the max tokens to use for the request
func (c *Client) getMaxTokens(opts *ChatCompletionOptions) int {
	if opts.MaxTokens > 0 {
		return opts.MaxTokens
	}
	return c.config.MaxTokens
}

// getTemperature returns the temperature to use for the request
func (c *Client) getTemperature(opts *ChatCompletionOptions) float64 {
	if opts.Temperature >= 0 && opts.Temperature <= 2 {
		return opts.Temperature
	}
	return c.config.Temperature
}

// IsReasoningModel reports whether model belongs to the o-series, which
// takes max_completion_tokens and reasoning_effort instead of temperature.
func IsReasoningModel(model string) bool {
	m := strings.ToLower(model)
	if i := strings.LastIndex(m, "/"); i >= 0 {
		m = m[i+1:]
	}
	return len(m) > 1 && m[0] == 'o' && m[1] >= '1' && m[1] <= '9'
}
