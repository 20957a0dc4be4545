// Package llm provides a provider-agnostic chat completion client whose
// responses materialize into the OpenAI-shaped mapping consumed by the
// evaluation post-processors.
package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
)

// maxResponseSize limits the LLM response body to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// Endpoint describes where and how to reach a model.
type Endpoint struct {
	// Provider selects the wire format ("openai", "ollama", "anthropic").
	Provider string `yaml:"provider" json:"provider"`

	// URL is the API base URL. Empty uses the provider default.
	URL string `yaml:"url" json:"url"`

	// Model is the default model name, overridable per call.
	Model string `yaml:"model" json:"model"`
}

// Client sends one chat completion per call. It never retries; callers that
// want retry policy can classify failures with IsTransient and IsFatal.
type Client struct {
	endpoint   Endpoint
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithTimeout sets the HTTP timeout for each completion.
func WithTimeout(d time.Duration) ClientOption {
	return func(client *Client) {
		client.httpClient = &http.Client{Timeout: d}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = logger
	}
}

// NewClient creates a client for a single endpoint.
func NewClient(endpoint Endpoint, opts ...ClientOption) *Client {
	c := &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 180 * time.Second, // Allow time for LLM responses
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Request defines a chat completion request.
type Request struct {
	// Model overrides the endpoint model when set.
	Model string

	// Messages is the chat history to send.
	Messages []Message

	// Temperature controls randomness. nil uses endpoint default, 0 is deterministic.
	Temperature *float64

	// MaxTokens limits response length. 0 uses endpoint default.
	MaxTokens int
}

// callArgs is the subset of model arguments the client understands.
// Anything else in the argument map is ignored.
type callArgs struct {
	Model       string   `mapstructure:"model"`
	Temperature *float64 `mapstructure:"temperature"`
	MaxTokens   int      `mapstructure:"max_tokens"`
}

// Complete adapts the client to the evaluation pipeline: prompt is a
// []Message, a Message or a string (sent as a single user message) and args
// carries model, temperature and max_tokens. The result is a *Response.
func (c *Client) Complete(ctx context.Context, prompt any, args map[string]any) (any, error) {
	messages, err := MessagesFrom(prompt)
	if err != nil {
		return nil, err
	}

	var parsed callArgs
	if err := mapstructure.WeakDecode(args, &parsed); err != nil {
		return nil, Fatal(fmt.Errorf("decode model args: %w", err))
	}

	resp, err := c.Chat(ctx, Request{
		Model:       parsed.Model,
		Messages:    messages,
		Temperature: parsed.Temperature,
		MaxTokens:   parsed.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Chat sends a single completion request.
func (c *Client) Chat(ctx context.Context, req Request) (*Response, error) {
	if len(req.Messages) == 0 {
		return nil, Fatal(fmt.Errorf("at least one message is required"))
	}

	provider := GetProvider(c.endpoint.Provider)
	if provider == nil {
		return nil, Fatal(fmt.Errorf("unknown provider: %s", c.endpoint.Provider))
	}

	model := req.Model
	if model == "" {
		model = c.endpoint.Model
	}

	requestID := uuid.New().String()
	url := provider.BuildURL(c.endpoint.URL)
	fail := func(class Class, status int, err error) error {
		return &CompletionError{Class: class, StatusCode: status, RequestID: requestID, Err: err}
	}

	body, err := provider.BuildRequestBody(model, req.Messages, req.Temperature, req.MaxTokens)
	if err != nil {
		return nil, fail(ClassFatal, 0, fmt.Errorf("build request body: %w", err))
	}

	c.logger.Debug("Sending LLM request",
		"request_id", requestID,
		"provider", provider.Name(),
		"model", model,
		"url", url,
		"messages", len(req.Messages))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fail(ClassFatal, 0, fmt.Errorf("create HTTP request: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)
	provider.SetHeaders(httpReq)

	startedAt := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Network errors are transient
		return nil, fail(ClassTransient, 0, fmt.Errorf("HTTP request failed: %w", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, fail(ClassTransient, httpResp.StatusCode, fmt.Errorf("read response body: %w", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fail(classifyStatus(httpResp.StatusCode), httpResp.StatusCode,
			fmt.Errorf("LLM API error: %s", truncateBody(respBody)))
	}

	resp, err := provider.ParseResponse(respBody, model)
	if err != nil {
		return nil, fail(ClassFatal, httpResp.StatusCode, err)
	}
	resp.RequestID = requestID

	c.logger.Debug("LLM response received",
		"request_id", requestID,
		"model", resp.Model,
		"total_tokens", resp.Usage.TotalTokens,
		"duration_ms", time.Since(startedAt).Milliseconds())

	return resp, nil
}

// truncateBody keeps error messages from provider replies short.
func truncateBody(body []byte) string {
	s := string(body)
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
