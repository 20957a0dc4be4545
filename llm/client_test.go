package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/c360studio/evalinstruments/llm"
	_ "github.com/c360studio/evalinstruments/llm/providers" // Register providers
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chatServer answers every request with an OpenAI-format completion and
// records the last request body.
func chatServer(t *testing.T, content string, lastBody *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		if lastBody != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(lastBody))
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-123",
			"object": "chat.completion",
			"model":  "grader-model",
			"choices": []map[string]any{
				{
					"index":         0,
					"message":       map[string]string{"role": "assistant", "content": content},
					"finish_reason": "stop",
				},
			},
			"usage": map[string]int{
				"prompt_tokens":     10,
				"completion_tokens": 5,
				"total_tokens":      15,
			},
		})
	}))
}

func TestClient_Chat_Success(t *testing.T) {
	server := chatServer(t, `{"score": 4}`, nil)
	defer server.Close()

	client := llm.NewClient(llm.Endpoint{Provider: "ollama", URL: server.URL + "/v1", Model: "grader-model"})

	resp, err := client.Chat(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: "user", Content: "Grade this"}},
	})
	require.NoError(t, err)

	assert.Equal(t, `{"score": 4}`, resp.Content)
	assert.Equal(t, "grader-model", resp.Model)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
	assert.NotEmpty(t, resp.RequestID)
}

func TestClient_Complete_MaterializesMapping(t *testing.T) {
	var body map[string]any
	server := chatServer(t, `{"score": 4}`, &body)
	defer server.Close()

	client := llm.NewClient(llm.Endpoint{Provider: "openai", URL: server.URL + "/v1", Model: "default-model"})

	raw, err := client.Complete(context.Background(), "Grade this", map[string]any{
		"model":       "override-model",
		"temperature": "0.2",
		"max_tokens":  256,
		"top_p":       0.9,
	})
	require.NoError(t, err)

	assert.Equal(t, "override-model", body["model"])
	assert.InDelta(t, 0.2, body["temperature"], 1e-9)
	assert.EqualValues(t, 256, body["max_tokens"])
	assert.NotContains(t, body, "top_p")

	mapper, ok := raw.(interface {
		AsMap() (map[string]any, error)
	})
	require.True(t, ok, "completion result should expose AsMap")

	m, err := mapper.AsMap()
	require.NoError(t, err)

	choices := m["choices"].([]any)
	require.Len(t, choices, 1)
	message := choices[0].(map[string]any)["message"].(map[string]any)
	assert.Equal(t, `{"score": 4}`, message["content"])

	usage := m["usage"].(map[string]any)
	assert.Equal(t, 10, usage["prompt_tokens"])
	assert.Equal(t, 5, usage["completion_tokens"])
	assert.Equal(t, 15, usage["total_tokens"])
}

func TestClient_Chat_TransientOnServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("overloaded"))
	}))
	defer server.Close()

	client := llm.NewClient(llm.Endpoint{Provider: "ollama", URL: server.URL, Model: "m"})

	_, err := client.Chat(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: "user", Content: "Hello"}},
	})
	require.Error(t, err)
	assert.True(t, llm.IsTransient(err))
	assert.Contains(t, err.Error(), "status 503")
	assert.Equal(t, int32(1), calls.Load(), "client must not retry")
}

func TestClient_Chat_RateLimitIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := llm.NewClient(llm.Endpoint{Provider: "ollama", URL: server.URL, Model: "m"})

	_, err := client.Chat(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: "user", Content: "Hello"}},
	})
	assert.True(t, llm.IsTransient(err))
}

func TestClient_Chat_FatalOnAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": "invalid api key"}`))
	}))
	defer server.Close()

	client := llm.NewClient(llm.Endpoint{Provider: "openai", URL: server.URL, Model: "m"})

	_, err := client.Chat(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: "user", Content: "Hello"}},
	})
	require.Error(t, err)
	assert.True(t, llm.IsFatal(err))
	assert.False(t, llm.IsTransient(err))
}

func TestClient_Chat_CompletionErrorDetails(t *testing.T) {
	var sentID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sentID = r.Header.Get("X-Request-ID")
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(strings.Repeat("x", 300)))
	}))
	defer server.Close()

	client := llm.NewClient(llm.Endpoint{Provider: "ollama", URL: server.URL, Model: "m"})
	_, err := client.Chat(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: "user", Content: "Hello"}},
	})

	var ce *llm.CompletionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, llm.ClassTransient, ce.Class)
	assert.Equal(t, http.StatusBadGateway, ce.StatusCode)
	assert.Equal(t, http.StatusBadGateway, llm.StatusCode(err))
	assert.NotEmpty(t, ce.RequestID)
	assert.Equal(t, sentID, ce.RequestID)
	assert.True(t, strings.HasPrefix(err.Error(), "transient completion error (status 502)"))
	assert.True(t, strings.HasSuffix(err.Error(), "..."), "long bodies are truncated")
}

func TestCompletionErrorClassification(t *testing.T) {
	base := errors.New("boom")

	transient := fmt.Errorf("sample 3: %w", llm.Transient(base))
	assert.True(t, llm.IsTransient(transient))
	assert.False(t, llm.IsFatal(transient))
	assert.ErrorIs(t, transient, base)
	assert.Equal(t, 0, llm.StatusCode(transient))

	fatal := llm.Fatal(base)
	assert.True(t, llm.IsFatal(fatal))
	assert.Equal(t, "fatal completion error: boom", fatal.Error())

	assert.False(t, llm.IsTransient(base))
	assert.False(t, llm.IsFatal(base))
}

func TestClient_Chat_FatalOnMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer server.Close()

	client := llm.NewClient(llm.Endpoint{Provider: "ollama", URL: server.URL, Model: "m"})

	_, err := client.Chat(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: "user", Content: "Hello"}},
	})
	assert.True(t, llm.IsFatal(err))
}

func TestClient_Chat_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := llm.NewClient(llm.Endpoint{Provider: "ollama", URL: server.URL, Model: "m"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Chat(ctx, llm.Request{
		Messages: []llm.Message{{Role: "user", Content: "Hello"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_Chat_ValidationErrors(t *testing.T) {
	tests := []struct {
		name     string
		endpoint llm.Endpoint
		req      llm.Request
		wantErr  string
	}{
		{
			name:     "no messages",
			endpoint: llm.Endpoint{Provider: "ollama"},
			req:      llm.Request{},
			wantErr:  "at least one message",
		},
		{
			name:     "unknown provider",
			endpoint: llm.Endpoint{Provider: "carrier-pigeon"},
			req:      llm.Request{Messages: []llm.Message{{Role: "user", Content: "hi"}}},
			wantErr:  "unknown provider",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := llm.NewClient(tt.endpoint).Chat(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, llm.IsFatal(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

type namedPrompt string

func (p namedPrompt) String() string { return "prompt: " + string(p) }

func TestMessagesFrom(t *testing.T) {
	system := llm.Message{Role: "system", Content: "rubric"}

	tests := []struct {
		name    string
		prompt  any
		want    []llm.Message
		wantErr bool
	}{
		{"message slice", []llm.Message{system}, []llm.Message{system}, false},
		{"single message", system, []llm.Message{system}, false},
		{"string", "hello", []llm.Message{{Role: "user", Content: "hello"}}, false},
		{"stringer", namedPrompt("x"), []llm.Message{{Role: "user", Content: "prompt: x"}}, false},
		{"unsupported", 42, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := llm.MessagesFrom(tt.prompt)
			if tt.wantErr {
				assert.True(t, llm.IsFatal(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
