package providers

import (
	"net/http"
	"os"

	"github.com/c360studio/evalinstruments/llm"
)

// OllamaProvider implements the OpenAI-compatible API served by Ollama,
// vLLM and similar local runtimes.
type OllamaProvider struct{}

func init() {
	llm.RegisterProvider(&OllamaProvider{})
}

// Name returns the provider identifier.
func (o *OllamaProvider) Name() string {
	return "ollama"
}

// BuildURL constructs the chat completions endpoint.
func (o *OllamaProvider) BuildURL(baseURL string) string {
	return chatCompletionsURL(baseURL, "http://localhost:11434/v1")
}

// SetHeaders adds the bearer token when one is configured (vLLM, proxies).
func (o *OllamaProvider) SetHeaders(req *http.Request) {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}

// BuildRequestBody creates the OpenAI-compatible request body.
func (o *OllamaProvider) BuildRequestBody(model string, messages []llm.Message, temperature *float64, maxTokens int) ([]byte, error) {
	return buildChatRequest(model, messages, temperature, maxTokens)
}

// ParseResponse extracts content and usage from the response.
func (o *OllamaProvider) ParseResponse(body []byte, model string) (*llm.Response, error) {
	return parseChatResponse(body, model)
}
