// Package providers implements LLM provider adapters. Importing it for side
// effects registers every provider with the llm package.
package providers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/c360studio/evalinstruments/llm"
)

// chatRequest is the OpenAI-compatible request format.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []llm.Message `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

// chatResponse is the OpenAI-compatible response format.
type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *llm.TokenUsage `json:"usage"`
}

// chatCompletionsURL appends /chat/completions unless already present.
func chatCompletionsURL(baseURL, fallback string) string {
	if baseURL == "" {
		baseURL = fallback
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	if strings.HasSuffix(baseURL, "/chat/completions") {
		return baseURL
	}
	return baseURL + "/chat/completions"
}

func buildChatRequest(model string, messages []llm.Message, temperature *float64, maxTokens int) ([]byte, error) {
	req := chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature, // nil = use default, 0 = deterministic
	}
	if maxTokens > 0 {
		req.MaxTokens = &maxTokens
	}
	return json.Marshal(req)
}

func parseChatResponse(body []byte, model string) (*llm.Response, error) {
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	out := &llm.Response{
		Content:      resp.Choices[0].Message.Content,
		Model:        resp.Model,
		FinishReason: resp.Choices[0].FinishReason,
	}
	if out.Model == "" {
		out.Model = model
	}
	if resp.Usage != nil {
		out.Usage = *resp.Usage
		if out.Usage.TotalTokens == 0 {
			out.Usage.TotalTokens = out.Usage.PromptTokens + out.Usage.CompletionTokens
		}
	}
	return out, nil
}
