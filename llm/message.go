package llm

import "fmt"

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`    // "system", "user", or "assistant"
	Content string `json:"content"` // Message content
}

// MessagesFrom converts a prepared prompt into chat messages.
func MessagesFrom(prompt any) ([]Message, error) {
	switch p := prompt.(type) {
	case []Message:
		return p, nil
	case Message:
		return []Message{p}, nil
	case string:
		return []Message{{Role: "user", Content: p}}, nil
	case fmt.Stringer:
		return []Message{{Role: "user", Content: p.String()}}, nil
	default:
		return nil, Fatal(fmt.Errorf("unsupported prompt type %T", prompt))
	}
}

// TokenUsage represents token consumption details for an LLM call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response contains the LLM completion result.
type Response struct {
	// RequestID uniquely identifies this LLM call.
	RequestID string

	// Content is the generated text.
	Content string

	// Model is the actual model that was used.
	Model string

	// Usage contains token consumption metrics.
	Usage TokenUsage

	// FinishReason indicates why generation stopped.
	FinishReason string
}

// AsMap materializes the response as an OpenAI chat completion object,
// whatever provider produced it.
func (r *Response) AsMap() (map[string]any, error) {
	return map[string]any{
		"id":     r.RequestID,
		"object": "chat.completion",
		"model":  r.Model,
		"choices": []any{
			map[string]any{
				"index": 0,
				"message": map[string]any{
					"role":    "assistant",
					"content": r.Content,
				},
				"finish_reason": r.FinishReason,
			},
		},
		"usage": map[string]any{
			"prompt_tokens":     r.Usage.PromptTokens,
			"completion_tokens": r.Usage.CompletionTokens,
			"total_tokens":      r.Usage.TotalTokens,
		},
	}, nil
}
