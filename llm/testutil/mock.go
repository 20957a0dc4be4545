// Package testutil provides test doubles for completion callables.
package testutil

import (
	"context"
	"sync"

	"github.com/c360studio/evalinstruments/llm"
)

// MockCompleter is a thread-safe fake completion source. Its Complete method
// matches the evaluation CompleteFunc signature, so tests pass
// mock.Complete directly.
//
// Usage:
//
//	mock := &MockCompleter{
//	    Responses: []*llm.Response{
//	        {Content: `{"score": 4}`, Usage: llm.TokenUsage{TotalTokens: 15}},
//	    },
//	}
//	ev := evaluation.New(evaluation.WithComplete(mock.Complete))
type MockCompleter struct {
	mu            sync.Mutex
	Responses     []*llm.Response // Responses to return in sequence
	Err           error           // Error to return (takes precedence over Responses)
	prompts       []any
	args          []map[string]any
	responseIndex int
}

// Complete returns the next configured response, or Err if set. Once the
// sequence is exhausted the last response repeats.
func (m *MockCompleter) Complete(_ context.Context, prompt any, args map[string]any) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prompts = append(m.prompts, prompt)
	m.args = append(m.args, args)

	if m.Err != nil {
		return nil, m.Err
	}

	switch {
	case m.responseIndex < len(m.Responses):
		resp := m.Responses[m.responseIndex]
		m.responseIndex++
		return resp, nil
	case len(m.Responses) > 0:
		return m.Responses[len(m.Responses)-1], nil
	default:
		return &llm.Response{Content: "", Model: "test-model"}, nil
	}
}

// CallCount returns the number of times Complete was called.
func (m *MockCompleter) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// Prompts returns the prompts passed to Complete, in call order.
func (m *MockCompleter) Prompts() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]any(nil), m.prompts...)
}

// Args returns the model arguments passed to Complete, in call order.
func (m *MockCompleter) Args() []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]map[string]any(nil), m.args...)
}

// Reset clears recorded calls and rewinds the response sequence.
func (m *MockCompleter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = nil
	m.args = nil
	m.responseIndex = 0
}

// UsageResponse builds a response whose content is a fixed grading object
// and whose usage carries the given counters.
func UsageResponse(prompt, completion, total int) *llm.Response {
	return &llm.Response{
		Content: `{"score": 1}`,
		Model:   "test-model",
		Usage: llm.TokenUsage{
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      total,
		},
	}
}
