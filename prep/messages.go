// Package prep builds prompts for the evaluation pipeline: chat message
// wrapping, rubric template compilation and side-loaded JSON documents.
package prep

import (
	"context"

	"github.com/c360studio/evalinstruments/dataset"
	"github.com/c360studio/evalinstruments/evaluation"
	"github.com/c360studio/evalinstruments/llm"
)

// PromptFunc renders the user prompt text for a sample.
type PromptFunc func(ctx context.Context, sample dataset.Sample) (string, error)

// UserMessages wraps a user prompt as chat messages, preceded by a system
// message when system is not empty.
func UserMessages(system, user string) []llm.Message {
	messages := make([]llm.Message, 0, 2)
	if system != "" {
		messages = append(messages, llm.Message{Role: "system", Content: system})
	}
	return append(messages, llm.Message{Role: "user", Content: user})
}

// ToUserMessages adapts a text prompt builder into a PrepareFunc producing
// chat messages.
func ToUserMessages(system string, fn PromptFunc) evaluation.PrepareFunc {
	return func(ctx context.Context, sample dataset.Sample) (any, error) {
		user, err := fn(ctx, sample)
		if err != nil {
			return nil, err
		}
		return UserMessages(system, user), nil
	}
}
