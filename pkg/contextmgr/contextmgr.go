// Package contextmgr provides token accounting for session transcripts so
// the orchestrator can warn before a conversation outgrows the model's
// context window.
package contextmgr

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"

	"devteam/pkg/agent/llm"
)

// TokenCounter provides token counting for transcript budgeting. All
// providers are approximated with the GPT-4 encoding; the numbers are used
// for budget warnings, not billing.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter creates a token counter.
func NewTokenCounter() (*TokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec: %w", err)
	}
	return &TokenCounter{codec: codec}, nil
}

// CountTokens returns the number of tokens in text. Falls back to a
// 4-chars-per-token estimate if the codec is unavailable.
func (tc *TokenCounter) CountTokens(text string) int {
	if tc == nil || tc.codec == nil {
		return len(text) / 4
	}
	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

// CountRequest estimates the token footprint of a full completion request.
func (tc *TokenCounter) CountRequest(req *llm.CompletionRequest) int {
	total := tc.CountTokens(req.SystemPrompt)
	for i := range req.Messages {
		msg := &req.Messages[i]
		total += tc.CountTokens(msg.Content)
		for j := range msg.ToolResults {
			total += tc.CountTokens(msg.ToolResults[j].Content)
		}
	}
	return total
}

// WithinLimit reports whether the request fits the configured context
// budget. A limit of 0 disables the check.
func (tc *TokenCounter) WithinLimit(req *llm.CompletionRequest, limit int) bool {
	if limit <= 0 {
		return true
	}
	return tc.CountRequest(req) <= limit
}
