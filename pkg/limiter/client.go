package limiter

import (
	"context"
	"errors"
	"fmt"

	"devteam/pkg/agent/llm"
	"devteam/pkg/agent/llmerrors"
	"devteam/pkg/config"
)

// Client wraps an llm.Client with rate and concurrency limits. Limit
// violations surface as retryable rate_limit errors, so a retrying
// wrapper placed outside this one backs off instead of failing the run.
type Client struct {
	inner   llm.Client
	limiter *Limiter
}

// NewClient wraps inner with the given limiter.
func NewClient(inner llm.Client, limiter *Limiter) *Client {
	return &Client{inner: inner, limiter: limiter}
}

// Complete reserves capacity, then delegates to the wrapped client.
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if err := c.limiter.Reserve(estimateTokens(req)); err != nil {
		return nil, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeRateLimit, err,
			fmt.Sprintf("local rate limit for model %s", req.Model))
	}
	if err := c.limiter.Acquire(); err != nil {
		if errors.Is(err, ErrConcurrency) {
			return nil, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeRateLimit, err,
				fmt.Sprintf("too many concurrent calls for model %s", req.Model))
		}
		return nil, err
	}
	defer c.limiter.Release()

	return c.inner.Complete(ctx, req)
}

// Provider reports the wrapped client's provider.
func (c *Client) Provider() config.Provider {
	return c.inner.Provider()
}

// estimateTokens approximates the request cost: prompt text at four
// bytes per token plus the completion budget.
func estimateTokens(req llm.CompletionRequest) int {
	chars := len(req.SystemPrompt)
	for i := range req.Messages {
		chars += len(req.Messages[i].Content)
	}
	return chars/4 + req.MaxTokens
}
