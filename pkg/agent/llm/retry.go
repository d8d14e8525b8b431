package llm

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"devteam/pkg/agent/llmerrors"
	"devteam/pkg/config"
	"devteam/pkg/logx"
)

// RetryingClient wraps a Client with classified exponential backoff.
// Rate limits, transient failures, and empty responses are retried per
// llmerrors.DefaultRetryConfigs; auth and bad-prompt errors surface
// immediately.
type RetryingClient struct {
	inner  Client
	logger *logx.Logger
}

// NewRetryingClient wraps inner with retry behavior.
func NewRetryingClient(inner Client) *RetryingClient {
	return &RetryingClient{
		inner:  inner,
		logger: logx.NewLogger("llm-retry"),
	}
}

// Provider returns the wrapped client's provider.
func (c *RetryingClient) Provider() config.Provider {
	return c.inner.Provider()
}

// Complete calls the wrapped client, retrying retryable failures with
// exponential backoff. Context cancellation aborts the wait.
func (c *RetryingClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	var lastErr error

	for attempt := 0; ; attempt++ {
		resp, err := c.inner.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var classified *llmerrors.Error
		if !errors.As(err, &classified) || !classified.IsRetryable() {
			return nil, err
		}

		cfg := classified.GetRetryConfig()
		if attempt >= cfg.MaxRetries {
			return nil, lastErr
		}

		delay := backoffDelay(cfg, attempt)
		c.logger.Warn("completion failed (%s), retry %d/%d in %v: %v",
			classified.Type, attempt+1, cfg.MaxRetries, delay, err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

func backoffDelay(cfg llmerrors.RetryConfig, attempt int) time.Duration {
	delay := cfg.InitialDelay
	for i := 0; i < attempt; i++ {
		delay = time.Duration(float64(delay) * cfg.BackoffFactor)
		if delay >= cfg.MaxDelay {
			delay = cfg.MaxDelay
			break
		}
	}
	if cfg.Jitter && delay > 0 {
		// Up to 25% random jitter.
		delay += time.Duration(rand.Int63n(int64(delay) / 4)) //nolint:gosec // non-cryptographic jitter
	}
	return delay
}
