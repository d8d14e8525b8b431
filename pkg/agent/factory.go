// Package agent wraps a single team role around an LLM client: it owns
// the role's system prompt and tool allowlist, converts the session
// transcript into a completion request, and produces one Turn per
// invocation.
package agent

import (
	"fmt"

	"devteam/pkg/agent/llm"
	"devteam/pkg/agent/llmimpl/anthropic"
	"devteam/pkg/agent/llmimpl/google"
	"devteam/pkg/agent/llmimpl/ollama"
	"devteam/pkg/agent/llmimpl/openaiofficial"
	"devteam/pkg/config"
	"devteam/pkg/limiter"
)

// NewClient builds the LLM client for the configured model, wrapped with
// classified retry behavior. All roles share one client.
func NewClient(cfg *config.Config) (llm.Client, error) {
	provider, err := config.InferProvider(cfg.Agent.Model)
	if err != nil {
		return nil, err
	}

	var raw llm.Client
	switch provider {
	case config.ProviderGoogle:
		key, keyErr := cfg.APIKeyFor(provider)
		if keyErr != nil {
			return nil, keyErr
		}
		raw = google.NewClient(key)
	case config.ProviderAnthropic:
		key, keyErr := cfg.APIKeyFor(provider)
		if keyErr != nil {
			return nil, keyErr
		}
		raw = anthropic.NewClient(key)
	case config.ProviderOpenAI:
		key, keyErr := cfg.APIKeyFor(provider)
		if keyErr != nil {
			return nil, keyErr
		}
		raw = openaiofficial.NewClient(key)
	case config.ProviderOllama:
		raw = ollama.NewClient(cfg.OllamaHost)
	default:
		return nil, fmt.Errorf("no client implementation for provider %s", provider)
	}

	// Local limits sit inside the retry wrapper so a full bucket backs
	// off like a provider 429 instead of failing the run.
	limited := limiter.NewClient(raw,
		limiter.New(cfg.Limits.TokensPerMinute, cfg.Limits.MaxConcurrentCalls))
	return llm.NewRetryingClient(limited), nil
}
