// Package config provides configuration loading and validation for the
// agent team orchestrator.
//
// Configuration comes from two places: an optional YAML file for
// orchestration settings (models, timeouts, workspace, pipeline shape) and
// environment variables for credentials. API keys never live in the YAML
// file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Known model name constants. Unknown models are routed by provider prefix
// via InferProvider.
const (
	ModelGeminiFlash  = "gemini-2.5-flash"
	ModelGeminiPro    = "gemini-2.5-pro"
	ModelClaudeSonnet = "claude-sonnet-4-20250514"
	ModelGPT5         = "gpt-5"
	ModelGPT4o        = "gpt-4o"
)

// Provider identifies which LLM backend serves a model.
type Provider string

const (
	ProviderGoogle    Provider = "google"
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderOllama    Provider = "ollama"
)

// InferProvider maps a model name to its provider by prefix.
func InferProvider(model string) (Provider, error) {
	switch {
	case strings.HasPrefix(model, "gemini"):
		return ProviderGoogle, nil
	case strings.HasPrefix(model, "claude"):
		return ProviderAnthropic, nil
	case strings.HasPrefix(model, "gpt"), strings.HasPrefix(model, "o3"), strings.HasPrefix(model, "o4"):
		return ProviderOpenAI, nil
	case strings.HasPrefix(model, "ollama:"):
		return ProviderOllama, nil
	default:
		return "", fmt.Errorf("cannot infer provider for model %q", model)
	}
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// AgentConfig holds per-run LLM settings shared by all roles.
type AgentConfig struct {
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`
}

// PipelineConfig controls the shape of the role pipeline.
type PipelineConfig struct {
	QAEnabled   bool `yaml:"qa_enabled"`
	MaxQARework int  `yaml:"max_qa_rework"`
	MaxTurns    int  `yaml:"max_turns"` // safety cap per advance cycle
	// FinishOnComplete makes a completed project terminal instead of
	// parking it for human review.
	FinishOnComplete bool `yaml:"finish_on_complete"`
	ContextLimit     int  `yaml:"context_limit_tokens"`
}

// TimeoutConfig carries per-call deadlines.
type TimeoutConfig struct {
	ModelCall time.Duration `yaml:"model_call"`
	ToolCall  time.Duration `yaml:"tool_call"`
}

// PersistenceConfig controls the write-behind SQLite event log.
type PersistenceConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path"`
}

// MetricsConfig controls Prometheus integration. PrometheusURL is optional
// and only needed for the aggregation query service.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	PrometheusURL string `yaml:"prometheus_url"`
}

// LimitsConfig caps local LLM usage ahead of provider-side limits. Zero
// disables a check.
type LimitsConfig struct {
	TokensPerMinute    int `yaml:"tokens_per_minute"`
	MaxConcurrentCalls int `yaml:"max_concurrent_calls"`
}

// SessionConfig controls session store housekeeping.
type SessionConfig struct {
	TTL time.Duration `yaml:"ttl"` // 0 disables eviction
}

// Config is the root configuration object.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Agent       AgentConfig       `yaml:"agent"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Timeouts    TimeoutConfig     `yaml:"timeouts"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Session     SessionConfig     `yaml:"session"`
	Limits      LimitsConfig      `yaml:"limits"`

	// WorkspaceDir is the root under which generated project files are
	// written. Relative paths resolve against the process working directory.
	WorkspaceDir string `yaml:"workspace_dir"`

	// Secrets, environment only.
	GeminiAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
	OpenAIAPIKey    string `yaml:"-"`
	GoogleAPIKey    string `yaml:"-"`
	GoogleCSEID     string `yaml:"-"`
	OllamaHost      string `yaml:"-"`
}

// Default returns the configuration used when no YAML file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 8000},
		Agent: AgentConfig{
			Model:       ModelGeminiFlash,
			MaxTokens:   8192,
			Temperature: 0.7,
		},
		Pipeline: PipelineConfig{
			QAEnabled:    true,
			MaxQARework:  3,
			MaxTurns:     40,
			ContextLimit: 200000,
		},
		Timeouts: TimeoutConfig{
			ModelCall: 120 * time.Second,
			ToolCall:  30 * time.Second,
		},
		Persistence: PersistenceConfig{
			Enabled: true,
			DBPath:  filepath.Join(".devteam", "devteam.db"),
		},
		Metrics: MetricsConfig{Enabled: true},
		Session: SessionConfig{TTL: 0},
		Limits: LimitsConfig{
			TokensPerMinute:    200000,
			MaxConcurrentCalls: 4,
		},
		WorkspaceDir: "generated",
	}
}

// Load reads the YAML file at path (if it exists), overlays it on the
// defaults, pulls secrets from the environment, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// No file is fine; defaults apply.
		case err != nil:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	cfg.loadSecrets()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadSecrets() {
	c.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	c.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	c.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	c.GoogleAPIKey = os.Getenv("GOOGLE_API_KEY")
	c.GoogleCSEID = os.Getenv("GOOGLE_CSE_ID")
	c.OllamaHost = os.Getenv("OLLAMA_HOST")
	if c.OllamaHost == "" {
		c.OllamaHost = "http://localhost:11434"
	}
}

// Validate checks internal consistency. Missing API keys are not an error
// here: only the configured model's provider key is required, and that is
// checked by APIKeyFor at client construction time.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Agent.Model == "" {
		return fmt.Errorf("agent model cannot be empty")
	}
	if _, err := InferProvider(c.Agent.Model); err != nil {
		return err
	}
	if c.Agent.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive")
	}
	if c.Agent.Temperature < 0.0 || c.Agent.Temperature > 2.0 {
		return fmt.Errorf("temperature must be between 0.0 and 2.0")
	}
	if c.Pipeline.MaxQARework < 0 {
		return fmt.Errorf("max_qa_rework cannot be negative")
	}
	if c.Pipeline.MaxTurns <= 0 {
		return fmt.Errorf("max_turns must be positive")
	}
	if c.Timeouts.ModelCall <= 0 || c.Timeouts.ToolCall <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.WorkspaceDir == "" {
		return fmt.Errorf("workspace_dir cannot be empty")
	}
	if c.Limits.TokensPerMinute < 0 || c.Limits.MaxConcurrentCalls < 0 {
		return fmt.Errorf("limits cannot be negative")
	}
	return nil
}

// APIKeyFor returns the credential for the given provider, or an error if
// it is not configured.
func (c *Config) APIKeyFor(provider Provider) (string, error) {
	var key, env string
	switch provider {
	case ProviderGoogle:
		key, env = c.GeminiAPIKey, "GEMINI_API_KEY"
	case ProviderAnthropic:
		key, env = c.AnthropicAPIKey, "ANTHROPIC_API_KEY"
	case ProviderOpenAI:
		key, env = c.OpenAIAPIKey, "OPENAI_API_KEY"
	case ProviderOllama:
		return "", nil // local runtime, no key
	default:
		return "", fmt.Errorf("unknown provider: %s", provider)
	}
	if key == "" {
		return "", fmt.Errorf("%s is not set", env)
	}
	return key, nil
}

// SearchConfigured reports whether Google Custom Search credentials are
// available for the web_search tool.
func (c *Config) SearchConfigured() bool {
	return c.GoogleAPIKey != "" && c.GoogleCSEID != ""
}
