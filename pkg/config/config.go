// Package config loads and validates the process configuration from
// environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/caliperhq/caliper-engine/pkg/llm"
)

// Config holds every runtime setting the engine reads from the environment.
// A `.env` file, when present, is loaded by the CLI before Load runs.
type Config struct {
	DatabaseURL        string `env:"DATABASE_URL"`
	DefaultLLMProvider string `env:"DEFAULT_LLM_PROVIDER" env-default:"openrouter"`
	ParsingStrategy    string `env:"PARSING_STRATEGY" env-default:"auto"`

	OpenRouter OpenRouterConfig
	OpenAI     OpenAIConfig
	Anthropic  AnthropicConfig

	// LiteLLMConfig is a JSON document (base_url, api_key, timeout_seconds,
	// model_map) rather than per-field variables, so a single proxy profile
	// can be swapped in one place.
	LiteLLMConfig string `env:"LITELLM_CONFIG"`

	LogLevel  string `env:"LOG_LEVEL" env-default:"info"`
	DebugMode bool   `env:"DEBUG_MODE" env-default:"false"`

	// MaxConcurrentEvaluations is reserved for future scheduling work.
	// Validate rejects anything other than 1.
	MaxConcurrentEvaluations int `env:"MAX_CONCURRENT_EVALUATIONS" env-default:"1"`
}

// OpenRouterConfig configures the OpenRouter provider client.
type OpenRouterConfig struct {
	APIKey         string `env:"OPENROUTER_API_KEY"`
	BaseURL        string `env:"OPENROUTER_BASE_URL"`
	TimeoutSeconds int    `env:"OPENROUTER_TIMEOUT" env-default:"120"`
}

// OpenAIConfig configures the OpenAI provider client.
type OpenAIConfig struct {
	APIKey         string `env:"OPENAI_API_KEY"`
	BaseURL        string `env:"OPENAI_BASE_URL"`
	TimeoutSeconds int    `env:"OPENAI_TIMEOUT" env-default:"120"`
}

// AnthropicConfig configures the Anthropic provider client.
type AnthropicConfig struct {
	APIKey         string `env:"ANTHROPIC_API_KEY"`
	TimeoutSeconds int    `env:"ANTHROPIC_TIMEOUT" env-default:"120"`
}

// Load reads the configuration from the process environment. It does not
// validate; callers run Validate once they are ready to report errors.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings every command depends on. Provider API keys
// are deliberately not required here: which providers must be configured
// depends on the evaluation being run, and the factory reports those errors
// with full context.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.MaxConcurrentEvaluations != 1 {
		return fmt.Errorf("MAX_CONCURRENT_EVALUATIONS must be 1, got %d", c.MaxConcurrentEvaluations)
	}
	if !slices.Contains(llm.KnownProviders, c.DefaultLLMProvider) {
		return fmt.Errorf("DEFAULT_LLM_PROVIDER %q is not a known provider (known: %s)",
			c.DefaultLLMProvider, strings.Join(llm.KnownProviders, ", "))
	}
	if c.ParsingStrategy != llm.ParserAuto && !slices.Contains(llm.KnownParsers, c.ParsingStrategy) {
		return fmt.Errorf("PARSING_STRATEGY %q is not a known strategy (known: %s, %s)",
			c.ParsingStrategy, llm.ParserAuto, strings.Join(llm.KnownParsers, ", "))
	}
	if c.LiteLLMConfig != "" && !json.Valid([]byte(c.LiteLLMConfig)) {
		return fmt.Errorf("LITELLM_CONFIG is not valid JSON")
	}
	return nil
}

// FactoryConfig converts the environment settings into the LLM factory
// configuration, parsing LITELLM_CONFIG along the way.
func (c *Config) FactoryConfig() (llm.FactoryConfig, error) {
	liteLLM, err := llm.ParseLiteLLMConfig(c.LiteLLMConfig)
	if err != nil {
		return llm.FactoryConfig{}, err
	}
	return llm.FactoryConfig{
		DefaultProvider: c.DefaultLLMProvider,
		ParsingStrategy: c.ParsingStrategy,
		OpenAI: llm.ProviderConfig{
			APIKey:  c.OpenAI.APIKey,
			BaseURL: c.OpenAI.BaseURL,
			Timeout: time.Duration(c.OpenAI.TimeoutSeconds) * time.Second,
		},
		Anthropic: llm.ProviderConfig{
			APIKey:  c.Anthropic.APIKey,
			Timeout: time.Duration(c.Anthropic.TimeoutSeconds) * time.Second,
		},
		OpenRouter: llm.ProviderConfig{
			APIKey:  c.OpenRouter.APIKey,
			BaseURL: c.OpenRouter.BaseURL,
			Timeout: time.Duration(c.OpenRouter.TimeoutSeconds) * time.Second,
		},
		LiteLLM: liteLLM,
	}, nil
}
