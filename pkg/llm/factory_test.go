package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/caliperhq/caliper-engine/pkg/models"
)

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		model    string
		fallback string
		want     string
	}{
		{model: "gpt-4o", want: ProviderOpenAI},
		{model: "gpt-3.5-turbo", want: ProviderOpenAI},
		{model: "o1-mini", want: ProviderOpenAI},
		{model: "claude-3-opus-20240229", want: ProviderAnthropic},
		{model: "claude-sonnet-4", want: ProviderAnthropic},
		{model: "meta-llama/llama-3-70b", want: ProviderOpenRouter},
		{model: "mistral-large", fallback: ProviderLiteLLM, want: ProviderLiteLLM},
		{model: "", want: ProviderOpenRouter},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectProvider(tt.model, tt.fallback))
		})
	}
}

func TestSelectParser(t *testing.T) {
	tests := []struct {
		provider string
		model    string
		want     string
	}{
		{provider: ProviderOpenAI, model: "gpt-4o", want: ParserNative},
		{provider: ProviderOpenAI, model: "o1-mini", want: ParserNative},
		{provider: ProviderOpenAI, model: "mistral-large", want: ParserPostProcess},
		{provider: ProviderAnthropic, model: "claude-3-opus", want: ParserPostProcess},
		{provider: ProviderOpenRouter, model: "meta-llama/llama-3-70b", want: ParserConstrained},
		{provider: ProviderLiteLLM, model: "gpt-4o", want: ParserPostProcess},
	}
	for _, tt := range tests {
		t.Run(tt.provider+"/"+tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectParser(tt.provider, tt.model))
		})
	}
}

func TestClientFactory_Plan(t *testing.T) {
	factory := NewClientFactory(FactoryConfig{}, zap.NewNop())

	t.Run("auto everything", func(t *testing.T) {
		provider, parser, err := factory.Plan(models.AgentConfig{
			StrategyID: "none",
			ModelName:  "gpt-4o",
		})
		require.NoError(t, err)
		assert.Equal(t, ProviderOpenAI, provider)
		assert.Equal(t, ParserNative, parser)
	})

	t.Run("falls back to the default provider", func(t *testing.T) {
		provider, parser, err := factory.Plan(models.AgentConfig{
			StrategyID: "none",
			ModelName:  "meta-llama/llama-3-70b",
		})
		require.NoError(t, err)
		assert.Equal(t, ProviderOpenRouter, provider)
		assert.Equal(t, ParserConstrained, parser)
	})

	t.Run("explicit provider wins over detection", func(t *testing.T) {
		provider, parser, err := factory.Plan(models.AgentConfig{
			StrategyID: "none",
			ModelName:  "gpt-4o",
			Provider:   ProviderLiteLLM,
		})
		require.NoError(t, err)
		assert.Equal(t, ProviderLiteLLM, provider)
		assert.Equal(t, ParserPostProcess, parser)
	})

	t.Run("explicit parser honored when supported", func(t *testing.T) {
		_, parser, err := factory.Plan(models.AgentConfig{
			StrategyID:      "none",
			ModelName:       "gpt-4o",
			ParsingStrategy: ParserPostProcess,
		})
		require.NoError(t, err)
		assert.Equal(t, ParserPostProcess, parser)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, _, err := factory.Plan(models.AgentConfig{
			StrategyID: "none",
			ModelName:  "gpt-4o",
			Provider:   "bedrock",
		})
		require.Error(t, err)
		reason := models.FailureReasonFromError(err)
		require.NotNil(t, reason)
		assert.Equal(t, models.FailureConfigurationError, reason.Category)
		assert.Contains(t, reason.Description, `unknown provider "bedrock"`)
	})

	t.Run("unknown parsing strategy", func(t *testing.T) {
		_, _, err := factory.Plan(models.AgentConfig{
			StrategyID:      "none",
			ModelName:       "gpt-4o",
			ParsingStrategy: "regex",
		})
		require.Error(t, err)
		reason := models.FailureReasonFromError(err)
		require.NotNil(t, reason)
		assert.Contains(t, reason.Description, `unknown parsing strategy "regex"`)
	})

	t.Run("unsupported pairing", func(t *testing.T) {
		_, _, err := factory.Plan(models.AgentConfig{
			StrategyID:      "none",
			ModelName:       "claude-3-opus",
			ParsingStrategy: ParserNative,
		})
		require.Error(t, err)
		reason := models.FailureReasonFromError(err)
		require.NotNil(t, reason)
		assert.Equal(t, models.FailureConfigurationError, reason.Category)
		assert.Contains(t, reason.Description, "not supported by provider")
		assert.Contains(t, reason.TechnicalDetails, ParserPostProcess)
	})

	t.Run("constrained rejected for direct openai", func(t *testing.T) {
		_, _, err := factory.Plan(models.AgentConfig{
			StrategyID:      "none",
			ModelName:       "gpt-4o",
			ParsingStrategy: ParserConstrained,
		})
		require.Error(t, err)
	})
}

func TestClientFactory_CreateClient(t *testing.T) {
	cfg := FactoryConfig{
		OpenRouter: ProviderConfig{APIKey: "sk-or-test"},
		OpenAI:     ProviderConfig{APIKey: "sk-test"},
	}

	t.Run("caches per provider and parser", func(t *testing.T) {
		factory := NewClientFactory(cfg, zap.NewNop())

		first, err := factory.CreateClient(models.AgentConfig{
			StrategyID: "none",
			ModelName:  "meta-llama/llama-3-70b",
		})
		require.NoError(t, err)

		second, err := factory.CreateClient(models.AgentConfig{
			StrategyID: "none",
			ModelName:  "qwen/qwen-2.5-72b",
		})
		require.NoError(t, err)
		assert.Same(t, first, second, "same provider and parser share a client")

		other, err := factory.CreateClient(models.AgentConfig{
			StrategyID: "none",
			ModelName:  "gpt-4o",
		})
		require.NoError(t, err)
		assert.NotSame(t, first, other)
	})

	t.Run("missing credentials", func(t *testing.T) {
		factory := NewClientFactory(FactoryConfig{}, zap.NewNop())

		_, err := factory.CreateClient(models.AgentConfig{
			StrategyID: "none",
			ModelName:  "gpt-4o",
		})
		require.Error(t, err)
		reason := models.FailureReasonFromError(err)
		require.NotNil(t, reason)
		assert.Equal(t, models.FailureConfigurationError, reason.Category)
		assert.Contains(t, reason.Description, "OPENAI_API_KEY")
	})

	t.Run("litellm without config", func(t *testing.T) {
		factory := NewClientFactory(cfg, zap.NewNop())

		_, err := factory.CreateClient(models.AgentConfig{
			StrategyID: "none",
			ModelName:  "anything",
			Provider:   ProviderLiteLLM,
		})
		require.Error(t, err)
		reason := models.FailureReasonFromError(err)
		require.NotNil(t, reason)
		assert.Contains(t, reason.Description, "LITELLM_CONFIG")
	})

	t.Run("parser wraps the base client", func(t *testing.T) {
		factory := NewClientFactory(cfg, zap.NewNop())

		client, err := factory.CreateClient(models.AgentConfig{
			StrategyID: "none",
			ModelName:  "gpt-4o",
		})
		require.NoError(t, err)
		assert.IsType(t, &nativeParser{}, client)
		assert.Equal(t, ProviderOpenAI, client.Provider())
	})
}

func TestParseLiteLLMConfig(t *testing.T) {
	t.Run("empty is not configured", func(t *testing.T) {
		cfg, err := ParseLiteLLMConfig("")
		require.NoError(t, err)
		assert.Nil(t, cfg)
	})

	t.Run("full config", func(t *testing.T) {
		cfg, err := ParseLiteLLMConfig(`{
			"base_url": "http://litellm:4000",
			"api_key": "sk-internal",
			"timeout_seconds": 60,
			"model_map": {"gpt-4o": "azure/gpt-4o"}
		}`)
		require.NoError(t, err)
		assert.Equal(t, "http://litellm:4000", cfg.BaseURL)
		assert.Equal(t, "azure/gpt-4o", cfg.ModelMap["gpt-4o"])
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := ParseLiteLLMConfig(`{"base_url": `)
		require.Error(t, err)
		reason := models.FailureReasonFromError(err)
		require.NotNil(t, reason)
		assert.Contains(t, reason.Description, "not valid JSON")
	})

	t.Run("missing base url", func(t *testing.T) {
		_, err := ParseLiteLLMConfig(`{"api_key": "sk-internal"}`)
		require.Error(t, err)
		reason := models.FailureReasonFromError(err)
		require.NotNil(t, reason)
		assert.Contains(t, reason.Description, "missing base_url")
	})
}
