package llm

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/caliperhq/caliper-engine/pkg/logging"
	"github.com/caliperhq/caliper-engine/pkg/models"
)

// LiteLLMConfig describes a LiteLLM proxy deployment. It is parsed from the
// LITELLM_CONFIG environment variable.
type LiteLLMConfig struct {
	BaseURL        string            `json:"base_url"`
	APIKey         string            `json:"api_key,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
	ModelMap       map[string]string `json:"model_map,omitempty"`
}

func (c *LiteLLMConfig) timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ParseLiteLLMConfig decodes the LITELLM_CONFIG JSON document. An empty
// value means the proxy is not configured and is not an error.
func ParseLiteLLMConfig(raw string) (*LiteLLMConfig, error) {
	if raw == "" {
		return nil, nil
	}
	var cfg LiteLLMConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, models.NewConfigurationFailure(
			"LITELLM_CONFIG is not valid JSON",
			logging.SanitizeText(err.Error()),
		).AsError()
	}
	if cfg.BaseURL == "" {
		return nil, models.NewConfigurationFailure("LITELLM_CONFIG is missing base_url", "").AsError()
	}
	return &cfg, nil
}

// LiteLLMClient routes chat completions through a LiteLLM proxy. The proxy
// speaks the OpenAI wire protocol, so the client is a thin layer over the
// OpenAI-compatible client plus an optional model alias map.
type LiteLLMClient struct {
	inner    *OpenAIClient
	modelMap map[string]string
}

// NewLiteLLMClient builds a client for the proxy described by cfg. An empty
// API key is allowed; many proxy deployments do not authenticate.
func NewLiteLLMClient(cfg *LiteLLMConfig, logger *zap.Logger) (*LiteLLMClient, error) {
	if cfg == nil || cfg.BaseURL == "" {
		return nil, models.NewConfigurationFailure("LITELLM_CONFIG is not set", "").AsError()
	}
	inner := newOpenAICompatible(ProviderLiteLLM, ProviderConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Timeout: cfg.timeout(),
	}, logger)
	return &LiteLLMClient{inner: inner, modelMap: cfg.ModelMap}, nil
}

func (c *LiteLLMClient) Provider() string {
	return ProviderLiteLLM
}

func (c *LiteLLMClient) ChatCompletion(ctx context.Context, model string, messages []models.Message, opts Options) (*models.ParsedResponse, error) {
	if mapped, ok := c.modelMap[model]; ok {
		model = mapped
	}
	return c.inner.ChatCompletion(ctx, model, messages, opts)
}
