package llm

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/caliperhq/caliper-engine/pkg/models"
)

// OpenAIClient talks to the OpenAI chat completions API. The same client
// backs any OpenAI-compatible endpoint; the LiteLLM client reuses it with a
// different base URL.
type OpenAIClient struct {
	client   *openai.Client
	provider string
	logger   *zap.Logger
}

// NewOpenAIClient builds a client against api.openai.com, or against
// cfg.BaseURL when one is set.
func NewOpenAIClient(cfg ProviderConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, models.NewConfigurationFailure("OPENAI_API_KEY is not set", "").AsError()
	}
	return newOpenAICompatible(ProviderOpenAI, cfg, logger), nil
}

func newOpenAICompatible(provider string, cfg ProviderConfig, logger *zap.Logger) *OpenAIClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &OpenAIClient{
		client:   openai.NewClientWithConfig(clientCfg),
		provider: provider,
		logger:   logger.Named("llm." + provider),
	}
}

func (c *OpenAIClient) Provider() string {
	return c.provider
}

func (c *OpenAIClient) ChatCompletion(ctx context.Context, model string, messages []models.Message, opts Options) (*models.ParsedResponse, error) {
	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: toOpenAIMessages(messages),
	}
	if t, ok := opts.Temperature(); ok {
		req.Temperature = effectiveTemperature(t)
	}
	if maxTokens, ok := opts.MaxTokens(); ok {
		// Reasoning models reject max_tokens in favor of the newer field.
		if strings.HasPrefix(model, "o1-") {
			req.MaxCompletionTokens = maxTokens
		} else {
			req.MaxTokens = maxTokens
		}
	}
	if topP, ok := opts.TopP(); ok {
		req.TopP = float32(topP)
	}
	if opts.Logprobs() {
		req.LogProbs = true
	}
	if rf, ok := responseContract(opts); ok {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   rf.Name,
				Schema: rf.Schema,
				Strict: rf.Strict,
			},
		}
	}

	c.logger.Debug("sending chat completion",
		zap.String("model", model),
		zap.Int("message_count", len(messages)))

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, mapOpenAIError(c.provider, model, err)
	}
	if len(resp.Choices) == 0 {
		return nil, providerFailure(c.provider, model, 0, models.FailureUnknown,
			"provider returned no choices", true, nil)
	}

	choice := resp.Choices[0]
	if err := finishFailure(c.provider, model, string(choice.FinishReason), choice.Message.Refusal); err != nil {
		return nil, err
	}

	c.logger.Debug("chat completion succeeded",
		zap.String("model", model),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("duration", time.Since(start)))

	parsed := &models.ParsedResponse{Content: choice.Message.Content}
	parsed.SetMetadata("finish_reason", string(choice.FinishReason))
	parsed.SetMetadata("prompt_tokens", resp.Usage.PromptTokens)
	parsed.SetMetadata("completion_tokens", resp.Usage.CompletionTokens)
	parsed.SetMetadata("total_tokens", resp.Usage.TotalTokens)
	if probs := tokenLogprobs(choice.LogProbs); len(probs) > 0 {
		parsed.SetMetadata("logprobs", probs)
	}
	return parsed, nil
}

func toOpenAIMessages(messages []models.Message) []openai.ChatCompletionMessage {
	converted := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		converted[i] = openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
	}
	return converted
}

// effectiveTemperature works around the SDK dropping an explicit zero:
// the field is omitempty, so 0 is sent as the smallest nonzero float.
func effectiveTemperature(t float64) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

// responseContract merges the two ways a parser can hand a schema to an
// OpenAI-compatible endpoint. Both the native response_format and the
// constrained-generation hint land on response_format here.
func responseContract(opts Options) (ResponseFormat, bool) {
	if rf, ok := opts.ResponseFormat(); ok {
		return rf, true
	}
	return opts.guidedSchema()
}

func tokenLogprobs(lp *openai.LogProbs) []float64 {
	if lp == nil || len(lp.Content) == 0 {
		return nil
	}
	probs := make([]float64, len(lp.Content))
	for i, token := range lp.Content {
		probs[i] = token.LogProb
	}
	return probs
}
