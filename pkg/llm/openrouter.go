package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/caliperhq/caliper-engine/pkg/jsonutil"
	"github.com/caliperhq/caliper-engine/pkg/models"
)

const (
	openRouterDefaultBaseURL = "https://openrouter.ai/api/v1"
	openRouterDefaultTimeout = 120 * time.Second
)

// OpenRouterClient talks to the OpenRouter chat completions API over plain
// HTTP. OpenRouter extends the OpenAI wire protocol with routing hints such
// as guided_json, which no SDK models, so the client owns its own wire
// types.
type OpenRouterClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewOpenRouterClient(cfg ProviderConfig, logger *zap.Logger) (*OpenRouterClient, error) {
	if cfg.APIKey == "" {
		return nil, models.NewConfigurationFailure("OPENROUTER_API_KEY is not set", "").AsError()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openRouterDefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = openRouterDefaultTimeout
	}
	return &OpenRouterClient{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("llm.openrouter"),
	}, nil
}

func (c *OpenRouterClient) Provider() string {
	return ProviderOpenRouter
}

type openRouterRequest struct {
	Model          string                    `json:"model"`
	Messages       []models.Message          `json:"messages"`
	Temperature    *float64                  `json:"temperature,omitempty"`
	MaxTokens      *int                      `json:"max_tokens,omitempty"`
	TopP           *float64                  `json:"top_p,omitempty"`
	Logprobs       bool                      `json:"logprobs,omitempty"`
	ResponseFormat *openRouterResponseFormat `json:"response_format,omitempty"`
	GuidedJSON     json.RawMessage           `json:"guided_json,omitempty"`
	Provider       *openRouterProvider       `json:"provider,omitempty"`
}

type openRouterResponseFormat struct {
	Type       string                `json:"type"`
	JSONSchema *openRouterJSONSchema `json:"json_schema,omitempty"`
}

type openRouterJSONSchema struct {
	Name   string          `json:"name"`
	Strict bool            `json:"strict"`
	Schema json.RawMessage `json:"schema"`
}

// openRouterProvider carries routing preferences. require_parameters keeps
// OpenRouter from silently routing to a backend that drops guided decoding.
type openRouterProvider struct {
	RequireParameters bool `json:"require_parameters"`
}

type openRouterResponse struct {
	Choices []openRouterChoice `json:"choices"`
	Usage   openRouterUsage    `json:"usage"`
	Error   *openRouterError   `json:"error,omitempty"`
}

type openRouterChoice struct {
	Message struct {
		Content string `json:"content"`
		Refusal string `json:"refusal,omitempty"`
	} `json:"message"`
	FinishReason string              `json:"finish_reason"`
	Logprobs     *openRouterLogprobs `json:"logprobs"`
}

type openRouterLogprobs struct {
	Content []struct {
		Logprob float64 `json:"logprob"`
	} `json:"content"`
}

type openRouterUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// openRouterError is the error object OpenRouter embeds both in non-200
// bodies and, for some upstream failures, inside a 200 response.
type openRouterError struct {
	Code     any            `json:"code"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// statusCode normalizes the code field, which OpenRouter serializes as
// either a number or a string.
func (e *openRouterError) statusCode() int {
	if e == nil || e.Code == nil {
		return 0
	}
	code, _ := jsonutil.IntValue(e.Code)
	return code
}

func (e *openRouterError) moderated() bool {
	if e == nil {
		return false
	}
	if _, ok := e.Metadata["reasons"]; ok {
		return true
	}
	lower := strings.ToLower(e.Message)
	return strings.Contains(lower, "moderation") || strings.Contains(lower, "flagged")
}

func (c *OpenRouterClient) ChatCompletion(ctx context.Context, model string, messages []models.Message, opts Options) (*models.ParsedResponse, error) {
	req := openRouterRequest{
		Model:    model,
		Messages: messages,
		Logprobs: opts.Logprobs(),
	}
	if t, ok := opts.Temperature(); ok {
		req.Temperature = &t
	}
	if maxTokens, ok := opts.MaxTokens(); ok {
		req.MaxTokens = &maxTokens
	}
	if topP, ok := opts.TopP(); ok {
		req.TopP = &topP
	}
	if rf, ok := opts.ResponseFormat(); ok {
		req.ResponseFormat = &openRouterResponseFormat{
			Type: "json_schema",
			JSONSchema: &openRouterJSONSchema{
				Name:   rf.Name,
				Strict: rf.Strict,
				Schema: rf.Schema,
			},
		}
	}
	if guided, ok := opts.guidedSchema(); ok {
		req.GuidedJSON = guided.Schema
		req.Provider = &openRouterProvider{RequireParameters: true}
	}

	c.logger.Debug("sending chat completion",
		zap.String("model", model),
		zap.Int("message_count", len(messages)))

	start := time.Now()
	resp, err := c.send(ctx, model, req)
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, providerFailure(ProviderOpenRouter, model, 0, models.FailureUnknown,
			"provider returned no choices", true, nil)
	}

	choice := resp.Choices[0]
	if err := finishFailure(ProviderOpenRouter, model, choice.FinishReason, choice.Message.Refusal); err != nil {
		return nil, err
	}

	c.logger.Debug("chat completion succeeded",
		zap.String("model", model),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("duration", time.Since(start)))

	parsed := &models.ParsedResponse{Content: choice.Message.Content}
	parsed.SetMetadata("finish_reason", choice.FinishReason)
	parsed.SetMetadata("prompt_tokens", resp.Usage.PromptTokens)
	parsed.SetMetadata("completion_tokens", resp.Usage.CompletionTokens)
	parsed.SetMetadata("total_tokens", resp.Usage.TotalTokens)
	if probs := openRouterTokenLogprobs(choice.Logprobs); len(probs) > 0 {
		parsed.SetMetadata("logprobs", probs)
	}
	return parsed, nil
}

func (c *OpenRouterClient) send(ctx context.Context, model string, payload openRouterRequest) (*openRouterResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, providerFailure(ProviderOpenRouter, model, 0, models.FailureUnknown,
			"failed to encode request", false, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, providerFailure(ProviderOpenRouter, model, 0, models.FailureUnknown,
			"failed to build request", false, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("X-Title", "caliper-engine")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, mapTransportError(ProviderOpenRouter, model, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, mapTransportError(ProviderOpenRouter, model, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, c.statusError(model, httpResp.StatusCode, respBody)
	}

	var resp openRouterResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, providerFailure(ProviderOpenRouter, model, httpResp.StatusCode, models.FailureUnknown,
			"failed to decode response", true, err)
	}

	// Upstream failures can surface as an error object inside a 200.
	if resp.Error != nil && len(resp.Choices) == 0 {
		return nil, c.errorPayload(model, resp.Error)
	}
	return &resp, nil
}

func (c *OpenRouterClient) statusError(model string, status int, body []byte) error {
	var envelope struct {
		Error openRouterError `json:"error"`
	}
	message := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		message = envelope.Error.Message
	}
	if status == http.StatusForbidden && envelope.Error.moderated() {
		return providerFailure(ProviderOpenRouter, model, status, models.FailureContentGuardrail,
			"request blocked by content moderation", false, errors.New(message))
	}
	category, description, recoverable := classifyStatus(status, message)
	return providerFailure(ProviderOpenRouter, model, status, category, description, recoverable, errors.New(message))
}

func (c *OpenRouterClient) errorPayload(model string, payload *openRouterError) error {
	status := payload.statusCode()
	if status == http.StatusForbidden && payload.moderated() {
		return providerFailure(ProviderOpenRouter, model, status, models.FailureContentGuardrail,
			"request blocked by content moderation", false, errors.New(payload.Message))
	}
	if status == 0 {
		return providerFailure(ProviderOpenRouter, model, 0, models.FailureUnknown,
			fmt.Sprintf("provider error: %s", payload.Message), true, errors.New(payload.Message))
	}
	category, description, recoverable := classifyStatus(status, payload.Message)
	return providerFailure(ProviderOpenRouter, model, status, category, description, recoverable, errors.New(payload.Message))
}

func openRouterTokenLogprobs(lp *openRouterLogprobs) []float64 {
	if lp == nil || len(lp.Content) == 0 {
		return nil
	}
	probs := make([]float64, len(lp.Content))
	for i, token := range lp.Content {
		probs[i] = token.Logprob
	}
	return probs
}
