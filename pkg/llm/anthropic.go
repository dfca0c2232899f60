package llm

import (
	"context"
	"net/http"
	"strings"
	"time"

	anthropic "github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/caliperhq/caliper-engine/pkg/models"
)

// Anthropic requires an explicit completion cap on every request.
const anthropicDefaultMaxTokens = 1024

// AnthropicClient talks to the Anthropic messages API.
type AnthropicClient struct {
	client *anthropic.Client
	logger *zap.Logger
}

func NewAnthropicClient(cfg ProviderConfig, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, models.NewConfigurationFailure("ANTHROPIC_API_KEY is not set", "").AsError()
	}
	var clientOpts []anthropic.ClientOption
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, anthropic.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")))
	}
	if cfg.Timeout > 0 {
		clientOpts = append(clientOpts, anthropic.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}
	return &AnthropicClient{
		client: anthropic.NewClient(cfg.APIKey, clientOpts...),
		logger: logger.Named("llm.anthropic"),
	}, nil
}

func (c *AnthropicClient) Provider() string {
	return ProviderAnthropic
}

// ChatCompletion sends the messages to the Anthropic API. System messages
// become the request's system prompt; response_format and logprobs have no
// Anthropic equivalent and are ignored, which is why this provider pairs
// with the post-process parser.
func (c *AnthropicClient) ChatCompletion(ctx context.Context, model string, messages []models.Message, opts Options) (*models.ParsedResponse, error) {
	req := anthropic.MessagesRequest{
		Model:     anthropic.Model(model),
		MaxTokens: anthropicDefaultMaxTokens,
	}

	var system []string
	for _, m := range messages {
		if m.Role == models.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		content := m.Content
		req.Messages = append(req.Messages, anthropic.Message{
			Role: anthropic.RoleUser,
			Content: []anthropic.MessageContent{
				{Type: "text", Text: &content},
			},
		})
	}
	if len(system) > 0 {
		req.System = strings.Join(system, "\n\n")
	}

	if t, ok := opts.Temperature(); ok {
		temp := float32(t)
		req.Temperature = &temp
	}
	if maxTokens, ok := opts.MaxTokens(); ok {
		req.MaxTokens = maxTokens
	}
	if topP, ok := opts.TopP(); ok {
		tp := float32(topP)
		req.TopP = &tp
	}

	c.logger.Debug("sending chat completion",
		zap.String("model", model),
		zap.Int("message_count", len(messages)))

	start := time.Now()
	resp, err := c.client.CreateMessages(ctx, req)
	if err != nil {
		return nil, mapAnthropicError(model, err)
	}

	if err := finishFailure(ProviderAnthropic, model, string(resp.StopReason), ""); err != nil {
		return nil, err
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			content.WriteString(*block.Text)
		}
	}

	c.logger.Debug("chat completion succeeded",
		zap.String("model", model),
		zap.Int("total_tokens", resp.Usage.InputTokens+resp.Usage.OutputTokens),
		zap.Duration("duration", time.Since(start)))

	parsed := &models.ParsedResponse{Content: content.String()}
	parsed.SetMetadata("finish_reason", string(resp.StopReason))
	parsed.SetMetadata("prompt_tokens", resp.Usage.InputTokens)
	parsed.SetMetadata("completion_tokens", resp.Usage.OutputTokens)
	parsed.SetMetadata("total_tokens", resp.Usage.InputTokens+resp.Usage.OutputTokens)
	return parsed, nil
}
