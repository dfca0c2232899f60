package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	anthropic "github.com/liushuangls/go-anthropic/v2"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/caliperhq/caliper-engine/pkg/models"
)

const (
	connectionTestTimeout = 30 * time.Second

	// Cheapest model that accepts a one-token request; used only to verify
	// credentials, never for evaluation.
	anthropicHealthModel = "claude-3-5-haiku-latest"
)

// CheckResult is the outcome of probing one provider.
type CheckResult struct {
	Provider       string `json:"provider"`
	Configured     bool   `json:"configured"`
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	ResponseTimeMs int64  `json:"response_time_ms,omitempty"`
}

// ConnectionTester verifies provider credentials and reachability.
type ConnectionTester interface {
	TestProviders(ctx context.Context) []CheckResult
}

type connectionTester struct {
	cfg     FactoryConfig
	timeout time.Duration
	logger  *zap.Logger
}

func NewConnectionTester(cfg FactoryConfig, logger *zap.Logger) ConnectionTester {
	return &connectionTester{
		cfg:     cfg,
		timeout: connectionTestTimeout,
		logger:  logger.Named("health"),
	}
}

// TestProviders probes every configured provider. Unconfigured providers
// are reported as skipped, not failed.
func (t *connectionTester) TestProviders(ctx context.Context) []CheckResult {
	return []CheckResult{
		t.testOpenAI(ctx),
		t.testAnthropic(ctx),
		t.testOpenRouter(ctx),
		t.testLiteLLM(ctx),
	}
}

func (t *connectionTester) testOpenAI(ctx context.Context) CheckResult {
	if !t.cfg.OpenAI.Configured() {
		return notConfigured(ProviderOpenAI)
	}
	return t.listModels(ctx, ProviderOpenAI, t.cfg.OpenAI)
}

func (t *connectionTester) testOpenRouter(ctx context.Context) CheckResult {
	if !t.cfg.OpenRouter.Configured() {
		return notConfigured(ProviderOpenRouter)
	}
	cfg := t.cfg.OpenRouter
	if cfg.BaseURL == "" {
		cfg.BaseURL = openRouterDefaultBaseURL
	}
	return t.listModels(ctx, ProviderOpenRouter, cfg)
}

func (t *connectionTester) testLiteLLM(ctx context.Context) CheckResult {
	if t.cfg.LiteLLM == nil {
		return notConfigured(ProviderLiteLLM)
	}
	return t.listModels(ctx, ProviderLiteLLM, ProviderConfig{
		APIKey:  t.cfg.LiteLLM.APIKey,
		BaseURL: t.cfg.LiteLLM.BaseURL,
	})
}

// listModels is the cheapest authenticated call on the OpenAI wire
// protocol, which all three OpenAI-compatible providers serve.
func (t *connectionTester) listModels(ctx context.Context, provider string, cfg ProviderConfig) CheckResult {
	probeCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	client := openai.NewClientWithConfig(clientCfg)

	start := time.Now()
	_, err := client.ListModels(probeCtx)
	elapsed := time.Since(start)
	if err != nil {
		return t.failed(provider, elapsed, mapOpenAIError(provider, "", err))
	}
	return succeeded(provider, elapsed)
}

func (t *connectionTester) testAnthropic(ctx context.Context) CheckResult {
	if !t.cfg.Anthropic.Configured() {
		return notConfigured(ProviderAnthropic)
	}
	probeCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	var clientOpts []anthropic.ClientOption
	if t.cfg.Anthropic.BaseURL != "" {
		clientOpts = append(clientOpts, anthropic.WithBaseURL(strings.TrimSuffix(t.cfg.Anthropic.BaseURL, "/")))
	}
	client := anthropic.NewClient(t.cfg.Anthropic.APIKey, clientOpts...)

	ping := "ping"
	start := time.Now()
	_, err := client.CreateMessages(probeCtx, anthropic.MessagesRequest{
		Model:     anthropicHealthModel,
		MaxTokens: 1,
		Messages: []anthropic.Message{{
			Role:    anthropic.RoleUser,
			Content: []anthropic.MessageContent{{Type: "text", Text: &ping}},
		}},
	})
	elapsed := time.Since(start)
	if err != nil {
		return t.failed(ProviderAnthropic, elapsed, mapAnthropicError(anthropicHealthModel, err))
	}
	return succeeded(ProviderAnthropic, elapsed)
}

func (t *connectionTester) failed(provider string, elapsed time.Duration, err error) CheckResult {
	t.logger.Warn("provider check failed",
		zap.String("provider", provider),
		zap.Error(err))
	message := err.Error()
	if reason := models.FailureReasonFromError(err); reason != nil {
		message = fmt.Sprintf("%s: %s", reason.Category, reason.Description)
	}
	return CheckResult{
		Provider:       provider,
		Configured:     true,
		Message:        message,
		ResponseTimeMs: elapsed.Milliseconds(),
	}
}

func succeeded(provider string, elapsed time.Duration) CheckResult {
	return CheckResult{
		Provider:       provider,
		Configured:     true,
		Success:        true,
		Message:        fmt.Sprintf("credentials accepted (%dms)", elapsed.Milliseconds()),
		ResponseTimeMs: elapsed.Milliseconds(),
	}
}

func notConfigured(provider string) CheckResult {
	return CheckResult{Provider: provider, Message: "not configured"}
}

var _ ConnectionTester = (*connectionTester)(nil)
