package llm

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/caliperhq/caliper-engine/pkg/models"
)

// ProviderConfig holds the connection settings for one provider.
type ProviderConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Configured reports whether credentials are present for this provider.
func (c ProviderConfig) Configured() bool {
	return c.APIKey != ""
}

// FactoryConfig aggregates provider settings plus the platform defaults for
// provider selection and parsing strategy.
type FactoryConfig struct {
	DefaultProvider string
	ParsingStrategy string
	OpenAI          ProviderConfig
	Anthropic       ProviderConfig
	OpenRouter      ProviderConfig
	LiteLLM         *LiteLLMConfig
}

// Factory resolves an agent configuration into a ready-to-use client.
type Factory interface {
	// CreateClient returns a client for the agent configuration, wrapped
	// with recording and the resolved parsing strategy.
	CreateClient(cfg models.AgentConfig) (Client, error)
	// Plan reports which provider and parser CreateClient would choose,
	// without constructing anything.
	Plan(cfg models.AgentConfig) (provider string, parser string, err error)
}

type clientKey struct {
	provider string
	parser   string
}

// ClientFactory builds and caches provider clients. Construction is cheap
// but clients hold HTTP connection pools, so identical configurations share
// one instance.
type ClientFactory struct {
	cfg      FactoryConfig
	recorder InteractionRecorder
	logger   *zap.Logger

	mu    sync.Mutex
	cache map[clientKey]Client
}

func NewClientFactory(cfg FactoryConfig, logger *zap.Logger) *ClientFactory {
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = ProviderOpenRouter
	}
	if cfg.ParsingStrategy == "" {
		cfg.ParsingStrategy = ParserAuto
	}
	return &ClientFactory{
		cfg:    cfg,
		logger: logger.Named("llm"),
		cache:  make(map[clientKey]Client),
	}
}

// SetRecorder attaches the interaction recorder. The factory is constructed
// before the database comes up, so the recorder arrives late. Call before
// the first CreateClient.
func (f *ClientFactory) SetRecorder(recorder InteractionRecorder) {
	f.recorder = recorder
}

func (f *ClientFactory) Plan(cfg models.AgentConfig) (string, string, error) {
	provider, err := f.resolveProvider(cfg)
	if err != nil {
		return "", "", err
	}
	parser, err := f.resolveParser(provider, cfg)
	if err != nil {
		return "", "", err
	}
	return provider, parser, nil
}

func (f *ClientFactory) CreateClient(cfg models.AgentConfig) (Client, error) {
	provider, parser, err := f.Plan(cfg)
	if err != nil {
		return nil, err
	}

	key := clientKey{provider: provider, parser: parser}
	f.mu.Lock()
	defer f.mu.Unlock()
	if client, ok := f.cache[key]; ok {
		return client, nil
	}

	base, err := f.newBaseClient(provider)
	if err != nil {
		return nil, err
	}
	var client Client = base
	if f.recorder != nil {
		client = NewRecordingClient(client, f.recorder)
	}
	client = newParser(parser, client, f.logger)

	f.cache[key] = client
	f.logger.Debug("created llm client",
		zap.String("provider", provider),
		zap.String("parser", parser),
		zap.String("model", cfg.ModelName))
	return client, nil
}

func (f *ClientFactory) resolveProvider(cfg models.AgentConfig) (string, error) {
	if cfg.Provider != "" {
		if !isKnownProvider(cfg.Provider) {
			return "", models.NewConfigurationFailure(
				fmt.Sprintf("unknown provider %q", cfg.Provider),
				fmt.Sprintf("known providers: %s", strings.Join(KnownProviders, ", ")),
			).AsError()
		}
		return cfg.Provider, nil
	}
	return DetectProvider(cfg.ModelName, f.cfg.DefaultProvider), nil
}

func (f *ClientFactory) resolveParser(provider string, cfg models.AgentConfig) (string, error) {
	requested := cfg.ParsingStrategy
	if requested == "" {
		requested = f.cfg.ParsingStrategy
	}
	if requested == ParserAuto {
		return SelectParser(provider, cfg.ModelName), nil
	}
	if !isKnownParser(requested) {
		return "", models.NewConfigurationFailure(
			fmt.Sprintf("unknown parsing strategy %q", requested),
			fmt.Sprintf("known strategies: %s, %s", ParserAuto, strings.Join(KnownParsers, ", ")),
		).AsError()
	}
	if !parserSupport[requested][provider] {
		return "", models.NewConfigurationFailure(
			fmt.Sprintf("parsing strategy %q is not supported by provider %q", requested, provider),
			fmt.Sprintf("provider %s supports: %s", provider, strings.Join(supportedParsers(provider), ", ")),
		).AsError()
	}
	return requested, nil
}

func (f *ClientFactory) newBaseClient(provider string) (Client, error) {
	switch provider {
	case ProviderOpenAI:
		return NewOpenAIClient(f.cfg.OpenAI, f.logger)
	case ProviderAnthropic:
		return NewAnthropicClient(f.cfg.Anthropic, f.logger)
	case ProviderOpenRouter:
		return NewOpenRouterClient(f.cfg.OpenRouter, f.logger)
	case ProviderLiteLLM:
		return NewLiteLLMClient(f.cfg.LiteLLM, f.logger)
	default:
		return nil, models.NewConfigurationFailure(
			fmt.Sprintf("unknown provider %q", provider),
			fmt.Sprintf("known providers: %s", strings.Join(KnownProviders, ", ")),
		).AsError()
	}
}

// DetectProvider infers a provider from the model name, falling back to the
// platform default for names with no recognizable prefix.
func DetectProvider(model, fallback string) string {
	switch {
	case strings.HasPrefix(model, "gpt-"), strings.HasPrefix(model, "o1-"):
		return ProviderOpenAI
	case strings.HasPrefix(model, "claude-"):
		return ProviderAnthropic
	}
	if fallback == "" {
		return ProviderOpenRouter
	}
	return fallback
}

// SelectParser picks the parsing strategy best suited to a provider and
// model pairing.
func SelectParser(provider, model string) string {
	switch provider {
	case ProviderOpenAI:
		if strings.HasPrefix(model, "gpt-") || strings.HasPrefix(model, "o1-") {
			return ParserNative
		}
	case ProviderOpenRouter:
		return ParserConstrained
	}
	return ParserPostProcess
}

// parserSupport records which providers can honor each parsing strategy.
// Native needs response_format support, constrained needs guided decoding,
// post-process works everywhere.
var parserSupport = map[string]map[string]bool{
	ParserNative: {
		ProviderOpenAI:     true,
		ProviderOpenRouter: true,
		ProviderLiteLLM:    true,
	},
	ParserConstrained: {
		ProviderOpenRouter: true,
		ProviderLiteLLM:    true,
	},
	ParserPostProcess: {
		ProviderOpenAI:     true,
		ProviderAnthropic:  true,
		ProviderOpenRouter: true,
		ProviderLiteLLM:    true,
	},
}

func supportedParsers(provider string) []string {
	var parsers []string
	for parser, providers := range parserSupport {
		if providers[provider] {
			parsers = append(parsers, parser)
		}
	}
	sort.Strings(parsers)
	return parsers
}

var _ Factory = (*ClientFactory)(nil)
