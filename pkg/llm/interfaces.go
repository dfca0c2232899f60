// Package llm provides provider clients, response parsing, and error
// classification for talking to language models.
package llm

import (
	"context"

	"github.com/caliperhq/caliper-engine/pkg/models"
)

// Provider identifiers. Callers refer to providers by these ids only; SDK
// types never cross the package boundary.
const (
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderOpenRouter = "openrouter"
	ProviderLiteLLM    = "litellm"
)

// KnownProviders lists every provider id the factory can build.
var KnownProviders = []string{ProviderOpenAI, ProviderAnthropic, ProviderOpenRouter, ProviderLiteLLM}

func isKnownProvider(provider string) bool {
	for _, known := range KnownProviders {
		if known == provider {
			return true
		}
	}
	return false
}

// Client is the single operation the evaluation engine needs from a language
// model. Implementations translate wire responses and errors at this
// boundary: success is always a ParsedResponse, failure is always an error
// carrying a models.FailureReason.
type Client interface {
	// ChatCompletion sends the messages to the named model and returns its
	// response. Blocking; honors ctx cancellation.
	ChatCompletion(ctx context.Context, model string, messages []models.Message, opts Options) (*models.ParsedResponse, error)

	// Provider returns the provider id this client talks to.
	Provider() string
}

// Compile-time interface checks for the provider clients.
var (
	_ Client = (*OpenAIClient)(nil)
	_ Client = (*AnthropicClient)(nil)
	_ Client = (*OpenRouterClient)(nil)
	_ Client = (*LiteLLMClient)(nil)
)
