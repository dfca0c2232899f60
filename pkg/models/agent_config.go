package models

import (
	"fmt"
	"sort"
	"strings"

	"github.com/caliperhq/caliper-engine/pkg/jsonutil"
)

// Recognized model parameter keys. Anything else in ModelParameters is
// rejected as a configuration error.
const (
	ParamTemperature = "temperature"
	ParamMaxTokens   = "max_tokens"
	ParamTopP        = "top_p"
	ParamLogprobs    = "logprobs"
)

var recognizedModelParameters = map[string]struct{}{
	ParamTemperature: {},
	ParamMaxTokens:   {},
	ParamTopP:        {},
	ParamLogprobs:    {},
}

// AgentConfig is the value describing how one evaluation talks to a model:
// which reasoning strategy, which model, optionally which provider and
// parsing strategy, plus bounded parameter maps. Equality is by fields.
type AgentConfig struct {
	StrategyID string `json:"strategy_id"`
	ModelName  string `json:"model_name"`
	// Provider is optional; when empty the factory auto-detects it from the
	// model name prefix.
	Provider string `json:"provider,omitempty"`
	// ParsingStrategy is optional; empty and "auto" both mean auto-select.
	ParsingStrategy    string         `json:"parsing_strategy,omitempty"`
	ModelParameters    map[string]any `json:"model_parameters,omitempty"`
	StrategyParameters map[string]any `json:"strategy_parameters,omitempty"`
}

// Validate checks the structural rules every configuration must satisfy
// regardless of strategy or provider. Provider and parsing-strategy
// membership is validated by the client factory, which owns those tables.
func (c *AgentConfig) Validate() error {
	if strings.TrimSpace(c.StrategyID) == "" {
		return configError("strategy id is required", "")
	}
	if strings.TrimSpace(c.ModelName) == "" {
		return configError("model name is required", "")
	}

	for _, key := range sortedKeys(c.ModelParameters) {
		value := c.ModelParameters[key]
		if _, ok := recognizedModelParameters[key]; !ok {
			return configError(
				fmt.Sprintf("unrecognized model parameter %q", key),
				fmt.Sprintf("recognized parameters: %s", strings.Join(recognizedParameterNames(), ", ")),
			)
		}
		if err := validateModelParameter(key, value); err != nil {
			return err
		}
	}

	for _, key := range sortedKeys(c.StrategyParameters) {
		if !isScalar(c.StrategyParameters[key]) {
			return configError(
				fmt.Sprintf("strategy parameter %q must be a scalar value", key),
				fmt.Sprintf("got %T", c.StrategyParameters[key]),
			)
		}
	}

	return nil
}

// Temperature returns the configured temperature, if present and numeric.
func (c *AgentConfig) Temperature() (float64, bool) {
	v, ok := c.ModelParameters[ParamTemperature]
	if !ok {
		return 0, false
	}
	return jsonutil.FloatValue(v)
}

// MaxTokens returns the configured max_tokens, if present and integral.
func (c *AgentConfig) MaxTokens() (int, bool) {
	v, ok := c.ModelParameters[ParamMaxTokens]
	if !ok {
		return 0, false
	}
	return jsonutil.IntValue(v)
}

func validateModelParameter(key string, value any) error {
	switch key {
	case ParamTemperature:
		f, ok := jsonutil.FloatValue(value)
		if !ok {
			return configError("temperature must be a number", fmt.Sprintf("got %T", value))
		}
		if f < 0.0 || f > 2.0 {
			return configError(
				fmt.Sprintf("temperature %g is out of range", f),
				"temperature must be between 0.0 and 2.0",
			)
		}
	case ParamMaxTokens:
		n, ok := jsonutil.IntValue(value)
		if !ok {
			return configError("max_tokens must be an integer", fmt.Sprintf("got %v (%T)", value, value))
		}
		if n < 1 {
			return configError(
				fmt.Sprintf("max_tokens %d is out of range", n),
				"max_tokens must be at least 1",
			)
		}
	case ParamTopP:
		f, ok := jsonutil.FloatValue(value)
		if !ok {
			return configError("top_p must be a number", fmt.Sprintf("got %T", value))
		}
		if f <= 0.0 || f > 1.0 {
			return configError(
				fmt.Sprintf("top_p %g is out of range", f),
				"top_p must be in (0.0, 1.0]",
			)
		}
	case ParamLogprobs:
		if _, ok := jsonutil.BoolValue(value); !ok {
			return configError("logprobs must be a boolean", fmt.Sprintf("got %T", value))
		}
	}
	return nil
}

func configError(description, details string) error {
	return NewConfigurationFailure(description, details).AsError()
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, int, int32, int64, float32, float64:
		return true
	default:
		return false
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func recognizedParameterNames() []string {
	names := make([]string, 0, len(recognizedModelParameters))
	for name := range recognizedModelParameters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
