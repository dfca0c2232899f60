package llm

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/caliperhq/caliper-engine/pkg/models"
)

// Parsing strategy identifiers.
const (
	ParserAuto        = "auto"
	ParserNative      = "native"
	ParserPostProcess = "post_process"
	ParserConstrained = "constrained"
)

// KnownParsers lists every concrete parsing strategy.
var KnownParsers = []string{ParserNative, ParserPostProcess, ParserConstrained}

func isKnownParser(parser string) bool {
	for _, known := range KnownParsers {
		if known == parser {
			return true
		}
	}
	return false
}

// newParser wraps a client with the named parsing strategy.
func newParser(parser string, client Client, logger *zap.Logger) Client {
	switch parser {
	case ParserNative:
		return newNativeParser(client, logger)
	case ParserConstrained:
		return newConstrainedParser(client, logger)
	default:
		return newPostProcessParser(client, logger)
	}
}

// takeSchema resolves the output schema named in the options and returns a
// copy of the options with the internal key removed. Parsers work on the
// copy; the caller's map is never modified.
func takeSchema(opts Options) (OutputSchema, Options, error) {
	id, ok := opts.SchemaID()
	if !ok {
		return OutputSchema{}, nil, models.NewConfigurationFailure("output schema id is missing from request options", "").AsError()
	}
	schema, err := SchemaByID(id)
	if err != nil {
		return OutputSchema{}, nil, err
	}
	cleaned := opts.Clone()
	delete(cleaned, OptOutputSchemaID)
	return schema, cleaned, nil
}

// decodeStructured parses raw model content into a schema-valid object,
// classifying each way the content can fall short.
func decodeStructured(parserType, provider, model string, schema OutputSchema, content string) (map[string]any, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, parserFailure(&ParserError{
			ParserType: parserType,
			Provider:   provider,
			Model:      model,
			Stage:      StageResponseEmpty,
		})
	}

	var decoded any
	if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
		return nil, parserFailure(&ParserError{
			ParserType: parserType,
			Provider:   provider,
			Model:      model,
			Stage:      StageJSONParse,
			Content:    content,
			Err:        err,
		})
	}

	obj, ok := decoded.(map[string]any)
	if !ok {
		return nil, parserFailure(&ParserError{
			ParserType: parserType,
			Provider:   provider,
			Model:      model,
			Stage:      StageStructuredDataMissing,
			Content:    content,
			Err:        fmt.Errorf("top-level JSON value is %T, want an object", decoded),
		})
	}

	validated, err := schema.Validate(obj)
	if err != nil {
		return nil, parserFailure(&ParserError{
			ParserType: parserType,
			Provider:   provider,
			Model:      model,
			Stage:      StageSchemaValidation,
			Content:    content,
			Err:        err,
		})
	}
	return validated, nil
}

// attachConfidence derives a confidence score from token logprobs when the
// provider returned them. The score is exp of the mean token logprob, a
// 0..1 geometric-mean probability.
func attachConfidence(resp *models.ParsedResponse) {
	raw, ok := resp.Metadata["logprobs"]
	if !ok {
		return
	}
	probs, ok := raw.([]float64)
	if !ok || len(probs) == 0 {
		return
	}
	sum := 0.0
	for _, p := range probs {
		sum += p
	}
	resp.SetMetadata("confidence", math.Exp(sum/float64(len(probs))))
}

// Compile-time interface checks for the parsing decorators.
var (
	_ Client = (*nativeParser)(nil)
	_ Client = (*postProcessParser)(nil)
	_ Client = (*constrainedParser)(nil)
)
