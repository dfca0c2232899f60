package llm

import (
	"context"

	"go.uber.org/zap"

	"github.com/caliperhq/caliper-engine/pkg/models"
)

// nativeParser asks the provider for structured output directly. It injects
// a strict JSON schema response format plus logprobs into the request and
// validates whatever comes back, attaching a confidence score when the
// provider returned token logprobs.
type nativeParser struct {
	client Client
	logger *zap.Logger
}

func newNativeParser(client Client, logger *zap.Logger) *nativeParser {
	return &nativeParser{
		client: client,
		logger: logger.Named("parser.native"),
	}
}

func (p *nativeParser) Provider() string {
	return p.client.Provider()
}

func (p *nativeParser) ChatCompletion(ctx context.Context, model string, messages []models.Message, opts Options) (*models.ParsedResponse, error) {
	schema, cleaned, err := takeSchema(opts)
	if err != nil {
		return nil, err
	}

	cleaned[OptResponseFormat] = ResponseFormat{
		Name:   schema.ID,
		Schema: schema.JSON,
		Strict: true,
	}
	cleaned[OptLogprobs] = true

	resp, err := p.client.ChatCompletion(ctx, model, messages, cleaned)
	if err != nil {
		return nil, err
	}

	if resp.StructuredData == nil {
		structured, err := decodeStructured(ParserNative, p.Provider(), model, schema, resp.Content)
		if err != nil {
			return nil, err
		}
		resp.StructuredData = structured
	} else {
		validated, err := schema.Validate(resp.StructuredData)
		if err != nil {
			return nil, parserFailure(&ParserError{
				ParserType: ParserNative,
				Provider:   p.Provider(),
				Model:      model,
				Stage:      StageSchemaValidation,
				Content:    resp.Content,
				Err:        err,
			})
		}
		resp.StructuredData = validated
	}

	attachConfidence(resp)
	resp.SetMetadata("parser_type", ParserNative)
	return resp, nil
}
