package llm

import (
	"context"

	"go.uber.org/zap"

	"github.com/caliperhq/caliper-engine/pkg/models"
)

// constrainedParser relies on provider-side constrained generation. It
// hands the schema to the client as a guided-decoding hint and expects the
// provider to emit conforming JSON, which is still validated locally.
type constrainedParser struct {
	client Client
	logger *zap.Logger
}

func newConstrainedParser(client Client, logger *zap.Logger) *constrainedParser {
	return &constrainedParser{
		client: client,
		logger: logger.Named("parser.constrained"),
	}
}

func (p *constrainedParser) Provider() string {
	return p.client.Provider()
}

func (p *constrainedParser) ChatCompletion(ctx context.Context, model string, messages []models.Message, opts Options) (*models.ParsedResponse, error) {
	schema, cleaned, err := takeSchema(opts)
	if err != nil {
		return nil, err
	}

	cleaned[optGuidedSchema] = ResponseFormat{
		Name:   schema.ID,
		Schema: schema.JSON,
		Strict: true,
	}

	resp, err := p.client.ChatCompletion(ctx, model, messages, cleaned)
	if err != nil {
		return nil, err
	}

	structured, err := decodeStructured(ParserConstrained, p.Provider(), model, schema, resp.Content)
	if err != nil {
		return nil, err
	}

	resp.StructuredData = structured
	resp.SetMetadata("parser_type", ParserConstrained)
	return resp, nil
}
