package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/caliperhq/caliper-engine/pkg/models"
)

// postProcessParser extracts structured data from free-form completions
// after the fact. It never touches the prompt or the request options, so
// the model answers exactly as it would without structured output.
type postProcessParser struct {
	client Client
	logger *zap.Logger
}

func newPostProcessParser(client Client, logger *zap.Logger) *postProcessParser {
	return &postProcessParser{
		client: client,
		logger: logger.Named("parser.post_process"),
	}
}

func (p *postProcessParser) Provider() string {
	return p.client.Provider()
}

func (p *postProcessParser) ChatCompletion(ctx context.Context, model string, messages []models.Message, opts Options) (*models.ParsedResponse, error) {
	schema, cleaned, err := takeSchema(opts)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.ChatCompletion(ctx, model, messages, cleaned)
	if err != nil {
		return nil, err
	}

	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return nil, parserFailure(&ParserError{
			ParserType: ParserPostProcess,
			Provider:   p.Provider(),
			Model:      model,
			Stage:      StageResponseEmpty,
		})
	}

	structured, err := p.extract(model, schema, resp.Content)
	if err != nil {
		return nil, err
	}

	resp.StructuredData = structured
	resp.SetMetadata("parser_type", ParserPostProcess)
	return resp, nil
}

// extract walks a ladder of recovery steps: parse the whole response as
// JSON, find an embedded JSON object, then scrape schema fields out of
// plain text. An object that fails schema validation is terminal; the
// textual fallback only runs when no JSON object could be found at all.
func (p *postProcessParser) extract(model string, schema OutputSchema, content string) (map[string]any, error) {
	if obj, ok := findObject(content); ok {
		validated, err := schema.Validate(obj)
		if err != nil {
			return nil, parserFailure(&ParserError{
				ParserType: ParserPostProcess,
				Provider:   p.Provider(),
				Model:      model,
				Stage:      StageSchemaValidation,
				Content:    content,
				Err:        err,
			})
		}
		return validated, nil
	}

	if fields, ok := extractSchemaFields(content, schema); ok {
		p.logger.Debug("recovered structured data from plain text",
			zap.String("model", model),
			zap.String("schema", schema.ID))
		return fields, nil
	}

	stage := StageJSONParse
	var cause error = fmt.Errorf("no JSON object found in response")
	if trimmed := strings.TrimSpace(StripThinkTags(content)); json.Valid([]byte(trimmed)) {
		stage = StageStructuredDataMissing
		cause = fmt.Errorf("response is valid JSON but not an object")
	}
	return nil, parserFailure(&ParserError{
		ParserType: ParserPostProcess,
		Provider:   p.Provider(),
		Model:      model,
		Stage:      stage,
		Content:    content,
		Err:        cause,
	})
}

// findObject locates a JSON object in the response, trying a whole-body
// parse before falling back to balanced-brace extraction.
func findObject(content string) (map[string]any, bool) {
	if obj, ok := decodeObject(StripThinkTags(content)); ok {
		return obj, true
	}
	if extracted, err := ExtractJSON(content); err == nil {
		if obj, ok := decodeObject(extracted); ok {
			return obj, true
		}
	}
	return nil, false
}

// decodeObject parses s as a JSON object, stripping code fences first.
func decodeObject(s string) (map[string]any, bool) {
	trimmed := strings.TrimSpace(StripCodeFence(s))
	if trimmed == "" || trimmed[0] != '{' {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// extractSchemaFields scrapes schema fields out of non-JSON text. It
// recognizes quoted JSON-style pairs, bare-value pairs, and labeled lines
// such as "Answer: 42". All required fields must be found.
func extractSchemaFields(content string, schema OutputSchema) (map[string]any, bool) {
	text := StripThinkTags(content)
	fields := make(map[string]any)
	for _, field := range schema.Fields {
		if value, ok := scrapeField(text, field); ok {
			fields[field] = value
		}
	}
	for _, required := range schema.Required {
		if _, ok := fields[required]; !ok {
			return nil, false
		}
	}
	if len(fields) == 0 {
		return nil, false
	}
	return fields, true
}

func scrapeField(text, field string) (string, bool) {
	name := regexp.QuoteMeta(field)

	quoted := regexp.MustCompile(`"` + name + `"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	if m := quoted.FindStringSubmatch(text); m != nil {
		return unescapeJSONString(m[1]), true
	}

	bare := regexp.MustCompile(`"` + name + `"\s*:\s*([^,}\n]+)`)
	if m := bare.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]), true
	}

	labeled := regexp.MustCompile(`(?im)^\s*` + name + `\s*[:=]\s*(.+)$`)
	if m := labeled.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]), true
	}

	return "", false
}

// unescapeJSONString resolves escape sequences captured from inside a
// quoted JSON string. Falls back to the raw text if it will not re-parse.
func unescapeJSONString(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return s
	}
	return out
}
