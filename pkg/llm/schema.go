package llm

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/caliperhq/caliper-engine/pkg/jsonutil"
	"github.com/caliperhq/caliper-engine/pkg/models"
)

// Output schema identifiers. Reasoning strategies name one of these; the
// parsing layer enforces it.
const (
	SchemaDirectAnswer   = "direct_answer"
	SchemaChainOfThought = "chain_of_thought"
)

// DirectAnswer is the wire shape for strategies that want only an answer.
type DirectAnswer struct {
	Answer string `json:"answer" jsonschema:"description=The final answer to the question"`
}

// ChainOfThoughtAnswer is the wire shape for strategies that also capture
// the model's reasoning.
type ChainOfThoughtAnswer struct {
	Answer    string `json:"answer" jsonschema:"description=The final answer to the question"`
	Reasoning string `json:"reasoning" jsonschema:"description=The step-by-step reasoning that led to the answer"`
}

// OutputSchema is one structured-output contract. JSON is the full schema
// document sent to providers; Required and Fields drive local validation.
// Required may be narrower than the wire schema: strict decoding asks the
// model for every field, but a response is usable as long as the required
// ones are present.
type OutputSchema struct {
	ID       string
	JSON     json.RawMessage
	Required []string
	Fields   []string
}

var outputSchemas = map[string]OutputSchema{
	SchemaDirectAnswer: {
		ID:       SchemaDirectAnswer,
		JSON:     mustReflectSchema(&DirectAnswer{}),
		Required: []string{"answer"},
		Fields:   []string{"answer"},
	},
	SchemaChainOfThought: {
		ID:       SchemaChainOfThought,
		JSON:     mustReflectSchema(&ChainOfThoughtAnswer{}),
		Required: []string{"answer"},
		Fields:   []string{"answer", "reasoning"},
	},
}

// SchemaByID returns the registered output schema for id.
func SchemaByID(id string) (OutputSchema, error) {
	schema, ok := outputSchemas[id]
	if !ok {
		return OutputSchema{}, models.NewConfigurationFailure(
			fmt.Sprintf("unknown output schema %q", id),
			fmt.Sprintf("known schemas: %s", strings.Join(SchemaIDs(), ", ")),
		).AsError()
	}
	return schema, nil
}

// SchemaIDs returns the registered schema ids, sorted.
func SchemaIDs() []string {
	ids := make([]string, 0, len(outputSchemas))
	for id := range outputSchemas {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Validate checks obj against the schema and returns the canonical object:
// schema fields only, every value coerced to a string. Models occasionally
// answer with bare numbers or booleans; those are accepted and stringified.
func (s OutputSchema) Validate(obj map[string]any) (map[string]any, error) {
	if obj == nil {
		return nil, fmt.Errorf("structured data is missing")
	}

	out := make(map[string]any, len(s.Fields))
	for _, field := range s.Fields {
		value, ok := obj[field]
		if !ok || value == nil {
			if s.isRequired(field) {
				return nil, fmt.Errorf("missing required field %q", field)
			}
			continue
		}
		str, ok := jsonutil.StringValue(value)
		if !ok {
			return nil, fmt.Errorf("field %q must be a scalar value, got %T", field, value)
		}
		out[field] = str
	}
	return out, nil
}

func (s OutputSchema) isRequired(field string) bool {
	for _, required := range s.Required {
		if required == field {
			return true
		}
	}
	return false
}

// mustReflectSchema generates the JSON schema document for a wire shape.
// All properties end up in required and additionalProperties is false, which
// is what strict structured-output modes demand.
func mustReflectSchema(v any) json.RawMessage {
	reflector := &jsonschema.Reflector{
		// Inline everything instead of referencing $defs.
		DoNotReference: true,
		ExpandedStruct: true,
	}
	reflected := reflector.Reflect(v)

	raw, err := json.Marshal(reflected)
	if err != nil {
		panic(fmt.Sprintf("marshal output schema: %v", err))
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		panic(fmt.Sprintf("decode output schema: %v", err))
	}
	delete(doc, "$schema")
	delete(doc, "$id")
	doc["additionalProperties"] = false

	raw, err = json.Marshal(doc)
	if err != nil {
		panic(fmt.Sprintf("re-encode output schema: %v", err))
	}
	return raw
}
