package llm

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/caliperhq/caliper-engine/pkg/jsonutil"
	"github.com/caliperhq/caliper-engine/pkg/models"
)

// Option keys recognized on a chat completion request. The set is closed:
// FromModelParameters rejects anything else.
const (
	OptTemperature    = "temperature"
	OptMaxTokens      = "max_tokens"
	OptTopP           = "top_p"
	OptLogprobs       = "logprobs"
	OptResponseFormat = "response_format"

	// OptOutputSchemaID names the output schema the parsing layer enforces.
	// It is consumed inside this package and never reaches a provider.
	OptOutputSchemaID = "_internal_output_schema_id"

	// optGuidedSchema carries the constrained-generation contract to clients
	// that support it. Set only by the constrained parser.
	optGuidedSchema = "_internal_guided_schema"
)

var recognizedOptions = map[string]struct{}{
	OptTemperature:    {},
	OptMaxTokens:      {},
	OptTopP:           {},
	OptLogprobs:       {},
	OptResponseFormat: {},
	OptOutputSchemaID: {},
}

// ResponseFormat is the structured-output contract for providers with
// native JSON schema support.
type ResponseFormat struct {
	Name   string
	Schema json.RawMessage
	Strict bool
}

// Options carries the per-request parameters for a chat completion. Values
// may come straight out of a JSONB agent configuration, so the typed getters
// accept both in-process and decoded-JSON representations.
type Options map[string]any

// FromModelParameters builds Options from an agent configuration's model
// parameters. Unrecognized keys are a configuration error.
func FromModelParameters(params map[string]any) (Options, error) {
	opts := make(Options, len(params))
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if _, ok := recognizedOptions[key]; !ok {
			return nil, models.NewConfigurationFailure(
				fmt.Sprintf("unrecognized request option %q", key),
				fmt.Sprintf("recognized options: %s", strings.Join(recognizedOptionNames(), ", ")),
			).AsError()
		}
		opts[key] = params[key]
	}
	return opts, nil
}

func recognizedOptionNames() []string {
	names := make([]string, 0, len(recognizedOptions))
	for name := range recognizedOptions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a shallow copy so parsers can add keys without touching the
// caller's map.
func (o Options) Clone() Options {
	cloned := make(Options, len(o))
	for key, value := range o {
		cloned[key] = value
	}
	return cloned
}

// Temperature returns the sampling temperature, if set.
func (o Options) Temperature() (float64, bool) {
	v, ok := o[OptTemperature]
	if !ok {
		return 0, false
	}
	return jsonutil.FloatValue(v)
}

// MaxTokens returns the completion token cap, if set.
func (o Options) MaxTokens() (int, bool) {
	v, ok := o[OptMaxTokens]
	if !ok {
		return 0, false
	}
	return jsonutil.IntValue(v)
}

// TopP returns the nucleus sampling cutoff, if set.
func (o Options) TopP() (float64, bool) {
	v, ok := o[OptTopP]
	if !ok {
		return 0, false
	}
	return jsonutil.FloatValue(v)
}

// Logprobs reports whether token logprobs were requested.
func (o Options) Logprobs() bool {
	v, ok := o[OptLogprobs]
	if !ok {
		return false
	}
	b, _ := jsonutil.BoolValue(v)
	return b
}

// ResponseFormat returns the native structured-output contract, if set.
func (o Options) ResponseFormat() (ResponseFormat, bool) {
	rf, ok := o[OptResponseFormat].(ResponseFormat)
	return rf, ok
}

// SchemaID returns the output schema id attached for the parsing layer.
func (o Options) SchemaID() (string, bool) {
	id, ok := o[OptOutputSchemaID].(string)
	return id, ok && id != ""
}

// SetSchemaID attaches the output schema id consumed by the parsing layer.
func (o Options) SetSchemaID(id string) {
	o[OptOutputSchemaID] = id
}

func (o Options) guidedSchema() (ResponseFormat, bool) {
	rf, ok := o[optGuidedSchema].(ResponseFormat)
	return rf, ok
}
