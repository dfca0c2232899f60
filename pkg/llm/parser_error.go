package llm

import (
	"fmt"

	"github.com/caliperhq/caliper-engine/pkg/logging"
	"github.com/caliperhq/caliper-engine/pkg/models"
)

// Pipeline stages where response parsing can fail.
const (
	StageResponseEmpty         = "response_empty"
	StageJSONParse             = "json_parse"
	StageSchemaValidation      = "schema_validation"
	StageStructuredDataMissing = "structured_data_missing"
)

// maxContentDetail bounds how much raw model output is carried into failure
// details.
const maxContentDetail = 200

// ParserError records where in the parsing pipeline a model response was
// lost, keeping the offending content for inspection.
type ParserError struct {
	ParserType string
	Provider   string
	Model      string
	Stage      string
	Content    string
	Err        error
}

func (e *ParserError) Error() string {
	msg := fmt.Sprintf("%s failed at %s", e.ParserType, e.Stage)
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *ParserError) Unwrap() error {
	return e.Err
}

// parserFailure wraps a ParserError into the classified failure the
// orchestrator records on the question.
func parserFailure(perr *ParserError) error {
	details := fmt.Sprintf("parser=%s provider=%s model=%s stage=%s",
		perr.ParserType, perr.Provider, perr.Model, perr.Stage)
	if perr.Content != "" {
		details += fmt.Sprintf(" content=%q", logging.TruncateString(perr.Content, maxContentDetail))
	}
	if perr.Err != nil {
		details += ": " + perr.Err.Error()
	}

	reason := models.NewFailureReason(
		models.FailureParsingError,
		fmt.Sprintf("%s failed at %s", perr.ParserType, perr.Stage),
		details,
		false,
	)
	return models.NewFailureError(reason, perr)
}
