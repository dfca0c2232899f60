package llm

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const recordingScopeKey contextKey = "llm_recording_scope"

// RecordingScope ties LLM calls made under a context to the evaluation and
// question they serve. Calls without a scope are not recorded.
type RecordingScope struct {
	EvaluationID uuid.UUID
	QuestionID   string
}

// WithRecordingScope returns a context whose LLM calls are recorded against
// the given evaluation and question.
func WithRecordingScope(ctx context.Context, scope RecordingScope) context.Context {
	return context.WithValue(ctx, recordingScopeKey, scope)
}

// RecordingScopeFrom extracts the recording scope, if any.
func RecordingScopeFrom(ctx context.Context) (RecordingScope, bool) {
	scope, ok := ctx.Value(recordingScopeKey).(RecordingScope)
	return scope, ok
}
