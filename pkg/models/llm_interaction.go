package models

import (
	"time"

	"github.com/google/uuid"
)

// LLM interaction statuses.
const (
	LLMInteractionStatusPending = "pending"
	LLMInteractionStatusSuccess = "success"
	LLMInteractionStatusError   = "error"
)

// LLMInteraction is the verbatim audit record of one provider call made
// while processing a question. Request messages and response content are
// stored exactly as sent and received so that prompt fidelity and parser
// failures can be inspected after the fact. Recording is best-effort and
// never affects the evaluation outcome.
type LLMInteraction struct {
	ID           uuid.UUID `json:"id"`
	EvaluationID uuid.UUID `json:"evaluation_id"`
	QuestionID   string    `json:"question_id"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`

	RequestMessages []Message `json:"request_messages"`
	ResponseContent string    `json:"response_content,omitempty"`

	PromptTokens     *int `json:"prompt_tokens,omitempty"`
	CompletionTokens *int `json:"completion_tokens,omitempty"`
	TotalTokens      *int `json:"total_tokens,omitempty"`

	DurationMs   int    `json:"duration_ms"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
