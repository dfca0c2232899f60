package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/caliperhq/caliper-engine/pkg/apperrors"
)

// ReasoningTrace captures how a strategy arrived at its answer.
// ReasoningText is empty for strategies that do not externalize reasoning.
type ReasoningTrace struct {
	ApproachType  string         `json:"approach_type"`
	ReasoningText string         `json:"reasoning_text"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// EvaluationQuestionResult records one question's outcome. Rows are
// insert-only: a (evaluation, question) pair is processed at most once, and
// the persisted set is what makes resume after interruption or crash safe.
type EvaluationQuestionResult struct {
	ID              uuid.UUID      `json:"id"`
	EvaluationID    uuid.UUID      `json:"evaluation_id"`
	QuestionID      string         `json:"question_id"`
	QuestionText    string         `json:"question_text"`
	ExpectedAnswer  string         `json:"expected_answer"`
	ActualAnswer    string         `json:"actual_answer"`
	IsCorrect       bool           `json:"is_correct"`
	ExecutionTimeMs int64          `json:"execution_time_ms"`
	ReasoningTrace  ReasoningTrace `json:"reasoning_trace"`
	// ErrorMessage is set iff processing this question failed.
	ErrorMessage string    `json:"error_message,omitempty"`
	ProcessedAt  time.Time `json:"processed_at"`
}

// NewQuestionResult records a successfully processed question.
func NewQuestionResult(evaluationID uuid.UUID, q Question, actualAnswer string, isCorrect bool, executionTimeMs int64, trace ReasoningTrace) (*EvaluationQuestionResult, error) {
	if executionTimeMs < 0 {
		return nil, fmt.Errorf("%w: execution time must be non-negative", apperrors.ErrInvalidInput)
	}
	return &EvaluationQuestionResult{
		ID:              uuid.New(),
		EvaluationID:    evaluationID,
		QuestionID:      q.ID,
		QuestionText:    q.Text,
		ExpectedAnswer:  q.ExpectedAnswer,
		ActualAnswer:    actualAnswer,
		IsCorrect:       isCorrect,
		ExecutionTimeMs: executionTimeMs,
		ReasoningTrace:  trace,
		ProcessedAt:     time.Now().UTC(),
	}, nil
}

// NewFailedQuestionResult records a question whose processing failed.
// The answer is empty, isCorrect is false and the failure description
// becomes the row's error message.
func NewFailedQuestionResult(evaluationID uuid.UUID, q Question, reason *FailureReason, executionTimeMs int64, approachType string) *EvaluationQuestionResult {
	if executionTimeMs < 0 {
		executionTimeMs = 0
	}
	return &EvaluationQuestionResult{
		ID:              uuid.New(),
		EvaluationID:    evaluationID,
		QuestionID:      q.ID,
		QuestionText:    q.Text,
		ExpectedAnswer:  q.ExpectedAnswer,
		ActualAnswer:    "",
		IsCorrect:       false,
		ExecutionTimeMs: executionTimeMs,
		ReasoningTrace: ReasoningTrace{
			ApproachType:  approachType,
			ReasoningText: "",
		},
		ErrorMessage: reason.Description,
		ProcessedAt:  time.Now().UTC(),
	}
}

// Failed reports whether this question's processing failed.
func (r *EvaluationQuestionResult) Failed() bool {
	return r.ErrorMessage != ""
}

// ============================================================================
// Computed aggregates
// ============================================================================

// EvaluationResults is the aggregate view of an evaluation, always computed
// from the persisted question results. It is never stored.
type EvaluationResults struct {
	EvaluationID           uuid.UUID                  `json:"evaluation_id"`
	TotalQuestions         int                        `json:"total_questions"`
	CorrectAnswers         int                        `json:"correct_answers"`
	Accuracy               float64                    `json:"accuracy"`
	AverageExecutionTimeMs float64                    `json:"average_execution_time_ms"`
	ErrorCount             int                        `json:"error_count"`
	Results                []EvaluationQuestionResult `json:"results"`
}

// ComputeResults derives the aggregate view by scanning question results.
// Failed questions count toward the accuracy denominator.
func ComputeResults(evaluationID uuid.UUID, results []EvaluationQuestionResult) *EvaluationResults {
	agg := &EvaluationResults{
		EvaluationID:   evaluationID,
		TotalQuestions: len(results),
		Results:        results,
	}

	var totalMs int64
	for _, r := range results {
		if r.IsCorrect {
			agg.CorrectAnswers++
		}
		if r.Failed() {
			agg.ErrorCount++
		}
		totalMs += r.ExecutionTimeMs
	}

	if agg.TotalQuestions > 0 {
		agg.Accuracy = float64(agg.CorrectAnswers) / float64(agg.TotalQuestions)
		agg.AverageExecutionTimeMs = float64(totalMs) / float64(agg.TotalQuestions)
	}
	return agg
}
