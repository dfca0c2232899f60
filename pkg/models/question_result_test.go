package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caliperhq/caliper-engine/pkg/apperrors"
)

func TestNewQuestionResult(t *testing.T) {
	evalID := uuid.New()
	q := Question{ID: "1", Text: "What is 2+2?", ExpectedAnswer: "4"}
	trace := ReasoningTrace{ApproachType: "none", ReasoningText: ""}

	r, err := NewQuestionResult(evalID, q, "4", true, 1200, trace)
	require.NoError(t, err)

	assert.Equal(t, evalID, r.EvaluationID)
	assert.Equal(t, "1", r.QuestionID)
	assert.Equal(t, "What is 2+2?", r.QuestionText)
	assert.Equal(t, "4", r.ExpectedAnswer)
	assert.Equal(t, "4", r.ActualAnswer)
	assert.True(t, r.IsCorrect)
	assert.Equal(t, int64(1200), r.ExecutionTimeMs)
	assert.Empty(t, r.ErrorMessage)
	assert.False(t, r.Failed())
	assert.False(t, r.ProcessedAt.IsZero())
}

func TestNewQuestionResult_NegativeExecutionTime(t *testing.T) {
	_, err := NewQuestionResult(uuid.New(), Question{ID: "1"}, "x", false, -1, ReasoningTrace{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestNewFailedQuestionResult(t *testing.T) {
	evalID := uuid.New()
	q := Question{ID: "2", Text: "Why?", ExpectedAnswer: "because"}
	reason := NewFailureReason(FailureParsingError, "post_process failed at response_empty", "details", false)

	r := NewFailedQuestionResult(evalID, q, reason, 80, "chain_of_thought")

	assert.Equal(t, "", r.ActualAnswer)
	assert.False(t, r.IsCorrect)
	assert.Equal(t, "post_process failed at response_empty", r.ErrorMessage)
	assert.Equal(t, "chain_of_thought", r.ReasoningTrace.ApproachType)
	assert.Equal(t, "", r.ReasoningTrace.ReasoningText)
	assert.True(t, r.Failed())
}

func TestComputeResults(t *testing.T) {
	evalID := uuid.New()
	results := []EvaluationQuestionResult{
		{EvaluationID: evalID, QuestionID: "1", IsCorrect: true, ExecutionTimeMs: 100},
		{EvaluationID: evalID, QuestionID: "2", IsCorrect: false, ExecutionTimeMs: 300, ErrorMessage: "parse failed"},
		{EvaluationID: evalID, QuestionID: "3", IsCorrect: true, ExecutionTimeMs: 200},
	}

	agg := ComputeResults(evalID, results)

	assert.Equal(t, 3, agg.TotalQuestions)
	assert.Equal(t, 2, agg.CorrectAnswers)
	assert.InDelta(t, 2.0/3.0, agg.Accuracy, 1e-9)
	assert.InDelta(t, 200.0, agg.AverageExecutionTimeMs, 1e-9)
	assert.Equal(t, 1, agg.ErrorCount)
	assert.Len(t, agg.Results, 3)
}

func TestComputeResults_Empty(t *testing.T) {
	agg := ComputeResults(uuid.New(), nil)
	assert.Equal(t, 0, agg.TotalQuestions)
	assert.Equal(t, 0.0, agg.Accuracy)
	assert.Equal(t, 0.0, agg.AverageExecutionTimeMs)
}
