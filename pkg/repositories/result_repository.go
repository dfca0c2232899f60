package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/caliperhq/caliper-engine/pkg/apperrors"
	"github.com/caliperhq/caliper-engine/pkg/database"
	"github.com/caliperhq/caliper-engine/pkg/models"
)

// ResultRepository defines data access for per-question results. Rows are
// insert-only; there is no update path.
type ResultRepository interface {
	// Create inserts exactly one result row. This single statement is the
	// per-question transaction: either the row is durable or nothing of the
	// question survives. A second row for the same (evaluation, question)
	// pair returns apperrors.ErrConflict.
	Create(ctx context.Context, result *models.EvaluationQuestionResult) error
	// ListByEvaluation returns results in processing order.
	ListByEvaluation(ctx context.Context, evaluationID uuid.UUID) ([]models.EvaluationQuestionResult, error)
	// ProcessedQuestionIDs returns the ids of questions that already have a
	// persisted result. Resume skips membership in this set.
	ProcessedQuestionIDs(ctx context.Context, evaluationID uuid.UUID) (map[string]struct{}, error)
	CountByEvaluation(ctx context.Context, evaluationID uuid.UUID) (int, error)
}

type resultRepository struct {
	db *database.DB
}

// NewResultRepository creates a new question result repository.
func NewResultRepository(db *database.DB) ResultRepository {
	return &resultRepository{db: db}
}

var _ ResultRepository = (*resultRepository)(nil)

func (r *resultRepository) Create(ctx context.Context, result *models.EvaluationQuestionResult) error {
	trace, err := json.Marshal(result.ReasoningTrace)
	if err != nil {
		return fmt.Errorf("failed to marshal reasoning trace: %w", err)
	}

	query := `
		INSERT INTO evaluation_question_results (
			id, evaluation_id, question_id, question_text, expected_answer,
			actual_answer, is_correct, execution_time_ms, reasoning_trace,
			error_message, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = r.db.Exec(ctx, query,
		result.ID,
		result.EvaluationID,
		result.QuestionID,
		result.QuestionText,
		result.ExpectedAnswer,
		result.ActualAnswer,
		result.IsCorrect,
		result.ExecutionTimeMs,
		trace,
		result.ErrorMessage,
		result.ProcessedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("result for question %q: %w", result.QuestionID, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to create question result: %w", err)
	}
	return nil
}

func (r *resultRepository) ListByEvaluation(ctx context.Context, evaluationID uuid.UUID) ([]models.EvaluationQuestionResult, error) {
	query := `
		SELECT id, evaluation_id, question_id, question_text, expected_answer,
		       actual_answer, is_correct, execution_time_ms, reasoning_trace,
		       error_message, processed_at
		FROM evaluation_question_results
		WHERE evaluation_id = $1
		ORDER BY processed_at`

	rows, err := r.db.Query(ctx, query, evaluationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list question results: %w", err)
	}
	defer rows.Close()

	var results []models.EvaluationQuestionResult
	for rows.Next() {
		var result models.EvaluationQuestionResult
		var trace []byte

		err := rows.Scan(
			&result.ID,
			&result.EvaluationID,
			&result.QuestionID,
			&result.QuestionText,
			&result.ExpectedAnswer,
			&result.ActualAnswer,
			&result.IsCorrect,
			&result.ExecutionTimeMs,
			&trace,
			&result.ErrorMessage,
			&result.ProcessedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan question result: %w", err)
		}
		if err := json.Unmarshal(trace, &result.ReasoningTrace); err != nil {
			return nil, fmt.Errorf("failed to unmarshal reasoning trace: %w", err)
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate question results: %w", err)
	}
	return results, nil
}

func (r *resultRepository) ProcessedQuestionIDs(ctx context.Context, evaluationID uuid.UUID) (map[string]struct{}, error) {
	query := `
		SELECT question_id
		FROM evaluation_question_results
		WHERE evaluation_id = $1`

	rows, err := r.db.Query(ctx, query, evaluationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query processed question ids: %w", err)
	}
	defer rows.Close()

	processed := make(map[string]struct{})
	for rows.Next() {
		var questionID string
		if err := rows.Scan(&questionID); err != nil {
			return nil, fmt.Errorf("failed to scan question id: %w", err)
		}
		processed[questionID] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate question ids: %w", err)
	}
	return processed, nil
}

func (r *resultRepository) CountByEvaluation(ctx context.Context, evaluationID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM evaluation_question_results WHERE evaluation_id = $1`,
		evaluationID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count question results: %w", err)
	}
	return count, nil
}
