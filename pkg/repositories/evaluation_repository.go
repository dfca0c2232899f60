package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/caliperhq/caliper-engine/pkg/apperrors"
	"github.com/caliperhq/caliper-engine/pkg/database"
	"github.com/caliperhq/caliper-engine/pkg/models"
)

// EvaluationFilter narrows List results. Zero values mean "no filter".
type EvaluationFilter struct {
	Status      models.EvaluationStatus
	BenchmarkID uuid.UUID
}

// EvaluationRepository defines data access for evaluations.
type EvaluationRepository interface {
	Create(ctx context.Context, evaluation *models.Evaluation) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Evaluation, error)
	// UpdateStatus persists the lifecycle fields in one short transaction:
	// status, timestamps and failure reason together.
	UpdateStatus(ctx context.Context, evaluation *models.Evaluation) error
	List(ctx context.Context, filter EvaluationFilter) ([]*models.Evaluation, error)
	// Delete removes the evaluation; its question results and interactions
	// cascade.
	Delete(ctx context.Context, id uuid.UUID) error
}

type evaluationRepository struct {
	db *database.DB
}

// NewEvaluationRepository creates a new evaluation repository.
func NewEvaluationRepository(db *database.DB) EvaluationRepository {
	return &evaluationRepository{db: db}
}

var _ EvaluationRepository = (*evaluationRepository)(nil)

func (r *evaluationRepository) Create(ctx context.Context, evaluation *models.Evaluation) error {
	agentConfig, err := json.Marshal(evaluation.AgentConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal agent config: %w", err)
	}

	failureReason, err := marshalFailureReason(evaluation.FailureReason)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO evaluations (
			id, benchmark_id, agent_config, status, failure_reason,
			created_at, started_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = r.db.Exec(ctx, query,
		evaluation.ID,
		evaluation.BenchmarkID,
		agentConfig,
		evaluation.Status,
		failureReason,
		evaluation.CreatedAt,
		evaluation.StartedAt,
		evaluation.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create evaluation: %w", err)
	}
	return nil
}

func (r *evaluationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Evaluation, error) {
	query := `
		SELECT id, benchmark_id, agent_config, status, failure_reason,
		       created_at, started_at, completed_at
		FROM evaluations
		WHERE id = $1`

	return scanEvaluation(r.db.QueryRow(ctx, query, id))
}

func (r *evaluationRepository) UpdateStatus(ctx context.Context, evaluation *models.Evaluation) error {
	failureReason, err := marshalFailureReason(evaluation.FailureReason)
	if err != nil {
		return err
	}

	query := `
		UPDATE evaluations
		SET status = $2, failure_reason = $3, started_at = $4, completed_at = $5
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query,
		evaluation.ID,
		evaluation.Status,
		failureReason,
		evaluation.StartedAt,
		evaluation.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update evaluation status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *evaluationRepository) List(ctx context.Context, filter EvaluationFilter) ([]*models.Evaluation, error) {
	query := `
		SELECT id, benchmark_id, agent_config, status, failure_reason,
		       created_at, started_at, completed_at
		FROM evaluations`

	var conditions []string
	var args []any
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.BenchmarkID != uuid.Nil {
		args = append(args, filter.BenchmarkID)
		conditions = append(conditions, fmt.Sprintf("benchmark_id = $%d", len(args)))
	}
	for i, cond := range conditions {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluations: %w", err)
	}
	defer rows.Close()

	var evaluations []*models.Evaluation
	for rows.Next() {
		e, err := scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		evaluations = append(evaluations, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate evaluations: %w", err)
	}
	return evaluations, nil
}

func (r *evaluationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM evaluations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete evaluation: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func scanEvaluation(row pgx.Row) (*models.Evaluation, error) {
	var e models.Evaluation
	var agentConfig []byte
	var failureReason []byte

	err := row.Scan(
		&e.ID,
		&e.BenchmarkID,
		&agentConfig,
		&e.Status,
		&failureReason,
		&e.CreatedAt,
		&e.StartedAt,
		&e.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan evaluation: %w", err)
	}

	if err := json.Unmarshal(agentConfig, &e.AgentConfig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal agent config: %w", err)
	}
	if len(failureReason) > 0 {
		e.FailureReason = &models.FailureReason{}
		if err := json.Unmarshal(failureReason, e.FailureReason); err != nil {
			return nil, fmt.Errorf("failed to unmarshal failure reason: %w", err)
		}
	}
	return &e, nil
}

func marshalFailureReason(reason *models.FailureReason) ([]byte, error) {
	if reason == nil {
		return nil, nil
	}
	data, err := json.Marshal(reason)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal failure reason: %w", err)
	}
	return data, nil
}
