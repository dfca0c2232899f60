package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/caliperhq/caliper-engine/pkg/apperrors"
	"github.com/caliperhq/caliper-engine/pkg/database"
	"github.com/caliperhq/caliper-engine/pkg/models"
)

// InteractionRepository defines data access for the LLM interaction audit
// trail. Interactions are diagnostics, not evaluation state: callers treat
// persistence failures as log-worthy, never as run failures.
type InteractionRepository interface {
	Create(ctx context.Context, interaction *models.LLMInteraction) error
	// Update completes a previously created pending interaction.
	Update(ctx context.Context, interaction *models.LLMInteraction) error
	ListByEvaluation(ctx context.Context, evaluationID uuid.UUID) ([]*models.LLMInteraction, error)
}

type interactionRepository struct {
	db *database.DB
}

// NewInteractionRepository creates a new LLM interaction repository.
func NewInteractionRepository(db *database.DB) InteractionRepository {
	return &interactionRepository{db: db}
}

var _ InteractionRepository = (*interactionRepository)(nil)

func (r *interactionRepository) Create(ctx context.Context, interaction *models.LLMInteraction) error {
	messages, err := json.Marshal(interaction.RequestMessages)
	if err != nil {
		return fmt.Errorf("failed to marshal request messages: %w", err)
	}

	query := `
		INSERT INTO llm_interactions (
			id, evaluation_id, question_id, provider, model, request_messages,
			response_content, prompt_tokens, completion_tokens, total_tokens,
			duration_ms, status, error_message, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err = r.db.Exec(ctx, query,
		interaction.ID,
		interaction.EvaluationID,
		interaction.QuestionID,
		interaction.Provider,
		interaction.Model,
		messages,
		interaction.ResponseContent,
		interaction.PromptTokens,
		interaction.CompletionTokens,
		interaction.TotalTokens,
		interaction.DurationMs,
		interaction.Status,
		interaction.ErrorMessage,
		interaction.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create llm interaction: %w", err)
	}
	return nil
}

func (r *interactionRepository) Update(ctx context.Context, interaction *models.LLMInteraction) error {
	query := `
		UPDATE llm_interactions
		SET response_content = $2, prompt_tokens = $3, completion_tokens = $4,
		    total_tokens = $5, duration_ms = $6, status = $7, error_message = $8
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query,
		interaction.ID,
		interaction.ResponseContent,
		interaction.PromptTokens,
		interaction.CompletionTokens,
		interaction.TotalTokens,
		interaction.DurationMs,
		interaction.Status,
		interaction.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to update llm interaction: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *interactionRepository) ListByEvaluation(ctx context.Context, evaluationID uuid.UUID) ([]*models.LLMInteraction, error) {
	query := `
		SELECT id, evaluation_id, question_id, provider, model, request_messages,
		       response_content, prompt_tokens, completion_tokens, total_tokens,
		       duration_ms, status, error_message, created_at
		FROM llm_interactions
		WHERE evaluation_id = $1
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, evaluationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list llm interactions: %w", err)
	}
	defer rows.Close()

	var interactions []*models.LLMInteraction
	for rows.Next() {
		var interaction models.LLMInteraction
		var messages []byte

		err := rows.Scan(
			&interaction.ID,
			&interaction.EvaluationID,
			&interaction.QuestionID,
			&interaction.Provider,
			&interaction.Model,
			&messages,
			&interaction.ResponseContent,
			&interaction.PromptTokens,
			&interaction.CompletionTokens,
			&interaction.TotalTokens,
			&interaction.DurationMs,
			&interaction.Status,
			&interaction.ErrorMessage,
			&interaction.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan llm interaction: %w", err)
		}
		if err := json.Unmarshal(messages, &interaction.RequestMessages); err != nil {
			return nil, fmt.Errorf("failed to unmarshal request messages: %w", err)
		}
		interactions = append(interactions, &interaction)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate llm interactions: %w", err)
	}
	return interactions, nil
}
