package llm

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/caliperhq/caliper-engine/pkg/jsonutil"
	"github.com/caliperhq/caliper-engine/pkg/models"
)

// RecordingClient wraps a provider client and persists every call made
// under a recording scope. The interaction is inserted as pending before
// the provider call and completed after, so a crash or interrupt mid-call
// leaves a visible pending row.
type RecordingClient struct {
	inner    Client
	recorder InteractionRecorder
}

func NewRecordingClient(inner Client, recorder InteractionRecorder) *RecordingClient {
	return &RecordingClient{inner: inner, recorder: recorder}
}

func (c *RecordingClient) Provider() string {
	return c.inner.Provider()
}

func (c *RecordingClient) ChatCompletion(ctx context.Context, model string, messages []models.Message, opts Options) (*models.ParsedResponse, error) {
	scope, ok := RecordingScopeFrom(ctx)
	if !ok {
		// Health checks and ad-hoc calls are not part of any evaluation.
		return c.inner.ChatCompletion(ctx, model, messages, opts)
	}

	interaction := &models.LLMInteraction{
		ID:              uuid.New(),
		EvaluationID:    scope.EvaluationID,
		QuestionID:      scope.QuestionID,
		Provider:        c.inner.Provider(),
		Model:           model,
		RequestMessages: append([]models.Message(nil), messages...),
		Status:          models.LLMInteractionStatusPending,
		CreatedAt:       time.Now().UTC(),
	}
	pendingSaved := c.recorder.SavePending(ctx, interaction) == nil

	start := time.Now()
	resp, err := c.inner.ChatCompletion(ctx, model, messages, opts)
	interaction.DurationMs = int(time.Since(start).Milliseconds())

	if err != nil {
		interaction.Status = models.LLMInteractionStatusError
		interaction.ErrorMessage = err.Error()
	} else {
		interaction.Status = models.LLMInteractionStatusSuccess
		interaction.ResponseContent = resp.Content
		interaction.PromptTokens = metadataInt(resp, "prompt_tokens")
		interaction.CompletionTokens = metadataInt(resp, "completion_tokens")
		interaction.TotalTokens = metadataInt(resp, "total_tokens")
	}

	if pendingSaved {
		c.recorder.RecordCompletion(interaction)
	} else {
		c.recorder.Record(interaction)
	}
	return resp, err
}

func metadataInt(resp *models.ParsedResponse, key string) *int {
	if resp == nil || resp.Metadata == nil {
		return nil
	}
	v, ok := resp.Metadata[key]
	if !ok {
		return nil
	}
	n, ok := jsonutil.IntValue(v)
	if !ok {
		return nil
	}
	return &n
}

var _ Client = (*RecordingClient)(nil)
