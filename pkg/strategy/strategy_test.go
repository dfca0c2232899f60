package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caliperhq/caliper-engine/pkg/models"
)

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{StrategyChainOfThought, StrategyNone}, r.IDs())
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := DefaultRegistry()
	_, err := r.Get("tree_of_thought")
	require.Error(t, err)

	reason := models.FailureReasonFromError(err)
	require.NotNil(t, reason)
	assert.Equal(t, models.FailureConfigurationError, reason.Category)
	assert.Contains(t, err.Error(), "tree_of_thought")
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewDirectStrategy()))
	assert.Error(t, r.Register(NewDirectStrategy()))
}

func TestDirectStrategy_BuildPrompt(t *testing.T) {
	s := NewDirectStrategy()
	q := models.Question{ID: "1", Text: "What is 2+2?", ExpectedAnswer: "4"}

	messages := s.BuildPrompt(q, models.AgentConfig{})

	require.Len(t, messages, 1)
	assert.Equal(t, models.RoleUser, messages[0].Role)
	assert.Equal(t, "Answer the following question directly:\n\nQuestion: What is 2+2?", messages[0].Content)
}

func TestDirectStrategy_ProcessResponse(t *testing.T) {
	s := NewDirectStrategy()
	response := models.ParsedResponse{
		Content:        `{"answer":"4"}`,
		StructuredData: map[string]any{"answer": "4"},
	}

	result, err := s.ProcessResponse(response)
	require.NoError(t, err)
	assert.Equal(t, "4", result.FinalAnswer)
	assert.Equal(t, "", result.ReasoningText)
}

func TestDirectStrategy_ProcessResponse_MissingAnswer(t *testing.T) {
	s := NewDirectStrategy()
	_, err := s.ProcessResponse(models.ParsedResponse{
		Content:        `{}`,
		StructuredData: map[string]any{},
	})
	assert.Error(t, err)
}

func TestDirectStrategy_ValidateConfig(t *testing.T) {
	s := NewDirectStrategy()
	assert.NoError(t, s.ValidateConfig(models.AgentConfig{StrategyID: StrategyNone, ModelName: "gpt-4"}))
}

func TestChainOfThoughtStrategy_BuildPrompt(t *testing.T) {
	s := NewChainOfThoughtStrategy()
	q := models.Question{ID: "1", Text: "Why is the sky blue?", ExpectedAnswer: "Rayleigh scattering"}

	messages := s.BuildPrompt(q, models.AgentConfig{})

	require.Len(t, messages, 1)
	assert.Equal(t, models.RoleUser, messages[0].Role)
	assert.Equal(t, "Think through this question step by step, then provide your answer:\n\nQuestion: Why is the sky blue?", messages[0].Content)
}

func TestChainOfThoughtStrategy_ProcessResponse(t *testing.T) {
	s := NewChainOfThoughtStrategy()
	response := models.ParsedResponse{
		Content:        `{"answer":"5","reasoning":"I miscounted"}`,
		StructuredData: map[string]any{"answer": "5", "reasoning": "I miscounted"},
	}

	result, err := s.ProcessResponse(response)
	require.NoError(t, err)
	assert.Equal(t, "5", result.FinalAnswer)
	assert.Equal(t, "I miscounted", result.ReasoningText)
}

func TestChainOfThoughtStrategy_ValidateConfig(t *testing.T) {
	s := NewChainOfThoughtStrategy()

	tooSmall := models.AgentConfig{
		StrategyID:      StrategyChainOfThought,
		ModelName:       "claude-3-sonnet",
		ModelParameters: map[string]any{"max_tokens": 199},
	}
	err := s.ValidateConfig(tooSmall)
	require.Error(t, err)
	reason := models.FailureReasonFromError(err)
	require.NotNil(t, reason)
	assert.Equal(t, models.FailureConfigurationError, reason.Category)

	enough := models.AgentConfig{
		StrategyID:      StrategyChainOfThought,
		ModelName:       "claude-3-sonnet",
		ModelParameters: map[string]any{"max_tokens": 200},
	}
	assert.NoError(t, s.ValidateConfig(enough))

	// Absent max_tokens falls back to the provider default.
	assert.NoError(t, s.ValidateConfig(models.AgentConfig{StrategyID: StrategyChainOfThought, ModelName: "m"}))
}

func TestStrategies_SchemaIDs(t *testing.T) {
	assert.Equal(t, "direct_answer", NewDirectStrategy().OutputSchemaID())
	assert.Equal(t, "chain_of_thought", NewChainOfThoughtStrategy().OutputSchemaID())
}
