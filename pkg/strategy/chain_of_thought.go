package strategy

import (
	"fmt"

	"github.com/caliperhq/caliper-engine/pkg/models"
)

const cotPromptFormat = "Think through this question step by step, then provide your answer:\n\nQuestion: %s"

// chainOfThoughtMinTokens is the smallest max_tokens budget that leaves
// room for both reasoning and an answer.
const chainOfThoughtMinTokens = 200

// chainOfThoughtStrategy asks the model to reason step by step and return
// the reasoning alongside the answer.
type chainOfThoughtStrategy struct{}

// NewChainOfThoughtStrategy returns the "chain_of_thought" strategy.
func NewChainOfThoughtStrategy() Strategy {
	return &chainOfThoughtStrategy{}
}

func (s *chainOfThoughtStrategy) ID() string {
	return StrategyChainOfThought
}

func (s *chainOfThoughtStrategy) OutputSchemaID() string {
	return "chain_of_thought"
}

func (s *chainOfThoughtStrategy) BuildPrompt(question models.Question, _ models.AgentConfig) []models.Message {
	return []models.Message{
		models.UserMessage(fmt.Sprintf(cotPromptFormat, question.Text)),
	}
}

func (s *chainOfThoughtStrategy) ProcessResponse(response models.ParsedResponse) (*Result, error) {
	answer, err := answerFrom(response.StructuredData, s.ID())
	if err != nil {
		return nil, err
	}

	reasoning := ""
	if v, ok := response.StructuredData["reasoning"]; ok {
		r, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("strategy %q: reasoning field is %T, want string", s.ID(), v)
		}
		reasoning = r
	}

	return &Result{
		FinalAnswer:   answer,
		ReasoningText: reasoning,
		Metadata:      response.Metadata,
	}, nil
}

// ValidateConfig requires a max_tokens budget large enough for reasoning.
// An absent max_tokens is fine; the provider default applies.
func (s *chainOfThoughtStrategy) ValidateConfig(cfg models.AgentConfig) error {
	if maxTokens, ok := cfg.MaxTokens(); ok && maxTokens < chainOfThoughtMinTokens {
		return models.NewConfigurationFailure(
			fmt.Sprintf("chain_of_thought requires max_tokens >= %d, got %d", chainOfThoughtMinTokens, maxTokens),
			"the strategy needs token budget for both reasoning and the final answer",
		).AsError()
	}
	return nil
}
