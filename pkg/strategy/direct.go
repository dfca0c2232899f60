package strategy

import (
	"fmt"

	"github.com/caliperhq/caliper-engine/pkg/models"
)

const directPromptFormat = "Answer the following question directly:\n\nQuestion: %s"

// directStrategy asks for the answer with no externalized reasoning.
type directStrategy struct{}

// NewDirectStrategy returns the "none" strategy.
func NewDirectStrategy() Strategy {
	return &directStrategy{}
}

func (s *directStrategy) ID() string {
	return StrategyNone
}

func (s *directStrategy) OutputSchemaID() string {
	return "direct_answer"
}

func (s *directStrategy) BuildPrompt(question models.Question, _ models.AgentConfig) []models.Message {
	return []models.Message{
		models.UserMessage(fmt.Sprintf(directPromptFormat, question.Text)),
	}
}

func (s *directStrategy) ProcessResponse(response models.ParsedResponse) (*Result, error) {
	answer, err := answerFrom(response.StructuredData, s.ID())
	if err != nil {
		return nil, err
	}
	return &Result{
		FinalAnswer:   answer,
		ReasoningText: "",
		Metadata:      response.Metadata,
	}, nil
}

func (s *directStrategy) ValidateConfig(_ models.AgentConfig) error {
	return nil
}
