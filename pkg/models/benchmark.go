package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/caliperhq/caliper-engine/pkg/apperrors"
)

// BenchmarkFormatVersion is the current benchmark file format version.
const BenchmarkFormatVersion = "1.0"

// Question is one immutable benchmark item.
type Question struct {
	// ID is unique within its benchmark.
	ID             string         `json:"id"`
	Text           string         `json:"text"`
	ExpectedAnswer string         `json:"expected_answer"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Benchmark is an immutable, named, ordered list of questions. Evaluations
// reference benchmarks but never own them; a benchmark cannot be deleted
// while evaluations reference it.
type Benchmark struct {
	ID            uuid.UUID  `json:"id"`
	Name          string     `json:"name"`
	Description   string     `json:"description,omitempty"`
	Questions     []Question `json:"questions"`
	FormatVersion string     `json:"format_version"`
	CreatedAt     time.Time  `json:"created_at"`
}

// NewBenchmark validates and creates a benchmark. The question order given
// here is the processing order for every evaluation of this benchmark.
func NewBenchmark(name, description string, questions []Question) (*Benchmark, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: benchmark name is required", apperrors.ErrInvalidInput)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: benchmark %q has no questions", apperrors.ErrInvalidInput, name)
	}

	seen := make(map[string]struct{}, len(questions))
	for i, q := range questions {
		if strings.TrimSpace(q.ID) == "" {
			return nil, fmt.Errorf("%w: question at index %d has no id", apperrors.ErrInvalidInput, i)
		}
		if strings.TrimSpace(q.Text) == "" {
			return nil, fmt.Errorf("%w: question %q has no text", apperrors.ErrInvalidInput, q.ID)
		}
		if strings.TrimSpace(q.ExpectedAnswer) == "" {
			return nil, fmt.Errorf("%w: question %q has no expected answer", apperrors.ErrInvalidInput, q.ID)
		}
		if _, dup := seen[q.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate question id %q", apperrors.ErrInvalidInput, q.ID)
		}
		seen[q.ID] = struct{}{}
	}

	return &Benchmark{
		ID:            uuid.New(),
		Name:          name,
		Description:   description,
		Questions:     questions,
		FormatVersion: BenchmarkFormatVersion,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// QuestionCount returns the number of questions in the benchmark.
func (b *Benchmark) QuestionCount() int {
	return len(b.Questions)
}
