package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/caliperhq/caliper-engine/pkg/apperrors"
	"github.com/caliperhq/caliper-engine/pkg/models"
	"github.com/caliperhq/caliper-engine/pkg/repositories"
)

// benchmarkFile is the on-disk benchmark format.
type benchmarkFile struct {
	FormatVersion string `json:"format_version"`
	Questions     []struct {
		ID             string         `json:"id"`
		Text           string         `json:"text"`
		ExpectedAnswer string         `json:"expected_answer"`
		Metadata       map[string]any `json:"metadata,omitempty"`
	} `json:"questions"`
}

// BenchmarkService manages benchmark ingestion and lookup. Benchmarks are
// immutable once created.
type BenchmarkService interface {
	// CreateFromFile loads a benchmark question file, validates it, and
	// persists the benchmark atomically.
	CreateFromFile(ctx context.Context, name, description, path string) (*models.Benchmark, error)
	Get(ctx context.Context, name string) (*models.Benchmark, error)
	List(ctx context.Context) ([]*models.Benchmark, error)
	// Delete removes the benchmark by name. Benchmarks referenced by
	// evaluations cannot be deleted.
	Delete(ctx context.Context, name string) error
}

type benchmarkService struct {
	repo   repositories.BenchmarkRepository
	logger *zap.Logger
}

// NewBenchmarkService creates a new benchmark service.
func NewBenchmarkService(repo repositories.BenchmarkRepository, logger *zap.Logger) BenchmarkService {
	return &benchmarkService{repo: repo, logger: logger.Named("benchmark-service")}
}

var _ BenchmarkService = (*benchmarkService)(nil)

func (s *benchmarkService) CreateFromFile(ctx context.Context, name, description, path string) (*models.Benchmark, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading benchmark file %q: %v", apperrors.ErrInvalidInput, path, err)
	}

	var file benchmarkFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: benchmark file %q is not valid JSON: %v", apperrors.ErrInvalidInput, path, err)
	}
	if file.FormatVersion != "" && file.FormatVersion != models.BenchmarkFormatVersion {
		return nil, fmt.Errorf("%w: unsupported benchmark format version %q (supported: %s)",
			apperrors.ErrInvalidInput, file.FormatVersion, models.BenchmarkFormatVersion)
	}

	questions := make([]models.Question, len(file.Questions))
	for i, q := range file.Questions {
		questions[i] = models.Question{
			ID:             q.ID,
			Text:           q.Text,
			ExpectedAnswer: q.ExpectedAnswer,
			Metadata:       q.Metadata,
		}
	}

	benchmark, err := models.NewBenchmark(name, description, questions)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, benchmark); err != nil {
		return nil, err
	}

	s.logger.Info("created benchmark",
		zap.String("name", name),
		zap.Int("questions", len(questions)))
	return benchmark, nil
}

func (s *benchmarkService) Get(ctx context.Context, name string) (*models.Benchmark, error) {
	return s.repo.GetByName(ctx, name)
}

func (s *benchmarkService) List(ctx context.Context) ([]*models.Benchmark, error) {
	return s.repo.List(ctx)
}

func (s *benchmarkService) Delete(ctx context.Context, name string) error {
	benchmark, err := s.repo.GetByName(ctx, name)
	if err != nil {
		return err
	}
	return s.repo.Delete(ctx, benchmark.ID)
}
