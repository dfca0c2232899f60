// Package repositories provides PostgreSQL data access for benchmarks,
// evaluations, their per-question results, and the LLM interaction audit
// trail.
package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/caliperhq/caliper-engine/pkg/apperrors"
	"github.com/caliperhq/caliper-engine/pkg/database"
	"github.com/caliperhq/caliper-engine/pkg/models"
)

// PostgreSQL error codes the repositories translate into domain errors.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// BenchmarkRepository defines data access for benchmarks. Benchmarks are
// immutable after creation: there is no Update.
type BenchmarkRepository interface {
	// Create persists the benchmark and all its questions in one insert.
	// A name collision returns apperrors.ErrConflict.
	Create(ctx context.Context, benchmark *models.Benchmark) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Benchmark, error)
	GetByName(ctx context.Context, name string) (*models.Benchmark, error)
	List(ctx context.Context) ([]*models.Benchmark, error)
	// Delete removes the benchmark. Deleting a benchmark that evaluations
	// still reference returns apperrors.ErrBenchmarkInUse.
	Delete(ctx context.Context, id uuid.UUID) error
}

type benchmarkRepository struct {
	db *database.DB
}

// NewBenchmarkRepository creates a new benchmark repository.
func NewBenchmarkRepository(db *database.DB) BenchmarkRepository {
	return &benchmarkRepository{db: db}
}

var _ BenchmarkRepository = (*benchmarkRepository)(nil)

func (r *benchmarkRepository) Create(ctx context.Context, benchmark *models.Benchmark) error {
	questions, err := json.Marshal(benchmark.Questions)
	if err != nil {
		return fmt.Errorf("failed to marshal questions: %w", err)
	}

	query := `
		INSERT INTO benchmarks (id, name, description, questions, format_version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err = r.db.Exec(ctx, query,
		benchmark.ID,
		benchmark.Name,
		benchmark.Description,
		questions,
		benchmark.FormatVersion,
		benchmark.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("benchmark %q: %w", benchmark.Name, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to create benchmark: %w", err)
	}
	return nil
}

func (r *benchmarkRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Benchmark, error) {
	query := `
		SELECT id, name, description, questions, format_version, created_at
		FROM benchmarks
		WHERE id = $1`

	return scanBenchmark(r.db.QueryRow(ctx, query, id))
}

func (r *benchmarkRepository) GetByName(ctx context.Context, name string) (*models.Benchmark, error) {
	query := `
		SELECT id, name, description, questions, format_version, created_at
		FROM benchmarks
		WHERE name = $1`

	return scanBenchmark(r.db.QueryRow(ctx, query, name))
}

func (r *benchmarkRepository) List(ctx context.Context) ([]*models.Benchmark, error) {
	query := `
		SELECT id, name, description, questions, format_version, created_at
		FROM benchmarks
		ORDER BY name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list benchmarks: %w", err)
	}
	defer rows.Close()

	var benchmarks []*models.Benchmark
	for rows.Next() {
		b, err := scanBenchmark(rows)
		if err != nil {
			return nil, err
		}
		benchmarks = append(benchmarks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate benchmarks: %w", err)
	}
	return benchmarks, nil
}

func (r *benchmarkRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM benchmarks WHERE id = $1`, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return apperrors.ErrBenchmarkInUse
		}
		return fmt.Errorf("failed to delete benchmark: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func scanBenchmark(row pgx.Row) (*models.Benchmark, error) {
	var b models.Benchmark
	var questions []byte

	err := row.Scan(
		&b.ID,
		&b.Name,
		&b.Description,
		&questions,
		&b.FormatVersion,
		&b.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan benchmark: %w", err)
	}

	if err := json.Unmarshal(questions, &b.Questions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal questions: %w", err)
	}
	return &b, nil
}
