// Package testhelpers provides shared infrastructure for integration tests.
package testhelpers

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/caliperhq/caliper-engine/pkg/database"
)

// PostgresImage is the image used for integration test databases.
const PostgresImage = "postgres:16-alpine"

// TestDB holds a shared test database container and connection pool.
type TestDB struct {
	Container testcontainers.Container
	Pool      *pgxpool.Pool
	ConnStr   string
}

var (
	sharedTestDB     *TestDB
	sharedTestDBOnce sync.Once
	sharedTestDBErr  error
)

// GetTestDB returns a shared PostgreSQL container for integration tests.
// The container is created once per test run, has all migrations applied,
// and is reused across tests.
func GetTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedTestDBOnce.Do(func() {
		sharedTestDB, sharedTestDBErr = setupTestDB()
	})

	if sharedTestDBErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedTestDBErr)
	}

	return sharedTestDB
}

// DB wraps the shared pool in the database handle repositories expect.
func (tdb *TestDB) DB() *database.DB {
	return &database.DB{Pool: tdb.Pool}
}

// TruncateAll empties every engine table so a test starts from a clean
// slate. Cascades cover results and interactions.
func (tdb *TestDB) TruncateAll(t *testing.T) {
	t.Helper()
	_, err := tdb.Pool.Exec(context.Background(),
		`TRUNCATE benchmarks, evaluations, evaluation_question_results, llm_interactions CASCADE`)
	if err != nil {
		t.Fatalf("Failed to truncate tables: %v", err)
	}
}

func setupTestDB() (*TestDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        PostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "caliper_test",
			"POSTGRES_USER":     "caliper",
			"POSTGRES_PASSWORD": "test_password",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://caliper:test_password@%s:%s/caliper_test?sslmode=disable",
		host, port.Port())

	if err := applyMigrations(connStr); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// The container can report ready slightly before it accepts connections.
	var pingErr error
	for i := 0; i < 10; i++ {
		if pingErr = pool.Ping(ctx); pingErr == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if pingErr != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping test database: %w", pingErr)
	}

	return &TestDB{Container: container, Pool: pool, ConnStr: connStr}, nil
}

func applyMigrations(connStr string) error {
	sqlDB, err := sql.Open("pgx", connStr)
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer sqlDB.Close()

	if err := database.RunMigrations(sqlDB, zap.NewNop()); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}
