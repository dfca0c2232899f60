package main

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for migrations

	"github.com/caliperhq/caliper-engine/pkg/database"
	"github.com/caliperhq/caliper-engine/pkg/llm"
	"github.com/caliperhq/caliper-engine/pkg/repositories"
	"github.com/caliperhq/caliper-engine/pkg/services"
	"github.com/caliperhq/caliper-engine/pkg/strategy"
)

// app wires the full dependency graph for one command invocation:
// database, repositories, LLM factory with its interaction recorder, and
// the services the commands call.
type app struct {
	db       *database.DB
	recorder *llm.AsyncInteractionRecorder

	evaluations services.EvaluationService
	benchmarks  services.BenchmarkService
}

func openApp(ctx context.Context) (*app, error) {
	sqlDB, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database for migrations: %w", err)
	}
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		sqlDB.Close()
		return nil, err
	}
	sqlDB.Close()

	db, err := database.NewConnection(ctx, &database.Config{URL: cfg.DatabaseURL}, logger)
	if err != nil {
		return nil, err
	}

	factoryCfg, err := cfg.FactoryConfig()
	if err != nil {
		db.Close()
		return nil, err
	}

	benchmarkRepo := repositories.NewBenchmarkRepository(db)
	evaluationRepo := repositories.NewEvaluationRepository(db)
	resultRepo := repositories.NewResultRepository(db)
	interactionRepo := repositories.NewInteractionRepository(db)

	recorder := llm.NewAsyncInteractionRecorder(interactionRepo, logger, 0)
	factory := llm.NewClientFactory(factoryCfg, logger)
	factory.SetRecorder(recorder)

	return &app{
		db:       db,
		recorder: recorder,
		evaluations: services.NewEvaluationService(
			evaluationRepo, resultRepo, benchmarkRepo,
			factory, strategy.DefaultRegistry(), nil, logger,
		),
		benchmarks: services.NewBenchmarkService(benchmarkRepo, logger),
	}, nil
}

// Close drains the interaction recorder and releases the pool.
func (a *app) Close() {
	a.recorder.Close()
	a.db.Close()
}
