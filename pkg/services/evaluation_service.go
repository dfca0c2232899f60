// Package services implements the application layer: the evaluation
// orchestrator and benchmark management on top of the repositories and the
// LLM client factory.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/caliperhq/caliper-engine/pkg/apperrors"
	"github.com/caliperhq/caliper-engine/pkg/llm"
	"github.com/caliperhq/caliper-engine/pkg/models"
	"github.com/caliperhq/caliper-engine/pkg/repositories"
	"github.com/caliperhq/caliper-engine/pkg/strategy"
)

// AnswerComparator decides whether an extracted answer matches the expected
// one. The comparison is injectable so benchmarks can bring their own
// correctness rules; the literal actual answer is always persisted.
type AnswerComparator func(actual, expected string) bool

// DefaultAnswerComparator compares answers after trimming whitespace,
// ignoring case.
func DefaultAnswerComparator(actual, expected string) bool {
	return strings.EqualFold(strings.TrimSpace(actual), strings.TrimSpace(expected))
}

// ProgressEvent reports one processed question.
type ProgressEvent struct {
	Processed int
	Total     int
	Message   string
}

// ProgressFunc receives progress events during ExecuteEvaluation. May be nil.
type ProgressFunc func(ProgressEvent)

// Progress is the current completion state of an evaluation.
type Progress struct {
	EvaluationID uuid.UUID               `json:"evaluation_id"`
	Status       models.EvaluationStatus `json:"status"`
	Processed    int                     `json:"processed"`
	Total        int                     `json:"total"`
	Percent      float64                 `json:"percent"`
}

// EvaluationService orchestrates the evaluation lifecycle: creation,
// execution with durable per-question results, interruption, progress, and
// computed aggregates.
type EvaluationService interface {
	// CreateEvaluation validates the agent configuration, resolves the
	// benchmark by name, and persists a new PENDING evaluation. On
	// validation failure no row is created.
	CreateEvaluation(ctx context.Context, cfg models.AgentConfig, benchmarkName string) (*models.Evaluation, error)

	// ExecuteEvaluation runs or resumes the evaluation. Questions with a
	// persisted result are skipped; each newly processed question is
	// persisted in its own transaction before the next one starts. Only one
	// evaluation may execute per process at a time.
	ExecuteEvaluation(ctx context.Context, id uuid.UUID, onProgress ProgressFunc) (*models.EvaluationResults, error)

	// Interrupt signals the running evaluation to stop after the question
	// currently in flight. Returns false when no matching run is active.
	Interrupt(id uuid.UUID) bool

	GetEvaluation(ctx context.Context, id uuid.UUID) (*models.Evaluation, error)
	GetProgress(ctx context.Context, id uuid.UUID) (*Progress, error)
	// GetResults computes the aggregate view from the persisted question
	// results. Nothing is read from the evaluation row except identity.
	GetResults(ctx context.Context, id uuid.UUID) (*models.EvaluationResults, error)
	List(ctx context.Context, filter repositories.EvaluationFilter) ([]*models.Evaluation, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type evaluationService struct {
	evaluationRepo repositories.EvaluationRepository
	resultRepo     repositories.ResultRepository
	benchmarkRepo  repositories.BenchmarkRepository
	factory        llm.Factory
	strategies     *strategy.Registry
	compare        AnswerComparator
	logger         *zap.Logger

	// runMu enforces the one-evaluation-per-process constraint.
	runMu    sync.Mutex
	activeMu sync.Mutex
	active   *activeRun
}

type activeRun struct {
	evaluationID uuid.UUID
	interrupted  atomic.Bool
	cancel       context.CancelFunc
}

// NewEvaluationService creates the evaluation orchestrator. A nil comparator
// falls back to DefaultAnswerComparator.
func NewEvaluationService(
	evaluationRepo repositories.EvaluationRepository,
	resultRepo repositories.ResultRepository,
	benchmarkRepo repositories.BenchmarkRepository,
	factory llm.Factory,
	strategies *strategy.Registry,
	compare AnswerComparator,
	logger *zap.Logger,
) EvaluationService {
	if compare == nil {
		compare = DefaultAnswerComparator
	}
	return &evaluationService{
		evaluationRepo: evaluationRepo,
		resultRepo:     resultRepo,
		benchmarkRepo:  benchmarkRepo,
		factory:        factory,
		strategies:     strategies,
		compare:        compare,
		logger:         logger.Named("evaluation-service"),
	}
}

var _ EvaluationService = (*evaluationService)(nil)

func (s *evaluationService) CreateEvaluation(ctx context.Context, cfg models.AgentConfig, benchmarkName string) (*models.Evaluation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	strat, err := s.strategies.Get(cfg.StrategyID)
	if err != nil {
		return nil, err
	}
	if err := strat.ValidateConfig(cfg); err != nil {
		return nil, err
	}

	// Resolve provider and parsing strategy now so a broken combination is
	// rejected before any row exists.
	provider, parser, err := s.factory.Plan(cfg)
	if err != nil {
		return nil, err
	}

	benchmark, err := s.benchmarkRepo.GetByName(ctx, benchmarkName)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("benchmark %q: %w", benchmarkName, apperrors.ErrNotFound)
		}
		return nil, err
	}

	evaluation := models.NewEvaluation(benchmark.ID, cfg)
	if err := s.evaluationRepo.Create(ctx, evaluation); err != nil {
		return nil, err
	}

	s.logger.Info("created evaluation",
		zap.String("evaluation_id", evaluation.ID.String()),
		zap.String("benchmark", benchmarkName),
		zap.String("strategy", cfg.StrategyID),
		zap.String("model", cfg.ModelName),
		zap.String("provider", provider),
		zap.String("parser", parser))
	return evaluation, nil
}

func (s *evaluationService) ExecuteEvaluation(ctx context.Context, id uuid.UUID, onProgress ProgressFunc) (*models.EvaluationResults, error) {
	if !s.runMu.TryLock() {
		return nil, apperrors.ErrAlreadyRunning
	}
	defer s.runMu.Unlock()

	evaluation, err := s.evaluationRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch evaluation.Status {
	case models.EvaluationStatusCompleted:
		// Re-running a completed evaluation is a no-op: return the stored
		// outcome without a single LLM call.
		return s.GetResults(ctx, id)
	case models.EvaluationStatusFailed:
		return nil, fmt.Errorf("%w: evaluation %s is FAILED and cannot be re-run", apperrors.ErrInvalidInput, id)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	run := &activeRun{evaluationID: id, cancel: cancel}
	s.setActive(run)
	defer s.clearActive()

	benchmark, err := s.benchmarkRepo.GetByID(ctx, evaluation.BenchmarkID)
	if err != nil {
		return nil, err
	}

	strat, err := s.strategies.Get(evaluation.AgentConfig.StrategyID)
	if err != nil {
		return nil, s.failEvaluation(ctx, evaluation, models.FailureReasonFromError(err), err)
	}

	now := time.Now().UTC()
	if evaluation.Status != models.EvaluationStatusRunning {
		if err := evaluation.Start(now); err != nil {
			return nil, err
		}
		if err := s.evaluationRepo.UpdateStatus(ctx, evaluation); err != nil {
			return nil, err
		}
	}

	done, err := s.resultRepo.ProcessedQuestionIDs(ctx, id)
	if err != nil {
		return nil, s.failEvaluation(ctx, evaluation, persistenceFailure(err), err)
	}

	client, err := s.factory.CreateClient(evaluation.AgentConfig)
	if err != nil {
		return nil, s.failEvaluation(ctx, evaluation, models.FailureReasonFromError(err), err)
	}

	opts, err := llm.FromModelParameters(evaluation.AgentConfig.ModelParameters)
	if err != nil {
		return nil, s.failEvaluation(ctx, evaluation, models.FailureReasonFromError(err), err)
	}
	opts.SetSchemaID(strat.OutputSchemaID())

	total := len(benchmark.Questions)
	processed := len(done)
	var fatal *models.FailureReason

	s.logger.Info("executing evaluation",
		zap.String("evaluation_id", id.String()),
		zap.String("benchmark", benchmark.Name),
		zap.Int("questions", total),
		zap.Int("already_processed", processed))

	interrupted := false
	for _, question := range benchmark.Questions {
		if run.interrupted.Load() || runCtx.Err() != nil {
			interrupted = true
			break
		}
		if _, ok := done[question.ID]; ok {
			continue
		}

		result, failure := s.processQuestion(runCtx, evaluation, strat, client, question, opts)
		if result == nil && failure == nil {
			// Cancelled mid-call: no partial row for this question.
			interrupted = true
			break
		}
		if failure != nil && failure.IsFatal() {
			fatal = failure
			break
		}

		if err := s.resultRepo.Create(ctx, result); err != nil {
			fatal = persistenceFailure(err)
			break
		}
		processed++

		if onProgress != nil {
			onProgress(ProgressEvent{
				Processed: processed,
				Total:     total,
				Message:   progressMessage(question.ID, result),
			})
		}
	}

	finishedAt := time.Now().UTC()
	switch {
	case fatal != nil:
		if err := evaluation.Fail(fatal, finishedAt); err != nil {
			return nil, err
		}
		if err := s.evaluationRepo.UpdateStatus(ctx, evaluation); err != nil {
			return nil, err
		}
		s.logger.Error("evaluation failed",
			zap.String("evaluation_id", id.String()),
			zap.String("category", string(fatal.Category)),
			zap.String("reason", fatal.Description))
		return nil, fatal.AsError()

	case interrupted || run.interrupted.Load():
		if err := evaluation.Interrupt(finishedAt); err != nil {
			return nil, err
		}
		if err := s.evaluationRepo.UpdateStatus(ctx, evaluation); err != nil {
			return nil, err
		}
		s.logger.Info("evaluation interrupted",
			zap.String("evaluation_id", id.String()),
			zap.Int("processed", processed),
			zap.Int("total", total))
		return s.GetResults(ctx, id)

	default:
		if err := evaluation.Complete(finishedAt); err != nil {
			return nil, err
		}
		if err := s.evaluationRepo.UpdateStatus(ctx, evaluation); err != nil {
			return nil, err
		}
		s.logger.Info("evaluation completed",
			zap.String("evaluation_id", id.String()),
			zap.Int("processed", processed))
		return s.GetResults(ctx, id)
	}
}

// processQuestion drives one question through prompt, provider call, and
// response processing. It returns either a result row to persist, a fatal
// failure, or (nil, nil) when the call was cancelled by an interrupt.
func (s *evaluationService) processQuestion(
	ctx context.Context,
	evaluation *models.Evaluation,
	strat strategy.Strategy,
	client llm.Client,
	question models.Question,
	opts llm.Options,
) (*models.EvaluationQuestionResult, *models.FailureReason) {
	messages := strat.BuildPrompt(question, evaluation.AgentConfig)

	callCtx := llm.WithRecordingScope(ctx, llm.RecordingScope{
		EvaluationID: evaluation.ID,
		QuestionID:   question.ID,
	})

	start := time.Now()
	response, err := client.ChatCompletion(callCtx, evaluation.AgentConfig.ModelName, messages, opts)
	elapsedMs := time.Since(start).Milliseconds()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, nil
		}
		reason := models.FailureReasonFromError(err)
		if reason == nil {
			reason = models.NewFailureReason(models.FailureUnknown, "llm call failed", err.Error(), true)
		}
		if reason.IsFatal() {
			return nil, reason
		}
		s.logger.Warn("question failed",
			zap.String("evaluation_id", evaluation.ID.String()),
			zap.String("question_id", question.ID),
			zap.String("category", string(reason.Category)),
			zap.String("reason", reason.Description))
		return models.NewFailedQuestionResult(evaluation.ID, question, reason, elapsedMs, strat.ID()), nil
	}

	processed, err := strat.ProcessResponse(*response)
	if err != nil {
		reason := models.FailureReasonFromError(err)
		if reason == nil {
			reason = models.NewFailureReason(models.FailureParsingError,
				fmt.Sprintf("strategy %q could not process the response", strat.ID()),
				err.Error(), false)
		}
		return models.NewFailedQuestionResult(evaluation.ID, question, reason, elapsedMs, strat.ID()), nil
	}

	isCorrect := s.compare(processed.FinalAnswer, question.ExpectedAnswer)
	trace := models.ReasoningTrace{
		ApproachType:  strat.ID(),
		ReasoningText: processed.ReasoningText,
		Metadata:      processed.Metadata,
	}

	result, err := models.NewQuestionResult(evaluation.ID, question, processed.FinalAnswer, isCorrect, elapsedMs, trace)
	if err != nil {
		// Non-negative by construction; a failure here is a programming error.
		return nil, persistenceFailure(err)
	}
	return result, nil
}

func (s *evaluationService) Interrupt(id uuid.UUID) bool {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	if s.active == nil || s.active.evaluationID != id {
		return false
	}
	s.active.interrupted.Store(true)
	s.active.cancel()
	return true
}

func (s *evaluationService) GetEvaluation(ctx context.Context, id uuid.UUID) (*models.Evaluation, error) {
	return s.evaluationRepo.GetByID(ctx, id)
}

func (s *evaluationService) GetProgress(ctx context.Context, id uuid.UUID) (*Progress, error) {
	evaluation, err := s.evaluationRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	benchmark, err := s.benchmarkRepo.GetByID(ctx, evaluation.BenchmarkID)
	if err != nil {
		return nil, err
	}
	count, err := s.resultRepo.CountByEvaluation(ctx, id)
	if err != nil {
		return nil, err
	}

	progress := &Progress{
		EvaluationID: id,
		Status:       evaluation.Status,
		Processed:    count,
		Total:        benchmark.QuestionCount(),
	}
	if progress.Total > 0 {
		progress.Percent = float64(progress.Processed) / float64(progress.Total) * 100
	}
	return progress, nil
}

func (s *evaluationService) GetResults(ctx context.Context, id uuid.UUID) (*models.EvaluationResults, error) {
	if _, err := s.evaluationRepo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	results, err := s.resultRepo.ListByEvaluation(ctx, id)
	if err != nil {
		return nil, err
	}
	return models.ComputeResults(id, results), nil
}

func (s *evaluationService) List(ctx context.Context, filter repositories.EvaluationFilter) ([]*models.Evaluation, error) {
	return s.evaluationRepo.List(ctx, filter)
}

func (s *evaluationService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.evaluationRepo.Delete(ctx, id)
}

func (s *evaluationService) setActive(run *activeRun) {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	s.active = run
}

func (s *evaluationService) clearActive() {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	s.active = nil
}

func persistenceFailure(err error) *models.FailureReason {
	if errors.Is(err, apperrors.ErrConflict) {
		return models.NewConfigurationFailure("question result already exists", err.Error())
	}
	return models.NewFailureReason(models.FailureUnknown, "failed to persist question result", err.Error(), false)
}

// failEvaluation marks the evaluation FAILED when it is already RUNNING and
// returns the original error. Pre-run failures (status still PENDING or
// INTERRUPTED) leave the evaluation resumable.
func (s *evaluationService) failEvaluation(ctx context.Context, evaluation *models.Evaluation, reason *models.FailureReason, cause error) error {
	if evaluation.Status != models.EvaluationStatusRunning {
		return cause
	}
	if reason == nil {
		reason = models.NewFailureReason(models.FailureUnknown, "evaluation failed", cause.Error(), false)
	}
	if err := evaluation.Fail(reason, time.Now().UTC()); err != nil {
		return cause
	}
	if err := s.evaluationRepo.UpdateStatus(ctx, evaluation); err != nil {
		s.logger.Error("failed to persist FAILED status",
			zap.String("evaluation_id", evaluation.ID.String()),
			zap.Error(err))
	}
	return cause
}

func progressMessage(questionID string, result *models.EvaluationQuestionResult) string {
	switch {
	case result.Failed():
		return fmt.Sprintf("question %s error: %s", questionID, result.ErrorMessage)
	case result.IsCorrect:
		return fmt.Sprintf("question %s correct", questionID)
	default:
		return fmt.Sprintf("question %s incorrect", questionID)
	}
}
