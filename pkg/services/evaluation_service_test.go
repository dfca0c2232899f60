package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/caliperhq/caliper-engine/pkg/apperrors"
	"github.com/caliperhq/caliper-engine/pkg/llm"
	"github.com/caliperhq/caliper-engine/pkg/models"
	"github.com/caliperhq/caliper-engine/pkg/repositories"
	"github.com/caliperhq/caliper-engine/pkg/strategy"
)

// ----------------------------------------------------------------------------
// In-memory repository mocks
// ----------------------------------------------------------------------------

type mockEvaluationRepo struct {
	mu          sync.Mutex
	evaluations map[uuid.UUID]models.Evaluation
}

func newMockEvaluationRepo() *mockEvaluationRepo {
	return &mockEvaluationRepo{evaluations: make(map[uuid.UUID]models.Evaluation)}
}

func (m *mockEvaluationRepo) Create(_ context.Context, e *models.Evaluation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evaluations[e.ID] = *e
	return nil
}

func (m *mockEvaluationRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Evaluation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.evaluations[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	copied := e
	return &copied, nil
}

func (m *mockEvaluationRepo) UpdateStatus(_ context.Context, e *models.Evaluation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.evaluations[e.ID]; !ok {
		return apperrors.ErrNotFound
	}
	m.evaluations[e.ID] = *e
	return nil
}

func (m *mockEvaluationRepo) List(_ context.Context, filter repositories.EvaluationFilter) ([]*models.Evaluation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Evaluation
	for id := range m.evaluations {
		e := m.evaluations[id]
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		if filter.BenchmarkID != uuid.Nil && e.BenchmarkID != filter.BenchmarkID {
			continue
		}
		copied := e
		out = append(out, &copied)
	}
	return out, nil
}

func (m *mockEvaluationRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.evaluations[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.evaluations, id)
	return nil
}

type mockResultRepo struct {
	mu      sync.Mutex
	results []models.EvaluationQuestionResult
}

func (m *mockResultRepo) Create(_ context.Context, r *models.EvaluationQuestionResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.results {
		if existing.EvaluationID == r.EvaluationID && existing.QuestionID == r.QuestionID {
			return apperrors.ErrConflict
		}
	}
	m.results = append(m.results, *r)
	return nil
}

func (m *mockResultRepo) ListByEvaluation(_ context.Context, evaluationID uuid.UUID) ([]models.EvaluationQuestionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.EvaluationQuestionResult
	for _, r := range m.results {
		if r.EvaluationID == evaluationID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockResultRepo) ProcessedQuestionIDs(_ context.Context, evaluationID uuid.UUID) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	done := make(map[string]struct{})
	for _, r := range m.results {
		if r.EvaluationID == evaluationID {
			done[r.QuestionID] = struct{}{}
		}
	}
	return done, nil
}

func (m *mockResultRepo) CountByEvaluation(_ context.Context, evaluationID uuid.UUID) (int, error) {
	ids, _ := m.ProcessedQuestionIDs(context.Background(), evaluationID)
	return len(ids), nil
}

type mockBenchmarkRepo struct {
	mu         sync.Mutex
	benchmarks map[uuid.UUID]*models.Benchmark
}

func newMockBenchmarkRepo() *mockBenchmarkRepo {
	return &mockBenchmarkRepo{benchmarks: make(map[uuid.UUID]*models.Benchmark)}
}

func (m *mockBenchmarkRepo) Create(_ context.Context, b *models.Benchmark) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.benchmarks {
		if existing.Name == b.Name {
			return apperrors.ErrConflict
		}
	}
	m.benchmarks[b.ID] = b
	return nil
}

func (m *mockBenchmarkRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Benchmark, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.benchmarks[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return b, nil
}

func (m *mockBenchmarkRepo) GetByName(_ context.Context, name string) (*models.Benchmark, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.benchmarks {
		if b.Name == name {
			return b, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockBenchmarkRepo) List(_ context.Context) ([]*models.Benchmark, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Benchmark
	for _, b := range m.benchmarks {
		out = append(out, b)
	}
	return out, nil
}

func (m *mockBenchmarkRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.benchmarks[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.benchmarks, id)
	return nil
}

var (
	_ repositories.EvaluationRepository = (*mockEvaluationRepo)(nil)
	_ repositories.ResultRepository     = (*mockResultRepo)(nil)
	_ repositories.BenchmarkRepository  = (*mockBenchmarkRepo)(nil)
)

// ----------------------------------------------------------------------------
// Fixture
// ----------------------------------------------------------------------------

type fixture struct {
	svc        EvaluationService
	evalRepo   *mockEvaluationRepo
	resultRepo *mockResultRepo
	benchRepo  *mockBenchmarkRepo
	client     *llm.MockClient
}

func newFixture(t *testing.T, questions []models.Question) *fixture {
	t.Helper()

	benchmark, err := models.NewBenchmark("MINI", "test benchmark", questions)
	require.NoError(t, err)

	benchRepo := newMockBenchmarkRepo()
	require.NoError(t, benchRepo.Create(context.Background(), benchmark))

	client := &llm.MockClient{}
	factory := &llm.MockFactory{Client: client}

	f := &fixture{
		evalRepo:   newMockEvaluationRepo(),
		resultRepo: &mockResultRepo{},
		benchRepo:  benchRepo,
		client:     client,
	}
	f.svc = NewEvaluationService(
		f.evalRepo, f.resultRepo, f.benchRepo,
		factory, strategy.DefaultRegistry(), nil, zap.NewNop(),
	)
	return f
}

func singleQuestion() []models.Question {
	return []models.Question{{ID: "1", Text: "What is 2+2?", ExpectedAnswer: "4"}}
}

func numberedQuestions(n int) []models.Question {
	questions := make([]models.Question, n)
	for i := range questions {
		questions[i] = models.Question{
			ID:             fmt.Sprintf("%d", i+1),
			Text:           fmt.Sprintf("Question %d", i+1),
			ExpectedAnswer: "4",
		}
	}
	return questions
}

func answerResponse(answer string) *models.ParsedResponse {
	return &models.ParsedResponse{
		Content:        fmt.Sprintf(`{"answer":%q}`, answer),
		StructuredData: map[string]any{"answer": answer},
	}
}

// ----------------------------------------------------------------------------
// Scenarios
// ----------------------------------------------------------------------------

func TestExecuteEvaluation_DirectStrategyHappyPath(t *testing.T) {
	f := newFixture(t, singleQuestion())
	f.client.ChatCompletionFunc = func(context.Context, string, []models.Message, llm.Options) (*models.ParsedResponse, error) {
		return answerResponse("4"), nil
	}

	evaluation, err := f.svc.CreateEvaluation(context.Background(), models.AgentConfig{
		StrategyID: strategy.StrategyNone,
		ModelName:  "gpt-4",
		Provider:   "openai",
	}, "MINI")
	require.NoError(t, err)
	assert.Equal(t, models.EvaluationStatusPending, evaluation.Status)

	results, err := f.svc.ExecuteEvaluation(context.Background(), evaluation.ID, nil)
	require.NoError(t, err)

	stored, err := f.svc.GetEvaluation(context.Background(), evaluation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EvaluationStatusCompleted, stored.Status)
	require.NotNil(t, stored.StartedAt)
	require.NotNil(t, stored.CompletedAt)
	assert.Nil(t, stored.FailureReason)

	require.Len(t, results.Results, 1)
	row := results.Results[0]
	assert.Equal(t, "4", row.ActualAnswer)
	assert.True(t, row.IsCorrect)
	assert.Empty(t, row.ErrorMessage)
	assert.Equal(t, strategy.StrategyNone, row.ReasoningTrace.ApproachType)
	assert.Empty(t, row.ReasoningTrace.ReasoningText)
	assert.Equal(t, 1.0, results.Accuracy)
}

func TestExecuteEvaluation_ChainOfThoughtWrongAnswer(t *testing.T) {
	f := newFixture(t, singleQuestion())
	f.client.ChatCompletionFunc = func(context.Context, string, []models.Message, llm.Options) (*models.ParsedResponse, error) {
		return &models.ParsedResponse{
			Content:        `{"answer":"5","reasoning":"I miscounted"}`,
			StructuredData: map[string]any{"answer": "5", "reasoning": "I miscounted"},
		}, nil
	}

	evaluation, err := f.svc.CreateEvaluation(context.Background(), models.AgentConfig{
		StrategyID: strategy.StrategyChainOfThought,
		ModelName:  "claude-3-sonnet",
		Provider:   "anthropic",
	}, "MINI")
	require.NoError(t, err)

	results, err := f.svc.ExecuteEvaluation(context.Background(), evaluation.ID, nil)
	require.NoError(t, err)

	require.Len(t, results.Results, 1)
	row := results.Results[0]
	assert.Equal(t, "5", row.ActualAnswer)
	assert.False(t, row.IsCorrect)
	assert.Equal(t, "I miscounted", row.ReasoningTrace.ReasoningText)
	assert.Equal(t, strategy.StrategyChainOfThought, row.ReasoningTrace.ApproachType)
	assert.Equal(t, 0.0, results.Accuracy)
}

func TestExecuteEvaluation_PerQuestionParseFailureContinues(t *testing.T) {
	f := newFixture(t, numberedQuestions(3))
	f.client.ChatCompletionFunc = func(_ context.Context, _ string, messages []models.Message, _ llm.Options) (*models.ParsedResponse, error) {
		if strings.Contains(messages[0].Content, "Question 2") {
			return nil, models.NewFailureReason(models.FailureParsingError,
				"post_process failed at response_empty",
				"content was empty", false).AsError()
		}
		return answerResponse("4"), nil
	}

	evaluation, err := f.svc.CreateEvaluation(context.Background(), models.AgentConfig{
		StrategyID: strategy.StrategyNone,
		ModelName:  "gpt-4",
	}, "MINI")
	require.NoError(t, err)

	results, err := f.svc.ExecuteEvaluation(context.Background(), evaluation.ID, nil)
	require.NoError(t, err)

	stored, err := f.svc.GetEvaluation(context.Background(), evaluation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EvaluationStatusCompleted, stored.Status)

	require.Len(t, results.Results, 3)
	byQuestion := make(map[string]models.EvaluationQuestionResult)
	for _, r := range results.Results {
		byQuestion[r.QuestionID] = r
	}
	assert.Contains(t, byQuestion["2"].ErrorMessage, "response_empty")
	assert.False(t, byQuestion["2"].IsCorrect)
	assert.Empty(t, byQuestion["2"].ActualAnswer)
	assert.True(t, byQuestion["1"].IsCorrect)
	assert.True(t, byQuestion["3"].IsCorrect)
	assert.InDelta(t, 2.0/3.0, results.Accuracy, 1e-9)
	assert.Equal(t, 1, results.ErrorCount)
}

func TestExecuteEvaluation_InterruptThenResume(t *testing.T) {
	f := newFixture(t, numberedQuestions(5))
	f.client.ChatCompletionFunc = func(context.Context, string, []models.Message, llm.Options) (*models.ParsedResponse, error) {
		return answerResponse("4"), nil
	}

	evaluation, err := f.svc.CreateEvaluation(context.Background(), models.AgentConfig{
		StrategyID: strategy.StrategyNone,
		ModelName:  "gpt-4",
	}, "MINI")
	require.NoError(t, err)

	// Interrupt after the second processed question.
	_, err = f.svc.ExecuteEvaluation(context.Background(), evaluation.ID, func(event ProgressEvent) {
		if event.Processed == 2 {
			assert.True(t, f.svc.Interrupt(evaluation.ID))
		}
	})
	require.NoError(t, err)

	stored, err := f.svc.GetEvaluation(context.Background(), evaluation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EvaluationStatusInterrupted, stored.Status)
	require.NotNil(t, stored.CompletedAt)

	interrupted, err := f.svc.GetResults(context.Background(), evaluation.ID)
	require.NoError(t, err)
	require.Len(t, interrupted.Results, 2)
	assert.Equal(t, 2, f.client.ChatCompletionCalls)

	processedAt := make(map[string]time.Time)
	for _, r := range interrupted.Results {
		processedAt[r.QuestionID] = r.ProcessedAt
	}

	// Resume: exactly questions 3..5 are called, earlier rows untouched.
	results, err := f.svc.ExecuteEvaluation(context.Background(), evaluation.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, f.client.ChatCompletionCalls)
	require.Len(t, results.Results, 5)

	stored, err = f.svc.GetEvaluation(context.Background(), evaluation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EvaluationStatusCompleted, stored.Status)

	for _, r := range results.Results {
		if previous, ok := processedAt[r.QuestionID]; ok {
			assert.Equal(t, previous, r.ProcessedAt, "question %s was re-processed", r.QuestionID)
		}
	}
}

func TestExecuteEvaluation_FatalProviderErrorAborts(t *testing.T) {
	f := newFixture(t, numberedQuestions(3))
	calls := 0
	f.client.ChatCompletionFunc = func(context.Context, string, []models.Message, llm.Options) (*models.ParsedResponse, error) {
		calls++
		if calls >= 2 {
			return nil, models.NewFailureReason(models.FailureAuthenticationError,
				"authentication failed", "401 unauthorized", false).AsError()
		}
		return answerResponse("4"), nil
	}

	evaluation, err := f.svc.CreateEvaluation(context.Background(), models.AgentConfig{
		StrategyID: strategy.StrategyNone,
		ModelName:  "gpt-4",
	}, "MINI")
	require.NoError(t, err)

	_, err = f.svc.ExecuteEvaluation(context.Background(), evaluation.ID, nil)
	require.Error(t, err)

	reason := models.FailureReasonFromError(err)
	require.NotNil(t, reason)
	assert.Equal(t, models.FailureAuthenticationError, reason.Category)
	assert.False(t, reason.Recoverable)

	stored, err := f.svc.GetEvaluation(context.Background(), evaluation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EvaluationStatusFailed, stored.Status)
	require.NotNil(t, stored.FailureReason)
	assert.Equal(t, models.FailureAuthenticationError, stored.FailureReason.Category)

	// Prior rows are preserved; the failing question has no row.
	results, err := f.svc.GetResults(context.Background(), evaluation.ID)
	require.NoError(t, err)
	require.Len(t, results.Results, 1)
	assert.Equal(t, "1", results.Results[0].QuestionID)
}

func TestExecuteEvaluation_PromptFidelity(t *testing.T) {
	f := newFixture(t, singleQuestion())
	f.client.ChatCompletionFunc = func(context.Context, string, []models.Message, llm.Options) (*models.ParsedResponse, error) {
		return answerResponse("4"), nil
	}

	cfg := models.AgentConfig{
		StrategyID:      strategy.StrategyNone,
		ModelName:       "claude-3-sonnet",
		Provider:        "anthropic",
		ParsingStrategy: "post_process",
	}
	evaluation, err := f.svc.CreateEvaluation(context.Background(), cfg, "MINI")
	require.NoError(t, err)

	_, err = f.svc.ExecuteEvaluation(context.Background(), evaluation.ID, nil)
	require.NoError(t, err)

	strat, err := strategy.DefaultRegistry().Get(strategy.StrategyNone)
	require.NoError(t, err)
	expected := strat.BuildPrompt(singleQuestion()[0], cfg)

	assert.Equal(t, expected, f.client.LastMessages)
	for _, message := range f.client.LastMessages {
		assert.NotContains(t, message.Content, "JSON schema")
		assert.NotContains(t, message.Content, "respond with valid JSON")
	}
}

// ----------------------------------------------------------------------------
// Laws and boundaries
// ----------------------------------------------------------------------------

func TestExecuteEvaluation_CompletedRunIsNoOp(t *testing.T) {
	f := newFixture(t, singleQuestion())
	f.client.ChatCompletionFunc = func(context.Context, string, []models.Message, llm.Options) (*models.ParsedResponse, error) {
		return answerResponse("4"), nil
	}

	evaluation, err := f.svc.CreateEvaluation(context.Background(), models.AgentConfig{
		StrategyID: strategy.StrategyNone,
		ModelName:  "gpt-4",
	}, "MINI")
	require.NoError(t, err)

	_, err = f.svc.ExecuteEvaluation(context.Background(), evaluation.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, f.client.ChatCompletionCalls)

	results, err := f.svc.ExecuteEvaluation(context.Background(), evaluation.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, f.client.ChatCompletionCalls, "re-run made LLM calls")
	assert.Equal(t, 1, results.TotalQuestions)
}

func TestExecuteEvaluation_FailedRunIsRejected(t *testing.T) {
	f := newFixture(t, singleQuestion())
	f.client.ChatCompletionFunc = func(context.Context, string, []models.Message, llm.Options) (*models.ParsedResponse, error) {
		return nil, models.NewFailureReason(models.FailureAuthenticationError,
			"authentication failed", "", false).AsError()
	}

	evaluation, err := f.svc.CreateEvaluation(context.Background(), models.AgentConfig{
		StrategyID: strategy.StrategyNone,
		ModelName:  "gpt-4",
	}, "MINI")
	require.NoError(t, err)

	_, err = f.svc.ExecuteEvaluation(context.Background(), evaluation.ID, nil)
	require.Error(t, err)

	_, err = f.svc.ExecuteEvaluation(context.Background(), evaluation.ID, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestExecuteEvaluation_RunGuardRejectsConcurrentRuns(t *testing.T) {
	f := newFixture(t, singleQuestion())
	started := make(chan struct{})
	release := make(chan struct{})
	f.client.ChatCompletionFunc = func(ctx context.Context, _ string, _ []models.Message, _ llm.Options) (*models.ParsedResponse, error) {
		close(started)
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return answerResponse("4"), nil
	}

	evaluation, err := f.svc.CreateEvaluation(context.Background(), models.AgentConfig{
		StrategyID: strategy.StrategyNone,
		ModelName:  "gpt-4",
	}, "MINI")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.ExecuteEvaluation(context.Background(), evaluation.ID, nil)
		done <- err
	}()

	<-started
	_, err = f.svc.ExecuteEvaluation(context.Background(), evaluation.ID, nil)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyRunning)

	close(release)
	require.NoError(t, <-done)
}

func TestCreateEvaluation_ChainOfThoughtTokenBudget(t *testing.T) {
	f := newFixture(t, singleQuestion())

	_, err := f.svc.CreateEvaluation(context.Background(), models.AgentConfig{
		StrategyID:      strategy.StrategyChainOfThought,
		ModelName:       "claude-3-sonnet",
		ModelParameters: map[string]any{"max_tokens": 100},
	}, "MINI")
	require.Error(t, err)

	reason := models.FailureReasonFromError(err)
	require.NotNil(t, reason)
	assert.Equal(t, models.FailureConfigurationError, reason.Category)

	// No row was created.
	assert.Empty(t, f.evalRepo.evaluations)
}

func TestCreateEvaluation_UnknownBenchmark(t *testing.T) {
	f := newFixture(t, singleQuestion())

	_, err := f.svc.CreateEvaluation(context.Background(), models.AgentConfig{
		StrategyID: strategy.StrategyNone,
		ModelName:  "gpt-4",
	}, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Empty(t, f.evalRepo.evaluations)
}

func TestCreateEvaluation_UnknownStrategy(t *testing.T) {
	f := newFixture(t, singleQuestion())

	_, err := f.svc.CreateEvaluation(context.Background(), models.AgentConfig{
		StrategyID: "tree_of_thought",
		ModelName:  "gpt-4",
	}, "MINI")
	require.Error(t, err)

	reason := models.FailureReasonFromError(err)
	require.NotNil(t, reason)
	assert.Equal(t, models.FailureConfigurationError, reason.Category)
	assert.Empty(t, f.evalRepo.evaluations)
}

func TestExecuteEvaluation_MidCallCancellationWritesNoPartialRow(t *testing.T) {
	f := newFixture(t, numberedQuestions(3))

	evaluation, err := f.svc.CreateEvaluation(context.Background(), models.AgentConfig{
		StrategyID: strategy.StrategyNone,
		ModelName:  "gpt-4",
	}, "MINI")
	require.NoError(t, err)

	calls := 0
	f.client.ChatCompletionFunc = func(ctx context.Context, _ string, _ []models.Message, _ llm.Options) (*models.ParsedResponse, error) {
		calls++
		if calls == 2 {
			// Simulate an in-flight call cancelled by Interrupt.
			f.svc.Interrupt(evaluation.ID)
			return nil, context.Canceled
		}
		return answerResponse("4"), nil
	}

	_, err = f.svc.ExecuteEvaluation(context.Background(), evaluation.ID, nil)
	require.NoError(t, err)

	stored, err := f.svc.GetEvaluation(context.Background(), evaluation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EvaluationStatusInterrupted, stored.Status)

	results, err := f.svc.GetResults(context.Background(), evaluation.ID)
	require.NoError(t, err)
	require.Len(t, results.Results, 1, "cancelled call must not leave a row")
}

func TestGetProgress(t *testing.T) {
	f := newFixture(t, numberedQuestions(4))
	f.client.ChatCompletionFunc = func(context.Context, string, []models.Message, llm.Options) (*models.ParsedResponse, error) {
		return answerResponse("4"), nil
	}

	evaluation, err := f.svc.CreateEvaluation(context.Background(), models.AgentConfig{
		StrategyID: strategy.StrategyNone,
		ModelName:  "gpt-4",
	}, "MINI")
	require.NoError(t, err)

	progress, err := f.svc.GetProgress(context.Background(), evaluation.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, progress.Processed)
	assert.Equal(t, 4, progress.Total)

	_, err = f.svc.ExecuteEvaluation(context.Background(), evaluation.ID, nil)
	require.NoError(t, err)

	progress, err = f.svc.GetProgress(context.Background(), evaluation.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, progress.Processed)
	assert.Equal(t, 100.0, progress.Percent)
	assert.Equal(t, models.EvaluationStatusCompleted, progress.Status)
}

func TestDefaultAnswerComparator(t *testing.T) {
	assert.True(t, DefaultAnswerComparator("4", "4"))
	assert.True(t, DefaultAnswerComparator("  Paris  ", "paris"))
	assert.False(t, DefaultAnswerComparator("5", "4"))
	assert.False(t, DefaultAnswerComparator("", "4"))
}

func TestExecuteEvaluation_UnknownEvaluation(t *testing.T) {
	f := newFixture(t, singleQuestion())
	_, err := f.svc.ExecuteEvaluation(context.Background(), uuid.New(), nil)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestInterrupt_NoActiveRun(t *testing.T) {
	f := newFixture(t, singleQuestion())
	assert.False(t, f.svc.Interrupt(uuid.New()))
}

func TestExecuteEvaluation_SchemaIDAttachedToOptions(t *testing.T) {
	f := newFixture(t, singleQuestion())
	var seen llm.Options
	f.client.ChatCompletionFunc = func(_ context.Context, _ string, _ []models.Message, opts llm.Options) (*models.ParsedResponse, error) {
		seen = opts
		return answerResponse("4"), nil
	}

	evaluation, err := f.svc.CreateEvaluation(context.Background(), models.AgentConfig{
		StrategyID:      strategy.StrategyNone,
		ModelName:       "gpt-4",
		ModelParameters: map[string]any{"temperature": 0.2, "max_tokens": 256},
	}, "MINI")
	require.NoError(t, err)

	_, err = f.svc.ExecuteEvaluation(context.Background(), evaluation.ID, nil)
	require.NoError(t, err)

	require.NotNil(t, seen)
	id, ok := seen.SchemaID()
	require.True(t, ok)
	assert.Equal(t, "direct_answer", id)
	temperature, ok := seen.Temperature()
	require.True(t, ok)
	assert.Equal(t, 0.2, temperature)
}

func TestProgressMessages(t *testing.T) {
	f := newFixture(t, numberedQuestions(2))
	f.client.ChatCompletionFunc = func(_ context.Context, _ string, messages []models.Message, _ llm.Options) (*models.ParsedResponse, error) {
		if strings.Contains(messages[0].Content, "Question 2") {
			return answerResponse("7"), nil
		}
		return answerResponse("4"), nil
	}

	evaluation, err := f.svc.CreateEvaluation(context.Background(), models.AgentConfig{
		StrategyID: strategy.StrategyNone,
		ModelName:  "gpt-4",
	}, "MINI")
	require.NoError(t, err)

	var events []ProgressEvent
	_, err = f.svc.ExecuteEvaluation(context.Background(), evaluation.ID, func(event ProgressEvent) {
		events = append(events, event)
	})
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, 1, events[0].Processed)
	assert.Equal(t, 2, events[0].Total)
	assert.Contains(t, events[0].Message, "correct")
	assert.Contains(t, events[1].Message, "incorrect")
}

func TestExecuteEvaluation_PersistenceFailureIsFatal(t *testing.T) {
	f := newFixture(t, numberedQuestions(2))

	evaluation, err := f.svc.CreateEvaluation(context.Background(), models.AgentConfig{
		StrategyID: strategy.StrategyNone,
		ModelName:  "gpt-4",
	}, "MINI")
	require.NoError(t, err)

	// Seed a conflicting row for question 2 mid-run, after the done-set was
	// read, so the orchestrator's own insert hits the unique constraint.
	var once sync.Once
	f.client.ChatCompletionFunc = func(_ context.Context, _ string, messages []models.Message, _ llm.Options) (*models.ParsedResponse, error) {
		if strings.Contains(messages[0].Content, "Question 2") {
			once.Do(func() {
				row := models.NewFailedQuestionResult(evaluation.ID,
					models.Question{ID: "2", Text: "Question 2", ExpectedAnswer: "4"},
					models.NewFailureReason(models.FailureUnknown, "seeded", "", false),
					0, strategy.StrategyNone)
				require.NoError(t, f.resultRepo.Create(context.Background(), row))
			})
		}
		return answerResponse("4"), nil
	}

	_, err = f.svc.ExecuteEvaluation(context.Background(), evaluation.ID, nil)
	require.Error(t, err)

	stored, err := f.svc.GetEvaluation(context.Background(), evaluation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EvaluationStatusFailed, stored.Status)
	require.NotNil(t, stored.FailureReason)
}

func TestExecuteEvaluation_ErrorsAreValuesNotSDKTypes(t *testing.T) {
	f := newFixture(t, singleQuestion())
	underlying := errors.New("dial tcp: connection refused")
	f.client.ChatCompletionFunc = func(context.Context, string, []models.Message, llm.Options) (*models.ParsedResponse, error) {
		return nil, models.NewFailureError(
			models.NewFailureReason(models.FailureNetworkTimeout, "request timed out", underlying.Error(), true),
			underlying)
	}

	evaluation, err := f.svc.CreateEvaluation(context.Background(), models.AgentConfig{
		StrategyID: strategy.StrategyNone,
		ModelName:  "gpt-4",
	}, "MINI")
	require.NoError(t, err)

	results, err := f.svc.ExecuteEvaluation(context.Background(), evaluation.ID, nil)
	require.NoError(t, err, "recoverable failures are recorded, not returned")
	require.Len(t, results.Results, 1)
	assert.Contains(t, results.Results[0].ErrorMessage, "timed out")
}
