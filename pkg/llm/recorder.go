package llm

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/caliperhq/caliper-engine/pkg/models"
	"github.com/caliperhq/caliper-engine/pkg/repositories"
)

const (
	defaultRecorderQueueSize = 100
	persistTimeout           = 5 * time.Second
)

// InteractionRecorder persists LLM interactions for audit and debugging.
type InteractionRecorder interface {
	// SavePending synchronously inserts the interaction before the provider
	// call, so an interrupted run still shows the attempt.
	SavePending(ctx context.Context, interaction *models.LLMInteraction) error
	// RecordCompletion updates a previously saved pending interaction with
	// the outcome.
	RecordCompletion(interaction *models.LLMInteraction)
	// Record persists a finished interaction in one shot. Used when the
	// pending insert did not go through.
	Record(interaction *models.LLMInteraction)
}

type interactionOp struct {
	interaction *models.LLMInteraction
	update      bool
}

// AsyncInteractionRecorder writes interactions through a buffered queue so
// persistence never blocks the evaluation loop. When the queue is full the
// record is dropped with a warning; interaction history is an audit trail,
// not evaluation state.
type AsyncInteractionRecorder struct {
	repo   repositories.InteractionRepository
	logger *zap.Logger
	queue  chan interactionOp
	done   chan struct{}
}

func NewAsyncInteractionRecorder(repo repositories.InteractionRepository, logger *zap.Logger, queueSize int) *AsyncInteractionRecorder {
	if queueSize <= 0 {
		queueSize = defaultRecorderQueueSize
	}
	r := &AsyncInteractionRecorder{
		repo:   repo,
		logger: logger.Named("interaction-recorder"),
		queue:  make(chan interactionOp, queueSize),
		done:   make(chan struct{}),
	}
	go r.processQueue()
	return r
}

func (r *AsyncInteractionRecorder) SavePending(ctx context.Context, interaction *models.LLMInteraction) error {
	return r.repo.Create(ctx, interaction)
}

func (r *AsyncInteractionRecorder) RecordCompletion(interaction *models.LLMInteraction) {
	r.enqueue(interactionOp{interaction: interaction, update: true})
}

func (r *AsyncInteractionRecorder) Record(interaction *models.LLMInteraction) {
	r.enqueue(interactionOp{interaction: interaction})
}

// Close stops accepting records, drains the queue, and waits for the
// worker to finish.
func (r *AsyncInteractionRecorder) Close() {
	close(r.queue)
	<-r.done
}

func (r *AsyncInteractionRecorder) enqueue(op interactionOp) {
	select {
	case r.queue <- op:
	default:
		r.logger.Warn("interaction queue full, dropping record",
			zap.String("evaluation_id", op.interaction.EvaluationID.String()),
			zap.String("question_id", op.interaction.QuestionID))
	}
}

func (r *AsyncInteractionRecorder) processQueue() {
	defer close(r.done)
	for op := range r.queue {
		r.persist(op)
	}
}

func (r *AsyncInteractionRecorder) persist(op interactionOp) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	var err error
	if op.update {
		err = r.repo.Update(ctx, op.interaction)
	} else {
		err = r.repo.Create(ctx, op.interaction)
	}
	if err != nil {
		r.logger.Error("failed to persist llm interaction",
			zap.String("evaluation_id", op.interaction.EvaluationID.String()),
			zap.String("question_id", op.interaction.QuestionID),
			zap.Error(err))
	}
}

var _ InteractionRecorder = (*AsyncInteractionRecorder)(nil)
