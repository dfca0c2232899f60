package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/caliperhq/caliper-engine/pkg/apperrors"
)

// ============================================================================
// Evaluation Status
// ============================================================================

// EvaluationStatus represents the lifecycle state of an evaluation.
type EvaluationStatus string

const (
	EvaluationStatusPending     EvaluationStatus = "PENDING"
	EvaluationStatusRunning     EvaluationStatus = "RUNNING"
	EvaluationStatusCompleted   EvaluationStatus = "COMPLETED"
	EvaluationStatusFailed      EvaluationStatus = "FAILED"
	EvaluationStatusInterrupted EvaluationStatus = "INTERRUPTED"
)

// ValidEvaluationStatuses contains all valid evaluation status values.
var ValidEvaluationStatuses = []EvaluationStatus{
	EvaluationStatusPending,
	EvaluationStatusRunning,
	EvaluationStatusCompleted,
	EvaluationStatusFailed,
	EvaluationStatusInterrupted,
}

// IsValidEvaluationStatus checks if the given status is valid.
func IsValidEvaluationStatus(s EvaluationStatus) bool {
	for _, v := range ValidEvaluationStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// IsTerminal returns true for immutable end states. INTERRUPTED is not
// terminal: it carries a completedAt timestamp but remains resumable.
func (s EvaluationStatus) IsTerminal() bool {
	return s == EvaluationStatusCompleted || s == EvaluationStatusFailed
}

// IsResumable returns true if executeEvaluation may (re)start this status.
func (s EvaluationStatus) IsResumable() bool {
	return s == EvaluationStatusPending || s == EvaluationStatusRunning || s == EvaluationStatusInterrupted
}

// CanTransitionTo returns true if transitioning from this status to the target is valid.
func (s EvaluationStatus) CanTransitionTo(target EvaluationStatus) bool {
	switch s {
	case EvaluationStatusPending:
		return target == EvaluationStatusRunning
	case EvaluationStatusRunning:
		return target == EvaluationStatusCompleted ||
			target == EvaluationStatusFailed ||
			target == EvaluationStatusInterrupted
	case EvaluationStatusInterrupted:
		// Resume
		return target == EvaluationStatusRunning
	case EvaluationStatusCompleted, EvaluationStatusFailed:
		return false
	default:
		return false
	}
}

// ============================================================================
// Evaluation
// ============================================================================

// Evaluation is the aggregate root for one run of a reasoning strategy +
// model against a benchmark. Its per-question results are owned rows in
// EvaluationQuestionResult; aggregate accuracy is always computed from those
// rows, never stored here.
//
// Timestamp invariants, enforced by the transition methods:
//   - StartedAt is set exactly when the status first leaves PENDING.
//   - CompletedAt is set iff status is COMPLETED, FAILED or INTERRUPTED.
//   - FailureReason is set iff status is FAILED.
type Evaluation struct {
	ID            uuid.UUID        `json:"id"`
	BenchmarkID   uuid.UUID        `json:"benchmark_id"`
	AgentConfig   AgentConfig      `json:"agent_config"`
	Status        EvaluationStatus `json:"status"`
	FailureReason *FailureReason   `json:"failure_reason,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	StartedAt     *time.Time       `json:"started_at,omitempty"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
}

// NewEvaluation creates a PENDING evaluation for the given benchmark.
func NewEvaluation(benchmarkID uuid.UUID, cfg AgentConfig) *Evaluation {
	return &Evaluation{
		ID:          uuid.New(),
		BenchmarkID: benchmarkID,
		AgentConfig: cfg,
		Status:      EvaluationStatusPending,
		CreatedAt:   time.Now().UTC(),
	}
}

// Start transitions PENDING or INTERRUPTED to RUNNING. On resume it clears
// CompletedAt; StartedAt is only stamped the first time.
func (e *Evaluation) Start(at time.Time) error {
	if err := e.checkTransition(EvaluationStatusRunning); err != nil {
		return err
	}
	e.Status = EvaluationStatusRunning
	if e.StartedAt == nil {
		t := at
		e.StartedAt = &t
	}
	e.CompletedAt = nil
	return nil
}

// Complete transitions RUNNING to COMPLETED.
func (e *Evaluation) Complete(at time.Time) error {
	if err := e.checkTransition(EvaluationStatusCompleted); err != nil {
		return err
	}
	e.Status = EvaluationStatusCompleted
	t := at
	e.CompletedAt = &t
	return nil
}

// Fail transitions RUNNING to FAILED and attaches the reason.
func (e *Evaluation) Fail(reason *FailureReason, at time.Time) error {
	if reason == nil {
		return fmt.Errorf("%w: FAILED requires a failure reason", apperrors.ErrInvalidTransition)
	}
	if err := e.checkTransition(EvaluationStatusFailed); err != nil {
		return err
	}
	e.Status = EvaluationStatusFailed
	e.FailureReason = reason
	t := at
	e.CompletedAt = &t
	return nil
}

// Interrupt transitions RUNNING to INTERRUPTED. The evaluation keeps its
// persisted question results and may be resumed later.
func (e *Evaluation) Interrupt(at time.Time) error {
	if err := e.checkTransition(EvaluationStatusInterrupted); err != nil {
		return err
	}
	e.Status = EvaluationStatusInterrupted
	t := at
	e.CompletedAt = &t
	return nil
}

func (e *Evaluation) checkTransition(target EvaluationStatus) error {
	if !e.Status.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s -> %s", apperrors.ErrInvalidTransition, e.Status, target)
	}
	return nil
}
