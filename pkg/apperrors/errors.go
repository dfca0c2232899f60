package apperrors

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidInput      = errors.New("invalid input")
	ErrAlreadyRunning    = errors.New("an evaluation is already running in this process")
	ErrBenchmarkInUse    = errors.New("benchmark is referenced by existing evaluations")
	ErrInvalidTransition = errors.New("invalid evaluation state transition")
)
