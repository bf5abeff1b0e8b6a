package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an agent or validation id is unknown.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned on lifecycle misuse, e.g. starting
	// an agent that is already active.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrDuplicateID is returned when agent registration collides.
	ErrDuplicateID = errors.New("duplicate id")

	// ErrNoEligibleWorkers is returned when a requested scope has no
	// active agent for at least one of its kinds.
	ErrNoEligibleWorkers = errors.New("no eligible workers")

	// ErrNotReady is returned when results are requested before the
	// validation reached a terminal state.
	ErrNotReady = errors.New("not ready")
)

// WorkerExecutionError wraps a failed dispatch. It is recorded as that
// worker's outcome and never aborts sibling dispatches.
type WorkerExecutionError struct {
	AgentID string
	Kind    AgentKind
	Err     error
}

func (e *WorkerExecutionError) Error() string {
	return fmt.Sprintf("worker %s (%s): %v", e.AgentID, e.Kind, e.Err)
}

func (e *WorkerExecutionError) Unwrap() error { return e.Err }
