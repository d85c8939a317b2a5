package workflow

import "errors"

// Lifecycle errors. Callers match them with errors.Is; the wrapped message
// names the states and trigger involved.
var (
	// ErrInvalidTransition means the lifecycle has no edge for the move,
	// which covers every backward move.
	ErrInvalidTransition = errors.New("request status cannot move that way")

	// ErrInvalidState means a status outside pending, sent and received.
	ErrInvalidState = errors.New("unknown request status")

	// ErrGuardFailed means an edge exists but its precondition does not hold.
	ErrGuardFailed = errors.New("request transition precondition not met")
)
