package task

import (
	"errors"
	"time"

	"github.com/vietddude/feedrank/internal/core/domain"
)

// State is an alias for domain.TaskState for internal use.
type State = domain.TaskState

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// ValidTransitions defines allowed state transitions.
// Key is the current state, value is the list of valid next states.
var ValidTransitions = map[State][]State{
	domain.TaskStatePending: {domain.TaskStateProgress},
	domain.TaskStateProgress: {
		domain.TaskStateSuccess,
		domain.TaskStateRetry,
		domain.TaskStateFailure,
	},
	domain.TaskStateRetry: {domain.TaskStatePending},
}

// CanTransition checks if a transition from one state to another is valid.
func CanTransition(from, to State) bool {
	for _, target := range ValidTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// Transition represents a state change with metadata.
type Transition struct {
	TaskID    string
	From      State
	To        State
	Reason    string
	Timestamp time.Time
}
