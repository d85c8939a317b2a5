package workflow

import "github.com/garyjia/ledger-backoffice/internal/domain/entity"

// State represents a step in the justification request lifecycle
type State string

const (
	StatePending  State = entity.RequestStatusPending
	StateSent     State = entity.RequestStatusSent
	StateReceived State = entity.RequestStatusReceived
)

// rank orders states so that a transition can be checked for direction
var rank = map[State]int{
	StatePending:  0,
	StateSent:     1,
	StateReceived: 2,
}

// IsTerminal returns true once the document has been received
func (s State) IsTerminal() bool {
	return s == StateReceived
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is part of the lifecycle
func (s State) IsValid() bool {
	_, ok := rank[s]
	return ok
}

// Before reports whether s comes strictly earlier in the lifecycle than other
func (s State) Before(other State) bool {
	return rank[s] < rank[other]
}
