package workflow

import (
	"context"
	"fmt"
)

// Guards attaches a precondition to lifecycle triggers. A missing entry
// means the trigger is unconditional.
type Guards map[Trigger]GuardFunc

// NewRequestLifecycle returns the builder for justification requests:
//
//	pending --SEND--> sent --RECEIVE--> received
//	pending --RECEIVE--> received
func NewRequestLifecycle(guards Guards) StateMachineBuilder {
	b := NewBuilder()
	b.Configure(StatePending).
		PermitIf(TriggerSend, StateSent, guards[TriggerSend]).
		PermitIf(TriggerReceive, StateReceived, guards[TriggerReceive])
	b.Configure(StateSent).
		PermitIf(TriggerReceive, StateReceived, guards[TriggerReceive])
	return b
}

// triggerFor returns the trigger whose target is the given state
func triggerFor(target State) (Trigger, bool) {
	switch target {
	case StateSent:
		return TriggerSend, true
	case StateReceived:
		return TriggerReceive, true
	}
	return "", false
}

// Advance moves a request from current to target using the request lifecycle.
// Setting the current state again is a no-op, but the guard of the trigger
// leading to it must still hold. Backward moves and unknown states fail with
// ErrInvalidTransition or ErrInvalidState, a failed guard with ErrGuardFailed.
func Advance(ctx context.Context, current, target State, guards Guards) (State, error) {
	if !target.IsValid() {
		return current, fmt.Errorf("%w: %q", ErrInvalidState, target)
	}
	m, err := NewRequestLifecycle(guards).Build(current)
	if err != nil {
		return current, err
	}
	trigger, ok := triggerFor(target)
	if current == target {
		if guard := guards[trigger]; ok && guard != nil && !guard(ctx) {
			return current, fmt.Errorf("%w: %s at %s", ErrGuardFailed, trigger, current)
		}
		return current, nil
	}
	if !ok {
		return current, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current, target)
	}
	if err := m.Fire(ctx, trigger); err != nil {
		return current, err
	}
	return m.State(), nil
}
