package workflow

import (
	"context"
	"fmt"
	"sort"
)

// GuardFunc decides whether a configured transition may be taken
type GuardFunc func(ctx context.Context) bool

// StateMachineBuilder collects the transition table and produces machines from it
type StateMachineBuilder interface {
	// Configure returns the transition configuration of a state
	Configure(state State) StateConfiguration

	// Build creates a machine positioned at initial. It returns ErrInvalidState
	// when initial is not part of the lifecycle.
	Build(initial State) (StateMachine, error)
}

// StateConfiguration registers the outgoing transitions of one state
type StateConfiguration interface {
	// Permit allows trigger to move the machine to target
	Permit(trigger Trigger, target State) StateConfiguration

	// PermitIf allows trigger to move the machine to target when guard passes
	PermitIf(trigger Trigger, target State, guard GuardFunc) StateConfiguration
}

type edge struct {
	target State
	guard  GuardFunc
}

// table maps a source state to its outgoing edges keyed by trigger
type table map[State]map[Trigger][]edge

func (t table) clone() table {
	out := make(table, len(t))
	for from, edges := range t {
		byTrigger := make(map[Trigger][]edge, len(edges))
		for trig, list := range edges {
			byTrigger[trig] = append([]edge(nil), list...)
		}
		out[from] = byTrigger
	}
	return out
}

type builder struct {
	transitions table
}

type stateConfiguration struct {
	from  State
	edges map[Trigger][]edge
}

type machine struct {
	current     State
	transitions table
}

// NewBuilder creates an empty builder
func NewBuilder() StateMachineBuilder {
	return &builder{transitions: make(table)}
}

// Configure panics on states outside the lifecycle, which is a programming error
func (b *builder) Configure(state State) StateConfiguration {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}
	edges, ok := b.transitions[state]
	if !ok {
		edges = make(map[Trigger][]edge)
		b.transitions[state] = edges
	}
	return &stateConfiguration{from: state, edges: edges}
}

func (b *builder) Build(initial State) (StateMachine, error) {
	if !initial.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidState, initial)
	}
	return &machine{current: initial, transitions: b.transitions.clone()}, nil
}

func (c *stateConfiguration) Permit(trigger Trigger, target State) StateConfiguration {
	return c.PermitIf(trigger, target, nil)
}

func (c *stateConfiguration) PermitIf(trigger Trigger, target State, guard GuardFunc) StateConfiguration {
	if !target.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", target))
	}
	c.edges[trigger] = append(c.edges[trigger], edge{target: target, guard: guard})
	return c
}

func (m *machine) State() State {
	return m.current
}

// CanFire does not evaluate guards; it only checks that an edge exists
func (m *machine) CanFire(trigger Trigger) bool {
	return len(m.transitions[m.current][trigger]) > 0
}

func (m *machine) Fire(ctx context.Context, trigger Trigger) error {
	edges := m.transitions[m.current][trigger]
	if len(edges) == 0 {
		return fmt.Errorf("%w: cannot fire %s from %s", ErrInvalidTransition, trigger, m.current)
	}
	for _, e := range edges {
		if e.guard == nil || e.guard(ctx) {
			m.current = e.target
			return nil
		}
	}
	return fmt.Errorf("%w: %s from %s", ErrGuardFailed, trigger, m.current)
}

func (m *machine) PermittedTriggers() []Trigger {
	edges := m.transitions[m.current]
	out := make([]Trigger, 0, len(edges))
	for trig := range edges {
		out = append(out, trig)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
