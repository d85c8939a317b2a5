package workflow

import (
	"context"
	"errors"
	"testing"
)

func TestState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    State
		expected bool
	}{
		{StatePending, false},
		{StateSent, false},
		{StateReceived, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.IsTerminal(); got != tt.expected {
				t.Errorf("State.IsTerminal() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestState_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		expected bool
	}{
		{"pending", StatePending, true},
		{"received", StateReceived, true},
		{"upper case", State("PENDING"), false},
		{"empty state", State(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.expected {
				t.Errorf("State.IsValid() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuilder_BuildRejectsUnknownState(t *testing.T) {
	_, err := NewRequestLifecycle(nil).Build(State("archived"))
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("Build() error = %v, want ErrInvalidState", err)
	}
}

func TestRequestLifecycle_Fire(t *testing.T) {
	ctx := context.Background()

	m, err := NewRequestLifecycle(nil).Build(StatePending)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !m.CanFire(TriggerSend) {
		t.Fatalf("CanFire(SEND) = false from pending")
	}
	if err := m.Fire(ctx, TriggerSend); err != nil {
		t.Fatalf("Fire(SEND) error = %v", err)
	}
	if m.State() != StateSent {
		t.Errorf("State() = %v, want %v", m.State(), StateSent)
	}
	if m.CanFire(TriggerSend) {
		t.Errorf("CanFire(SEND) = true from sent")
	}
	if err := m.Fire(ctx, TriggerSend); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Fire(SEND) from sent error = %v, want ErrInvalidTransition", err)
	}
	if err := m.Fire(ctx, TriggerReceive); err != nil {
		t.Fatalf("Fire(RECEIVE) error = %v", err)
	}
	if got := m.PermittedTriggers(); len(got) != 0 {
		t.Errorf("PermittedTriggers() from received = %v, want none", got)
	}
}

func TestBuilder_PermitIf(t *testing.T) {
	allow := false
	b := NewBuilder()
	b.Configure(StatePending).PermitIf(TriggerSend, StateSent, func(context.Context) bool { return allow })

	m, _ := b.Build(StatePending)
	if err := m.Fire(context.Background(), TriggerSend); !errors.Is(err, ErrGuardFailed) {
		t.Fatalf("Fire() error = %v, want ErrGuardFailed", err)
	}

	allow = true
	if err := m.Fire(context.Background(), TriggerSend); err != nil {
		t.Fatalf("Fire() error = %v", err)
	}
	if m.State() != StateSent {
		t.Errorf("State() = %v, want %v", m.State(), StateSent)
	}
}

func TestBuilder_MachinesAreIndependent(t *testing.T) {
	b := NewRequestLifecycle(nil)
	first, _ := b.Build(StatePending)
	second, _ := b.Build(StatePending)

	_ = first.Fire(context.Background(), TriggerSend)
	if second.State() != StatePending {
		t.Errorf("second.State() = %v, want %v", second.State(), StatePending)
	}
}

func TestAdvance(t *testing.T) {
	tests := []struct {
		name    string
		from    State
		to      State
		want    State
		wantErr error
	}{
		{"pending to sent", StatePending, StateSent, StateSent, nil},
		{"sent to received", StateSent, StateReceived, StateReceived, nil},
		{"pending skips to received", StatePending, StateReceived, StateReceived, nil},
		{"same state is a no-op", StateSent, StateSent, StateSent, nil},
		{"received back to sent", StateReceived, StateSent, StateReceived, ErrInvalidTransition},
		{"sent back to pending", StateSent, StatePending, StateSent, ErrInvalidTransition},
		{"unknown target", StatePending, State("lost"), StatePending, ErrInvalidState},
		{"unknown source", State("lost"), StateSent, State("lost"), ErrInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Advance(context.Background(), tt.from, tt.to, nil)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Advance() error = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("Advance() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Advance() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAdvance_Guards(t *testing.T) {
	ctx := context.Background()
	hasReference := false
	guards := Guards{TriggerReceive: func(context.Context) bool { return hasReference }}

	tests := []struct {
		name    string
		from    State
		to      State
		want    State
		wantErr error
	}{
		{"pending to received", StatePending, StateReceived, StatePending, ErrGuardFailed},
		{"sent to received", StateSent, StateReceived, StateSent, ErrGuardFailed},
		{"received again", StateReceived, StateReceived, StateReceived, ErrGuardFailed},
		{"unguarded send", StatePending, StateSent, StateSent, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Advance(ctx, tt.from, tt.to, guards)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Advance() error = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("Advance() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Advance() = %v, want %v", got, tt.want)
			}
		})
	}

	hasReference = true
	got, err := Advance(ctx, StateSent, StateReceived, guards)
	if err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	if got != StateReceived {
		t.Errorf("Advance() = %v, want %v", got, StateReceived)
	}
}
