package workflow

import "context"

// Transition describes a state change performed by Fire
type Transition struct {
	From    State
	To      State
	Trigger Trigger
}

// IsReentry reports whether the transition kept the state unchanged
func (t Transition) IsReentry() bool {
	return t.From == t.To
}

// StateMachine tracks the current state of one entity and validates transitions
type StateMachine interface {
	// Name identifies the lifecycle, e.g. "intake"
	Name() string

	// State returns the current state
	State() State

	// CanFire returns true if the trigger is permitted in the current state
	CanFire(trigger Trigger) bool

	// Fire attempts to execute the trigger, transitioning to the new state if allowed
	Fire(ctx context.Context, trigger Trigger) (Transition, error)

	// PermittedTriggers returns all triggers that can be fired in the current state, sorted
	PermittedTriggers() []Trigger
}
