package process

import (
	"fmt"
	"sync"
)

// TerminationState tracks a stop request through to process exit.
type TerminationState string

const (
	// NotRequested: nobody asked the process to stop.
	NotRequested TerminationState = "not_requested"
	// Requested: a stop was accepted but no signal has been sent yet.
	Requested TerminationState = "requested"
	// Terminating: SIGTERM was sent; waiting for the grace period.
	Terminating TerminationState = "terminating"
	// Terminated: the process exited within the grace period.
	Terminated TerminationState = "terminated"
	// ForceKilled: the grace period ran out and SIGKILL was sent.
	ForceKilled TerminationState = "force_killed"
)

// validTerminationTransitions maps each state to the states it may move to.
// Requested may go straight to Terminated when the process is already gone.
var validTerminationTransitions = map[TerminationState][]TerminationState{
	NotRequested: {Requested},
	Requested:    {Terminating, Terminated},
	Terminating:  {Terminated, ForceKilled},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to TerminationState) bool {
	for _, s := range validTerminationTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsFinal reports whether s ends the machine.
func (s TerminationState) IsFinal() bool {
	return s == Terminated || s == ForceKilled
}

// Termination is the state machine of one process.
type Termination struct {
	mu    sync.Mutex
	state TerminationState
}

// State returns the current state.
func (t *Termination) State() TerminationState {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == "" {
		return NotRequested
	}
	return t.state
}

// To moves to next or returns an error if the transition is not allowed.
func (t *Termination) To(next TerminationState) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur := t.state
	if cur == "" {
		cur = NotRequested
	}
	if !CanTransition(cur, next) {
		return fmt.Errorf("invalid termination transition %s -> %s", cur, next)
	}
	t.state = next
	return nil
}
