package model

import (
	"fmt"
	"time"
)

// State is the discrete state of a whole broadcast run.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
)

func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateCancelled:
		return true
	case StateIdle, StateRunning, StatePaused:
		return false
	}
	panic(fmt.Sprintf("model: unknown broadcast state %q", string(s)))
}

// Active reports whether a dispatch loop may still send for this state.
func (s State) Active() bool {
	return s == StateRunning || s == StatePaused
}

// CanTransition reports whether from -> to is a legal broadcast transition.
func CanTransition(from, to State) bool {
	switch from {
	case StateIdle:
		return to == StateRunning
	case StateRunning:
		return to == StatePaused || to == StateCompleted || to == StateCancelled
	case StatePaused:
		return to == StateRunning || to == StateCancelled
	case StateCompleted, StateCancelled:
		return false
	}
	return false
}

// TransitionError is returned when an operation is not allowed in the current state.
type TransitionError struct {
	From   State
	To     State
	Reason string
}

func (e *TransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot move broadcast from %s to %s: %s", e.From, e.To, e.Reason)
	}
	return fmt.Sprintf("cannot move broadcast from %s to %s", e.From, e.To)
}

// BroadcastConfig is the user's intent for one broadcast.
type BroadcastConfig struct {
	Template    string
	Personalize bool
	Audience    string
	Interval    time.Duration
	Jitter      bool
	DryRun      bool
}

// Stats is derived from item statuses and never mutated on its own.
type Stats struct {
	Total     int `json:"total"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Cancelled int `json:"cancelled"`
	Remaining int `json:"remaining"`
	Processed int `json:"processed"`
}

func ComputeStats(items []QueueItem) Stats {
	st := Stats{Total: len(items)}
	for _, it := range items {
		switch it.Status {
		case Queued, Sending:
			st.Remaining++
		case Sent:
			st.Sent++
		case Failed:
			st.Failed++
		case Skipped:
			st.Skipped++
		case Cancelled:
			st.Cancelled++
		default:
			panic(fmt.Sprintf("model: unknown item status %q", string(it.Status)))
		}
	}
	st.Processed = st.Sent + st.Failed
	return st
}
