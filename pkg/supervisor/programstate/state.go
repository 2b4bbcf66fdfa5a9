// Package programstate defines the lifecycle states of a supervised
// program and the legal transitions between them.
package programstate

import (
	"fmt"
	"time"
)

// State is the Supervisor-style process state.
type State string

const (
	// StateStopped means the program has never run or was stopped manually.
	StateStopped State = "stopped"
	// StateStarting means the process is up but has not yet stayed up for
	// the configured minimum uptime.
	StateStarting State = "starting"
	// StateRunning means the process passed its minimum uptime.
	StateRunning State = "running"
	// StateBackoff means a start attempt failed and a retry is pending.
	StateBackoff State = "backoff"
	// StateStopping means a stop was requested and is in progress.
	StateStopping State = "stopping"
	// StateExited means the process exited and no restart applies.
	StateExited State = "exited"
	// StateFatal means start retries were exhausted.
	StateFatal State = "fatal"
)

var allowedTransitions = map[State][]State{
	StateStopped:  {StateStarting},
	StateStarting: {StateRunning, StateBackoff, StateStopping, StateExited},
	StateRunning:  {StateStopping, StateExited},
	StateBackoff:  {StateStarting, StateFatal, StateStopped},
	StateStopping: {StateStopped},
	StateExited:   {StateStarting},
	StateFatal:    {StateStarting},
}

// ValidateTransition reports whether moving from one state to another is
// legal.
func ValidateTransition(from, to State) error {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("invalid state transition: %s -> %s", from, to)
}

// IsActive reports whether the program currently has (or is acquiring) a
// live process.
func (s State) IsActive() bool {
	switch s {
	case StateStarting, StateRunning, StateStopping:
		return true
	}
	return false
}

// IsStartable reports whether a start operation is accepted in this state.
func (s State) IsStartable() bool {
	switch s {
	case StateStopped, StateExited, StateFatal:
		return true
	}
	return false
}

// IsStoppable reports whether a stop operation is accepted in this state.
// Stopping a program in backoff cancels the pending retry.
func (s State) IsStoppable() bool {
	switch s {
	case StateStarting, StateRunning, StateBackoff:
		return true
	}
	return false
}

// Info is a point-in-time snapshot of a program's state, returned by
// status queries.
type Info struct {
	State      State     `json:"state"`
	PID        int       `json:"pid,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	ExitCode   int       `json:"exit_code,omitempty"`
	Retries    int       `json:"retries,omitempty"`
	LastChange time.Time `json:"last_change"`
	Message    string    `json:"message,omitempty"`
}

// Uptime returns how long the program has been up, zero when not active.
func (i Info) Uptime(now time.Time) time.Duration {
	if !i.State.IsActive() || i.StartedAt.IsZero() {
		return 0
	}
	return now.Sub(i.StartedAt)
}
