package model

import "fmt"

// Status is the lifecycle status of a screening session.  The same values are
// used for the persisted coarse status and the in-memory playback status.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusVestibule Status = "vestibule"
	StatusActive    Status = "active"
	StatusFinished  Status = "finished"
)

// transitions lists every allowed edge.  Anything not listed is rejected.
var transitions = map[Status]Status{
	StatusScheduled: StatusVestibule,
	StatusVestibule: StatusActive,
	StatusActive:    StatusFinished,
}

// ParseStatus converts a stored string into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown session status %q", s)
	}
	return st, nil
}

// Valid reports whether s is one of the four lifecycle values.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusVestibule, StatusActive, StatusFinished:
		return true
	}
	return false
}

// IsTerminal is true only for FINISHED.
func (s Status) IsTerminal() bool { return s == StatusFinished }

// CanTransitionTo reports whether next is the single forward successor of s.
func (s Status) CanTransitionTo(next Status) bool {
	to, ok := transitions[s]
	return ok && to == next
}

// Resident reports whether a session in this status may live in the
// in-memory registry.
func (s Status) Resident() bool {
	return s == StatusVestibule || s == StatusActive || s == StatusFinished
}

var order = map[Status]int{
	StatusScheduled: 0,
	StatusVestibule: 1,
	StatusActive:    2,
	StatusFinished:  3,
}

// Before reports whether s comes strictly earlier than other in the
// lifecycle.
func (s Status) Before(other Status) bool {
	a, okA := order[s]
	b, okB := order[other]
	return okA && okB && a < b
}
