package task

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a scheduled task.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusFailed    Status = "FAILED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusCompleted, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

func (s Status) String() string { return string(s) }

// Terminal reports whether no further transitions leave s.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusCancelled }

// ParseStatus accepts the canonical constant names, case-insensitively.
func ParseStatus(v string) (Status, bool) {
	s := Status(strings.ToUpper(strings.TrimSpace(v)))
	if s.Valid() {
		return s, true
	}
	return "", false
}

// transitions is the single source of truth for lifecycle legality.
// An ACTIVE -> ACTIVE self-transition covers recurring re-execution.
var transitions = map[Status][]Status{
	StatusPending:   {StatusActive, StatusCancelled, StatusFailed},
	StatusActive:    {StatusActive, StatusCompleted, StatusCancelled, StatusFailed},
	StatusFailed:    {StatusCancelled},
	StatusCompleted: {},
	StatusCancelled: {},
}

func canTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionError reports an illegal lifecycle transition. It indicates
// a programming error in the caller, not bad user input; orchestrators
// convert it into a system-error result at the boundary.
type TransitionError struct {
	TaskID string
	From   Status
	To     Status
	Op     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("task %s: illegal transition %s -> %s (%s)", e.TaskID, e.From, e.To, e.Op)
}
