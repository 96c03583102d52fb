package task

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"sentinel/internal/schedule"
)

// ScheduledTask is the aggregate root of the scheduling core: a
// recurring panel action owned by one user, with lifecycle bookkeeping.
//
// Fields are exported for persistence and read models, but all state
// changes MUST go through the methods below; they enforce transition
// legality and the next-run invariants.
//
// Invariants:
//   - NextRun is non-nil iff Status is PENDING or ACTIVE and the
//     recurrence yields a future instant.
//   - FailureCount <= ExecutionCount.
//   - Terminal statuses never carry a NextRun.
type ScheduledTask struct {
	ID     string
	UserID string

	Recurrence schedule.Recurrence
	Action     ActionType
	Params     ActionParams

	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time

	NextRun *time.Time
	LastRun *time.Time

	ExecutionCount int
	FailureCount   int

	LastError    string
	CancelReason string
}

// New constructs a PENDING task with its first occurrence computed.
func New(userID string, rec schedule.Recurrence, action ActionType, params ActionParams, now time.Time) (*ScheduledTask, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user id required")
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("recurrence: %w", err)
	}
	if !action.Valid() {
		return nil, fmt.Errorf("unknown action type %q", action)
	}
	if err := params.ValidateFor(action); err != nil {
		return nil, err
	}
	next, err := rec.NextOccurrence(now)
	if err != nil {
		return nil, fmt.Errorf("compute first occurrence: %w", err)
	}

	return &ScheduledTask{
		ID:         uuid.NewString(),
		UserID:     userID,
		Recurrence: rec,
		Action:     action,
		Params:     params,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
		NextRun:    &next,
	}, nil
}

func (t *ScheduledTask) transition(to Status, op string) error {
	if !canTransition(t.Status, to) {
		return &TransitionError{TaskID: t.ID, From: t.Status, To: to, Op: op}
	}
	t.Status = to
	return nil
}

// Activate moves a PENDING task to ACTIVE.
func (t *ScheduledTask) Activate(now time.Time) error {
	if t.Status != StatusPending {
		return &TransitionError{TaskID: t.ID, From: t.Status, To: StatusActive, Op: "activate"}
	}
	if err := t.transition(StatusActive, "activate"); err != nil {
		return err
	}
	if t.NextRun == nil {
		next, err := t.Recurrence.NextOccurrence(now)
		if err != nil {
			t.Status = StatusFailed
			t.LastError = err.Error()
			t.UpdatedAt = now
			return fmt.Errorf("compute next occurrence: %w", err)
		}
		t.NextRun = &next
	}
	t.UpdatedAt = now
	return nil
}

// RecordSuccess books a successful execution. The task stays ACTIVE and
// gets a freshly computed next occurrence (all tasks recur).
//
// If the recurrence unexpectedly fails to yield a next instant, the
// task flips to FAILED with the error recorded.
func (t *ScheduledTask) RecordSuccess(at time.Time) error {
	if err := t.transition(StatusActive, "record success"); err != nil {
		return err
	}
	t.ExecutionCount++
	t.LastRun = &at
	t.LastError = ""
	t.UpdatedAt = at

	next, err := t.Recurrence.NextOccurrence(at.Add(time.Minute))
	if err != nil {
		t.Status = StatusFailed
		t.NextRun = nil
		t.LastError = err.Error()
		return fmt.Errorf("compute next occurrence: %w", err)
	}
	t.NextRun = &next
	return nil
}

// RecordRetryableFailure books a failed execution that will be retried:
// the task stays ACTIVE and its next run is the caller-computed retry
// instant. Backoff policy lives in the orchestrator, not here.
func (t *ScheduledTask) RecordRetryableFailure(errText string, at, nextAttempt time.Time) error {
	if err := t.transition(StatusActive, "record retryable failure"); err != nil {
		return err
	}
	t.ExecutionCount++
	t.FailureCount++
	t.LastRun = &at
	t.LastError = errText
	t.NextRun = &nextAttempt
	t.UpdatedAt = at
	return nil
}

// MarkExecutionFailed books a permanently failed execution: FAILED
// status, next run cleared.
func (t *ScheduledTask) MarkExecutionFailed(errText string, at time.Time) error {
	if err := t.transition(StatusFailed, "mark failed"); err != nil {
		return err
	}
	t.ExecutionCount++
	t.FailureCount++
	t.LastRun = &at
	t.LastError = errText
	t.NextRun = nil
	t.UpdatedAt = at
	return nil
}

// Cancel moves any non-COMPLETED, non-CANCELLED task to CANCELLED and
// clears the next run.
func (t *ScheduledTask) Cancel(reason string, now time.Time) error {
	if err := t.transition(StatusCancelled, "cancel"); err != nil {
		return err
	}
	t.CancelReason = strings.TrimSpace(reason)
	t.NextRun = nil
	t.UpdatedAt = now
	return nil
}

// Complete marks an administratively finished task.
func (t *ScheduledTask) Complete(now time.Time) error {
	if err := t.transition(StatusCompleted, "complete"); err != nil {
		return err
	}
	t.NextRun = nil
	t.UpdatedAt = now
	return nil
}

// UpdateRecurrence replaces the recurrence. Rejected on terminal tasks.
// The next run is recomputed for PENDING/ACTIVE tasks.
func (t *ScheduledTask) UpdateRecurrence(rec schedule.Recurrence, now time.Time) error {
	if t.Status.Terminal() {
		return &TransitionError{TaskID: t.ID, From: t.Status, To: t.Status, Op: "update recurrence"}
	}
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("recurrence: %w", err)
	}
	t.Recurrence = rec
	t.UpdatedAt = now

	if t.Status == StatusPending || t.Status == StatusActive {
		next, err := rec.NextOccurrence(now)
		if err != nil {
			t.Status = StatusFailed
			t.NextRun = nil
			t.LastError = err.Error()
			return fmt.Errorf("compute next occurrence: %w", err)
		}
		t.NextRun = &next
	}
	return nil
}

// UpdateParams replaces the action parameters, re-validated against the
// fixed action type.
func (t *ScheduledTask) UpdateParams(p ActionParams, now time.Time) error {
	if t.Status.Terminal() {
		return &TransitionError{TaskID: t.ID, From: t.Status, To: t.Status, Op: "update params"}
	}
	if err := p.ValidateFor(t.Action); err != nil {
		return err
	}
	t.Params = p
	t.UpdatedAt = now
	return nil
}

// UpcomingExecutions enumerates occurrences within the next `days`
// days. Non-ACTIVE tasks have no upcoming executions.
func (t *ScheduledTask) UpcomingExecutions(days int, now time.Time) []time.Time {
	if t.Status != StatusActive {
		return nil
	}
	out, err := t.Recurrence.Upcoming(days, now)
	if err != nil {
		return nil
	}
	return out
}

// Overdue reports whether the task's next run has slipped past now by
// more than tolerance.
func (t *ScheduledTask) Overdue(now time.Time, tolerance time.Duration) bool {
	if t.NextRun == nil {
		return false
	}
	return now.Sub(*t.NextRun) > tolerance
}

// Describe renders a one-line human-readable summary, used for audit
// messages and free-text search.
func (t *ScheduledTask) Describe() string {
	var b strings.Builder
	switch t.Action {
	case ActionArm:
		b.WriteString("arm (" + string(t.Params.Mode) + ")")
	case ActionDisarm:
		b.WriteString("disarm")
	default:
		b.WriteString(string(t.Action))
	}
	b.WriteString(" ")
	b.WriteString(t.Recurrence.Describe())
	if len(t.Params.ZoneIDs) > 0 {
		b.WriteString(" zones=" + strings.Join(t.Params.ZoneIDs, ","))
	}
	return b.String()
}
