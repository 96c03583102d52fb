package orchestrate

import (
	"context"
	"time"

	"sentinel/internal/eventbus"
	"sentinel/internal/task"
	logx "sentinel/pkg/logx"
)

// CancelRequest cancels one schedule with an operator-supplied reason.
type CancelRequest struct {
	ActorID string
	TaskID  string
	Reason  string

	// Force permits cancelling outside PENDING/ACTIVE, for cleaning up
	// FAILED schedules. Terminal states still reject the transition.
	Force bool
}

// CancelImpact describes what the cancellation takes out of service:
// the executions that will no longer happen over the next month, the
// zones they covered, and the user's next remaining schedule of the
// same action type, if any.
type CancelImpact struct {
	MissedExecutions []time.Time `json:"missed_executions,omitempty"`
	AffectedZones    []string    `json:"affected_zones,omitempty"`
	NextSameAction   *time.Time  `json:"next_same_action,omitempty"`
}

// CancelData is the success payload of Cancel.
type CancelData struct {
	Task   *task.ScheduledTask `json:"task"`
	Impact CancelImpact        `json:"impact"`
}

// Cancel moves a schedule to CANCELLED after the ownership check,
// computing the impact analysis from the pre-cancellation state.
func (s *Service) Cancel(ctx context.Context, req CancelRequest) Result[CancelData] {
	return guard(s.log, "cancel", func() Result[CancelData] {
		t, fe := s.loadOwned(ctx, req.ActorID, req.TaskID)
		if fe != nil {
			return failWith[CancelData](*fe)
		}
		if !req.Force && t.Status != task.StatusPending && t.Status != task.StatusActive {
			return fail[CancelData](KindValidation, "schedule %s cannot be cancelled in status %s", t.ID, t.Status)
		}
		return s.cancel(ctx, t, req.ActorID, req.Reason, "schedule.cancel")
	})
}

// EmergencyCancel is the admin-only path used during incidents. It
// bypasses the ownership check (admin status is still required) but
// the aggregate's own transition rules still apply.
func (s *Service) EmergencyCancel(ctx context.Context, actorID, taskID, reason string) Result[CancelData] {
	return guard(s.log, "cancel.emergency", func() Result[CancelData] {
		if !s.isAdmin(ctx, actorID) {
			return fail[CancelData](KindPermission, "emergency cancel requires admin")
		}
		t, err := s.store.FindByID(ctx, taskID)
		if err != nil {
			return fail[CancelData](KindNotFound, "schedule %s not found", taskID)
		}
		if reason == "" {
			reason = "emergency cancellation"
		}
		return s.cancel(ctx, t, actorID, reason, "schedule.cancel.emergency")
	})
}

func (s *Service) cancel(ctx context.Context, t *task.ScheduledTask, actorID, reason, category string) Result[CancelData] {
	now := s.now()

	// Impact has to come from the live state; a cancelled task reports
	// no upcoming executions.
	impact := s.cancelImpact(ctx, t, now)

	if err := t.Cancel(reason, now); err != nil {
		return fail[CancelData](KindValidation, "%v", err)
	}
	if err := s.store.Save(ctx, t); err != nil {
		return fail[CancelData](KindSystem, "save schedule: %v", err)
	}

	s.audit(ctx, category, actorID, t.ID, true, "cancelled "+t.Describe(), map[string]any{
		"reason":            reason,
		"missed_executions": len(impact.MissedExecutions),
		"affected_zones":    impact.AffectedZones,
	})
	s.publish(eventbus.TopicScheduleCancelled, ScheduleEvent{
		TaskID: t.ID, UserID: t.UserID, ActorID: actorID,
		Action: string(t.Action), Status: string(t.Status),
	})
	s.log.Info("schedule cancelled",
		logx.String("task", t.ID),
		logx.String("reason", reason),
		logx.Int("missed", len(impact.MissedExecutions)))

	return ok(CancelData{Task: t, Impact: impact})
}

func (s *Service) cancelImpact(ctx context.Context, t *task.ScheduledTask, now time.Time) CancelImpact {
	impact := CancelImpact{
		MissedExecutions: t.UpcomingExecutions(30, now),
		AffectedZones:    append([]string(nil), t.Params.ZoneIDs...),
	}

	// Best effort: a store failure here only loses the hint.
	others, err := s.store.FindByUserAndStatus(ctx, t.UserID, task.StatusActive)
	if err != nil {
		return impact
	}
	for _, o := range others {
		if o.ID == t.ID || o.Action != t.Action || o.NextRun == nil {
			continue
		}
		if impact.NextSameAction == nil || o.NextRun.Before(*impact.NextSameAction) {
			nr := *o.NextRun
			impact.NextSameAction = &nr
		}
	}
	return impact
}

// BulkCancelResult is the per-task outcome of a BulkCancel.
type BulkCancelResult struct {
	TaskID string             `json:"task_id"`
	Result Result[CancelData] `json:"result"`
}

// BulkCancel cancels several schedules with a shared reason, reporting
// each outcome independently.
func (s *Service) BulkCancel(ctx context.Context, actorID string, taskIDs []string, reason string) []BulkCancelResult {
	out := make([]BulkCancelResult, 0, len(taskIDs))
	for _, id := range taskIDs {
		res := s.Cancel(ctx, CancelRequest{ActorID: actorID, TaskID: id, Reason: reason})
		out = append(out, BulkCancelResult{TaskID: id, Result: res})
	}
	return out
}
