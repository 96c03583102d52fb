package orchestrate

import (
	"context"
	"fmt"
	"strings"

	"sentinel/internal/eventbus"
	"sentinel/internal/schedule"
	"sentinel/internal/task"
	"sentinel/internal/validate"
	logx "sentinel/pkg/logx"
)

// UpdateRequest carries partial changes to an existing schedule. Nil
// fields are left untouched.
type UpdateRequest struct {
	ActorID string
	TaskID  string

	Days     []schedule.Weekday
	At       *schedule.TimeOfDay
	Timezone *string
	Params   *task.ActionParams

	// Force permits updating tasks outside PENDING/ACTIVE, for admin
	// repair of FAILED schedules.
	Force bool
}

// FieldChange records one applied field delta for auditing.
type FieldChange struct {
	Field string `json:"field"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// UpdateData is the success payload of Update.
type UpdateData struct {
	Task     *task.ScheduledTask `json:"task"`
	Changes  []FieldChange       `json:"changes"`
	Warnings []validate.Issue    `json:"warnings,omitempty"`
}

// Update applies the requested field changes to a schedule after
// ownership, status-eligibility, and (when the recurrence changes)
// full re-validation. A request that changes nothing succeeds with an
// empty change list and skips the save.
func (s *Service) Update(ctx context.Context, req UpdateRequest) Result[UpdateData] {
	return guard(s.log, "update", func() Result[UpdateData] {
		now := s.now()

		t, fe := s.loadOwned(ctx, req.ActorID, req.TaskID)
		if fe != nil {
			return failWith[UpdateData](*fe)
		}
		if !req.Force && t.Status != task.StatusPending && t.Status != task.StatusActive {
			return fail[UpdateData](KindValidation, "schedule %s cannot be updated in status %s", t.ID, t.Status)
		}

		rec, recChanged := mergedRecurrence(t, req)
		changes := diffRecurrence(t.Recurrence, rec)
		if req.Params != nil && !paramsEqual(t.Params, *req.Params) {
			changes = append(changes, FieldChange{
				Field: "params",
				From:  describeParams(t.Params),
				To:    describeParams(*req.Params),
			})
		}
		if len(changes) == 0 {
			return ok(UpdateData{Task: t})
		}

		var warnings []validate.Issue
		if recChanged {
			// Re-validate against a copy so a rejection leaves the
			// stored task untouched.
			probe := *t
			probe.Recurrence = rec
			report, err := s.validator.ValidateUpdate(ctx, &probe, now)
			if err != nil {
				s.log.Error("validator store failure", logx.Err(err))
				return fail[UpdateData](KindSystem, "validation unavailable")
			}
			if !report.OK {
				return failDetails[UpdateData](KindValidation,
					map[string]any{
						"errors":      report.Errors,
						"warnings":    report.Warnings,
						"suggestions": validate.Suggest(report),
					},
					"update rejected: %s", report.Errors[0].Message)
			}
			warnings = report.Warnings
		}

		if recChanged {
			if err := t.UpdateRecurrence(rec, now); err != nil {
				return fail[UpdateData](KindValidation, "%v", err)
			}
		}
		if req.Params != nil {
			if err := t.UpdateParams(*req.Params, now); err != nil {
				return fail[UpdateData](KindValidation, "%v", err)
			}
		}
		if err := s.store.Save(ctx, t); err != nil {
			return fail[UpdateData](KindSystem, "save schedule: %v", err)
		}

		s.audit(ctx, "schedule.update", req.ActorID, t.ID, true, "updated "+t.Describe(), map[string]any{
			"changes":  changes,
			"warnings": len(warnings),
		})
		s.publish(eventbus.TopicScheduleUpdated, ScheduleEvent{
			TaskID: t.ID, UserID: t.UserID, ActorID: req.ActorID,
			Action: string(t.Action), Status: string(t.Status), NextRun: t.NextRun,
		})
		s.log.Info("schedule updated",
			logx.String("task", t.ID),
			logx.Int("changes", len(changes)))

		return ok(UpdateData{Task: t, Changes: changes, Warnings: warnings})
	})
}

// BulkUpdateResult is the per-task outcome of a BulkUpdate.
type BulkUpdateResult struct {
	TaskID string             `json:"task_id"`
	Result Result[UpdateData] `json:"result"`
}

// BulkUpdate applies the same field changes to several schedules and
// reports each outcome independently; one rejection does not abort the
// rest.
func (s *Service) BulkUpdate(ctx context.Context, actorID string, taskIDs []string, req UpdateRequest) []BulkUpdateResult {
	out := make([]BulkUpdateResult, 0, len(taskIDs))
	for _, id := range taskIDs {
		r := req
		r.ActorID = actorID
		r.TaskID = id
		out = append(out, BulkUpdateResult{TaskID: id, Result: s.Update(ctx, r)})
	}
	return out
}

// mergedRecurrence overlays the request's recurrence fields onto the
// task's current recurrence and reports whether anything changed.
func mergedRecurrence(t *task.ScheduledTask, req UpdateRequest) (schedule.Recurrence, bool) {
	rec := t.Recurrence
	changed := false
	if req.Days != nil {
		rec.Days = req.Days
		changed = true
	}
	if req.At != nil {
		rec.At = *req.At
		changed = true
	}
	if req.Timezone != nil {
		rec.Timezone = *req.Timezone
		changed = true
	}
	return rec, changed
}

func diffRecurrence(from, to schedule.Recurrence) []FieldChange {
	var changes []FieldChange
	if !daysEqual(from.Days, to.Days) {
		changes = append(changes, FieldChange{Field: "days", From: describeDays(from.Days), To: describeDays(to.Days)})
	}
	if !from.At.Equal(to.At) {
		changes = append(changes, FieldChange{Field: "time", From: from.At.Format24(), To: to.At.Format24()})
	}
	if from.Timezone != to.Timezone {
		changes = append(changes, FieldChange{Field: "timezone", From: from.Timezone, To: to.Timezone})
	}
	return changes
}

func daysEqual(a, b []schedule.Weekday) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[schedule.Weekday]bool, len(a))
	for _, d := range a {
		seen[d] = true
	}
	for _, d := range b {
		if !seen[d] {
			return false
		}
	}
	return true
}

func describeDays(days []schedule.Weekday) string {
	parts := make([]string, 0, len(days))
	for _, d := range days {
		parts = append(parts, d.String())
	}
	return strings.Join(parts, ",")
}

func paramsEqual(a, b task.ActionParams) bool {
	if a.Mode != b.Mode || len(a.ZoneIDs) != len(b.ZoneIDs) {
		return false
	}
	for i := range a.ZoneIDs {
		if a.ZoneIDs[i] != b.ZoneIDs[i] {
			return false
		}
	}
	return true
}

func describeParams(p task.ActionParams) string {
	if len(p.ZoneIDs) == 0 {
		return string(p.Mode)
	}
	return fmt.Sprintf("%s zones=%s", p.Mode, strings.Join(p.ZoneIDs, ","))
}
