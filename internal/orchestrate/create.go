package orchestrate

import (
	"context"
	"errors"

	"sentinel/internal/eventbus"
	"sentinel/internal/parse"
	"sentinel/internal/schedule"
	"sentinel/internal/task"
	"sentinel/internal/validate"
	logx "sentinel/pkg/logx"
)

// CreateRequest creates a schedule either from a free-text command or
// from an explicit recurrence + action. Command wins when both are set.
type CreateRequest struct {
	UserID  string
	Command string

	Recurrence *schedule.Recurrence
	Action     task.ActionType
	Params     task.ActionParams

	// Hold leaves the task PENDING; by default it is activated right away.
	Hold bool
}

// CreateData is the success payload of Create.
type CreateData struct {
	Task     *task.ScheduledTask `json:"task"`
	Warnings []validate.Issue    `json:"warnings,omitempty"`
}

// Create parses (when given a command), validates, persists, audits,
// and publishes a new schedule.
func (s *Service) Create(ctx context.Context, req CreateRequest) Result[CreateData] {
	return guard(s.log, "create", func() Result[CreateData] {
		now := s.now()

		rec := req.Recurrence
		action := req.Action
		params := req.Params
		if req.Command != "" {
			parsed, err := s.parser.Parse(req.Command)
			if err != nil {
				return failDetails[CreateData](KindValidation,
					map[string]any{"suggestions": parse.Suggest(err)},
					"parse command: %v", err)
			}
			rec = &parsed.Recurrence
			action = parsed.Action
			params = parsed.Params
		}
		if rec == nil {
			return fail[CreateData](KindValidation, "a command or an explicit recurrence is required")
		}

		t, err := task.New(req.UserID, *rec, action, params, now)
		if err != nil {
			return fail[CreateData](KindValidation, "%v", err)
		}

		report, err := s.validator.ValidateTask(ctx, t, now)
		if err != nil {
			s.log.Error("validator store failure", logx.Any("err", err))
			return fail[CreateData](KindSystem, "validation unavailable")
		}
		if !report.OK {
			return failDetails[CreateData](KindValidation,
				map[string]any{
					"errors":      report.Errors,
					"warnings":    report.Warnings,
					"suggestions": validate.Suggest(report),
				},
				"schedule rejected: %s", report.Errors[0].Message)
		}

		if !req.Hold {
			if err := t.Activate(now); err != nil {
				return fail[CreateData](KindSystem, "activate: %v", err)
			}
		}
		if err := s.store.Save(ctx, t); err != nil {
			return fail[CreateData](KindSystem, "save schedule: %v", err)
		}

		s.audit(ctx, "schedule.create", req.UserID, t.ID, true, "created "+t.Describe(), map[string]any{
			"status":   t.Status,
			"warnings": len(report.Warnings),
		})
		s.publish(eventbus.TopicScheduleCreated, ScheduleEvent{
			TaskID: t.ID, UserID: t.UserID, ActorID: req.UserID,
			Action: string(t.Action), Status: string(t.Status), NextRun: t.NextRun,
		})
		s.log.Info("schedule created",
			logx.String("task", t.ID),
			logx.String("user", t.UserID),
			logx.String("describe", t.Describe()))

		return ok(CreateData{Task: t, Warnings: report.Warnings})
	})
}

// Activate moves a held (PENDING) schedule to ACTIVE.
func (s *Service) Activate(ctx context.Context, actorID, taskID string) Result[*task.ScheduledTask] {
	return guard(s.log, "activate", func() Result[*task.ScheduledTask] {
		t, fe := s.loadOwned(ctx, actorID, taskID)
		if fe != nil {
			return failWith[*task.ScheduledTask](*fe)
		}
		if err := t.Activate(s.now()); err != nil {
			return fail[*task.ScheduledTask](KindValidation, "%v", err)
		}
		if err := s.store.Save(ctx, t); err != nil {
			return fail[*task.ScheduledTask](KindSystem, "save schedule: %v", err)
		}
		s.audit(ctx, "schedule.activate", actorID, t.ID, true, "activated "+t.Describe(), nil)
		return ok(t)
	})
}

// loadOwned fetches a task and enforces the ownership/admin check.
// A non-nil Failure means the caller should return it.
func (s *Service) loadOwned(ctx context.Context, actorID, taskID string) (*task.ScheduledTask, *Failure) {
	t, err := s.store.FindByID(ctx, taskID)
	if err != nil {
		var f Failure
		if errors.Is(err, task.ErrNotFound) {
			f = Failure{Kind: KindNotFound, Message: "schedule " + taskID + " not found",
				Details: map[string]any{"task_id": taskID}}
		} else {
			f = Failure{Kind: KindSystem, Message: "load schedule: " + err.Error()}
		}
		return nil, &f
	}
	if !s.canManage(ctx, actorID, t.UserID) {
		return nil, &Failure{Kind: KindPermission, Message: "not allowed to manage schedule " + taskID}
	}
	return t, nil
}
