package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sentinel/internal/eventbus"
	"sentinel/internal/panel"
	"sentinel/internal/task"
	logx "sentinel/pkg/logx"
)

// retryDelay is the backoff before retry n (0-based failure count):
// 5, 10, 20, 40, ... minutes. The growth is deliberately uncapped;
// maxRetries exhausts long before the delay matters.
func retryDelay(failures int) time.Duration {
	if failures < 0 {
		failures = 0
	}
	return 5 * time.Minute << uint(failures)
}

// ExecuteRequest runs one task now.
type ExecuteRequest struct {
	TaskID  string
	ActorID string

	// IgnoreOverdue skips the excessively-overdue refusal (sweeps set it).
	IgnoreOverdue bool

	// DueBy widens the not-yet-due gate: a task whose next run is at or
	// before this instant counts as due. Zero means now. Sweeps set it
	// to their selection cutoff so a task picked up tolerance-early
	// still executes.
	DueBy time.Time

	// MaxRetries overrides the configured retry cap when > 0.
	MaxRetries int
}

// ExecutionReport is the payload for a single execution attempt.
type ExecutionReport struct {
	TaskID   string      `json:"task_id"`
	Success  bool        `json:"success"`
	Status   task.Status `json:"status"`
	Message  string      `json:"message,omitempty"`
	Error    string      `json:"error,omitempty"`
	Warnings []string    `json:"warnings,omitempty"`
	RetryAt  *time.Time  `json:"retry_at,omitempty"`
}

// ExecuteTask validates readiness, runs advisory pre-checks, delegates
// to the panel, and books the outcome on the aggregate with backoff
// retry scheduling. Every outcome is audited and published; audit/event
// failures never mask the execution result.
func (s *Service) ExecuteTask(ctx context.Context, req ExecuteRequest) Result[ExecutionReport] {
	return guard(s.log, "execute", func() Result[ExecutionReport] {
		now := s.now()

		t, err := s.store.FindByID(ctx, req.TaskID)
		if err != nil {
			if errors.Is(err, task.ErrNotFound) {
				return failDetails[ExecutionReport](KindNotFound, map[string]any{"task_id": req.TaskID}, "schedule %s not found", req.TaskID)
			}
			return fail[ExecutionReport](KindSystem, "load schedule: %v", err)
		}

		// Readiness gates.
		if t.Status != task.StatusActive {
			return fail[ExecutionReport](KindExecution, "schedule %s is not executable (status %s)", t.ID, t.Status)
		}
		if t.NextRun == nil {
			return fail[ExecutionReport](KindExecution, "schedule %s has no next execution", t.ID)
		}
		dueBy := req.DueBy
		if dueBy.IsZero() {
			dueBy = now
		}
		if t.NextRun.After(dueBy) {
			return fail[ExecutionReport](KindExecution, "schedule %s is not due until %s", t.ID, t.NextRun.Format(time.RFC3339))
		}
		// Negative when the task runs tolerance-early.
		overdueBy := now.Sub(*t.NextRun)
		if !req.IgnoreOverdue && overdueBy > s.cfg.OverdueGrace {
			return failDetails[ExecutionReport](KindExecution,
				map[string]any{"overdue": overdueBy.String()},
				"schedule %s is overdue by %s (grace %s)", t.ID, overdueBy.Round(time.Second), s.cfg.OverdueGrace)
		}

		warnings := s.preExecutionWarnings(ctx, t, overdueBy)

		// Pace panel calls; sweeps can line up many tasks at once.
		if err := s.limiter.Wait(ctx); err != nil {
			return fail[ExecutionReport](KindSystem, "rate limit wait: %v", err)
		}

		start := s.now()
		res, callErr := s.callPanel(ctx, t)
		dur := s.now().Sub(start)

		if callErr == nil && res.Success {
			return s.bookSuccess(ctx, t, req, res, warnings, dur)
		}

		errText := res.Err
		if callErr != nil {
			errText = callErr.Error()
		}
		if errText == "" {
			errText = "panel action failed"
		}
		return s.bookFailure(ctx, t, req, errText, warnings, dur)
	})
}

func (s *Service) callPanel(ctx context.Context, t *task.ScheduledTask) (res panel.Result, err error) {
	if s.ctrl == nil {
		return panel.Result{}, errors.New("no panel controller configured")
	}
	// A panicking panel integration must not take the scheduler down.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panel panic: %v", r)
		}
	}()
	switch t.Action {
	case task.ActionArm:
		return s.ctrl.Arm(ctx, t.Params.Mode, t.UserID)
	case task.ActionDisarm:
		return s.ctrl.Disarm(ctx, t.UserID)
	default:
		return panel.Result{}, fmt.Errorf("unknown action type %q", t.Action)
	}
}

// preExecutionWarnings runs the advisory checks: conflicting panel
// state, odd-hour execution, moderate overdue.
func (s *Service) preExecutionWarnings(ctx context.Context, t *task.ScheduledTask, overdueBy time.Duration) []string {
	var warnings []string

	if s.ctrl != nil {
		if state, err := s.ctrl.CurrentState(ctx); err == nil {
			switch {
			case t.Action == task.ActionArm && state.Armed():
				warnings = append(warnings, fmt.Sprintf("system already armed (%s)", state))
			case t.Action == task.ActionDisarm && !state.Armed():
				warnings = append(warnings, "system already disarmed")
			}
		}
	}

	at := t.Recurrence.At
	switch t.Action {
	case task.ActionArm:
		if h := at.Hour(); h >= 8 && h < 20 {
			warnings = append(warnings, "arming during typical waking hours")
		}
	case task.ActionDisarm:
		if h := at.Hour(); h < 6 || h >= 10 {
			warnings = append(warnings, "disarming outside the typical morning window")
		}
	}

	if overdueBy > 5*time.Minute {
		warnings = append(warnings, fmt.Sprintf("execution is %s late", overdueBy.Round(time.Minute)))
	}
	return warnings
}

func (s *Service) bookSuccess(ctx context.Context, t *task.ScheduledTask, req ExecuteRequest,
	res panel.Result, warnings []string, dur time.Duration) Result[ExecutionReport] {
	now := s.now()
	if err := t.RecordSuccess(now); err != nil {
		// Next-occurrence computation failed; the aggregate flipped to
		// FAILED and recorded the error. Persist that state.
		if saveErr := s.store.Save(ctx, t); saveErr != nil {
			s.log.Error("save after success-bookkeeping failure", logx.Err(saveErr), logx.String("task", t.ID))
		}
		return fail[ExecutionReport](KindSystem, "record success: %v", err)
	}
	if err := s.store.Save(ctx, t); err != nil {
		return fail[ExecutionReport](KindSystem, "save schedule: %v", err)
	}

	s.audit(ctx, "schedule.execute", req.ActorID, t.ID, true, "executed "+t.Describe(), map[string]any{
		"message":  res.Message,
		"state":    res.State,
		"warnings": warnings,
		"next_run": t.NextRun,
	})
	s.publish(eventbus.TopicScheduleExecuted, ExecutionEvent{
		TaskID: t.ID, UserID: t.UserID, Action: string(t.Action),
		Success: true, Attempt: t.ExecutionCount, Duration: dur,
	})
	s.log.Info("schedule executed",
		logx.String("task", t.ID),
		logx.Duration("dur", dur),
		logx.Int("executions", t.ExecutionCount))

	return ok(ExecutionReport{
		TaskID: t.ID, Success: true, Status: t.Status,
		Message: res.Message, Warnings: warnings,
	})
}

func (s *Service) bookFailure(ctx context.Context, t *task.ScheduledTask, req ExecuteRequest,
	errText string, warnings []string, dur time.Duration) Result[ExecutionReport] {
	now := s.now()
	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = s.cfg.MaxRetries
	}

	var retryAt *time.Time
	if t.FailureCount < maxRetries {
		next := now.Add(retryDelay(t.FailureCount))
		if err := t.RecordRetryableFailure(errText, now, next); err != nil {
			return fail[ExecutionReport](KindSystem, "record failure: %v", err)
		}
		retryAt = &next
	} else {
		if err := t.MarkExecutionFailed(errText, now); err != nil {
			return fail[ExecutionReport](KindSystem, "mark failed: %v", err)
		}
	}
	if err := s.store.Save(ctx, t); err != nil {
		return fail[ExecutionReport](KindSystem, "save schedule: %v", err)
	}

	s.audit(ctx, "schedule.execute", req.ActorID, t.ID, false, "execution failed: "+errText, map[string]any{
		"failures":    t.FailureCount,
		"max_retries": maxRetries,
		"retry_at":    retryAt,
		"warnings":    warnings,
	})
	s.publish(eventbus.TopicScheduleFailed, ExecutionEvent{
		TaskID: t.ID, UserID: t.UserID, Action: string(t.Action),
		Success: false, Error: errText, Attempt: t.ExecutionCount,
		RetryAt: retryAt, Duration: dur,
	})
	if retryAt != nil {
		s.log.Warn("schedule execution failed; retry scheduled",
			logx.String("task", t.ID),
			logx.String("err", errText),
			logx.Time("retry_at", *retryAt),
			logx.Int("failures", t.FailureCount))
	} else {
		s.log.Error("schedule permanently failed",
			logx.String("task", t.ID),
			logx.String("err", errText),
			logx.Int("failures", t.FailureCount))
	}

	return ok(ExecutionReport{
		TaskID: t.ID, Success: false, Status: t.Status,
		Error: errText, Warnings: warnings, RetryAt: retryAt,
	})
}

// ---- batch execution ----

// SweepOptions tune one due-task sweep. Zero values take the service
// config defaults.
type SweepOptions struct {
	Tolerance   time.Duration
	MaxTasks    int
	StopOnError bool

	// MaxOverdueAge, when > 0, filters out tasks overdue beyond this
	// age so stale tasks are not retried far past their window.
	MaxOverdueAge time.Duration
}

// SweepReport summarizes one batch run.
type SweepReport struct {
	Examined  int               `json:"examined"`
	Executed  int               `json:"executed"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Skipped   int               `json:"skipped"`
	Reports   []ExecutionReport `json:"reports,omitempty"`
}

// ExecuteDue selects ACTIVE tasks due within the tolerance window and
// executes them via the single-task path. The batch never exceeds
// MaxTasks, and a single task's failure only stops the batch when
// StopOnError is set.
func (s *Service) ExecuteDue(ctx context.Context, opts SweepOptions) Result[SweepReport] {
	if opts.Tolerance <= 0 {
		opts.Tolerance = s.cfg.DueTolerance
	}
	if opts.MaxTasks <= 0 {
		opts.MaxTasks = s.cfg.MaxTasks
	}
	cutoff := s.now().Add(opts.Tolerance)
	return s.sweep(ctx, cutoff, opts, "sweep.due")
}

// ExecuteOverdue is the due path restricted to already-overdue tasks
// and additionally dropping tasks overdue beyond MaxOverdueAge.
func (s *Service) ExecuteOverdue(ctx context.Context, opts SweepOptions) Result[SweepReport] {
	if opts.MaxTasks <= 0 {
		opts.MaxTasks = s.cfg.MaxTasks
	}
	if opts.MaxOverdueAge <= 0 {
		opts.MaxOverdueAge = s.cfg.MaxOverdueAge
	}
	return s.sweep(ctx, s.now(), opts, "sweep.overdue")
}

func (s *Service) sweep(ctx context.Context, cutoff time.Time, opts SweepOptions, category string) Result[SweepReport] {
	return guard(s.log, category, func() Result[SweepReport] {
		now := s.now()
		fetchLimit := opts.MaxTasks
		if opts.MaxOverdueAge > 0 {
			// Stale tasks are dropped below; fetch uncapped so they
			// cannot consume the batch slots of fresh due tasks.
			fetchLimit = 0
		}
		due, err := s.store.FindDueBefore(ctx, cutoff, fetchLimit)
		if err != nil {
			return fail[SweepReport](KindSystem, "find due tasks: %v", err)
		}

		var rep SweepReport
		rep.Examined = len(due)
		for _, t := range due {
			if opts.MaxOverdueAge > 0 && t.NextRun != nil && now.Sub(*t.NextRun) > opts.MaxOverdueAge {
				rep.Skipped++
				s.log.Debug("skipping stale overdue task",
					logx.String("task", t.ID),
					logx.Duration("overdue", now.Sub(*t.NextRun)))
				continue
			}
			if opts.MaxTasks > 0 && rep.Executed >= opts.MaxTasks {
				break
			}

			res := s.ExecuteTask(ctx, ExecuteRequest{TaskID: t.ID, IgnoreOverdue: true, DueBy: cutoff})
			rep.Executed++
			switch {
			case res.OK && res.Data.Success:
				rep.Succeeded++
				rep.Reports = append(rep.Reports, res.Data)
			case res.OK:
				rep.Failed++
				rep.Reports = append(rep.Reports, res.Data)
			default:
				rep.Failed++
				rep.Reports = append(rep.Reports, ExecutionReport{TaskID: t.ID, Success: false, Error: res.Err.Message})
			}

			failed := !res.OK || !res.Data.Success
			if failed && (opts.StopOnError || s.cfg.StopOnError) {
				break
			}
		}

		s.audit(ctx, category, "", "", rep.Failed == 0,
			fmt.Sprintf("%s: %d examined, %d succeeded, %d failed, %d skipped",
				category, rep.Examined, rep.Succeeded, rep.Failed, rep.Skipped),
			rep)
		s.publish(eventbus.TopicSweepCompleted, SweepEvent{
			Examined: rep.Examined, Executed: rep.Executed,
			Succeeded: rep.Succeeded, Failed: rep.Failed, Skipped: rep.Skipped,
		})
		return ok(rep)
	})
}
