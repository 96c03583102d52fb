// Package validate checks candidate and updated scheduled tasks against
// structural, timing, business, quota, and conflict rules.
//
// The pipeline is pure computation plus store reads; it never mutates
// the task. Errors block, warnings advise.
package validate

import (
	"context"
	"fmt"
	"time"

	"sentinel/internal/schedule"
	"sentinel/internal/task"
	logx "sentinel/pkg/logx"
)

// Config tunes the rule pipeline. Zero values take the documented
// defaults via withDefaults.
type Config struct {
	MinAdvance     time.Duration // default 5m
	MaxAdvanceDays int           // default 365

	NightStart schedule.TimeOfDay // default 22:00
	NightEnd   schedule.TimeOfDay // default 06:00
	// BlockNight escalates night-window schedules from warning to error.
	BlockNight bool

	BusinessHoursOnly bool
	BlockWeekends     bool

	MaxPerUser int // default 50

	ConflictTolerance     time.Duration // default 5m
	LogicalConflictWindow time.Duration // default 15m
}

func (c Config) withDefaults() Config {
	if c.MinAdvance <= 0 {
		c.MinAdvance = 5 * time.Minute
	}
	if c.MaxAdvanceDays <= 0 {
		c.MaxAdvanceDays = 365
	}
	var zero schedule.TimeOfDay
	if c.NightStart == zero && c.NightEnd == zero {
		c.NightStart, _ = schedule.NewTimeOfDay(22, 0)
		c.NightEnd, _ = schedule.NewTimeOfDay(6, 0)
	}
	if c.MaxPerUser <= 0 {
		c.MaxPerUser = 50
	}
	if c.ConflictTolerance <= 0 {
		c.ConflictTolerance = 5 * time.Minute
	}
	if c.LogicalConflictWindow <= 0 {
		c.LogicalConflictWindow = 15 * time.Minute
	}
	return c
}

// Issue is one finding: the offending field and a human-readable message.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Report is the merged outcome of all five stages.
type Report struct {
	OK       bool    `json:"ok"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

func (r *Report) addError(field, format string, args ...any) {
	r.Errors = append(r.Errors, Issue{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (r *Report) addWarning(field, format string, args ...any) {
	r.Warnings = append(r.Warnings, Issue{Field: field, Message: fmt.Sprintf(format, args...)})
}

type Validator struct {
	cfg   Config
	store task.Store
	log   logx.Logger
}

func New(cfg Config, store task.Store, log logx.Logger) *Validator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Validator{cfg: cfg.withDefaults(), store: store, log: log}
}

// ValidateTask runs the full pipeline against a candidate task.
// The returned error is reserved for store failures; rule violations
// land in the Report.
func (v *Validator) ValidateTask(ctx context.Context, t *task.ScheduledTask, now time.Time) (Report, error) {
	return v.validate(ctx, t, now, "")
}

// ValidateUpdate runs the same pipeline against a modified copy,
// excluding the task's own prior existence from the quota and conflict
// pools it is compared against.
func (v *Validator) ValidateUpdate(ctx context.Context, t *task.ScheduledTask, now time.Time) (Report, error) {
	return v.validate(ctx, t, now, t.ID)
}

func (v *Validator) validate(ctx context.Context, t *task.ScheduledTask, now time.Time, excludeID string) (Report, error) {
	var r Report

	next := v.basicStage(&r, t, now)
	if next != nil {
		v.timeStage(&r, t, *next, now)
		v.businessStage(&r, t)
	}
	if err := v.quotaStage(ctx, &r, t, excludeID); err != nil {
		return Report{}, err
	}
	if err := v.conflictStage(ctx, &r, t, excludeID); err != nil {
		return Report{}, err
	}

	r.OK = len(r.Errors) == 0
	if !r.OK {
		v.log.Debug("schedule rejected by validator",
			logx.String("user", t.UserID),
			logx.Int("errors", len(r.Errors)),
			logx.Int("warnings", len(r.Warnings)))
	}
	return r, nil
}

// basicStage checks structure and returns the computed next occurrence
// when it exists; later stages are skipped without one.
func (v *Validator) basicStage(r *Report, t *task.ScheduledTask, now time.Time) *time.Time {
	if err := t.Recurrence.Validate(); err != nil {
		r.addError("recurrence", "%v", err)
		return nil
	}
	if !t.Action.Valid() {
		r.addError("action", "unknown action type %q", string(t.Action))
		return nil
	}
	if err := t.Params.ValidateFor(t.Action); err != nil {
		r.addError("params", "%v", err)
	}
	next, err := t.Recurrence.NextOccurrence(now)
	if err != nil {
		r.addError("recurrence", "next execution is not computable: %v", err)
		return nil
	}
	return &next
}

func (v *Validator) timeStage(r *Report, t *task.ScheduledTask, next, now time.Time) {
	if next.Before(now.Add(v.cfg.MinAdvance)) {
		r.addError("next_run", "next execution must be at least %s in the future", v.cfg.MinAdvance)
	}
	if next.After(now.AddDate(0, 0, v.cfg.MaxAdvanceDays)) {
		r.addError("next_run", "next execution must be within %d days", v.cfg.MaxAdvanceDays)
	}

	if t.Recurrence.At.InWindow(v.cfg.NightStart, v.cfg.NightEnd) {
		if v.cfg.BlockNight {
			r.addError("time", "night-time scheduling (%s-%s) is not allowed", v.cfg.NightStart, v.cfg.NightEnd)
		} else {
			r.addWarning("time", "scheduled during night hours (%s-%s)", v.cfg.NightStart, v.cfg.NightEnd)
		}
	}

	if v.cfg.BusinessHoursOnly && !t.Recurrence.At.IsBusinessHours() {
		r.addError("time", "schedules are restricted to business hours (09:00-18:00)")
	}

	if v.cfg.BlockWeekends {
		for _, d := range t.Recurrence.Days {
			if d.IsWeekend() {
				r.addError("days", "weekend scheduling is not allowed (%s)", d)
				break
			}
		}
	}
}

// businessStage emits advisory warnings only.
func (v *Validator) businessStage(r *Report, t *task.ScheduledTask) {
	at := t.Recurrence.At
	switch t.Action {
	case task.ActionArm:
		lateStart, _ := schedule.NewTimeOfDay(23, 0)
		lateEnd, _ := schedule.NewTimeOfDay(5, 0)
		if t.Params.Mode == task.ModeStay && at.InWindow(lateStart, lateEnd) {
			r.addWarning("time", "arming in stay mode very late at night; consider away mode or an earlier time")
		}
	case task.ActionDisarm:
		morningStart, _ := schedule.NewTimeOfDay(6, 0)
		morningEnd, _ := schedule.NewTimeOfDay(10, 0)
		if !at.InWindow(morningStart, morningEnd) {
			r.addWarning("time", "disarming outside the typical morning window (06:00-10:00)")
		}
	}
}

func (v *Validator) quotaStage(ctx context.Context, r *Report, t *task.ScheduledTask, excludeID string) error {
	if v.store == nil {
		return nil
	}
	others, err := v.store.FindByUserAndStatus(ctx, t.UserID, task.StatusActive, task.StatusPending)
	if err != nil {
		return fmt.Errorf("quota check: %w", err)
	}
	count := 0
	for _, o := range others {
		if o.ID == excludeID {
			continue
		}
		count++
	}
	switch {
	case count >= v.cfg.MaxPerUser:
		r.addError("quota", "schedule limit reached (%d of %d)", count, v.cfg.MaxPerUser)
	case count == v.cfg.MaxPerUser-1:
		r.addWarning("quota", "approaching the schedule limit (%d of %d)", count, v.cfg.MaxPerUser)
	}
	return nil
}

func (v *Validator) conflictStage(ctx context.Context, r *Report, t *task.ScheduledTask, excludeID string) error {
	if v.store == nil {
		return nil
	}
	others, err := v.store.FindByUserAndStatus(ctx, t.UserID, task.StatusActive)
	if err != nil {
		return fmt.Errorf("conflict check: %w", err)
	}
	for _, o := range others {
		if o.ID == excludeID || o.ID == t.ID {
			continue
		}
		shared := t.Recurrence.SharedDays(o.Recurrence)
		if len(shared) == 0 {
			continue
		}
		gap := clockDistance(t.Recurrence.At, o.Recurrence.At)
		switch {
		case gap <= v.cfg.ConflictTolerance:
			r.addError("conflict", "conflicts with existing schedule %q (%s) on %s: times within %s",
				o.Describe(), o.ID, shared[0], v.cfg.ConflictTolerance)
		case t.Action != o.Action && gap <= v.cfg.LogicalConflictWindow:
			// An arm and a disarm implausibly close together likely
			// indicates a mistake, not an impossibility.
			r.addWarning("conflict", "arm/disarm pair within %s of schedule %q on %s",
				gap, o.Describe(), shared[0])
		}
	}
	return nil
}

// clockDistance is the circular distance between two times of day.
func clockDistance(a, b schedule.TimeOfDay) time.Duration {
	d := a.Minutes() - b.Minutes()
	if d < 0 {
		d = -d
	}
	if wrap := 24*60 - d; wrap < d {
		d = wrap
	}
	return time.Duration(d) * time.Minute
}
