package validate

import (
	"context"
	"testing"
	"time"

	"sentinel/internal/schedule"
	"sentinel/internal/storage"
	"sentinel/internal/task"
	logx "sentinel/pkg/logx"
)

// Monday 2026-01-05 noon UTC.
var anchor = time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)

func tod(t *testing.T, hour, minute int) schedule.TimeOfDay {
	t.Helper()
	out, err := schedule.NewTimeOfDay(hour, minute)
	if err != nil {
		t.Fatalf("NewTimeOfDay: %v", err)
	}
	return out
}

func makeTask(t *testing.T, userID string, days []schedule.Weekday, at schedule.TimeOfDay, action task.ActionType) *task.ScheduledTask {
	t.Helper()
	params := task.ActionParams{}
	if action == task.ActionArm {
		params.Mode = task.ModeAway
	}
	st, err := task.New(userID, schedule.Recurrence{Days: days, At: at, Timezone: "UTC"}, action, params, anchor)
	if err != nil {
		t.Fatalf("task.New: %v", err)
	}
	return st
}

func activate(t *testing.T, st *task.ScheduledTask) *task.ScheduledTask {
	t.Helper()
	if err := st.Activate(anchor); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	return st
}

func TestValidateCleanSchedulePasses(t *testing.T) {
	t.Parallel()
	v := New(Config{}, storage.NewMemory(), logx.Logger{})
	st := makeTask(t, "u1", schedule.WorkWeek(), tod(t, 21, 0), task.ActionArm)

	rep, err := v.ValidateTask(context.Background(), st, anchor)
	if err != nil {
		t.Fatalf("ValidateTask: %v", err)
	}
	if !rep.OK {
		t.Fatalf("expected OK, errors: %+v", rep.Errors)
	}
}

func TestValidateMinAdvance(t *testing.T) {
	t.Parallel()
	v := New(Config{MinAdvance: 10 * time.Minute}, storage.NewMemory(), logx.Logger{})
	// Next occurrence 12:05, only five minutes out.
	st := makeTask(t, "u1", schedule.AllDays(), tod(t, 12, 5), task.ActionArm)

	rep, err := v.ValidateTask(context.Background(), st, anchor)
	if err != nil {
		t.Fatalf("ValidateTask: %v", err)
	}
	if rep.OK {
		t.Fatal("expected rejection for too-soon schedule")
	}
}

func TestValidateNightWindow(t *testing.T) {
	t.Parallel()
	mem := storage.NewMemory()

	warnOnly := New(Config{}, mem, logx.Logger{})
	st := makeTask(t, "u1", schedule.WorkWeek(), tod(t, 23, 30), task.ActionArm)
	rep, err := warnOnly.ValidateTask(context.Background(), st, anchor)
	if err != nil {
		t.Fatalf("ValidateTask: %v", err)
	}
	if !rep.OK || len(rep.Warnings) == 0 {
		t.Fatalf("expected night warning without rejection, got %+v", rep)
	}

	blocking := New(Config{BlockNight: true}, mem, logx.Logger{})
	rep, err = blocking.ValidateTask(context.Background(), st, anchor)
	if err != nil {
		t.Fatalf("ValidateTask: %v", err)
	}
	if rep.OK {
		t.Fatal("expected rejection with BlockNight")
	}
}

func TestValidateBusinessHoursOnly(t *testing.T) {
	t.Parallel()
	v := New(Config{BusinessHoursOnly: true}, storage.NewMemory(), logx.Logger{})
	st := makeTask(t, "u1", schedule.WorkWeek(), tod(t, 20, 0), task.ActionArm)

	rep, err := v.ValidateTask(context.Background(), st, anchor)
	if err != nil {
		t.Fatalf("ValidateTask: %v", err)
	}
	if rep.OK {
		t.Fatal("expected rejection outside business hours")
	}
}

func TestValidateBlockWeekends(t *testing.T) {
	t.Parallel()
	v := New(Config{BlockWeekends: true}, storage.NewMemory(), logx.Logger{})
	st := makeTask(t, "u1", schedule.WeekendDays(), tod(t, 10, 0), task.ActionArm)

	rep, err := v.ValidateTask(context.Background(), st, anchor)
	if err != nil {
		t.Fatalf("ValidateTask: %v", err)
	}
	if rep.OK {
		t.Fatal("expected rejection for weekend schedule")
	}
}

func TestValidateDisarmMorningWarning(t *testing.T) {
	t.Parallel()
	v := New(Config{}, storage.NewMemory(), logx.Logger{})
	st := makeTask(t, "u1", schedule.WorkWeek(), tod(t, 14, 0), task.ActionDisarm)

	rep, err := v.ValidateTask(context.Background(), st, anchor)
	if err != nil {
		t.Fatalf("ValidateTask: %v", err)
	}
	if !rep.OK {
		t.Fatalf("expected OK, errors: %+v", rep.Errors)
	}
	if len(rep.Warnings) == 0 {
		t.Fatal("expected warning for afternoon disarm")
	}
}

func TestValidateQuota(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := storage.NewMemory()
	for i := 0; i < 2; i++ {
		st := activate(t, makeTask(t, "u1", []schedule.Weekday{schedule.Monday}, tod(t, 8+i, 0), task.ActionArm))
		if err := mem.Save(ctx, st); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	v := New(Config{MaxPerUser: 2}, mem, logx.Logger{})
	st := makeTask(t, "u1", []schedule.Weekday{schedule.Friday}, tod(t, 21, 0), task.ActionArm)

	rep, err := v.ValidateTask(ctx, st, anchor)
	if err != nil {
		t.Fatalf("ValidateTask: %v", err)
	}
	if rep.OK {
		t.Fatal("expected rejection at quota")
	}
}

func TestValidateConflictSameUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := storage.NewMemory()
	existing := activate(t, makeTask(t, "u1", schedule.WorkWeek(), tod(t, 21, 0), task.ActionArm))
	if err := mem.Save(ctx, existing); err != nil {
		t.Fatalf("Save: %v", err)
	}

	v := New(Config{}, mem, logx.Logger{})

	// Within the 5m tolerance on shared days: hard conflict.
	clash := makeTask(t, "u1", []schedule.Weekday{schedule.Wednesday}, tod(t, 21, 3), task.ActionArm)
	rep, err := v.ValidateTask(ctx, clash, anchor)
	if err != nil {
		t.Fatalf("ValidateTask: %v", err)
	}
	if rep.OK {
		t.Fatal("expected conflict rejection")
	}

	// Same time, different user: no conflict.
	other := makeTask(t, "u2", []schedule.Weekday{schedule.Wednesday}, tod(t, 21, 3), task.ActionArm)
	rep, err = v.ValidateTask(ctx, other, anchor)
	if err != nil {
		t.Fatalf("ValidateTask: %v", err)
	}
	if !rep.OK {
		t.Fatalf("expected no cross-user conflict, errors: %+v", rep.Errors)
	}
}

func TestValidateLogicalConflictWarns(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := storage.NewMemory()
	existing := activate(t, makeTask(t, "u1", schedule.WorkWeek(), tod(t, 21, 0), task.ActionArm))
	if err := mem.Save(ctx, existing); err != nil {
		t.Fatalf("Save: %v", err)
	}

	v := New(Config{}, mem, logx.Logger{})
	// Disarm ten minutes after an arm: outside the 5m hard window,
	// inside the 15m logical window.
	disarm := makeTask(t, "u1", []schedule.Weekday{schedule.Monday}, tod(t, 21, 10), task.ActionDisarm)

	rep, err := v.ValidateTask(ctx, disarm, anchor)
	if err != nil {
		t.Fatalf("ValidateTask: %v", err)
	}
	if !rep.OK {
		t.Fatalf("expected warning-only outcome, errors: %+v", rep.Errors)
	}
	found := false
	for _, w := range rep.Warnings {
		if w.Field == "conflict" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected logical conflict warning, warnings: %+v", rep.Warnings)
	}
}

func TestValidateUpdateExcludesSelf(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := storage.NewMemory()
	existing := activate(t, makeTask(t, "u1", schedule.WorkWeek(), tod(t, 21, 0), task.ActionArm))
	if err := mem.Save(ctx, existing); err != nil {
		t.Fatalf("Save: %v", err)
	}

	v := New(Config{}, mem, logx.Logger{})

	// Updating the stored task to the same slot must not conflict with
	// its own previous version.
	rep, err := v.ValidateUpdate(ctx, existing, anchor)
	if err != nil {
		t.Fatalf("ValidateUpdate: %v", err)
	}
	if !rep.OK {
		t.Fatalf("expected self-exclusion to pass, errors: %+v", rep.Errors)
	}
}

func TestSuggestDeduplicates(t *testing.T) {
	t.Parallel()
	rep := Report{Errors: []Issue{
		{Field: "conflict", Message: "conflicts with existing schedule"},
		{Field: "conflict", Message: "conflicts with existing schedule (again)"},
	}}
	hints := Suggest(rep)
	if len(hints) == 0 {
		t.Fatal("expected suggestions for conflict errors")
	}
	seen := map[string]bool{}
	for _, h := range hints {
		if seen[h] {
			t.Fatalf("duplicate hint %q", h)
		}
		seen[h] = true
	}
}
