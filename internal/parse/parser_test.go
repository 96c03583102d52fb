package parse

import (
	"errors"
	"testing"

	"sentinel/internal/schedule"
	"sentinel/internal/task"
)

func sameDays(a, b []schedule.Weekday) bool {
	if len(a) != len(b) {
		return false
	}
	set := map[schedule.Weekday]bool{}
	for _, d := range a {
		set[d] = true
	}
	for _, d := range b {
		if !set[d] {
			return false
		}
	}
	return true
}

func TestParseCommands(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		command string
		days    []schedule.Weekday
		hour    int
		minute  int
		action  task.ActionType
		mode    task.ArmMode
	}{
		{
			name:    "arm stay weekdays 12h",
			command: "arm system in stay mode weekdays at 9 PM",
			days:    schedule.WorkWeek(),
			hour:    21, action: task.ActionArm, mode: task.ModeStay,
		},
		{
			name:    "disarm weekends",
			command: "disarm system weekends at 10 AM",
			days:    schedule.WeekendDays(),
			hour:    10, action: task.ActionDisarm,
		},
		{
			name:    "explicit days with and",
			command: "arm away monday and wednesday at 22:30",
			days:    []schedule.Weekday{schedule.Monday, schedule.Wednesday},
			hour:    22, minute: 30, action: task.ActionArm, mode: task.ModeAway,
		},
		{
			name:    "every day named time",
			command: "arm every day at night",
			days:    schedule.AllDays(),
			hour:    21, action: task.ActionArm, mode: task.ModeAway,
		},
		{
			name:    "default action is arm away",
			command: "weekdays at 8 pm",
			days:    schedule.WorkWeek(),
			hour:    20, action: task.ActionArm, mode: task.ModeAway,
		},
		{
			name:    "leading verbs stripped",
			command: "please schedule arm system daily at noon",
			days:    schedule.AllDays(),
			hour:    12, action: task.ActionArm, mode: task.ModeAway,
		},
		{
			name:    "bare evening hour heuristic",
			command: "arm system weekdays at 9",
			days:    schedule.WorkWeek(),
			hour:    21, action: task.ActionArm, mode: task.ModeAway,
		},
		{
			name:    "home means stay",
			command: "turn on home mode friday at 11 pm",
			days:    []schedule.Weekday{schedule.Friday},
			hour:    23, action: task.ActionArm, mode: task.ModeStay,
		},
	}

	p := New("UTC")
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Parse(tt.command)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.command, err)
			}
			if !sameDays(got.Recurrence.Days, tt.days) {
				t.Fatalf("Days = %v, want %v", got.Recurrence.Days, tt.days)
			}
			if got.Recurrence.At.Hour() != tt.hour || got.Recurrence.At.Minute() != tt.minute {
				t.Fatalf("At = %v, want %02d:%02d", got.Recurrence.At, tt.hour, tt.minute)
			}
			if got.Action != tt.action {
				t.Fatalf("Action = %v, want %v", got.Action, tt.action)
			}
			if tt.action == task.ActionArm && got.Params.Mode != tt.mode {
				t.Fatalf("Mode = %v, want %v", got.Params.Mode, tt.mode)
			}
			if got.Recurrence.Timezone != "UTC" {
				t.Fatalf("Timezone = %q, want UTC", got.Recurrence.Timezone)
			}
		})
	}
}

func TestParseFailures(t *testing.T) {
	t.Parallel()
	p := New("")
	tests := []struct {
		name    string
		command string
		wantErr error
	}{
		{"no days", "arm system at 9 pm", ErrNoDays},
		{"no time", "arm system weekdays", ErrNoTime},
		{"both actions", "arm and disarm weekdays at 9 pm", ErrAmbiguousAction},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Parse(tt.command)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Parse(%q) error = %v, want %v", tt.command, err, tt.wantErr)
			}
		})
	}

	if _, err := p.Parse(""); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestParseDisarmWordDoesNotMatchArm(t *testing.T) {
	t.Parallel()
	p := New("")
	got, err := p.Parse("disarm weekdays at 7 am")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if got.Action != task.ActionDisarm {
		t.Fatalf("Action = %v, want %v", got.Action, task.ActionDisarm)
	}
}

func TestParseDeduplicatesDays(t *testing.T) {
	t.Parallel()
	p := New("")
	got, err := p.Parse("arm monday, mon and monday at 9 pm")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(got.Recurrence.Days) != 1 || got.Recurrence.Days[0] != schedule.Monday {
		t.Fatalf("Days = %v, want [Monday]", got.Recurrence.Days)
	}
}

func TestParseBatch(t *testing.T) {
	t.Parallel()
	p := New("")
	ok, failed := p.ParseBatch([]string{
		"arm weekdays at 9 pm",
		"not a schedule",
		"disarm weekends at 10 am",
	})
	if len(ok) != 2 {
		t.Fatalf("len(ok) = %d, want 2", len(ok))
	}
	if len(failed) != 1 || failed[0].Index != 1 {
		t.Fatalf("failed = %+v, want one entry at index 1", failed)
	}
	if failed[0].Err == nil {
		t.Fatal("expected error recorded for failed command")
	}
}

func TestSuggest(t *testing.T) {
	t.Parallel()
	if hints := Suggest(ErrNoDays); len(hints) == 0 {
		t.Fatal("expected suggestions for missing days")
	}
	if hints := Suggest(ErrAmbiguousAction); len(hints) == 0 {
		t.Fatal("expected suggestions for ambiguous action")
	}
	if hints := Suggest(nil); hints != nil {
		t.Fatalf("Suggest(nil) = %v, want nil", hints)
	}
}
