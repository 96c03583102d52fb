// Package parse turns free-text schedule phrases ("arm system in stay
// mode weekdays at 9 PM") into a recurrence plus an action descriptor.
//
// Parsing runs in ordered stages, each failing with a descriptive error
// whose wording is stable: Suggest() and the validator's hint mapping
// key off these substrings.
package parse

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"sentinel/internal/schedule"
	"sentinel/internal/task"
)

var (
	ErrNoDays          = errors.New("could not parse days from command")
	ErrNoTime          = errors.New("could not parse time from command")
	ErrAmbiguousAction = errors.New("ambiguous action: command contains both arm and disarm keywords")
)

// Parsed is the output of a successful parse.
type Parsed struct {
	Recurrence schedule.Recurrence
	Action     task.ActionType
	Params     task.ActionParams
}

// Parser parses schedule commands. The zero value works; Timezone is
// attached verbatim to parsed recurrences (default "UTC").
type Parser struct {
	Timezone string
}

func New(timezone string) *Parser {
	if strings.TrimSpace(timezone) == "" {
		timezone = "UTC"
	}
	return &Parser{Timezone: timezone}
}

// Parse runs the staged parse: verb strip, day extraction, time
// extraction, action extraction, then a structural sanity check.
func (p *Parser) Parse(command string) (Parsed, error) {
	s := strings.ToLower(strings.TrimSpace(command))
	if s == "" {
		return Parsed{}, fmt.Errorf("command required")
	}
	s = stripCommandVerbs(s)

	days, err := extractDays(s)
	if err != nil {
		return Parsed{}, err
	}
	at, err := extractTime(s)
	if err != nil {
		return Parsed{}, err
	}
	action, params, err := extractAction(s)
	if err != nil {
		return Parsed{}, err
	}

	tz := p.Timezone
	if strings.TrimSpace(tz) == "" {
		tz = "UTC"
	}
	out := Parsed{
		Recurrence: schedule.Recurrence{Days: days, At: at, Timezone: tz},
		Action:     action,
		Params:     params,
	}
	// Structural sanity check before handing the result out.
	if err := out.Recurrence.Validate(); err != nil {
		return Parsed{}, err
	}
	if err := out.Params.ValidateFor(out.Action); err != nil {
		return Parsed{}, err
	}
	return out, nil
}

var commandVerbs = []string{"please", "schedule", "set up", "setup", "create", "add"}

func stripCommandVerbs(s string) string {
	for {
		trimmed := false
		for _, v := range commandVerbs {
			if strings.HasPrefix(s, v+" ") {
				s = strings.TrimSpace(strings.TrimPrefix(s, v))
				trimmed = true
			}
		}
		if !trimmed {
			return s
		}
	}
}

// ---- day extraction ----

func extractDays(s string) ([]schedule.Weekday, error) {
	// Collective terms win over explicit day names.
	switch {
	case strings.Contains(s, "everyday"), strings.Contains(s, "every day"),
		strings.Contains(s, "daily"), strings.Contains(s, "all days"):
		return schedule.AllDays(), nil
	case strings.Contains(s, "weekend"):
		return schedule.WeekendDays(), nil
	case strings.Contains(s, "weekday"):
		return schedule.WorkWeek(), nil
	}

	// Explicit names/abbreviations joined by "and", commas, or spaces.
	// De-duplicated, order preserved by first occurrence.
	var days []schedule.Weekday
	for _, tok := range strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' }) {
		if tok == "and" {
			continue
		}
		if d, ok := schedule.ParseWeekday(tok); ok {
			days = appendUnique(days, d)
		}
	}
	if len(days) == 0 {
		return nil, ErrNoDays
	}
	return days, nil
}

func appendUnique(days []schedule.Weekday, d schedule.Weekday) []schedule.Weekday {
	for _, x := range days {
		if x == d {
			return days
		}
	}
	return append(days, d)
}

// ---- time extraction ----

var (
	reClock      = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\s*(am|pm)?\b`)
	reHourMerid  = regexp.MustCompile(`\b(\d{1,2})\s*(am|pm)\b`)
	reBareNumber = regexp.MustCompile(`\b(\d{1,2})\b`)
)

var namedTimes = []struct {
	name string
	hour int
}{
	{"midnight", 0},
	{"noon", 12},
	{"morning", 9},
	{"afternoon", 14},
	{"evening", 18},
	{"night", 21},
}

func extractTime(s string) (schedule.TimeOfDay, error) {
	// HH:MM with optional meridiem.
	if m := reClock.FindStringSubmatch(s); m != nil {
		text := strings.TrimSpace(m[0])
		return schedule.ParseTimeOfDay(text)
	}

	// Bare hour plus meridiem ("2 PM"). Supported input; the meridiem is
	// a meridiem, not a minutes component.
	if m := reHourMerid.FindStringSubmatch(s); m != nil {
		return schedule.ParseTimeOfDay(m[1] + " " + m[2])
	}

	// Named anchors.
	for _, nt := range namedTimes {
		if strings.Contains(s, nt.name) {
			t, _ := schedule.NewTimeOfDay(nt.hour, 0)
			return t, nil
		}
	}

	// Bare hour heuristics: 1-7 reads as early morning, 8-11 as evening,
	// 0 and 12-23 as 24-hour clock.
	if m := reBareNumber.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		switch {
		case h >= 1 && h <= 7:
			return schedule.NewTimeOfDay(h, 0)
		case h >= 8 && h <= 11:
			return schedule.NewTimeOfDay(h+12, 0)
		case h <= 23:
			return schedule.NewTimeOfDay(h, 0)
		default:
			return schedule.TimeOfDay{}, &schedule.FieldError{Field: "hour", Value: m[1], Reason: "must be in 0..23"}
		}
	}

	return schedule.TimeOfDay{}, ErrNoTime
}

// ---- action extraction ----

var (
	reArm      = regexp.MustCompile(`\barm\b|\bactivate\b|\benable\b|\bturn on\b`)
	reDisarm   = regexp.MustCompile(`\bdisarm\b|\bdeactivate\b|\bdisable\b|\bturn off\b`)
	reModeStay = regexp.MustCompile(`\bstay\b|\bhome\b`)
	reModeAway = regexp.MustCompile(`\baway\b`)
)

func extractAction(s string) (task.ActionType, task.ActionParams, error) {
	hasArm := reArm.MatchString(s)
	hasDisarm := reDisarm.MatchString(s)
	if hasArm && hasDisarm {
		return "", task.ActionParams{}, ErrAmbiguousAction
	}
	if hasDisarm {
		return task.ActionDisarm, task.ActionParams{}, nil
	}

	// Arm is the default when no action verb appears.
	mode := task.ModeAway
	if reModeStay.MatchString(s) && !reModeAway.MatchString(s) {
		mode = task.ModeStay
	}
	return task.ActionArm, task.ActionParams{Mode: mode}, nil
}

// ---- batch ----

// BatchResult is one command's outcome within a batch parse.
type BatchResult struct {
	Index   int
	Command string
	Parsed  Parsed
	Err     error
}

// ParseBatch parses each command independently. A failing command does
// not abort the batch; its entry carries the error instead.
func (p *Parser) ParseBatch(commands []string) (ok []BatchResult, failed []BatchResult) {
	for i, c := range commands {
		res, err := p.Parse(c)
		if err != nil {
			failed = append(failed, BatchResult{Index: i, Command: c, Err: err})
			continue
		}
		ok = append(ok, BatchResult{Index: i, Command: c, Parsed: res})
	}
	return ok, failed
}
