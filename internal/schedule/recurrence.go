package schedule

import (
	"errors"
	"sort"
	"strings"
	"time"
)

// ErrNoOccurrence is returned when a recurrence cannot yield a future
// occurrence. A valid recurrence always can; the occurrence scan still
// signals instead of looping when handed a structurally broken value.
var ErrNoOccurrence = errors.New("recurrence has no matching occurrence")

// Recurrence describes a repeating weekly schedule: a non-empty weekday
// set, a time of day, and a timezone label.
//
// The timezone is carried verbatim and surfaced to callers; occurrence
// arithmetic happens in the reference instant's location.
type Recurrence struct {
	Days     []Weekday
	At       TimeOfDay
	Timezone string
}

// Validate checks the structural invariant: at least one valid weekday.
// (TimeOfDay cannot be constructed out of range.)
func (r Recurrence) Validate() error {
	if len(r.Days) == 0 {
		return &FieldError{Field: "days", Value: "[]", Reason: "at least one weekday required"}
	}
	for _, d := range r.Days {
		if !d.Valid() {
			return &FieldError{Field: "days", Value: d.String(), Reason: "unknown weekday"}
		}
	}
	return nil
}

// Contains reports whether d is in the weekday set.
func (r Recurrence) Contains(d Weekday) bool { return containsDay(r.Days, d) }

// SharedDays returns the weekdays present in both recurrences.
func (r Recurrence) SharedDays(o Recurrence) []Weekday {
	var shared []Weekday
	for _, d := range r.Days {
		if o.Contains(d) {
			shared = appendDay(shared, d)
		}
	}
	return shared
}

// NextOccurrence returns the earliest instant at or after from whose
// weekday is in the set and whose clock time matches At.
//
// The scan walks forward at most eight days: the reference day counts
// when its time-of-day has not yet passed, and the same weekday seven
// days out covers the wrap.
func (r Recurrence) NextOccurrence(from time.Time) (time.Time, error) {
	if len(r.Days) == 0 {
		return time.Time{}, ErrNoOccurrence
	}
	for offset := 0; offset <= 7; offset++ {
		day := from.AddDate(0, 0, offset)
		if !r.Contains(FromTime(day.Weekday())) {
			continue
		}
		candidate := time.Date(day.Year(), day.Month(), day.Day(), r.At.Hour(), r.At.Minute(), 0, 0, from.Location())
		if candidate.Before(from) {
			continue
		}
		return candidate, nil
	}
	return time.Time{}, ErrNoOccurrence
}

// Upcoming enumerates the occurrences within the next `days` days,
// ascending and duplicate-free. The window is [from, from+days).
func (r Recurrence) Upcoming(days int, from time.Time) ([]time.Time, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if days <= 0 {
		return nil, nil
	}
	end := from.AddDate(0, 0, days)

	var out []time.Time
	cursor := from
	for {
		next, err := r.NextOccurrence(cursor)
		if err != nil {
			return out, err
		}
		if !next.Before(end) {
			return out, nil
		}
		out = append(out, next)
		// Step past the found occurrence so the scan cannot return it twice.
		cursor = next.Add(time.Minute)
	}
}

// Describe renders a human-readable summary, e.g. "weekdays at 21:00"
// or "Monday, Wednesday at 9:30 AM".
func (r Recurrence) Describe() string {
	var days string
	switch {
	case sameDaySet(r.Days, AllDays()):
		days = "every day"
	case sameDaySet(r.Days, WorkWeek()):
		days = "weekdays"
	case sameDaySet(r.Days, WeekendDays()):
		days = "weekends"
	default:
		names := make([]string, 0, len(r.Days))
		for _, d := range sortedDays(r.Days) {
			names = append(names, d.String())
		}
		days = strings.Join(names, ", ")
	}
	return days + " at " + r.At.Format24()
}

func sameDaySet(a, b []Weekday) bool {
	if len(a) != len(b) {
		return false
	}
	for _, d := range a {
		if !containsDay(b, d) {
			return false
		}
	}
	return true
}

// sortedDays orders Monday-first for display.
func sortedDays(days []Weekday) []Weekday {
	cp := append([]Weekday(nil), days...)
	rank := func(d Weekday) int {
		if d == Sunday {
			return 7
		}
		return int(d)
	}
	sort.Slice(cp, func(i, j int) bool { return rank(cp[i]) < rank(cp[j]) })
	return cp
}
