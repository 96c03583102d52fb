package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const minutesPerDay = 24 * 60

// FieldError reports a malformed value for a named field.
// It is the validation error type surfaced by the value constructors.
type FieldError struct {
	Field  string
	Value  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s (got %q)", e.Field, e.Reason, e.Value)
}

// TimeOfDay is a clock time without a date: hour in [0,23], minute in [0,59].
// The zero value is midnight.
type TimeOfDay struct {
	hour   int
	minute int
}

func NewTimeOfDay(hour, minute int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 {
		return TimeOfDay{}, &FieldError{Field: "hour", Value: strconv.Itoa(hour), Reason: "must be in 0..23"}
	}
	if minute < 0 || minute > 59 {
		return TimeOfDay{}, &FieldError{Field: "minute", Value: strconv.Itoa(minute), Reason: "must be in 0..59"}
	}
	return TimeOfDay{hour: hour, minute: minute}, nil
}

var reClockTime = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?\s*([AaPp][Mm])?$`)

// ParseTimeOfDay parses 24-hour ("14:30", bare "14") and 12-hour
// ("2:30 PM", "2PM", "12 AM" -> 00:00, "12 PM" -> 12:00) clock times.
func ParseTimeOfDay(text string) (TimeOfDay, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return TimeOfDay{}, &FieldError{Field: "time", Value: text, Reason: "empty"}
	}
	m := reClockTime.FindStringSubmatch(s)
	if m == nil {
		return TimeOfDay{}, &FieldError{Field: "time", Value: text, Reason: "unrecognized clock time"}
	}

	hour, _ := strconv.Atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}

	if meridiem := strings.ToLower(m[3]); meridiem != "" {
		if hour < 1 || hour > 12 {
			return TimeOfDay{}, &FieldError{Field: "hour", Value: m[1], Reason: "must be in 1..12 with " + strings.ToUpper(meridiem)}
		}
		if meridiem == "am" && hour == 12 {
			hour = 0
		}
		if meridiem == "pm" && hour != 12 {
			hour += 12
		}
	}

	return NewTimeOfDay(hour, minute)
}

func (t TimeOfDay) Hour() int   { return t.hour }
func (t TimeOfDay) Minute() int { return t.minute }

// Minutes returns the total minutes since midnight.
func (t TimeOfDay) Minutes() int { return t.hour*60 + t.minute }

// AddMinutes returns the time n minutes later, wrapping past midnight.
// Negative n subtracts.
func (t TimeOfDay) AddMinutes(n int) TimeOfDay {
	total := ((t.Minutes()+n)%minutesPerDay + minutesPerDay) % minutesPerDay
	return TimeOfDay{hour: total / 60, minute: total % 60}
}

// SubMinutes returns the time n minutes earlier, wrapping before midnight.
func (t TimeOfDay) SubMinutes(n int) TimeOfDay { return t.AddMinutes(-n) }

// Compare returns -1, 0, or +1 ordering by total minutes of day.
func (t TimeOfDay) Compare(o TimeOfDay) int {
	a, b := t.Minutes(), o.Minutes()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (t TimeOfDay) Before(o TimeOfDay) bool { return t.Compare(o) < 0 }
func (t TimeOfDay) After(o TimeOfDay) bool  { return t.Compare(o) > 0 }
func (t TimeOfDay) Equal(o TimeOfDay) bool  { return t.Compare(o) == 0 }

// IsBusinessHours reports whether t falls in [09:00, 18:00).
func (t TimeOfDay) IsBusinessHours() bool {
	m := t.Minutes()
	return m >= 9*60 && m < 18*60
}

// InWindow reports whether t falls in [start, end), treating windows
// that cross midnight (start > end, e.g. 22:00-06:00) as wrapping.
func (t TimeOfDay) InWindow(start, end TimeOfDay) bool {
	m, s, e := t.Minutes(), start.Minutes(), end.Minutes()
	if s <= e {
		return m >= s && m < e
	}
	return m >= s || m < e
}

// Format24 renders "15:04".
func (t TimeOfDay) Format24() string { return fmt.Sprintf("%02d:%02d", t.hour, t.minute) }

// Format12 renders "3:04 PM".
func (t TimeOfDay) Format12() string {
	h := t.hour % 12
	if h == 0 {
		h = 12
	}
	meridiem := "AM"
	if t.hour >= 12 {
		meridiem = "PM"
	}
	return fmt.Sprintf("%d:%02d %s", h, t.minute, meridiem)
}

func (t TimeOfDay) String() string { return t.Format24() }
