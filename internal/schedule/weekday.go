package schedule

import (
	"strings"
	"time"
)

// Weekday is a day of the week, numbered like time.Weekday (Sunday = 0).
type Weekday int

const (
	Sunday Weekday = iota
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

var weekdayNames = [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

func (d Weekday) String() string {
	if d < Sunday || d > Saturday {
		return "Weekday(?)"
	}
	return weekdayNames[d]
}

// Valid reports whether d is one of the seven enumerants.
func (d Weekday) Valid() bool { return d >= Sunday && d <= Saturday }

// IsWeekend reports whether d is Saturday or Sunday.
func (d Weekday) IsWeekend() bool { return d == Saturday || d == Sunday }

// FromTime converts a time.Weekday.
func FromTime(d time.Weekday) Weekday { return Weekday(d) }

var weekdayAliases = map[string]Weekday{
	"sunday": Sunday, "sun": Sunday,
	"monday": Monday, "mon": Monday,
	"tuesday": Tuesday, "tue": Tuesday, "tues": Tuesday,
	"wednesday": Wednesday, "wed": Wednesday,
	"thursday": Thursday, "thu": Thursday, "thur": Thursday, "thurs": Thursday,
	"friday": Friday, "fri": Friday,
	"saturday": Saturday, "sat": Saturday,
}

// ParseWeekday recognizes full names and common abbreviations,
// case-insensitively.
func ParseWeekday(s string) (Weekday, bool) {
	d, ok := weekdayAliases[strings.ToLower(strings.TrimSpace(s))]
	return d, ok
}

// WorkWeek returns Monday through Friday, in order.
func WorkWeek() []Weekday {
	return []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday}
}

// WeekendDays returns Saturday and Sunday.
func WeekendDays() []Weekday {
	return []Weekday{Saturday, Sunday}
}

// AllDays returns the full week starting Monday.
func AllDays() []Weekday {
	return []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}
}

func containsDay(days []Weekday, d Weekday) bool {
	for _, x := range days {
		if x == d {
			return true
		}
	}
	return false
}

// appendDay appends d unless already present (order-preserving dedup).
func appendDay(days []Weekday, d Weekday) []Weekday {
	if containsDay(days, d) {
		return days
	}
	return append(days, d)
}
