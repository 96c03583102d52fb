// Package schedule holds the value types of the scheduling core:
// clock times, weekdays, and recurrences (weekday set + time-of-day +
// timezone label).
//
// Everything here is immutable and side-effect free; occurrence math is
// pure so it can be tested against fixed reference instants.
package schedule
