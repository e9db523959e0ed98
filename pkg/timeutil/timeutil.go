// Package timeutil provides the UTC calendar helpers used by insight windows,
// weekly trends and digest periods. Every computation takes an explicit
// reference instant instead of reading the clock itself.
package timeutil

import "time"

// DateLayout is the ISO date format used for date-keyed maps and logs.
const DateLayout = "2006-01-02"

// StartOfDay truncates t to UTC midnight.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns the last nanosecond of t's UTC day.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).Add(24*time.Hour - time.Nanosecond)
}

// Today returns the current UTC day at midnight.
func Today() time.Time {
	return StartOfDay(time.Now())
}

// AddDays moves a day-truncated time by n calendar days.
func AddDays(t time.Time, n int) time.Time {
	return StartOfDay(t).AddDate(0, 0, n)
}

// DaysAgo returns how many whole days separate then from today. Future dates are negative.
func DaysAgo(today, then time.Time) int {
	return int(StartOfDay(today).Sub(StartOfDay(then)).Hours() / 24)
}

// StartOfWeek returns the Monday 00:00 UTC of t's ISO week.
func StartOfWeek(t time.Time) time.Time {
	day := StartOfDay(t)
	weekday := int(day.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return day.AddDate(0, 0, -(weekday - 1))
}

// EndOfWeek returns the last nanosecond of the Sunday closing t's ISO week.
func EndOfWeek(t time.Time) time.Time {
	return EndOfDay(StartOfWeek(t).AddDate(0, 0, 6))
}

// StartOfMonth returns the first day of t's month.
func StartOfMonth(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// StartOfQuarter returns the first day of t's calendar quarter.
func StartOfQuarter(t time.Time) time.Time {
	u := t.UTC()
	month := ((int(u.Month())-1)/3)*3 + 1
	return time.Date(u.Year(), time.Month(month), 1, 0, 0, 0, 0, time.UTC)
}

// EndOfQuarter returns the last nanosecond of t's calendar quarter.
func EndOfQuarter(t time.Time) time.Time {
	return StartOfQuarter(t).AddDate(0, 3, 0).Add(-time.Nanosecond)
}

// FormatDate renders t as YYYY-MM-DD in UTC.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD string as UTC midnight.
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, value, time.UTC)
}
