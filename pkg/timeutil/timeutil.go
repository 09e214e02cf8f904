// Package timeutil provides timezone-aware date helpers for Qiaomu.
// Streaks, weekly goals, and study-time buckets are all computed against
// the learner's local calendar day, so every helper takes an explicit
// *time.Location instead of assuming server time.
// No external dependencies - uses only standard library.
package timeutil

import "time"

// TaipeiTZ is the default learner timezone (UTC+8, no DST).
var TaipeiTZ = time.FixedZone("Asia/Taipei", 8*60*60)

// Common date/time formats.
const (
	// FormatDate is the standard date format (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatTime is the standard time format (HH:MM).
	FormatTime = "15:04"
	// FormatDateTime is the standard datetime format.
	FormatDateTime = "2006-01-02 15:04"
	// FormatDateTimeSeconds includes seconds.
	FormatDateTimeSeconds = "2006-01-02 15:04:05"
)

// In converts a time to the given location, falling back to TaipeiTZ.
func In(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = TaipeiTZ
	}
	return t.In(loc)
}

// Date creates a midnight time on the given date in loc.
func Date(year, month, day int, loc *time.Location) time.Time {
	if loc == nil {
		loc = TaipeiTZ
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
}

// StartOfDay returns the start of the day (00:00:00) in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := In(t, loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
}

// EndOfDay returns the end of the day (23:59:59.999999999) in loc.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	local := In(t, loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 59, 999999999, local.Location())
}

// StartOfWeek returns the start of the week (Monday 00:00:00) in loc.
func StartOfWeek(t time.Time, loc *time.Location) time.Time {
	local := In(t, loc)
	weekday := int(local.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	return StartOfDay(local.AddDate(0, 0, -(weekday-1)), loc)
}

// EndOfWeek returns the end of the week (Sunday 23:59:59) in loc.
func EndOfWeek(t time.Time, loc *time.Location) time.Time {
	return EndOfDay(StartOfWeek(t, loc).AddDate(0, 0, 6), loc)
}

// IsSameDay checks if two times fall on the same calendar day in loc.
func IsSameDay(t1, t2 time.Time, loc *time.Location) bool {
	a, b := In(t1, loc), In(t2, loc)
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// IsConsecutiveDay checks if t2 is the calendar day after t1.
func IsConsecutiveDay(t1, t2 time.Time, loc *time.Location) bool {
	return IsSameDay(In(t1, loc).AddDate(0, 0, 1), t2, loc)
}

// DaysBetween calculates the number of whole calendar days between two times.
// The result is always non-negative.
func DaysBetween(t1, t2 time.Time, loc *time.Location) int {
	a := StartOfDay(t1, loc)
	b := StartOfDay(t2, loc)
	days := int(b.Sub(a).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}

// DaysUntil calculates signed calendar days from t1 to t2 (negative when
// t2 precedes t1). Streak logic needs the direction, not just the gap.
func DaysUntil(t1, t2 time.Time, loc *time.Location) int {
	a := StartOfDay(t1, loc)
	b := StartOfDay(t2, loc)
	return int(b.Sub(a).Hours() / 24)
}

// IsThisWeek checks if the given time is in the week containing now.
func IsThisWeek(t, now time.Time, loc *time.Location) bool {
	start := StartOfWeek(now, loc)
	end := EndOfWeek(now, loc)
	local := In(t, loc)
	return !local.Before(start) && !local.After(end)
}

// FormatDateStr formats a time as a date string (YYYY-MM-DD) in loc.
func FormatDateStr(t time.Time, loc *time.Location) string {
	return In(t, loc).Format(FormatDate)
}

// FormatDateTimeStr formats a time as a datetime string in loc.
func FormatDateTimeStr(t time.Time, loc *time.Location) string {
	return In(t, loc).Format(FormatDateTime)
}

// ParseDate parses a date string (YYYY-MM-DD) in loc.
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = TaipeiTZ
	}
	return time.ParseInLocation(FormatDate, value, loc)
}

// LastNDays returns the date strings for the n days ending today,
// oldest first. Used for dashboard chart buckets.
func LastNDays(now time.Time, n int, loc *time.Location) []string {
	days := make([]string, 0, n)
	today := StartOfDay(now, loc)
	for i := n - 1; i >= 0; i-- {
		days = append(days, today.AddDate(0, 0, -i).Format(FormatDate))
	}
	return days
}
