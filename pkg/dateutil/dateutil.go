// Package dateutil provides date-only arithmetic helpers for the ledger.
//
// All due-date comparisons in the ledger are date-only: time-of-day must be
// discarded before comparing, and the reference timezone is UTC.
package dateutil

import "time"

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// OnOrBefore reports whether the calendar date of a is on or before the
// calendar date of b, ignoring time-of-day.
func OnOrBefore(a, b time.Time) bool {
	return !StartOfDay(a).After(StartOfDay(b))
}

// AddMonths adds calendar months to t, clamping the day-of-month to the
// length of the target month. Unlike time.AddDate, Jan 31 + 1 month yields
// Feb 28 (or 29), not Mar 3.
func AddMonths(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	target := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(target.Year(), target.Month()); day > last {
		day = last
	}
	hour, min, sec := t.Clock()
	return time.Date(target.Year(), target.Month(), day, hour, min, sec, t.Nanosecond(), t.Location())
}

// daysIn returns the number of days in the given month.
func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
