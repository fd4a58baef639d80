// Package dates holds calendar-date helpers. Every date-only value is a
// time.Time pinned to 12:00 UTC on its calendar day, so day arithmetic never
// crosses a DST or timezone boundary.
package dates

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Layout is the storage format for date-only values.
const Layout = "2006-01-02"

// On returns the midday anchor for the given calendar day.
func On(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 12, 0, 0, 0, time.UTC)
}

// Of strips the time of day from t, keeping the calendar date in t's own location.
func Of(t time.Time) time.Time {
	y, m, d := t.Date()
	return On(y, m, d)
}

// Today is the current calendar date in loc.
func Today(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return Of(time.Now().In(loc))
}

// Parse reads a YYYY-MM-DD value. Full RFC 3339 timestamps are accepted and
// truncated to their own calendar date.
func Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if t, err := time.Parse(Layout, s); err == nil {
		return Of(t), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: must be YYYY-MM-DD", s)
	}
	return Of(t), nil
}

// Format renders a date-only value. The zero time renders as "".
func Format(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(Layout)
}

// DaysBetween counts whole calendar days from a to b (negative when b is before a).
func DaysBetween(a, b time.Time) int {
	return int(math.Round(Of(b).Sub(Of(a)).Hours() / 24))
}

// AddDays moves a date-only value by n days.
func AddDays(t time.Time, n int) time.Time {
	return Of(t).AddDate(0, 0, n)
}

// ISOWeekday maps Monday=1 .. Sunday=7.
func ISOWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 12, 0, 0, 0, time.UTC).Day()
}

// OnClamped is On with day capped to the month's length.
func OnClamped(year int, month time.Month, day int) time.Time {
	// normalise month overflow before clamping
	first := On(year, month, 1)
	y, m, _ := first.Date()
	if day < 1 {
		day = 1
	}
	if n := DaysIn(y, m); day > n {
		day = n
	}
	return On(y, m, day)
}
