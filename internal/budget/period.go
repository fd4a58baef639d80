// Package budget computes tracker reset boundaries and period windows.
//
// A tracker's current period is the half-open window [LastReset, NextReset)
// of calendar dates. All functions here are pure: callers read the tracker and
// payday settings from the store, apply a transition, and persist the result.
package budget

import (
	"fmt"
	"strings"
	"time"

	"github.com/jask/ledgersync/internal/dates"
	"github.com/jask/ledgersync/internal/payday"
)

// Frequency is a tracker's reset cadence.
type Frequency string

const (
	Weekly      Frequency = "WEEKLY"
	Fortnightly Frequency = "FORTNIGHTLY"
	Monthly     Frequency = "MONTHLY"
	Payday      Frequency = "PAYDAY"
)

// maxMonthlyResetDay keeps monthly resets on a day every month has.
const maxMonthlyResetDay = 28

// ParseFrequency normalises stored or typed input.
func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(strings.ToUpper(strings.TrimSpace(s))); f {
	case Weekly, Fortnightly, Monthly, Payday:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported reset frequency %q", s)
	}
}

// ValidateResetDay checks the configurable range for each frequency.
func ValidateResetDay(freq Frequency, day int) error {
	switch freq {
	case Weekly, Fortnightly:
		if day < 1 || day > 7 {
			return fmt.Errorf("reset day for %s must be a weekday 1-7, got %d", strings.ToLower(string(freq)), day)
		}
	case Monthly:
		if day < 1 || day > maxMonthlyResetDay {
			return fmt.Errorf("reset day for monthly must be 1-%d, got %d", maxMonthlyResetDay, day)
		}
	case Payday:
	default:
		return fmt.Errorf("unsupported reset frequency %q", freq)
	}
	return nil
}

// Period is a half-open date window.
type Period struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether the calendar date of t falls in [Start, End).
func (p Period) Contains(t time.Time) bool {
	d := dates.Of(t)
	return !d.Before(dates.Of(p.Start)) && d.Before(dates.Of(p.End))
}

// State is the persisted period state of one tracker.
type State struct {
	Frequency Frequency
	ResetDay  int
	LastReset time.Time
	NextReset time.Time
}

// Current returns the persisted window.
func (s State) Current() Period {
	return Period{Start: dates.Of(s.LastReset), End: dates.Of(s.NextReset)}
}

// NextBoundary returns the first reset strictly after from. Weekly and
// fortnightly boundaries sit on resetDay (ISO weekday); monthly boundaries
// sit on resetDay of the month, clamped to the month's length.
func NextBoundary(freq Frequency, resetDay int, from time.Time) time.Time {
	from = dates.Of(from)
	switch freq {
	case Weekly:
		return dates.AddDays(alignWeekday(from, resetDay), 7)
	case Fortnightly:
		return dates.AddDays(alignWeekday(from, resetDay), 14)
	case Monthly:
		y, m, _ := from.Date()
		candidate := dates.OnClamped(y, m, resetDay)
		if candidate.After(from) {
			return candidate
		}
		return dates.OnClamped(y, m+1, resetDay)
	default:
		return from
	}
}

// PrevBoundary is NextBoundary run backwards from an aligned boundary.
func PrevBoundary(freq Frequency, resetDay int, from time.Time) time.Time {
	from = dates.Of(from)
	switch freq {
	case Weekly:
		return dates.AddDays(from, -7)
	case Fortnightly:
		return dates.AddDays(from, -14)
	case Monthly:
		y, m, _ := from.Date()
		return dates.OnClamped(y, m-1, resetDay)
	default:
		return from
	}
}

// LastBoundary returns the start of the period containing from, so a new
// tracker covers the whole in-progress period.
func LastBoundary(freq Frequency, resetDay int, from time.Time) time.Time {
	from = dates.Of(from)
	switch freq {
	case Weekly:
		return alignWeekday(from, resetDay)
	case Fortnightly:
		start := alignWeekday(from, resetDay)
		anchor := alignWeekdayForward(fortnightEpoch, resetDay)
		if weeks := dates.DaysBetween(anchor, start) / 7; weeks%2 != 0 {
			start = dates.AddDays(start, -7)
		}
		return start
	case Monthly:
		day := resetDay
		if day > maxMonthlyResetDay {
			day = maxMonthlyResetDay
		}
		y, m, d := from.Date()
		if d >= day {
			return dates.OnClamped(y, m, day)
		}
		return dates.OnClamped(y, m-1, day)
	default:
		return from
	}
}

// fortnightEpoch fixes the 14-day cadence so every fortnightly tracker with
// the same reset day shares boundaries.
var fortnightEpoch = dates.On(1970, time.January, 5)

// alignWeekday walks back to the most recent date (inclusive) on the ISO weekday.
func alignWeekday(d time.Time, isoWeekday int) time.Time {
	if isoWeekday < 1 || isoWeekday > 7 {
		return d
	}
	back := (dates.ISOWeekday(d) - isoWeekday + 7) % 7
	return dates.AddDays(d, -back)
}

func alignWeekdayForward(d time.Time, isoWeekday int) time.Time {
	if isoWeekday < 1 || isoWeekday > 7 {
		return d
	}
	fwd := (isoWeekday - dates.ISOWeekday(d) + 7) % 7
	return dates.AddDays(d, fwd)
}

// Initial computes the first window for a tracker created on today.
func Initial(freq Frequency, resetDay int, pay payday.Settings, today time.Time) (State, error) {
	if err := ValidateResetDay(freq, resetDay); err != nil {
		return State{}, err
	}
	today = dates.Of(today)
	s := State{Frequency: freq, ResetDay: resetDay}
	if freq == Payday {
		if !pay.IsSet() {
			return State{}, fmt.Errorf("payday tracker requires payday settings")
		}
		pay, _ = pay.Roll(today)
		s.LastReset, s.NextReset = pay.CurrentWindow()
		return s, nil
	}
	s.LastReset = LastBoundary(freq, resetDay, today)
	s.NextReset = NextBoundary(freq, resetDay, s.LastReset)
	return s, nil
}

// maxAdvanceSteps bounds the catch-up loop for trackers left untouched for years.
const maxAdvanceSteps = 5000

// Advance applies the reset transition until LastReset <= today < NextReset.
// The bool reports whether the state changed. pay must already be rolled
// past today for PAYDAY trackers.
func Advance(s State, pay payday.Settings, today time.Time) (State, bool) {
	today = dates.Of(today)
	if s.NextReset.IsZero() {
		return s, false
	}
	changed := false
	for i := 0; !today.Before(dates.Of(s.NextReset)) && i < maxAdvanceSteps; i++ {
		s = step(s, pay)
		changed = true
	}
	return s, changed
}

func step(s State, pay payday.Settings) State {
	oldNext := dates.Of(s.NextReset)
	if s.Frequency != Payday {
		return State{
			Frequency: s.Frequency,
			ResetDay:  s.ResetDay,
			LastReset: oldNext,
			NextReset: NextBoundary(s.Frequency, s.ResetDay, oldNext),
		}
	}
	next := dates.Of(pay.Next)
	if !pay.IsSet() || !next.After(oldNext) {
		// payday unknown or behind the tracker: fall back to one pay period
		next = pay.Following(oldNext)
		if !next.After(oldNext) {
			next = dates.AddDays(oldNext, 30)
		}
		return State{Frequency: s.Frequency, ResetDay: s.ResetDay, LastReset: oldNext, NextReset: next}
	}
	last := oldNext
	if prev := pay.Previous(next); prev.After(last) && prev.Before(next) {
		last = prev
	}
	return State{Frequency: s.Frequency, ResetDay: s.ResetDay, LastReset: last, NextReset: next}
}

// PeriodBoundsForOffset returns the current window for offset 0 and steps back
// one period per negative offset. Future periods are not available.
func PeriodBoundsForOffset(s State, offset int, pay payday.Settings) (Period, bool) {
	if offset > 0 || s.LastReset.IsZero() || s.NextReset.IsZero() {
		return Period{}, false
	}
	p := s.Current()
	for i := 0; i > offset; i-- {
		end := p.Start
		var start time.Time
		if s.Frequency == Payday {
			start = pay.Previous(end)
		} else {
			start = PrevBoundary(s.Frequency, s.ResetDay, end)
		}
		if !start.Before(end) {
			return Period{}, false
		}
		p = Period{Start: start, End: end}
	}
	return p, true
}

// Progress is spent/budget as a percentage. It is not capped so over-budget
// trackers report more than 100.
func Progress(spentCents, budgetCents int64) float64 {
	if budgetCents <= 0 {
		return 0
	}
	return float64(spentCents) / float64(budgetCents) * 100
}

// ClampPercent bounds a progress value for display.
func ClampPercent(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
