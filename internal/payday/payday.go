// Package payday models the user's pay schedule. A Settings value is read
// once per operation and passed explicitly to the calculators.
package payday

import (
	"fmt"
	"strings"
	"time"

	"github.com/jask/ledgersync/internal/dates"
)

// Frequency is how often the user is paid.
type Frequency string

const (
	Weekly      Frequency = "WEEKLY"
	Fortnightly Frequency = "FORTNIGHTLY"
	Monthly     Frequency = "MONTHLY"
)

// ParseFrequency normalises user or stored input. The empty string is an unset frequency.
func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(strings.ToUpper(strings.TrimSpace(s))); f {
	case Weekly, Fortnightly, Monthly, "":
		return f, nil
	default:
		return "", fmt.Errorf("unsupported payday frequency %q", s)
	}
}

// Settings mirrors the next_payday / payday_frequency / payday_day keys.
type Settings struct {
	Frequency Frequency
	// Day is the ISO weekday for weekly/fortnightly pay, day of month for monthly.
	Day  int
	Next time.Time
}

// IsSet reports whether both the next date and frequency are known.
func (s Settings) IsSet() bool {
	return !s.Next.IsZero() && s.Frequency != ""
}

// PeriodDays is the fixed-length approximation used for proration.
func (s Settings) PeriodDays() int {
	switch s.Frequency {
	case Weekly:
		return 7
	case Fortnightly:
		return 14
	case Monthly:
		return 30
	default:
		return 0
	}
}

// Previous returns the payday one real pay period before d.
func (s Settings) Previous(d time.Time) time.Time {
	d = dates.Of(d)
	switch s.Frequency {
	case Weekly:
		return dates.AddDays(d, -7)
	case Fortnightly:
		return dates.AddDays(d, -14)
	case Monthly:
		y, m, _ := d.Date()
		return dates.OnClamped(y, m-1, s.monthDay(d))
	default:
		return d
	}
}

// Following returns the payday one real pay period after d.
func (s Settings) Following(d time.Time) time.Time {
	d = dates.Of(d)
	switch s.Frequency {
	case Weekly:
		return dates.AddDays(d, 7)
	case Fortnightly:
		return dates.AddDays(d, 14)
	case Monthly:
		y, m, _ := d.Date()
		return dates.OnClamped(y, m+1, s.monthDay(d))
	default:
		return d
	}
}

// monthDay prefers the configured day so a payday clamped to Feb 28 returns
// to the 31st in March.
func (s Settings) monthDay(d time.Time) int {
	if s.Day >= 1 && s.Day <= 31 {
		return s.Day
	}
	return d.Day()
}

// Roll advances Next one pay period at a time until it is strictly after today.
// The second result reports whether anything moved.
func (s Settings) Roll(today time.Time) (Settings, bool) {
	if !s.IsSet() {
		return s, false
	}
	today = dates.Of(today)
	moved := false
	for i := 0; !s.Next.After(today) && i < 1000; i++ {
		s.Next = s.Following(s.Next)
		moved = true
	}
	return s, moved
}

// CurrentWindow is the pay period ending at Next: [Previous(Next), Next).
func (s Settings) CurrentWindow() (time.Time, time.Time) {
	return s.Previous(s.Next), dates.Of(s.Next)
}
