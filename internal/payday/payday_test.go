package payday

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/ledgersync/internal/dates"
)

func TestParseFrequency(t *testing.T) {
	t.Parallel()

	f, err := ParseFrequency(" fortnightly ")
	require.NoError(t, err)
	require.Equal(t, Fortnightly, f)

	f, err = ParseFrequency("")
	require.NoError(t, err)
	require.Equal(t, Frequency(""), f)

	_, err = ParseFrequency("QUARTERLY")
	require.Error(t, err)
}

func TestPeriodDays(t *testing.T) {
	t.Parallel()

	require.Equal(t, 7, Settings{Frequency: Weekly}.PeriodDays())
	require.Equal(t, 14, Settings{Frequency: Fortnightly}.PeriodDays())
	require.Equal(t, 30, Settings{Frequency: Monthly}.PeriodDays())
	require.Equal(t, 0, Settings{}.PeriodDays())
}

func TestMonthlyStepsKeepConfiguredDay(t *testing.T) {
	t.Parallel()

	s := Settings{Frequency: Monthly, Day: 31, Next: dates.On(2025, time.January, 31)}
	feb := s.Following(s.Next)
	require.Equal(t, dates.On(2025, time.February, 28), feb)
	require.Equal(t, dates.On(2025, time.March, 31), s.Following(feb))
	require.Equal(t, dates.On(2024, time.December, 31), s.Previous(s.Next))
}

func TestRollMovesStalePaydayPastToday(t *testing.T) {
	t.Parallel()

	s := Settings{Frequency: Fortnightly, Day: 4, Next: dates.On(2025, time.January, 2)}
	rolled, moved := s.Roll(dates.On(2025, time.February, 13))
	require.True(t, moved)
	require.Equal(t, dates.On(2025, time.February, 27), rolled.Next)

	again, moved := rolled.Roll(dates.On(2025, time.February, 13))
	require.False(t, moved)
	require.Equal(t, rolled, again)

	unset, moved := Settings{}.Roll(dates.On(2025, time.February, 13))
	require.False(t, moved)
	require.False(t, unset.IsSet())
}

func TestCurrentWindow(t *testing.T) {
	t.Parallel()

	s := Settings{Frequency: Weekly, Day: 4, Next: dates.On(2025, time.March, 6)}
	start, end := s.CurrentWindow()
	require.Equal(t, dates.On(2025, time.February, 27), start)
	require.Equal(t, dates.On(2025, time.March, 6), end)
}
