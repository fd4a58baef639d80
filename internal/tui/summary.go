package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/jask/ledgersync/internal/budget"
	"github.com/jask/ledgersync/internal/dates"
	"github.com/jask/ledgersync/internal/money"
	"github.com/jask/ledgersync/internal/reserve"
	"github.com/jask/ledgersync/internal/service"
)

const barWidth = 20

// warnPercent is where a tracker bar turns from green to yellow.
const warnPercent = 80.0

// Summary is everything the status screen shows.
type Summary struct {
	Balance  reserve.Summary
	Trackers []service.TrackerProgress
	Payday   *time.Time
	LastSync *time.Time
	Symbol   string
	Location *time.Location
	// Schema is the applied migration version; 0 hides it.
	Schema      uint
	SchemaDirty bool
}

// RenderSummary renders the balance block, one bar per tracker, and the
// sync footer.
func RenderSummary(s Summary) string {
	loc := s.Location
	if loc == nil {
		loc = time.Local
	}
	var b strings.Builder

	b.WriteString(titleStyle.Render("Balance") + "\n")
	row := func(label, value string) {
		b.WriteString("  " + labelStyle.Render(fmt.Sprintf("%-10s", label)) + " " + value + "\n")
	}
	row("Available", money.FormatCents(s.Balance.AvailableCents, s.Symbol))
	row("Reserved", money.FormatCents(s.Balance.ReservedCents, s.Symbol))
	spendable := money.FormatCents(s.Balance.SpendableCents, s.Symbol)
	if s.Balance.SpendableCents > 0 {
		spendable = successStyle.Render(spendable)
	} else {
		spendable = errorStyle.Render(spendable)
	}
	row("Spendable", spendable)
	if s.Payday != nil {
		row("Payday", infoStyle.Render(dates.Format(*s.Payday)))
	}

	b.WriteString("\n" + titleStyle.Render("Trackers") + "\n")
	if len(s.Trackers) == 0 {
		b.WriteString("  " + mutedStyle.Render("no active trackers") + "\n")
	}
	width := 0
	for _, t := range s.Trackers {
		width = max(width, len(t.Tracker.Name))
	}
	for _, t := range s.Trackers {
		b.WriteString(fmt.Sprintf("  %-*s %s %6.1f%%  %s / %s  %s\n",
			width, t.Tracker.Name,
			progressBar(t.Percent, t.OverBudget),
			t.Percent,
			money.FormatCents(t.SpentCents, s.Symbol),
			money.FormatCents(t.Tracker.BudgetCents, s.Symbol),
			mutedStyle.Render(periodLabel(t.Period)),
		))
	}

	footer := "never synced"
	if s.LastSync != nil {
		footer = "last sync " + s.LastSync.In(loc).Format("2006-01-02 15:04")
	}
	if s.Schema > 0 {
		footer += fmt.Sprintf(" · schema v%d", s.Schema)
		if s.SchemaDirty {
			footer += " (dirty)"
		}
	}
	b.WriteString("\n" + mutedStyle.Render(footer) + "\n")
	return b.String()
}

func progressBar(percent float64, over bool) string {
	filled := int(budget.ClampPercent(percent) / 100 * barWidth)
	style := successStyle
	switch {
	case over:
		style = errorStyle
	case percent >= warnPercent:
		style = warningStyle
	}
	return style.Render(strings.Repeat("█", filled)) + trackStyle.Render(strings.Repeat("░", barWidth-filled))
}

// periodLabel shows the inclusive last day, since End is exclusive.
func periodLabel(p budget.Period) string {
	return dates.Format(p.Start) + " to " + dates.Format(dates.AddDays(p.End, -1))
}
