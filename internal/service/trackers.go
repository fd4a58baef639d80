package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jask/ledgersync/internal/budget"
	"github.com/jask/ledgersync/internal/database/repository"
	"github.com/jask/ledgersync/internal/payday"
)

var (
	// ErrTrackerNotFound is returned for an unknown tracker id.
	ErrTrackerNotFound = errors.New("tracker not found")
	// ErrNoPeriod is returned for offsets that have no window (future periods).
	ErrNoPeriod = errors.New("no period for offset")
)

// TrackerService owns tracker creation, the recalculation pass and progress reads.
type TrackerService struct {
	Trackers *repository.TrackerRepo
	Settings *repository.SettingsRepo
	Logger   *log.Logger
}

// NewTracker is the user input for Create.
type NewTracker struct {
	Name        string
	BudgetCents int64
	Frequency   budget.Frequency
	ResetDay    int
	CategoryIDs []string
}

// Create validates in, computes the window containing today and persists it.
func (s *TrackerService) Create(ctx context.Context, in NewTracker, today time.Time) (int64, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return 0, fmt.Errorf("tracker name is required")
	}
	if in.BudgetCents <= 0 {
		return 0, fmt.Errorf("tracker budget must be positive")
	}
	pay, err := s.Settings.Payday(ctx)
	if err != nil {
		return 0, fmt.Errorf("load payday: %w", err)
	}
	state, err := budget.Initial(in.Frequency, in.ResetDay, pay, today)
	if err != nil {
		return 0, err
	}
	return s.Trackers.Create(ctx, repository.Tracker{
		Name:           name,
		BudgetCents:    in.BudgetCents,
		ResetFrequency: string(in.Frequency),
		ResetDay:       in.ResetDay,
		StartDate:      today,
		LastResetDate:  state.LastReset,
		NextResetDate:  state.NextReset,
		IsActive:       true,
		CategoryIDs:    in.CategoryIDs,
	})
}

// RecalcResult reports what a recalculation pass changed.
type RecalcResult struct {
	PaydayRolled bool
	Payday       payday.Settings
	Advanced     []int64
}

// Recalculate rolls a stale payday forward, then moves every active tracker
// whose window ended on or before today. Only changed rows are written.
func (s *TrackerService) Recalculate(ctx context.Context, today time.Time) (RecalcResult, error) {
	var res RecalcResult
	pay, err := s.Settings.Payday(ctx)
	if err != nil {
		return res, fmt.Errorf("load payday: %w", err)
	}
	if rolled, moved := pay.Roll(today); moved {
		if err := s.Settings.SavePayday(ctx, rolled); err != nil {
			return res, fmt.Errorf("save payday: %w", err)
		}
		pay = rolled
		res.PaydayRolled = true
	}
	res.Payday = pay

	trackers, err := s.Trackers.ListActive(ctx)
	if err != nil {
		return res, fmt.Errorf("list trackers: %w", err)
	}
	for _, t := range trackers {
		next, changed := budget.Advance(stateOf(t), pay, today)
		if !changed {
			continue
		}
		if err := s.Trackers.UpdatePeriod(ctx, t.ID, next.LastReset, next.NextReset); err != nil {
			return res, fmt.Errorf("advance tracker %d: %w", t.ID, err)
		}
		res.Advanced = append(res.Advanced, t.ID)
	}
	if s.Logger != nil && (res.PaydayRolled || len(res.Advanced) > 0) {
		s.Logger.Printf("recalculated: payday rolled=%v, %d trackers advanced", res.PaydayRolled, len(res.Advanced))
	}
	return res, nil
}

// Period returns the tracker's window at offset (0 current, negative past).
func (s *TrackerService) Period(ctx context.Context, id int64, offset int) (budget.Period, error) {
	t, pay, err := s.load(ctx, id)
	if err != nil {
		return budget.Period{}, err
	}
	p, ok := budget.PeriodBoundsForOffset(stateOf(*t), offset, pay)
	if !ok {
		return budget.Period{}, ErrNoPeriod
	}
	return p, nil
}

// TrackerProgress is a tracker's spend over one window.
type TrackerProgress struct {
	Tracker    repository.Tracker
	Period     budget.Period
	SpentCents int64
	Percent    float64
	OverBudget bool
}

// Progress sums spend for the window at offset.
func (s *TrackerService) Progress(ctx context.Context, id int64, offset int) (TrackerProgress, error) {
	t, pay, err := s.load(ctx, id)
	if err != nil {
		return TrackerProgress{}, err
	}
	p, ok := budget.PeriodBoundsForOffset(stateOf(*t), offset, pay)
	if !ok {
		return TrackerProgress{}, ErrNoPeriod
	}
	return s.progress(ctx, *t, p)
}

// Overview returns the current-window progress of every active tracker.
func (s *TrackerService) Overview(ctx context.Context) ([]TrackerProgress, error) {
	trackers, err := s.Trackers.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]TrackerProgress, 0, len(trackers))
	for _, t := range trackers {
		p, err := s.progress(ctx, t, stateOf(t).Current())
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *TrackerService) progress(ctx context.Context, t repository.Tracker, p budget.Period) (TrackerProgress, error) {
	spent, err := s.Trackers.Spend(ctx, t.ID, p.Start, p.End)
	if err != nil {
		return TrackerProgress{}, fmt.Errorf("tracker %d spend: %w", t.ID, err)
	}
	pct := budget.Progress(spent, t.BudgetCents)
	return TrackerProgress{Tracker: t, Period: p, SpentCents: spent, Percent: pct, OverBudget: spent > t.BudgetCents}, nil
}

func (s *TrackerService) load(ctx context.Context, id int64) (*repository.Tracker, payday.Settings, error) {
	t, err := s.Trackers.Get(ctx, id)
	if err != nil {
		return nil, payday.Settings{}, err
	}
	if t == nil {
		return nil, payday.Settings{}, ErrTrackerNotFound
	}
	pay, err := s.Settings.Payday(ctx)
	if err != nil {
		return nil, payday.Settings{}, err
	}
	return t, pay, nil
}

func stateOf(t repository.Tracker) budget.State {
	return budget.State{
		Frequency: budget.Frequency(t.ResetFrequency),
		ResetDay:  t.ResetDay,
		LastReset: t.LastResetDate,
		NextReset: t.NextResetDate,
	}
}
