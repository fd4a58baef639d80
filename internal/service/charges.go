package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jask/ledgersync/internal/database/repository"
	"github.com/jask/ledgersync/internal/dates"
	"github.com/jask/ledgersync/internal/reserve"
)

// ChargeService manages scheduled charges.
type ChargeService struct {
	Charges *repository.ChargeRepo
}

// NewCharge is the user input for Add.
type NewCharge struct {
	Name        string
	AmountCents int64
	Frequency   string
	NextDate    time.Time
	CategoryID  *string
	Reserved    bool
}

func (s *ChargeService) Add(ctx context.Context, in NewCharge) (int64, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return 0, fmt.Errorf("charge name is required")
	}
	if in.AmountCents <= 0 {
		return 0, fmt.Errorf("charge amount must be positive")
	}
	freq, err := ParseChargeFrequency(in.Frequency)
	if err != nil {
		return 0, err
	}
	if in.NextDate.IsZero() {
		return 0, fmt.Errorf("charge date is required")
	}
	return s.Charges.Create(ctx, repository.ScheduledCharge{
		Name:           name,
		AmountCents:    in.AmountCents,
		Frequency:      string(freq),
		NextChargeDate: dates.Of(in.NextDate),
		CategoryID:     in.CategoryID,
		IsReserved:     in.Reserved,
	})
}

// ParseChargeFrequency normalises user input.
func ParseChargeFrequency(s string) (reserve.ChargeFrequency, error) {
	switch f := reserve.ChargeFrequency(strings.ToUpper(strings.TrimSpace(s))); f {
	case reserve.Weekly, reserve.Fortnightly, reserve.Monthly, reserve.Quarterly, reserve.Yearly, reserve.Once:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported charge frequency %q", s)
	}
}

// RollForward moves recurring charges whose date is before today to their
// next occurrence on or after today. ONCE charges stay where they are.
// It returns the ids that moved.
func (s *ChargeService) RollForward(ctx context.Context, today time.Time) ([]int64, error) {
	charges, err := s.Charges.List(ctx)
	if err != nil {
		return nil, err
	}
	today = dates.Of(today)
	var moved []int64
	for _, c := range charges {
		next, ok := rollCharge(reserve.ChargeFrequency(c.Frequency), c.NextChargeDate, today)
		if !ok {
			continue
		}
		if err := s.Charges.SetNextDate(ctx, c.ID, next); err != nil {
			return moved, fmt.Errorf("roll charge %d: %w", c.ID, err)
		}
		moved = append(moved, c.ID)
	}
	return moved, nil
}

func rollCharge(freq reserve.ChargeFrequency, due, today time.Time) (time.Time, bool) {
	if freq == reserve.Once || !due.Before(today) {
		return due, false
	}
	day := due.Day()
	for i := 1; i <= 10000; i++ {
		var next time.Time
		switch freq {
		case reserve.Weekly:
			next = dates.AddDays(due, 7*i)
		case reserve.Fortnightly:
			next = dates.AddDays(due, 14*i)
		case reserve.Monthly:
			next = dates.OnClamped(due.Year(), due.Month()+time.Month(i), day)
		case reserve.Quarterly:
			next = dates.OnClamped(due.Year(), due.Month()+time.Month(3*i), day)
		case reserve.Yearly:
			next = dates.OnClamped(due.Year()+i, due.Month(), day)
		default:
			return due, false
		}
		if !next.Before(today) {
			return next, true
		}
	}
	return due, false
}
