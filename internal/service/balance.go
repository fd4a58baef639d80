package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jask/ledgersync/internal/database/repository"
	"github.com/jask/ledgersync/internal/reserve"
)

// BalanceService derives available, reserved and spendable balances.
type BalanceService struct {
	Accounts *repository.AccountRepo
	Charges  *repository.ChargeRepo
	Settings *repository.SettingsRepo
}

func (s *BalanceService) Summary(ctx context.Context, today time.Time) (reserve.Summary, error) {
	accounts, err := s.Accounts.List(ctx)
	if err != nil {
		return reserve.Summary{}, fmt.Errorf("list accounts: %w", err)
	}
	charges, err := s.Charges.ListReserved(ctx)
	if err != nil {
		return reserve.Summary{}, fmt.Errorf("list charges: %w", err)
	}
	pay, err := s.Settings.Payday(ctx)
	if err != nil {
		return reserve.Summary{}, fmt.Errorf("load payday: %w", err)
	}
	// a payday that has passed since the last recalculation still names the next one
	pay, _ = pay.Roll(today)

	in := make([]reserve.Charge, 0, len(charges))
	for _, c := range charges {
		in = append(in, reserve.Charge{
			AmountCents: c.AmountCents,
			Frequency:   reserve.ChargeFrequency(c.Frequency),
			NextDate:    c.NextChargeDate,
			Reserved:    c.IsReserved,
		})
	}
	accts := make([]reserve.Account, 0, len(accounts))
	for _, a := range accounts {
		accts = append(accts, reserve.Account{Type: reserve.AccountType(a.AccountType), BalanceCents: a.BalanceCents})
	}
	return reserve.Balances(accts, reserve.ReservedAmount(in, pay, today)), nil
}
