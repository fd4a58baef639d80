// Package reserve computes how much of the available balance is already
// spoken for by upcoming scheduled charges.
package reserve

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jask/ledgersync/internal/dates"
	"github.com/jask/ledgersync/internal/payday"
)

// ChargeFrequency is a scheduled charge's recurrence.
type ChargeFrequency string

const (
	Weekly      ChargeFrequency = "WEEKLY"
	Fortnightly ChargeFrequency = "FORTNIGHTLY"
	Monthly     ChargeFrequency = "MONTHLY"
	Quarterly   ChargeFrequency = "QUARTERLY"
	Yearly      ChargeFrequency = "YEARLY"
	Once        ChargeFrequency = "ONCE"
)

// Charge is the subset of a scheduled charge the calculator reads.
type Charge struct {
	AmountCents int64
	Frequency   ChargeFrequency
	NextDate    time.Time
	Reserved    bool
}

// ReservedAmount sums the portion of each upcoming charge that must be held
// back before the next payday. Charges already due, or due on or after payday,
// contribute nothing. Long-cycle charges are spread over the pay periods left
// until they fall due.
func ReservedAmount(charges []Charge, pay payday.Settings, today time.Time) int64 {
	if !pay.IsSet() || len(charges) == 0 {
		return 0
	}
	today = dates.Of(today)
	next := dates.Of(pay.Next)
	periodDays := pay.PeriodDays()

	total := decimal.Zero
	for _, c := range charges {
		if !c.Reserved {
			continue
		}
		due := dates.Of(c.NextDate)
		if !due.Before(next) || !due.After(today) {
			continue
		}
		total = total.Add(portion(c, dates.DaysBetween(today, due), periodDays))
	}
	return total.Round(0).IntPart()
}

func portion(c Charge, daysUntil, periodDays int) decimal.Decimal {
	amount := decimal.NewFromInt(c.AmountCents)
	switch c.Frequency {
	case Once, Weekly, Fortnightly:
		return amount
	case Monthly, Quarterly, Yearly:
		if periodDays <= 0 {
			return amount
		}
		// ceil(daysUntil / periodDays)
		periods := (daysUntil + periodDays - 1) / periodDays
		if periods <= 0 {
			return amount
		}
		share := amount.Div(decimal.NewFromInt(int64(periods)))
		if share.GreaterThan(amount) {
			return amount
		}
		return share
	default:
		return amount
	}
}

// AccountType distinguishes spendable accounts from savers.
type AccountType string

const (
	Transactional AccountType = "TRANSACTIONAL"
	Saver         AccountType = "SAVER"
)

// Account is the subset of an account the balance summary reads.
type Account struct {
	Type         AccountType
	BalanceCents int64
}

// Summary is the derived balance view.
type Summary struct {
	AvailableCents int64
	ReservedCents  int64
	SpendableCents int64
}

// Balances sums transactional accounts and subtracts the reservation, never
// reporting a negative spendable figure.
func Balances(accounts []Account, reserved int64) Summary {
	var available int64
	for _, a := range accounts {
		if a.Type == Transactional {
			available += a.BalanceCents
		}
	}
	spendable := available - reserved
	if spendable < 0 {
		spendable = 0
	}
	return Summary{AvailableCents: available, ReservedCents: reserved, SpendableCents: spendable}
}
