package repository

import "time"

// Account represents an account row.
type Account struct {
	ID              string
	DisplayName     string
	AccountType     string
	BalanceCents    int64
	RemoteCreatedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Category represents a category row.
type Category struct {
	ID       string
	Name     string
	ParentID *string
}

// Transaction represents a transaction row. DisplayDate is the calendar
// date of CreatedAt in the offset the ledger reported it with.
type Transaction struct {
	ID                  string
	AccountID           string
	Status              string
	Description         string
	Message             string
	AmountCents         int64
	CategoryID          *string
	ParentCategoryID    *string
	TransferAccountID   *string
	IsRoundUp           bool
	RoundUpCents        *int64
	ParentTransactionID *string
	CreatedAt           time.Time
	SettledAt           *time.Time
	DisplayDate         time.Time
	UpdatedAt           time.Time
}

// Saver is the local projection of a SAVER account. Goal fields are user
// owned and survive every sync.
type Saver struct {
	AccountID            string
	DisplayName          string
	BalanceCents         int64
	GoalCents            *int64
	TargetDate           *time.Time
	MonthlyTransferCents *int64
	UpdatedAt            time.Time
}

// ScheduledCharge represents a user-authored recurring or one-off charge.
type ScheduledCharge struct {
	ID             int64
	Name           string
	AmountCents    int64
	Frequency      string
	NextChargeDate time.Time
	CategoryID     *string
	IsReserved     bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Tracker represents a budget tracker row with its linked categories.
type Tracker struct {
	ID             int64
	Name           string
	BudgetCents    int64
	ResetFrequency string
	ResetDay       int
	StartDate      time.Time
	LastResetDate  time.Time
	NextResetDate  time.Time
	IsActive       bool
	CategoryIDs    []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SyncRun is one synchronizer invocation.
type SyncRun struct {
	ID               string
	Kind             string
	Status           string
	FailedPhase      *string
	Error            *string
	TransactionsSeen int
	StartedAt        time.Time
	FinishedAt       *time.Time
}

// Sync run statuses.
const (
	SyncRunning = "running"
	SyncOK      = "ok"
	SyncFailed  = "failed"
)
