package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/ledgersync/internal/budget"
	"github.com/jask/ledgersync/internal/database/repository"
	"github.com/jask/ledgersync/internal/dates"
	"github.com/jask/ledgersync/internal/remote"
	"github.com/jask/ledgersync/internal/testdata"
)

var melbourne = time.FixedZone("AEDT", 11*3600)

type sleeps struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (s *sleeps) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, d)
	return ctx.Err()
}

func (s *sleeps) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func fixtureLedger() *testdata.Ledger {
	l := testdata.NewLedger("tok")
	l.Accounts = []testdata.Account{
		{ID: "acc-1", Name: "Spending", Type: "TRANSACTIONAL", BalanceCents: 150000},
		{ID: "saver-1", Name: "Holiday", Type: "SAVER", BalanceCents: 42000},
	}
	created := time.Date(2025, 2, 9, 23, 30, 0, 0, melbourne)
	settled := created.Add(36 * time.Hour)
	l.Transactions = []testdata.Txn{
		{ID: "tx-1", AccountID: "acc-1", Status: "SETTLED", Description: "Bakery", AmountCents: -420, CategoryID: "restaurants-and-cafes", ParentCategory: "good-life", RoundUpCents: -80, CreatedAt: created, SettledAt: &settled},
		// seen as HELD and SETTLED in the same pass
		{ID: "tx-2", AccountID: "acc-1", Status: "HELD", Description: "Grocer", AmountCents: -5000, CategoryID: "groceries", ParentCategory: "home", CreatedAt: created.Add(time.Hour)},
		{ID: "tx-2", AccountID: "acc-1", Status: "SETTLED", Description: "Grocer", AmountCents: -5120, CategoryID: "groceries", ParentCategory: "home", CreatedAt: created.Add(time.Hour), SettledAt: &settled},
		{ID: "tx-3", AccountID: "acc-1", Status: "HELD", Description: "Cinema", AmountCents: -2500, CategoryID: "events-and-gigs", ParentCategory: "good-life", CreatedAt: created.Add(2 * time.Hour)},
		{ID: "tx-4", AccountID: "saver-1", Status: "SETTLED", Description: "Round Up", AmountCents: 80, TransferAccount: "acc-1", CreatedAt: created, SettledAt: &settled},
	}
	l.Categories = []testdata.Category{
		{ID: "good-life", Name: "Good Life"},
		{ID: "home", Name: "Home"},
		{ID: "restaurants-and-cafes", Name: "Restaurants & Cafes", ParentID: "good-life"},
		{ID: "events-and-gigs", Name: "Events & Gigs", ParentID: "good-life"},
		{ID: "groceries", Name: "Groceries", ParentID: "home"},
	}
	return l
}

func newSynchronizer(t *testing.T, st store, l *testdata.Ledger, now time.Time) (*Synchronizer, *sleeps) {
	t.Helper()
	base := l.Start(t)
	sl := &sleeps{}
	return &Synchronizer{
		Remote:       remote.NewClient(base, 5*time.Second),
		Accounts:     st.accounts,
		Transactions: st.transactions,
		Categories:   st.categories,
		Savers:       st.savers,
		Settings:     st.settings,
		Runs:         st.runs,
		Trackers:     st.trackerService(),
		PageSize:     2,
		PageDelay:    time.Second,
		Location:     melbourne,
		Now:          func() time.Time { return now },
		Sleep:        sl.sleep,
	}, sl
}

func TestInitialSync(t *testing.T) {
	t.Parallel()
	ctx := testCtx(t)
	st := newStore(t)
	l := fixtureLedger()
	now := time.Date(2025, 2, 12, 9, 0, 0, 0, time.UTC)
	s, sl := newSynchronizer(t, st, l, now)

	var phases []Phase
	res, err := s.InitialSync(ctx, "tok", func(p Phase) { phases = append(phases, p) })
	require.NoError(t, err)
	require.Equal(t, Phases, phases)
	require.Equal(t, 2, res.Accounts)
	require.Equal(t, 4, res.Transactions)
	require.Equal(t, 5, res.Categories)
	require.Equal(t, 1, res.Savers)
	require.NotEmpty(t, res.RunID)

	// HELD: tx-2, tx-3 (one page). SETTLED: tx-1, tx-2, tx-4 (two pages).
	require.Equal(t, 3, res.Pages)
	require.Equal(t, 2, sl.count())
	require.Zero(t, l.CountRequests("filter%5Bsince%5D"))

	tx2, err := st.transactions.Get(ctx, "tx-2")
	require.NoError(t, err)
	require.Equal(t, "SETTLED", tx2.Status)
	require.Equal(t, int64(-5120), tx2.AmountCents)

	tx1, err := st.transactions.Get(ctx, "tx-1")
	require.NoError(t, err)
	require.Equal(t, "2025-02-09", dates.Format(tx1.DisplayDate))
	require.Equal(t, int64(-80), *tx1.RoundUpCents)

	roundUp, err := st.transactions.Get(ctx, "tx-4")
	require.NoError(t, err)
	require.True(t, roundUp.IsRoundUp)
	require.Nil(t, roundUp.TransferAccountID)

	saver, err := st.savers.Get(ctx, "saver-1")
	require.NoError(t, err)
	require.Equal(t, "Holiday", saver.DisplayName)
	require.Equal(t, int64(42000), saver.BalanceCents)

	cat, err := st.categories.Get(ctx, "groceries")
	require.NoError(t, err)
	require.Equal(t, "home", *cat.ParentID)

	last, err := st.settings.LastSync(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	require.True(t, last.Equal(now))

	runs, err := st.runs.Recent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, repository.SyncOK, runs[0].Status)
	require.Equal(t, "initial", runs[0].Kind)
	require.Equal(t, 4, runs[0].TransactionsSeen)
}

func TestSyncIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := testCtx(t)
	st := newStore(t)
	s, _ := newSynchronizer(t, st, fixtureLedger(), time.Date(2025, 2, 12, 9, 0, 0, 0, time.UTC))

	_, err := s.InitialSync(ctx, "tok", nil)
	require.NoError(t, err)
	first, err := st.transactions.List(ctx, repository.TransactionFilters{})
	require.NoError(t, err)

	_, err = s.InitialSync(ctx, "tok", nil)
	require.NoError(t, err)
	second, err := st.transactions.List(ctx, repository.TransactionFilters{})
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		a, b := first[i], second[i]
		a.UpdatedAt, b.UpdatedAt = time.Time{}, time.Time{}
		require.Equal(t, a, b)
	}
	accounts, err := st.accounts.List(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
}

func TestSyncPreservesSaverGoals(t *testing.T) {
	t.Parallel()
	ctx := testCtx(t)
	st := newStore(t)
	l := fixtureLedger()
	s, _ := newSynchronizer(t, st, l, time.Date(2025, 2, 12, 9, 0, 0, 0, time.UTC))

	_, err := s.InitialSync(ctx, "tok", nil)
	require.NoError(t, err)
	goal := int64(300000)
	target := dates.On(2025, time.December, 1)
	require.NoError(t, st.savers.SetGoal(ctx, "saver-1", &goal, &target, nil))

	l.Accounts[1].BalanceCents = 50000
	_, err = s.InitialSync(ctx, "tok", nil)
	require.NoError(t, err)

	saver, err := st.savers.Get(ctx, "saver-1")
	require.NoError(t, err)
	require.Equal(t, int64(50000), saver.BalanceCents)
	require.Equal(t, goal, *saver.GoalCents)
	require.Equal(t, target, *saver.TargetDate)
	require.Nil(t, saver.MonthlyTransferCents)
}

func TestSyncUnauthorized(t *testing.T) {
	t.Parallel()
	ctx := testCtx(t)
	st := newStore(t)
	s, _ := newSynchronizer(t, st, fixtureLedger(), time.Date(2025, 2, 12, 9, 0, 0, 0, time.UTC))

	var phases []Phase
	_, err := s.InitialSync(ctx, "expired", func(p Phase) { phases = append(phases, p) })
	require.Error(t, err)
	require.ErrorIs(t, err, remote.ErrUnauthorized)
	require.Equal(t, FailureUnauthorized, Classify(err))

	var pe *PhaseError
	require.True(t, errors.As(err, &pe))
	require.Equal(t, PhaseAccounts, pe.Phase)
	require.Equal(t, []Phase{PhaseAccounts}, phases)

	last, err := st.settings.LastSync(ctx)
	require.NoError(t, err)
	require.Nil(t, last)

	runs, err := st.runs.Recent(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, repository.SyncFailed, runs[0].Status)
	require.Equal(t, "accounts", *runs[0].FailedPhase)
}

func TestSyncLaterPhaseFailureKeepsEarlierPhases(t *testing.T) {
	t.Parallel()
	ctx := testCtx(t)
	st := newStore(t)
	l := fixtureLedger()
	s, _ := newSynchronizer(t, st, l, time.Date(2025, 2, 12, 9, 0, 0, 0, time.UTC))

	l.Fail("/categories", http.StatusBadGateway)
	_, err := s.InitialSync(ctx, "tok", nil)
	var pe *PhaseError
	require.True(t, errors.As(err, &pe))
	require.Equal(t, PhaseCategories, pe.Phase)
	require.Equal(t, FailureGeneric, Classify(err))

	n, err := st.transactions.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	last, err := st.settings.LastSync(ctx)
	require.NoError(t, err)
	require.Nil(t, last, "watermark must not move on failure")

	l.Recover()
	_, err = s.InitialSync(ctx, "tok", nil)
	require.NoError(t, err)
	last, err = st.settings.LastSync(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
}

func TestSyncRateLimitedInTransactions(t *testing.T) {
	t.Parallel()
	ctx := testCtx(t)
	st := newStore(t)
	l := fixtureLedger()
	s, _ := newSynchronizer(t, st, l, time.Date(2025, 2, 12, 9, 0, 0, 0, time.UTC))

	l.Fail("/transactions", http.StatusTooManyRequests)
	_, err := s.InitialSync(ctx, "tok", nil)
	require.Equal(t, FailureRateLimited, Classify(err))
	var pe *PhaseError
	require.True(t, errors.As(err, &pe))
	require.Equal(t, PhaseTransactions, pe.Phase)

	// accounts phase already landed
	accounts, err := st.accounts.List(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
}

func TestIncrementalSyncSendsWatermark(t *testing.T) {
	t.Parallel()
	ctx := testCtx(t)
	st := newStore(t)
	l := fixtureLedger()
	s, _ := newSynchronizer(t, st, l, time.Date(2025, 2, 12, 9, 0, 0, 0, time.UTC))

	since := time.Date(2025, 2, 9, 14, 0, 0, 0, time.UTC)
	res, err := s.Sync(ctx, "tok", &since, nil)
	require.NoError(t, err)
	require.Equal(t, 2, l.CountRequests("filter%5Bsince%5D=2025-02-09T14%3A00%3A00Z"))
	// only tx-3 (14:30 UTC) was created after the watermark
	require.Equal(t, 1, res.Transactions)

	runs, err := st.runs.Recent(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "incremental", runs[0].Kind)
}

func TestSyncStopsWhenContextCancelledBetweenPages(t *testing.T) {
	t.Parallel()
	st := newStore(t)
	s, _ := newSynchronizer(t, st, fixtureLedger(), time.Date(2025, 2, 12, 9, 0, 0, 0, time.UTC))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}
	_, err := s.InitialSync(ctx, "tok", nil)
	require.ErrorIs(t, err, context.Canceled)

	last, err := st.settings.LastSync(context.Background())
	require.NoError(t, err)
	require.Nil(t, last)
}

func TestSyncRunsRecalculationFirst(t *testing.T) {
	t.Parallel()
	ctx := testCtx(t)
	st := newStore(t)
	s, _ := newSynchronizer(t, st, fixtureLedger(), time.Date(2025, 2, 12, 9, 0, 0, 0, time.UTC))

	id, err := st.trackers.Create(ctx, repository.Tracker{
		Name: "Eating out", BudgetCents: 10000, ResetFrequency: string(budget.Weekly), ResetDay: 1,
		StartDate: dates.On(2025, time.January, 20), LastResetDate: dates.On(2025, time.January, 20), NextResetDate: dates.On(2025, time.January, 27),
		IsActive: true, CategoryIDs: []string{"good-life"},
	})
	require.NoError(t, err)

	_, err = s.InitialSync(ctx, "tok", nil)
	require.NoError(t, err)

	tr, err := st.trackers.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, dates.On(2025, time.February, 10), tr.LastResetDate)
	require.Equal(t, dates.On(2025, time.February, 17), tr.NextResetDate)
}

func TestSyncStopsWhenRecalculationFails(t *testing.T) {
	t.Parallel()
	ctx := testCtx(t)
	st := newStore(t)
	l := fixtureLedger()
	s, _ := newSynchronizer(t, st, l, time.Date(2025, 2, 12, 9, 0, 0, 0, time.UTC))

	_, err := st.trackers.Create(ctx, repository.Tracker{
		Name: "Eating out", BudgetCents: 10000, ResetFrequency: string(budget.Weekly), ResetDay: 1,
		StartDate: dates.On(2025, time.January, 20), LastResetDate: dates.On(2025, time.January, 20), NextResetDate: dates.On(2025, time.January, 27),
		IsActive: true, CategoryIDs: []string{"good-life"},
	})
	require.NoError(t, err)
	_, err = st.db.ExecContext(ctx, `DROP TABLE tracker_categories`)
	require.NoError(t, err)

	var phases []Phase
	_, err = s.InitialSync(ctx, "tok", func(p Phase) { phases = append(phases, p) })
	var pe *PhaseError
	require.True(t, errors.As(err, &pe))
	require.Equal(t, PhaseRecalculate, pe.Phase)
	require.Empty(t, phases)
	require.Zero(t, l.CountRequests("/accounts"))

	runs, err := st.runs.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, repository.SyncFailed, runs[0].Status)
	require.Equal(t, string(PhaseRecalculate), *runs[0].FailedPhase)
}

func TestSyncWatermarkFailureIsLabelled(t *testing.T) {
	t.Parallel()
	ctx := testCtx(t)
	st := newStore(t)
	s, _ := newSynchronizer(t, st, fixtureLedger(), time.Date(2025, 2, 12, 9, 0, 0, 0, time.UTC))
	s.Trackers = nil

	_, err := st.db.ExecContext(ctx, `DROP TABLE settings`)
	require.NoError(t, err)

	_, err = s.InitialSync(ctx, "tok", nil)
	var pe *PhaseError
	require.True(t, errors.As(err, &pe))
	require.Equal(t, PhaseWatermark, pe.Phase)

	n, err := st.transactions.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, n)

	runs, err := st.runs.Recent(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, string(PhaseWatermark), *runs[0].FailedPhase)
}

func TestSyncWithoutStore(t *testing.T) {
	t.Parallel()
	ctx := testCtx(t)
	st := storeFor(nil)
	s, _ := newSynchronizer(t, st, fixtureLedger(), time.Date(2025, 2, 12, 9, 0, 0, 0, time.UTC))

	_, err := s.InitialSync(ctx, "tok", nil)
	require.Equal(t, FailureStoreUnavailable, Classify(err))
}

func TestMergeByStatus(t *testing.T) {
	t.Parallel()

	held := []remote.Transaction{
		{ID: "a", Status: remote.Held, AmountCents: -100},
		{ID: "b", Status: remote.Held, AmountCents: -200},
	}
	settled := []remote.Transaction{
		{ID: "b", Status: remote.Settled, AmountCents: -210},
		{ID: "c", Status: remote.Settled, AmountCents: -300},
	}
	got := MergeByStatus(held, settled)
	require.Len(t, got, 3)
	require.Equal(t, "a", got[0].ID)
	require.Equal(t, remote.Settled, got[1].Status)
	require.Equal(t, int64(-210), got[1].AmountCents)

	// order of arrival does not matter: settled still wins
	got = MergeByStatus(nil, append(settled, remote.Transaction{ID: "b", Status: remote.Held, AmountCents: -1}))
	require.Len(t, got, 2)
	require.Equal(t, int64(-210), got[0].AmountCents)

	require.Empty(t, MergeByStatus(nil, nil))
}

func TestSyncGeneratedLedgerAcrossManyPages(t *testing.T) {
	t.Parallel()
	ctx := testCtx(t)
	st := newStore(t)
	l := testdata.NewLedger("tok")
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	testdata.Generate(l, 57, 7, now)

	s, sl := newSynchronizer(t, st, l, now)
	s.PageSize = 10
	res, err := s.InitialSync(ctx, "tok", nil)
	require.NoError(t, err)

	held := 0
	for _, tx := range l.Transactions {
		if tx.Status == "HELD" {
			held++
		}
	}
	pagesFor := func(n int) int { return max(1, (n+9)/10) }
	require.Equal(t, 57, res.Transactions)
	require.Equal(t, pagesFor(held)+pagesFor(57-held), res.Pages)
	require.Equal(t, res.Pages-1, sl.count())
	require.Equal(t, 1, res.Savers)

	n, err := st.transactions.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 57, n)
}
