package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jask/ledgersync/internal/database"
	"github.com/jask/ledgersync/internal/database/repository"
	"github.com/jask/ledgersync/internal/dates"
	"github.com/jask/ledgersync/internal/remote"
)

// Phase is one step of a sync, reported to the Observer in order.
type Phase string

const (
	PhaseAccounts     Phase = "accounts"
	PhaseTransactions Phase = "transactions"
	PhaseCategories   Phase = "categories"
	PhaseSavers       Phase = "savers"
	PhaseDone         Phase = "done"

	// PhaseRecalculate and PhaseWatermark label failures of the steps that
	// bracket the fetch phases. Observers never see them.
	PhaseRecalculate Phase = "recalculate"
	PhaseWatermark   Phase = "watermark"
)

// Phases lists every phase in execution order.
var Phases = []Phase{PhaseAccounts, PhaseTransactions, PhaseCategories, PhaseSavers, PhaseDone}

// Observer is told when each phase starts. It runs on the sync goroutine.
type Observer func(Phase)

// Ledger is the remote surface the synchronizer reads.
type Ledger interface {
	Accounts(ctx context.Context, token string) ([]remote.Account, error)
	TransactionsURL(since *time.Time, pageSize int, status remote.Status) string
	TransactionsPage(ctx context.Context, token, pageURL string) (remote.TransactionPage, error)
	Categories(ctx context.Context, token string) ([]remote.Category, error)
}

// SyncResult counts what one sync wrote.
type SyncResult struct {
	RunID        string
	Accounts     int
	Transactions int
	Pages        int
	Categories   int
	Savers       int
	Watermark    time.Time
}

// Synchronizer mirrors the remote ledger into the local store.
type Synchronizer struct {
	Remote       Ledger
	Accounts     *repository.AccountRepo
	Transactions *repository.TransactionRepo
	Categories   *repository.CategoryRepo
	Savers       *repository.SaverRepo
	Settings     *repository.SettingsRepo
	Runs         *repository.SyncRunRepo
	// Trackers, when set, gets its recalculation pass before each sync.
	Trackers *TrackerService
	Flusher  *database.Flusher
	Logger   *log.Logger

	PageSize  int
	PageDelay time.Duration
	Location  *time.Location

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// InitialSync fetches the full history.
func (s *Synchronizer) InitialSync(ctx context.Context, token string, obs Observer) (SyncResult, error) {
	return s.run(ctx, token, nil, "initial", obs)
}

// Sync fetches transactions created at or after since. A nil since behaves
// like InitialSync.
func (s *Synchronizer) Sync(ctx context.Context, token string, since *time.Time, obs Observer) (SyncResult, error) {
	kind := "incremental"
	if since == nil {
		kind = "initial"
	}
	return s.run(ctx, token, since, kind, obs)
}

func (s *Synchronizer) run(ctx context.Context, token string, since *time.Time, kind string, obs Observer) (res SyncResult, err error) {
	if obs == nil {
		obs = func(Phase) {}
	}
	started := s.now()
	if s.Runs != nil {
		id, rerr := s.Runs.Start(ctx, kind, started)
		if rerr != nil {
			s.logf("record sync start: %v", rerr)
		}
		res.RunID = id
	}
	var phase Phase
	defer func() {
		if res.RunID == "" {
			return
		}
		failed := ""
		if err != nil {
			failed = string(phase)
		}
		if ferr := s.Runs.Finish(context.WithoutCancel(ctx), res.RunID, s.now(), res.Transactions, failed, err); ferr != nil {
			s.logf("record sync finish: %v", ferr)
		}
	}()

	fail := func(p Phase, e error) error {
		return &PhaseError{Phase: p, Err: e}
	}

	if s.Trackers != nil {
		phase = PhaseRecalculate
		if _, err := s.Trackers.Recalculate(ctx, dates.Of(started.In(s.location()))); err != nil {
			return res, fail(phase, err)
		}
	}

	phase = PhaseAccounts
	obs(phase)
	accounts, err := s.Remote.Accounts(ctx, token)
	if err != nil {
		return res, fail(phase, err)
	}
	for _, a := range accounts {
		created := a.CreatedAt
		row := repository.Account{ID: a.ID, DisplayName: a.DisplayName, AccountType: a.Type, BalanceCents: a.BalanceCents}
		if !created.IsZero() {
			row.RemoteCreatedAt = &created
		}
		if err := s.Accounts.Upsert(ctx, row); err != nil {
			return res, fail(phase, fmt.Errorf("upsert account %s: %w", a.ID, err))
		}
	}
	res.Accounts = len(accounts)
	s.Flusher.Schedule()
	s.logf("sync %s: %d accounts", kind, len(accounts))

	phase = PhaseTransactions
	obs(phase)
	p := &pager{sync: s, token: token}
	held, err := p.fetchAll(ctx, s.Remote.TransactionsURL(since, s.PageSize, remote.Held))
	if err != nil {
		return res, fail(phase, err)
	}
	settled, err := p.fetchAll(ctx, s.Remote.TransactionsURL(since, s.PageSize, remote.Settled))
	if err != nil {
		return res, fail(phase, err)
	}
	merged := MergeByStatus(held, settled)
	rows := make([]repository.Transaction, 0, len(merged))
	for _, t := range merged {
		rows = append(rows, transactionRow(t))
	}
	if err := s.Transactions.UpsertMany(ctx, rows); err != nil {
		return res, fail(phase, fmt.Errorf("upsert transactions: %w", err))
	}
	res.Transactions = len(merged)
	res.Pages = p.pages
	s.Flusher.Schedule()
	s.logf("sync %s: %d held + %d settled -> %d transactions over %d pages", kind, len(held), len(settled), len(merged), p.pages)

	phase = PhaseCategories
	obs(phase)
	cats, err := s.Remote.Categories(ctx, token)
	if err != nil {
		return res, fail(phase, err)
	}
	for _, c := range cats {
		if err := s.Categories.Upsert(ctx, repository.Category{ID: c.ID, Name: c.Name, ParentID: c.ParentID}); err != nil {
			return res, fail(phase, fmt.Errorf("upsert category %s: %w", c.ID, err))
		}
	}
	res.Categories = len(cats)
	s.Flusher.Schedule()

	phase = PhaseSavers
	obs(phase)
	for _, a := range accounts {
		if a.Type != remoteSaver {
			continue
		}
		if err := s.Savers.Upsert(ctx, repository.Saver{AccountID: a.ID, DisplayName: a.DisplayName, BalanceCents: a.BalanceCents}); err != nil {
			return res, fail(phase, fmt.Errorf("upsert saver %s: %w", a.ID, err))
		}
		res.Savers++
	}
	s.Flusher.Schedule()

	phase = PhaseWatermark
	completed := s.now()
	if err := s.Settings.SetLastSync(ctx, completed); err != nil {
		return res, fail(phase, fmt.Errorf("persist watermark: %w", err))
	}
	res.Watermark = completed
	phase = PhaseDone
	obs(phase)
	return res, nil
}

const remoteSaver = "SAVER"

// MergeByStatus combines the HELD and SETTLED streams into one set keyed by
// id. A SETTLED copy always replaces a HELD one. Order follows first sighting.
func MergeByStatus(held, settled []remote.Transaction) []remote.Transaction {
	byID := make(map[string]int, len(held)+len(settled))
	out := make([]remote.Transaction, 0, len(held)+len(settled))
	put := func(t remote.Transaction) {
		if i, ok := byID[t.ID]; ok {
			if out[i].Status == remote.Settled && t.Status != remote.Settled {
				return
			}
			out[i] = t
			return
		}
		byID[t.ID] = len(out)
		out = append(out, t)
	}
	for _, t := range held {
		put(t)
	}
	for _, t := range settled {
		put(t)
	}
	return out
}

func transactionRow(t remote.Transaction) repository.Transaction {
	return repository.Transaction{
		ID:                  t.ID,
		AccountID:           t.AccountID,
		Status:              string(t.Status),
		Description:         t.Description,
		Message:             t.Message,
		AmountCents:         t.AmountCents,
		CategoryID:          t.CategoryID,
		ParentCategoryID:    t.ParentCategoryID,
		TransferAccountID:   t.TransferAccountID,
		IsRoundUp:           t.IsRoundUp,
		RoundUpCents:        t.RoundUpCents,
		ParentTransactionID: t.ParentTransactionID,
		CreatedAt:           t.DisplayDate(),
		SettledAt:           t.SettledAt,
		DisplayDate:         dates.Of(t.DisplayDate()),
	}
}

// pager walks cursor pages, keeping the configured gap between every
// consecutive request of one sync.
type pager struct {
	sync    *Synchronizer
	token   string
	pages   int
	fetched bool
}

func (p *pager) fetchAll(ctx context.Context, next string) ([]remote.Transaction, error) {
	var out []remote.Transaction
	for next != "" {
		if p.fetched {
			if err := p.sync.sleep(ctx, p.sync.PageDelay); err != nil {
				return nil, err
			}
		}
		page, err := p.sync.Remote.TransactionsPage(ctx, p.token, next)
		p.fetched = true
		if err != nil {
			return nil, err
		}
		p.pages++
		out = append(out, page.Data...)
		next = page.Next
	}
	return out, nil
}

func (s *Synchronizer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Synchronizer) location() *time.Location {
	if s.Location != nil {
		return s.Location
	}
	return time.Local
}

func (s *Synchronizer) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	if s.Sleep != nil {
		return s.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Synchronizer) logf(format string, args ...any) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
	}
}
