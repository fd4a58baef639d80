package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jask/ledgersync/internal/config"
	"github.com/jask/ledgersync/internal/database"
	"github.com/jask/ledgersync/internal/database/repository"
	"github.com/jask/ledgersync/internal/dates"
	"github.com/jask/ledgersync/internal/remote"
	"github.com/jask/ledgersync/internal/secrets"
	"github.com/jask/ledgersync/internal/service"
)

// tokenName is the key the API token is stored under in the secrets file.
const tokenName = "up"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		log.Fatalf("ledgersync: %v", err)
	}
}

// app is everything a subcommand needs, built once per invocation.
type app struct {
	cfg     config.Config
	loc     *time.Location
	logger  *log.Logger
	db      *sql.DB
	flusher *database.Flusher
	remote  *remote.Client

	accounts     *repository.AccountRepo
	transactions *repository.TransactionRepo
	categories   *repository.CategoryRepo
	savers       *repository.SaverRepo
	charges      *repository.ChargeRepo
	trackers     *repository.TrackerRepo
	settings     *repository.SettingsRepo
	runs         *repository.SyncRunRepo

	trackerSvc  *service.TrackerService
	chargeSvc   *service.ChargeService
	balanceSvc  *service.BalanceService
	resolver    *service.CategoryResolver
	maintenance *service.MaintenanceService
}

// openApp loads config, migrates and opens the store, then runs the
// start-of-day maintenance. A store that cannot be opened leaves the app
// running read-empty; writes then fail with database.ErrStoreUnavailable.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	a := &app{
		cfg:    cfg,
		loc:    cfg.Location(),
		logger: log.New(os.Stderr, "ledgersync: ", log.LstdFlags),
		remote: remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.Timeout),
	}

	db, err := openStore(cfg.Database.Path)
	if err != nil {
		a.logger.Printf("warn: local store unavailable: %v", err)
	}
	a.db = db
	a.flusher = database.NewFlusher(db, cfg.Database.FlushDelay, a.logger)

	a.accounts = repository.NewAccountRepo(db)
	a.transactions = repository.NewTransactionRepo(db)
	a.categories = repository.NewCategoryRepo(db)
	a.savers = repository.NewSaverRepo(db)
	a.charges = repository.NewChargeRepo(db)
	a.trackers = repository.NewTrackerRepo(db)
	a.settings = repository.NewSettingsRepo(db)
	a.runs = repository.NewSyncRunRepo(db)

	a.trackerSvc = &service.TrackerService{Trackers: a.trackers, Settings: a.settings, Logger: a.logger}
	a.chargeSvc = &service.ChargeService{Charges: a.charges}
	a.balanceSvc = &service.BalanceService{Accounts: a.accounts, Charges: a.charges, Settings: a.settings}
	a.resolver = &service.CategoryResolver{Categories: a.categories}
	a.maintenance = &service.MaintenanceService{DB: db}

	if db != nil {
		a.startOfDay(ctx)
	}
	return a, nil
}

func openStore(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}
	if err := database.RunMigrations(path); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return database.Open(path)
}

// startOfDay rolls due charges and stale tracker windows forward. Failures
// are logged; they must not block the command the user asked for.
func (a *app) startOfDay(ctx context.Context) {
	today := a.today()
	if rolled, err := a.chargeSvc.RollForward(ctx, today); err != nil {
		a.logger.Printf("warn: roll charges: %v", err)
	} else if len(rolled) > 0 {
		a.logger.Printf("rolled %d scheduled charges forward", len(rolled))
	}
	if _, err := a.trackerSvc.Recalculate(ctx, today); err != nil {
		a.logger.Printf("warn: recalculate trackers: %v", err)
	}
	a.flusher.Schedule()
}

func (a *app) today() time.Time { return dates.Today(a.loc) }

func (a *app) token() (string, error) {
	tok, err := secrets.ResolveToken(a.cfg.Remote.TokenEnv, tokenName)
	if err != nil {
		return "", fmt.Errorf("no API token; set %s or run `ledgersync login`: %w", a.cfg.Remote.TokenEnv, err)
	}
	return tok, nil
}

func (a *app) synchronizer() *service.Synchronizer {
	return &service.Synchronizer{
		Remote:       a.remote,
		Accounts:     a.accounts,
		Transactions: a.transactions,
		Categories:   a.categories,
		Savers:       a.savers,
		Settings:     a.settings,
		Runs:         a.runs,
		Trackers:     a.trackerSvc,
		Flusher:      a.flusher,
		Logger:       a.logger,
		PageSize:     a.cfg.Remote.PageSize,
		PageDelay:    a.cfg.Remote.PageDelay,
		Location:     a.loc,
	}
}

// sync runs a full sync when full is set or nothing has synced yet, and an
// incremental one from the stored watermark otherwise.
func (a *app) sync(ctx context.Context, full bool, obs service.Observer) (service.SyncResult, error) {
	tok, err := a.token()
	if err != nil {
		return service.SyncResult{}, err
	}
	s := a.synchronizer()
	if full {
		return s.InitialSync(ctx, tok, obs)
	}
	since, err := a.settings.LastSync(ctx)
	if err != nil {
		return service.SyncResult{}, fmt.Errorf("read watermark: %w", err)
	}
	return s.Sync(ctx, tok, since, obs)
}

func (a *app) Close() {
	if err := a.flusher.Close(); err != nil {
		a.logger.Printf("warn: flush: %v", err)
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
