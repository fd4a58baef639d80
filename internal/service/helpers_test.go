package service

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/ledgersync/internal/database"
	"github.com/jask/ledgersync/internal/database/repository"
)

type store struct {
	db           *sql.DB
	accounts     *repository.AccountRepo
	transactions *repository.TransactionRepo
	categories   *repository.CategoryRepo
	savers       *repository.SaverRepo
	charges      *repository.ChargeRepo
	trackers     *repository.TrackerRepo
	settings     *repository.SettingsRepo
	runs         *repository.SyncRunRepo
}

func newStore(t *testing.T) store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, database.RunMigrations(dbPath))
	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return storeFor(db)
}

func storeFor(db *sql.DB) store {
	return store{
		db:           db,
		accounts:     repository.NewAccountRepo(db),
		transactions: repository.NewTransactionRepo(db),
		categories:   repository.NewCategoryRepo(db),
		savers:       repository.NewSaverRepo(db),
		charges:      repository.NewChargeRepo(db),
		trackers:     repository.NewTrackerRepo(db),
		settings:     repository.NewSettingsRepo(db),
		runs:         repository.NewSyncRunRepo(db),
	}
}

func (s store) trackerService() *TrackerService {
	return &TrackerService{Trackers: s.trackers, Settings: s.settings}
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func strp(s string) *string { return &s }
