package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMigrationsCreateSchema(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, RunMigrations(dbPath))
	// second run is a no-op
	require.NoError(t, RunMigrations(dbPath))

	v, dirty, err := SchemaVersion(dbPath)
	require.NoError(t, err)
	require.False(t, dirty)
	require.Equal(t, uint(1), v)

	db, err := Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	for _, table := range []string{
		"accounts", "transactions", "categories", "savers", "scheduled_charges",
		"trackers", "tracker_categories", "settings", "sync_runs",
	} {
		var name string
		err := db.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, table)
	}

	var mode string
	require.NoError(t, db.QueryRowContext(ctx, `PRAGMA journal_mode`).Scan(&mode))
	require.Equal(t, "wal", mode)
	var fk int
	require.NoError(t, db.QueryRowContext(ctx, `PRAGMA foreign_keys`).Scan(&fk))
	require.Equal(t, 1, fk)
}

func TestWithTxRollsBack(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, RunMigrations(dbPath))
	db, err := Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	boom := errors.New("boom")
	err = WithTx(db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO settings(key, value) VALUES ('a', '1')`); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM settings`).Scan(&n))
	require.Zero(t, n)

	require.ErrorIs(t, WithTx(nil, func(*sql.Tx) error { return nil }), ErrStoreUnavailable)
}

func TestFlusherDebouncesAndFlushesOnClose(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, RunMigrations(dbPath))
	db, err := Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f := NewFlusher(db, 200*time.Millisecond, nil)
	for i := 0; i < 5; i++ {
		_, err := db.ExecContext(ctx, `INSERT OR REPLACE INTO settings(key, value) VALUES ('k', ?)`, i)
		require.NoError(t, err)
		f.Schedule()
	}
	require.Eventually(t, func() bool { return f.Flushes() == 1 }, 2*time.Second, 10*time.Millisecond)

	// nothing pending: explicit flush is a no-op
	require.NoError(t, f.Flush(ctx))
	require.Equal(t, 1, f.Flushes())

	f.Schedule()
	require.NoError(t, f.Close())
	require.Equal(t, 2, f.Flushes())

	// closed flushers ignore further scheduling
	f.Schedule()
	require.NoError(t, f.Flush(ctx))
	require.Equal(t, 2, f.Flushes())
}

func TestFlusherWithoutStore(t *testing.T) {
	t.Parallel()

	f := NewFlusher(nil, 0, nil)
	f.Schedule()
	require.NoError(t, f.Flush(context.Background()))
	require.NoError(t, f.Close())
}
