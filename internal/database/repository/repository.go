// Package repository holds the sqlite-backed stores for every local table.
// Writes against a store that was never opened fail with
// database.ErrStoreUnavailable; reads return empty results.
package repository

import (
	"database/sql"
	"time"

	"github.com/jask/ledgersync/internal/database"
	"github.com/jask/ledgersync/internal/dates"
)

func writable(db *sql.DB) error {
	if db == nil {
		return database.ErrStoreUnavailable
	}
	return nil
}

func nullDate(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return dates.Format(*t)
}

func scanNullDate(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	d, err := dates.Parse(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
