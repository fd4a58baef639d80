package repository

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/jask/ledgersync/internal/database"
	"github.com/jask/ledgersync/internal/dates"
	"github.com/jask/ledgersync/internal/payday"
)

// Settings keys.
const (
	KeyNextPayday      = "next_payday"
	KeyPaydayFrequency = "payday_frequency"
	KeyPaydayDay       = "payday_day"
	KeyLastSync        = "last_sync"
)

// SettingsRepo is a key/value store.
type SettingsRepo struct {
	db *sql.DB
}

func NewSettingsRepo(db *sql.DB) *SettingsRepo { return &SettingsRepo{db: db} }

// Get returns "" when the key is unset.
func (r *SettingsRepo) Get(ctx context.Context, key string) (string, error) {
	if r.db == nil {
		return "", nil
	}
	var v string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return v, err
}

func (r *SettingsRepo) Set(ctx context.Context, key, value string) error {
	return r.SetMany(ctx, map[string]string{key: value})
}

// SetMany writes every pair atomically. An empty value deletes the key.
func (r *SettingsRepo) SetMany(ctx context.Context, kv map[string]string) error {
	if err := writable(r.db); err != nil {
		return err
	}
	return database.WithTx(r.db, func(tx *sql.Tx) error {
		for k, v := range kv {
			if v == "" {
				if _, err := tx.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, k); err != nil {
					return err
				}
				continue
			}
			_, err := tx.ExecContext(ctx, `
			INSERT INTO settings(key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=CURRENT_TIMESTAMP`, k, v)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Payday loads the global payday schedule. Missing or malformed values
// leave the corresponding field zero, which reads as "unset".
func (r *SettingsRepo) Payday(ctx context.Context) (payday.Settings, error) {
	var s payday.Settings
	next, err := r.Get(ctx, KeyNextPayday)
	if err != nil {
		return s, err
	}
	freq, err := r.Get(ctx, KeyPaydayFrequency)
	if err != nil {
		return s, err
	}
	day, err := r.Get(ctx, KeyPaydayDay)
	if err != nil {
		return s, err
	}
	if d, err := dates.Parse(next); err == nil {
		s.Next = d
	}
	if f, err := payday.ParseFrequency(freq); err == nil {
		s.Frequency = f
	}
	if n, err := strconv.Atoi(day); err == nil {
		s.Day = n
	}
	return s, nil
}

func (r *SettingsRepo) SavePayday(ctx context.Context, s payday.Settings) error {
	day := ""
	if s.Day > 0 {
		day = strconv.Itoa(s.Day)
	}
	return r.SetMany(ctx, map[string]string{
		KeyNextPayday:      dates.Format(s.Next),
		KeyPaydayFrequency: string(s.Frequency),
		KeyPaydayDay:       day,
	})
}

// LastSync returns the watermark, or nil before the first successful sync.
func (r *SettingsRepo) LastSync(ctx context.Context) (*time.Time, error) {
	v, err := r.Get(ctx, KeyLastSync)
	if err != nil || v == "" {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *SettingsRepo) SetLastSync(ctx context.Context, at time.Time) error {
	return r.Set(ctx, KeyLastSync, at.UTC().Format(time.RFC3339))
}
