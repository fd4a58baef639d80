package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SaverRepo handles the saver projection.
type SaverRepo struct {
	db *sql.DB
}

func NewSaverRepo(db *sql.DB) *SaverRepo { return &SaverRepo{db: db} }

// Upsert mirrors the remote side of a saver. Goal fields on an existing row
// are left untouched.
func (r *SaverRepo) Upsert(ctx context.Context, s Saver) error {
	if err := writable(r.db); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO savers(account_id, display_name, balance_cents, goal_cents, target_date, monthly_transfer_cents, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(account_id) DO UPDATE SET
	 display_name=excluded.display_name,
	 balance_cents=excluded.balance_cents,
	 updated_at=CURRENT_TIMESTAMP;
	`, s.AccountID, s.DisplayName, s.BalanceCents, s.GoalCents, nullDate(s.TargetDate), s.MonthlyTransferCents)
	return err
}

// SetGoal replaces the user-owned goal fields.
func (r *SaverRepo) SetGoal(ctx context.Context, accountID string, goalCents *int64, target *time.Time, monthlyCents *int64) error {
	if err := writable(r.db); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
	UPDATE savers SET goal_cents = ?, target_date = ?, monthly_transfer_cents = ?, updated_at=CURRENT_TIMESTAMP
	WHERE account_id = ?`, goalCents, nullDate(target), monthlyCents, accountID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *SaverRepo) Get(ctx context.Context, accountID string) (*Saver, error) {
	if r.db == nil {
		return nil, nil
	}
	row := r.db.QueryRowContext(ctx, selectSaver+` WHERE account_id = ?`, accountID)
	s, err := scanSaver(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SaverRepo) List(ctx context.Context) ([]Saver, error) {
	if r.db == nil {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, selectSaver+` ORDER BY display_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Saver
	for rows.Next() {
		s, err := scanSaver(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const selectSaver = `SELECT account_id, display_name, balance_cents, goal_cents, target_date, monthly_transfer_cents, updated_at FROM savers`

func scanSaver(s scanner) (Saver, error) {
	var out Saver
	var target sql.NullString
	if err := s.Scan(&out.AccountID, &out.DisplayName, &out.BalanceCents, &out.GoalCents, &target, &out.MonthlyTransferCents, &out.UpdatedAt); err != nil {
		return Saver{}, err
	}
	d, err := scanNullDate(target)
	if err != nil {
		return Saver{}, err
	}
	out.TargetDate = d
	return out, nil
}
