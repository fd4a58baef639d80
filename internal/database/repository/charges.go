package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jask/ledgersync/internal/dates"
)

// ChargeRepo handles scheduled charges.
type ChargeRepo struct {
	db *sql.DB
}

func NewChargeRepo(db *sql.DB) *ChargeRepo { return &ChargeRepo{db: db} }

// Create inserts c and returns its id.
func (r *ChargeRepo) Create(ctx context.Context, c ScheduledCharge) (int64, error) {
	if err := writable(r.db); err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx, `
	INSERT INTO scheduled_charges(name, amount_cents, frequency, next_charge_date, category_id, is_reserved, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		c.Name, c.AmountCents, c.Frequency, dates.Format(c.NextChargeDate), c.CategoryID, boolInt(c.IsReserved))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *ChargeRepo) Update(ctx context.Context, c ScheduledCharge) error {
	if err := writable(r.db); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
	UPDATE scheduled_charges SET name = ?, amount_cents = ?, frequency = ?, next_charge_date = ?, category_id = ?,
	 is_reserved = ?, updated_at=CURRENT_TIMESTAMP
	WHERE id = ?`,
		c.Name, c.AmountCents, c.Frequency, dates.Format(c.NextChargeDate), c.CategoryID, boolInt(c.IsReserved), c.ID)
	return err
}

// SetNextDate moves a charge to its next occurrence.
func (r *ChargeRepo) SetNextDate(ctx context.Context, id int64, next time.Time) error {
	if err := writable(r.db); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `UPDATE scheduled_charges SET next_charge_date = ?, updated_at=CURRENT_TIMESTAMP WHERE id = ?`, dates.Format(next), id)
	return err
}

func (r *ChargeRepo) Delete(ctx context.Context, id int64) error {
	if err := writable(r.db); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM scheduled_charges WHERE id = ?`, id)
	return err
}

func (r *ChargeRepo) Get(ctx context.Context, id int64) (*ScheduledCharge, error) {
	if r.db == nil {
		return nil, nil
	}
	c, err := scanCharge(r.db.QueryRowContext(ctx, selectCharge+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ChargeRepo) List(ctx context.Context) ([]ScheduledCharge, error) {
	return r.list(ctx, selectCharge+` ORDER BY next_charge_date, id`)
}

// ListReserved returns only the charges flagged to count toward reservation.
func (r *ChargeRepo) ListReserved(ctx context.Context) ([]ScheduledCharge, error) {
	return r.list(ctx, selectCharge+` WHERE is_reserved = 1 ORDER BY next_charge_date, id`)
}

func (r *ChargeRepo) list(ctx context.Context, query string, args ...any) ([]ScheduledCharge, error) {
	if r.db == nil {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ScheduledCharge
	for rows.Next() {
		c, err := scanCharge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const selectCharge = `SELECT id, name, amount_cents, frequency, next_charge_date, category_id, is_reserved, created_at, updated_at FROM scheduled_charges`

func scanCharge(s scanner) (ScheduledCharge, error) {
	var c ScheduledCharge
	var next string
	var reserved int
	if err := s.Scan(&c.ID, &c.Name, &c.AmountCents, &c.Frequency, &next, &c.CategoryID, &reserved, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return ScheduledCharge{}, err
	}
	d, err := dates.Parse(next)
	if err != nil {
		return ScheduledCharge{}, err
	}
	c.NextChargeDate = d
	c.IsReserved = reserved != 0
	return c, nil
}
