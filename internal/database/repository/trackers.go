package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jask/ledgersync/internal/database"
	"github.com/jask/ledgersync/internal/dates"
)

// TrackerRepo handles budget trackers and their category links.
type TrackerRepo struct {
	db *sql.DB
}

func NewTrackerRepo(db *sql.DB) *TrackerRepo { return &TrackerRepo{db: db} }

// Create inserts t with its category links and returns the new id.
func (r *TrackerRepo) Create(ctx context.Context, t Tracker) (int64, error) {
	if err := writable(r.db); err != nil {
		return 0, err
	}
	var id int64
	err := database.WithTx(r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
		INSERT INTO trackers(name, budget_cents, reset_frequency, reset_day, start_date, last_reset_date, next_reset_date, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
			t.Name, t.BudgetCents, t.ResetFrequency, t.ResetDay, dates.Format(t.StartDate),
			dates.Format(t.LastResetDate), dates.Format(t.NextResetDate), boolInt(t.IsActive))
		if err != nil {
			return err
		}
		if id, err = res.LastInsertId(); err != nil {
			return err
		}
		return linkCategories(ctx, tx, id, t.CategoryIDs)
	})
	return id, err
}

// Update rewrites a tracker's fields and replaces its category links.
func (r *TrackerRepo) Update(ctx context.Context, t Tracker) error {
	if err := writable(r.db); err != nil {
		return err
	}
	return database.WithTx(r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
		UPDATE trackers SET name = ?, budget_cents = ?, reset_frequency = ?, reset_day = ?, start_date = ?,
		 last_reset_date = ?, next_reset_date = ?, is_active = ?, updated_at=CURRENT_TIMESTAMP
		WHERE id = ?`,
			t.Name, t.BudgetCents, t.ResetFrequency, t.ResetDay, dates.Format(t.StartDate),
			dates.Format(t.LastResetDate), dates.Format(t.NextResetDate), boolInt(t.IsActive), t.ID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM tracker_categories WHERE tracker_id = ?`, t.ID); err != nil {
			return err
		}
		return linkCategories(ctx, tx, t.ID, t.CategoryIDs)
	})
}

// UpdatePeriod persists a recalculated window.
func (r *TrackerRepo) UpdatePeriod(ctx context.Context, id int64, last, next time.Time) error {
	if err := writable(r.db); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
	UPDATE trackers SET last_reset_date = ?, next_reset_date = ?, updated_at=CURRENT_TIMESTAMP WHERE id = ?`,
		dates.Format(last), dates.Format(next), id)
	return err
}

func (r *TrackerRepo) Delete(ctx context.Context, id int64) error {
	if err := writable(r.db); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM trackers WHERE id = ?`, id)
	return err
}

func linkCategories(ctx context.Context, tx *sql.Tx, trackerID int64, categoryIDs []string) error {
	for _, c := range categoryIDs {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO tracker_categories(tracker_id, category_id) VALUES (?, ?)`, trackerID, c); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the tracker with its categories, or nil when it is unknown.
func (r *TrackerRepo) Get(ctx context.Context, id int64) (*Tracker, error) {
	if r.db == nil {
		return nil, nil
	}
	t, err := scanTracker(r.db.QueryRowContext(ctx, selectTracker+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if t.CategoryIDs, err = r.categories(ctx, t.ID); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TrackerRepo) List(ctx context.Context) ([]Tracker, error) {
	return r.list(ctx, selectTracker+` ORDER BY name, id`)
}

func (r *TrackerRepo) ListActive(ctx context.Context) ([]Tracker, error) {
	return r.list(ctx, selectTracker+` WHERE is_active = 1 ORDER BY name, id`)
}

func (r *TrackerRepo) list(ctx context.Context, query string) ([]Tracker, error) {
	if r.db == nil {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	var out []Tracker
	for rows.Next() {
		t, err := scanTracker(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// one connection: the cursor must be released before the link queries
	rows.Close()

	for i := range out {
		cats, err := r.categories(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].CategoryIDs = cats
	}
	return out, nil
}

func (r *TrackerRepo) categories(ctx context.Context, trackerID int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT category_id FROM tracker_categories WHERE tracker_id = ? ORDER BY category_id`, trackerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Spend sums the tracker's outflows in [from, to) by display date over
// transactions whose own category is linked. Transfers never count.
func (r *TrackerRepo) Spend(ctx context.Context, trackerID int64, from, to time.Time) (int64, error) {
	if r.db == nil {
		return 0, nil
	}
	var spent int64
	err := r.db.QueryRowContext(ctx, `
	SELECT COALESCE(SUM(-t.amount_cents), 0) FROM transactions t
	WHERE t.amount_cents < 0
	 AND t.transfer_account_id IS NULL
	 AND t.display_date >= ? AND t.display_date < ?
	 AND t.category_id IN (SELECT category_id FROM tracker_categories WHERE tracker_id = ?)`, dates.Format(from), dates.Format(to), trackerID).Scan(&spent)
	return spent, err
}

const selectTracker = `SELECT id, name, budget_cents, reset_frequency, reset_day, start_date, last_reset_date, next_reset_date, is_active, created_at, updated_at FROM trackers`

func scanTracker(s scanner) (Tracker, error) {
	var t Tracker
	var start, last, next string
	var active int
	if err := s.Scan(&t.ID, &t.Name, &t.BudgetCents, &t.ResetFrequency, &t.ResetDay, &start, &last, &next, &active, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Tracker{}, err
	}
	var err error
	if t.StartDate, err = dates.Parse(start); err != nil {
		return Tracker{}, err
	}
	if t.LastResetDate, err = dates.Parse(last); err != nil {
		return Tracker{}, err
	}
	if t.NextResetDate, err = dates.Parse(next); err != nil {
		return Tracker{}, err
	}
	t.IsActive = active != 0
	return t, nil
}
