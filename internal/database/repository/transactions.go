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

// TransactionFilters defines list filters. From and To bound the display
// date as a half-open range; zero values leave that side open.
type TransactionFilters struct {
	Status     string
	AccountID  string
	CategoryID string
	From       time.Time
	To         time.Time
}

// TransactionRepo handles transactions.
type TransactionRepo struct {
	db *sql.DB
}

func NewTransactionRepo(db *sql.DB) *TransactionRepo { return &TransactionRepo{db: db} }

const upsertTransaction = `
	INSERT INTO transactions(
	 id, account_id, status, description, message, amount_cents, category_id, parent_category_id,
	 transfer_account_id, is_round_up, round_up_cents, parent_transaction_id, created_at, settled_at,
	 display_date, updated_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(id) DO UPDATE SET
	 account_id=excluded.account_id,
	 status=excluded.status,
	 description=excluded.description,
	 message=excluded.message,
	 amount_cents=excluded.amount_cents,
	 category_id=excluded.category_id,
	 parent_category_id=excluded.parent_category_id,
	 transfer_account_id=excluded.transfer_account_id,
	 is_round_up=excluded.is_round_up,
	 round_up_cents=excluded.round_up_cents,
	 parent_transaction_id=excluded.parent_transaction_id,
	 created_at=excluded.created_at,
	 settled_at=excluded.settled_at,
	 display_date=excluded.display_date,
	 updated_at=CURRENT_TIMESTAMP;
	`

func transactionArgs(t Transaction) []any {
	display := t.DisplayDate
	if display.IsZero() {
		display = dates.Of(t.CreatedAt)
	}
	var settled any
	if t.SettledAt != nil {
		settled = t.SettledAt.UTC()
	}
	return []any{
		t.ID, t.AccountID, t.Status, t.Description, t.Message, t.AmountCents, t.CategoryID, t.ParentCategoryID,
		t.TransferAccountID, boolInt(t.IsRoundUp), t.RoundUpCents, t.ParentTransactionID, t.CreatedAt.UTC(), settled,
		dates.Format(display),
	}
}

// Upsert inserts or overwrites the row keyed by the remote id.
func (r *TransactionRepo) Upsert(ctx context.Context, t Transaction) error {
	if err := writable(r.db); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, upsertTransaction, transactionArgs(t)...)
	return err
}

// UpsertMany writes a batch in one transaction.
func (r *TransactionRepo) UpsertMany(ctx context.Context, txs []Transaction) error {
	if err := writable(r.db); err != nil {
		return err
	}
	return database.WithTx(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertTransaction)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, t := range txs {
			if _, err := stmt.ExecContext(ctx, transactionArgs(t)...); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get returns the transaction or nil when it is unknown.
func (r *TransactionRepo) Get(ctx context.Context, id string) (*Transaction, error) {
	if r.db == nil {
		return nil, nil
	}
	row := r.db.QueryRowContext(ctx, selectTransaction+` WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TransactionRepo) Count(ctx context.Context) (int, error) {
	if r.db == nil {
		return 0, nil
	}
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n)
	return n, err
}

func (r *TransactionRepo) List(ctx context.Context, f TransactionFilters) ([]Transaction, error) {
	if r.db == nil {
		return nil, nil
	}
	var where []string
	var args []interface{}

	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.AccountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, f.AccountID)
	}
	if f.CategoryID != "" {
		where = append(where, "(category_id = ? OR parent_category_id = ?)")
		args = append(args, f.CategoryID, f.CategoryID)
	}
	if !f.From.IsZero() {
		where = append(where, "display_date >= ?")
		args = append(args, dates.Format(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "display_date < ?")
		args = append(args, dates.Format(f.To))
	}

	query := selectTransaction
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY display_date DESC, created_at DESC, id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const selectTransaction = `SELECT id, account_id, status, description, message, amount_cents, category_id, parent_category_id,
 transfer_account_id, is_round_up, round_up_cents, parent_transaction_id, created_at, settled_at, display_date, updated_at
 FROM transactions`

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s scanner) (Transaction, error) {
	var t Transaction
	var roundUp int
	var settled sql.NullTime
	var display string
	if err := s.Scan(&t.ID, &t.AccountID, &t.Status, &t.Description, &t.Message, &t.AmountCents, &t.CategoryID, &t.ParentCategoryID,
		&t.TransferAccountID, &roundUp, &t.RoundUpCents, &t.ParentTransactionID, &t.CreatedAt, &settled, &display, &t.UpdatedAt); err != nil {
		return Transaction{}, err
	}
	t.IsRoundUp = roundUp != 0
	t.SettledAt = nullTime(settled)
	d, err := dates.Parse(display)
	if err != nil {
		return Transaction{}, err
	}
	t.DisplayDate = d
	return t, nil
}
