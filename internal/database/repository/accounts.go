package repository

import (
	"context"
	"database/sql"
)

// AccountRepo handles accounts.
type AccountRepo struct {
	db *sql.DB
}

func NewAccountRepo(db *sql.DB) *AccountRepo {
	return &AccountRepo{db: db}
}

func (r *AccountRepo) Upsert(ctx context.Context, a Account) error {
	if err := writable(r.db); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO accounts(id, display_name, account_type, balance_cents, remote_created_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	ON CONFLICT(id) DO UPDATE SET
	 display_name=excluded.display_name,
	 account_type=excluded.account_type,
	 balance_cents=excluded.balance_cents,
	 remote_created_at=excluded.remote_created_at,
	 updated_at=CURRENT_TIMESTAMP;
	`, a.ID, a.DisplayName, a.AccountType, a.BalanceCents, a.RemoteCreatedAt)
	return err
}

func (r *AccountRepo) List(ctx context.Context) ([]Account, error) {
	return r.list(ctx, `SELECT id, display_name, account_type, balance_cents, remote_created_at, created_at, updated_at FROM accounts ORDER BY display_name`)
}

// ListByType returns accounts of one type (TRANSACTIONAL or SAVER).
func (r *AccountRepo) ListByType(ctx context.Context, accountType string) ([]Account, error) {
	return r.list(ctx, `SELECT id, display_name, account_type, balance_cents, remote_created_at, created_at, updated_at FROM accounts WHERE account_type = ? ORDER BY display_name`, accountType)
}

func (r *AccountRepo) list(ctx context.Context, query string, args ...any) ([]Account, error) {
	if r.db == nil {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		var a Account
		var remoteCreated sql.NullTime
		if err := rows.Scan(&a.ID, &a.DisplayName, &a.AccountType, &a.BalanceCents, &remoteCreated, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		a.RemoteCreatedAt = nullTime(remoteCreated)
		out = append(out, a)
	}
	return out, rows.Err()
}
