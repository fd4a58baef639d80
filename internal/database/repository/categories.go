package repository

import (
	"context"
	"database/sql"
	"errors"
)

// CategoryRepo handles categories.
type CategoryRepo struct {
	db *sql.DB
}

func NewCategoryRepo(db *sql.DB) *CategoryRepo {
	return &CategoryRepo{db: db}
}

func (r *CategoryRepo) Upsert(ctx context.Context, c Category) error {
	if err := writable(r.db); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO categories(id, name, parent_id)
	VALUES (?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
	 name=excluded.name,
	 parent_id=excluded.parent_id;
	`, c.ID, c.Name, c.ParentID)
	return err
}

func (r *CategoryRepo) List(ctx context.Context) ([]Category, error) {
	if r.db == nil {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, parent_id FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.ParentID); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Get returns the category or nil when it is unknown.
func (r *CategoryRepo) Get(ctx context.Context, id string) (*Category, error) {
	if r.db == nil {
		return nil, nil
	}
	var c Category
	err := r.db.QueryRowContext(ctx, `SELECT id, name, parent_id FROM categories WHERE id = ?`, id).Scan(&c.ID, &c.Name, &c.ParentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
