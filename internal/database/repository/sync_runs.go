package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// SyncRunRepo records synchronizer invocations.
type SyncRunRepo struct {
	db *sql.DB
}

func NewSyncRunRepo(db *sql.DB) *SyncRunRepo { return &SyncRunRepo{db: db} }

// Start records a running sync and returns its id.
func (r *SyncRunRepo) Start(ctx context.Context, kind string, at time.Time) (string, error) {
	if err := writable(r.db); err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err := r.db.ExecContext(ctx, `INSERT INTO sync_runs(id, kind, status, started_at) VALUES (?, ?, ?, ?)`,
		id, kind, SyncRunning, at.UTC())
	return id, err
}

// Finish closes a run. A nil err marks it ok.
func (r *SyncRunRepo) Finish(ctx context.Context, id string, at time.Time, seen int, phase string, runErr error) error {
	if err := writable(r.db); err != nil {
		return err
	}
	status := SyncOK
	var failedPhase, msg *string
	if runErr != nil {
		status = SyncFailed
		m := runErr.Error()
		msg = &m
		if phase != "" {
			failedPhase = &phase
		}
	}
	_, err := r.db.ExecContext(ctx, `
	UPDATE sync_runs SET status = ?, failed_phase = ?, error = ?, transactions_seen = ?, finished_at = ? WHERE id = ?`,
		status, failedPhase, msg, seen, at.UTC(), id)
	return err
}

// Recent returns up to limit runs, newest first.
func (r *SyncRunRepo) Recent(ctx context.Context, limit int) ([]SyncRun, error) {
	if r.db == nil {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, kind, status, failed_phase, error, transactions_seen, started_at, finished_at
	FROM sync_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SyncRun
	for rows.Next() {
		var s SyncRun
		var finished sql.NullTime
		if err := rows.Scan(&s.ID, &s.Kind, &s.Status, &s.FailedPhase, &s.Error, &s.TransactionsSeen, &s.StartedAt, &finished); err != nil {
			return nil, err
		}
		s.FinishedAt = nullTime(finished)
		out = append(out, s)
	}
	return out, rows.Err()
}
