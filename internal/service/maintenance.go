package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jask/ledgersync/internal/database"
	"github.com/jask/ledgersync/internal/database/repository"
)

// MaintenanceService houses destructive/ops actions surfaced through the CLI.
type MaintenanceService struct {
	DB *sql.DB
}

// ResetSynced wipes everything mirrored from the remote ledger and the
// watermark, so the next sync is a full one. Trackers, charges, saver goals
// and payday settings are user-owned and kept.
func (s *MaintenanceService) ResetSynced(ctx context.Context) error {
	if s.DB == nil {
		return database.ErrStoreUnavailable
	}
	if err := database.WithTx(s.DB, func(tx *sql.Tx) error {
		tables := []string{
			"transactions",
			"categories",
			"accounts",
			"sync_runs",
		}
		for _, t := range tables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+t); err != nil {
				return fmt.Errorf("reset table %s: %w", t, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, repository.KeyLastSync); err != nil {
			return fmt.Errorf("reset watermark: %w", err)
		}
		return nil
	}); err != nil {
		return err
	}
	_, _ = s.DB.ExecContext(ctx, "VACUUM")
	return nil
}
