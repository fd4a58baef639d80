package database

import (
	"context"
	"database/sql"
	"log"
	"sync"
	"time"
)

// Flusher coalesces bursts of writes into one WAL checkpoint after a quiet
// period. Close always checkpoints whatever is pending.
type Flusher struct {
	db     *sql.DB
	delay  time.Duration
	logger *log.Logger

	mu      sync.Mutex
	timer   *time.Timer
	pending bool
	closed  bool
	flushes int
}

func NewFlusher(db *sql.DB, delay time.Duration, logger *log.Logger) *Flusher {
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	return &Flusher{db: db, delay: delay, logger: logger}
}

// Schedule arms (or re-arms) the debounce timer.
func (f *Flusher) Schedule() {
	if f == nil || f.db == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.pending = true
	if f.timer != nil {
		f.timer.Stop()
	}
	f.timer = time.AfterFunc(f.delay, func() {
		if err := f.Flush(context.Background()); err != nil && f.logger != nil {
			f.logger.Printf("flush: %v", err)
		}
	})
}

// Flush checkpoints now if anything is pending.
func (f *Flusher) Flush(ctx context.Context) error {
	if f == nil || f.db == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	if !f.pending {
		return nil
	}
	if _, err := f.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return err
	}
	f.pending = false
	f.flushes++
	return nil
}

// Flushes reports how many checkpoints have run.
func (f *Flusher) Flushes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flushes
}

// Close flushes pending writes and stops further scheduling.
func (f *Flusher) Close() error {
	if f == nil {
		return nil
	}
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return f.Flush(context.Background())
}
