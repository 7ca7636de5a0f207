package admin

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/orca-so/sedimentology/pkg/db/postgres"
)

func (db *DB) initCheckpoint(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS adm_checkpoint (
			id SMALLINT PRIMARY KEY CHECK (id = 1),
			slot BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	return db.Exec(ctx, query)
}

// AdvanceCheckpoint recomputes the checkpoint from the pending live slots and
// returns it. The checkpoint never moves backwards. It returns false when the
// forward watermark has not been initialized yet.
func (db *DB) AdvanceCheckpoint(ctx context.Context) (uint64, bool, error) {
	return advanceCheckpoint(ctx, db.GetExecutor(ctx))
}

func advanceCheckpoint(ctx context.Context, exec postgres.Executor) (uint64, bool, error) {
	var slot sql.NullInt64
	if err := exec.QueryRow(ctx, `SELECT advance_checkpoint()`).Scan(&slot); err != nil {
		return 0, false, fmt.Errorf("advance_checkpoint: %w", err)
	}
	if !slot.Valid {
		return 0, false, nil
	}
	return uint64(slot.Int64), true, nil
}

// GetCheckpoint returns the checkpoint or nil when none was recorded.
func (db *DB) GetCheckpoint(ctx context.Context) (*Checkpoint, error) {
	var c Checkpoint
	err := db.QueryRow(ctx, `SELECT slot, updated_at FROM adm_checkpoint WHERE id = 1`).Scan(&c.Slot, &c.UpdatedAt)
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read adm_checkpoint: %w", err)
	}
	return &c, nil
}
